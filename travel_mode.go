package cityflow

import (
	"fmt"
	"strings"
)

// TravelMode is a mode a trip is allowed to use
type TravelMode uint16

const (
	MODE_DRIVE = TravelMode(iota + 1)
	MODE_WALK
	MODE_TRANSIT
	MODE_UNDEFINED = TravelMode(0)
)

func (iotaIdx TravelMode) String() string {
	if int(iotaIdx) >= len(travelModeNames) {
		return "undefined"
	}
	return travelModeNames[iotaIdx]
}

var travelModeNames = [...]string{"undefined", "drive", "walk", "transit"}

// ParseTravelMode returns mode for its textual name
func ParseTravelMode(str string) (TravelMode, error) {
	for i, name := range travelModeNames {
		if i == 0 {
			continue
		}
		if strings.EqualFold(name, str) {
			return TravelMode(i), nil
		}
	}
	return MODE_UNDEFINED, fmt.Errorf("Unknown travel mode '%s'", str)
}

func (iotaIdx TravelMode) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *TravelMode) UnmarshalText(text []byte) error {
	mode, err := ParseTravelMode(string(text))
	if err != nil {
		return err
	}
	*iotaIdx = mode
	return nil
}

var (
	travelModesAll = []TravelMode{MODE_DRIVE, MODE_WALK, MODE_TRANSIT}

	linkKindsByMode = map[TravelMode][]LinkKind{
		MODE_DRIVE:   {LINK_ROAD},
		MODE_WALK:    {LINK_WALK},
		MODE_TRANSIT: {LINK_WALK, LINK_WAIT, LINK_RIDE, LINK_TRANSFER},
	}
)

// ModeSet is a set of allowed travel modes. Empty set allows every mode.
type ModeSet uint8

// NewModeSet returns set containing given modes
func NewModeSet(modes ...TravelMode) ModeSet {
	set := ModeSet(0)
	for _, mode := range modes {
		if mode == MODE_UNDEFINED {
			continue
		}
		set |= 1 << mode
	}
	return set
}

// Has reports whether mode is allowed
func (set ModeSet) Has(mode TravelMode) bool {
	if set == 0 {
		return mode != MODE_UNDEFINED
	}
	return set&(1<<mode) != 0
}

// Modes returns allowed modes in stable order
func (set ModeSet) Modes() []TravelMode {
	modes := make([]TravelMode, 0, len(travelModesAll))
	for _, mode := range travelModesAll {
		if set.Has(mode) {
			modes = append(modes, mode)
		}
	}
	return modes
}

// allowsKind reports whether a link of given kind may be traversed under this set
func (set ModeSet) allowsKind(kind LinkKind) bool {
	for _, mode := range travelModesAll {
		if !set.Has(mode) {
			continue
		}
		for _, allowed := range linkKindsByMode[mode] {
			if allowed == kind {
				return true
			}
		}
	}
	return false
}

func (set ModeSet) String() string {
	modes := set.Modes()
	names := make([]string, len(modes))
	for i, mode := range modes {
		names[i] = mode.String()
	}
	return strings.Join(names, ",")
}

func (set ModeSet) MarshalText() ([]byte, error) {
	if set == 0 {
		return []byte{}, nil
	}
	return []byte(set.String()), nil
}

func (set *ModeSet) UnmarshalText(text []byte) error {
	parsed, err := ParseModeSet(string(text))
	if err != nil {
		return err
	}
	*set = parsed
	return nil
}

// ParseModeSet parses comma separated list of modes. Empty string gives empty (all modes) set.
func ParseModeSet(str string) (ModeSet, error) {
	set := ModeSet(0)
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mode, err := ParseTravelMode(part)
		if err != nil {
			return 0, err
		}
		set |= 1 << mode
	}
	return set, nil
}
