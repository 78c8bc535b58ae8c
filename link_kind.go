package cityflow

import (
	"fmt"
	"strings"
)

// LinkKind tags a directed link with the way it is traversed
type LinkKind uint16

const (
	LINK_ROAD = LinkKind(iota + 1)
	LINK_WALK
	LINK_WAIT
	LINK_RIDE
	LINK_TRANSFER
)

var linkKindNames = [...]string{"road", "walk", "wait", "ride", "transfer"}

func (iotaIdx LinkKind) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(linkKindNames) {
		return "undefined"
	}
	return linkKindNames[iotaIdx-1]
}

func (iotaIdx LinkKind) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *LinkKind) UnmarshalText(text []byte) error {
	for i, name := range linkKindNames {
		if strings.EqualFold(name, string(text)) {
			*iotaIdx = LinkKind(i + 1)
			return nil
		}
	}
	return fmt.Errorf("Unknown link kind '%s'", string(text))
}

// IsTransit reports whether link belongs to the transit overlay rather than to road or sidewalk layer
func (iotaIdx LinkKind) IsTransit() bool {
	return iotaIdx == LINK_WAIT || iotaIdx == LINK_RIDE || iotaIdx == LINK_TRANSFER
}
