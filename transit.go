package cityflow

import (
	"fmt"
	"strings"
)

type RouteID int64

// TransitMode is vehicle type serving a route
type TransitMode uint16

const (
	TRANSIT_BUS = TransitMode(iota + 1)
	TRANSIT_TRAM
	TRANSIT_RAIL
	TRANSIT_FERRY
)

var transitModeNames = [...]string{"bus", "tram", "rail", "ferry"}

func (iotaIdx TransitMode) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(transitModeNames) {
		return "undefined"
	}
	return transitModeNames[iotaIdx-1]
}

func (iotaIdx TransitMode) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *TransitMode) UnmarshalText(text []byte) error {
	for i, name := range transitModeNames {
		if strings.EqualFold(name, string(text)) {
			*iotaIdx = TransitMode(i + 1)
			return nil
		}
	}
	return fmt.Errorf("Unknown transit mode '%s'", string(text))
}

var (
	// Commercial speeds (km/h) including dwell time. Used when route has no scheduled ride times.
	defaultSpeedByTransitMode = map[TransitMode]float64{
		TRANSIT_BUS:   20,
		TRANSIT_TRAM:  25,
		TRANSIT_RAIL:  80,
		TRANSIT_FERRY: 20,
	}
)

const maxRouteStops = 1 << 16

// TransitRoute is a line visiting stops in order with fixed headway
type TransitRoute struct {
	ID    RouteID     `json:"id" yaml:"id"`
	Name  string      `json:"name,omitempty" yaml:"name,omitempty"`
	Mode  TransitMode `json:"mode" yaml:"mode"`
	Stops []NodeID    `json:"stops" yaml:"stops"`
	// Headway (seconds) between consecutive vehicles. Zero headway means the route does not run.
	Headway float64 `json:"headway" yaml:"headway"`
	// RideTimes (seconds) between consecutive stops. Empty means derived from distance and mode speed.
	RideTimes []float64 `json:"ride_times,omitempty" yaml:"ride_times,omitempty"`
	Suspended bool      `json:"suspended,omitempty" yaml:"suspended,omitempty"`
}

func (route TransitRoute) String() string {
	return fmt.Sprintf("Route %d '%s' (%s, %d stops, headway %.0fs)", route.ID, route.Name, route.Mode, len(route.Stops), route.Headway)
}

// Validate checks route shape. Runtime conditions (missing stops, zero headway) are not errors:
// such routes are just excluded from the overlay.
func (route *TransitRoute) Validate() error {
	if route.ID < 0 {
		return newValidationError(nil, "route %d: negative id", route.ID)
	}
	if route.Mode == 0 || int(route.Mode) > len(transitModeNames) {
		return newValidationError(nil, "route %d: unknown mode", route.ID)
	}
	if len(route.Stops) < 2 {
		return newValidationError(nil, "route %d: at least two stops are required", route.ID)
	}
	if len(route.Stops) >= maxRouteStops {
		return newValidationError(nil, "route %d: too many stops", route.ID)
	}
	if route.Headway < 0 {
		return newValidationError(nil, "route %d: negative headway", route.ID)
	}
	if len(route.RideTimes) != 0 && len(route.RideTimes) != len(route.Stops)-1 {
		return newValidationError(nil, "route %d: expected %d ride times, got %d", route.ID, len(route.Stops)-1, len(route.RideTimes))
	}
	for i, rideTime := range route.RideTimes {
		if rideTime < 0 {
			return newValidationError(nil, "route %d: negative ride time at leg %d", route.ID, i)
		}
	}
	return nil
}

// routeStopNodeID returns identifier of virtual node for i-th stop of a route
func routeStopNodeID(route RouteID, seq int) NodeID {
	return NodeID(-(int64(route)*maxRouteStops + int64(seq) + 1))
}
