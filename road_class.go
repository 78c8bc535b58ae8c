package cityflow

import (
	"fmt"
	"strings"
)

// RoadClass is functional class of a road segment
type RoadClass uint16

const (
	ROAD_LOCAL = RoadClass(iota + 1)
	ROAD_COLLECTOR
	ROAD_ARTERIAL
	ROAD_HIGHWAY
)

var roadClassNames = [...]string{"local", "collector", "arterial", "highway"}

func (iotaIdx RoadClass) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(roadClassNames) {
		return "undefined"
	}
	return roadClassNames[iotaIdx-1]
}

// ParseRoadClass returns class for its textual name
func ParseRoadClass(str string) (RoadClass, error) {
	for i, name := range roadClassNames {
		if strings.EqualFold(name, str) {
			return RoadClass(i + 1), nil
		}
	}
	return 0, fmt.Errorf("Unknown road class '%s'", str)
}

func (iotaIdx RoadClass) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *RoadClass) UnmarshalText(text []byte) error {
	if len(text) == 0 || string(text) == "undefined" {
		*iotaIdx = 0
		return nil
	}
	class, err := ParseRoadClass(string(text))
	if err != nil {
		return err
	}
	*iotaIdx = class
	return nil
}

func (iotaIdx RoadClass) valid() bool {
	return iotaIdx >= ROAD_LOCAL && iotaIdx <= ROAD_HIGHWAY
}

// UpgradeTier returns the next class in upgrade path local -> collector -> arterial -> highway.
// Second value is false when class can't be upgraded anymore.
func (iotaIdx RoadClass) UpgradeTier() (RoadClass, bool) {
	if !iotaIdx.valid() || iotaIdx == ROAD_HIGHWAY {
		return iotaIdx, false
	}
	return iotaIdx + 1, true
}

// DefaultLanes returns number of lanes (per direction) for the class
func (iotaIdx RoadClass) DefaultLanes() int {
	if lanes, ok := defaultLanesByClass[iotaIdx]; ok {
		return lanes
	}
	return 1
}

// DefaultSpeed returns free-flow speed (km/h) for the class
func (iotaIdx RoadClass) DefaultSpeed() float64 {
	if speed, ok := defaultSpeedByClass[iotaIdx]; ok {
		return speed
	}
	return defaultSpeedByClass[ROAD_LOCAL]
}

// LaneCapacity returns capacity of a single lane (veh/h) for the class
func (iotaIdx RoadClass) LaneCapacity() float64 {
	if capacity, ok := defaultCapacityByClass[iotaIdx]; ok {
		return capacity
	}
	return defaultCapacityByClass[ROAD_LOCAL]
}

var (
	defaultLanesByClass = map[RoadClass]int{
		ROAD_LOCAL:     1,
		ROAD_COLLECTOR: 1,
		ROAD_ARTERIAL:  2,
		ROAD_HIGHWAY:   3,
	}
	defaultSpeedByClass = map[RoadClass]float64{
		ROAD_LOCAL:     30,
		ROAD_COLLECTOR: 50,
		ROAD_ARTERIAL:  60,
		ROAD_HIGHWAY:   100,
	}
	defaultCapacityByClass = map[RoadClass]float64{
		ROAD_LOCAL:     1000,
		ROAD_COLLECTOR: 1200,
		ROAD_ARTERIAL:  1800,
		ROAD_HIGHWAY:   2300,
	}
)
