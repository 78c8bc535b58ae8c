package cityflow

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SegmentID identifies a road segment. Each segment produces one (oneway) or two directed edges.
type SegmentID int64

// Segment is a piece of road between two nodes
type Segment struct {
	ID     SegmentID `json:"id" yaml:"id"`
	Source NodeID    `json:"source" yaml:"source"`
	Target NodeID    `json:"target" yaml:"target"`
	Class  RoadClass `json:"class" yaml:"class"`
	// Lanes per direction. Zero or less means default for the class
	Lanes  int  `json:"lanes,omitempty" yaml:"lanes,omitempty"`
	Oneway bool `json:"oneway,omitempty" yaml:"oneway,omitempty"`
	Closed bool `json:"closed,omitempty" yaml:"closed,omitempty"`
	// CapacityOverride (veh/h per direction) replaces class based capacity when positive
	CapacityOverride float64 `json:"capacity_override,omitempty" yaml:"capacity_override,omitempty"`
	// SpeedLimit (km/h) replaces class default speed when positive
	SpeedLimit float64        `json:"speed_limit,omitempty" yaml:"speed_limit,omitempty"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Geom       orb.LineString `json:"geom,omitempty" yaml:"geom,omitempty"`
}

func (seg Segment) String() string {
	return fmt.Sprintf("Segment %d (%d -> %d, %s)", seg.ID, seg.Source, seg.Target, seg.Class)
}

// GetLanes returns lanes per direction falling back to class default
func (seg *Segment) GetLanes() int {
	if seg.Lanes > 0 {
		return seg.Lanes
	}
	return seg.Class.DefaultLanes()
}

// Capacity returns capacity of a single direction (veh/h). Closed segments have no capacity.
func (seg *Segment) Capacity() float64 {
	if seg.Closed {
		return 0
	}
	if seg.CapacityOverride > 0 {
		return seg.CapacityOverride
	}
	return float64(seg.GetLanes()) * seg.Class.LaneCapacity()
}

// FreeSpeed returns free-flow speed (km/h)
func (seg *Segment) FreeSpeed() float64 {
	if seg.SpeedLimit > 0 {
		return seg.SpeedLimit
	}
	return seg.Class.DefaultSpeed()
}

// LengthMeters returns planar length of segment geometry
func (seg *Segment) LengthMeters() float64 {
	return planar.Length(seg.Geom)
}

// SegmentPatch holds attributes to change on upgrade. Nil fields are left untouched.
type SegmentPatch struct {
	Class            *RoadClass `json:"class,omitempty"`
	Lanes            *int       `json:"lanes,omitempty"`
	Closed           *bool      `json:"closed,omitempty"`
	CapacityOverride *float64   `json:"capacity_override,omitempty"`
	SpeedLimit       *float64   `json:"speed_limit,omitempty"`
}

func (patch *SegmentPatch) apply(seg Segment) Segment {
	if patch == nil {
		return seg
	}
	if patch.Class != nil {
		seg.Class = *patch.Class
	}
	if patch.Lanes != nil {
		seg.Lanes = *patch.Lanes
	}
	if patch.Closed != nil {
		seg.Closed = *patch.Closed
	}
	if patch.CapacityOverride != nil {
		seg.CapacityOverride = *patch.CapacityOverride
	}
	if patch.SpeedLimit != nil {
		seg.SpeedLimit = *patch.SpeedLimit
	}
	return seg
}

// straightGeom returns two-point line between given positions
func straightGeom(from, to orb.Point) orb.LineString {
	return orb.LineString{from, to}
}

func reverseGeom(line orb.LineString) orb.LineString {
	reversed := make(orb.LineString, len(line))
	for i := range line {
		reversed[len(line)-1-i] = line[i]
	}
	return reversed
}
