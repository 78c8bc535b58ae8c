package cityflow

import (
	"fmt"

	"github.com/paulmach/orb"
)

// EdgeID identifies a directed edge. Road edges are derived from segment identifiers
// (2*segment for forward direction, 2*segment+1 for backward), overlay links are negative.
type EdgeID int64

// ForwardEdgeID returns identifier of source->target direction of a segment
func ForwardEdgeID(id SegmentID) EdgeID {
	return EdgeID(id * 2)
}

// BackwardEdgeID returns identifier of target->source direction of a segment
func BackwardEdgeID(id SegmentID) EdgeID {
	return EdgeID(id*2 + 1)
}

// Segment returns segment the edge was derived from. Overlay links give -1.
func (id EdgeID) Segment() SegmentID {
	if id < 0 {
		return -1
	}
	return SegmentID(id / 2)
}

// Link is a directed edge of the routing graph (road, sidewalk or transit).
// FreeFlowTime is in seconds. For non-road kinds it is the fixed traversal cost.
type Link struct {
	ID           EdgeID
	Segment      SegmentID
	Source       NodeID
	Target       NodeID
	Kind         LinkKind
	Class        RoadClass
	Lanes        int
	Route        RouteID
	LengthMeters float64
	FreeFlowTime float64
	Capacity     float64
	// Parts of a transfer cost (seconds)
	WaitPart    float64
	PenaltyPart float64
	Geom        orb.LineString
}

func (link *Link) String() string {
	return fmt.Sprintf("Link %d (%s, %d -> %d)", link.ID, link.Kind, link.Source, link.Target)
}

// roadLinksFromSegment returns directed road links of a segment
func roadLinksFromSegment(seg *Segment) []Link {
	length := seg.LengthMeters()
	speed := seg.FreeSpeed() / 3.6
	freeFlow := length / speed
	capacity := seg.Capacity()
	lanes := seg.GetLanes()
	links := make([]Link, 0, 2)
	links = append(links, Link{
		ID:           ForwardEdgeID(seg.ID),
		Segment:      seg.ID,
		Source:       seg.Source,
		Target:       seg.Target,
		Kind:         LINK_ROAD,
		Class:        seg.Class,
		Lanes:        lanes,
		Route:        -1,
		LengthMeters: length,
		FreeFlowTime: freeFlow,
		Capacity:     capacity,
		Geom:         seg.Geom,
	})
	if !seg.Oneway {
		links = append(links, Link{
			ID:           BackwardEdgeID(seg.ID),
			Segment:      seg.ID,
			Source:       seg.Target,
			Target:       seg.Source,
			Kind:         LINK_ROAD,
			Class:        seg.Class,
			Lanes:        lanes,
			Route:        -1,
			LengthMeters: length,
			FreeFlowTime: freeFlow,
			Capacity:     capacity,
			Geom:         reverseGeom(seg.Geom),
		})
	}
	return links
}
