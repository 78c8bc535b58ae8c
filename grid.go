package cityflow

import (
	"github.com/paulmach/orb"
)

// NewGridNetwork returns rows x cols grid of intersections spaced by given meters and connected with
// two-way segments of given class. Node at row r and column c has identifier r*cols+c.
func NewGridNetwork(rows, cols int, spacing float64, class RoadClass) ([]Node, []Segment) {
	nodes := make([]Node, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			nodes = append(nodes, Node{
				ID:       NodeID(r*cols + c),
				Kind:     NODE_INTERSECTION,
				Position: orb.Point{float64(c) * spacing, float64(r) * spacing},
			})
		}
	}
	segments := make([]Segment, 0, 2*rows*cols)
	nextID := SegmentID(0)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := NodeID(r*cols + c)
			if c+1 < cols {
				segments = append(segments, Segment{ID: nextID, Source: id, Target: id + 1, Class: class})
				nextID++
			}
			if r+1 < rows {
				segments = append(segments, Segment{ID: nextID, Source: id, Target: id + NodeID(cols), Class: class})
				nextID++
			}
		}
	}
	return nodes, segments
}
