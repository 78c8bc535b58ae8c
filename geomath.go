package cityflow

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// intersect returns intersection point of lines given by segments (p1, p2) and (p3, p4)
// Note: Euclidean space
func intersect(p1, p2, p3, p4 orb.Point) (orb.Point, error) {
	a1 := p2[1] - p1[1]
	b1 := p1[0] - p2[0]
	c1 := a1*p1[0] + b1*p1[1]
	a2 := p4[1] - p3[1]
	b2 := p3[0] - p4[0]
	c2 := a2*p3[0] + b2*p3[1]

	det := a1*b2 - a2*b1
	if det == 0 {
		return orb.Point{}, fmt.Errorf("The lines are parallel")
	}
	x := (b2*c1 - b1*c2) / det
	y := (a1*c2 - a2*c1) / det
	return orb.Point{x, y}, nil
}

// offsetCurve shifts planar line by distance: positive to the left of its direction, negative to the right.
// Zero-length pieces are skipped.
func offsetCurve(line orb.LineString, distance float64) orb.LineString {
	segments := make([][2]orb.Point, 0, len(line))
	for i := 1; i < len(line); i++ {
		p1 := line[i-1]
		p2 := line[i]
		vec := [2]float64{p2[0] - p1[0], p2[1] - p1[1]}
		vecLen := math.Sqrt(vec[0]*vec[0] + vec[1]*vec[1])
		if vecLen == 0 {
			continue
		}
		// Normal to the left of direction
		offset := [2]float64{-vec[1] / vecLen * distance, vec[0] / vecLen * distance}
		segments = append(segments, [2]orb.Point{
			{p1[0] + offset[0], p1[1] + offset[1]},
			{p2[0] + offset[0], p2[1] + offset[1]},
		})
	}
	if len(segments) == 0 {
		return append(orb.LineString{}, line...)
	}
	result := orb.LineString{segments[0][0]}
	for i := 1; i < len(segments); i++ {
		intersection, err := intersect(segments[i-1][0], segments[i-1][1], segments[i][0], segments[i][1])
		if err != nil {
			// Collinear pieces share the joint
			result = append(result, segments[i][0])
			continue
		}
		result = append(result, intersection)
	}
	return append(result, segments[len(segments)-1][1])
}
