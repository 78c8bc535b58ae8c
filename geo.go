package cityflow

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	earthR = 20037508.34
)

func epsg3857To4326(x, y float64) (float64, float64) {
	lon := x * 180 / earthR
	lat := math.Atan(math.Exp(y*math.Pi/earthR))*360/math.Pi - 90
	return lon, lat
}

func epsg4326To3857(lon, lat float64) (float64, float64) {
	x := lon * earthR / 180
	y := math.Log(math.Tan((90+lat)*math.Pi/360)) / (math.Pi / 180)
	y = y * earthR / 180
	return x, y
}

// Projection converts WGS84 coordinates to planar meters and back.
//
// Pseudo-mercator stretches distances by 1/cos(lat), so coordinates are scaled by cos of reference latitude.
// Within a city extent planar distances stay close to real ones, and lengths and straight-line
// distances are measured in the same space (which keeps route search heuristic admissible).
type Projection struct {
	scale float64
}

// NewProjection returns projection with reference latitude (degrees)
func NewProjection(refLat float64) Projection {
	return Projection{scale: math.Cos(refLat * math.Pi / 180)}
}

// ToPlanar converts lon/lat point to planar meters
func (proj Projection) ToPlanar(pt orb.Point) orb.Point {
	x, y := epsg4326To3857(pt.Lon(), pt.Lat())
	return orb.Point{x * proj.scale, y * proj.scale}
}

// ToGeographic converts planar meters back to lon/lat point
func (proj Projection) ToGeographic(pt orb.Point) orb.Point {
	lon, lat := epsg3857To4326(pt.X()/proj.scale, pt.Y()/proj.scale)
	return orb.Point{lon, lat}
}

func (proj Projection) lineToPlanar(line orb.LineString) orb.LineString {
	newLine := make(orb.LineString, len(line))
	for i, pt := range line {
		newLine[i] = proj.ToPlanar(pt)
	}
	return newLine
}

func (proj Projection) lineToGeographic(line orb.LineString) orb.LineString {
	newLine := make(orb.LineString, len(line))
	for i, pt := range line {
		newLine[i] = proj.ToGeographic(pt)
	}
	return newLine
}
