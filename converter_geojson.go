package cityflow

import (
	"os"

	"github.com/paulmach/orb"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
)

func lineCoordinates(line orb.LineString) [][]float64 {
	pts2d := make([][]float64, len(line))
	for i := range line {
		pts2d[i] = []float64{line[i][0], line[i][1]}
	}
	return pts2d
}

// TelemetryFeatureCollection returns LOS overlay: one LineString feature per road edge with congestion properties.
// Positive offset (meters) shifts every edge to the right of its direction, so both directions of a two-way
// segment stay visible. When projection is provided coordinates are converted to lon/lat.
func TelemetryFeatureCollection(telemetries []EdgeTelemetry, proj *Projection, offset float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tm := range telemetries {
		geom := tm.Geom
		if offset > 0 {
			geom = offsetCurve(geom, -offset)
		}
		if proj != nil {
			geom = proj.lineToGeographic(geom)
		}
		feature := geojson.NewLineStringFeature(lineCoordinates(geom))
		feature.ID = int64(tm.Edge)
		feature.SetProperty("edge", int64(tm.Edge))
		feature.SetProperty("segment", int64(tm.Segment))
		feature.SetProperty("source", int64(tm.Source))
		feature.SetProperty("target", int64(tm.Target))
		feature.SetProperty("class", tm.Class.String())
		feature.SetProperty("volume", tm.Volume)
		feature.SetProperty("capacity", tm.Capacity)
		feature.SetProperty("vc", finiteOrNil(tm.VC))
		feature.SetProperty("los", tm.LOS.String())
		feature.SetProperty("los_label", tm.LOS.Label())
		feature.SetProperty("free_flow_time", tm.FreeFlowTime)
		feature.SetProperty("travel_time", finiteOrNil(tm.TravelTime))
		feature.SetProperty("closed", tm.Closed)
		fc.AddFeature(feature)
	}
	return fc
}

// TelemetryGeoJSON returns encoded LOS overlay
func TelemetryGeoJSON(telemetries []EdgeTelemetry, proj *Projection, offset float64) ([]byte, error) {
	b, err := TelemetryFeatureCollection(telemetries, proj, offset).MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert telemetry to geojson format")
	}
	return b, nil
}

// ExportTelemetryToGeoJSON writes LOS overlay to file
func ExportTelemetryToGeoJSON(fname string, telemetries []EdgeTelemetry, proj *Projection, offset float64) error {
	b, err := TelemetryGeoJSON(telemetries, proj, offset)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fname, b, 0644); err != nil {
		return errors.Wrap(err, "Can't write file")
	}
	return nil
}
