package cityflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

// ExportTelemetryToCSV writes per-edge congestion report with WKT geometry
func ExportTelemetryToCSV(fname string, telemetries []EdgeTelemetry, proj *Projection) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()
	return WriteTelemetryCSV(file, telemetries, proj)
}

func WriteTelemetryCSV(w io.Writer, telemetries []EdgeTelemetry, proj *Projection) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	err := writer.Write([]string{"edge", "segment", "source_node", "target_node", "class", "volume", "capacity", "vc", "los", "free_flow_time", "travel_time", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for _, tm := range telemetries {
		geom := tm.Geom
		if proj != nil {
			geom = proj.lineToGeographic(geom)
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", tm.Edge),
			fmt.Sprintf("%d", tm.Segment),
			fmt.Sprintf("%d", tm.Source),
			fmt.Sprintf("%d", tm.Target),
			tm.Class.String(),
			fmt.Sprintf("%f", tm.Volume),
			fmt.Sprintf("%f", tm.Capacity),
			fmt.Sprintf("%f", tm.VC),
			tm.LOS.String(),
			fmt.Sprintf("%f", tm.FreeFlowTime),
			fmt.Sprintf("%f", tm.TravelTime),
			wkt.MarshalString(geom),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write edge telemetry")
		}
	}
	writer.Flush()
	return writer.Error()
}
