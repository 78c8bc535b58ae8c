package cityflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

var (
	nodesHeader    = []string{"id", "kind", "name", "x", "y"}
	segmentsHeader = []string{"id", "source_node", "target_node", "class", "lanes", "oneway", "closed", "capacity_override", "speed_limit", "name", "geom"}
)

func networkFileNames(fname string) (string, string) {
	fnameParts := strings.Split(fname, ".csv")
	return fnameParts[0] + "_nodes.csv", fnameParts[0] + "_segments.csv"
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// ExportNetworkToCSV writes nodes and segments to '<fname>_nodes.csv' and '<fname>_segments.csv'
func ExportNetworkToCSV(fname string, nodes []Node, segments []Segment) error {
	fnameNodes, fnameSegments := networkFileNames(fname)
	file, err := os.Create(fnameNodes)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()
	err = WriteNodesCSV(file, nodes)
	if err != nil {
		return errors.Wrap(err, "Can't export nodes")
	}
	fileSegments, err := os.Create(fnameSegments)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer fileSegments.Close()
	err = WriteSegmentsCSV(fileSegments, segments)
	if err != nil {
		return errors.Wrap(err, "Can't export segments")
	}
	return nil
}

// ImportNetworkFromCSV reads files produced by ExportNetworkToCSV
func ImportNetworkFromCSV(fname string) ([]Node, []Segment, error) {
	fnameNodes, fnameSegments := networkFileNames(fname)
	file, err := os.Open(fnameNodes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't open file")
	}
	defer file.Close()
	nodes, err := ReadNodesCSV(file)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't import nodes")
	}
	fileSegments, err := os.Open(fnameSegments)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't open file")
	}
	defer fileSegments.Close()
	segments, err := ReadSegmentsCSV(fileSegments)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't import segments")
	}
	return nodes, segments, nil
}

func WriteNodesCSV(w io.Writer, nodes []Node) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'
	err := writer.Write(nodesHeader)
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for _, node := range nodes {
		err = writer.Write([]string{
			fmt.Sprintf("%d", node.ID),
			node.Kind.String(),
			node.Name,
			formatFloat(node.Position.X()),
			formatFloat(node.Position.Y()),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write node")
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteSegmentsCSV(w io.Writer, segments []Segment) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'
	err := writer.Write(segmentsHeader)
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for _, seg := range segments {
		geom := ""
		if len(seg.Geom) > 0 {
			geom = wkt.MarshalString(seg.Geom)
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", seg.ID),
			fmt.Sprintf("%d", seg.Source),
			fmt.Sprintf("%d", seg.Target),
			seg.Class.String(),
			fmt.Sprintf("%d", seg.Lanes),
			fmt.Sprintf("%t", seg.Oneway),
			fmt.Sprintf("%t", seg.Closed),
			formatFloat(seg.CapacityOverride),
			formatFloat(seg.SpeedLimit),
			seg.Name,
			geom,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write segment")
		}
	}
	writer.Flush()
	return writer.Error()
}

func readRecords(r io.Reader, header []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = len(header)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Can't read records")
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("Missing header")
	}
	for i, column := range header {
		if records[0][i] != column {
			return nil, fmt.Errorf("Column %d must be '%s', but got '%s'", i, column, records[0][i])
		}
	}
	return records[1:], nil
}

func ReadNodesCSV(r io.Reader) ([]Node, error) {
	records, err := readRecords(r, nodesHeader)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(records))
	for line, record := range records {
		node := Node{Name: record[2]}
		id, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad node id on line %d", line+2)
		}
		node.ID = NodeID(id)
		if err := node.Kind.UnmarshalText([]byte(record[1])); err != nil {
			return nil, errors.Wrapf(err, "Bad node kind on line %d", line+2)
		}
		x, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad x on line %d", line+2)
		}
		y, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad y on line %d", line+2)
		}
		node.Position = orb.Point{x, y}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func ReadSegmentsCSV(r io.Reader) ([]Segment, error) {
	records, err := readRecords(r, segmentsHeader)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(records))
	for line, record := range records {
		seg := Segment{Name: record[9]}
		ints := make([]int64, 3)
		for i := range ints {
			ints[i], err = strconv.ParseInt(record[i], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Bad %s on line %d", segmentsHeader[i], line+2)
			}
		}
		seg.ID, seg.Source, seg.Target = SegmentID(ints[0]), NodeID(ints[1]), NodeID(ints[2])
		seg.Class, err = ParseRoadClass(record[3])
		if err != nil {
			return nil, errors.Wrapf(err, "Bad class on line %d", line+2)
		}
		seg.Lanes, err = strconv.Atoi(record[4])
		if err != nil {
			return nil, errors.Wrapf(err, "Bad lanes on line %d", line+2)
		}
		seg.Oneway, err = strconv.ParseBool(record[5])
		if err != nil {
			return nil, errors.Wrapf(err, "Bad oneway on line %d", line+2)
		}
		seg.Closed, err = strconv.ParseBool(record[6])
		if err != nil {
			return nil, errors.Wrapf(err, "Bad closed on line %d", line+2)
		}
		seg.CapacityOverride, err = strconv.ParseFloat(record[7], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad capacity_override on line %d", line+2)
		}
		seg.SpeedLimit, err = strconv.ParseFloat(record[8], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad speed_limit on line %d", line+2)
		}
		if record[10] != "" {
			seg.Geom, err = wkt.UnmarshalLineString(record[10])
			if err != nil {
				return nil, errors.Wrapf(err, "Bad geom on line %d", line+2)
			}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
