package cityflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Parser imports road network from OSM data (.osm / .xml / .pbf)
type Parser struct {
	filename       string
	highways       []string
	startSegmentID SegmentID
	refLat         float64
	verbose        bool
}

func (parser *Parser) String() string {
	return fmt.Sprintf(`
OSM parser parameters:
	filename: '%s'
	highways: '%s'
	start_segment_id: %d
	reference_latitude: %f
	verbose: %t
	`,
		parser.filename,
		strings.Join(parser.highways, ","),
		parser.startSegmentID,
		parser.refLat,
		parser.verbose,
	)
}

// ImportedNetwork is result of OSM import: nodes and segments in planar meters plus projection used
type ImportedNetwork struct {
	Nodes      []Node
	Segments   []Segment
	Projection Projection
}

func NewParser(fileName string, options ...func(*Parser)) *Parser {
	parser := &Parser{
		filename:       fileName,
		startSegmentID: 0,
	}
	for _, option := range options {
		option(parser)
	}
	return parser
}

// WithHighways limits imported ways to given highway tag values. Empty means every road highway.
func WithHighways(highways []string) func(*Parser) {
	return func(parser *Parser) {
		parser.highways = highways
	}
}

func WithStartSegmentID(startSegmentID SegmentID) func(*Parser) {
	return func(parser *Parser) {
		parser.startSegmentID = startSegmentID
	}
}

// WithReferenceLatitude fixes latitude used for projection scale. By default mean latitude of data is used.
func WithReferenceLatitude(refLat float64) func(*Parser) {
	return func(parser *Parser) {
		parser.refLat = refLat
	}
}

func WithParserVerbose(verbose bool) func(*Parser) {
	return func(parser *Parser) {
		parser.verbose = verbose
	}
}

func (parser *Parser) allowedHighways() (map[HighwayType]struct{}, error) {
	allowed := make(map[HighwayType]struct{})
	if len(parser.highways) == 0 {
		for _, highway := range highwaysTypes {
			allowed[highway] = struct{}{}
		}
		return allowed, nil
	}
	for _, tag := range parser.highways {
		highway := getHighwayType(strings.TrimSpace(tag))
		if highway == 0 {
			return nil, fmt.Errorf("Highway '%s' is not supported", tag)
		}
		allowed[highway] = struct{}{}
	}
	return allowed, nil
}

// Parse reads file and prepares network
func (parser *Parser) Parse() (*ImportedNetwork, error) {
	if parser.verbose {
		fmt.Printf("Opening file: '%s'...\n", parser.filename)
	}
	file, err := os.Open(parser.filename)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open OSM file")
	}
	defer file.Close()
	format := "xml"
	switch ext := filepath.Ext(parser.filename); ext {
	case ".osm", ".xml":
	case ".pbf":
		format = "pbf"
	default:
		return nil, fmt.Errorf("File extension '%s' for file '%s' is not handled yet", ext, parser.filename)
	}
	return parser.ParseReader(file, format)
}

// ParseReader reads OSM data of given format ("xml" or "pbf") and prepares network
func (parser *Parser) ParseReader(reader readSeeker, format string) (*ImportedNetwork, error) {
	allowed, err := parser.allowedHighways()
	if err != nil {
		return nil, err
	}
	st := time.Now()
	data, err := readOSM(reader, format, allowed, parser.verbose)
	if err != nil {
		return nil, errors.Wrap(err, "Can't parse OSM data")
	}
	if parser.verbose {
		fmt.Printf("\tPreparing segments... ")
	}
	network := data.prepareNetwork(parser.refLat, parser.startSegmentID, parser.verbose)
	if parser.verbose {
		fmt.Printf("Done in %v (nodes: %d, segments: %d)\n", time.Since(st), len(network.Nodes), len(network.Segments))
	}
	return network, nil
}
