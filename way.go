package cityflow

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// osmWay is a road way with tags already interpreted
type osmWay struct {
	ID       osm.WayID
	Nodes    []osm.NodeID
	name     string
	highway  HighwayType
	class    RoadClass
	oneway   bool
	reversed bool
	// Lanes per direction
	lanes    int
	maxSpeed float64
}

var (
	mphRegExp   = regexp.MustCompile(`^(\d+\.?\d*)\s*mph$`)
	kmhRegExp   = regexp.MustCompile(`^(\d+\.?\d*)\s*(km/h|kmh|kph)?$`)
	lanesRegExp = regexp.MustCompile(`^\d+`)
)

const mphToKmh = 1.609344

// newOSMWay interprets tags of OSM way. Returns nil when way is not an allowed road.
func newOSMWay(way *osm.Way, allowed map[HighwayType]struct{}, verbose bool) *osmWay {
	highway := getHighwayType(way.Tags.Find("highway"))
	if highway == 0 {
		return nil
	}
	if _, ok := allowed[highway]; !ok {
		return nil
	}
	if way.Tags.Find("area") == "yes" || len(way.Nodes) < 2 {
		return nil
	}
	prepared := &osmWay{
		ID:      way.ID,
		Nodes:   make([]osm.NodeID, len(way.Nodes)),
		name:    way.Tags.Find("name"),
		highway: highway,
		class:   roadClassByHighway[highway],
		oneway:  onewayDefaultByHighway[highway],
	}
	for i, wayNode := range way.Nodes {
		prepared.Nodes[i] = wayNode.ID
	}
	prepared.processOneway(way.Tags.Find("oneway"), way.Tags.Find("junction"))
	prepared.processLanes(way.Tags, verbose)
	prepared.processMaxSpeed(way.Tags.Find("maxspeed"), verbose)
	return prepared
}

func (way *osmWay) processOneway(onewayText, junction string) {
	if _, ok := junctionTypes[junction]; ok {
		way.oneway = true
	}
	switch onewayText {
	case "yes", "1", "true":
		way.oneway = true
	case "no", "0", "false":
		way.oneway = false
	case "-1", "reverse":
		way.oneway = true
		way.reversed = true
	}
}

func (way *osmWay) processLanes(tags osm.Tags, verbose bool) {
	parse := func(tag string) int {
		text := tags.Find(tag)
		if text == "" {
			return 0
		}
		num := lanesRegExp.FindString(strings.TrimSpace(text))
		value, err := strconv.Atoi(num)
		if err != nil || value < 0 {
			if verbose {
				fmt.Printf("[WARNING]: Provided `%s` tag value should be an integer. Got '%s'. Way ID: '%d'\n", tag, text, way.ID)
			}
			return 0
		}
		return value
	}
	if way.oneway {
		way.lanes = parse("lanes")
		return
	}
	forward := parse("lanes:forward")
	backward := parse("lanes:backward")
	switch {
	case forward > 0 && backward > 0:
		way.lanes = int(math.Min(float64(forward), float64(backward)))
	case forward > 0:
		way.lanes = forward
	case backward > 0:
		way.lanes = backward
	default:
		total := parse("lanes")
		if total > 0 {
			way.lanes = (total + 1) / 2
		}
	}
}

func (way *osmWay) processMaxSpeed(maxSpeed string, verbose bool) {
	maxSpeed = strings.TrimSpace(maxSpeed)
	if maxSpeed == "" {
		return
	}
	factor := 1.0
	match := kmhRegExp.FindStringSubmatch(maxSpeed)
	if match == nil {
		match = mphRegExp.FindStringSubmatch(maxSpeed)
		factor = mphToKmh
	}
	if match == nil {
		if verbose {
			fmt.Printf("[WARNING]: Can't interpret `maxspeed` tag value '%s'. Way ID: '%d'\n", maxSpeed, way.ID)
		}
		return
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		if verbose {
			fmt.Printf("[WARNING]: Provided `maxspeed` tag value should be a float. Got '%s'. Way ID: '%d'\n", maxSpeed, way.ID)
		}
		return
	}
	way.maxSpeed = value * factor
}

// orderedNodes returns nodes in the direction of traffic
func (way *osmWay) orderedNodes() []osm.NodeID {
	if !way.reversed {
		return way.Nodes
	}
	nodes := make([]osm.NodeID, len(way.Nodes))
	for i := range way.Nodes {
		nodes[i] = way.Nodes[len(way.Nodes)-1-i]
	}
	return nodes
}
