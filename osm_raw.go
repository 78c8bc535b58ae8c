package cityflow

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

type readSeeker = io.ReadSeeker

type OSMScanner interface {
	Scan() bool
	Close() error
	Err() error
	Object() osm.Object
}

type osmNode struct {
	ID       osm.NodeID
	lon      float64
	lat      float64
	name     string
	isStop   bool
	useCount int
}

type osmDataRaw struct {
	ways  []*osmWay
	nodes map[osm.NodeID]*osmNode
}

func newScanner(reader readSeeker, format string) (OSMScanner, error) {
	switch format {
	case "xml", "osm":
		return osmxml.New(context.Background(), reader), nil
	case "pbf":
		return osmpbf.New(context.Background(), reader, 4), nil
	default:
		return nil, fmt.Errorf("OSM format '%s' is not handled yet", format)
	}
}

func isStopNode(tags osm.Tags) bool {
	for key, values := range stopTags {
		if _, ok := values[tags.Find(key)]; ok {
			return true
		}
	}
	return false
}

func readOSM(reader readSeeker, format string, allowed map[HighwayType]struct{}, verbose bool) (*osmDataRaw, error) {
	/* Process ways */
	if verbose {
		fmt.Printf("\tProcessing ways... ")
	}
	st := time.Now()
	data := &osmDataRaw{
		nodes: make(map[osm.NodeID]*osmNode),
	}
	nodesSeen := make(map[osm.NodeID]struct{})
	{
		scannerWays, err := newScanner(reader, format)
		if err != nil {
			return nil, err
		}
		defer scannerWays.Close()
		for scannerWays.Scan() {
			obj := scannerWays.Object()
			if obj.ObjectID().Type() != "way" {
				continue
			}
			way := newOSMWay(obj.(*osm.Way), allowed, verbose)
			if way == nil {
				continue
			}
			data.ways = append(data.ways, way)
			for _, nodeID := range way.Nodes {
				nodesSeen[nodeID] = struct{}{}
			}
		}
		if err := scannerWays.Err(); err != nil {
			return nil, errors.Wrap(err, "Scanner error on Ways")
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
	}

	_, err := reader.Seek(0, io.SeekStart)
	if err != nil {
		return nil, errors.Wrap(err, "Can't repeat seeking after ways scanning")
	}

	/* Process nodes */
	if verbose {
		fmt.Printf("\tProcessing nodes... ")
	}
	st = time.Now()
	{
		scannerNodes, err := newScanner(reader, format)
		if err != nil {
			return nil, err
		}
		defer scannerNodes.Close()
		for scannerNodes.Scan() {
			obj := scannerNodes.Object()
			if obj.ObjectID().Type() != "node" {
				continue
			}
			node := obj.(*osm.Node)
			if _, ok := nodesSeen[node.ID]; !ok {
				continue
			}
			data.nodes[node.ID] = &osmNode{
				ID:     node.ID,
				lon:    node.Lon,
				lat:    node.Lat,
				name:   node.Tags.Find("name"),
				isStop: isStopNode(node.Tags),
			}
		}
		if err := scannerNodes.Err(); err != nil {
			return nil, errors.Wrap(err, "Scanner error on Nodes")
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tWays: %d, nodes: %d\n", len(data.ways), len(data.nodes))
	}
	return data, nil
}

// prepareNetwork splits ways at shared nodes and stops, projects geometry and returns nodes and segments
func (data *osmDataRaw) prepareNetwork(refLat float64, startSegmentID SegmentID, verbose bool) *ImportedNetwork {
	if refLat == 0 && len(data.nodes) > 0 {
		for _, node := range data.nodes {
			refLat += node.lat
		}
		refLat /= float64(len(data.nodes))
	}
	proj := NewProjection(refLat)

	sort.Slice(data.ways, func(i, j int) bool {
		return data.ways[i].ID < data.ways[j].ID
	})

	// Drop references to nodes which are absent in extract
	for _, way := range data.ways {
		kept := way.Nodes[:0]
		for _, nodeID := range way.Nodes {
			if _, ok := data.nodes[nodeID]; ok {
				kept = append(kept, nodeID)
			} else if verbose {
				fmt.Printf("[WARNING]: Missing node with id: %d. Way ID: '%d'\n", nodeID, way.ID)
			}
		}
		way.Nodes = kept
	}

	for _, way := range data.ways {
		for i, nodeID := range way.Nodes {
			if i == 0 || i == len(way.Nodes)-1 {
				data.nodes[nodeID].useCount += 2
			} else {
				data.nodes[nodeID].useCount++
			}
		}
	}

	network := &ImportedNetwork{
		Projection: proj,
	}
	used := make(map[osm.NodeID]struct{})
	nextID := startSegmentID
	for _, way := range data.ways {
		nodes := way.orderedNodes()
		if len(nodes) < 2 {
			continue
		}
		source := nodes[0]
		geom := orb.LineString{proj.ToPlanar(data.nodes[source].point())}
		for i := 1; i < len(nodes); i++ {
			node := data.nodes[nodes[i]]
			geom = append(geom, proj.ToPlanar(node.point()))
			if i != len(nodes)-1 && node.useCount < 2 && !node.isStop {
				continue
			}
			if planar.Length(geom) <= 0 {
				if verbose {
					fmt.Printf("[WARNING]: Zero-length piece between nodes %d and %d. Way ID: '%d'\n", source, node.ID, way.ID)
				}
			} else {
				network.Segments = append(network.Segments, Segment{
					ID:         nextID,
					Source:     NodeID(source),
					Target:     NodeID(node.ID),
					Class:      way.class,
					Lanes:      way.lanes,
					Oneway:     way.oneway,
					SpeedLimit: way.maxSpeed,
					Name:       way.name,
					Geom:       geom,
				})
				nextID++
				used[source] = struct{}{}
				used[node.ID] = struct{}{}
			}
			source = node.ID
			geom = orb.LineString{geom[len(geom)-1]}
		}
	}

	network.Nodes = make([]Node, 0, len(used))
	for nodeID := range used {
		node := data.nodes[nodeID]
		kind := NODE_INTERSECTION
		if node.isStop {
			kind = NODE_STOP
		}
		network.Nodes = append(network.Nodes, Node{
			ID:       NodeID(nodeID),
			Kind:     kind,
			Position: proj.ToPlanar(node.point()),
			Name:     node.name,
		})
	}
	sort.Slice(network.Nodes, func(i, j int) bool {
		return network.Nodes[i].ID < network.Nodes[j].ID
	})
	return network
}

func (node *osmNode) point() orb.Point {
	return orb.Point{node.lon, node.lat}
}
