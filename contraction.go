package cityflow

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/LdDl/ch"
	"github.com/pkg/errors"
)

// ContractionIndex is contraction hierarchy over drive layer of a snapshot, built with committed costs.
// It answers long drive-only queries faster than A*; A* stays the reference for every other query.
type ContractionIndex struct {
	mu    sync.Mutex
	graph ch.Graph
	// cheapest edge between consecutive vertices, used to restore edge identifiers
	best map[[2]NodeID]EdgeID
	cost map[EdgeID]float64
}

// BuildContractionIndex prepares hierarchy for road links of the snapshot
func BuildContractionIndex(snap *Snapshot, verbose bool) (*ContractionIndex, error) {
	st := time.Now()
	if verbose {
		fmt.Printf("Preparing contraction hierarchies...")
	}
	index := &ContractionIndex{
		graph: ch.Graph{},
		best:  make(map[[2]NodeID]EdgeID),
		cost:  make(map[EdgeID]float64),
	}
	for i := range snap.graph.nodes {
		err := index.graph.CreateVertex(int64(snap.graph.nodes[i].ID))
		if err != nil {
			return nil, errors.Wrap(err, "Can't create vertex")
		}
	}
	weights := make(map[[2]NodeID]float64)
	for pos := range snap.graph.links {
		cost := snap.costs[pos]
		if math.IsInf(cost, 1) {
			continue
		}
		link := &snap.graph.links[pos]
		key := [2]NodeID{link.Source, link.Target}
		current, ok := weights[key]
		if ok && (cost > current || (cost == current && link.ID > index.best[key])) {
			continue
		}
		weights[key] = cost
		index.best[key] = link.ID
		index.cost[link.ID] = cost
	}
	for _, id := range snap.graph.edgeIDs {
		link := &snap.graph.links[snap.graph.edgePos[id]]
		key := [2]NodeID{link.Source, link.Target}
		if index.best[key] != id {
			continue
		}
		err := index.graph.AddEdge(int64(link.Source), int64(link.Target), weights[key])
		if err != nil {
			return nil, errors.Wrap(err, "Can't add edge")
		}
	}
	index.graph.PrepareContractionHierarchies()
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
	}
	return index, nil
}

// ShortestPath returns cost and edges of the cheapest drive path
func (index *ContractionIndex) ShortestPath(source, target NodeID) (float64, []EdgeID, error) {
	if source == target {
		return 0, []EdgeID{}, nil
	}
	index.mu.Lock()
	cost, vertices := index.graph.ShortestPath(int64(source), int64(target))
	index.mu.Unlock()
	if cost < 0 || len(vertices) < 2 {
		return 0, nil, errors.Wrapf(ErrNoRoute, "%d -> %d", source, target)
	}
	edges := make([]EdgeID, 0, len(vertices)-1)
	for i := 1; i < len(vertices); i++ {
		id, ok := index.best[[2]NodeID{NodeID(vertices[i-1]), NodeID(vertices[i])}]
		if !ok {
			return 0, nil, errors.Wrapf(ErrSnapshotInconsistency, "no edge between %d and %d", vertices[i-1], vertices[i])
		}
		edges = append(edges, id)
	}
	return cost, edges, nil
}

// routeDrive answers drive-only request with the index, filling result the way the planner does
func (index *ContractionIndex) routeDrive(snap *Snapshot, req TripRequest) (PathResult, error) {
	result := PathResult{Request: req, Epoch: snap.epoch}
	_, edges, err := index.ShortestPath(req.Origin, req.Destination)
	if err != nil {
		return result, err
	}
	result.Edges = edges
	result.Kinds = make([]LinkKind, len(edges))
	result.Nodes = make([]NodeID, 0, len(edges)+1)
	result.Nodes = append(result.Nodes, req.Origin)
	for i, id := range edges {
		link := snap.graph.LinkAt(snap.graph.edgePos[id])
		result.Kinds[i] = LINK_ROAD
		result.Nodes = append(result.Nodes, link.Target)
		result.TotalCost += index.cost[id]
		result.Breakdown.add(link, index.cost[id])
	}
	return result, nil
}
