package cityflow

import (
	"container/heap"
	"math"
	"time"

	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

const (
	DEFAULT_MAX_EXPANSIONS = 2000000
	timeCheckInterval      = 256
)

// Planner answers trip requests with A* over a snapshot.
//
// Heuristic is straight-line distance divided by the fastest speed observed in the snapshot,
// so it never overestimates. Among equal cost paths the one with fewer edges wins, then the one
// whose last edge has lower identifier. Planner holds no mutable state and is safe for concurrent use.
type Planner struct {
	maxExpansions int
	maxDuration   time.Duration
}

// NewPlanner returns planner with expansion and time budget. Zero disables the corresponding limit.
func NewPlanner(maxExpansions int, maxDuration time.Duration) *Planner {
	return &Planner{
		maxExpansions: maxExpansions,
		maxDuration:   maxDuration,
	}
}

type searchLabel struct {
	g        float64
	hops     int32
	lastEdge EdgeID
	parent   int32
	arc      int64
	closed   bool
}

// arcView addresses road, overlay and per-query links with a single index space
type arcView struct {
	snap      *Snapshot
	roadCount int64
	overCount int64
	extra     []overlayArc
	extraFrom map[int32][]int32
}

func (view *arcView) link(arc int64) *Link {
	switch {
	case arc < view.roadCount:
		return &view.snap.graph.links[arc]
	case arc < view.roadCount+view.overCount:
		return &view.snap.overlay.links[arc-view.roadCount]
	default:
		return &view.extra[arc-view.roadCount-view.overCount].link
	}
}

func (view *arcView) cost(arc int64) float64 {
	if arc < view.roadCount+view.overCount {
		return view.snap.costs[arc]
	}
	return view.extra[arc-view.roadCount-view.overCount].link.FreeFlowTime
}

// Route finds the cheapest path for request under allowed modes.
//
// A trip either drives all the way or travels without a car. When driving is allowed together
// with walking or transit, both alternatives are searched on the same snapshot and the cheaper
// one is returned (ties go to fewer edges, then to lower last edge).
func (planner *Planner) Route(snap *Snapshot, req TripRequest) (PathResult, error) {
	carless := ModeSet(0)
	for _, mode := range req.Modes.Modes() {
		if mode != MODE_DRIVE {
			carless |= NewModeSet(mode)
		}
	}
	if !req.Modes.Has(MODE_DRIVE) || carless == 0 {
		return planner.search(snap, req, req.Modes)
	}
	driveRes, driveErr := planner.search(snap, req, NewModeSet(MODE_DRIVE))
	carlessRes, carlessErr := planner.search(snap, req, carless)
	switch {
	case driveErr == nil && carlessErr == nil:
		expansions := driveRes.Expansions + carlessRes.Expansions
		best := driveRes
		if preferPath(&carlessRes, &driveRes) {
			best = carlessRes
		}
		best.Expansions = expansions
		return best, nil
	case driveErr == nil:
		return driveRes, nil
	case carlessErr == nil:
		return carlessRes, nil
	case errors.Is(driveErr, ErrTimeout):
		return driveRes, driveErr
	}
	return carlessRes, carlessErr
}

// preferPath reports whether a is strictly better than b under the planner ordering
func preferPath(a, b *PathResult) bool {
	if a.TotalCost != b.TotalCost {
		return a.TotalCost < b.TotalCost
	}
	if len(a.Edges) != len(b.Edges) {
		return len(a.Edges) < len(b.Edges)
	}
	if len(a.Edges) == 0 {
		return false
	}
	return a.Edges[len(a.Edges)-1] < b.Edges[len(b.Edges)-1]
}

// search runs A* for request traversing only links allowed by modes
func (planner *Planner) search(snap *Snapshot, req TripRequest, modes ModeSet) (PathResult, error) {
	result := PathResult{Request: req, Epoch: snap.epoch}
	if err := snap.verify(); err != nil {
		return result, err
	}
	originIdx, ok := snap.graph.NodeIndex(req.Origin)
	if !ok {
		return result, errors.Wrapf(ErrUnknownNode, "origin %d", req.Origin)
	}
	destIdx, ok := snap.graph.NodeIndex(req.Destination)
	if !ok {
		return result, errors.Wrapf(ErrUnknownNode, "destination %d", req.Destination)
	}
	if originIdx == destIdx {
		result.Nodes = []NodeID{req.Origin}
		result.Edges = []EdgeID{}
		result.Kinds = []LinkKind{}
		return result, nil
	}

	view := &arcView{
		snap:      snap,
		roadCount: int64(snap.graph.NumEdges()),
		overCount: int64(snap.overlay.NumLinks()),
	}
	if modes.Has(MODE_TRANSIT) {
		view.extra = snap.overlay.queryArcs(snap.graph, originIdx, destIdx)
		view.extraFrom = make(map[int32][]int32, len(view.extra))
		for i := range view.extra {
			view.extraFrom[view.extra[i].source] = append(view.extraFrom[view.extra[i].source], int32(i))
		}
	}
	allowRoad := modes.allowsKind(LINK_ROAD)

	goal := snap.nodePosition(destIdx)
	heuristic := func(idx int32) float64 {
		if !snap.heuristic {
			return 0
		}
		return planar.Distance(snap.nodePosition(idx), goal) / snap.maxSpeed
	}

	labels := make(map[int32]*searchLabel)
	labels[originIdx] = &searchLabel{parent: -1, arc: -1, lastEdge: math.MinInt64}
	queue := &searchQueue{{node: originIdx, f: heuristic(originIdx), lastEdge: math.MinInt64}}

	relax := func(from int32, fromLabel *searchLabel, to int32, arc int64) {
		link := view.link(arc)
		if !modes.allowsKind(link.Kind) {
			return
		}
		cost := view.cost(arc)
		if math.IsInf(cost, 1) || math.IsNaN(cost) || cost < 0 {
			return
		}
		g := fromLabel.g + cost
		hops := fromLabel.hops + 1
		label, seen := labels[to]
		if seen {
			if label.closed {
				return
			}
			if g > label.g || (g == label.g && (hops > label.hops || (hops == label.hops && link.ID >= label.lastEdge))) {
				return
			}
		} else {
			label = &searchLabel{}
			labels[to] = label
		}
		label.g = g
		label.hops = hops
		label.lastEdge = link.ID
		label.parent = from
		label.arc = arc
		heap.Push(queue, searchItem{node: to, f: g + heuristic(to), g: g, hops: hops, lastEdge: link.ID})
	}

	st := time.Now()
	expansions := 0
	for queue.Len() > 0 {
		item := heap.Pop(queue).(searchItem)
		label := labels[item.node]
		if label.closed || item.g != label.g || item.hops != label.hops || item.lastEdge != label.lastEdge {
			continue
		}
		label.closed = true
		expansions++
		if planner.maxExpansions > 0 && expansions > planner.maxExpansions {
			return result, errors.Wrapf(ErrTimeout, "%d expansions for %s", planner.maxExpansions, req)
		}
		if planner.maxDuration > 0 && expansions%timeCheckInterval == 0 && time.Since(st) > planner.maxDuration {
			return result, errors.Wrapf(ErrTimeout, "%v elapsed for %s", planner.maxDuration, req)
		}
		if item.node == destIdx {
			result.Expansions = expansions
			planner.reconstruct(view, labels, destIdx, &result)
			return result, nil
		}
		if item.node < snap.overlay.base && allowRoad {
			start, end := snap.graph.OutEdges(item.node)
			for pos := start; pos < end; pos++ {
				relax(item.node, label, snap.graph.targets[pos], int64(pos))
			}
		}
		start, end := snap.overlay.offsets[item.node], snap.overlay.offsets[item.node+1]
		for pos := start; pos < end; pos++ {
			relax(item.node, label, snap.overlay.targets[pos], view.roadCount+int64(pos))
		}
		for _, i := range view.extraFrom[item.node] {
			relax(item.node, label, view.extra[i].target, view.roadCount+view.overCount+int64(i))
		}
	}
	return result, errors.Wrapf(ErrNoRoute, "%s", req)
}

func (planner *Planner) reconstruct(view *arcView, labels map[int32]*searchLabel, destIdx int32, result *PathResult) {
	arcs := []int64{}
	nodes := []int32{destIdx}
	for idx := destIdx; labels[idx].parent >= 0; idx = labels[idx].parent {
		arcs = append(arcs, labels[idx].arc)
		nodes = append(nodes, labels[idx].parent)
	}
	result.Edges = make([]EdgeID, len(arcs))
	result.Kinds = make([]LinkKind, len(arcs))
	result.Nodes = make([]NodeID, len(nodes))
	for i := range nodes {
		result.Nodes[i] = view.snap.nodeID(nodes[len(nodes)-1-i])
	}
	for i := range arcs {
		arc := arcs[len(arcs)-1-i]
		link := view.link(arc)
		cost := view.cost(arc)
		result.Edges[i] = link.ID
		result.Kinds[i] = link.Kind
		result.Breakdown.add(link, cost)
	}
	result.TotalCost = labels[destIdx].g
}
