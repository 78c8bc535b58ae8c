package cityflow

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// Graph is an immutable road network in compressed sparse row layout.
//
// Out edges of node with index i occupy positions [offsets[i], offsets[i+1]) of targets, edgeIDs and links.
// Rows are ordered by EdgeID. Graph is never mutated after construction: edits produce a new Graph.
type Graph struct {
	version uint64

	nodes    []Node
	nodeIdx  map[NodeID]int32
	segments map[SegmentID]Segment

	offsets []int32
	targets []int32
	edgeIDs []EdgeID
	links   []Link
	edgePos map[EdgeID]int32

	spatial *quadtree.Quadtree
}

// NewGraph validates nodes and segments and builds CSR arrays
func NewGraph(nodes []Node, segments []Segment) (*Graph, error) {
	graph := &Graph{
		version:  1,
		nodes:    make([]Node, len(nodes)),
		nodeIdx:  make(map[NodeID]int32, len(nodes)),
		segments: make(map[SegmentID]Segment, len(segments)),
	}
	copy(graph.nodes, nodes)
	sort.Slice(graph.nodes, func(i, j int) bool {
		return graph.nodes[i].ID < graph.nodes[j].ID
	})
	for i := range graph.nodes {
		node := &graph.nodes[i]
		if node.ID < 0 {
			return nil, newValidationError(nil, "negative node id %d", node.ID)
		}
		if i > 0 && graph.nodes[i-1].ID == node.ID {
			return nil, newValidationError(nil, "duplicate node id %d", node.ID)
		}
		if node.Kind == 0 {
			node.Kind = NODE_INTERSECTION
		}
		graph.nodeIdx[node.ID] = int32(i)
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	for i := range sorted {
		seg := graph.normalizeSegment(sorted[i])
		if reason := graph.validateSegment(&seg, true); reason != "" {
			return nil, newValidationError(nil, "segment %d: %s", seg.ID, reason)
		}
		graph.segments[seg.ID] = seg
	}
	graph.buildCSR()
	graph.buildSpatial()
	return graph, nil
}

// normalizeSegment fills optional attributes: class defaults to local, missing geometry becomes straight line
func (graph *Graph) normalizeSegment(seg Segment) Segment {
	if seg.Class == 0 {
		seg.Class = ROAD_LOCAL
	}
	if len(seg.Geom) == 0 {
		sourceIdx, okSource := graph.nodeIdx[seg.Source]
		targetIdx, okTarget := graph.nodeIdx[seg.Target]
		if okSource && okTarget {
			seg.Geom = straightGeom(graph.nodes[sourceIdx].Position, graph.nodes[targetIdx].Position)
		}
	}
	return seg
}

// validateSegment returns reason of rejection or empty string. When isNew is set identifier must be unused.
func (graph *Graph) validateSegment(seg *Segment, isNew bool) string {
	if seg.ID < 0 {
		return "negative segment id"
	}
	if _, ok := graph.segments[seg.ID]; ok && isNew {
		return "duplicate segment id"
	}
	if _, ok := graph.nodeIdx[seg.Source]; !ok {
		return "dangling source node"
	}
	if _, ok := graph.nodeIdx[seg.Target]; !ok {
		return "dangling target node"
	}
	if !seg.Class.valid() {
		return "unknown road class"
	}
	if seg.Lanes < 0 {
		return "negative lanes"
	}
	if seg.CapacityOverride < 0 {
		return "negative capacity"
	}
	if seg.SpeedLimit < 0 {
		return "negative speed limit"
	}
	if len(seg.Geom) < 2 || seg.LengthMeters() <= 0 {
		return "zero-length geometry"
	}
	if seg.Source == seg.Target && seg.Capacity() <= 0 {
		return "self-loop with zero capacity"
	}
	return ""
}

// buildCSR (re)creates every row from segments
func (graph *Graph) buildCSR() {
	ids := graph.sortedSegmentIDs()
	links := make([]Link, 0, len(ids)*2)
	for _, id := range ids {
		seg := graph.segments[id]
		links = append(links, roadLinksFromSegment(&seg)...)
	}
	sources := make([]int32, len(links))
	for i := range links {
		sources[i] = graph.nodeIdx[links[i].Source]
	}
	order := make([]int, len(links))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if sources[a] != sources[b] {
			return sources[a] < sources[b]
		}
		return links[a].ID < links[b].ID
	})

	graph.offsets = make([]int32, len(graph.nodes)+1)
	graph.targets = make([]int32, len(links))
	graph.edgeIDs = make([]EdgeID, len(links))
	graph.links = make([]Link, len(links))
	for pos, i := range order {
		graph.offsets[sources[i]+1]++
		graph.links[pos] = links[i]
		graph.edgeIDs[pos] = links[i].ID
		graph.targets[pos] = graph.nodeIdx[links[i].Target]
	}
	for i := 1; i < len(graph.offsets); i++ {
		graph.offsets[i] += graph.offsets[i-1]
	}
	graph.indexEdges()
}

func (graph *Graph) indexEdges() {
	graph.edgePos = make(map[EdgeID]int32, len(graph.edgeIDs))
	for pos, id := range graph.edgeIDs {
		graph.edgePos[id] = int32(pos)
	}
}

type nodePointer struct {
	idx int32
	pt  orb.Point
}

func (np nodePointer) Point() orb.Point {
	return np.pt
}

func (graph *Graph) buildSpatial() {
	graph.spatial = nil
	if len(graph.nodes) == 0 {
		return
	}
	points := make(orb.MultiPoint, len(graph.nodes))
	for i := range graph.nodes {
		points[i] = graph.nodes[i].Position
	}
	graph.spatial = quadtree.New(points.Bound().Pad(1))
	for i := range graph.nodes {
		// Bound contains every point so Add can't fail here
		_ = graph.spatial.Add(nodePointer{idx: int32(i), pt: graph.nodes[i].Position})
	}
}

func (graph *Graph) sortedSegmentIDs() []SegmentID {
	ids := make([]SegmentID, 0, len(graph.segments))
	for id := range graph.segments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// Version is increased on every applied edit batch
func (graph *Graph) Version() uint64 {
	return graph.version
}

func (graph *Graph) NumNodes() int {
	return len(graph.nodes)
}

func (graph *Graph) NumEdges() int {
	return len(graph.edgeIDs)
}

// NodeIndex returns dense index of a node
func (graph *Graph) NodeIndex(id NodeID) (int32, bool) {
	idx, ok := graph.nodeIdx[id]
	return idx, ok
}

// NodeAt returns node by dense index
func (graph *Graph) NodeAt(idx int32) *Node {
	return &graph.nodes[idx]
}

// Node returns node by identifier
func (graph *Graph) Node(id NodeID) (Node, bool) {
	idx, ok := graph.nodeIdx[id]
	if !ok {
		return Node{}, false
	}
	return graph.nodes[idx], true
}

// Nodes returns nodes sorted by identifier. Returned slice must not be modified.
func (graph *Graph) Nodes() []Node {
	return graph.nodes
}

// OutEdges returns range of CSR positions for out edges of node index
func (graph *Graph) OutEdges(idx int32) (int32, int32) {
	return graph.offsets[idx], graph.offsets[idx+1]
}

// LinkAt returns link stored at CSR position
func (graph *Graph) LinkAt(pos int32) *Link {
	return &graph.links[pos]
}

// TargetAt returns target node index of edge stored at CSR position
func (graph *Graph) TargetAt(pos int32) int32 {
	return graph.targets[pos]
}

// EdgePosition returns CSR position of an edge
func (graph *Graph) EdgePosition(id EdgeID) (int32, bool) {
	pos, ok := graph.edgePos[id]
	return pos, ok
}

// Segment returns segment by identifier
func (graph *Graph) Segment(id SegmentID) (Segment, bool) {
	seg, ok := graph.segments[id]
	return seg, ok
}

// Segments returns copy of all segments sorted by identifier
func (graph *Graph) Segments() []Segment {
	ids := graph.sortedSegmentIDs()
	segments := make([]Segment, len(ids))
	for i, id := range ids {
		segments[i] = graph.segments[id]
	}
	return segments
}

// NearestNode returns node closest to the given planar point
func (graph *Graph) NearestNode(pt orb.Point) (Node, bool) {
	if graph.spatial == nil {
		return Node{}, false
	}
	found := graph.spatial.Find(pt)
	if found == nil {
		return Node{}, false
	}
	return graph.nodes[found.(nodePointer).idx], true
}
