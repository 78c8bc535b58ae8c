package cityflow

import (
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func TestNewGraphCSR(t *testing.T) {
	nodes, segments := NewGridNetwork(3, 3, 100, ROAD_LOCAL)
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	if graph.NumNodes() != 9 {
		t.Errorf("Number of nodes must be %d, but got %d", 9, graph.NumNodes())
	}
	if graph.NumEdges() != 24 {
		t.Errorf("Number of edges must be %d, but got %d", 24, graph.NumEdges())
	}
	idx, ok := graph.NodeIndex(4)
	if !ok {
		t.Errorf("Node 4 must be present")
		return
	}
	start, end := graph.OutEdges(idx)
	correctEdges := []EdgeID{7, 11, 14, 16}
	correctTargets := []NodeID{1, 3, 5, 7}
	if int(end-start) != len(correctEdges) {
		t.Errorf("Node 4 must have %d out edges, but got %d", len(correctEdges), end-start)
		return
	}
	for i, pos := 0, start; pos < end; i, pos = i+1, pos+1 {
		link := graph.LinkAt(pos)
		if link.ID != correctEdges[i] {
			t.Errorf("Edge #%d of node 4 must be %d, but got %d", i, correctEdges[i], link.ID)
		}
		if graph.NodeAt(graph.TargetAt(pos)).ID != correctTargets[i] {
			t.Errorf("Target #%d of node 4 must be %d, but got %d", i, correctTargets[i], graph.NodeAt(graph.TargetAt(pos)).ID)
		}
		if link.Source != 4 {
			t.Errorf("Source of edge %d must be 4, but got %d", link.ID, link.Source)
		}
	}
	for i := int32(0); i < int32(graph.NumNodes()); i++ {
		start, end := graph.OutEdges(i)
		for pos := start + 1; pos < end; pos++ {
			if graph.LinkAt(pos-1).ID >= graph.LinkAt(pos).ID {
				t.Errorf("Row of node %d must be ordered by edge identifier", graph.NodeAt(i).ID)
			}
		}
	}
	pos, ok := graph.EdgePosition(BackwardEdgeID(5))
	if !ok || graph.LinkAt(pos).Target != 3 {
		t.Errorf("Backward edge of segment 5 must lead to node 3")
	}
}

func TestNewGraphValidation(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{100, 0}},
		{ID: 3, Position: orb.Point{100, 0}},
	}
	cases := []struct {
		name     string
		nodes    []Node
		segments []Segment
	}{
		{"dangling", nodes, []Segment{{ID: 1, Source: 1, Target: 42}}},
		{"duplicate segment", nodes, []Segment{{ID: 1, Source: 1, Target: 2}, {ID: 1, Source: 2, Target: 1}}},
		{"zero length", nodes, []Segment{{ID: 1, Source: 2, Target: 3}}},
		{"negative lanes", nodes, []Segment{{ID: 1, Source: 1, Target: 2, Lanes: -1}}},
		{"unknown class", nodes, []Segment{{ID: 1, Source: 1, Target: 2, Class: RoadClass(42)}}},
		{"duplicate node", append(append([]Node{}, nodes...), Node{ID: 1}), []Segment{}},
		{"negative node", []Node{{ID: -5}}, []Segment{}},
	}
	for _, c := range cases {
		_, err := NewGraph(c.nodes, c.segments)
		if err == nil {
			t.Errorf("Case '%s' must be rejected", c.name)
			continue
		}
		if !IsValidationError(err) {
			t.Errorf("Case '%s' must give validation error, but got %v", c.name, err)
		}
	}
}

func TestNewGraphDefaults(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{300, 400}},
	}
	graph, err := NewGraph(nodes, []Segment{{ID: 10, Source: 1, Target: 2, Oneway: true}})
	if err != nil {
		t.Error(err)
		return
	}
	seg, _ := graph.Segment(10)
	if seg.Class != ROAD_LOCAL {
		t.Errorf("Default class must be %s, but got %s", ROAD_LOCAL, seg.Class)
	}
	if seg.LengthMeters() != 500 {
		t.Errorf("Length of straight geometry must be %v, but got %v", 500.0, seg.LengthMeters())
	}
	if graph.NumEdges() != 1 {
		t.Errorf("Oneway segment must give %d edge, but got %d", 1, graph.NumEdges())
	}
	node, _ := graph.Node(2)
	if node.Kind != NODE_INTERSECTION {
		t.Errorf("Default node kind must be %s, but got %s", NODE_INTERSECTION, node.Kind)
	}
	nearest, ok := graph.NearestNode(orb.Point{290, 380})
	if !ok || nearest.ID != 2 {
		t.Errorf("Nearest node must be 2, but got %v", nearest)
	}
}

func TestApplyEditsRejected(t *testing.T) {
	nodes, segments := NewGridNetwork(3, 3, 100, ROAD_LOCAL)
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	edits := []Edit{
		RemoveSegmentEdit(100),
		AddSegmentEdit(Segment{ID: 0, Source: 0, Target: 4}),
		AddSegmentEdit(Segment{ID: 50, Source: 0, Target: 404}),
		AddNodeEdit(Node{ID: 4}),
		AddNodeEdit(Node{ID: -4}),
		{Operation: EDIT_UPGRADE_SEGMENT, Segment: Segment{ID: 3}},
		{Operation: EditOperation(77)},
	}
	next, report := graph.ApplyEdits(edits, 0.1)
	if next != graph {
		t.Errorf("Graph must be left as is when every edit is rejected")
	}
	if len(report.Rejected) != len(edits) {
		t.Errorf("Number of rejected edits must be %d, but got %d", len(edits), len(report.Rejected))
	}
	for _, rejection := range report.Rejected {
		if !IsValidationError(rejection.Err) {
			t.Errorf("Rejection must carry validation error, but got %v", rejection.Err)
		}
	}
	if next.Version() != graph.Version() {
		t.Errorf("Version must be %d, but got %d", graph.Version(), next.Version())
	}
}

func TestApplyEditsLeavesReceiverUntouched(t *testing.T) {
	nodes, segments := NewGridNetwork(3, 3, 100, ROAD_LOCAL)
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	next, report := graph.ApplyEdits([]Edit{
		RemoveSegmentEdit(7),
		UpgradeSegmentEdit(0, ROAD_ARTERIAL, 0),
		AddSegmentEdit(Segment{ID: 7, Source: 0, Target: 0}),
	}, 0.1)
	if len(report.Applied) != 2 || len(report.Rejected) != 1 {
		t.Errorf("Two edits must be applied and one rejected, but got %d and %d", len(report.Applied), len(report.Rejected))
	}
	if next.Version() != graph.Version()+1 {
		t.Errorf("Version must be %d, but got %d", graph.Version()+1, next.Version())
	}
	if _, ok := graph.Segment(7); !ok {
		t.Errorf("Previous graph must keep removed segment")
	}
	if graph.NumEdges() != 24 {
		t.Errorf("Previous graph must keep %d edges, but got %d", 24, graph.NumEdges())
	}
	if _, ok := next.Segment(7); ok {
		t.Errorf("Segment 7 must be removed")
	}
	if _, ok := next.EdgePosition(ForwardEdgeID(7)); ok {
		t.Errorf("Edge %d must be removed", ForwardEdgeID(7))
	}
	upgraded, _ := next.Segment(0)
	if upgraded.Class != ROAD_ARTERIAL || upgraded.Capacity() != 3600 {
		t.Errorf("Segment 0 must become arterial with capacity %v, but got %s with %v", 3600.0, upgraded.Class, upgraded.Capacity())
	}
	changes := map[EdgeID]CapacityChange{}
	for _, change := range report.CapacityChanges {
		changes[change.Edge] = change
	}
	if change := changes[ForwardEdgeID(0)]; change.Before != 1000 || change.After != 3600 {
		t.Errorf("Capacity change of edge 0 must be 1000 -> 3600, but got %v -> %v", change.Before, change.After)
	}
	if change := changes[ForwardEdgeID(7)]; change.Before != 1000 || change.After != 0 {
		t.Errorf("Capacity change of edge 14 must be 1000 -> 0, but got %v -> %v", change.Before, change.After)
	}
}

func TestApplyEditsIncrementalMatchesFull(t *testing.T) {
	nodes, segments := NewGridNetwork(6, 6, 120, ROAD_COLLECTOR)
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	edits := []Edit{
		RemoveSegmentEdit(3),
		RemoveSegmentEdit(17),
		UpgradeSegmentEdit(8, ROAD_ARTERIAL, 3),
		CloseSegmentEdit(21, true),
		AddSegmentEdit(Segment{ID: 1000, Source: 0, Target: 7, Class: ROAD_LOCAL}),
		AddSegmentEdit(Segment{ID: 1001, Source: 20, Target: 14, Oneway: true}),
	}
	incremental, incReport := graph.ApplyEdits(edits, 1.0)
	full, fullReport := graph.ApplyEdits(edits, 0)
	if incReport.FullRebuild {
		t.Errorf("Threshold 1.0 must give incremental rebuild")
	}
	if !fullReport.FullRebuild {
		t.Errorf("Threshold 0 must give full rebuild")
	}
	if !reflect.DeepEqual(incremental.offsets, full.offsets) {
		t.Errorf("Offsets must match: %v vs %v", incremental.offsets, full.offsets)
	}
	if !reflect.DeepEqual(incremental.targets, full.targets) {
		t.Errorf("Targets must match: %v vs %v", incremental.targets, full.targets)
	}
	if !reflect.DeepEqual(incremental.edgeIDs, full.edgeIDs) {
		t.Errorf("Edge identifiers must match: %v vs %v", incremental.edgeIDs, full.edgeIDs)
	}
	if !reflect.DeepEqual(incremental.links, full.links) {
		t.Errorf("Links must match")
	}
	if !reflect.DeepEqual(incReport.CapacityChanges, fullReport.CapacityChanges) {
		t.Errorf("Capacity changes must match: %v vs %v", incReport.CapacityChanges, fullReport.CapacityChanges)
	}
}

func TestApplyEditsAddNode(t *testing.T) {
	nodes, segments := NewGridNetwork(2, 2, 100, ROAD_LOCAL)
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	next, report := graph.ApplyEdits([]Edit{
		AddSegmentEdit(Segment{ID: 20, Source: 3, Target: 10}),
		AddNodeEdit(Node{ID: 10, Position: orb.Point{200, 100}}),
		AddSegmentEdit(Segment{ID: 21, Source: 3, Target: 10}),
	}, 0.5)
	if len(report.Rejected) != 1 {
		t.Errorf("Segment to not yet added node must be rejected, but got %d rejections", len(report.Rejected))
	}
	if !report.FullRebuild {
		t.Errorf("Adding node must give full rebuild")
	}
	if next.NumNodes() != 5 {
		t.Errorf("Number of nodes must be %d, but got %d", 5, next.NumNodes())
	}
	nearest, ok := next.NearestNode(orb.Point{210, 90})
	if !ok || nearest.ID != 10 {
		t.Errorf("Nearest node must be the added one, but got %v", nearest)
	}
	idx, _ := next.NodeIndex(10)
	start, end := next.OutEdges(idx)
	if end-start != 1 || next.LinkAt(start).ID != BackwardEdgeID(21) {
		t.Errorf("Added node must have single out edge %d", BackwardEdgeID(21))
	}
}
