package cityflow

import (
	"fmt"
	"sort"
)

type EditOperation uint16

const (
	EDIT_ADD_SEGMENT = EditOperation(iota + 1)
	EDIT_REMOVE_SEGMENT
	EDIT_UPGRADE_SEGMENT
	EDIT_ADD_NODE
)

var editOperationNames = [...]string{"add_segment", "remove_segment", "upgrade_segment", "add_node"}

func (iotaIdx EditOperation) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(editOperationNames) {
		return "undefined"
	}
	return editOperationNames[iotaIdx-1]
}

func (iotaIdx EditOperation) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *EditOperation) UnmarshalText(text []byte) error {
	for i, name := range editOperationNames {
		if name == string(text) {
			*iotaIdx = EditOperation(i + 1)
			return nil
		}
	}
	return fmt.Errorf("Unknown edit operation '%s'", string(text))
}

// Edit is a topology change queued by the player or a tool.
//
// Add uses Segment, remove and upgrade use Segment.ID (upgrade additionally uses Patch), add node uses Node.
type Edit struct {
	Operation EditOperation `json:"operation"`
	Segment   Segment       `json:"segment"`
	Patch     *SegmentPatch `json:"patch,omitempty"`
	Node      Node          `json:"node"`
}

func (edit *Edit) String() string {
	switch edit.Operation {
	case EDIT_ADD_NODE:
		return fmt.Sprintf("%s %d", edit.Operation, edit.Node.ID)
	default:
		return fmt.Sprintf("%s %d", edit.Operation, edit.Segment.ID)
	}
}

func AddSegmentEdit(seg Segment) Edit {
	return Edit{Operation: EDIT_ADD_SEGMENT, Segment: seg}
}

func RemoveSegmentEdit(id SegmentID) Edit {
	return Edit{Operation: EDIT_REMOVE_SEGMENT, Segment: Segment{ID: id}}
}

func AddNodeEdit(node Node) Edit {
	return Edit{Operation: EDIT_ADD_NODE, Node: node}
}

func PatchSegmentEdit(id SegmentID, patch SegmentPatch) Edit {
	return Edit{Operation: EDIT_UPGRADE_SEGMENT, Segment: Segment{ID: id}, Patch: &patch}
}

// UpgradeSegmentEdit changes class and lanes of a segment. Lanes <= 0 means default of the new class.
func UpgradeSegmentEdit(id SegmentID, class RoadClass, lanes int) Edit {
	if lanes < 0 {
		lanes = 0
	}
	return PatchSegmentEdit(id, SegmentPatch{Class: &class, Lanes: &lanes})
}

// CloseSegmentEdit closes (or reopens) a segment without removing it
func CloseSegmentEdit(id SegmentID, closed bool) Edit {
	return PatchSegmentEdit(id, SegmentPatch{Closed: &closed})
}

// CapacityChange describes capacity of a directed edge before and after an edit batch.
// Zero before means the edge is new, zero after means it was removed or closed.
type CapacityChange struct {
	Edge   EdgeID  `json:"edge"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

type EditRejection struct {
	Edit Edit  `json:"edit"`
	Err  error `json:"-"`
}

// EditReport summarizes application of an edit batch
type EditReport struct {
	Applied         []Edit           `json:"applied"`
	Rejected        []EditRejection  `json:"rejected"`
	FullRebuild     bool             `json:"full_rebuild"`
	RowsRebuilt     int              `json:"rows_rebuilt"`
	CapacityChanges []CapacityChange `json:"capacity_changes"`
}

// ApplyEdits validates and applies edits returning a new graph. Receiver is left untouched.
//
// Rejected edits do not change anything. When number of affected rows exceeds fullRebuildThreshold
// (as fraction of nodes), or nodes were added, every row is rebuilt; otherwise only affected rows are.
func (graph *Graph) ApplyEdits(edits []Edit, fullRebuildThreshold float64) (*Graph, *EditReport) {
	report := &EditReport{}
	if len(edits) == 0 {
		return graph, report
	}
	next := &Graph{
		version:  graph.version,
		nodes:    graph.nodes,
		nodeIdx:  graph.nodeIdx,
		segments: make(map[SegmentID]Segment, len(graph.segments)),
		spatial:  graph.spatial,
	}
	for id, seg := range graph.segments {
		next.segments[id] = seg
	}
	nodesCopied := false
	touched := make(map[SegmentID]struct{})

	for i := range edits {
		edit := edits[i]
		switch edit.Operation {
		case EDIT_ADD_NODE:
			node := edit.Node
			if node.ID < 0 {
				report.reject(edit, "negative node id")
				continue
			}
			if _, ok := next.nodeIdx[node.ID]; ok {
				report.reject(edit, "duplicate node id")
				continue
			}
			if node.Kind == 0 {
				node.Kind = NODE_INTERSECTION
			}
			if !nodesCopied {
				next.nodes = append(make([]Node, 0, len(graph.nodes)+1), graph.nodes...)
				next.nodeIdx = make(map[NodeID]int32, len(graph.nodeIdx)+1)
				for id, idx := range graph.nodeIdx {
					next.nodeIdx[id] = idx
				}
				nodesCopied = true
			}
			// Order is restored on rebuild, indices are only needed for lookups until then
			next.nodeIdx[node.ID] = int32(len(next.nodes))
			next.nodes = append(next.nodes, node)
		case EDIT_ADD_SEGMENT:
			seg := next.normalizeSegment(edit.Segment)
			if reason := next.validateSegment(&seg, true); reason != "" {
				report.reject(edit, reason)
				continue
			}
			next.segments[seg.ID] = seg
			touched[seg.ID] = struct{}{}
		case EDIT_REMOVE_SEGMENT:
			if _, ok := next.segments[edit.Segment.ID]; !ok {
				report.reject(edit, "unknown segment")
				continue
			}
			delete(next.segments, edit.Segment.ID)
			touched[edit.Segment.ID] = struct{}{}
		case EDIT_UPGRADE_SEGMENT:
			current, ok := next.segments[edit.Segment.ID]
			if !ok {
				report.reject(edit, "unknown segment")
				continue
			}
			if edit.Patch == nil {
				report.reject(edit, "empty patch")
				continue
			}
			seg := edit.Patch.apply(current)
			if reason := next.validateSegment(&seg, false); reason != "" {
				report.reject(edit, reason)
				continue
			}
			next.segments[seg.ID] = seg
			touched[seg.ID] = struct{}{}
		default:
			report.reject(edit, "unknown operation")
			continue
		}
		report.Applied = append(report.Applied, edit)
	}

	if len(report.Applied) == 0 {
		return graph, report
	}
	next.version = graph.version + 1

	affected := make(map[int32]struct{})
	for id := range touched {
		if seg, ok := graph.segments[id]; ok {
			affected[graph.nodeIdx[seg.Source]] = struct{}{}
			affected[graph.nodeIdx[seg.Target]] = struct{}{}
		}
		if seg, ok := next.segments[id]; ok {
			affected[next.nodeIdx[seg.Source]] = struct{}{}
			affected[next.nodeIdx[seg.Target]] = struct{}{}
		}
	}

	if nodesCopied || float64(len(affected)) > fullRebuildThreshold*float64(len(graph.nodes)) {
		if nodesCopied {
			next.reindexNodes()
		}
		next.buildCSR()
		if nodesCopied {
			next.buildSpatial()
		}
		report.FullRebuild = true
		report.RowsRebuilt = len(next.nodes)
	} else {
		next.rebuildRows(graph, touched, affected)
		report.RowsRebuilt = len(affected)
	}
	report.CapacityChanges = capacityChanges(graph, next, touched)
	return next, report
}

func (report *EditReport) reject(edit Edit, reason string) {
	report.Rejected = append(report.Rejected, EditRejection{
		Edit: edit,
		Err:  newValidationError(&edit, "%s", reason),
	})
}

func (graph *Graph) reindexNodes() {
	sort.Slice(graph.nodes, func(i, j int) bool {
		return graph.nodes[i].ID < graph.nodes[j].ID
	})
	for i := range graph.nodes {
		graph.nodeIdx[graph.nodes[i].ID] = int32(i)
	}
}

// rebuildRows copies unaffected rows of prev and reconstructs affected ones. Node set must be unchanged.
func (graph *Graph) rebuildRows(prev *Graph, touched map[SegmentID]struct{}, affected map[int32]struct{}) {
	fresh := make(map[int32][]Link)
	for id := range touched {
		seg, ok := graph.segments[id]
		if !ok {
			continue
		}
		for _, link := range roadLinksFromSegment(&seg) {
			src := graph.nodeIdx[link.Source]
			fresh[src] = append(fresh[src], link)
		}
	}

	numNodes := len(graph.nodes)
	graph.offsets = make([]int32, numNodes+1)
	graph.targets = make([]int32, 0, len(prev.targets))
	graph.edgeIDs = make([]EdgeID, 0, len(prev.edgeIDs))
	graph.links = make([]Link, 0, len(prev.links))
	for i := int32(0); i < int32(numNodes); i++ {
		start, end := prev.offsets[i], prev.offsets[i+1]
		if _, ok := affected[i]; !ok {
			graph.targets = append(graph.targets, prev.targets[start:end]...)
			graph.edgeIDs = append(graph.edgeIDs, prev.edgeIDs[start:end]...)
			graph.links = append(graph.links, prev.links[start:end]...)
			graph.offsets[i+1] = int32(len(graph.edgeIDs))
			continue
		}
		row := make([]Link, 0, end-start+int32(len(fresh[i])))
		for pos := start; pos < end; pos++ {
			if _, ok := touched[prev.links[pos].Segment]; ok {
				continue
			}
			row = append(row, prev.links[pos])
		}
		row = append(row, fresh[i]...)
		sort.Slice(row, func(a, b int) bool {
			return row[a].ID < row[b].ID
		})
		for _, link := range row {
			graph.targets = append(graph.targets, graph.nodeIdx[link.Target])
			graph.edgeIDs = append(graph.edgeIDs, link.ID)
			graph.links = append(graph.links, link)
		}
		graph.offsets[i+1] = int32(len(graph.edgeIDs))
	}
	graph.indexEdges()
}

func capacityChanges(prev, next *Graph, touched map[SegmentID]struct{}) []CapacityChange {
	ids := make([]SegmentID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	changes := []CapacityChange{}
	for _, id := range ids {
		for _, edgeID := range []EdgeID{ForwardEdgeID(id), BackwardEdgeID(id)} {
			before, after := 0.0, 0.0
			existed, exists := false, false
			if pos, ok := prev.edgePos[edgeID]; ok {
				before = prev.links[pos].Capacity
				existed = true
			}
			if pos, ok := next.edgePos[edgeID]; ok {
				after = next.links[pos].Capacity
				exists = true
			}
			if !existed && !exists {
				continue
			}
			if existed && exists && before == after {
				continue
			}
			changes = append(changes, CapacityChange{Edge: edgeID, Before: before, After: after})
		}
	}
	return changes
}
