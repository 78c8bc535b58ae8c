package cityflow

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// Snapshot is an immutable view of the network for one epoch: topology, overlay, committed volumes and costs.
// It is published by the engine with an atomic pointer swap and can be read from any goroutine.
type Snapshot struct {
	epoch     uint64
	createdAt time.Time

	graph   *Graph
	overlay *TransitOverlay

	// Per road CSR position
	volumes []float64
	// Road CSR positions followed by overlay positions
	costs []float64

	maxSpeed  float64
	heuristic bool

	contraction *ContractionIndex
}

// EdgeTelemetry is per-edge congestion report
type EdgeTelemetry struct {
	Edge         EdgeID         `json:"edge"`
	Segment      SegmentID      `json:"segment"`
	Source       NodeID         `json:"source"`
	Target       NodeID         `json:"target"`
	Class        RoadClass      `json:"class"`
	Volume       float64        `json:"volume"`
	Capacity     float64        `json:"capacity"`
	VC           float64        `json:"vc"`
	LOS          LOSGrade       `json:"los"`
	FreeFlowTime float64        `json:"free_flow_time"`
	TravelTime   float64        `json:"travel_time"`
	Closed       bool           `json:"closed"`
	Geom         orb.LineString `json:"-"`
}

func finiteOrNil(value float64) *float64 {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return nil
	}
	return &value
}

// MarshalJSON encodes non-traversable values (+Inf) of closed edges as null
func (tm EdgeTelemetry) MarshalJSON() ([]byte, error) {
	type telemetryAlias EdgeTelemetry
	return json.Marshal(struct {
		telemetryAlias
		VC         *float64 `json:"vc"`
		TravelTime *float64 `json:"travel_time"`
	}{
		telemetryAlias: telemetryAlias(tm),
		VC:             finiteOrNil(tm.VC),
		TravelTime:     finiteOrNil(tm.TravelTime),
	})
}

func newSnapshot(epoch uint64, graph *Graph, overlay *TransitOverlay, volumes map[EdgeID]float64, cost CostModel, maxSpeedKmh float64) *Snapshot {
	snap := &Snapshot{
		epoch:     epoch,
		createdAt: time.Now(),
		graph:     graph,
		overlay:   overlay,
		volumes:   make([]float64, graph.NumEdges()),
		costs:     make([]float64, graph.NumEdges()+overlay.NumLinks()),
		heuristic: true,
	}
	for pos := range graph.links {
		link := &graph.links[pos]
		snap.volumes[pos] = volumes[link.ID]
		snap.costs[pos] = cost.TravelTime(link, snap.volumes[pos])
	}
	base := graph.NumEdges()
	for pos := range overlay.links {
		snap.costs[base+pos] = cost.TravelTime(&overlay.links[pos], 0)
	}

	snap.maxSpeed = math.Max(maxSpeedKmh/3.6, overlay.params.WalkSpeed)
	observe := func(from, to int32, cost float64) {
		if math.IsInf(cost, 1) {
			return
		}
		straight := planar.Distance(snap.nodePosition(from), snap.nodePosition(to))
		if straight <= 0 {
			return
		}
		if cost <= 0 {
			snap.heuristic = false
			return
		}
		if speed := straight / cost; speed > snap.maxSpeed {
			snap.maxSpeed = speed
		}
	}
	for idx := int32(0); idx < int32(graph.NumNodes()); idx++ {
		start, end := graph.OutEdges(idx)
		for pos := start; pos < end; pos++ {
			observe(idx, graph.targets[pos], snap.costs[pos])
		}
	}
	for idx := int32(0); idx < int32(len(overlay.offsets)-1); idx++ {
		start, end := overlay.offsets[idx], overlay.offsets[idx+1]
		for pos := start; pos < end; pos++ {
			observe(idx, overlay.targets[pos], snap.costs[base+int(pos)])
		}
	}
	return snap
}

// verify checks that arrays of the snapshot belong to its graph and overlay
func (snap *Snapshot) verify() error {
	if snap.overlay.graphVersion != snap.graph.version || int(snap.overlay.base) != snap.graph.NumNodes() {
		return errors.Wrapf(ErrSnapshotInconsistency, "overlay built for graph version %d, snapshot graph version %d", snap.overlay.graphVersion, snap.graph.version)
	}
	if len(snap.costs) != snap.graph.NumEdges()+snap.overlay.NumLinks() || len(snap.volumes) != snap.graph.NumEdges() {
		return errors.Wrapf(ErrSnapshotInconsistency, "%d costs for %d road and %d overlay links", len(snap.costs), snap.graph.NumEdges(), snap.overlay.NumLinks())
	}
	return nil
}

func (snap *Snapshot) Epoch() uint64 {
	return snap.epoch
}

func (snap *Snapshot) CreatedAt() time.Time {
	return snap.createdAt
}

func (snap *Snapshot) Graph() *Graph {
	return snap.graph
}

func (snap *Snapshot) Overlay() *TransitOverlay {
	return snap.overlay
}

// MaxSpeed returns speed bound (m/s) used by route search heuristic
func (snap *Snapshot) MaxSpeed() float64 {
	return snap.maxSpeed
}

// HeuristicEnabled is false when some link has zero cost over positive distance
func (snap *Snapshot) HeuristicEnabled() bool {
	return snap.heuristic
}

// Contraction returns contraction hierarchy index of the epoch or nil
func (snap *Snapshot) Contraction() *ContractionIndex {
	return snap.contraction
}

func (snap *Snapshot) numNodes() int32 {
	return snap.overlay.base + int32(len(snap.overlay.nodes))
}

func (snap *Snapshot) nodePosition(idx int32) orb.Point {
	if idx < snap.overlay.base {
		return snap.graph.nodes[idx].Position
	}
	return snap.overlay.nodes[idx-snap.overlay.base].Position
}

func (snap *Snapshot) nodeID(idx int32) NodeID {
	if idx < snap.overlay.base {
		return snap.graph.nodes[idx].ID
	}
	return snap.overlay.nodes[idx-snap.overlay.base].ID
}

// EdgeCost returns committed cost (seconds) of a road edge or overlay link
func (snap *Snapshot) EdgeCost(id EdgeID) (float64, bool) {
	if pos, ok := snap.graph.edgePos[id]; ok {
		return snap.costs[pos], true
	}
	if pos, ok := snap.overlay.edgePos[id]; ok {
		return snap.costs[snap.graph.NumEdges()+int(pos)], true
	}
	return 0, false
}

func (snap *Snapshot) telemetryAt(pos int32) EdgeTelemetry {
	link := &snap.graph.links[pos]
	vc := VolumeCapacityRatio(snap.volumes[pos], link.Capacity)
	return EdgeTelemetry{
		Edge:         link.ID,
		Segment:      link.Segment,
		Source:       link.Source,
		Target:       link.Target,
		Class:        link.Class,
		Volume:       snap.volumes[pos],
		Capacity:     link.Capacity,
		VC:           vc,
		LOS:          GradeLOS(vc),
		FreeFlowTime: link.FreeFlowTime,
		TravelTime:   snap.costs[pos],
		Closed:       link.Capacity <= 0,
		Geom:         link.Geom,
	}
}

// Telemetry returns congestion report of a road edge
func (snap *Snapshot) Telemetry(id EdgeID) (EdgeTelemetry, bool) {
	pos, ok := snap.graph.edgePos[id]
	if !ok {
		return EdgeTelemetry{}, false
	}
	return snap.telemetryAt(pos), true
}

// Telemetries returns reports of every road edge ordered by edge identifier
func (snap *Snapshot) Telemetries() []EdgeTelemetry {
	result := make([]EdgeTelemetry, len(snap.graph.links))
	for pos := range snap.graph.links {
		result[pos] = snap.telemetryAt(int32(pos))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Edge < result[j].Edge
	})
	return result
}

// LOSDistribution returns number of road edges per grade
func (snap *Snapshot) LOSDistribution() map[LOSGrade]int {
	dist := make(map[LOSGrade]int, len(LOSGrades))
	for _, grade := range LOSGrades {
		dist[grade] = 0
	}
	for pos := range snap.graph.links {
		if snap.graph.links[pos].Capacity <= 0 {
			continue
		}
		dist[GradeLOS(VolumeCapacityRatio(snap.volumes[pos], snap.graph.links[pos].Capacity))]++
	}
	return dist
}

// AverageVC returns mean v/c over open road edges
func (snap *Snapshot) AverageVC() float64 {
	total, count := 0.0, 0
	for pos := range snap.graph.links {
		if snap.graph.links[pos].Capacity <= 0 {
			continue
		}
		total += snap.volumes[pos] / snap.graph.links[pos].Capacity
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// NearestNode returns road node closest to a planar point
func (snap *Snapshot) NearestNode(pt orb.Point) (Node, bool) {
	return snap.graph.NearestNode(pt)
}
