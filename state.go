package cityflow

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// EdgeValue is a value attached to a directed edge
type EdgeValue struct {
	Edge  EdgeID  `json:"edge"`
	Value float64 `json:"value"`
}

// NetworkState is serializable state of an engine: topology, schedule, volumes and induced demand.
// Queued edits and trips of the running epoch are not part of it.
type NetworkState struct {
	Epoch        uint64         `json:"epoch"`
	Nodes        []Node         `json:"nodes"`
	Segments     []Segment      `json:"segments"`
	Routes       []TransitRoute `json:"routes"`
	Volumes      []EdgeValue    `json:"volumes"`
	Latent       []EdgeValue    `json:"latent"`
	LatentTarget []EdgeValue    `json:"latent_target"`
}

func edgeValues(values map[EdgeID]float64) []EdgeValue {
	result := make([]EdgeValue, 0, len(values))
	for edge, value := range values {
		result = append(result, EdgeValue{Edge: edge, Value: value})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Edge < result[j].Edge
	})
	return result
}

func edgeValuesMap(values []EdgeValue) map[EdgeID]float64 {
	result := make(map[EdgeID]float64, len(values))
	for _, ev := range values {
		result[ev.Edge] = ev.Value
	}
	return result
}

// ExportState returns state of the engine as of the last published epoch boundary
func (engine *Engine) ExportState() *NetworkState {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	nodes := make([]Node, len(engine.graph.nodes))
	copy(nodes, engine.graph.nodes)
	return &NetworkState{
		Epoch:        engine.current.Load().epoch,
		Nodes:        nodes,
		Segments:     engine.graph.Segments(),
		Routes:       engine.sortedRoutes(),
		Volumes:      edgeValues(engine.capacity.Volumes()),
		Latent:       edgeValues(engine.demand.LatentVolumes()),
		LatentTarget: edgeValues(engine.demand.Targets()),
	}
}

// NewEngineFromState restores engine from exported state. Routes of the state replace configured ones.
func NewEngineFromState(state *NetworkState, options ...func(*Engine)) (*Engine, error) {
	restoreRoutes := func(engine *Engine) {
		engine.cfg.Routes = nil
		engine.initialRoutes = append([]TransitRoute{}, state.Routes...)
	}
	engine, err := NewEngine(state.Nodes, state.Segments, append(append([]func(*Engine){}, options...), restoreRoutes)...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't restore engine")
	}
	engine.mu.Lock()
	engine.capacity.Restore(edgeValuesMap(state.Volumes))
	engine.demand.Restore(edgeValuesMap(state.Latent), edgeValuesMap(state.LatentTarget))
	err = engine.publish(state.Epoch)
	engine.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// MarshalState encodes state as JSON
func MarshalState(state *NetworkState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, "Can't marshal state")
	}
	return data, nil
}

// UnmarshalState decodes JSON produced by MarshalState
func UnmarshalState(data []byte) (*NetworkState, error) {
	state := &NetworkState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrap(err, "Can't unmarshal state")
	}
	return state, nil
}

// StateStore persists exported states under named slots
type StateStore interface {
	SaveState(ctx context.Context, slot string, state *NetworkState) error
	LoadState(ctx context.Context, slot string) (*NetworkState, error)
}
