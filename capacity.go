package cityflow

import (
	"sort"
)

// CapacityModel owns per-edge volumes (veh/h) and their evolution between epochs.
//
// Every epoch volume becomes:
//
//	v' = v*decay + assigned + (1-decay)*latent
//
// so a constant latent demand D is also the steady volume when nothing else is assigned.
// Not safe for concurrent use: engine serializes access.
type CapacityModel struct {
	decay     float64
	volumes   map[EdgeID]float64
	assigned  map[EdgeID]float64
	overrides map[EdgeID]float64
}

func NewCapacityModel(decay float64) *CapacityModel {
	if decay < 0 {
		decay = 0
	}
	if decay > 1 {
		decay = 1
	}
	return &CapacityModel{
		decay:     decay,
		volumes:   make(map[EdgeID]float64),
		assigned:  make(map[EdgeID]float64),
		overrides: make(map[EdgeID]float64),
	}
}

// Decay returns share of previous epoch volume which survives into the next one
func (cm *CapacityModel) Decay() float64 {
	return cm.decay
}

// Volume returns committed volume of an edge
func (cm *CapacityModel) Volume(edge EdgeID) float64 {
	return cm.volumes[edge]
}

// Assign accumulates volume for the next epoch. Negative amounts are ignored.
func (cm *CapacityModel) Assign(edge EdgeID, vph float64) {
	if vph <= 0 {
		return
	}
	cm.assigned[edge] += vph
}

// SetVolume overrides volume of an edge. It takes effect at the next Step.
func (cm *CapacityModel) SetVolume(edge EdgeID, vph float64) {
	if vph < 0 {
		vph = 0
	}
	cm.overrides[edge] = vph
}

// Drop forgets everything about an edge, e.g. after its segment was removed
func (cm *CapacityModel) Drop(edge EdgeID) {
	delete(cm.volumes, edge)
	delete(cm.assigned, edge)
	delete(cm.overrides, edge)
}

// Step commits assignments of the finished epoch and adds latent demand (may be nil)
func (cm *CapacityModel) Step(latent map[EdgeID]float64) {
	next := make(map[EdgeID]float64, len(cm.volumes)+len(cm.assigned))
	for edge, volume := range cm.volumes {
		next[edge] = volume * cm.decay
	}
	for edge, vph := range cm.assigned {
		next[edge] += vph
	}
	for edge, demand := range latent {
		if demand > 0 {
			next[edge] += (1 - cm.decay) * demand
		}
	}
	for edge, vph := range cm.overrides {
		next[edge] = vph
	}
	for edge, volume := range next {
		if volume <= 1e-9 {
			delete(next, edge)
		}
	}
	cm.volumes = next
	cm.assigned = make(map[EdgeID]float64)
	cm.overrides = make(map[EdgeID]float64)
}

// Volumes returns copy of committed volumes
func (cm *CapacityModel) Volumes() map[EdgeID]float64 {
	volumes := make(map[EdgeID]float64, len(cm.volumes))
	for edge, volume := range cm.volumes {
		volumes[edge] = volume
	}
	return volumes
}

// Restore replaces committed volumes, negative values are clamped to zero
func (cm *CapacityModel) Restore(volumes map[EdgeID]float64) {
	cm.volumes = make(map[EdgeID]float64, len(volumes))
	for edge, volume := range volumes {
		if volume > 0 {
			cm.volumes[edge] = volume
		}
	}
}

// Edges returns edges with non-zero volume in ascending order
func (cm *CapacityModel) Edges() []EdgeID {
	edges := make([]EdgeID, 0, len(cm.volumes))
	for edge := range cm.volumes {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i] < edges[j]
	})
	return edges
}
