package cityflow

import (
	"math"
	"sort"
)

const (
	DEFAULT_ELASTICITY     = 0.75
	DEFAULT_HORIZON_EPOCHS = 10
)

// DemandFeedback models induced demand: extra road capacity attracts new trips over time.
//
// When capacity of an edge changes from c0 to c1 while it carries volume v, steady volume becomes
// v*(c1/c0)^elasticity. The difference is added to latent demand target of the edge, and latent demand
// approaches its target with a first-order lag so that 95% of the way is covered after the horizon.
type DemandFeedback struct {
	elasticity float64
	horizon    int
	lambda     float64
	latent     map[EdgeID]float64
	target     map[EdgeID]float64
}

func NewDemandFeedback(elasticity float64, horizonEpochs int) *DemandFeedback {
	if horizonEpochs < 1 {
		horizonEpochs = 1
	}
	return &DemandFeedback{
		elasticity: elasticity,
		horizon:    horizonEpochs,
		lambda:     1 - math.Pow(0.05, 1/float64(horizonEpochs)),
		latent:     make(map[EdgeID]float64),
		target:     make(map[EdgeID]float64),
	}
}

func (df *DemandFeedback) Elasticity() float64 {
	return df.elasticity
}

// Lambda returns share of the gap to target closed every epoch
func (df *DemandFeedback) Lambda() float64 {
	return df.lambda
}

// Seed sets steady background demand of an edge (both current latent demand and its target)
func (df *DemandFeedback) Seed(edge EdgeID, vph float64) {
	if vph <= 0 {
		delete(df.latent, edge)
		delete(df.target, edge)
		return
	}
	df.latent[edge] = vph
	df.target[edge] = vph
}

// OnCapacityChange re-targets latent demand of an edge whose capacity changed while carrying volume
func (df *DemandFeedback) OnCapacityChange(edge EdgeID, volume, before, after float64) {
	if after <= 0 {
		// Removed or closed: demand moves elsewhere
		df.Drop(edge)
		return
	}
	if before <= 0 || volume <= 0 {
		return
	}
	induced := volume * math.Pow(after/before, df.elasticity)
	target := df.latent[edge] + induced - volume
	if target < 0 {
		target = 0
	}
	df.target[edge] = target
}

// Drop forgets demand of an edge
func (df *DemandFeedback) Drop(edge EdgeID) {
	delete(df.latent, edge)
	delete(df.target, edge)
}

// Step moves latent demand towards targets
func (df *DemandFeedback) Step() {
	for edge, target := range df.target {
		current := df.latent[edge]
		next := current + df.lambda*(target-current)
		if next < 0 {
			next = 0
		}
		df.latent[edge] = next
	}
}

// Latent returns current latent demand of an edge
func (df *DemandFeedback) Latent(edge EdgeID) float64 {
	return df.latent[edge]
}

// Target returns latent demand the edge converges to
func (df *DemandFeedback) Target(edge EdgeID) float64 {
	return df.target[edge]
}

// LatentVolumes returns copy of latent demand per edge
func (df *DemandFeedback) LatentVolumes() map[EdgeID]float64 {
	latent := make(map[EdgeID]float64, len(df.latent))
	for edge, vph := range df.latent {
		latent[edge] = vph
	}
	return latent
}

// Targets returns copy of latent demand targets per edge
func (df *DemandFeedback) Targets() map[EdgeID]float64 {
	targets := make(map[EdgeID]float64, len(df.target))
	for edge, vph := range df.target {
		targets[edge] = vph
	}
	return targets
}

// Restore replaces internal state
func (df *DemandFeedback) Restore(latent, targets map[EdgeID]float64) {
	df.latent = make(map[EdgeID]float64, len(latent))
	for edge, vph := range latent {
		df.latent[edge] = vph
	}
	df.target = make(map[EdgeID]float64, len(targets))
	for edge, vph := range targets {
		df.target[edge] = vph
	}
}

// Edges returns edges having latent demand in ascending order
func (df *DemandFeedback) Edges() []EdgeID {
	edges := make([]EdgeID, 0, len(df.target))
	for edge := range df.target {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i] < edges[j]
	})
	return edges
}
