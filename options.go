package cityflow

import (
	"fmt"
	"strings"
)

func (engine *Engine) String() string {
	sorted := engine.Routes()
	routes := make([]string, 0, len(sorted))
	for _, route := range sorted {
		routes = append(routes, fmt.Sprintf("%d", route.ID))
	}
	return fmt.Sprintf(`
Engine parameters:
	decay: %f
	trip_weight: %f
	workers: %d
	bpr: alpha=%f beta=%f
	max_speed: %f
	max_expansions: %d
	max_query_duration: %v
	contraction enabled?: %t
	walk_speed: %f
	catchment_radius: %f
	transfer_radius: %f
	transfer_penalty: %f (hub: %f)
	elasticity: %f
	horizon_epochs: %d
	full_rebuild_threshold: %f
	routes: '%s'
	sinks: %d
	verbose: %t
	`,
		engine.cfg.Epoch.Decay,
		engine.cfg.Epoch.TripWeight,
		engine.cfg.Epoch.Workers,
		engine.cfg.Cost.Alpha, engine.cfg.Cost.Beta,
		engine.cfg.Planner.MaxSpeed,
		engine.cfg.Planner.MaxExpansions,
		engine.cfg.Planner.MaxQueryDuration,
		engine.cfg.Planner.Contraction,
		engine.cfg.Transit.WalkSpeed,
		engine.cfg.Transit.CatchmentRadius,
		engine.cfg.Transit.TransferRadius,
		engine.cfg.Transit.TransferPenalty, engine.cfg.Transit.HubTransferPenalty,
		engine.cfg.Demand.Elasticity,
		engine.cfg.Demand.HorizonEpochs,
		engine.cfg.Graph.FullRebuildThreshold,
		strings.Join(routes, ","),
		len(engine.sinks),
		engine.verbose,
	)
}

// WithConfig replaces whole configuration. Routes of the config are used as initial schedule.
func WithConfig(cfg Config) func(*Engine) {
	return func(engine *Engine) {
		engine.cfg = cfg
	}
}

func WithVerbose(verbose bool) func(*Engine) {
	return func(engine *Engine) {
		engine.verbose = verbose
	}
}

// WithCostModel replaces BPR function built from configuration
func WithCostModel(cost CostModel) func(*Engine) {
	return func(engine *Engine) {
		engine.cost = cost
	}
}

// WithRoutes appends routes to the initial schedule
func WithRoutes(routes []TransitRoute) func(*Engine) {
	return func(engine *Engine) {
		engine.initialRoutes = append(engine.initialRoutes, routes...)
	}
}

func WithStatsSink(sink StatsSink) func(*Engine) {
	return func(engine *Engine) {
		engine.sinks = append(engine.sinks, sink)
	}
}

func WithWorkers(workers int) func(*Engine) {
	return func(engine *Engine) {
		engine.cfg.Epoch.Workers = workers
	}
}

func WithContraction(enabled bool) func(*Engine) {
	return func(engine *Engine) {
		engine.cfg.Planner.Contraction = enabled
	}
}
