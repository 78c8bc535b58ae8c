package cityflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// Engine owns network state and advances it epoch by epoch.
//
// Route queries read the current Snapshot without locks and may run from any goroutine.
// Edits, schedule changes and trip assignments are queued and take effect at the next AdvanceEpoch,
// which is the only place a new snapshot is published.
type Engine struct {
	cfg           Config
	verbose       bool
	cost          CostModel
	planner       *Planner
	sinks         []StatsSink
	initialRoutes []TransitRoute

	mu           sync.Mutex
	graph        *Graph
	routes       map[RouteID]TransitRoute
	routesDirty  bool
	overlay      *TransitOverlay
	capacity     *CapacityModel
	demand       *DemandFeedback
	pendingEdits []Edit
	collector    *tripCollector
	lastReport   *EditReport

	current   atomic.Pointer[Snapshot]
	lastStats atomic.Pointer[EpochStats]
}

// BatchResult is outcome of a single request of a batch
type BatchResult struct {
	Result PathResult
	Err    error
}

// NewEngine validates network and publishes snapshot of epoch zero
func NewEngine(nodes []Node, segments []Segment, options ...func(*Engine)) (*Engine, error) {
	engine := &Engine{
		cfg:       DefaultConfig(),
		routes:    make(map[RouteID]TransitRoute),
		collector: newTripCollector(),
	}
	for _, option := range options {
		option(engine)
	}
	if err := engine.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Bad configuration")
	}
	if engine.cost == nil {
		engine.cost = BPR{Alpha: engine.cfg.Cost.Alpha, Beta: engine.cfg.Cost.Beta}
	}
	engine.planner = NewPlanner(engine.cfg.Planner.MaxExpansions, engine.cfg.Planner.MaxQueryDuration)
	engine.capacity = NewCapacityModel(engine.cfg.Epoch.Decay)
	engine.demand = NewDemandFeedback(engine.cfg.Demand.Elasticity, engine.cfg.Demand.HorizonEpochs)

	st := time.Now()
	if engine.verbose {
		fmt.Printf("Preparing road graph...")
	}
	graph, err := NewGraph(nodes, segments)
	if err != nil {
		return nil, errors.Wrap(err, "Can't prepare road graph")
	}
	engine.graph = graph
	if engine.verbose {
		fmt.Printf("Done in %v (nodes: %d, edges: %d)\n", time.Since(st), graph.NumNodes(), graph.NumEdges())
	}

	routes := append(append([]TransitRoute{}, engine.cfg.Routes...), engine.initialRoutes...)
	if err := engine.SetRoutes(routes); err != nil {
		return nil, errors.Wrap(err, "Can't prepare transit routes")
	}
	if err := engine.publish(0); err != nil {
		return nil, err
	}
	return engine, nil
}

// Config returns engine configuration
func (engine *Engine) Config() Config {
	return engine.cfg
}

// Snapshot returns currently published snapshot
func (engine *Engine) Snapshot() *Snapshot {
	return engine.current.Load()
}

// Epoch returns number of currently published epoch
func (engine *Engine) Epoch() uint64 {
	return engine.current.Load().epoch
}

// LastStats returns statistics of the last finished epoch or nil
func (engine *Engine) LastStats() *EpochStats {
	return engine.lastStats.Load()
}

// LastEditReport returns report of edits applied at the last epoch boundary
func (engine *Engine) LastEditReport() *EditReport {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.lastReport
}

// QueueEdits schedules topology edits for the next epoch boundary
func (engine *Engine) QueueEdits(edits ...Edit) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.pendingEdits = append(engine.pendingEdits, edits...)
}

// PendingEdits returns number of queued edits
func (engine *Engine) PendingEdits() int {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return len(engine.pendingEdits)
}

// SetRoutes replaces transit schedule starting from the next epoch
func (engine *Engine) SetRoutes(routes []TransitRoute) error {
	next := make(map[RouteID]TransitRoute, len(routes))
	for i := range routes {
		if err := routes[i].Validate(); err != nil {
			return err
		}
		if _, ok := next[routes[i].ID]; ok {
			return newValidationError(nil, "duplicate route id %d", routes[i].ID)
		}
		next[routes[i].ID] = routes[i]
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.routes = next
	engine.routesDirty = true
	return nil
}

// UpsertRoute adds or replaces a single route starting from the next epoch
func (engine *Engine) UpsertRoute(route TransitRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.routes[route.ID] = route
	engine.routesDirty = true
	return nil
}

// RemoveRoute drops a route starting from the next epoch
func (engine *Engine) RemoveRoute(id RouteID) bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if _, ok := engine.routes[id]; !ok {
		return false
	}
	delete(engine.routes, id)
	engine.routesDirty = true
	return true
}

// Routes returns current schedule sorted by identifier
func (engine *Engine) Routes() []TransitRoute {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.sortedRoutes()
}

func (engine *Engine) sortedRoutes() []TransitRoute {
	routes := make([]TransitRoute, 0, len(engine.routes))
	for _, route := range engine.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].ID < routes[j].ID
	})
	return routes
}

// SetVolume overrides volume of an edge at the next epoch boundary
func (engine *Engine) SetVolume(edge EdgeID, vph float64) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.capacity.SetVolume(edge, vph)
}

// SeedDemand sets steady background demand of an edge
func (engine *Engine) SeedDemand(edge EdgeID, vph float64) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.demand.Seed(edge, vph)
}

// Route answers request against the current snapshot
func (engine *Engine) Route(req TripRequest) (PathResult, error) {
	return engine.RouteOn(engine.Snapshot(), req)
}

// RouteOn answers request against given snapshot
func (engine *Engine) RouteOn(snap *Snapshot, req TripRequest) (PathResult, error) {
	st := time.Now()
	var res PathResult
	var err error
	if engine.useContraction(snap, req) {
		res, err = snap.contraction.routeDrive(snap, req)
	} else {
		res, err = engine.planner.Route(snap, req)
	}
	CityflowQueryDuration.Observe(time.Since(st).Seconds())
	switch {
	case err == nil:
		CityflowTripsTotal.WithLabelValues(outcomeRouted).Inc()
	case errors.Is(err, ErrTimeout):
		CityflowTripsTotal.WithLabelValues(outcomeTimeout).Inc()
		if engine.verbose {
			fmt.Printf("[TIMEOUT]: %s\n", err)
		}
	case errors.Is(err, ErrNoRoute):
		CityflowTripsTotal.WithLabelValues(outcomeNoRoute).Inc()
	default:
		CityflowTripsTotal.WithLabelValues(outcomeInvalid).Inc()
	}
	return res, err
}

// useContraction picks contraction index for long drive-only trips. Costs match A*, but among
// equal cost paths the index may return a different one than the planner tie-break would.
func (engine *Engine) useContraction(snap *Snapshot, req TripRequest) bool {
	if snap.contraction == nil || req.Modes != NewModeSet(MODE_DRIVE) {
		return false
	}
	origin, okOrigin := snap.graph.Node(req.Origin)
	destination, okDestination := snap.graph.Node(req.Destination)
	if !okOrigin || !okDestination {
		return false
	}
	return planar.Distance(origin.Position, destination.Position) >= engine.cfg.Planner.ContractionMinDistance
}

// RouteWithFallback retries walk-only when no path is found under requested modes (timeouts included)
func (engine *Engine) RouteWithFallback(req TripRequest) (PathResult, error) {
	snap := engine.Snapshot()
	res, err := engine.RouteOn(snap, req)
	if err == nil || !(errors.Is(err, ErrNoRoute) || errors.Is(err, ErrTimeout)) || req.Modes == NewModeSet(MODE_WALK) {
		return res, err
	}
	walkReq := req
	walkReq.Modes = NewModeSet(MODE_WALK)
	return engine.RouteOn(snap, walkReq)
}

// RouteBatch routes requests with a worker pool against one pinned snapshot.
// Results keep order of requests. Workers <= 0 means configured pool size.
func (engine *Engine) RouteBatch(reqs []TripRequest, workers int) []BatchResult {
	snap := engine.Snapshot()
	results := make([]BatchResult, len(reqs))
	if workers <= 0 {
		workers = engine.cfg.Epoch.Workers
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := engine.RouteOn(snap, reqs[i])
				results[i] = BatchResult{Result: res, Err: err}
			}
		}()
	}
	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// AssignTrips routes requests and records outcomes as next epoch assignments
func (engine *Engine) AssignTrips(reqs []TripRequest, workers int) []BatchResult {
	results := engine.RouteBatch(reqs, workers)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	for i := range results {
		if results[i].Err != nil {
			engine.collector.recordFailure(errors.Is(results[i].Err, ErrTimeout))
			continue
		}
		engine.recordResult(&results[i].Result)
	}
	return results
}

// RecordResult adds volume of a routed trip to the next epoch
func (engine *Engine) RecordResult(res *PathResult) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.recordResult(res)
}

// RecordFailure counts a trip which could not be routed
func (engine *Engine) RecordFailure(err error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.collector.recordFailure(errors.Is(err, ErrTimeout))
}

func (engine *Engine) recordResult(res *PathResult) {
	engine.collector.recordRouted(res)
	for _, edge := range res.RoadEdges() {
		engine.capacity.Assign(edge, engine.cfg.Epoch.TripWeight)
	}
}

// AdvanceEpoch applies queued edits, commits volumes and induced demand, recomputes costs
// and publishes a new snapshot. Statistics of the finished epoch are passed to every sink.
func (engine *Engine) AdvanceEpoch(ctx context.Context) (*EpochStats, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	st := time.Now()
	epoch := engine.current.Load().epoch + 1
	if engine.verbose {
		fmt.Printf("Advancing to epoch %d...\n", epoch)
	}
	stats := &EpochStats{Epoch: epoch}
	engine.collector.fill(stats)
	engine.collector = newTripCollector()

	edits := engine.pendingEdits
	engine.pendingEdits = nil
	graph, report := engine.graph.ApplyEdits(edits, engine.cfg.Graph.FullRebuildThreshold)
	engine.lastReport = report
	for _, rejection := range report.Rejected {
		if engine.verbose {
			fmt.Printf("\t[WARNING]: Edit rejected: %s\n", rejection.Err)
		}
	}
	for _, change := range report.CapacityChanges {
		engine.demand.OnCapacityChange(change.Edge, engine.capacity.Volume(change.Edge), change.Before, change.After)
	}
	engine.graph = graph
	stats.AppliedEdits = len(report.Applied)
	stats.RejectedEdits = len(report.Rejected)
	stats.FullRebuild = report.FullRebuild

	engine.demand.Step()
	engine.capacity.Step(engine.demand.LatentVolumes())
	for _, edge := range engine.capacity.Edges() {
		if _, ok := graph.EdgePosition(edge); !ok {
			engine.capacity.Drop(edge)
		}
	}
	for _, edge := range engine.demand.Edges() {
		if _, ok := graph.EdgePosition(edge); !ok {
			engine.demand.Drop(edge)
		}
	}

	if err := engine.publish(epoch); err != nil {
		return nil, err
	}
	snap := engine.current.Load()
	stats.LOSDistribution = snap.LOSDistribution()
	stats.AverageVC = snap.AverageVC()
	stats.ActiveRoutes = len(snap.overlay.routes)
	stats.ExcludedRoutes = len(snap.overlay.excluded)
	stats.Duration = time.Since(st)
	engine.lastStats.Store(stats)
	observeEpochMetrics(stats)

	for _, sink := range engine.sinks {
		if err := sink.PublishStats(ctx, stats); err != nil {
			fmt.Printf("\t[WARNING]: Can't publish stats of epoch %d: %s\n", epoch, err)
		}
	}
	if engine.verbose {
		fmt.Printf("Done in %v: %s\n", stats.Duration, stats)
	}
	return stats, nil
}

// publish builds snapshot from current state. Caller must hold the lock (or be the constructor).
func (engine *Engine) publish(epoch uint64) error {
	if engine.overlay == nil || engine.overlay.graphVersion != engine.graph.version || engine.routesDirty {
		engine.overlay = BuildOverlay(engine.graph, engine.sortedRoutes(), engine.cfg.transitParams(), engine.verbose)
		engine.routesDirty = false
	}
	snap := newSnapshot(epoch, engine.graph, engine.overlay, engine.capacity.Volumes(), engine.cost, engine.cfg.Planner.MaxSpeed)
	if err := snap.verify(); err != nil {
		return err
	}
	if engine.cfg.Planner.Contraction {
		index, err := BuildContractionIndex(snap, engine.verbose)
		if err != nil {
			return errors.Wrap(err, "Can't prepare contraction hierarchies")
		}
		snap.contraction = index
	}
	engine.current.Store(snap)
	return nil
}
