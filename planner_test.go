package cityflow

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

// dijkstraDrive returns cheapest drive costs from every road node to destination (reverse search)
func dijkstraDrive(snap *Snapshot, destination NodeID) map[NodeID]float64 {
	graph := snap.Graph()
	incoming := make(map[NodeID][]*Link)
	for idx := int32(0); idx < int32(graph.NumNodes()); idx++ {
		start, end := graph.OutEdges(idx)
		for pos := start; pos < end; pos++ {
			link := graph.LinkAt(pos)
			incoming[link.Target] = append(incoming[link.Target], link)
		}
	}
	dist := map[NodeID]float64{destination: 0}
	done := map[NodeID]bool{}
	for {
		current, best := NodeID(-1), math.Inf(1)
		for id, d := range dist {
			if !done[id] && d < best {
				current, best = id, d
			}
		}
		if current < 0 {
			return dist
		}
		done[current] = true
		for _, link := range incoming[current] {
			cost, _ := snap.EdgeCost(link.ID)
			if math.IsInf(cost, 1) {
				continue
			}
			if d, ok := dist[link.Source]; !ok || best+cost < d {
				dist[link.Source] = best + cost
			}
		}
	}
}

func prepareRandomEngine(t *testing.T, rnd *rand.Rand, size int, options ...func(*Engine)) *Engine {
	nodes, segments := NewGridNetwork(size, size, 150, ROAD_COLLECTOR)
	for i := range nodes {
		nodes[i].Position = orb.Point{
			nodes[i].Position.X() + rnd.Float64()*40 - 20,
			nodes[i].Position.Y() + rnd.Float64()*40 - 20,
		}
	}
	kept := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if rnd.Float64() < 0.1 {
			continue
		}
		switch {
		case rnd.Float64() < 0.15:
			seg.Class = ROAD_ARTERIAL
		case rnd.Float64() < 0.1:
			seg.Oneway = true
		}
		kept = append(kept, seg)
	}
	engine, err := NewEngine(nodes, kept, options...)
	if err != nil {
		t.Fatal(err)
	}
	for _, seg := range kept {
		if rnd.Float64() < 0.6 {
			engine.SetVolume(ForwardEdgeID(seg.ID), rnd.Float64()*2500)
		}
		if !seg.Oneway && rnd.Float64() < 0.6 {
			engine.SetVolume(BackwardEdgeID(seg.ID), rnd.Float64()*2500)
		}
	}
	if _, err := engine.AdvanceEpoch(context.Background()); err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestPlannerMatchesDijkstra(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 5; round++ {
		engine := prepareRandomEngine(t, rnd, 8)
		snap := engine.Snapshot()
		nodes := snap.Graph().Nodes()
		for q := 0; q < 20; q++ {
			destination := nodes[rnd.Intn(len(nodes))]
			dist := dijkstraDrive(snap, destination.ID)
			origin := nodes[rnd.Intn(len(nodes))]
			res, err := engine.Route(TripRequest{Origin: origin.ID, Destination: destination.ID, Modes: NewModeSet(MODE_DRIVE)})
			expected, reachable := dist[origin.ID]
			if !reachable {
				if !errors.Is(err, ErrNoRoute) {
					t.Errorf("Unreachable %d -> %d must give no route, but got %v", origin.ID, destination.ID, err)
				}
				continue
			}
			if err != nil {
				t.Errorf("Route %d -> %d must exist, but got %v", origin.ID, destination.ID, err)
				continue
			}
			if math.Abs(res.TotalCost-expected) > 1e-6 {
				t.Errorf("Cost of %d -> %d must be %f, but got %f", origin.ID, destination.ID, expected, res.TotalCost)
			}
			sum := 0.0
			for _, edge := range res.Edges {
				cost, _ := snap.EdgeCost(edge)
				sum += cost
			}
			if math.Abs(res.TotalCost-sum) > 1e-6 {
				t.Errorf("Total cost %f must equal sum of edge costs %f", res.TotalCost, sum)
			}
		}
	}
}

func TestHeuristicAdmissible(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	engine := prepareRandomEngine(t, rnd, 7)
	snap := engine.Snapshot()
	if !snap.HeuristicEnabled() {
		t.Errorf("Heuristic must be enabled for road network with positive costs")
		return
	}
	nodes := snap.Graph().Nodes()
	for q := 0; q < 10; q++ {
		destination := nodes[rnd.Intn(len(nodes))]
		dist := dijkstraDrive(snap, destination.ID)
		for _, node := range nodes {
			d, ok := dist[node.ID]
			if !ok {
				continue
			}
			h := planar.Distance(node.Position, destination.Position) / snap.MaxSpeed()
			if h > d+1e-9 {
				t.Errorf("Heuristic %f of node %d must not exceed true cost %f", h, node.ID, d)
			}
		}
	}
}

func TestPlannerTieBreak(t *testing.T) {
	nodes, segments := NewGridNetwork(2, 2, 100, ROAD_LOCAL)
	engine, err := NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	req := TripRequest{Origin: 0, Destination: 3, Modes: NewModeSet(MODE_DRIVE)}
	correctEdges := []EdgeID{ForwardEdgeID(0), ForwardEdgeID(2)}
	for i := 0; i < 20; i++ {
		res, err := engine.Route(req)
		if err != nil {
			t.Error(err)
			return
		}
		if len(res.Edges) != len(correctEdges) || res.Edges[0] != correctEdges[0] || res.Edges[1] != correctEdges[1] {
			t.Errorf("Among equal paths the one ending with lower edge must win: %v, but got %v", correctEdges, res.Edges)
			return
		}
	}
}

func TestPlannerFewerHopsWins(t *testing.T) {
	// 1 -> 2 directly costs the same as 1 -> 3 -> 2
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{200, 0}},
		{ID: 3, Position: orb.Point{100, 0}},
	}
	segments := []Segment{
		{ID: 5, Source: 1, Target: 3, Oneway: true},
		{ID: 6, Source: 3, Target: 2, Oneway: true},
		{ID: 9, Source: 1, Target: 2, Oneway: true},
	}
	engine, err := NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	res, err := engine.Route(TripRequest{Origin: 1, Destination: 2, Modes: NewModeSet(MODE_DRIVE)})
	if err != nil {
		t.Error(err)
		return
	}
	if len(res.Edges) != 1 || res.Edges[0] != ForwardEdgeID(9) {
		t.Errorf("Path with fewer edges must win, but got %v", res.Edges)
	}
}

func TestPlannerBudget(t *testing.T) {
	nodes, segments := NewGridNetwork(10, 10, 100, ROAD_LOCAL)
	engine, err := NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	planner := NewPlanner(3, 0)
	_, err = planner.Route(engine.Snapshot(), TripRequest{Origin: 0, Destination: 99, Modes: NewModeSet(MODE_DRIVE)})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Search over budget must give timeout, but got %v", err)
	}
	res, err := NewPlanner(0, 0).Route(engine.Snapshot(), TripRequest{Origin: 0, Destination: 99, Modes: NewModeSet(MODE_DRIVE)})
	if err != nil {
		t.Errorf("Unlimited search must succeed, but got %v", err)
	}
	if len(res.Edges) != 18 {
		t.Errorf("Path across the grid must have %d edges, but got %d", 18, len(res.Edges))
	}
}

func TestPlannerErrors(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{100, 0}},
		{ID: 3, Position: orb.Point{5000, 0}},
		{ID: 4, Position: orb.Point{5100, 0}},
	}
	segments := []Segment{
		{ID: 1, Source: 1, Target: 2, Oneway: true},
		{ID: 2, Source: 3, Target: 4},
	}
	engine, err := NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	drive := NewModeSet(MODE_DRIVE)
	if _, err := engine.Route(TripRequest{Origin: 1, Destination: 42, Modes: drive}); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Unknown destination must give %v, but got %v", ErrUnknownNode, err)
	}
	if _, err := engine.Route(TripRequest{Origin: 1, Destination: 3, Modes: drive}); !errors.Is(err, ErrNoRoute) {
		t.Errorf("Disconnected destination must give %v, but got %v", ErrNoRoute, err)
	}
	if _, err := engine.Route(TripRequest{Origin: 2, Destination: 1, Modes: drive}); !errors.Is(err, ErrNoRoute) {
		t.Errorf("Driving against oneway must give %v, but got %v", ErrNoRoute, err)
	}
	res, err := engine.Route(TripRequest{Origin: 2, Destination: 1, Modes: NewModeSet(MODE_WALK)})
	if err != nil {
		t.Errorf("Walking against oneway must be allowed, but got %v", err)
	} else if res.Mode() != MODE_WALK {
		t.Errorf("Mode must be %s, but got %s", MODE_WALK, res.Mode())
	}
	res, err = engine.Route(TripRequest{Origin: 3, Destination: 3, Modes: drive})
	if err != nil {
		t.Error(err)
		return
	}
	if len(res.Edges) != 0 || len(res.Nodes) != 1 || res.TotalCost != 0 {
		t.Errorf("Trip to origin must give empty path, but got %v", res)
	}
}

func TestRouteWithFallback(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{100, 0}},
	}
	engine, err := NewEngine(nodes, []Segment{{ID: 1, Source: 1, Target: 2, Oneway: true}})
	if err != nil {
		t.Error(err)
		return
	}
	res, err := engine.RouteWithFallback(TripRequest{Origin: 2, Destination: 1, Modes: NewModeSet(MODE_DRIVE)})
	if err != nil {
		t.Errorf("Fallback to walking must succeed, but got %v", err)
		return
	}
	if res.Mode() != MODE_WALK || res.Request.Modes != NewModeSet(MODE_WALK) {
		t.Errorf("Fallback path must be walked, but got %s", res.Mode())
	}
}

func TestRouteWithFallbackAfterTimeout(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{100, 0}},
		{ID: 10, Position: orb.Point{0, 1000}},
		{ID: 11, Position: orb.Point{0, 2000}},
		{ID: 12, Position: orb.Point{0, 3000}},
	}
	// highways have no sidewalks, so only driving explores them
	segments := []Segment{
		{ID: 1, Source: 2, Target: 1, Oneway: true},
		{ID: 2, Source: 1, Target: 10, Class: ROAD_HIGHWAY},
		{ID: 3, Source: 10, Target: 11, Class: ROAD_HIGHWAY},
		{ID: 4, Source: 11, Target: 12, Class: ROAD_HIGHWAY},
	}
	cfg := DefaultConfig()
	cfg.Planner.MaxExpansions = 2
	engine, err := NewEngine(nodes, segments, WithConfig(cfg))
	if err != nil {
		t.Error(err)
		return
	}
	req := TripRequest{Origin: 1, Destination: 2, Modes: NewModeSet(MODE_DRIVE)}
	if _, err := engine.Route(req); !errors.Is(err, ErrTimeout) {
		t.Errorf("Drive search must run out of budget, but got %v", err)
		return
	}
	res, err := engine.RouteWithFallback(req)
	if err != nil {
		t.Errorf("Fallback to walking must succeed after timeout, but got %v", err)
		return
	}
	if res.Mode() != MODE_WALK || len(res.Edges) != 1 {
		t.Errorf("Fallback path must be one walk link, but got %v", res.Kinds)
	}
}

func TestPlannerKeepsOneModePerTrip(t *testing.T) {
	nodes := []Node{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{100, 0}},
		{ID: 3, Position: orb.Point{5100, 0}},
	}
	// car can't leave node 1
	segments := []Segment{
		{ID: 1, Source: 2, Target: 1, Oneway: true},
		{ID: 2, Source: 2, Target: 3},
	}
	engine, err := NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	for _, modes := range []ModeSet{NewModeSet(), NewModeSet(MODE_DRIVE, MODE_WALK), NewModeSet(MODE_DRIVE, MODE_TRANSIT)} {
		res, err := engine.Route(TripRequest{Origin: 1, Destination: 3, Modes: modes})
		if err != nil {
			t.Errorf("Trip under [%s] must be routed on foot, but got %v", modes, err)
			continue
		}
		if res.Mode() != MODE_WALK || len(res.RoadEdges()) != 0 {
			t.Errorf("Trip under [%s] must walk all the way, but got %v", modes, res.Kinds)
		}
	}
	engine.AssignTrips([]TripRequest{{ID: 1, Origin: 1, Destination: 3}}, 1)
	stats, err := engine.AdvanceEpoch(context.Background())
	if err != nil {
		t.Error(err)
		return
	}
	if stats.ModeShare[MODE_WALK] != 1 {
		t.Errorf("Walk share must be %f, but got %v", 1.0, stats.ModeShare)
	}
	tm, _ := engine.Snapshot().Telemetry(ForwardEdgeID(2))
	if tm.Volume != 0 {
		t.Errorf("Walking trip must not load road edge %d, but got volume %f", ForwardEdgeID(2), tm.Volume)
	}

	segments[0] = Segment{ID: 1, Source: 1, Target: 2}
	engine, err = NewEngine(nodes, segments)
	if err != nil {
		t.Error(err)
		return
	}
	res, err := engine.Route(TripRequest{Origin: 1, Destination: 3})
	if err != nil {
		t.Error(err)
		return
	}
	if res.Mode() != MODE_DRIVE || !reflect.DeepEqual(res.Edges, []EdgeID{ForwardEdgeID(1), ForwardEdgeID(2)}) {
		t.Errorf("Free road must be driven all the way, but got %v (%v)", res.Edges, res.Kinds)
	}

	// jam the first road: walking 100 meters and driving the rest is not an option
	engine.SetVolume(ForwardEdgeID(1), 10000)
	if _, err := engine.AdvanceEpoch(context.Background()); err != nil {
		t.Error(err)
		return
	}
	walk, err := engine.Route(TripRequest{Origin: 1, Destination: 3, Modes: NewModeSet(MODE_WALK)})
	if err != nil {
		t.Error(err)
		return
	}
	res, err = engine.Route(TripRequest{Origin: 1, Destination: 3})
	if err != nil {
		t.Error(err)
		return
	}
	if res.Mode() != MODE_WALK || !reflect.DeepEqual(res.Edges, walk.Edges) || math.Abs(res.TotalCost-walk.TotalCost) > 1e-9 {
		t.Errorf("Trip must walk all the way: %v (%f), but got %v (%f)", walk.Edges, walk.TotalCost, res.Kinds, res.TotalCost)
	}
}

func TestHeuristicAdmissibleTransit(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	engine := prepareRandomEngine(t, rnd, 8)
	routes := []TransitRoute{
		{ID: 1, Mode: TRANSIT_BUS, Stops: []NodeID{0, 1, 2, 3, 4, 5, 6, 7}, Headway: 300},
		{ID: 2, Mode: TRANSIT_TRAM, Stops: []NodeID{4, 12, 20, 28, 36, 44, 52, 60}, Headway: 420},
		// diagonal legs of about 210 meters in 5 seconds are faster than any road
		{ID: 3, Mode: TRANSIT_RAIL, Stops: []NodeID{0, 9, 18, 27, 36, 45, 54, 63}, Headway: 240, RideTimes: []float64{5, 5, 5, 5, 5, 5, 5}},
	}
	if err := engine.SetRoutes(routes); err != nil {
		t.Error(err)
		return
	}
	if _, err := engine.AdvanceEpoch(context.Background()); err != nil {
		t.Error(err)
		return
	}
	snap := engine.Snapshot()
	if !snap.HeuristicEnabled() {
		t.Errorf("Heuristic must be enabled for network with positive costs")
		return
	}
	plain := *snap
	plain.heuristic = false
	planner := NewPlanner(0, 0)
	for q := 0; q < 200; q++ {
		req := TripRequest{
			ID:          uint64(q),
			Origin:      NodeID(rnd.Intn(64)),
			Destination: NodeID(rnd.Intn(64)),
			Modes:       NewModeSet(MODE_TRANSIT),
		}
		res, err := planner.Route(snap, req)
		expected, expectedErr := planner.Route(&plain, req)
		if (err == nil) != (expectedErr == nil) {
			t.Errorf("Outcome of %s must be %v, but got %v", req, expectedErr, err)
			continue
		}
		if err != nil {
			continue
		}
		if math.Abs(res.TotalCost-expected.TotalCost) > 1e-6 {
			t.Errorf("Cost of %s must be %f, but got %f", req, expected.TotalCost, res.TotalCost)
		}
		origin, _ := snap.Graph().Node(req.Origin)
		destination, _ := snap.Graph().Node(req.Destination)
		if h := planar.Distance(origin.Position, destination.Position) / snap.MaxSpeed(); h > expected.TotalCost+1e-9 {
			t.Errorf("Heuristic %f of %s must not exceed true cost %f", h, req, expected.TotalCost)
		}
	}
}
