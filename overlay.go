package cityflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// TransitParams holds walking and transfer settings of the overlay
type TransitParams struct {
	// WalkSpeed in m/s
	WalkSpeed float64
	// CatchmentRadius (meters) for walking from trip origin to a stop and from a stop to trip destination
	CatchmentRadius float64
	// TransferRadius (meters) for walking between stops when changing routes
	TransferRadius float64
	// TransferPenalty (seconds) added to every transfer
	TransferPenalty float64
	// HubTransferPenalty (seconds) is used instead when boarding stop is served by several transit modes
	HubTransferPenalty float64
}

// TransitOverlay extends road graph with sidewalks and transit links.
//
// For every route and stop position there is a virtual route-stop node. Overlay node indices continue
// road graph indices: virtual node i has index graph.NumNodes()+i. Overlay CSR rows cover both road and virtual nodes.
// Riders leave a route-stop node only by riding further, transferring or walking directly to trip destination,
// so transfer penalty can't be bypassed.
type TransitOverlay struct {
	graphVersion uint64
	base         int32
	params       TransitParams

	nodes   []Node
	nodeIdx map[NodeID]int32

	offsets []int32
	targets []int32
	links   []Link
	edgePos map[EdgeID]int32
	minID   EdgeID

	boardable  map[int32][]int32
	alightable map[int32][]int32
	stops      *quadtree.Quadtree

	routes   []RouteID
	excluded []RouteID
}

type overlayArc struct {
	source int32
	target int32
	link   Link
}

type stopPointer struct {
	idx int32
	pt  orb.Point
}

func (sp stopPointer) Point() orb.Point {
	return sp.pt
}

// BuildOverlay creates overlay for graph and routes. Routes which are suspended, have no headway
// or reference missing stops are excluded.
func BuildOverlay(graph *Graph, routes []TransitRoute, params TransitParams, verbose bool) *TransitOverlay {
	st := time.Now()
	if verbose {
		fmt.Printf("Preparing transit overlay...")
	}
	overlay := &TransitOverlay{
		graphVersion: graph.Version(),
		base:         int32(graph.NumNodes()),
		params:       params,
		nodeIdx:      make(map[NodeID]int32),
		boardable:    make(map[int32][]int32),
		alightable:   make(map[int32][]int32),
	}

	sorted := make([]TransitRoute, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	type activeRoute struct {
		route TransitRoute
		stops []int32
		first int32
	}
	active := make([]activeRoute, 0, len(sorted))
	for _, route := range sorted {
		if route.Suspended || route.Headway <= 0 || route.Validate() != nil {
			overlay.excluded = append(overlay.excluded, route.ID)
			continue
		}
		stops := make([]int32, len(route.Stops))
		missing := false
		for i, stopID := range route.Stops {
			idx, ok := graph.NodeIndex(stopID)
			if !ok {
				missing = true
				break
			}
			stops[i] = idx
		}
		if missing {
			if verbose {
				fmt.Printf("\n[WARNING]: route %d references unknown stop, excluded for this epoch", route.ID)
			}
			overlay.excluded = append(overlay.excluded, route.ID)
			continue
		}
		ar := activeRoute{route: route, stops: stops, first: overlay.base + int32(len(overlay.nodes))}
		for seq, stopIdx := range stops {
			stopNode := graph.NodeAt(stopIdx)
			id := routeStopNodeID(route.ID, seq)
			overlay.nodeIdx[id] = overlay.base + int32(len(overlay.nodes))
			overlay.nodes = append(overlay.nodes, Node{
				ID:       id,
				Kind:     NODE_ROUTE_STOP,
				Position: stopNode.Position,
				Name:     fmt.Sprintf("%s@%d", route.Name, stopNode.ID),
			})
		}
		active = append(active, ar)
		overlay.routes = append(overlay.routes, route.ID)
	}

	modesAtStop := make(map[int32]map[TransitMode]struct{})
	for _, ar := range active {
		for seq, stopIdx := range ar.stops {
			virtual := ar.first + int32(seq)
			if seq < len(ar.stops)-1 {
				overlay.boardable[stopIdx] = append(overlay.boardable[stopIdx], virtual)
			}
			if seq > 0 {
				overlay.alightable[stopIdx] = append(overlay.alightable[stopIdx], virtual)
			}
			if modesAtStop[stopIdx] == nil {
				modesAtStop[stopIdx] = make(map[TransitMode]struct{})
			}
			modesAtStop[stopIdx][ar.route.Mode] = struct{}{}
		}
	}
	overlay.buildStopIndex(graph)

	arcs := make([]overlayArc, 0)
	nextID := EdgeID(-1)
	add := func(source, target int32, link Link) {
		link.ID = nextID
		nextID--
		arcs = append(arcs, overlayArc{source: source, target: target, link: link})
	}

	// Sidewalks along every open non-highway segment, both directions
	for _, seg := range graph.Segments() {
		if seg.Closed || seg.Class == ROAD_HIGHWAY {
			continue
		}
		sourceIdx, _ := graph.NodeIndex(seg.Source)
		targetIdx, _ := graph.NodeIndex(seg.Target)
		length := seg.LengthMeters()
		walk := Link{
			Segment:      seg.ID,
			Source:       seg.Source,
			Target:       seg.Target,
			Kind:         LINK_WALK,
			Route:        -1,
			LengthMeters: length,
			FreeFlowTime: length / params.WalkSpeed,
			Geom:         seg.Geom,
		}
		add(sourceIdx, targetIdx, walk)
		walk.Source, walk.Target = seg.Target, seg.Source
		walk.Geom = reverseGeom(seg.Geom)
		add(targetIdx, sourceIdx, walk)
	}

	// Boarding waits for half of headway on average
	for _, ar := range active {
		for seq := 0; seq < len(ar.stops)-1; seq++ {
			stopNode := graph.NodeAt(ar.stops[seq])
			add(ar.stops[seq], ar.first+int32(seq), Link{
				Segment:      -1,
				Source:       stopNode.ID,
				Target:       routeStopNodeID(ar.route.ID, seq),
				Kind:         LINK_WAIT,
				Route:        ar.route.ID,
				FreeFlowTime: ar.route.Headway / 2,
				WaitPart:     ar.route.Headway / 2,
			})
		}
	}

	for _, ar := range active {
		speed := defaultSpeedByTransitMode[ar.route.Mode] / 3.6
		for seq := 0; seq < len(ar.stops)-1; seq++ {
			from := graph.NodeAt(ar.stops[seq]).Position
			to := graph.NodeAt(ar.stops[seq+1]).Position
			distance := planar.Distance(from, to)
			rideTime := distance / speed
			if len(ar.route.RideTimes) > 0 {
				rideTime = ar.route.RideTimes[seq]
			}
			add(ar.first+int32(seq), ar.first+int32(seq+1), Link{
				Segment:      -1,
				Source:       routeStopNodeID(ar.route.ID, seq),
				Target:       routeStopNodeID(ar.route.ID, seq+1),
				Kind:         LINK_RIDE,
				Route:        ar.route.ID,
				LengthMeters: distance,
				FreeFlowTime: rideTime,
				Geom:         straightGeom(from, to),
			})
		}
	}

	headways := make(map[int32]float64)
	routeOf := make(map[int32]RouteID)
	for _, ar := range active {
		for seq := range ar.stops {
			headways[ar.first+int32(seq)] = ar.route.Headway
			routeOf[ar.first+int32(seq)] = ar.route.ID
		}
	}
	for _, ar := range active {
		for seq := 1; seq < len(ar.stops); seq++ {
			fromIdx := ar.stops[seq]
			from := graph.NodeAt(fromIdx).Position
			for _, toIdx := range overlay.stopsWithin(from, params.TransferRadius) {
				penalty := params.TransferPenalty
				if len(modesAtStop[toIdx]) >= 2 {
					penalty = params.HubTransferPenalty
				}
				to := graph.NodeAt(toIdx).Position
				distance := planar.Distance(from, to)
				for _, virtual := range overlay.boardable[toIdx] {
					if routeOf[virtual] == ar.route.ID {
						continue
					}
					wait := headways[virtual] / 2
					add(ar.first+int32(seq), virtual, Link{
						Segment:      -1,
						Source:       routeStopNodeID(ar.route.ID, seq),
						Target:       overlay.nodes[virtual-overlay.base].ID,
						Kind:         LINK_TRANSFER,
						Route:        routeOf[virtual],
						LengthMeters: distance,
						FreeFlowTime: distance/params.WalkSpeed + wait + penalty,
						WaitPart:     wait,
						PenaltyPart:  penalty,
						Geom:         straightGeom(from, to),
					})
				}
			}
		}
	}
	overlay.minID = nextID + 1
	overlay.buildCSR(arcs)

	if verbose {
		fmt.Printf("Done in %v (routes: %d, excluded: %d, links: %d)\n", time.Since(st), len(overlay.routes), len(overlay.excluded), len(overlay.links))
	}
	return overlay
}

func (overlay *TransitOverlay) buildCSR(arcs []overlayArc) {
	numNodes := int(overlay.base) + len(overlay.nodes)
	sort.SliceStable(arcs, func(i, j int) bool {
		return arcs[i].source < arcs[j].source
	})
	overlay.offsets = make([]int32, numNodes+1)
	overlay.targets = make([]int32, len(arcs))
	overlay.links = make([]Link, len(arcs))
	overlay.edgePos = make(map[EdgeID]int32, len(arcs))
	for pos, arc := range arcs {
		overlay.offsets[arc.source+1]++
		overlay.targets[pos] = arc.target
		overlay.links[pos] = arc.link
		overlay.edgePos[arc.link.ID] = int32(pos)
	}
	for i := 1; i < len(overlay.offsets); i++ {
		overlay.offsets[i] += overlay.offsets[i-1]
	}
}

func (overlay *TransitOverlay) buildStopIndex(graph *Graph) {
	served := make([]int32, 0, len(overlay.boardable)+len(overlay.alightable))
	seen := make(map[int32]struct{})
	for _, byStop := range []map[int32][]int32{overlay.boardable, overlay.alightable} {
		for idx := range byStop {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			served = append(served, idx)
		}
	}
	if len(served) == 0 {
		return
	}
	points := make(orb.MultiPoint, len(served))
	for i, idx := range served {
		points[i] = graph.NodeAt(idx).Position
	}
	overlay.stops = quadtree.New(points.Bound().Pad(1))
	for i, idx := range served {
		_ = overlay.stops.Add(stopPointer{idx: idx, pt: points[i]})
	}
}

// stopsWithin returns road indices of served stops within radius ordered by index
func (overlay *TransitOverlay) stopsWithin(pt orb.Point, radius float64) []int32 {
	if overlay.stops == nil || radius < 0 {
		return nil
	}
	bound := orb.Bound{
		Min: orb.Point{pt.X() - radius, pt.Y() - radius},
		Max: orb.Point{pt.X() + radius, pt.Y() + radius},
	}
	found := overlay.stops.InBound(nil, bound)
	result := make([]int32, 0, len(found))
	for _, pointer := range found {
		sp := pointer.(stopPointer)
		if planar.Distance(pt, sp.pt) <= radius {
			result = append(result, sp.idx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

// queryArcs returns per-trip walking links: origin to nearby boardable stops and
// route-stop nodes near destination to destination
func (overlay *TransitOverlay) queryArcs(graph *Graph, originIdx, destIdx int32) []overlayArc {
	arcs := []overlayArc{}
	nextID := overlay.minID - 1
	origin := graph.NodeAt(originIdx)
	destination := graph.NodeAt(destIdx)
	for _, stopIdx := range overlay.stopsWithin(origin.Position, overlay.params.CatchmentRadius) {
		if stopIdx == originIdx || len(overlay.boardable[stopIdx]) == 0 {
			continue
		}
		stop := graph.NodeAt(stopIdx)
		distance := planar.Distance(origin.Position, stop.Position)
		arcs = append(arcs, overlayArc{source: originIdx, target: stopIdx, link: Link{
			ID:           nextID,
			Segment:      -1,
			Source:       origin.ID,
			Target:       stop.ID,
			Kind:         LINK_WALK,
			Route:        -1,
			LengthMeters: distance,
			FreeFlowTime: distance / overlay.params.WalkSpeed,
			Geom:         straightGeom(origin.Position, stop.Position),
		}})
		nextID--
	}
	for _, stopIdx := range overlay.stopsWithin(destination.Position, overlay.params.CatchmentRadius) {
		stop := graph.NodeAt(stopIdx)
		distance := planar.Distance(stop.Position, destination.Position)
		for _, virtual := range overlay.alightable[stopIdx] {
			arcs = append(arcs, overlayArc{source: virtual, target: destIdx, link: Link{
				ID:           nextID,
				Segment:      -1,
				Source:       overlay.nodes[virtual-overlay.base].ID,
				Target:       destination.ID,
				Kind:         LINK_WALK,
				Route:        -1,
				LengthMeters: distance,
				FreeFlowTime: distance / overlay.params.WalkSpeed,
				Geom:         straightGeom(stop.Position, destination.Position),
			}})
			nextID--
		}
	}
	return arcs
}

// GraphVersion returns version of road graph the overlay was built for
func (overlay *TransitOverlay) GraphVersion() uint64 {
	return overlay.graphVersion
}

// NumNodes returns number of virtual route-stop nodes
func (overlay *TransitOverlay) NumNodes() int {
	return len(overlay.nodes)
}

// NumLinks returns number of overlay links (sidewalks and transit)
func (overlay *TransitOverlay) NumLinks() int {
	return len(overlay.links)
}

// Links returns overlay links in CSR order. Returned slice must not be modified.
func (overlay *TransitOverlay) Links() []Link {
	return overlay.links
}

// ActiveRoutes returns routes present in the overlay
func (overlay *TransitOverlay) ActiveRoutes() []RouteID {
	return overlay.routes
}

// ExcludedRoutes returns routes skipped while building the overlay
func (overlay *TransitOverlay) ExcludedRoutes() []RouteID {
	return overlay.excluded
}

// Link returns overlay link by identifier
func (overlay *TransitOverlay) Link(id EdgeID) (Link, bool) {
	pos, ok := overlay.edgePos[id]
	if !ok {
		return Link{}, false
	}
	return overlay.links[pos], true
}

// RouteStopNode returns virtual node for given route and stop position
func (overlay *TransitOverlay) RouteStopNode(route RouteID, seq int) (Node, bool) {
	idx, ok := overlay.nodeIdx[routeStopNodeID(route, seq)]
	if !ok {
		return Node{}, false
	}
	return overlay.nodes[idx-overlay.base], true
}
