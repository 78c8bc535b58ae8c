package cityflow

import (
	"fmt"
)

// TripRequest asks for a path between two road nodes
type TripRequest struct {
	ID          uint64  `json:"id"`
	Origin      NodeID  `json:"origin"`
	Destination NodeID  `json:"destination"`
	Modes       ModeSet `json:"modes"`
	// IssuedAt is simulated time (seconds) the trip was issued at
	IssuedAt float64 `json:"issued_at,omitempty"`
}

func (req TripRequest) String() string {
	return fmt.Sprintf("Trip %d (%d -> %d, modes: [%s])", req.ID, req.Origin, req.Destination, req.Modes)
}

// Breakdown splits total cost (seconds) of a path by the way it was spent
type Breakdown struct {
	DriveTime       float64 `json:"drive_time"`
	WalkTime        float64 `json:"walk_time"`
	WaitTime        float64 `json:"wait_time"`
	RideTime        float64 `json:"ride_time"`
	TransferPenalty float64 `json:"transfer_penalty"`
	Transfers       int     `json:"transfers"`
}

// PathResult is answer for a TripRequest
type PathResult struct {
	Request    TripRequest `json:"request"`
	Epoch      uint64      `json:"epoch"`
	Edges      []EdgeID    `json:"edges"`
	Nodes      []NodeID    `json:"nodes"`
	Kinds      []LinkKind  `json:"kinds"`
	TotalCost  float64     `json:"total_cost"`
	Breakdown  Breakdown   `json:"breakdown"`
	Expansions int         `json:"expansions"`
}

// Mode returns dominant mode of the path: transit if any vehicle was ridden, drive if any road was used, walk otherwise
func (res *PathResult) Mode() TravelMode {
	drive := false
	for _, kind := range res.Kinds {
		switch kind {
		case LINK_RIDE:
			return MODE_TRANSIT
		case LINK_ROAD:
			drive = true
		}
	}
	if drive {
		return MODE_DRIVE
	}
	return MODE_WALK
}

// RoadEdges returns road edges of the path, i.e. the ones carrying vehicle volume
func (res *PathResult) RoadEdges() []EdgeID {
	edges := make([]EdgeID, 0, len(res.Edges))
	for i, id := range res.Edges {
		if res.Kinds[i] == LINK_ROAD {
			edges = append(edges, id)
		}
	}
	return edges
}

func (breakdown *Breakdown) add(link *Link, cost float64) {
	switch link.Kind {
	case LINK_ROAD:
		breakdown.DriveTime += cost
	case LINK_WALK:
		breakdown.WalkTime += cost
	case LINK_WAIT:
		breakdown.WaitTime += cost
	case LINK_RIDE:
		breakdown.RideTime += cost
	case LINK_TRANSFER:
		breakdown.Transfers++
		breakdown.WaitTime += link.WaitPart
		breakdown.TransferPenalty += link.PenaltyPart
		breakdown.WalkTime += cost - link.WaitPart - link.PenaltyPart
	}
}
