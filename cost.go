package cityflow

import (
	"math"
)

const (
	DEFAULT_BPR_ALPHA = 0.15
	DEFAULT_BPR_BETA  = 4.0
)

// CostModel converts a link and its current volume into traversal time (seconds).
// Implementations must be monotone non-decreasing in volume and never return less than free-flow time.
type CostModel interface {
	TravelTime(link *Link, volume float64) float64
}

// BPR is the Bureau of Public Roads volume-delay function:
//
//	t = t0 * (1 + alpha * (v/c)^beta)
type BPR struct {
	Alpha float64
	Beta  float64
}

// NewBPR returns BPR function with standard coefficients
func NewBPR() BPR {
	return BPR{Alpha: DEFAULT_BPR_ALPHA, Beta: DEFAULT_BPR_BETA}
}

// TravelTime implements CostModel. Road links without capacity are non-traversable (+Inf),
// other link kinds have fixed cost.
func (bpr BPR) TravelTime(link *Link, volume float64) float64 {
	if link.Kind != LINK_ROAD {
		return link.FreeFlowTime
	}
	if link.Capacity <= 0 {
		return math.Inf(1)
	}
	if volume <= 0 {
		return link.FreeFlowTime
	}
	ratio := volume / link.Capacity
	return link.FreeFlowTime * (1 + bpr.Alpha*math.Pow(ratio, bpr.Beta))
}

// VolumeCapacityRatio returns v/c. Edge without capacity but with volume is saturated (+Inf).
func VolumeCapacityRatio(volume, capacity float64) float64 {
	if volume <= 0 {
		return 0
	}
	if capacity <= 0 {
		return math.Inf(1)
	}
	return volume / capacity
}
