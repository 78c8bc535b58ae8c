package cityflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EpochStats aggregates outcome of one epoch: trips routed during it and congestion committed at its end
type EpochStats struct {
	Epoch           uint64                 `json:"epoch"`
	Trips           int                    `json:"trips"`
	Routed          int                    `json:"routed"`
	Stranded        int                    `json:"stranded"`
	Timeouts        int                    `json:"timeouts"`
	AverageCommute  float64                `json:"average_commute"`
	ModeShare       map[TravelMode]float64 `json:"mode_share"`
	LOSDistribution map[LOSGrade]int       `json:"los_distribution"`
	AverageVC       float64                `json:"average_vc"`
	AppliedEdits    int                    `json:"applied_edits"`
	RejectedEdits   int                    `json:"rejected_edits"`
	FullRebuild     bool                   `json:"full_rebuild"`
	ActiveRoutes    int                    `json:"active_routes"`
	ExcludedRoutes  int                    `json:"excluded_routes"`
	Duration        time.Duration          `json:"duration"`
}

func (stats *EpochStats) String() string {
	shares := make([]string, 0, len(travelModesAll))
	for _, mode := range travelModesAll {
		shares = append(shares, fmt.Sprintf("%s=%.2f", mode, stats.ModeShare[mode]))
	}
	grades := make([]string, 0, len(LOSGrades))
	for _, grade := range LOSGrades {
		grades = append(grades, fmt.Sprintf("%s=%d", grade, stats.LOSDistribution[grade]))
	}
	return fmt.Sprintf("epoch %d: trips %d (routed %d, stranded %d, timeouts %d), avg commute %.1fs, mode share [%s], LOS [%s], avg v/c %.3f",
		stats.Epoch, stats.Trips, stats.Routed, stats.Stranded, stats.Timeouts, stats.AverageCommute,
		strings.Join(shares, " "), strings.Join(grades, " "), stats.AverageVC)
}

// StatsSink receives statistics at the end of every epoch
type StatsSink interface {
	PublishStats(ctx context.Context, stats *EpochStats) error
}

// tripCollector accumulates trip outcomes between two epoch boundaries
type tripCollector struct {
	trips       int
	routed      int
	stranded    int
	timeouts    int
	commuteSum  float64
	modeCounter map[TravelMode]int
}

func newTripCollector() *tripCollector {
	return &tripCollector{
		modeCounter: make(map[TravelMode]int),
	}
}

func (tc *tripCollector) recordRouted(res *PathResult) {
	tc.trips++
	tc.routed++
	tc.commuteSum += res.TotalCost
	tc.modeCounter[res.Mode()]++
}

func (tc *tripCollector) recordFailure(timeout bool) {
	tc.trips++
	tc.stranded++
	if timeout {
		tc.timeouts++
	}
}

func (tc *tripCollector) fill(stats *EpochStats) {
	stats.Trips = tc.trips
	stats.Routed = tc.routed
	stats.Stranded = tc.stranded
	stats.Timeouts = tc.timeouts
	stats.ModeShare = make(map[TravelMode]float64, len(travelModesAll))
	for _, mode := range travelModesAll {
		stats.ModeShare[mode] = 0
		if tc.routed > 0 {
			stats.ModeShare[mode] = float64(tc.modeCounter[mode]) / float64(tc.routed)
		}
	}
	if tc.routed > 0 {
		stats.AverageCommute = tc.commuteSum / float64(tc.routed)
	}
}
