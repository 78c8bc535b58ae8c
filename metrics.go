package cityflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CityflowEpoch tracks number of the last published epoch
	CityflowEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cityflow_epoch",
			Help: "Number of the last published epoch",
		},
	)

	// CityflowEpochDuration tracks time spent on the last epoch boundary
	CityflowEpochDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cityflow_epoch_duration_seconds",
			Help: "Time spent on applying edits, committing volumes and publishing snapshot",
		},
	)

	// CityflowTripsTotal counts route queries by outcome
	CityflowTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityflow_trips_total",
			Help: "Total number of route queries",
		},
		[]string{"outcome"},
	)

	// CityflowQueryDuration observes time of a single route query
	CityflowQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cityflow_query_duration_seconds",
			Help:    "Route query latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	// CityflowAverageCommute tracks average trip cost of the last epoch
	CityflowAverageCommute = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cityflow_average_commute_seconds",
			Help: "Average cost of trips routed during the last epoch",
		},
	)

	// CityflowModeShare tracks share of routed trips per mode
	CityflowModeShare = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cityflow_mode_share",
			Help: "Share of trips routed during the last epoch per travel mode",
		},
		[]string{"mode"},
	)

	// CityflowLOSEdges tracks number of road edges per level of service
	CityflowLOSEdges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cityflow_los_edges",
			Help: "Number of road edges per level of service grade",
		},
		[]string{"grade"},
	)

	// CityflowEditsTotal counts topology edits by result
	CityflowEditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityflow_edits_total",
			Help: "Total number of topology edits",
		},
		[]string{"result"},
	)
)

const (
	outcomeRouted  = "routed"
	outcomeNoRoute = "no_route"
	outcomeTimeout = "timeout"
	outcomeInvalid = "invalid"
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(CityflowEpoch)
	prometheus.MustRegister(CityflowEpochDuration)
	prometheus.MustRegister(CityflowTripsTotal)
	prometheus.MustRegister(CityflowQueryDuration)
	prometheus.MustRegister(CityflowAverageCommute)
	prometheus.MustRegister(CityflowModeShare)
	prometheus.MustRegister(CityflowLOSEdges)
	prometheus.MustRegister(CityflowEditsTotal)
}

func observeEpochMetrics(stats *EpochStats) {
	CityflowEpoch.Set(float64(stats.Epoch))
	CityflowEpochDuration.Set(stats.Duration.Seconds())
	CityflowAverageCommute.Set(stats.AverageCommute)
	for mode, share := range stats.ModeShare {
		CityflowModeShare.WithLabelValues(mode.String()).Set(share)
	}
	for grade, count := range stats.LOSDistribution {
		CityflowLOSEdges.WithLabelValues(grade.String()).Set(float64(count))
	}
	CityflowEditsTotal.WithLabelValues("applied").Add(float64(stats.AppliedEdits))
	CityflowEditsTotal.WithLabelValues("rejected").Add(float64(stats.RejectedEdits))
}
