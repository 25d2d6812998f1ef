package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alto"

var (
	CostRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_requests_total",
		Help:      "Endpoint cost requests served, by cost metric.",
	}, []string{"metric"})

	CostPairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cost_pairs_total",
		Help:      "Source/destination pairs evaluated, by cost metric and outcome.",
	}, []string{"metric", "outcome"})

	CostDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cost_duration_seconds",
		Help:      "Time spent computing a cost map.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"metric"})

	TopologyReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "topology_reloads_total",
		Help:      "Topology reload attempts, by outcome.",
	}, []string{"outcome"})

	TopologyDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_devices",
		Help:      "Devices in the current topology.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Node uploads received, by kind and outcome.",
	}, []string{"kind", "outcome"})

	ExportedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exported_route_records_total",
		Help:      "Route history records sent to the indexer, by outcome.",
	}, []string{"outcome"})
)

const (
	OutcomeComputed = "computed"
	OutcomeOmitted  = "omitted"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
)
