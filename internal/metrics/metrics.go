// Package metrics defines the Prometheus metrics shared by the splitbench
// server and probe. They are registered on the default registry and exposed
// by prometheusx in the server binary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sessions counts served offload sessions by final status.
	Sessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitbench_offload_sessions_total",
			Help: "Total number of offload sessions served",
		},
		[]string{"status"},
	)

	// Requests counts offload requests by outcome.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitbench_offload_requests_total",
			Help: "Total number of offload requests served",
		},
		[]string{"status"},
	)

	// ProcessingTime observes the server-side processing time per request.
	ProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splitbench_offload_processing_time_seconds",
			Help:    "Server-side processing time per offload request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	// Probes counts reachability probes by result.
	Probes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitbench_probes_total",
			Help: "Total number of TCP reachability probes",
		},
		[]string{"result"},
	)
)
