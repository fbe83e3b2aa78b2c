// Package metrics provides Prometheus metrics for the entity history service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entity_history"

var (
	// TransitionsTotal counts stream outcomes of applied writes
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "streams_total",
			Help:      "Stream transitions by stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	// TransitionDuration tracks write latency including retries
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "duration_seconds",
			Help:      "Duration of entity writes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	// ConflictsTotal counts writes rejected by a storage invariant
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Writes rejected with a conflict, by constraint",
		},
		[]string{"constraint", "retryable"},
	)

	// TxRetriesTotal counts serialization retries
	TxRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "tx_retries_total",
			Help:      "Write transactions retried after a serialization failure",
		},
	)

	// ReadsTotal counts temporal reads by kind
	ReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "read",
			Name:      "requests_total",
			Help:      "Temporal reads by kind",
		},
		[]string{"kind"},
	)

	// InvariantViolations is the number of violations found by the last verifier run
	InvariantViolations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "violations",
			Help:      "Invariant violations found by the last verifier run",
		},
		[]string{"stream", "check"},
	)

	// VerifierRuns counts verifier passes by result
	VerifierRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "runs_total",
			Help:      "Verifier passes by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks inbound API latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
