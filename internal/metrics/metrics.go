// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hapa"

var (
	// ExtractionsTotal counts extraction attempts.
	// Labels: field, outcome (resolved, unresolved, skipped), source (entity, pattern, skip, llm, none)
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "attempts_total",
			Help:      "Total number of field extraction attempts by outcome and source",
		},
		[]string{"field", "outcome", "source"},
	)

	// LLMCallsTotal counts language model calls.
	// Labels: purpose (extract, dob, intent, response), result (ok, unavailable)
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of language model calls by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	// LLMCallDuration tracks language model round trips.
	LLMCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of language model calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ActionsTotal counts dispatched actions.
	// Labels: action, result (ok, error, unknown)
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "actions_total",
			Help:      "Total number of dispatched dialogue actions",
		},
		[]string{"action", "result"},
	)

	// StoreOpsTotal counts document store operations.
	// Labels: backend, op (get, update, list), result (ok, not_found, conflict, error)
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of document store operations",
		},
		[]string{"backend", "op", "result"},
	)

	// StoreUpdateDuration tracks read-modify-write latency per backend.
	StoreUpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "update_duration_seconds",
			Help:      "Duration of read-modify-write document updates in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// CorruptDocumentsTotal counts persisted documents that failed to decode.
	CorruptDocumentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "corrupt_documents_total",
			Help:      "Total number of persisted conversation documents reset after failing to decode",
		},
	)
)
