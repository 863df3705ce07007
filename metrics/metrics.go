// Package metrics defines the Prometheus collectors shared by the cognition core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledgermind"

var (
	// ReasoningRuns counts finished reasoning invocations.
	// Labels: outcome (answer, exhausted, provider_error, cancelled)
	ReasoningRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reasoning",
			Name:      "runs_total",
			Help:      "Total number of reasoning invocations by outcome",
		},
		[]string{"outcome"},
	)

	// ReasoningIterations observes iterations used per invocation.
	ReasoningIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reasoning",
			Name:      "iterations",
			Help:      "Provider round-trips per reasoning invocation",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	// ToolExecutions counts tool execution attempts.
	// Labels: tool, outcome (success, failure, timeout, withheld, not_found)
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "executions_total",
			Help:      "Total number of tool execution attempts by outcome",
		},
		[]string{"tool", "outcome"},
	)

	// ToolDuration observes tool execution time.
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "duration_seconds",
			Help:      "Duration of tool executions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// ConfirmationsRequired counts gate decisions that required confirmation.
	// Labels: tool, approved (true, false)
	ConfirmationsRequired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "confirmations_required_total",
			Help:      "Total number of tool calls that required user confirmation",
		},
		[]string{"tool", "approved"},
	)

	// AuditRecordFailures counts action log writes that failed.
	AuditRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "record_failures_total",
			Help:      "Total number of action records that could not be persisted",
		},
	)

	// ComplianceEntries counts compliance audit entries written.
	// Labels: risk
	ComplianceEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "compliance_entries_total",
			Help:      "Total number of compliance audit entries by risk level",
		},
		[]string{"risk"},
	)

	// EmbeddingDuration observes embedding calls.
	// Labels: provider
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Duration of embedding requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// MemoriesStored counts stored memories.
	// Labels: type
	MemoriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "stored_total",
			Help:      "Total number of memories stored by type",
		},
		[]string{"type"},
	)

	// RecallDuration observes recall latency, embedding included.
	RecallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "recall_duration_seconds",
			Help:      "Duration of memory recall in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// MaintenanceRemoved counts memories removed by maintenance.
	// Labels: operation (consolidate, forget)
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "maintenance_removed_total",
			Help:      "Total number of memories removed by maintenance operation",
		},
		[]string{"operation"},
	)

	// ExtractionFailures counts best-effort extraction calls that yielded nothing.
	// Labels: kind (facts, preferences)
	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "extraction_failures_total",
			Help:      "Total number of fact or preference extractions that failed",
		},
		[]string{"kind"},
	)

	// ProviderFallbacks counts capability-provider fallbacks.
	// Labels: provider, result (success, failure, skipped)
	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Total number of backup provider attempts by result",
		},
		[]string{"provider", "result"},
	)
)
