package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the interaction miner.
// Metrics are organized by subsystem: jobs, engine nodes, interactions,
// documents, searches and LLM operations. All collectors are registered via
// promauto with the default Prometheus registry.
//
// Record* methods are safe to call on a nil *Metrics, which lets components
// run without metrics in tests.
type Metrics struct {
	// JobsStarted counts jobs whose execution context started.
	JobsStarted prometheus.Counter

	// JobsCompleted counts jobs that ended completed (target reached or exhausted).
	JobsCompleted prometheus.Counter

	// JobsFailed counts jobs that ended failed for reasons other than a stop request.
	JobsFailed prometheus.Counter

	// JobsStopped counts jobs that ended because a stop was requested.
	JobsStopped prometheus.Counter

	// JobDuration observes end-to-end job duration in seconds.
	JobDuration prometheus.Histogram

	// ActiveJobs is the number of jobs currently executing in this process.
	ActiveJobs prometheus.Gauge

	// NodeExecutions counts engine node executions, labeled by node.
	NodeExecutions *prometheus.CounterVec

	// PapersChecked counts papers that finished evaluation, labeled by outcome
	// (rejected, unavailable, extracted).
	PapersChecked *prometheus.CounterVec

	// InteractionsStored counts interactions persisted.
	InteractionsStored prometheus.Counter

	// ClaimsRejected counts extracted claims that were not stored, labeled by
	// reason (effect, topic, duplicate).
	ClaimsRejected *prometheus.CounterVec

	// DocumentsAcquired counts successful document acquisitions, labeled by source.
	DocumentsAcquired *prometheus.CounterVec

	// DocumentsUnavailable counts papers for which no source produced a document.
	DocumentsUnavailable prometheus.Counter

	// DocumentFetchDuration observes document fetch duration in seconds, labeled by source.
	DocumentFetchDuration *prometheus.HistogramVec

	// SearchesCompleted counts successful searches, labeled by provider.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by provider.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by provider.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the number of papers returned per search.
	PapersPerSearch prometheus.Histogram

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Jobs
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of extraction jobs started",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of extraction jobs completed",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of extraction jobs that failed",
		}),
		JobsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stopped_total",
			Help:      "Total number of extraction jobs stopped on request",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of extraction jobs in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of extraction jobs currently executing",
		}),

		// Engine
		NodeExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of workflow node executions by node",
		}, []string{"node"}),
		PapersChecked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_checked_total",
			Help:      "Total number of papers evaluated by outcome",
		}, []string{"outcome"}),

		// Interactions
		InteractionsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_stored_total",
			Help:      "Total number of interactions persisted",
		}),
		ClaimsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_rejected_total",
			Help:      "Total number of extracted claims not stored by reason",
		}, []string{"reason"}),

		// Documents
		DocumentsAcquired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_acquired_total",
			Help:      "Total number of documents acquired by source",
		}, []string{"source"}),
		DocumentsUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_unavailable_total",
			Help:      "Total number of papers with no retrievable full text",
		}),
		DocumentFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_fetch_duration_seconds",
			Help:      "Duration of document fetch attempts in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),

		// Searches
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of literature searches completed by provider",
		}, []string{"provider"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of literature searches that failed by provider",
		}, []string{"provider"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of literature searches in seconds by provider",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		PapersPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 75, 100},
		}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests by operation and model",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordJobStarted records that a job started executing.
func (m *Metrics) RecordJobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
	m.ActiveJobs.Inc()
}

// RecordJobFinished records a job's terminal status and duration.
func (m *Metrics) RecordJobFinished(status string, stopped bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
	m.JobDuration.Observe(durationSeconds)
	switch {
	case stopped:
		m.JobsStopped.Inc()
	case status == "completed":
		m.JobsCompleted.Inc()
	default:
		m.JobsFailed.Inc()
	}
}

// RecordNode records one engine node execution.
func (m *Metrics) RecordNode(node string) {
	if m == nil {
		return
	}
	m.NodeExecutions.WithLabelValues(node).Inc()
}

// RecordPaperChecked records a paper evaluation outcome.
func (m *Metrics) RecordPaperChecked(outcome string) {
	if m == nil {
		return
	}
	m.PapersChecked.WithLabelValues(outcome).Inc()
}

// RecordInteractionStored records a persisted interaction.
func (m *Metrics) RecordInteractionStored() {
	if m == nil {
		return
	}
	m.InteractionsStored.Inc()
}

// RecordClaimRejected records a claim that was not stored.
func (m *Metrics) RecordClaimRejected(reason string) {
	if m == nil {
		return
	}
	m.ClaimsRejected.WithLabelValues(reason).Inc()
}

// RecordDocumentFetch records one fetch attempt against a document source.
func (m *Metrics) RecordDocumentFetch(source string, ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DocumentFetchDuration.WithLabelValues(source).Observe(durationSeconds)
	if ok {
		m.DocumentsAcquired.WithLabelValues(source).Inc()
	}
}

// RecordDocumentUnavailable records a paper for which every source failed.
func (m *Metrics) RecordDocumentUnavailable() {
	if m == nil {
		return
	}
	m.DocumentsUnavailable.Inc()
}

// RecordSearchCompleted records a completed search.
func (m *Metrics) RecordSearchCompleted(provider string, paperCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.WithLabelValues(provider).Inc()
	m.SearchDuration.WithLabelValues(provider).Observe(durationSeconds)
	m.PapersPerSearch.Observe(float64(paperCount))
}

// RecordSearchFailed records a failed search.
func (m *Metrics) RecordSearchFailed(provider string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.WithLabelValues(provider).Inc()
	m.SearchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
