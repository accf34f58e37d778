package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_miner_new")

	assert.NotNil(t, m.JobsStarted)
	assert.NotNil(t, m.JobsCompleted)
	assert.NotNil(t, m.JobsFailed)
	assert.NotNil(t, m.JobsStopped)
	assert.NotNil(t, m.JobDuration)
	assert.NotNil(t, m.ActiveJobs)
	assert.NotNil(t, m.NodeExecutions)
	assert.NotNil(t, m.InteractionsStored)
	assert.NotNil(t, m.ClaimsRejected)
	assert.NotNil(t, m.DocumentsAcquired)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMTokensUsed)
}

func TestRecordJobLifecycle(t *testing.T) {
	m := NewMetrics("test_miner_job_lifecycle")

	m.RecordJobStarted()
	m.RecordJobStarted()
	m.RecordJobStarted()
	assert.Equal(t, float64(3), testutil.ToFloat64(m.JobsStarted))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveJobs))

	m.RecordJobFinished("completed", false, 12)
	m.RecordJobFinished("failed", true, 3)
	m.RecordJobFinished("failed", false, 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsStopped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsFailed))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveJobs))

	count, err := getHistogramSampleCount(m.JobDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestRecordNodeAndPapers(t *testing.T) {
	m := NewMetrics("test_miner_nodes")

	m.RecordNode("create_query")
	m.RecordNode("create_query")
	m.RecordPaperChecked("rejected")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.NodeExecutions.WithLabelValues("create_query")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersChecked.WithLabelValues("rejected")))
}

func TestRecordInteractions(t *testing.T) {
	m := NewMetrics("test_miner_interactions")

	m.RecordInteractionStored()
	m.RecordClaimRejected("topic")
	m.RecordClaimRejected("effect")
	m.RecordClaimRejected("topic")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.InteractionsStored))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ClaimsRejected.WithLabelValues("topic")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClaimsRejected.WithLabelValues("effect")))
}

func TestRecordDocumentFetch(t *testing.T) {
	m := NewMetrics("test_miner_documents")

	m.RecordDocumentFetch("unpaywall", true, 0.8)
	m.RecordDocumentFetch("arxiv", false, 0.2)
	m.RecordDocumentUnavailable()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DocumentsAcquired.WithLabelValues("unpaywall")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.DocumentsAcquired.WithLabelValues("arxiv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DocumentsUnavailable))
}

func TestRecordSearch(t *testing.T) {
	m := NewMetrics("test_miner_search")

	m.RecordSearchCompleted("pubmed", 42, 1.2)
	m.RecordSearchFailed("pubmed", 0.4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesCompleted.WithLabelValues("pubmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesFailed.WithLabelValues("pubmed")))

	count, err := getHistogramSampleCount(m.PapersPerSearch)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewMetrics("test_miner_llm")

	m.RecordLLMRequest("relevance", "kimi-k2", 1.5, 100, 2)
	m.RecordLLMRequestFailed("extraction", "kimi-k2", "rate_limit")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("relevance", "kimi-k2")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("relevance", "kimi-k2", "input")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("relevance", "kimi-k2", "output")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsFailed.WithLabelValues("extraction", "kimi-k2", "rate_limit")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordJobStarted()
		m.RecordJobFinished("completed", false, 1)
		m.RecordNode("x")
		m.RecordPaperChecked("x")
		m.RecordInteractionStored()
		m.RecordClaimRejected("x")
		m.RecordDocumentFetch("x", true, 1)
		m.RecordDocumentUnavailable()
		m.RecordSearchCompleted("x", 1, 1)
		m.RecordSearchFailed("x", 1)
		m.RecordLLMRequest("x", "y", 1, 1, 1)
		m.RecordLLMRequestFailed("x", "y", "z")
	})
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var metric = &dto.Metric{}
	if err := m.Write(metric); err != nil {
		return 0, err
	}

	return metric.Histogram.GetSampleCount(), nil
}
