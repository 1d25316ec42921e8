package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(reg)
	require.NoError(t, err)

	m.RecordFetchAttempt("pexels", OutcomeSuccess, 120*time.Millisecond)
	m.RecordFetchAttempt("pexels", OutcomeFailure, time.Second)
	m.RecordFetchAttempt("pexels", OutcomeFailure, time.Second)
	m.RecordCacheLookup(LookupHit)
	m.RecordFloor("news")
	m.RecordValidation(true)
	m.RecordValidation(false)
	m.SetCacheEntries("template", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchAttemptsTotal.WithLabelValues("pexels", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchAttemptsTotal.WithLabelValues("pexels", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookupsTotal.WithLabelValues(LookupHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.floorTotal.WithLabelValues("news")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationsTotal.WithLabelValues(ValidationRejected)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.cacheEntries.WithLabelValues("template")))
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(reg)
	require.NoError(t, err)
	_, err = NewPipelineMetrics(reg)
	assert.Error(t, err)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordFetchAttempt("x", OutcomeFailure, time.Second)
		m.RecordCacheLookup(LookupMiss)
		m.SetCacheEntries("fetched", 1)
		m.RecordFloor("meme")
		m.RecordStrategy("TEXT_ONLY", "")
		m.RecordValidation(true)
		m.RecordIssue("ERROR", "empty_text")
		m.ObserveResolve(time.Second)
	})
}
