// Package metrics provides Prometheus metrics for the asset resolution pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
	OutcomeSkipped = "skipped"

	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"

	ValidationAccepted = "accepted"
	ValidationRejected = "rejected"
)

// PipelineMetrics contains the collectors for classification, resolution,
// caching and validation. All Record methods are safe on a nil receiver.
type PipelineMetrics struct {
	fetchAttemptsTotal *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	cacheLookupsTotal  *prometheus.CounterVec
	cacheEntries       *prometheus.GaugeVec
	floorTotal         *prometheus.CounterVec
	strategiesTotal    *prometheus.CounterVec
	validationsTotal   *prometheus.CounterVec
	issuesTotal        *prometheus.CounterVec
	resolveDuration    prometheus.Histogram
}

// NewPipelineMetrics creates the collectors and registers them with registry.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.fetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_fetch_attempts_total",
			Help: "Total number of asset fetch attempts",
		},
		[]string{"source", "outcome"}, // outcome: success, failure, invalid, skipped
	)

	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "carousel_fetch_duration_seconds",
			Help: "Time taken by a single fetch attempt",
			// 50ms .. ~25s
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"source"},
	)

	m.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_cache_lookups_total",
			Help: "Total number of cache store lookups",
		},
		[]string{"result"}, // hit, stale, miss
	)

	m.cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carousel_cache_entries",
			Help: "Number of committed cache entries",
		},
		[]string{"kind"},
	)

	m.floorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_template_floor_total",
			Help: "Total number of slides that fell back to a pre-warmed template",
		},
		[]string{"hint"},
	)

	m.strategiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_strategies_total",
			Help: "Total number of classified slide strategies",
		},
		[]string{"visual_type", "hint"},
	)

	m.validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_validations_total",
			Help: "Total number of carousel validations",
		},
		[]string{"outcome"}, // accepted, rejected
	)

	m.issuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carousel_validation_issues_total",
			Help: "Total number of validation issues by code",
		},
		[]string{"severity", "code"},
	)

	m.resolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "carousel_resolve_duration_seconds",
		Help:    "Time taken to resolve all assets of one carousel",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fetchAttemptsTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.cacheLookupsTotal.Describe(ch)
	m.cacheEntries.Describe(ch)
	m.floorTotal.Describe(ch)
	m.strategiesTotal.Describe(ch)
	m.validationsTotal.Describe(ch)
	m.issuesTotal.Describe(ch)
	m.resolveDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fetchAttemptsTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.cacheLookupsTotal.Collect(ch)
	m.cacheEntries.Collect(ch)
	m.floorTotal.Collect(ch)
	m.strategiesTotal.Collect(ch)
	m.validationsTotal.Collect(ch)
	m.issuesTotal.Collect(ch)
	m.resolveDuration.Collect(ch)
}

// RecordFetchAttempt records one fetch attempt against a source.
func (m *PipelineMetrics) RecordFetchAttempt(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCacheLookup records a cache lookup result.
func (m *PipelineMetrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetCacheEntries sets the committed entry count for one kind.
func (m *PipelineMetrics) SetCacheEntries(kind string, n int) {
	if m == nil {
		return
	}
	m.cacheEntries.WithLabelValues(kind).Set(float64(n))
}

// RecordFloor records a fallback to the template floor.
func (m *PipelineMetrics) RecordFloor(hint string) {
	if m == nil {
		return
	}
	m.floorTotal.WithLabelValues(hint).Inc()
}

// RecordStrategy records one classified slide.
func (m *PipelineMetrics) RecordStrategy(visualType, hint string) {
	if m == nil {
		return
	}
	m.strategiesTotal.WithLabelValues(visualType, hint).Inc()
}

// RecordValidation records a carousel validation outcome.
func (m *PipelineMetrics) RecordValidation(accepted bool) {
	if m == nil {
		return
	}
	outcome := ValidationRejected
	if accepted {
		outcome = ValidationAccepted
	}
	m.validationsTotal.WithLabelValues(outcome).Inc()
}

// RecordIssue records one validation issue.
func (m *PipelineMetrics) RecordIssue(severity, code string) {
	if m == nil {
		return
	}
	m.issuesTotal.WithLabelValues(severity, code).Inc()
}

// ObserveResolve records the wall time of one full resolution pass.
func (m *PipelineMetrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(d.Seconds())
}
