// Package metrics exposes Prometheus counters and histograms for the
// ingestion and retrieval paths, grounded on the pack's
// github.com/kraklabs-cie/pkg/ingestion/metrics.go singleton-struct
// pattern: a lazily-initialized struct of prometheus.Collectors,
// registered once via sync.Once, with small record* helper functions
// called from the hot path.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type metricsRegistry struct {
	once sync.Once

	// Ingestion
	jobsStarted   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobRetries    *prometheus.CounterVec // labeled by stage
	jobDuration   prometheus.Histogram

	stageDegraded *prometheus.CounterVec // labeled by stage

	// Retrieval
	searchRequests    prometheus.Counter
	searchFailed      prometheus.Counter
	retrieverFailures *prometheus.CounterVec // labeled by retriever
	searchDuration    prometheus.Histogram
	fusionDuration    prometheus.Histogram
	rerankerFallbacks prometheus.Counter
}

var reg metricsRegistry

func (m *metricsRegistry) init() {
	m.once.Do(func() {
		m.jobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_ingestion_jobs_started_total", Help: "Ingestion jobs claimed by a worker",
		})
		m.jobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_ingestion_jobs_completed_total", Help: "Ingestion jobs that reached completed",
		})
		m.jobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_ingestion_jobs_failed_total", Help: "Ingestion jobs that reached failed",
		})
		m.jobRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neoalexandria_ingestion_stage_retries_total", Help: "Retryable stage failures by stage",
		}, []string{"stage"})
		m.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "neoalexandria_ingestion_job_duration_seconds", Help: "Wall-clock duration of a completed ingestion job",
			Buckets: durationBuckets,
		})

		m.stageDegraded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neoalexandria_enrichment_stage_degraded_total", Help: "Degradable enrichment stage failures by stage",
		}, []string{"stage"})

		m.searchRequests = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_search_requests_total", Help: "Search requests handled",
		})
		m.searchFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_search_unavailable_total", Help: "Search requests that failed with RetrievalUnavailable",
		})
		m.retrieverFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neoalexandria_retriever_failures_total", Help: "Per-retriever failures during scatter-gather",
		}, []string{"retriever"})
		m.searchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "neoalexandria_search_duration_seconds", Help: "End-to-end Search call duration",
			Buckets: durationBuckets,
		})
		m.fusionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "neoalexandria_fusion_duration_seconds", Help: "RRF fusion + tie-break + facet computation duration",
			Buckets: durationBuckets,
		})
		m.rerankerFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neoalexandria_reranker_fallbacks_total", Help: "Reranker failures that fell back to fused order",
		})

		prometheus.MustRegister(
			m.jobsStarted, m.jobsCompleted, m.jobsFailed, m.jobRetries, m.jobDuration,
			m.stageDegraded,
			m.searchRequests, m.searchFailed, m.retrieverFailures, m.searchDuration,
			m.fusionDuration, m.rerankerFallbacks,
		)
	})
}

// Init registers the package-level collectors (held in reg) with the
// Prometheus default registry. Registration happens exactly once via
// sync.Once; every Record*/Observe* helper below also calls it, so an
// explicit Init at startup is optional.
func Init() { reg.init() }

func RecordJobStarted()   { reg.init(); reg.jobsStarted.Inc() }
func RecordJobCompleted() { reg.init(); reg.jobsCompleted.Inc() }
func RecordJobFailed()    { reg.init(); reg.jobsFailed.Inc() }

func RecordStageRetry(stage string) { reg.init(); reg.jobRetries.WithLabelValues(stage).Inc() }

func ObserveJobDuration(d time.Duration) { reg.init(); reg.jobDuration.Observe(d.Seconds()) }

func RecordStageDegraded(stage string) { reg.init(); reg.stageDegraded.WithLabelValues(stage).Inc() }

func RecordSearchRequest()     { reg.init(); reg.searchRequests.Inc() }
func RecordSearchUnavailable() { reg.init(); reg.searchFailed.Inc() }

func RecordRetrieverFailure(retriever string) {
	reg.init()
	reg.retrieverFailures.WithLabelValues(retriever).Inc()
}

func ObserveSearchDuration(d time.Duration) { reg.init(); reg.searchDuration.Observe(d.Seconds()) }
func ObserveFusionDuration(d time.Duration) { reg.init(); reg.fusionDuration.Observe(d.Seconds()) }

func RecordRerankerFallback() { reg.init(); reg.rerankerFallbacks.Inc() }
