package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is a no-op so tests can run without a registry.
type Metrics struct {
	PagesCrawled    prometheus.Counter
	ArticlesAdded   *prometheus.CounterVec
	ArticlesSkipped *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	CrawlDuration   *prometheus.HistogramVec
	DigestRuns      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesCrawled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newsroom_pages_crawled_total",
			Help: "The total number of pages visited during discovery crawls",
		}),
		ArticlesAdded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_articles_added_total",
			Help: "The total number of articles persisted",
		}, []string{"source"}),
		ArticlesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_articles_skipped_total",
			Help: "The total number of candidate URLs skipped as duplicates or invalid",
		}, []string{"source", "reason"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_enrichment_failures_total",
			Help: "The total number of enrichment stage failures",
		}, []string{"stage"}),
		CrawlDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsroom_crawl_duration_seconds",
			Help:    "Duration of per-source scrape runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"source"}),
		DigestRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsroom_digest_runs_total",
			Help: "The total number of digest generation runs by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncPagesCrawled() {
	if m == nil {
		return
	}
	m.PagesCrawled.Inc()
}

func (m *Metrics) IncArticlesAdded(source string) {
	if m == nil {
		return
	}
	m.ArticlesAdded.WithLabelValues(source).Inc()
}

func (m *Metrics) IncArticlesSkipped(source, reason string) {
	if m == nil {
		return
	}
	m.ArticlesSkipped.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) IncStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveCrawlDuration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.CrawlDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) IncDigestRun(status string) {
	if m == nil {
		return
	}
	m.DigestRuns.WithLabelValues(status).Inc()
}
