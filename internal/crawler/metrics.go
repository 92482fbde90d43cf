package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maltedev/product-ranker/internal/models"
)

// Metrics collects crawl counters and timings. All methods are nil
// receiver safe so a metrics-less orchestrator pays nothing.
type Metrics struct {
	pagesTotal      prometheus.Counter
	itemsTotal      prometheus.Counter
	duplicatesTotal prometheus.Counter
	crawlsTotal     *prometheus.CounterVec
	pageDuration    prometheus.Histogram
	crawlDuration   prometheus.Histogram

	lastDuplicates int
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Pages visited across all crawls.",
		}),
		itemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_items_extracted_total",
			Help: "Items extracted from result pages, before deduplication.",
		}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_duplicates_total",
			Help: "Items dropped because their identity key was already seen.",
		}),
		crawlsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_crawls_total",
			Help: "Finished crawls by stop reason.",
		}, []string{"stop_reason"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_page_duration_seconds",
			Help:    "Duration of one page cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		crawlDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_crawl_duration_seconds",
			Help:    "Duration of a whole crawl.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pagesTotal, m.itemsTotal, m.duplicatesTotal,
			m.crawlsTotal, m.pageDuration, m.crawlDuration)
	}
	return m
}

func (m *Metrics) ObservePage(extracted, duplicatesTotal int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pagesTotal.Inc()
	m.itemsTotal.Add(float64(extracted))
	if d := duplicatesTotal - m.lastDuplicates; d > 0 {
		m.duplicatesTotal.Add(float64(d))
	}
	m.lastDuplicates = duplicatesTotal
	m.pageDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCrawl(result *models.CrawlResult) {
	if m == nil || result == nil {
		return
	}
	m.crawlsTotal.WithLabelValues(string(result.StopReason)).Inc()
	m.crawlDuration.Observe(result.Duration.Seconds())
	m.lastDuplicates = 0
}
