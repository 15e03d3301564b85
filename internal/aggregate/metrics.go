package aggregate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"poolScope/internal/model"
)

// Cache event labels.
const (
	cacheEventLookup = "lookup"
	cacheEventMiss   = "miss"
)

// Metrics holds the Prometheus metrics for the aggregation service.
type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	fetchesTotal  *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	batchSize     prometheus.Histogram
}

// NewMetrics creates and registers the metrics for the service.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregator_fetch_duration_seconds",
			Help:    "Time taken to fetch and decode one pool, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_fetches_total",
			Help: "Pool fetches by chain and outcome code.",
		}, []string{"chain", "code"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_cache_events_total",
			Help: "Snapshot cache lookups and misses.",
		}, []string{"event"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_batch_size",
			Help:    "Unique identifiers per aggregate call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(m.fetchDuration, m.fetchesTotal, m.cacheEvents, m.batchSize)
	return m
}

// observeFetch records one completed fetch attempt chain. Safe on a nil
// receiver so wiring without metrics stays quiet.
func (m *Metrics) observeFetch(family model.ChainFamily, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(family.String(), code).Inc()
	m.fetchDuration.WithLabelValues(family.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) observeCache(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) observeBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}
