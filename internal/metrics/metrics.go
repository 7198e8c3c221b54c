package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/briangreenhill/youthloop/cache"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements cache.Recorder and counts HTTP traffic. Cache series are
// labelled by key namespace (the part before the first ':' or '?').
type Metrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	CacheFetchErrors *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

var _ cache.Recorder = (*Metrics)(nil)

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthloop_cache_hits_total",
			Help: "Total number of cache hits",
		}, []string{"namespace"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthloop_cache_misses_total",
			Help: "Total number of cache misses",
		}, []string{"namespace"}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthloop_cache_evictions_total",
			Help: "Entries removed from the cache",
		}, []string{"reason"}),
		CacheFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthloop_cache_fetch_errors_total",
			Help: "Failed fetches behind the cache",
		}, []string{"namespace"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthloop_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "youthloop_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) Hit(key string)  { m.CacheHits.WithLabelValues(cache.Namespace(key)).Inc() }
func (m *Metrics) Miss(key string) { m.CacheMisses.WithLabelValues(cache.Namespace(key)).Inc() }

func (m *Metrics) Evict(reason cache.EvictReason, n int) {
	if n > 0 {
		m.CacheEvictions.WithLabelValues(string(reason)).Add(float64(n))
	}
}

func (m *Metrics) FetchError(key string) {
	m.CacheFetchErrors.WithLabelValues(cache.Namespace(key)).Inc()
}

// Middleware counts requests by method and status
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the gathered metrics
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
