package httpapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests       *prometheus.HistogramVec
	webhookEvents  *prometheus.CounterVec
	guardDenials   *prometheus.CounterVec
	analyzedVideos prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tubematch_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tubematch_webhook_events_total",
			Help: "Billing webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		guardDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tubematch_guard_denials_total",
			Help: "Requests rejected by the request gate.",
		}, []string{"guard", "reason"}),
		analyzedVideos: f.NewCounter(prometheus.CounterOpts{
			Name: "tubematch_analyzed_videos_total",
			Help: "Videos scored successfully.",
		}),
	}
}

func (m *metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
