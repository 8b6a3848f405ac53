package metrics

import (
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements ports.Metrics.
type Prometheus struct {
	paymentRequests *prometheus.CounterVec
	paymentVolume   prometheus.Counter
	events          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the ledger collectors on reg. When disabled it returns a
// no-op implementation and registers nothing.
func New(enabled bool, reg prometheus.Registerer) ports.Metrics {
	if !enabled {
		return Noop()
	}

	f := promauto.With(reg)
	return &Prometheus{
		paymentRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payment_requests_total",
			Help: "Payment pulls by outcome code",
		}, []string{"outcome"}),

		paymentVolume: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_payment_volume_total",
			Help: "Sum of successfully pulled amounts in smallest units",
		}),

		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_total",
			Help: "Committed ledger events by type",
		}, []string{"type"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Prometheus) IncPaymentRequests(outcome string) {
	m.paymentRequests.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) AddPaymentVolume(amount int64) {
	m.paymentVolume.Add(float64(amount))
}

func (m *Prometheus) IncEvents(eventType domain.EventType) {
	m.events.WithLabelValues(string(eventType)).Inc()
}

func (m *Prometheus) IncHTTPRequests(route string, status int) {
	m.httpRequests.WithLabelValues(route, httpStatusBucket(status)).Inc()
}

func (m *Prometheus) ObserveHTTPDuration(route string, d time.Duration) {
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop returns metrics that record nothing.
func Noop() ports.Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncPaymentRequests(_ string)                   {}
func (noopMetrics) AddPaymentVolume(_ int64)                      {}
func (noopMetrics) IncEvents(_ domain.EventType)                  {}
func (noopMetrics) IncHTTPRequests(_ string, _ int)               {}
func (noopMetrics) ObserveHTTPDuration(_ string, _ time.Duration) {}
