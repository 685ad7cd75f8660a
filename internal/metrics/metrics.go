// Package metrics exposes the Prometheus collectors of the booking service.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tixbook"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	bookings         *prometheus.CounterVec
	ticketsReserved  prometheus.Counter
	ticketsReleased  prometheus.Counter
	paymentOps       *prometheus.CounterVec
	eventsDeleted    prometheus.Counter
	cascadeCancelled prometheus.Counter
	cacheInvalidated *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		ticketsReserved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_reserved_total",
			Help:      "Tickets taken from event inventory.",
		}),
		ticketsReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_released_total",
			Help:      "Tickets returned to event inventory.",
		}),
		paymentOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_operations_total",
			Help:      "Payment state changes by operation.",
		}, []string{"operation"}),
		eventsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_deleted_total",
			Help:      "Events removed by their managers.",
		}),
		cascadeCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_cancelled_bookings_total",
			Help:      "Bookings cancelled because their event was deleted.",
		}),
		cacheInvalidated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Event cache invalidations by source.",
		}, []string{"source"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// BookingOutcome is one of "created", "insufficient", "rate_limited", "failed".
func (m *Metrics) BookingOutcome(outcome string) {
	if m == nil {
		return
	}

	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TicketsReserved(n int) {
	if m == nil {
		return
	}

	m.ticketsReserved.Add(float64(n))
}

func (m *Metrics) TicketsReleased(n int) {
	if m == nil {
		return
	}

	m.ticketsReleased.Add(float64(n))
}

func (m *Metrics) PaymentOp(op string) {
	if m == nil {
		return
	}

	m.paymentOps.WithLabelValues(op).Inc()
}

func (m *Metrics) EventDeleted(cancelled int64) {
	if m == nil {
		return
	}

	m.eventsDeleted.Inc()
	m.cascadeCancelled.Add(float64(cancelled))
}

func (m *Metrics) CacheInvalidated(source string) {
	if m == nil {
		return
	}

	m.cacheInvalidated.WithLabelValues(source).Inc()
}
