// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

const namespace = "dex_router"

// Collector owns the router's prometheus metrics. Each collector has its own
// registry so that several can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	admitted      prometheus.Counter
	inFlight      prometheus.Gauge
	admissionWait prometheus.Histogram
	transitions   *prometheus.CounterVec
	completed     *prometheus.CounterVec
	attempts      prometheus.Histogram
	retries       prometheus.Counter
	routed        *prometheus.CounterVec
	swapDuration  *prometheus.HistogramVec
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_admitted_total",
			Help:      "Orders admitted by the queue",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orders_in_flight",
			Help:      "Pipelines currently holding a queue slot",
		}),
		admissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for a free queue slot",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Order status changes by target status",
		}, []string{"status"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_completed_total",
			Help:      "Orders that reached a terminal status",
		}, []string{"status"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_attempts",
			Help:      "Attempts used per finished order",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_retries_total",
			Help:      "Attempts that failed and were scheduled for retry",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by selected venue",
		}, []string{"dex"}),
		swapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_duration_seconds",
			Help:      "Swap execution latency by venue and outcome",
			Buckets:   prometheus.LinearBuckets(0.25, 0.25, 12),
		}, []string{"dex", "status"}),
	}

	c.registry.MustRegister(
		c.admitted,
		c.inFlight,
		c.admissionWait,
		c.transitions,
		c.completed,
		c.attempts,
		c.retries,
		c.routed,
		c.swapDuration,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAdmission counts an admitted order and how long it waited for a slot.
func (c *Collector) RecordAdmission(wait time.Duration) {
	c.admitted.Inc()
	c.inFlight.Inc()
	c.admissionWait.Observe(wait.Seconds())
}

// RecordRelease marks a queue slot as freed.
func (c *Collector) RecordRelease() {
	c.inFlight.Dec()
}

// RecordTransition counts a persisted status change.
func (c *Collector) RecordTransition(status models.OrderStatus) {
	c.transitions.WithLabelValues(string(status)).Inc()
}

// RecordCompletion counts a terminal order and the attempts it used.
func (c *Collector) RecordCompletion(status models.OrderStatus, attempts int) {
	c.completed.WithLabelValues(string(status)).Inc()
	c.attempts.Observe(float64(attempts))
}

// RecordRetry counts a failed attempt that will be retried.
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// RecordRouting counts the venue a routing decision selected.
func (c *Collector) RecordRouting(dex models.Platform) {
	c.routed.WithLabelValues(string(dex)).Inc()
}

// RecordSwap observes a swap call.
func (c *Collector) RecordSwap(dex models.Platform, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.swapDuration.WithLabelValues(string(dex), status).Observe(duration.Seconds())
}

// EventCounter is implemented by the event bus.
type EventCounter interface {
	Counts() (published, deliveryErrors uint64)
}

// TrackEvents exports the bus counters, read at scrape time.
func (c *Collector) TrackEvents(src EventCounter) {
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Order updates published on the event bus",
		}, func() float64 {
			published, _ := src.Counts()
			return float64(published)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivery_errors_total",
			Help:      "Observer deliveries that failed and were dropped",
		}, func() float64 {
			_, failed := src.Counts()
			return float64(failed)
		}),
	)
}
