// Package metrics exposes Prometheus collectors for the scheduler, the
// notification dispatcher and the HTTP API.
//
// All recorder methods are safe on a nil *Collector so components can be
// built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "subtrack"

// Collector owns a private registry and the metric vectors registered on it.
type Collector struct {
	registry *prometheus.Registry

	ScheduleOutcomes    *prometheus.CounterVec
	Cancellations       prometheus.Counter
	Resyncs             prometheus.Counter
	ScheduledGauge      prometheus.Gauge
	Deliveries          *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with its own registry. An empty namespace uses
// "subtrack".
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		ScheduleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_schedule_total",
			Help:      "Renewal reminder scheduling attempts by outcome",
		}, []string{"outcome"}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_cancelled_total",
			Help:      "Scheduled reminders removed by cancellation",
		}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_resync_total",
			Help:      "Bulk resync runs",
		}),
		ScheduledGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_scheduled",
			Help:      "Live scheduled reminders after the last resync",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_deliveries_total",
			Help:      "Fired reminders by delivery result",
		}, []string{"result"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.ScheduleOutcomes,
		c.Cancellations,
		c.Resyncs,
		c.ScheduledGauge,
		c.Deliveries,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
	)
	return c
}

// Registry returns the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSchedule(outcome string) {
	if c == nil {
		return
	}
	c.ScheduleOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCancelled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Cancellations.Add(float64(n))
}

func (c *Collector) RecordResync(live int) {
	if c == nil {
		return
	}
	c.Resyncs.Inc()
	c.ScheduledGauge.Set(float64(live))
}

func (c *Collector) RecordDelivery(result string) {
	if c == nil {
		return
	}
	c.Deliveries.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
