// Package metrics exposes Prometheus collectors for executions, dispatches and notifications.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workflowd"

// Dispatch results.
const (
	DispatchSent      = "sent"
	DispatchDuplicate = "duplicate"
	DispatchFailed    = "failed"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	dispatches        *prometheus.CounterVec
	recovered         prometheus.Counter
	subscribers       prometheus.Gauge
	droppedNotices    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finalized workflow executions by status and source.",
		}, []string{"status", "source"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time from start to finalization of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
		}, []string{"source"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Per-customer action dispatches by result.",
		}, []string{"result"}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_executions_total",
			Help:      "Stale executions finalized as FAILED by the recovery pass.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_subscribers",
			Help:      "Open notification streams.",
		}),
		droppedNotices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a subscriber buffer was full.",
		}),
	}

	m.registry.MustRegister(
		m.executions,
		m.executionDuration,
		m.dispatches,
		m.recovered,
		m.subscribers,
		m.droppedNotices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ExecutionFinished(status, source string, duration time.Duration) {
	if m == nil {
		return
	}

	m.executions.WithLabelValues(status, source).Inc()
	m.executionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) Dispatched(result string) {
	if m == nil {
		return
	}

	m.dispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) ExecutionRecovered() {
	if m == nil {
		return
	}

	m.recovered.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}

	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}

	m.subscribers.Dec()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}

	m.droppedNotices.Inc()
}
