package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded on replyloop_items_dropped_total.
const (
	ReasonUnknownCaller = "unknown_caller"
	ReasonPoolRejected  = "pool_rejected"
	ReasonTaskFailed    = "task_failed"
	ReasonUndeliverable = "undeliverable"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "replyloop"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds the dispatcher's Prometheus metrics.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	ItemsReceived     prometheus.Counter
	ItemsDispatched   prometheus.Counter
	ItemsDropped      *prometheus.CounterVec
	RepliesDelivered  prometheus.Counter
	TaskDuration      prometheus.Histogram
	InFlight          prometheus.Gauge
	PoolQueueDepth    prometheus.Gauge
	RegisteredCallers prometheus.Gauge
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates and registers a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		ItemsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replyloop_items_received_total",
				Help: "Work items read from the inbound queue",
			},
		),
		ItemsDispatched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replyloop_items_dispatched_total",
				Help: "Work items submitted to the worker pool",
			},
		),
		ItemsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replyloop_items_dropped_total",
				Help: "Work items or replies dropped, by reason",
			},
			[]string{"reason"},
		),
		RepliesDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replyloop_replies_delivered_total",
				Help: "Replies handed to their caller",
			},
		),
		TaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replyloop_task_duration_seconds",
				Help:    "Time from submission to task completion",
				Buckets: []float64{.001, .01, .1, .5, 1, 2, 5, 10, 30},
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "replyloop_inflight_tasks",
				Help: "Dispatched tasks whose reply has not been settled",
			},
		),
		PoolQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "replyloop_pool_queue_depth",
				Help: "Tasks waiting for a free worker",
			},
		),
		RegisteredCallers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "replyloop_registered_callers",
				Help: "Callers whose reply entry has not been consumed",
			},
		),
	}
}

// RecordReceived counts an item read from the inbound queue
func (m *Metrics) RecordReceived() {
	if m == nil {
		return
	}
	m.ItemsReceived.Inc()
}

// RecordDispatched counts a submitted task and updates pool gauges
func (m *Metrics) RecordDispatched(queueDepth, remainingCallers int) {
	if m == nil {
		return
	}
	m.ItemsDispatched.Inc()
	m.InFlight.Inc()
	m.PoolQueueDepth.Set(float64(queueDepth))
	m.RegisteredCallers.Set(float64(remainingCallers))
}

// RecordDropped counts a dropped item or reply
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.ItemsDropped.WithLabelValues(reason).Inc()
}

// RecordSettled records the end of a dispatched task
func (m *Metrics) RecordSettled(duration time.Duration, delivered bool) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.TaskDuration.Observe(duration.Seconds())
	if delivered {
		m.RepliesDelivered.Inc()
	}
}

// SetRegisteredCallers sets the registered caller gauge
func (m *Metrics) SetRegisteredCallers(n int) {
	if m == nil {
		return
	}
	m.RegisteredCallers.Set(float64(n))
}
