// Package metrics holds the Prometheus collectors for the planning backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orcascore"

// Metrics groups every collector the server exports. A nil *Metrics is valid
// and records nothing, so components can run without instrumentation.
type Metrics struct {
	llmRequests      *prometheus.CounterVec
	llmDuration      *prometheus.HistogramVec
	planningRuns     *prometheus.CounterVec
	planningActive   prometheus.Gauge
	subtasksCreated  *prometheus.CounterVec
	lockAcquires     *prometheus.CounterVec
	staleLocksSwept  prometheus.Counter
	eventSubscribers *prometheus.GaugeVec
	eventsDropped    prometheus.Counter
}

// MustNewMetrics builds the collectors and registers them with reg.
// Registration errors panic; tests should pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM provider requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Latency of LLM provider requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		planningRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planning",
			Name:      "runs_total",
			Help:      "Finished planning runs by outcome (ai, fallback, failed).",
		}, []string{"outcome"}),
		planningActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "planning",
			Name:      "runs_active",
			Help:      "Planning runs currently executing.",
		}),
		subtasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planning",
			Name:      "subtasks_created_total",
			Help:      "Subtasks created by planning runs, by source (ai, fallback).",
		}, []string{"source"}),
		lockAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "acquire_total",
			Help:      "Edit lock acquisition attempts by owner and result.",
		}, []string{"locked_by", "result"}),
		staleLocksSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locks",
			Name:      "stale_removed_total",
			Help:      "Stale edit locks removed by cleanup.",
		}),
		eventSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Connected event stream subscribers by transport.",
		}, []string{"transport"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}),
	}

	reg.MustRegister(
		m.llmRequests,
		m.llmDuration,
		m.planningRuns,
		m.planningActive,
		m.subtasksCreated,
		m.lockAcquires,
		m.staleLocksSwept,
		m.eventSubscribers,
		m.eventsDropped,
	)
	return m
}

// ObserveLLMRequest records one provider call.
func (m *Metrics) ObserveLLMRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, outcome).Inc()
	m.llmDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// PlanningStarted marks a run as active.
func (m *Metrics) PlanningStarted() {
	if m == nil {
		return
	}
	m.planningActive.Inc()
}

// PlanningFinished records the outcome of a run and marks it inactive.
func (m *Metrics) PlanningFinished(outcome string) {
	if m == nil {
		return
	}
	m.planningActive.Dec()
	m.planningRuns.WithLabelValues(outcome).Inc()
}

// SubtaskCreated counts one persisted subtask.
func (m *Metrics) SubtaskCreated(source string) {
	if m == nil {
		return
	}
	m.subtasksCreated.WithLabelValues(source).Inc()
}

// LockAcquire counts an acquisition attempt.
func (m *Metrics) LockAcquire(lockedBy string, acquired bool) {
	if m == nil {
		return
	}
	result := "conflict"
	if acquired {
		result = "acquired"
	}
	m.lockAcquires.WithLabelValues(lockedBy, result).Inc()
}

// StaleLocksRemoved adds n removed locks.
func (m *Metrics) StaleLocksRemoved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleLocksSwept.Add(float64(n))
}

// SubscriberConnected and SubscriberDisconnected track live event streams.
func (m *Metrics) SubscriberConnected(transport string) {
	if m == nil {
		return
	}
	m.eventSubscribers.WithLabelValues(transport).Inc()
}

func (m *Metrics) SubscriberDisconnected(transport string) {
	if m == nil {
		return
	}
	m.eventSubscribers.WithLabelValues(transport).Dec()
}

// EventDropped counts an event not delivered to a slow subscriber.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
