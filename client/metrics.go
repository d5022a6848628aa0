package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registrations *prometheus.CounterVec
	ticks         *prometheus.CounterVec
	rearmFailures prometheus.Counter
	deletions     prometheus.Counter
	janitorRearms prometheus.Counter
	tasks         *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Recurring jobs registered, by schedule kind",
			},
			[]string{"kind"},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Rescheduler ticks, by outcome",
			},
			[]string{"outcome"},
		),
		rearmFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rearm_failures_total",
				Help:      "Ticks that failed to arm their successor",
			},
		),
		deletions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletions_total",
				Help:      "Recurring jobs deleted",
			},
		),
		janitorRearms: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "janitor_rearms_total",
				Help:      "Stalled recurring jobs re-armed by the janitor",
			},
		),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Executed scheduled tasks, by final status",
			},
			[]string{"status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of scheduled task handlers",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.registrations,
		m.ticks,
		m.rearmFailures,
		m.deletions,
		m.janitorRearms,
		m.tasks,
		m.taskDuration,
	)

	return m
}

func (m *Metrics) RecordRegistration(kind string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordTick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRearmFailure() {
	if m == nil {
		return
	}
	m.rearmFailures.Inc()
}

func (m *Metrics) RecordDeletion() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

func (m *Metrics) RecordJanitorRearm() {
	if m == nil {
		return
	}
	m.janitorRearms.Inc()
}

func (m *Metrics) RecordTask(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}
