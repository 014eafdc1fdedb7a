// Package metrics exposes prometheus collectors for the task queue and the execution lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns a dedicated registry so tests and multiple processes never share global collectors.
type Manager struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	executionsTotal *prometheus.CounterVec
	chordsPending   prometheus.Gauge
}

func New() *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		registry: registry,

		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoimporter_tasks_total",
				Help: "Total number of task state changes",
			},
			[]string{"task", "status"},
		),

		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geoimporter_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"task"},
		),

		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoimporter_executions_total",
				Help: "Total number of executions that reached a terminal status",
			},
			[]string{"action", "status"},
		),

		chordsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geoimporter_chords_pending",
				Help: "Number of fan-out joins waiting for their members",
			},
		),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.executionsTotal,
		m.chordsPending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveTask counts the state change and records the duration of finished runs.
func (m *Manager) ObserveTask(task string, state models.TaskState, duration time.Duration) {
	m.tasksTotal.WithLabelValues(task, string(state)).Inc()

	if state.IsDone() || state == models.TaskStateRetry {
		m.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
	}
}

func (m *Manager) ObserveChordsPending(count int) {
	m.chordsPending.Set(float64(count))
}

// ObserveExecution counts an execution reaching status.
func (m *Manager) ObserveExecution(action models.Action, status models.ExecutionStatus) {
	m.executionsTotal.WithLabelValues(string(action), string(status)).Inc()
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
