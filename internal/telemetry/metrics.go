package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/agentflow/internal/orchestrator"
)

// Metrics — наблюдатель, пишущий метрики выполнения в Prometheus.
type Metrics struct {
	orchestrator.NopObserver

	workflowsStarted  *prometheus.CounterVec
	workflowsFinished *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	tasksFinished     *prometheus.CounterVec
	taskRetries       *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		workflowsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_workflows_started_total",
				Help: "Total number of workflow runs started",
			},
			[]string{"workflow_id"},
		),
		workflowsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_workflows_finished_total",
				Help: "Total number of workflow runs finished or paused",
			},
			[]string{"workflow_id", "status"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_workflow_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow_id"},
		),
		tasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_tasks_finished_total",
				Help: "Total number of tasks that reached a final or waiting status",
			},
			[]string{"kind", "status"},
		),
		taskRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentflow_task_retries_total",
				Help: "Total number of task retry attempts",
			},
			[]string{"kind"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentflow_task_duration_seconds",
				Help:    "Duration of the last task attempt in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
	}
}

// WorkflowStarted реализует orchestrator.Observer.
func (m *Metrics) WorkflowStarted(_ context.Context, ev orchestrator.WorkflowEvent) {
	m.workflowsStarted.WithLabelValues(ev.WorkflowID).Inc()
}

// TaskRetried реализует orchestrator.Observer.
func (m *Metrics) TaskRetried(_ context.Context, ev orchestrator.TaskEvent) {
	m.taskRetries.WithLabelValues(string(ev.Kind)).Inc()
}

// TaskFinished реализует orchestrator.Observer.
func (m *Metrics) TaskFinished(_ context.Context, ev orchestrator.TaskEvent) {
	m.tasksFinished.WithLabelValues(string(ev.Kind), string(ev.Status)).Inc()
	if ev.Duration > 0 {
		m.taskDuration.WithLabelValues(string(ev.Kind)).Observe(ev.Duration.Seconds())
	}
}

// WorkflowFinished реализует orchestrator.Observer.
func (m *Metrics) WorkflowFinished(_ context.Context, ev orchestrator.WorkflowEvent) {
	m.workflowsFinished.WithLabelValues(ev.WorkflowID, string(ev.Status)).Inc()
	if ev.Duration > 0 {
		m.workflowDuration.WithLabelValues(ev.WorkflowID).Observe(ev.Duration.Seconds())
	}
}
