package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
)

// WorkflowEvent — событие уровня workflow.
type WorkflowEvent struct {
	WorkflowID string
	RunID      uuid.UUID
	Name       string
	Status     domain.WorkflowStatus
	Duration   time.Duration

	// ExitCode — заполнен только в WorkflowFinished.
	ExitCode int
}

// TaskEvent — событие уровня task.
type TaskEvent struct {
	WorkflowID string
	RunID      uuid.UUID
	TaskID     string
	Kind       domain.TaskKind
	Status     domain.TaskStatus

	// Attempt — номер попытки, начиная с 1.
	Attempt  int
	Duration time.Duration
	Route    string
	Error    *domain.ErrorInfo
}

// Observer получает события выполнения.
//
// Методы вызываются вне блокировки workflow и могут вызываться
// из нескольких горутин одновременно.
type Observer interface {
	WorkflowStarted(ctx context.Context, ev WorkflowEvent)
	TaskStarted(ctx context.Context, ev TaskEvent)
	TaskRetried(ctx context.Context, ev TaskEvent)
	TaskFinished(ctx context.Context, ev TaskEvent)
	WorkflowFinished(ctx context.Context, ev WorkflowEvent)
}

// NopObserver ничего не делает. Удобен для встраивания.
type NopObserver struct{}

func (NopObserver) WorkflowStarted(context.Context, WorkflowEvent)  {}
func (NopObserver) TaskStarted(context.Context, TaskEvent)          {}
func (NopObserver) TaskRetried(context.Context, TaskEvent)          {}
func (NopObserver) TaskFinished(context.Context, TaskEvent)         {}
func (NopObserver) WorkflowFinished(context.Context, WorkflowEvent) {}

// MultiObserver рассылает события нескольким наблюдателям по порядку.
type MultiObserver []Observer

func (m MultiObserver) WorkflowStarted(ctx context.Context, ev WorkflowEvent) {
	for _, o := range m {
		o.WorkflowStarted(ctx, ev)
	}
}

func (m MultiObserver) TaskStarted(ctx context.Context, ev TaskEvent) {
	for _, o := range m {
		o.TaskStarted(ctx, ev)
	}
}

func (m MultiObserver) TaskRetried(ctx context.Context, ev TaskEvent) {
	for _, o := range m {
		o.TaskRetried(ctx, ev)
	}
}

func (m MultiObserver) TaskFinished(ctx context.Context, ev TaskEvent) {
	for _, o := range m {
		o.TaskFinished(ctx, ev)
	}
}

func (m MultiObserver) WorkflowFinished(ctx context.Context, ev WorkflowEvent) {
	for _, o := range m {
		o.WorkflowFinished(ctx, ev)
	}
}

func taskEvent(wf *domain.Workflow, t *domain.Task) TaskEvent {
	ev := TaskEvent{
		WorkflowID: wf.ID,
		RunID:      wf.RunID,
		TaskID:     t.ID,
		Kind:       t.Kind,
		Status:     t.Status,
		Attempt:    t.RetriesUsed + 1,
		Duration:   t.Duration(),
		Route:      t.Route,
	}
	if t.Output != nil && t.Output.Error != nil {
		info := *t.Output.Error
		ev.Error = &info
	}
	return ev
}
