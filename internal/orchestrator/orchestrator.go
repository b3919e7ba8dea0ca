package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/strategy"
)

// Default configuration values.
const (
	defaultMaxParallel = 4
)

// Режимы планирования.
const (
	ModeBlocking    = "blocking"
	ModeCooperative = "cooperative"
)

// Runner — общий контракт обоих вариантов engine.
type Runner interface {
	// Run проверяет input, выполняет workflow и возвращает отчёт.
	// Ошибки tasks попадают в отчёт; error возвращается только при
	// неправильном использовании или отмене контекста.
	Run(ctx context.Context, wf *domain.Workflow, input map[string]any) (*Report, error)

	// Resume передаёт ввод task, ожидающему уточнения, и продолжает выполнение.
	Resume(ctx context.Context, wf *domain.Workflow, taskID string, input map[string]any) (*Report, error)
}

// Config — конфигурация engine.
type Config struct {
	// Strategies — стратегии по виду task (если nil — стратегии без модели и инструментов).
	Strategies *strategy.Registry

	// Conditions — вычислитель условий (если nil — создаётся по умолчанию).
	Conditions *engine.ConditionEvaluator

	// MaxParallel — максимум одновременных вызовов стратегий (default: 4).
	MaxParallel int

	// Retry — задержка между попытками, если workflow не задаёт свою.
	Retry *domain.RetryPolicy

	// Observer — получатель событий выполнения.
	Observer Observer

	// Logger
	Logger *slog.Logger
}

// NewRunner создаёт engine по имени режима.
func NewRunner(mode string, cfg Config) (Runner, error) {
	switch mode {
	case "", ModeBlocking:
		return New(cfg), nil
	case ModeCooperative:
		return NewCooperative(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

// core — учёт, общий для обоих вариантов.
// Варианты отличаются только тем, как они планируют вызовы стратегий.
type core struct {
	strategies  *strategy.Registry
	conditions  *engine.ConditionEvaluator
	maxParallel int
	retry       *domain.RetryPolicy
	observer    Observer
	logger      *slog.Logger
}

func newCore(cfg Config) core {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	strategies := cfg.Strategies
	if strategies == nil {
		strategies = strategy.NewRegistry(nil, nil, logger)
	}

	conditions := cfg.Conditions
	if conditions == nil {
		var err error
		conditions, err = engine.NewConditionEvaluator()
		if err != nil {
			logger.Error("failed to create condition evaluator", "error", err)
		}
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return core{
		strategies:  strategies,
		conditions:  conditions,
		maxParallel: maxParallel,
		retry:       cfg.Retry,
		observer:    observer,
		logger:      logger,
	}
}

// attempt — одна попытка выполнения task.
type attempt struct {
	// task — живой task в workflow. Меняется только под Mutate.
	task *domain.Task

	// snapshot — копия task для стратегии.
	snapshot *domain.Task
	input    map[string]any
}

// outcome — итог применения результата попытки.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeRetry
	outcomeAwaiting
)

// driveFunc — планирование tasks конкретным вариантом.
type driveFunc func(ctx context.Context, rs *runState) error

func (c *core) run(ctx context.Context, wf *domain.Workflow, input map[string]any, drive driveFunc) (*Report, error) {
	if wf == nil {
		return nil, ErrNilWorkflow
	}
	logger := c.logger.With("workflow_id", wf.ID, "run_id", wf.RunID.String())

	var startErr, inputErr error
	wf.Mutate(func(v *domain.View) {
		w := v.Workflow()
		if w.Status != domain.WorkflowStatusPending {
			startErr = fmt.Errorf("%w: status %s", ErrAlreadyStarted, w.Status)
			return
		}

		now := time.Now()
		w.StartedAt = &now
		w.Status = domain.WorkflowStatusRunning

		checked, err := engine.CheckInput(w.InputDefs, input)
		if err != nil {
			inputErr = err
			w.Failure = inputFailure(err)
			for _, t := range v.Tasks() {
				_ = t.MarkSkipped()
			}
			return
		}
		w.Input = checked
	})
	if startErr != nil {
		return nil, startErr
	}

	c.observer.WorkflowStarted(ctx, WorkflowEvent{
		WorkflowID: wf.ID,
		RunID:      wf.RunID,
		Name:       wf.Name,
		Status:     domain.WorkflowStatusRunning,
	})
	logger.Info("workflow started", "tasks", wf.Len())

	rs := newRunState(wf, c.retry, logger)
	if inputErr != nil {
		logger.Warn("workflow input rejected", "error", inputErr)
		return c.finish(ctx, rs), nil
	}

	err := drive(ctx, rs)
	return c.finish(ctx, rs), err
}

func (c *core) resume(ctx context.Context, wf *domain.Workflow, taskID string, input map[string]any, drive driveFunc) (*Report, error) {
	if wf == nil {
		return nil, ErrNilWorkflow
	}
	logger := c.logger.With("workflow_id", wf.ID, "run_id", wf.RunID.String())

	var err error
	wf.Mutate(func(v *domain.View) {
		w := v.Workflow()
		if w.Status != domain.WorkflowStatusPaused {
			err = fmt.Errorf("%w: status %s", ErrNotPaused, w.Status)
			return
		}
		t, ok := v.Task(taskID)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
			return
		}
		if resetErr := t.ResetForResume(input); resetErr != nil {
			err = fmt.Errorf("%w: %s (%s)", ErrTaskNotAwaiting, taskID, t.Status)
			return
		}
		w.Status = domain.WorkflowStatusRunning
	})
	if err != nil {
		return nil, err
	}

	logger.Info("workflow resumed", "task_id", taskID)

	rs := newRunState(wf, c.retry, logger)
	err = drive(ctx, rs)
	return c.finish(ctx, rs), err
}

// settle пропускает недостижимые tasks и возвращает готовые.
func (c *core) settle(ctx context.Context, rs *runState) []*domain.Task {
	var readyTasks []*domain.Task
	var events []TaskEvent

	rs.wf.Mutate(func(v *domain.View) {
		var skipped []*domain.Task
		readyTasks, skipped = rs.settle(v)
		for _, t := range skipped {
			events = append(events, taskEvent(v.Workflow(), t))
		}
	})

	for _, ev := range events {
		rs.logger.Info("task skipped", "task_id", ev.TaskID)
		c.observer.TaskFinished(ctx, ev)
	}
	return readyTasks
}

// begin переводит task в running и разрешает его input.
//
// Если ссылку разрешить не удалось, task сразу становится failed
// (validation, без повторов) и begin возвращает nil.
func (c *core) begin(ctx context.Context, rs *runState, t *domain.Task) *attempt {
	var a *attempt
	var ev TaskEvent
	var resolveErr, stateErr error

	rs.wf.Mutate(func(v *domain.View) {
		if t.Status == domain.TaskStatusPending {
			if err := t.MarkRunning(); err != nil {
				stateErr = err
				return
			}
		}

		input, err := engine.ResolveInputs(v, t)
		if err != nil {
			resolveErr = err
			_ = t.MarkFailed(domain.Failed(domain.ErrorKindValidation, err.Error(), referenceDetails(err)))
			rs.recordFailure(v, t)
			ev = taskEvent(v.Workflow(), t)
			return
		}

		a = &attempt{task: t, snapshot: t.Clone(), input: input}
		ev = taskEvent(v.Workflow(), t)
	})

	switch {
	case stateErr != nil:
		rs.logger.Error("failed to start task", "task_id", t.ID, "error", stateErr)
		return nil
	case resolveErr != nil:
		rs.logger.Warn("task failed",
			"task_id", ev.TaskID,
			"kind", domain.ErrorKindValidation,
			"error", resolveErr,
		)
		c.observer.TaskFinished(ctx, ev)
		return nil
	}

	rs.logger.Debug("task started", "task_id", ev.TaskID, "kind", ev.Kind, "attempt", ev.Attempt)
	c.observer.TaskStarted(ctx, ev)
	return a
}

// call вызывает стратегию. Единственная точка, где engine ждёт внешний I/O.
func (c *core) call(ctx context.Context, a *attempt) *domain.Output {
	return c.strategies.Dispatch(ctx, a.snapshot, a.input)
}

// conclude вычисляет условие и записывает результат попытки в task.
func (c *core) conclude(ctx context.Context, rs *runState, a *attempt, out *domain.Output) outcome {
	condOK, condErr := c.evaluate(ctx, rs, a.snapshot, out)

	var oc outcome
	var ev TaskEvent
	var rec *domain.ErrorRecord

	rs.wf.Mutate(func(v *domain.View) {
		t := a.task
		switch {
		case out.NeedsInput:
			_ = t.MarkAwaitingInput(out)
			oc = outcomeAwaiting

		case out.Success && condErr == nil:
			_ = t.MarkCompleted(out)
			t.Route = domain.RouteSuccess
			if !condOK {
				t.Route = domain.RouteFailure
			}
			rs.activate(v, t)
			oc = outcomeCompleted

		default:
			failed := out
			if condErr != nil {
				failed = domain.Failed(domain.ErrorKindValidation, condErr.Error(),
					map[string]any{"condition": t.Condition})
				failed.Result = out.Result
			}
			_ = t.MarkFailed(failed)

			if t.CanRetry() && failed.Error.Kind != domain.ErrorKindValidation {
				_ = t.MarkRetrying()
				oc = outcomeRetry
			} else {
				rec = rs.recordFailure(v, t)
				oc = outcomeFailed
			}
		}
		ev = taskEvent(v.Workflow(), t)
	})

	switch oc {
	case outcomeCompleted:
		rs.logger.Info("task succeeded",
			"task_id", ev.TaskID,
			"route", ev.Route,
			"attempt", ev.Attempt,
			"duration", ev.Duration,
		)
		c.observer.TaskFinished(ctx, ev)

	case outcomeFailed:
		rs.logger.Warn("task failed",
			"task_id", ev.TaskID,
			"kind", rec.Kind,
			"error", rec.Message,
			"attempts", rec.Attempts,
			"recovered", rec.Recovered,
		)
		c.observer.TaskFinished(ctx, ev)

	case outcomeAwaiting:
		rs.logger.Info("task awaiting input", "task_id", ev.TaskID, "question", out.Question)
		c.observer.TaskFinished(ctx, ev)

	case outcomeRetry:
		c.observer.TaskRetried(ctx, ev)
	}
	return oc
}

// evaluate вычисляет условие ветки. Условие проверяется только при успехе.
func (c *core) evaluate(ctx context.Context, rs *runState, t *domain.Task, out *domain.Output) (bool, error) {
	if t.Condition == "" || !out.Success || out.NeedsInput {
		return true, nil
	}
	if c.conditions == nil {
		return false, ErrNoConditions
	}

	var data map[string]any
	rs.wf.View(func(v *domain.View) {
		w := v.Workflow()
		data = engine.ConditionData(out, w.Vars, w.Input)
	})
	return c.conditions.Evaluate(ctx, t.Condition, data)
}

// backoff ждёт перед следующей попыткой task.
func (c *core) backoff(ctx context.Context, rs *runState, t *domain.Task, b retry.Backoff) error {
	delay := nextDelay(b)

	var attemptNo int
	var lastErr string
	rs.wf.View(func(*domain.View) {
		attemptNo = t.RetriesUsed + 1
		if t.Output != nil && t.Output.Error != nil {
			lastErr = t.Output.Error.Message
		}
	})

	rs.logger.Info("retrying task",
		"task_id", t.ID,
		"attempt", attemptNo,
		"max_retries", t.MaxRetries,
		"delay", delay,
		"error", lastErr,
	)
	return sleep(ctx, delay)
}

// abandon завершает task, чья повторная попытка не состоялась из-за отмены.
func (c *core) abandon(ctx context.Context, rs *runState, t *domain.Task, cause error) {
	var ev TaskEvent
	rs.wf.Mutate(func(v *domain.View) {
		_ = t.MarkFailed(domain.Failed(domain.ErrorKindExecution, "retry cancelled: "+cause.Error(), nil))
		rs.recordFailure(v, t)
		ev = taskEvent(v.Workflow(), t)
	})
	rs.logger.Warn("task failed", "task_id", t.ID, "error", cause)
	c.observer.TaskFinished(ctx, ev)
}

// cancel пропускает оставшиеся tasks и записывает ошибку уровня workflow.
func (c *core) cancel(ctx context.Context, rs *runState, cause error) error {
	var events []TaskEvent
	rs.wf.Mutate(func(v *domain.View) {
		w := v.Workflow()
		for _, t := range v.Tasks() {
			if t.Status == domain.TaskStatusPending && t.MarkSkipped() == nil {
				events = append(events, taskEvent(w, t))
			}
		}
		if w.Failure == nil {
			w.Failure = &domain.ErrorRecord{
				Message: fmt.Sprintf("%v: %v", ErrRunCancelled, cause),
				Kind:    domain.ErrorKindExecution,
			}
		}
	})

	for _, ev := range events {
		c.observer.TaskFinished(ctx, ev)
	}
	rs.logger.Warn("workflow cancelled", "error", cause, "skipped", len(events))
	return fmt.Errorf("%w: %w", ErrRunCancelled, cause)
}

// finish вычисляет итоговый статус и собирает отчёт.
func (c *core) finish(ctx context.Context, rs *runState) *Report {
	var report *Report
	rs.wf.Mutate(func(v *domain.View) {
		w := v.Workflow()
		w.Status = domain.DeriveStatus(v.Snapshot().Tasks, w.Failure)
		if w.Status.IsTerminal() {
			now := time.Now()
			w.FinishedAt = &now
		}
		report = buildReport(v)
	})

	if report.Paused() {
		awaiting := make([]string, 0, len(report.Questions))
		for id := range report.Questions {
			awaiting = append(awaiting, id)
		}
		sort.Strings(awaiting)
		rs.logger.Info("workflow paused", "awaiting", awaiting)
	} else {
		rs.logger.Info("workflow finished",
			"status", report.Status,
			"exit_code", report.ExitCode,
			"duration_ms", report.DurationMs,
		)
	}

	c.observer.WorkflowFinished(ctx, WorkflowEvent{
		WorkflowID: report.WorkflowID,
		RunID:      report.RunID,
		Name:       report.Name,
		Status:     report.Status,
		Duration:   time.Duration(report.DurationMs) * time.Millisecond,
		ExitCode:   report.ExitCode,
	})
	return report
}

// inputFailure превращает ошибку проверки input в запись уровня workflow.
func inputFailure(err error) *domain.ErrorRecord {
	rec := &domain.ErrorRecord{
		Message: err.Error(),
		Kind:    domain.ErrorKindInput,
	}

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msgs := make([]any, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		rec.Details = map[string]any{"errors": msgs}
	}
	return rec
}

// referenceDetails достаёт ссылку и сегмент из ошибки resolver'а.
func referenceDetails(err error) map[string]any {
	var refErr *engine.ReferenceError
	if !errors.As(err, &refErr) {
		return nil
	}
	details := map[string]any{"reference": refErr.Ref}
	if refErr.Segment != "" {
		details["segment"] = refErr.Segment
	}
	return details
}
