package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mohae/deepcopy"
)

// ErrInvalidTransition — недопустимый переход состояния task.
var ErrInvalidTransition = errors.New("invalid task state transition")

// TaskKind — вид task, определяет стратегию выполнения.
type TaskKind string

const (
	// TaskKindModel — вызов языковой модели.
	TaskKindModel TaskKind = "model"

	// TaskKindTool — вызов именованного инструмента из реестра.
	TaskKindTool TaskKind = "tool"

	// TaskKindInline — вызов переданной функции.
	TaskKindInline TaskKind = "inline"
)

// ParseTaskKind парсит вид task. Принимает и длинные формы ("model-call" и т.д.).
func ParseTaskKind(s string) (TaskKind, bool) {
	switch s {
	case "model", "model-call", "llm":
		return TaskKindModel, true
	case "tool", "tool-call":
		return TaskKindTool, true
	case "inline", "inline-handler", "handler":
		return TaskKindInline, true
	default:
		return "", false
	}
}

// Task — единица работы внутри workflow.
//
// Task создаётся один раз при построении workflow и дальше только
// мутируется engine'ом (статус, output, счётчик попыток).
type Task struct {
	// ID — уникальный идентификатор task в рамках workflow.
	ID string `json:"id"`

	// Name — отображаемое имя.
	Name string `json:"name"`

	// Kind — вид task (model, tool, inline).
	Kind TaskKind `json:"kind"`

	// Tool — имя инструмента для tool task.
	Tool string `json:"tool,omitempty"`

	// HandlerName — имя inline обработчика (для экспорта и снимков).
	HandlerName string `json:"handler,omitempty"`

	// Handler — сам inline обработчик.
	Handler Handler `json:"-"`

	// Inputs — шаблон входных данных: литералы или строки со ссылками ${...}.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Supplied — данные, переданные вызывающим при resume. Перекрывают Inputs.
	Supplied map[string]any `json:"supplied,omitempty"`

	// Output — нормализованный результат, есть только после выполнения.
	Output *Output `json:"output,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// DependsOn — tasks, которые должны завершиться до запуска этого.
	DependsOn []string `json:"depends_on,omitempty"`

	// OnSuccess / OnFailure — следующий task в зависимости от исхода.
	OnSuccess string `json:"on_success,omitempty"`
	OnFailure string `json:"on_failure,omitempty"`

	// Condition — булево выражение над собственным output и переменными workflow.
	Condition string `json:"condition,omitempty"`

	// MaxRetries — сколько повторных попыток разрешено после первой.
	MaxRetries int `json:"max_retries"`

	// RetriesUsed — сколько повторных попыток уже сделано.
	RetriesUsed int `json:"retries_used"`

	// Parallel — task может выполняться вместе с готовыми соседями.
	Parallel bool `json:"parallel,omitempty"`

	// Optional — падение task не делает workflow failed.
	Optional bool `json:"optional,omitempty"`

	// Timeout — рекомендуемый таймаут стратегии. 0 — без таймаута.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ActivatedBy — tasks, чьи on_success/on_failure указали на этот task.
	ActivatedBy []string `json:"activated_by,omitempty"`

	// Route — выбранная ветка после завершения: "success", "failure" или пусто.
	Route string `json:"route,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность последней попытки.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если task в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// CanRetry проверяет, осталась ли повторная попытка.
func (t *Task) CanRetry() bool {
	return t.RetriesUsed < t.MaxRetries
}

// RouteTarget возвращает task, на который указывает выбранная ветка.
func (t *Task) RouteTarget() string {
	switch t.Route {
	case RouteSuccess:
		return t.OnSuccess
	case RouteFailure:
		return t.OnFailure
	default:
		return ""
	}
}

func (t *Task) transition(from []TaskStatus, to TaskStatus) error {
	if !slices.Contains(from, t.Status) {
		return fmt.Errorf("%w: task %s: %s → %s", ErrInvalidTransition, t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// MarkRunning переводит task из pending в running.
func (t *Task) MarkRunning() error {
	if err := t.transition([]TaskStatus{TaskStatusPending}, TaskStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	t.StartedAt = &now
	t.FinishedAt = nil
	return nil
}

// MarkRetrying переводит упавший task обратно в running и увеличивает счётчик попыток.
func (t *Task) MarkRetrying() error {
	if !t.CanRetry() {
		return fmt.Errorf("%w: task %s: retries exhausted (%d)", ErrInvalidTransition, t.ID, t.MaxRetries)
	}
	if err := t.transition([]TaskStatus{TaskStatusFailed}, TaskStatusRunning); err != nil {
		return err
	}
	t.RetriesUsed++
	now := time.Now()
	t.StartedAt = &now
	t.FinishedAt = nil
	return nil
}

// MarkCompleted записывает успешный результат.
func (t *Task) MarkCompleted(out *Output) error {
	if err := t.transition([]TaskStatus{TaskStatusRunning}, TaskStatusCompleted); err != nil {
		return err
	}
	t.finish(out)
	return nil
}

// MarkFailed записывает неуспешный результат.
// Может быть вызван и для pending task, если не удалось разрешить input.
func (t *Task) MarkFailed(out *Output) error {
	if err := t.transition([]TaskStatus{TaskStatusRunning, TaskStatusPending}, TaskStatusFailed); err != nil {
		return err
	}
	t.finish(out)
	return nil
}

// MarkSkipped помечает task как невыполняемый.
func (t *Task) MarkSkipped() error {
	if err := t.transition([]TaskStatus{TaskStatusPending}, TaskStatusSkipped); err != nil {
		return err
	}
	now := time.Now()
	t.FinishedAt = &now
	return nil
}

// MarkAwaitingInput фиксирует запрос уточнения от стратегии.
func (t *Task) MarkAwaitingInput(out *Output) error {
	if err := t.transition([]TaskStatus{TaskStatusRunning}, TaskStatusAwaitingInput); err != nil {
		return err
	}
	t.finish(out)
	return nil
}

// ResetForResume возвращает ожидающий task в pending и добавляет данные вызывающего.
// Счётчик попыток не сбрасывается.
func (t *Task) ResetForResume(input map[string]any) error {
	if err := t.transition([]TaskStatus{TaskStatusAwaitingInput}, TaskStatusPending); err != nil {
		return err
	}
	if t.Supplied == nil {
		t.Supplied = make(map[string]any, len(input))
	}
	for k, v := range input {
		t.Supplied[k] = v
	}
	t.Output = nil
	t.StartedAt = nil
	t.FinishedAt = nil
	return nil
}

func (t *Task) finish(out *Output) {
	now := time.Now()
	t.FinishedAt = &now
	t.Output = out
}

// Clone возвращает глубокую копию task (обработчик копируется по ссылке).
func (t *Task) Clone() *Task {
	c := *t
	if t.Inputs != nil {
		c.Inputs = deepcopy.Copy(t.Inputs).(map[string]any)
	}
	if t.Supplied != nil {
		c.Supplied = deepcopy.Copy(t.Supplied).(map[string]any)
	}
	if t.Output != nil {
		c.Output = deepcopy.Copy(t.Output).(*Output)
	}
	c.DependsOn = slices.Clone(t.DependsOn)
	c.ActivatedBy = slices.Clone(t.ActivatedBy)
	return &c
}

// Значения Task.Route.
const (
	RouteSuccess = "success"
	RouteFailure = "failure"
)
