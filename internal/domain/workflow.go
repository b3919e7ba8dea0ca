package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ошибки работы с workflow.
var (
	// ErrTaskNotFound — task с таким ID нет в workflow.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask — task с таким ID уже добавлен.
	ErrDuplicateTask = errors.New("duplicate task ID")

	// ErrEmptyTaskID — task без ID.
	ErrEmptyTaskID = errors.New("task has empty ID")
)

// Workflow — граф tasks с общим статусом и переменными.
//
// Tasks хранятся по ID с сохранением порядка добавления: порядок
// объявления используется как детерминированный порядок обхода.
//
// Единственное разделяемое изменяемое состояние — сами tasks.
// Engine изменяет их только под Mutate, читатели используют View.
type Workflow struct {
	// ID — идентификатор определения workflow.
	ID string `json:"id"`

	// RunID — идентификатор конкретного запуска.
	RunID uuid.UUID `json:"run_id"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Status — агрегированный статус.
	Status WorkflowStatus `json:"status"`

	// Vars — константы workflow, доступные всем tasks через ${vars.*}.
	Vars map[string]any `json:"vars,omitempty"`

	// InputDefs — объявленная форма входных данных.
	InputDefs map[string]InputDef `json:"input_defs,omitempty"`

	// Input — входные данные запуска (после проверки и подстановки default).
	Input map[string]any `json:"input,omitempty"`

	// SkipPropagation — пропущенная зависимость считается выполненной.
	SkipPropagation bool `json:"skip_propagation,omitempty"`

	// Retry — задержка между попытками. nil — настройка engine.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// Errors — записи об ошибках по ID task.
	Errors map[string]*ErrorRecord `json:"errors,omitempty"`

	// Failure — ошибка уровня workflow (например, невалидный input).
	Failure *ErrorRecord `json:"failure,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	tasks map[string]*Task
	order []string
	mu    sync.RWMutex
}

// NewWorkflow создаёт пустой workflow.
func NewWorkflow(id, name string) *Workflow {
	return &Workflow{
		ID:     id,
		RunID:  uuid.New(),
		Name:   name,
		Status: WorkflowStatusPending,
		Vars:   make(map[string]any),
		Errors: make(map[string]*ErrorRecord),
		tasks:  make(map[string]*Task),
	}
}

// AddTask добавляет task в конец порядка объявления.
func (w *Workflow) AddTask(t *Task) error {
	if t == nil || t.ID == "" {
		return ErrEmptyTaskID
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	w.tasks[t.ID] = t
	w.order = append(w.order, t.ID)
	return nil
}

// Task возвращает task по ID.
func (w *Workflow) Task(id string) (*Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tasks[id]
	return t, ok
}

// Tasks возвращает tasks в порядке объявления.
func (w *Workflow) Tasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Task, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.tasks[id])
	}
	return out
}

// Order возвращает ID tasks в порядке объявления.
func (w *Workflow) Order() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.order...)
}

// Len возвращает количество tasks.
func (w *Workflow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.order)
}

// View выполняет fn под блокировкой чтения.
// Внутри fn нельзя вызывать Mutate.
func (w *Workflow) View(fn func(v *View)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn(&View{w: w})
}

// Mutate выполняет fn под блокировкой записи.
func (w *Workflow) Mutate(fn func(v *View)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&View{w: w})
}

// View — доступ к состоянию workflow внутри View/Mutate без повторной блокировки.
type View struct {
	w *Workflow
}

// Workflow возвращает сам workflow (для полей ID, Vars, Input, Errors).
func (v *View) Workflow() *Workflow { return v.w }

// Task возвращает task по ID.
func (v *View) Task(id string) (*Task, bool) {
	t, ok := v.w.tasks[id]
	return t, ok
}

// Tasks возвращает tasks в порядке объявления.
func (v *View) Tasks() []*Task {
	out := make([]*Task, 0, len(v.w.order))
	for _, id := range v.w.order {
		out = append(out, v.w.tasks[id])
	}
	return out
}

// Error возвращает запись об ошибке task.
func (v *View) Error(taskID string) (*ErrorRecord, bool) {
	r, ok := v.w.Errors[taskID]
	return r, ok
}

// Snapshot собирает снимок текущего состояния.
func (v *View) Snapshot() *Snapshot {
	return newSnapshot(v.w)
}

// Snapshot возвращает снимок статусов и outputs всех tasks.
func (w *Workflow) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return newSnapshot(w)
}

// Duration возвращает продолжительность запуска.
func (w *Workflow) Duration() time.Duration {
	if w.StartedAt == nil || w.FinishedAt == nil {
		return 0
	}
	return w.FinishedAt.Sub(*w.StartedAt)
}
