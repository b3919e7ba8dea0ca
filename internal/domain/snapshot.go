package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
)

// TaskState — состояние одного task в снимке.
type TaskState struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Kind        TaskKind     `json:"kind"`
	Status      TaskStatus   `json:"status"`
	Output      *Output      `json:"output,omitempty"`
	RetriesUsed int          `json:"retries_used"`
	Route       string       `json:"route,omitempty"`
	Error       *ErrorRecord `json:"error,omitempty"`
	DurationMs  int64        `json:"duration_ms,omitempty"`
}

// Snapshot — сериализуемая карта статусов и outputs tasks.
//
// Снимок — только для чтения: по нему можно восстановить итоговый статус
// (DeriveStatus), но не продолжить выполнение.
type Snapshot struct {
	WorkflowID string         `json:"workflow_id"`
	RunID      uuid.UUID      `json:"run_id"`
	Status     WorkflowStatus `json:"status"`
	Tasks      []TaskState    `json:"tasks"`
	Failure    *ErrorRecord   `json:"failure,omitempty"`
}

func newSnapshot(w *Workflow) *Snapshot {
	s := &Snapshot{
		WorkflowID: w.ID,
		RunID:      w.RunID,
		Status:     w.Status,
		Tasks:      make([]TaskState, 0, len(w.order)),
	}
	if w.Failure != nil {
		f := *w.Failure
		s.Failure = &f
	}
	for _, id := range w.order {
		t := w.tasks[id]
		st := TaskState{
			ID:          t.ID,
			Name:        t.Name,
			Kind:        t.Kind,
			Status:      t.Status,
			RetriesUsed: t.RetriesUsed,
			Route:       t.Route,
			DurationMs:  t.Duration().Milliseconds(),
		}
		if t.Output != nil {
			st.Output = deepcopy.Copy(t.Output).(*Output)
		}
		if rec, ok := w.Errors[id]; ok {
			r := *rec
			st.Error = &r
		}
		s.Tasks = append(s.Tasks, st)
	}
	return s
}

// Task возвращает состояние task по ID.
func (s *Snapshot) Task(id string) (TaskState, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskState{}, false
}

// Statuses возвращает карту ID → статус.
func (s *Snapshot) Statuses() map[string]TaskStatus {
	m := make(map[string]TaskStatus, len(s.Tasks))
	for _, t := range s.Tasks {
		m[t.ID] = t.Status
	}
	return m
}

// Derive вычисляет статус workflow по состояниям tasks снимка.
func (s *Snapshot) Derive() WorkflowStatus {
	return DeriveStatus(s.Tasks, s.Failure)
}

// Marshal сериализует снимок в JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot читает снимок из JSON.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for _, t := range s.Tasks {
		if !t.Status.IsValid() {
			return nil, fmt.Errorf("decode snapshot: task %s: unknown status %q", t.ID, t.Status)
		}
	}
	return &s, nil
}

// DeriveStatus вычисляет статус workflow по терминальным статусам tasks.
//
// Правила (по порядку):
//   - ошибка уровня workflow → failed;
//   - упавший task без обработанной ошибки → failed;
//   - task ждёт ввода → paused;
//   - есть незавершённые tasks → running;
//   - иначе → completed.
func DeriveStatus(tasks []TaskState, failure *ErrorRecord) WorkflowStatus {
	if failure != nil && !failure.Recovered {
		return WorkflowStatusFailed
	}

	var awaiting, unfinished bool
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusFailed:
			if t.Error == nil || !t.Error.Recovered {
				return WorkflowStatusFailed
			}
		case TaskStatusAwaitingInput:
			awaiting = true
		case TaskStatusPending, TaskStatusRunning:
			unfinished = true
		}
	}

	switch {
	case awaiting:
		return WorkflowStatusPaused
	case unfinished:
		return WorkflowStatusRunning
	default:
		return WorkflowStatusCompleted
	}
}
