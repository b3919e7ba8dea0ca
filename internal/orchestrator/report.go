package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
)

// Коды выхода run.
const (
	ExitSuccess    = 0
	ExitExecution  = 1
	ExitValidation = 2
	ExitResource   = 3
	ExitInput      = 4
)

// Report — итог выполнения, который получает вызывающий.
type Report struct {
	RunID      uuid.UUID             `json:"run_id"`
	WorkflowID string                `json:"workflow_id"`
	Name       string                `json:"name,omitempty"`
	Status     domain.WorkflowStatus `json:"status"`

	// Tasks — статусы и outputs всех tasks в порядке объявления.
	Tasks []domain.TaskState `json:"tasks"`

	// Errors — цепочка от первой неисправленной ошибки к исходной причине.
	Errors []*domain.ErrorRecord `json:"errors,omitempty"`

	// Questions — вопросы tasks, ожидающих ввода (task ID → вопрос).
	Questions map[string]string `json:"questions,omitempty"`

	ExitCode   int        `json:"exit_code"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Succeeded проверяет, завершился ли run без неисправленных ошибок.
func (r *Report) Succeeded() bool {
	return r.Status == domain.WorkflowStatusCompleted
}

// Paused проверяет, ждёт ли run ввода.
func (r *Report) Paused() bool {
	return r.Status == domain.WorkflowStatusPaused
}

// Snapshot возвращает снимок, из которого можно заново вычислить статус.
func (r *Report) Snapshot() *domain.Snapshot {
	s := &domain.Snapshot{
		WorkflowID: r.WorkflowID,
		RunID:      r.RunID,
		Status:     r.Status,
		Tasks:      r.Tasks,
	}
	for _, rec := range r.Errors {
		if rec.TaskID == "" {
			s.Failure = rec
		}
	}
	return s
}

// NewReport собирает отчёт по текущему состоянию workflow.
func NewReport(wf *domain.Workflow) *Report {
	var r *Report
	wf.View(func(v *domain.View) {
		r = buildReport(v)
	})
	return r
}

func buildReport(v *domain.View) *Report {
	wf := v.Workflow()
	snap := v.Snapshot()

	r := &Report{
		RunID:      wf.RunID,
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Status:     wf.Status,
		Tasks:      snap.Tasks,
		StartedAt:  wf.StartedAt,
		FinishedAt: wf.FinishedAt,
		DurationMs: wf.Duration().Milliseconds(),
	}

	for _, t := range v.Tasks() {
		if t.Status == domain.TaskStatusAwaitingInput && t.Output != nil {
			if r.Questions == nil {
				r.Questions = make(map[string]string)
			}
			r.Questions[t.ID] = t.Output.Question
		}
	}

	r.Errors = errorChain(v)
	r.ExitCode = ExitCode(r.Status, r.Errors)
	return r
}

// errorChain находит первую по порядку объявления неисправленную ошибку
// и идёт по CausedBy к исходной причине.
func errorChain(v *domain.View) []*domain.ErrorRecord {
	wf := v.Workflow()
	if wf.Failure != nil && !wf.Failure.Recovered {
		f := *wf.Failure
		return []*domain.ErrorRecord{&f}
	}

	var first *domain.ErrorRecord
	for _, t := range v.Tasks() {
		if rec, ok := v.Error(t.ID); ok && !rec.Recovered {
			first = rec
			break
		}
	}
	if first == nil {
		return nil
	}

	var chain []*domain.ErrorRecord
	seen := make(map[string]bool)
	for rec := first; rec != nil && !seen[rec.TaskID]; {
		seen[rec.TaskID] = true
		c := *rec
		chain = append(chain, &c)
		if rec.CausedBy == "" {
			break
		}
		rec, _ = v.Error(rec.CausedBy)
	}
	return chain
}

// ExitCode вычисляет код выхода по статусу и категории первой неисправленной ошибки.
// Пауза считается успешным завершением вызова.
func ExitCode(status domain.WorkflowStatus, chain []*domain.ErrorRecord) int {
	if status != domain.WorkflowStatusFailed {
		return ExitSuccess
	}
	if len(chain) == 0 {
		return ExitExecution
	}
	return ExitCodeForKind(chain[0].Kind)
}

// ExitCodeForKind сопоставляет категорию ошибки коду выхода.
func ExitCodeForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindValidation:
		return ExitValidation
	case domain.ErrorKindResource:
		return ExitResource
	case domain.ErrorKindInput:
		return ExitInput
	default:
		return ExitExecution
	}
}
