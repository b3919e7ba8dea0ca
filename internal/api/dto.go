package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/runs"
)

// DefinitionRequest — определение workflow в теле запроса.
//
// Definition — JSON объект; DefinitionYAML — тот же документ в YAML.
// Должно быть задано ровно одно из полей.
type DefinitionRequest struct {
	Definition     json.RawMessage `json:"definition,omitempty"`
	DefinitionYAML string          `json:"definition_yaml,omitempty"`
}

// Parse разбирает определение.
func (d DefinitionRequest) Parse() (*domain.WorkflowDef, error) {
	hasJSON := len(bytes.TrimSpace(d.Definition)) > 0
	hasYAML := strings.TrimSpace(d.DefinitionYAML) != ""

	switch {
	case hasJSON && hasYAML:
		return nil, fmt.Errorf("%w: both definition and definition_yaml are set", engine.ErrInvalidDefinition)
	case hasJSON:
		return engine.LoadDefinition(bytes.NewReader(d.Definition), engine.FormatJSON)
	case hasYAML:
		return engine.LoadDefinition(strings.NewReader(d.DefinitionYAML), engine.FormatYAML)
	default:
		return nil, fmt.Errorf("%w: definition is required", engine.ErrInvalidDefinition)
	}
}

// CreateRunRequest — запрос на запуск workflow.
type CreateRunRequest struct {
	DefinitionRequest

	Input map[string]any `json:"input,omitempty"`

	// Async — вернуть ответ сразу, не дожидаясь завершения.
	Async bool `json:"async,omitempty"`
}

// ResumeRequest — ответ на вопрос task, ожидающего ввода.
type ResumeRequest struct {
	TaskID string         `json:"task_id"`
	Input  map[string]any `json:"input"`
}

// ValidateResponse — результат проверки определения.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// RunResponse — краткое описание запуска.
type RunResponse struct {
	RunID      uuid.UUID             `json:"run_id"`
	WorkflowID string                `json:"workflow_id"`
	Name       string                `json:"name,omitempty"`
	Status     domain.WorkflowStatus `json:"status"`
	ExitCode   int                   `json:"exit_code"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// RunFromDomain конвертирует запуск в RunResponse.
func RunFromDomain(run *runs.Run) RunResponse {
	report := run.Report()
	return RunResponse{
		RunID:      report.RunID,
		WorkflowID: report.WorkflowID,
		Name:       report.Name,
		Status:     report.Status,
		ExitCode:   report.ExitCode,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
}

// validationMessages разворачивает ошибку валидации в список сообщений.
func validationMessages(err error) []string {
	var errs engine.ValidationErrors
	if errors.As(err, &errs) {
		out := make([]string, len(errs))
		for i, e := range errs {
			out[i] = e.Error()
		}
		return out
	}
	return []string{err.Error()}
}
