package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
	"github.com/shaiso/agentflow/internal/orchestrator"
)

// AppFunc лениво собирает зависимости после парсинга флагов.
type AppFunc func(ctx context.Context) (*app.App, error)

// loadDefinition читает файл определения.
// Ошибка чтения или разбора завершает команду с кодом валидации.
func loadDefinition(out *Output, path string) (*domain.WorkflowDef, error) {
	def, err := engine.LoadDefinitionFile(path)
	if err != nil {
		out.Error(err.Error())
		return nil, &ExitError{Code: orchestrator.ExitValidation}
	}
	return def, nil
}

// reportValidation выводит ошибки валидации построчно.
func reportValidation(out *Output, err error) error {
	for _, msg := range validationMessages(err) {
		out.Error(msg)
	}
	return &ExitError{Code: orchestrator.ExitValidation}
}

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

// inputError завершает команду с кодом ошибки входных данных.
func inputError(out *Output, err error) error {
	out.Error(err.Error())
	return &ExitError{Code: orchestrator.ExitInput}
}

// reportExit превращает код выхода отчёта в ошибку команды.
func reportExit(report *orchestrator.Report) error {
	if report.ExitCode == orchestrator.ExitSuccess {
		return nil
	}
	return &ExitError{Code: report.ExitCode}
}

func openApp(ctx context.Context, appFn AppFunc) (*app.App, error) {
	a, err := appFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}
