package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNilWorkflow — передан nil вместо workflow.
	ErrNilWorkflow = errors.New("workflow is nil")

	// ErrAlreadyStarted — workflow уже запускался; Run допустим только для pending.
	ErrAlreadyStarted = errors.New("workflow already started")

	// ErrNotPaused — Resume вызван для workflow, который не ждёт ввода.
	ErrNotPaused = errors.New("workflow is not paused")

	// ErrTaskNotFound — task не найден в workflow.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotAwaiting — task не в статусе awaiting_input.
	ErrTaskNotAwaiting = errors.New("task is not awaiting input")

	// ErrUnknownMode — неизвестный режим планирования.
	ErrUnknownMode = errors.New("unknown engine mode")

	// ErrNoConditions — у engine нет вычислителя условий.
	ErrNoConditions = errors.New("condition evaluator is not configured")

	// ErrRunCancelled — контекст отменён до завершения workflow.
	ErrRunCancelled = errors.New("run cancelled")
)
