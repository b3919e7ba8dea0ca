package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed (retry → обратно в running, пока есть попытки)
//	pending → skipped (ветка не выбрана или зависимость не выполнена)
//	running → awaiting_input → pending (после resume с новыми данными)
type TaskStatus string

const (
	// TaskStatusPending — task ждёт готовности зависимостей.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning — стратегия task выполняется.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — task завершился с ошибкой.
	// Финальный, только когда попытки исчерпаны.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusSkipped — task не будет выполнен.
	TaskStatusSkipped TaskStatus = "skipped"

	// TaskStatusAwaitingInput — стратегия запросила уточнение у вызывающего.
	TaskStatusAwaitingInput TaskStatus = "awaiting_input"
)

// IsTerminal возвращает true, если статус финальный.
//
// awaiting_input не финальный: task вернётся в pending после resume.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusSkipped, TaskStatusAwaitingInput:
		return true
	default:
		return false
	}
}

// WorkflowStatus — агрегированный статус workflow.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	                  ↘ paused → running (resume)
type WorkflowStatus string

const (
	// WorkflowStatusPending — workflow построен, но не запускался.
	WorkflowStatusPending WorkflowStatus = "pending"

	// WorkflowStatusRunning — workflow выполняется.
	WorkflowStatusRunning WorkflowStatus = "running"

	// WorkflowStatusCompleted — все достижимые tasks завершены, неисправленных ошибок нет.
	WorkflowStatusCompleted WorkflowStatus = "completed"

	// WorkflowStatusFailed — хотя бы один обязательный task упал без обработчика.
	WorkflowStatusFailed WorkflowStatus = "failed"

	// WorkflowStatusPaused — workflow остановлен до получения ввода от вызывающего.
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// IsTerminal возвращает true, если статус финальный.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление WorkflowStatus.
func (s WorkflowStatus) String() string {
	return string(s)
}
