package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации определения workflow.
var (
	// ErrEmptyTasks — workflow не содержит tasks.
	ErrEmptyTasks = errors.New("workflow has no tasks")

	// ErrInvalidDefinition — определение не прошло проверку полей.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrEmptyTaskID — task не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько tasks с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrReservedTaskID — ID совпадает с зарезервированным именем (error, vars, input).
	ErrReservedTaskID = errors.New("reserved task ID")

	// ErrUnknownTaskKind — неизвестный вид task.
	ErrUnknownTaskKind = errors.New("unknown task kind")

	// ErrMissingDependency — task зависит от несуществующего task.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrSelfDependency — task зависит от самого себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrUnknownRoute — on_success/on_failure указывает на несуществующий task.
	ErrUnknownRoute = errors.New("route targets unknown task")

	// ErrCyclicDependency — обнаружен цикл в графе.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrMissingTool — tool task без имени инструмента.
	ErrMissingTool = errors.New("tool task has no tool name")

	// ErrToolUnavailable — инструмент не зарегистрирован.
	ErrToolUnavailable = errors.New("tool is not registered")

	// ErrMissingHandler — inline task без обработчика.
	ErrMissingHandler = errors.New("inline task has no handler")

	// ErrUnknownHandler — обработчик с таким именем не передан.
	ErrUnknownHandler = errors.New("unknown inline handler")

	// ErrMissingPrompt — model task без prompt во входных данных.
	ErrMissingPrompt = errors.New("model task has no prompt input")

	// ErrNotUpstream — ссылка на task, который не предшествует текущему.
	ErrNotUpstream = errors.New("reference to task that is not upstream")
)

// Ошибки ссылок ${...}.
var (
	// ErrMalformedReference — синтаксическая ошибка в ссылке.
	ErrMalformedReference = errors.New("malformed reference")

	// ErrUnknownReference — ссылка на несуществующий task.
	ErrUnknownReference = errors.New("reference to unknown task")

	// ErrUnresolved — task ещё не завершён, значение недоступно.
	ErrUnresolved = errors.New("reference is unresolved")

	// ErrPathNotFound — поля по пути нет.
	ErrPathNotFound = errors.New("path segment not found")

	// ErrNotARecord — обращение к полю у значения, которое не является записью.
	ErrNotARecord = errors.New("value is not a record")

	// ErrNotIndexable — индекс у значения, которое не является последовательностью.
	ErrNotIndexable = errors.New("value is not indexable")

	// ErrIndexOutOfRange — индекс за пределами последовательности.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Ошибки условий.
var (
	// ErrConditionCompile — выражение не компилируется.
	ErrConditionCompile = errors.New("condition compile failed")

	// ErrConditionNotBool — выражение возвращает не bool.
	ErrConditionNotBool = errors.New("condition does not evaluate to bool")

	// ErrConditionEval — ошибка вычисления.
	ErrConditionEval = errors.New("condition evaluation failed")
)

// Ошибки входных данных workflow.
var (
	// ErrInputRequired — не передан обязательный параметр.
	ErrInputRequired = errors.New("required input is missing")

	// ErrInputType — параметр не соответствует объявленному типу.
	ErrInputType = errors.New("input has wrong type")

	// ErrInputUnknown — передан необъявленный параметр.
	ErrInputUnknown = errors.New("input is not declared")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	TaskID  string // ID task, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(taskID, field, message string, err error) *ValidationError {
	return &ValidationError{
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ValidationErrors — все найденные ошибки валидации.
type ValidationErrors []*ValidationError

// Error реализует интерфейс error.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap позволяет errors.Is/As находить отдельные ошибки.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// ReferenceError — ошибка разрешения ссылки ${...}.
type ReferenceError struct {
	Ref     string // исходная ссылка, например "${search.result.items[0]}"
	Segment string // сегмент пути, на котором остановились
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ReferenceError) Error() string {
	if e.Segment != "" {
		return e.Ref + ": segment " + e.Segment + ": " + e.Err.Error()
	}
	return e.Ref + ": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *ReferenceError) Unwrap() error {
	return e.Err
}
