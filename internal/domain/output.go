package domain

import "fmt"

// ErrorKind — категория ошибки.
//
// По категории первой неисправленной ошибки вычисляется код выхода run.
type ErrorKind string

const (
	// ErrorKindValidation — некорректное определение task или неразрешимая ссылка.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindResource — нет инструмента, ключа модели или записи в реестре.
	ErrorKindResource ErrorKind = "resource"

	// ErrorKindExecution — сама вызванная возможность завершилась ошибкой.
	ErrorKindExecution ErrorKind = "execution"

	// ErrorKindInput — входные данные workflow не прошли проверку формы.
	ErrorKindInput ErrorKind = "input"
)

// ErrorInfo — описание ошибки внутри Output.
type ErrorInfo struct {
	Message string         `json:"message"`
	Kind    ErrorKind      `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

// Error реализует интерфейс error.
func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Output — нормализованный результат выполнения task.
//
// Любая стратегия (model, tool, inline) возвращает именно эту структуру,
// поэтому engine и resolver не различают виды task.
type Output struct {
	// Success — успешно ли выполнение.
	Success bool `json:"success"`

	// Result — полезная нагрузка стратегии (скаляр, запись или вложенные данные).
	Result any `json:"result,omitempty"`

	// Error — заполнено, когда Success == false.
	Error *ErrorInfo `json:"error,omitempty"`

	// NeedsInput — стратегия просит дополнительный ввод (уточнение).
	NeedsInput bool `json:"needs_input,omitempty"`

	// Question — вопрос к вызывающему при NeedsInput.
	Question string `json:"question,omitempty"`
}

// Succeeded создаёт успешный Output.
func Succeeded(result any) *Output {
	return &Output{Success: true, Result: result}
}

// Failed создаёт неуспешный Output.
func Failed(kind ErrorKind, message string, details map[string]any) *Output {
	return &Output{
		Success: false,
		Error: &ErrorInfo{
			Message: message,
			Kind:    kind,
			Details: details,
		},
	}
}

// Failedf — Failed с форматированием сообщения.
func Failedf(kind ErrorKind, format string, args ...any) *Output {
	return Failed(kind, fmt.Sprintf(format, args...), nil)
}

// AwaitingInput создаёт Output с запросом уточнения.
// partial — частичный результат, если он есть.
func AwaitingInput(question string, partial any) *Output {
	return &Output{
		Success:    false,
		Result:     partial,
		NeedsInput: true,
		Question:   question,
	}
}

// AsMap возвращает Output в виде записи для ссылок и условий.
func (o *Output) AsMap() map[string]any {
	m := map[string]any{
		"success": o.Success,
		"result":  o.Result,
		"error":   nil,
	}
	if o.Error != nil {
		m["error"] = map[string]any{
			"message": o.Error.Message,
			"kind":    string(o.Error.Kind),
			"details": o.Error.Details,
		}
	}
	if o.NeedsInput {
		m["needs_input"] = true
		m["question"] = o.Question
	}
	return m
}

// ErrorRecord — ошибка упавшего task, доступная следующим tasks через ${error.<id>}.
type ErrorRecord struct {
	// TaskID — task, в котором произошла ошибка. Пусто для ошибок уровня workflow.
	TaskID string `json:"task_id"`

	Message string         `json:"message"`
	Kind    ErrorKind      `json:"kind"`
	Details map[string]any `json:"details,omitempty"`

	// CausedBy — upstream task, чья ошибка привела сюда (цепочка распространения).
	CausedBy string `json:"caused_by,omitempty"`

	// Recovered — ошибку обработала ветка on_failure или task помечен optional.
	Recovered bool `json:"recovered"`

	// Attempts — сколько раз task выполнялся до финальной ошибки.
	Attempts int `json:"attempts"`
}

// Error реализует интерфейс error.
func (r *ErrorRecord) Error() string {
	if r.TaskID == "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
	return fmt.Sprintf("task %s: %s: %s", r.TaskID, r.Kind, r.Message)
}

// AsMap возвращает запись для resolver'а.
func (r *ErrorRecord) AsMap() map[string]any {
	m := map[string]any{
		"task_id":   r.TaskID,
		"message":   r.Message,
		"kind":      string(r.Kind),
		"details":   r.Details,
		"caused_by": nil,
		"recovered": r.Recovered,
		"attempts":  r.Attempts,
	}
	if r.CausedBy != "" {
		m["caused_by"] = r.CausedBy
	}
	return m
}
