package domain

import "context"

// Handler — функция inline task.
//
// Вариант выбирается при регистрации, а не угадывается при вызове:
// InputOnlyHandler получает только входные данные,
// TaskAwareHandler дополнительно получает копию task.
type Handler interface {
	handlerVariant() string
}

// InputOnlyHandler — обработчик, которому нужен только разрешённый input.
type InputOnlyHandler func(ctx context.Context, input map[string]any) (any, error)

// TaskAwareHandler — обработчик, которому нужен и сам task.
// Task передаётся копией: изменения обработчика в workflow не попадают.
type TaskAwareHandler func(ctx context.Context, task *Task, input map[string]any) (any, error)

func (InputOnlyHandler) handlerVariant() string { return "input_only" }
func (TaskAwareHandler) handlerVariant() string { return "task_aware" }

// HandlerVariant возвращает имя варианта обработчика (для логов и экспорта).
func HandlerVariant(h Handler) string {
	if h == nil {
		return ""
	}
	return h.handlerVariant()
}

// HandlerSet — именованные inline обработчики, передаваемые при построении workflow.
type HandlerSet map[string]Handler

// Has проверяет наличие обработчика.
func (s HandlerSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}
