package tools

import (
	"context"
	"errors"
)

// Ошибки инструментов.
var (
	// ErrToolNotFound — инструмент не найден в реестре.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidInput — невалидные входные данные инструмента.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrToolCancelled — выполнение отменено.
	ErrToolCancelled = errors.New("tool execution cancelled")
)

// Tool — именованная возможность, которую вызывает tool task.
type Tool interface {
	// Name возвращает имя, под которым инструмент регистрируется.
	Name() string

	// Invoke выполняет инструмент.
	// Результат может быть голым значением или записью {status, result, error}.
	// Инструмент должен проверять ctx.Done().
	Invoke(ctx context.Context, input map[string]any) (any, error)
}

// Func — адаптер функции к Tool.
type Func struct {
	name string
	fn   func(ctx context.Context, input map[string]any) (any, error)
}

// NewFunc создаёт инструмент из функции.
func NewFunc(name string, fn func(ctx context.Context, input map[string]any) (any, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name возвращает имя инструмента.
func (f *Func) Name() string { return f.name }

// Invoke вызывает функцию.
func (f *Func) Invoke(ctx context.Context, input map[string]any) (any, error) {
	return f.fn(ctx, input)
}

// GetString извлекает строковое значение из input.
func GetString(input map[string]any, key string) string {
	if v, ok := input[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetInt извлекает числовое значение из input.
func GetInt(input map[string]any, key string) int {
	if v, ok := input[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetBool извлекает булево значение из input.
func GetBool(input map[string]any, key string, defaultVal bool) bool {
	if v, ok := input[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetMapString извлекает map[string]string из input.
func GetMapString(input map[string]any, key string) map[string]string {
	if v, ok := input[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
