package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shaiso/agentflow/internal/domain"
)

// Ошибки стратегий.
var (
	// ErrUnknownKind — для вида task нет стратегии.
	ErrUnknownKind = errors.New("no strategy for task kind")

	// ErrNoModelClient — модель не настроена.
	ErrNoModelClient = errors.New("model client is not configured")

	// ErrNoToolRegistry — реестр инструментов не настроен.
	ErrNoToolRegistry = errors.New("tool registry is not configured")

	// ErrToolNotRegistered — инструмента нет в реестре.
	ErrToolNotRegistered = errors.New("tool is not registered")

	// ErrNoHandler — inline task без обработчика.
	ErrNoHandler = errors.New("inline task has no handler")

	// ErrMissingPrompt — model task без prompt.
	ErrMissingPrompt = errors.New("model input has no prompt")

	// ErrTimeout — стратегия превысила таймаут task.
	ErrTimeout = errors.New("task timed out")
)

// Strategy — путь выполнения для одного вида task.
//
// Execute всегда возвращает нормализованный Output (никогда nil).
// Ошибки выполнения кодируются в Output.Error, а не возвращаются.
type Strategy interface {
	Kind() domain.TaskKind
	Execute(ctx context.Context, task *domain.Task, input map[string]any) *domain.Output
}

// ModelClient — внешний клиент языковой модели.
//
// input содержит как минимум "prompt". Результат нормализуется:
// допустимы голое значение, запись {status, result, error} или *domain.Output.
type ModelClient interface {
	Complete(ctx context.Context, input map[string]any) (any, error)
}

// ToolRegistry — внешний реестр инструментов.
type ToolRegistry interface {
	Has(name string) bool
	Invoke(ctx context.Context, name string, input map[string]any) (any, error)
}

// Registry — стратегии по виду task.
type Registry struct {
	strategies map[domain.TaskKind]Strategy
	logger     *slog.Logger
}

// NewRegistry создаёт реестр с тремя стандартными стратегиями.
//
// model и tools могут быть nil: соответствующие tasks упадут с resource ошибкой.
func NewRegistry(model ModelClient, tools ToolRegistry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		strategies: make(map[domain.TaskKind]Strategy),
		logger:     logger,
	}
	r.Register(NewModelStrategy(model))
	r.Register(NewToolStrategy(tools))
	r.Register(NewInlineStrategy())
	return r
}

// Register добавляет или заменяет стратегию.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Kind()] = s
}

// Get возвращает стратегию для вида task.
func (r *Registry) Get(kind domain.TaskKind) (Strategy, error) {
	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s, nil
}

// Dispatch выполняет task подходящей стратегией.
//
// Применяет таймаут task, перехватывает панику и превращает
// истёкший таймаут в execution ошибку.
func (r *Registry) Dispatch(ctx context.Context, task *domain.Task, input map[string]any) (out *domain.Output) {
	s, err := r.Get(task.Kind)
	if err != nil {
		return domain.Failed(domain.ErrorKindValidation, err.Error(), nil)
	}

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("strategy panicked",
				slog.String("task_id", task.ID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			out = domain.Failed(domain.ErrorKindExecution, fmt.Sprintf("panic: %v", rec), nil)
		}
	}()

	out = s.Execute(ctx, task, input)
	if out == nil {
		out = domain.Failed(domain.ErrorKindExecution, "strategy returned no output", nil)
	}

	if !out.Success && !out.NeedsInput && errors.Is(ctx.Err(), context.DeadlineExceeded) && task.Timeout > 0 {
		return domain.Failed(domain.ErrorKindExecution,
			fmt.Sprintf("%v after %s", ErrTimeout, task.Timeout),
			map[string]any{"timeout_ms": task.Timeout.Milliseconds()})
	}
	return out
}
