package strategy

import (
	"context"
	"fmt"

	"github.com/shaiso/agentflow/internal/domain"
)

// InlineStrategy вызывает обработчик, переданный при построении task.
type InlineStrategy struct{}

// NewInlineStrategy создаёт стратегию inline task.
func NewInlineStrategy() *InlineStrategy {
	return &InlineStrategy{}
}

// Kind возвращает вид task.
func (s *InlineStrategy) Kind() domain.TaskKind { return domain.TaskKindInline }

// Execute вызывает обработчик в зависимости от его варианта.
func (s *InlineStrategy) Execute(ctx context.Context, task *domain.Task, input map[string]any) *domain.Output {
	switch h := task.Handler.(type) {
	case domain.InputOnlyHandler:
		return Normalize(h(ctx, input))
	case domain.TaskAwareHandler:
		return Normalize(h(ctx, task.Clone(), input))
	case nil:
		return domain.Failed(domain.ErrorKindResource,
			fmt.Sprintf("%v: %s", ErrNoHandler, task.HandlerName), nil)
	default:
		return domain.Failed(domain.ErrorKindValidation,
			fmt.Sprintf("unsupported handler variant %T", h), nil)
	}
}
