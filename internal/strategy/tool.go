package strategy

import (
	"context"
	"fmt"

	"github.com/shaiso/agentflow/internal/domain"
)

// ToolStrategy вызывает именованный инструмент из реестра.
type ToolStrategy struct {
	tools ToolRegistry
}

// NewToolStrategy создаёт стратегию tool task.
func NewToolStrategy(tools ToolRegistry) *ToolStrategy {
	return &ToolStrategy{tools: tools}
}

// Kind возвращает вид task.
func (s *ToolStrategy) Kind() domain.TaskKind { return domain.TaskKindTool }

// Execute находит инструмент и вызывает его.
func (s *ToolStrategy) Execute(ctx context.Context, task *domain.Task, input map[string]any) *domain.Output {
	if s.tools == nil {
		return domain.Failed(domain.ErrorKindResource, ErrNoToolRegistry.Error(), nil)
	}
	if !s.tools.Has(task.Tool) {
		return domain.Failed(domain.ErrorKindResource,
			fmt.Sprintf("%v: %s", ErrToolNotRegistered, task.Tool),
			map[string]any{"tool": task.Tool})
	}

	res, err := s.tools.Invoke(ctx, task.Tool, input)
	return Normalize(res, err)
}
