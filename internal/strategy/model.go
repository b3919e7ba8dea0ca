package strategy

import (
	"context"

	"github.com/shaiso/agentflow/internal/domain"
)

// ModelStrategy передаёт разрешённый input клиенту модели.
type ModelStrategy struct {
	client ModelClient
}

// NewModelStrategy создаёт стратегию model task.
func NewModelStrategy(client ModelClient) *ModelStrategy {
	return &ModelStrategy{client: client}
}

// Kind возвращает вид task.
func (s *ModelStrategy) Kind() domain.TaskKind { return domain.TaskKindModel }

// Execute вызывает модель.
//
// Ошибки провайдера становятся execution ошибками, если клиент
// сам не указал другую категорию (например, resource для ключа).
func (s *ModelStrategy) Execute(ctx context.Context, task *domain.Task, input map[string]any) *domain.Output {
	if s.client == nil {
		return domain.Failed(domain.ErrorKindResource, ErrNoModelClient.Error(), nil)
	}
	if p, ok := input["prompt"]; !ok || p == nil || p == "" {
		return domain.Failed(domain.ErrorKindValidation, ErrMissingPrompt.Error(),
			map[string]any{"task_id": task.ID})
	}

	res, err := s.client.Complete(ctx, input)
	return Normalize(res, err)
}
