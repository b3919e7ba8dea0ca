package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/orchestrator"
)

// Sender отправляет AMQP сообщение. Реализуется Connection.
type Sender interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Message — конверт события.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — routing key события.
	Type string `json:"type"`

	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// WorkflowPayload — событие уровня workflow.
type WorkflowPayload struct {
	WorkflowID string                `json:"workflow_id"`
	RunID      uuid.UUID             `json:"run_id"`
	Name       string                `json:"name,omitempty"`
	Status     domain.WorkflowStatus `json:"status"`
	DurationMs int64                 `json:"duration_ms,omitempty"`
	ExitCode   *int                  `json:"exit_code,omitempty"`
}

// TaskPayload — событие уровня task.
type TaskPayload struct {
	WorkflowID string            `json:"workflow_id"`
	RunID      uuid.UUID         `json:"run_id"`
	TaskID     string            `json:"task_id"`
	Kind       domain.TaskKind   `json:"kind"`
	Status     domain.TaskStatus `json:"status"`
	Attempt    int               `json:"attempt"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Route      string            `json:"route,omitempty"`
	Error      *domain.ErrorInfo `json:"error,omitempty"`
}

// Publisher публикует события выполнения в exchange agentflow.events.
//
// Реализует orchestrator.Observer. Ошибки публикации логируются
// и не влияют на выполнение workflow.
type Publisher struct {
	orchestrator.NopObserver

	sender Sender
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sender: sender,
		logger: logger,
	}
}

// Publish публикует событие с указанным routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Type:      routingKey,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.sender.Publish(ctx, ExchangeEvents, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         routingKey,
		Timestamp:    msg.Timestamp,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
	}

	p.logger.Debug("published message",
		"routing_key", routingKey,
		"message_id", msg.ID,
	)
	return nil
}

// WorkflowStarted реализует orchestrator.Observer.
func (p *Publisher) WorkflowStarted(ctx context.Context, ev orchestrator.WorkflowEvent) {
	p.emit(ctx, RoutingKeyWorkflowStarted, workflowPayload(ev, false))
}

// TaskRetried реализует orchestrator.Observer.
func (p *Publisher) TaskRetried(ctx context.Context, ev orchestrator.TaskEvent) {
	p.emit(ctx, RoutingKeyTaskRetried, taskPayload(ev))
}

// TaskFinished реализует orchestrator.Observer.
func (p *Publisher) TaskFinished(ctx context.Context, ev orchestrator.TaskEvent) {
	p.emit(ctx, RoutingKeyTaskFinished, taskPayload(ev))
}

// WorkflowFinished реализует orchestrator.Observer.
func (p *Publisher) WorkflowFinished(ctx context.Context, ev orchestrator.WorkflowEvent) {
	p.emit(ctx, RoutingKeyWorkflowFinished, workflowPayload(ev, true))
}

func (p *Publisher) emit(ctx context.Context, routingKey string, payload any) {
	if err := p.Publish(context.WithoutCancel(ctx), routingKey, payload); err != nil {
		p.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}

func workflowPayload(ev orchestrator.WorkflowEvent, finished bool) WorkflowPayload {
	out := WorkflowPayload{
		WorkflowID: ev.WorkflowID,
		RunID:      ev.RunID,
		Name:       ev.Name,
		Status:     ev.Status,
		DurationMs: ev.Duration.Milliseconds(),
	}
	if finished {
		code := ev.ExitCode
		out.ExitCode = &code
	}
	return out
}

func taskPayload(ev orchestrator.TaskEvent) TaskPayload {
	return TaskPayload{
		WorkflowID: ev.WorkflowID,
		RunID:      ev.RunID,
		TaskID:     ev.TaskID,
		Kind:       ev.Kind,
		Status:     ev.Status,
		Attempt:    ev.Attempt,
		DurationMs: ev.Duration.Milliseconds(),
		Route:      ev.Route,
		Error:      ev.Error,
	}
}

// ParsePayload разбирает payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
