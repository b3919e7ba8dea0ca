package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeEvents — topic exchange событий выполнения.
const ExchangeEvents = "agentflow.events"

// Routing keys событий.
const (
	RoutingKeyWorkflowStarted  = "workflow.started"
	RoutingKeyWorkflowFinished = "workflow.finished"
	RoutingKeyTaskRetried      = "task.retried"
	RoutingKeyTaskFinished     = "task.finished"
)

// DeclareTopology объявляет exchange событий.
//
// Очереди объявляют подписчики: publisher не знает, кто слушает.
func DeclareTopology(_ context.Context, ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeEvents, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// declareSubscription создаёт временную очередь и привязывает её к exchange.
func declareSubscription(ch *amqp.Channel, patterns []string) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // name (сгенерирует сервер)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare queue: %w", err)
	}

	if len(patterns) == 0 {
		patterns = []string{"#"}
	}
	for _, p := range patterns {
		if err := ch.QueueBind(q.Name, p, ExchangeEvents, false, nil); err != nil {
			return "", fmt.Errorf("bind queue %s to %s: %w", q.Name, p, err)
		}
	}
	return q.Name, nil
}
