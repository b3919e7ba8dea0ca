package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки события.
type Handler func(ctx context.Context, msg *Message) error

// Subscriber читает события из временной очереди, привязанной к agentflow.events.
//
// Очередь эксклюзивная и удаляется при отключении: подписчик видит
// только события, опубликованные после подписки.
type Subscriber struct {
	conn     *Connection
	logger   *slog.Logger
	patterns []string
	handler  Handler
}

// NewSubscriber создаёт подписчика. patterns — шаблоны routing key
// (например, "task.*"); пустой список означает все события.
func NewSubscriber(conn *Connection, logger *slog.Logger, patterns []string, handler Handler) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		conn:     conn,
		logger:   logger,
		patterns: patterns,
		handler:  handler,
	}
}

// Run потребляет события до отмены контекста.
// После разрыва соединения подписка восстанавливается.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		deliveries, err := s.subscribe()
		if err != nil {
			s.logger.Error("failed to subscribe", "error", err)
		} else {
			s.logger.Info("subscribed to events", "patterns", s.patterns)
			if err := s.consume(ctx, deliveries); ctx.Err() != nil {
				return ctx.Err()
			} else if err != nil {
				s.logger.Warn("deliveries channel closed, waiting for reconnect", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.conn.ReconnectNotify():
		}
	}
}

func (s *Subscriber) subscribe() (<-chan amqp.Delivery, error) {
	ch := s.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	queue, err := declareSubscription(ch, s.patterns)
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (s *Subscriber) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			s.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
// Некорректные сообщения отбрасываются; ошибки обработчика
// логируются и сообщение тоже подтверждается: события не переигрываются.
func (s *Subscriber) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		s.logger.Error("failed to unmarshal message",
			"error", err,
			"body", string(raw.Body),
		)
		_ = raw.Nack(false, false)
		return
	}

	if err := s.handler(ctx, &msg); err != nil {
		s.logger.Error("handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
	}
	_ = raw.Ack(false)
}
