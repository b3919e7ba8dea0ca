// Package mq публикует события выполнения в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — topic exchange agentflow.events
//   - publisher.go  — Publisher, наблюдатель engine
//   - consumer.go   — Subscriber для чтения событий (agentflow events)
//
// Routing keys:
//   - workflow.started, workflow.finished
//   - task.retried, task.finished
package mq
