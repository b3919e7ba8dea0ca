// Package telemetry — логирование и метрики agentflow.
//
// logging.go настраивает slog (text или json, уровень из конфигурации)
// и переносит логгер через context. metrics.go — наблюдатель engine,
// который считает запуски, исходы tasks и повторы в Prometheus.
package telemetry
