// Package strategy содержит пути выполнения tasks.
//
// Для каждого вида task своя стратегия:
//
//   - model  — ModelStrategy, вызывает ModelClient.Complete
//   - tool   — ToolStrategy, ищет инструмент в ToolRegistry и вызывает его
//   - inline — InlineStrategy, вызывает обработчик task (InputOnlyHandler или TaskAwareHandler)
//
// Любой результат приводится к domain.Output функцией Normalize,
// поэтому orchestrator и resolver не различают виды tasks.
//
// Registry.Dispatch выбирает стратегию, применяет таймаут task
// и перехватывает панику обработчика.
package strategy
