// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go     — Handler с DI (реестр запусков, архив, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - run_handler.go — обработчики для /runs, /validate, /history
//
// Запуски живут в памяти процесса; после рестарта доступны
// только их отчёты из архива.
package api
