// Package engine содержит построение и статический анализ workflow.
//
// Включает:
//   - loader.go    — чтение определения из YAML/JSON
//   - parser.go    — валидация определения (поля, виды, ссылки, условия)
//   - dag.go       — граф зависимостей и маршрутов, топологический порядок
//   - build.go     — построение domain.Workflow из проверенного определения
//   - reference.go — разбор ссылок ${task.path[0]}
//   - resolver.go  — подстановка значений ссылок во входные данные task
//   - condition.go — CEL условия ветвления
//   - input.go     — проверка входных данных запуска
//
// Engine не выполняет tasks: этим занимается orchestrator.
package engine
