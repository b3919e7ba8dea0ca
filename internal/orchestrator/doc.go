// Package orchestrator выполняет workflow.
//
// Оркестратор отвечает за:
//   - Выбор готовых tasks (зависимости выполнены, ветка активирована)
//   - Разрешение input и вызов стратегии
//   - Повторные попытки с задержкой
//   - Переходы по on_success / on_failure и условиям
//   - Пропуск невыбранных веток
//   - Паузу при запросе уточнения и продолжение через Resume
//   - Итоговый статус, цепочку ошибок и код выхода
//
// Есть два варианта с одинаковым результатом: Engine выполняет tasks по
// одному (параллельные группы через ограниченный errgroup), а
// CooperativeEngine запускает все готовые tasks сразу и ждёт только на
// границе стратегии.
package orchestrator
