// Package cli реализует команды agentflow.
//
// # Обзор
//
// Основные команды работают в процессе CLI: читают определение
// workflow с диска, собирают зависимости через internal/app
// и выполняют engine напрямую. Группа remote работает
// с agentflow-server через HTTP API.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: agentflow run flow.yaml --json | jq .status
//
// ## Commands
//
//   - validate: проверка определения без запуска
//   - run: выполнение, ответы на вопросы через --answer или --interactive
//   - graph: экспорт графа в DOT или JSON
//   - history: архив отчётов (нужен db.url)
//   - schedule: повторные запуски по cron или интервалу
//   - events: чтение событий из RabbitMQ (нужен amqp.url)
//   - remote: validate, start, list, show, resume, graph, history через API
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей appFn (или clientFn) и outputFn — замыкания для ленивого
// создания зависимостей после парсинга PersistentFlags.
//
// # Коды выхода
//
// run завершается кодом выхода отчёта (0 успех или пауза, 1 ошибка
// выполнения, 2 валидация, 3 ресурс, 4 входные данные). Команды
// возвращают *ExitError, main переводит его в os.Exit через ExitCode.
package cli
