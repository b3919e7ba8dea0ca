// Package tools содержит реестр инструментов и встроенные инструменты.
//
// Registry реализует контракт, который ожидает стратегия tool task:
//
//	Has(name string) bool
//	Invoke(ctx context.Context, name string, input map[string]any) (any, error)
//
// Встроенные инструменты (DefaultRegistry):
//
//   - http_request — HTTP запрос, ответ как {status_code, headers, body}
//   - sleep        — задержка (duration_sec или duration_ms)
//   - json_extract — выборка значений из JSON по gjson путям
//   - echo         — возвращает input без изменений
//
// Произвольную функцию можно зарегистрировать через NewFunc:
//
//	registry.Register(tools.NewFunc("lookup", func(ctx context.Context, in map[string]any) (any, error) {
//	    return db.Find(ctx, in["id"])
//	}))
package tools
