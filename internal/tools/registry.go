package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр инструментов.
//
// Реализует контракт strategy.ToolRegistry (Has + Invoke).
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными инструментами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewHTTPTool())
	r.Register(NewSleepTool())
	r.Register(NewJSONExtractTool())
	r.Register(NewEchoTool())

	return r
}

// Register регистрирует инструмент.
// Если инструмент с таким именем уже есть, он будет перезаписан.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get возвращает инструмент по имени.
// Возвращает ErrToolNotFound, если инструмента нет.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Has проверяет, зарегистрирован ли инструмент.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Invoke находит инструмент и вызывает его.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return tool.Invoke(ctx, input)
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество зарегистрированных инструментов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Unregister удаляет инструмент из реестра.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}
