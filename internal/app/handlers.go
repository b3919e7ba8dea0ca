package app

import (
	"context"
	"fmt"
	"maps"

	"github.com/shaiso/agentflow/internal/domain"
)

// Встроенные inline обработчики.
const (
	// HandlerAsk задаёт вопрос из input.question и ждёт input.answer.
	HandlerAsk = "ask"

	// HandlerPassthrough возвращает разрешённый input как результат.
	HandlerPassthrough = "passthrough"
)

// DefaultHandlers возвращает встроенные inline обработчики.
func DefaultHandlers() domain.HandlerSet {
	return domain.HandlerSet{
		HandlerAsk:         domain.InputOnlyHandler(ask),
		HandlerPassthrough: domain.InputOnlyHandler(passthrough),
	}
}

// mergeHandlers накладывает пользовательские обработчики на встроенные.
func mergeHandlers(custom domain.HandlerSet) domain.HandlerSet {
	out := DefaultHandlers()
	maps.Copy(out, custom)
	return out
}

func ask(_ context.Context, input map[string]any) (any, error) {
	if answer, ok := input["answer"]; ok {
		return map[string]any{"answer": answer}, nil
	}

	question, _ := input["question"].(string)
	if question == "" {
		return nil, fmt.Errorf("ask: question is required")
	}
	return map[string]any{"status": "needs_input", "question": question}, nil
}

func passthrough(_ context.Context, input map[string]any) (any, error) {
	return maps.Clone(input), nil
}
