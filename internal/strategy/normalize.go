package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/agentflow/internal/domain"
)

// NeedsInputError — стратегия или обработчик просит уточнение у вызывающего.
type NeedsInputError struct {
	Question string
	Partial  any
}

// Error реализует интерфейс error.
func (e *NeedsInputError) Error() string {
	return "needs input: " + e.Question
}

// NeedsInput возвращает ошибку-запрос уточнения.
func NeedsInput(question string) error {
	return &NeedsInputError{Question: question}
}

// KindError — ошибка с явной категорией.
type KindError struct {
	Kind    domain.ErrorKind
	Err     error
	Details map[string]any
}

// Error реализует интерфейс error.
func (e *KindError) Error() string { return e.Err.Error() }

// Unwrap возвращает базовую ошибку.
func (e *KindError) Unwrap() error { return e.Err }

// WithKind помечает ошибку категорией.
func WithKind(kind domain.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// Normalize приводит результат стратегии к Output.
//
// Поддерживаемые формы:
//   - ошибка (NeedsInputError, KindError, *domain.ErrorInfo или любая другая);
//   - *domain.Output / domain.Output;
//   - запись со status: "success" | "error" | "needs_input";
//   - запись с success (bool) и result/error;
//   - запись с needs_input: true;
//   - любое другое значение — успешный result.
func Normalize(v any, err error) *domain.Output {
	if err != nil {
		return fromError(err)
	}

	switch r := v.(type) {
	case *domain.Output:
		if r == nil {
			return domain.Succeeded(nil)
		}
		out := *r
		return fixup(&out)
	case domain.Output:
		return fixup(&r)
	case map[string]any:
		return fromRecord(r)
	default:
		return domain.Succeeded(v)
	}
}

func fromError(err error) *domain.Output {
	var needs *NeedsInputError
	if errors.As(err, &needs) {
		return domain.AwaitingInput(needs.Question, needs.Partial)
	}

	var kindErr *KindError
	if errors.As(err, &kindErr) {
		return domain.Failed(kindErr.Kind, kindErr.Error(), kindErr.Details)
	}

	var info *domain.ErrorInfo
	if errors.As(err, &info) {
		return domain.Failed(info.Kind, info.Message, info.Details)
	}

	return domain.Failed(domain.ErrorKindExecution, err.Error(), nil)
}

// fixup дополняет неуспешный Output без описания ошибки.
func fixup(out *domain.Output) *domain.Output {
	if !out.Success && !out.NeedsInput && out.Error == nil {
		out.Error = &domain.ErrorInfo{Message: "strategy reported failure", Kind: domain.ErrorKindExecution}
	}
	if out.Success {
		out.Error = nil
	}
	return out
}

func fromRecord(r map[string]any) *domain.Output {
	if status, ok := r["status"].(string); ok {
		switch strings.ToLower(status) {
		case "success", "succeeded", "ok", "completed", "done":
			if res, ok := r["result"]; ok {
				return domain.Succeeded(res)
			}
			return domain.Succeeded(without(r, "status"))
		case "error", "failed", "failure":
			return failedFromRecord(r)
		case "needs_input", "awaiting_input", "clarification":
			return domain.AwaitingInput(question(r), r["result"])
		}
	}

	if needs, ok := r["needs_input"].(bool); ok && needs {
		return domain.AwaitingInput(question(r), r["result"])
	}

	if success, ok := r["success"].(bool); ok {
		_, hasResult := r["result"]
		_, hasError := r["error"]
		if hasResult || hasError {
			if success {
				return domain.Succeeded(r["result"])
			}
			return failedFromRecord(r)
		}
	}

	return domain.Succeeded(r)
}

func failedFromRecord(r map[string]any) *domain.Output {
	kind := domain.ErrorKindExecution
	msg := ""
	var details map[string]any

	switch e := r["error"].(type) {
	case string:
		msg = e
	case map[string]any:
		if m, ok := e["message"].(string); ok {
			msg = m
		}
		if k, ok := e["kind"].(string); ok {
			kind = ParseErrorKind(k)
		}
		if d, ok := e["details"].(map[string]any); ok {
			details = d
		}
	case error:
		msg = e.Error()
	case nil:
	default:
		msg = fmt.Sprint(e)
	}

	if msg == "" {
		if m, ok := r["message"].(string); ok {
			msg = m
		} else {
			msg = "strategy reported failure"
		}
	}

	out := domain.Failed(kind, msg, details)
	if res, ok := r["result"]; ok {
		out.Result = res
	}
	return out
}

func question(r map[string]any) string {
	for _, key := range []string{"question", "message", "prompt"} {
		if q, ok := r[key].(string); ok && q != "" {
			return q
		}
	}
	return "additional input required"
}

func without(r map[string]any, key string) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// ParseErrorKind парсит категорию ошибки. Неизвестная категория — execution.
func ParseErrorKind(s string) domain.ErrorKind {
	switch domain.ErrorKind(strings.ToLower(s)) {
	case domain.ErrorKindValidation:
		return domain.ErrorKindValidation
	case domain.ErrorKindResource:
		return domain.ErrorKindResource
	case domain.ErrorKindInput:
		return domain.ErrorKindInput
	default:
		return domain.ErrorKindExecution
	}
}
