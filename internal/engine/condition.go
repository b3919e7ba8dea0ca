package engine

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"

	"github.com/shaiso/agentflow/internal/domain"
)

const (
	defaultCostLimit     = 1000
	defaultCacheCounters = 10_000
	defaultCacheMaxCost  = 1000
)

// ConditionEvaluator вычисляет условия ветвления.
//
// Выражения — CEL: только логика, сравнения, арифметика и доступ к полям
// над фиксированным контекстом:
//
//	output  — запись Output текущего task (success, result, error)
//	result  — Output.Result
//	success — Output.Success
//	vars    — переменные workflow
//	input   — входные данные запуска
//
// Скомпилированные программы кешируются.
type ConditionEvaluator struct {
	env          *cel.Env
	costLimit    uint64
	programCache *ristretto.Cache[string, cel.Program]
}

// ConditionOption настраивает ConditionEvaluator.
type ConditionOption func(*ConditionEvaluator)

// WithCostLimit задаёт лимит стоимости вычисления одного выражения.
func WithCostLimit(limit uint64) ConditionOption {
	return func(e *ConditionEvaluator) {
		e.costLimit = limit
	}
}

// NewConditionEvaluator создаёт evaluator.
func NewConditionEvaluator(opts ...ConditionOption) (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("result", cel.DynType),
		cel.Variable("success", cel.BoolType),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters: defaultCacheCounters,
		MaxCost:     defaultCacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create program cache: %w", err)
	}

	e := &ConditionEvaluator{
		env:          env,
		costLimit:    defaultCostLimit,
		programCache: cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close освобождает кеш программ.
func (e *ConditionEvaluator) Close() {
	e.programCache.Close()
}

// Compile проверяет выражение: синтаксис, типы и bool результат.
func (e *ConditionEvaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *ConditionEvaluator) program(expr string) (cel.Program, error) {
	if prg, ok := e.programCache.Get(expr); ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrConditionCompile, iss.Err())
	}

	out := ast.OutputType()
	if out != cel.DynType && !out.IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: got %s", ErrConditionNotBool, out)
	}

	prg, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConditionCompile, err)
	}

	e.programCache.Set(expr, prg, 1)
	return prg, nil
}

// Evaluate вычисляет выражение над произвольными данными.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, expr string, data map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConditionEval, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrConditionNotBool, out.Value())
	}
	return b, nil
}

// ConditionData собирает контекст выражения.
func ConditionData(out *domain.Output, vars, input map[string]any) map[string]any {
	if vars == nil {
		vars = map[string]any{}
	}
	if input == nil {
		input = map[string]any{}
	}
	return map[string]any{
		"output":  out.AsMap(),
		"result":  out.Result,
		"success": out.Success,
		"vars":    vars,
		"input":   input,
	}
}
