package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/agentflow/internal/domain"
)

// ToolChecker — проверка наличия инструмента в реестре.
type ToolChecker interface {
	Has(name string) bool
}

// Options — коллабораторы и флаги валидации и построения.
type Options struct {
	// Tools — реестр инструментов. nil — наличие инструментов не проверяется.
	Tools ToolChecker

	// AllowMissingTools — отсутствующий инструмент даёт предупреждение,
	// а не ошибку валидации. Во время выполнения такой task упадёт с resource ошибкой.
	AllowMissingTools bool

	// Handlers — именованные inline обработчики.
	Handlers domain.HandlerSet

	// Conditions — evaluator для проверки условий. nil — создаётся на время вызова.
	Conditions *ConditionEvaluator

	// Logger — для предупреждений.
	Logger *slog.Logger
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getStructValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate выполняет полную валидацию определения workflow.
//
// Проверяет:
// - Наличие tasks и обязательных полей
// - Уникальность ID и зарезервированные имена
// - Вид task и его требования (tool, handler, prompt)
// - Зависимости и маршруты (существование, self-dependency, циклы)
// - Условия (компилируются и возвращают bool)
// - Ссылки ${...} (синтаксис, существование, task-предшественник)
//
// Возвращает ValidationErrors со всеми найденными ошибками.
func Validate(def *domain.WorkflowDef, opts Options) error {
	if def == nil || len(def.Tasks) == 0 {
		return ValidationErrors{NewValidationError("", "tasks", "workflow has no tasks", ErrEmptyTasks)}
	}

	var errs ValidationErrors
	errs = append(errs, validateStruct(def)...)

	ids := make(map[string]bool, len(def.Tasks))
	idsOK := true
	for i := range def.Tasks {
		task := &def.Tasks[i]
		if err := validateTaskID(task, ids); err != nil {
			errs = append(errs, err)
			idsOK = false
			continue
		}
		errs = append(errs, validateTaskKind(task, opts)...)
	}

	if idsOK {
		dag, err := BuildDAG(def)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				errs = append(errs, ve)
			} else {
				errs = append(errs, NewValidationError("", "tasks", err.Error(), err))
			}
		} else {
			errs = append(errs, validateReferences(def, dag)...)
		}
	}

	errs = append(errs, validateConditions(def, opts)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateStruct проверяет struct-теги определения.
func validateStruct(def *domain.WorkflowDef) ValidationErrors {
	err := getStructValidator().Struct(def)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{NewValidationError("", "", err.Error(), ErrInvalidDefinition)}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("field %s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		out = append(out, NewValidationError("", fe.Namespace(), msg, ErrInvalidDefinition))
	}
	return out
}

// validateTaskID проверяет ID task.
// ids — уже встреченные ID (для проверки уникальности).
func validateTaskID(task *domain.TaskDef, ids map[string]bool) *ValidationError {
	if task.ID == "" {
		return NewValidationError("", "id", "task has empty ID", ErrEmptyTaskID)
	}
	if identLen(task.ID) != len(task.ID) {
		return NewValidationError(task.ID, "id",
			"task ID may contain only letters, digits, '_' and '-'", ErrMalformedReference)
	}
	if IsReservedID(task.ID) {
		return NewValidationError(task.ID, "id",
			fmt.Sprintf("task ID %q is reserved", task.ID), ErrReservedTaskID)
	}
	if ids[task.ID] {
		return NewValidationError(task.ID, "id",
			fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
	}
	ids[task.ID] = true
	return nil
}

// validateTaskKind проверяет вид task и его требования.
func validateTaskKind(task *domain.TaskDef, opts Options) ValidationErrors {
	kind, ok := domain.ParseTaskKind(task.Kind)
	if !ok {
		return ValidationErrors{NewValidationError(task.ID, "kind",
			fmt.Sprintf("unknown task kind: %q", task.Kind), ErrUnknownTaskKind)}
	}

	var errs ValidationErrors
	switch kind {
	case domain.TaskKindTool:
		if task.Tool == "" {
			errs = append(errs, NewValidationError(task.ID, "tool", "tool task has no tool name", ErrMissingTool))
			break
		}
		if opts.Tools != nil && !opts.Tools.Has(task.Tool) {
			if !opts.AllowMissingTools {
				errs = append(errs, NewValidationError(task.ID, "tool",
					fmt.Sprintf("tool %q is not registered", task.Tool), ErrToolUnavailable))
				break
			}
			logger(opts).Warn("tool is not registered, task will fail at runtime",
				slog.String("task_id", task.ID),
				slog.String("tool", task.Tool),
			)
		}

	case domain.TaskKindInline:
		if task.Handler == "" {
			errs = append(errs, NewValidationError(task.ID, "handler", "inline task has no handler", ErrMissingHandler))
			break
		}
		if !opts.Handlers.Has(task.Handler) {
			errs = append(errs, NewValidationError(task.ID, "handler",
				fmt.Sprintf("unknown inline handler: %q", task.Handler), ErrUnknownHandler))
		}

	case domain.TaskKindModel:
		if p, ok := task.Inputs["prompt"]; !ok || p == nil || p == "" {
			errs = append(errs, NewValidationError(task.ID, "inputs.prompt",
				"model task has no prompt input", ErrMissingPrompt))
		}
	}
	return errs
}

// validateReferences проверяет ссылки ${...} во входных данных.
func validateReferences(def *domain.WorkflowDef, dag *DAG) ValidationErrors {
	var errs ValidationErrors
	// errorReaders: task → tasks, читающие его запись об ошибке.
	errorReaders := make(map[string][]string)
	for i := range def.Tasks {
		task := &def.Tasks[i]

		refs, err := CollectReferences(task.Inputs)
		if err != nil {
			errs = append(errs, NewValidationError(task.ID, "inputs", err.Error(), err))
			continue
		}

		var ancestors map[string]bool
		for _, ref := range refs {
			switch ref.Root {
			case RootVars:
				if len(ref.Path) > 0 && !ref.Path[0].IsIndex {
					if _, ok := def.Vars[ref.Path[0].Field]; !ok {
						errs = append(errs, NewValidationError(task.ID, "inputs",
							fmt.Sprintf("%s: unknown workflow variable %q", ref.Raw, ref.Path[0].Field), ErrPathNotFound))
					}
				}
				continue
			case RootInput:
				if len(def.Inputs) > 0 && len(ref.Path) > 0 && !ref.Path[0].IsIndex {
					if _, ok := def.Inputs[ref.Path[0].Field]; !ok {
						errs = append(errs, NewValidationError(task.ID, "inputs",
							fmt.Sprintf("%s: undeclared input %q", ref.Raw, ref.Path[0].Field), ErrInputUnknown))
					}
				}
				continue
			}

			target := ref.TaskID()
			if dag.GetNode(target) == nil {
				errs = append(errs, NewValidationError(task.ID, "inputs",
					fmt.Sprintf("%s: unknown task %q", ref.Raw, target), ErrUnknownReference))
				continue
			}
			if target == task.ID {
				errs = append(errs, NewValidationError(task.ID, "inputs",
					fmt.Sprintf("%s: task references itself", ref.Raw), ErrNotUpstream))
				continue
			}
			// Запись об ошибке может читать любой task, запущенный позже.
			if ref.IsError() {
				errorReaders[target] = append(errorReaders[target], task.ID)
				continue
			}
			if ancestors == nil {
				ancestors = dag.Ancestors(task.ID)
			}
			if !ancestors[target] {
				errs = append(errs, NewValidationError(task.ID, "inputs",
					fmt.Sprintf("%s: task %q is not upstream of %q", ref.Raw, target, task.ID), ErrNotUpstream))
			}
		}
	}

	// Читатель ${error.X} запускается после X, поэтому X не может ждать читателя.
	if len(errorReaders) > 0 {
		if n := dag.CycleWith(errorReaders); n != nil {
			errs = append(errs, NewValidationError(n.ID, "inputs",
				fmt.Sprintf("error record reads form a cycle at task %s", n.ID), ErrCyclicDependency))
		}
	}
	return errs
}

// validateConditions компилирует все условия.
func validateConditions(def *domain.WorkflowDef, opts Options) ValidationErrors {
	evaluator := opts.Conditions
	var errs ValidationErrors
	for i := range def.Tasks {
		task := &def.Tasks[i]
		if task.Condition == "" {
			continue
		}
		if evaluator == nil {
			var err error
			evaluator, err = NewConditionEvaluator()
			if err != nil {
				return ValidationErrors{NewValidationError(task.ID, "condition", err.Error(), err)}
			}
			defer evaluator.Close()
		}
		if err := evaluator.Compile(task.Condition); err != nil {
			errs = append(errs, NewValidationError(task.ID, "condition",
				fmt.Sprintf("invalid condition %q: %v", task.Condition, err), err))
		}
	}
	return errs
}

func logger(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.Default()
}
