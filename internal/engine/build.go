package engine

import (
	"fmt"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/shaiso/agentflow/internal/domain"
)

// Build валидирует определение и строит workflow.
//
// Ошибка валидации прерывает построение целиком: частично
// построенный граф не возвращается.
func Build(def *domain.WorkflowDef, opts Options) (*domain.Workflow, error) {
	if err := Validate(def, opts); err != nil {
		return nil, err
	}

	wf := domain.NewWorkflow(def.ID, def.Name)
	wf.Description = def.Description
	wf.SkipPropagation = def.SkipPropagation
	if def.Defaults != nil && def.Defaults.Retry != nil {
		policy := *def.Defaults.Retry
		wf.Retry = &policy
	}
	if def.Vars != nil {
		wf.Vars = deepcopy.Copy(def.Vars).(map[string]any)
	}
	if def.Inputs != nil {
		wf.InputDefs = make(map[string]domain.InputDef, len(def.Inputs))
		for k, v := range def.Inputs {
			wf.InputDefs[k] = v
		}
	}

	for i := range def.Tasks {
		task, err := newTask(&def.Tasks[i], def.Defaults, opts.Handlers)
		if err != nil {
			return nil, err
		}
		if err := wf.AddTask(task); err != nil {
			return nil, fmt.Errorf("add task %s: %w", task.ID, err)
		}
	}

	return wf, nil
}

// newTask создаёт task из определения.
func newTask(def *domain.TaskDef, defaults *domain.TaskDefaults, handlers domain.HandlerSet) (*domain.Task, error) {
	kind, ok := domain.ParseTaskKind(def.Kind)
	if !ok {
		return nil, NewValidationError(def.ID, "kind", "unknown task kind: "+def.Kind, ErrUnknownTaskKind)
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}

	task := &domain.Task{
		ID:          def.ID,
		Name:        name,
		Kind:        kind,
		Tool:        def.Tool,
		HandlerName: def.Handler,
		Status:      domain.TaskStatusPending,
		DependsOn:   append([]string(nil), def.DependsOn...),
		OnSuccess:   def.OnSuccess,
		OnFailure:   def.OnFailure,
		Condition:   def.Condition,
		MaxRetries:  def.EffectiveMaxRetries(defaults),
		Parallel:    def.Parallel,
		Optional:    def.Optional,
		Timeout:     time.Duration(def.EffectiveTimeoutSec(defaults)) * time.Second,
	}
	if def.Inputs != nil {
		task.Inputs = deepcopy.Copy(def.Inputs).(map[string]any)
	}
	if kind == domain.TaskKindInline {
		task.Handler = handlers[def.Handler]
	}
	return task, nil
}
