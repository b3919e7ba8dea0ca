package domain

// WorkflowDef — определение workflow (вход построения).
//
// Обычно приходит из YAML/JSON файла или от планирующего компонента.
// Неизвестные поля и некорректные записи отклоняются валидацией целиком,
// частичного принятия нет.
type WorkflowDef struct {
	// ID — идентификатор workflow.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name — отображаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description — описание назначения.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Inputs — объявленные входные параметры запуска.
	Inputs map[string]InputDef `json:"inputs,omitempty" yaml:"inputs,omitempty" validate:"dive"`

	// Vars — константы, доступные через ${vars.*}.
	Vars map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`

	// SkipPropagation — пропущенная зависимость считается выполненной.
	SkipPropagation bool `json:"skip_propagation,omitempty" yaml:"skip_propagation,omitempty"`

	// Defaults — настройки по умолчанию для всех tasks.
	Defaults *TaskDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Tasks — tasks в порядке объявления.
	Tasks []TaskDef `json:"tasks" yaml:"tasks" validate:"required,min=1,dive"`
}

// InputDef — определение входного параметра.
type InputDef struct {
	// Type — тип параметра: "string", "number", "integer", "boolean", "object", "array".
	Type string `json:"type" yaml:"type" validate:"omitempty,oneof=string number integer boolean object array any"`

	// Required — обязательный ли параметр.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Description — описание параметра.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TaskDefaults — настройки по умолчанию для tasks.
type TaskDefaults struct {
	// MaxRetries — повторные попытки, если task не задаёт своё значение.
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=0"`

	// TimeoutSec — таймаут стратегии в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty" validate:"min=0"`

	// Retry — задержка между попытками.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// TaskDef — определение task.
type TaskDef struct {
	// ID — уникальный идентификатор task, используется в ссылках ${id...}.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Kind — "model", "tool" или "inline".
	Kind string `json:"kind" yaml:"kind" validate:"required"`

	// Tool — имя инструмента (только для kind=tool).
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`

	// Handler — имя inline обработчика (только для kind=inline).
	Handler string `json:"handler,omitempty" yaml:"handler,omitempty"`

	// Inputs — шаблон входных данных.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// DependsOn — tasks, которые должны завершиться раньше.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// OnSuccess / OnFailure — следующий task по исходу.
	OnSuccess string `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`

	// Condition — выражение, выбирающее ветку при успешном выполнении.
	// Например: "result.score > 0.5 && vars.strict"
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// MaxRetries — повторные попытки после первой. nil — берётся из defaults.
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=0,max=100"`

	// Parallel — task может выполняться вместе с готовыми соседями.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	// Optional — падение task не делает workflow failed.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`

	// TimeoutSec — таймаут стратегии. Переопределяет defaults.timeout_sec.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty" validate:"min=0"`
}

// RetryPolicy — задержка между попытками.
type RetryPolicy struct {
	// Backoff — стратегия задержки: "none", "fixed", "exponential".
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty" validate:"omitempty,oneof=none fixed exponential"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty" yaml:"initial_delay_ms,omitempty" validate:"min=0"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty" validate:"min=0"`
}

// EffectiveMaxRetries возвращает число повторов с учётом defaults.
func (d *TaskDef) EffectiveMaxRetries(defaults *TaskDefaults) int {
	if d.MaxRetries != nil {
		return *d.MaxRetries
	}
	if defaults != nil && defaults.MaxRetries != nil {
		return *defaults.MaxRetries
	}
	return 0
}

// EffectiveTimeoutSec возвращает таймаут с учётом defaults.
func (d *TaskDef) EffectiveTimeoutSec(defaults *TaskDefaults) int {
	if d.TimeoutSec > 0 {
		return d.TimeoutSec
	}
	if defaults != nil {
		return defaults.TimeoutSec
	}
	return 0
}
