package orchestrator

import (
	"log/slog"
	"slices"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/engine"
)

// readiness — результат проверки pending task.
type readiness int

const (
	// waiting — зависимости или источники ветки ещё не завершены.
	waiting readiness = iota

	// ready — task можно запускать.
	ready

	// blocked — task никогда не запустится и должен быть пропущен.
	blocked
)

// runState — учёт выполнения одного вызова Run/Resume.
//
// Само состояние tasks хранится в workflow; runState держит
// только производные данные графа.
type runState struct {
	wf *domain.Workflow

	// routeSources — для каждого target: tasks, чьи on_success/on_failure на него указывают.
	routeSources map[string][]string

	// references — tasks, на outputs или записи об ошибках которых ссылается input task.
	references map[string][]string

	retry  *domain.RetryPolicy
	logger *slog.Logger
}

func newRunState(wf *domain.Workflow, retry *domain.RetryPolicy, logger *slog.Logger) *runState {
	s := &runState{
		wf:           wf,
		routeSources: make(map[string][]string),
		references:   make(map[string][]string),
		retry:        retry,
		logger:       logger,
	}
	if wf.Retry != nil {
		s.retry = wf.Retry
	}

	wf.View(func(v *domain.View) {
		for _, t := range v.Tasks() {
			for _, target := range []string{t.OnSuccess, t.OnFailure} {
				if target == "" || slices.Contains(s.routeSources[target], t.ID) {
					continue
				}
				s.routeSources[target] = append(s.routeSources[target], t.ID)
			}
			s.references[t.ID] = referencedTasks(t)
		}
	})
	return s
}

// referencedTasks собирает ID tasks из ссылок ${...} во входных данных.
// Ссылки уже проверены при построении, ошибки разбора здесь не возникают.
func referencedTasks(t *domain.Task) []string {
	refs, err := engine.CollectReferences(t.Inputs)
	if err != nil {
		return nil
	}
	var ids []string
	for _, ref := range refs {
		id := ref.TaskID()
		if id == "" || id == t.ID || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// settle пропускает недостижимые tasks и возвращает готовые в порядке объявления.
//
// Пропуск одного task может сделать недостижимым другой, поэтому
// проход повторяется до неподвижной точки. Вызывается под Mutate.
func (s *runState) settle(v *domain.View) (readyTasks, skipped []*domain.Task) {
	for {
		readyTasks = readyTasks[:0]
		changed := false

		for _, t := range v.Tasks() {
			if t.Status != domain.TaskStatusPending {
				continue
			}
			switch s.classify(v, t) {
			case blocked:
				if err := t.MarkSkipped(); err == nil {
					skipped = append(skipped, t)
					changed = true
				}
			case ready:
				readyTasks = append(readyTasks, t)
			}
		}

		if !changed {
			return readyTasks, skipped
		}
	}
}

// classify проверяет, может ли pending task запуститься.
//
// Target ветки ждёт, пока завершатся все его источники, и запускается,
// только если хотя бы один из них его активировал.
// Зависимость выполнена, если она completed, если именно она направила
// сюда свою ветку, или если она skipped при включённом SkipPropagation.
// Task со ссылками ждёт завершения всех tasks, на которые ссылается.
func (s *runState) classify(v *domain.View, t *domain.Task) readiness {
	if sources := s.routeSources[t.ID]; len(sources) > 0 {
		for _, src := range sources {
			st, ok := v.Task(src)
			if ok && !st.IsFinished() {
				return waiting
			}
		}
		if len(t.ActivatedBy) == 0 {
			return blocked
		}
	}

	for _, dep := range t.DependsOn {
		d, ok := v.Task(dep)
		if !ok {
			return blocked
		}
		switch d.Status {
		case domain.TaskStatusCompleted:
		case domain.TaskStatusFailed:
			if !slices.Contains(t.ActivatedBy, dep) {
				return blocked
			}
		case domain.TaskStatusSkipped:
			if !v.Workflow().SkipPropagation {
				return blocked
			}
		default:
			return waiting
		}
	}

	for _, id := range s.references[t.ID] {
		if r, ok := v.Task(id); ok && !r.IsFinished() {
			return waiting
		}
	}
	return ready
}

// next возвращает task, который запускается следующим, или nil.
//
// Tasks просматриваются в порядке объявления. Просмотр останавливается на
// ожидающем task, который может стать готовым после завершения уже
// запущенных: так порядок запуска совпадает с последовательным выбором
// «первый готовый после завершения предыдущих». Вызывается после settle.
func (s *runState) next(v *domain.View) *domain.Task {
	for _, t := range v.Tasks() {
		if t.Status != domain.TaskStatusPending {
			continue
		}
		switch s.classify(v, t) {
		case ready:
			return t
		case waiting:
			if s.stalled(v, t, make(map[string]bool)) {
				return nil
			}
		}
	}
	return nil
}

// stalled проверяет, ждёт ли task (напрямую или через другие pending tasks)
// task, который сейчас выполняется.
func (s *runState) stalled(v *domain.View, t *domain.Task, seen map[string]bool) bool {
	if seen[t.ID] {
		return false
	}
	seen[t.ID] = true

	for _, id := range s.waitsFor(t) {
		w, ok := v.Task(id)
		if !ok {
			continue
		}
		switch w.Status {
		case domain.TaskStatusRunning:
			return true
		case domain.TaskStatusPending:
			if s.stalled(v, w, seen) {
				return true
			}
		}
	}
	return false
}

// waitsFor перечисляет tasks, от статуса которых зависит готовность task.
func (s *runState) waitsFor(t *domain.Task) []string {
	ids := make([]string, 0, len(s.routeSources[t.ID])+len(t.DependsOn)+len(s.references[t.ID]))
	ids = append(ids, s.routeSources[t.ID]...)
	ids = append(ids, t.DependsOn...)
	return append(ids, s.references[t.ID]...)
}

// activate передаёт управление по выбранной ветке task.
func (s *runState) activate(v *domain.View, t *domain.Task) {
	target := t.RouteTarget()
	if target == "" {
		return
	}
	next, ok := v.Task(target)
	if !ok || next.Status != domain.TaskStatusPending {
		return
	}
	if !slices.Contains(next.ActivatedBy, t.ID) {
		next.ActivatedBy = append(next.ActivatedBy, t.ID)
	}
}

// recordFailure сохраняет запись об ошибке и идёт по ветке on_failure.
func (s *runState) recordFailure(v *domain.View, t *domain.Task) *domain.ErrorRecord {
	rec := &domain.ErrorRecord{
		TaskID:    t.ID,
		Kind:      domain.ErrorKindExecution,
		Recovered: t.OnFailure != "" || t.Optional,
		Attempts:  t.RetriesUsed + 1,
		CausedBy:  causedBy(v, t),
	}
	if t.Output != nil && t.Output.Error != nil {
		rec.Message = t.Output.Error.Message
		rec.Kind = t.Output.Error.Kind
		rec.Details = t.Output.Error.Details
	}

	v.Workflow().Errors[t.ID] = rec
	t.Route = domain.RouteFailure
	s.activate(v, t)
	return rec
}

// causedBy находит upstream task с ошибкой, который направил выполнение сюда.
func causedBy(v *domain.View, t *domain.Task) string {
	for _, src := range t.ActivatedBy {
		if _, ok := v.Error(src); ok {
			return src
		}
	}
	for _, dep := range t.DependsOn {
		if _, ok := v.Error(dep); ok {
			return dep
		}
	}
	return ""
}
