package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mohae/deepcopy"

	"github.com/shaiso/agentflow/internal/domain"
)

// Unresolved — явный маркер значения, которое ещё нельзя получить.
//
// Возвращается вместо пустой строки или nil, когда task по ссылке
// не завершён или не имеет записи об ошибке.
type Unresolved struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// String возвращает маркер в читаемом виде.
func (u Unresolved) String() string {
	return "<unresolved " + u.Ref + ": " + u.Reason + ">"
}

// Поля записи Output, адресуемые первым сегментом пути.
var outputFields = map[string]bool{
	"success": true,
	"result":  true,
	"error":   true,
}

// ResolveInputs строит конкретный input task из шаблона.
//
// Данные, переданные при resume (Task.Supplied), накладываются поверх
// разрешённого шаблона без разрешения ссылок. Функция только читает
// workflow и безопасна для повторного вызова.
func ResolveInputs(v *domain.View, task *domain.Task) (map[string]any, error) {
	resolved := make(map[string]any, len(task.Inputs)+len(task.Supplied))
	for key, tmpl := range task.Inputs {
		val, err := ResolveValue(v, tmpl)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		resolved[key] = val
	}
	for key, val := range task.Supplied {
		resolved[key] = deepcopy.Copy(val)
	}
	return resolved, nil
}

// ResolveValue рекурсивно разрешает ссылки в значении шаблона.
//
// Строка, состоящая ровно из одной ссылки, сохраняет тип значения.
// Ссылка внутри текста подставляется строковым представлением.
func ResolveValue(v *domain.View, value any) (any, error) {
	switch val := value.(type) {
	case string:
		return resolveString(v, val)

	case map[string]any:
		result := make(map[string]any, len(val))
		for key, item := range val {
			r, err := ResolveValue(v, item)
			if err != nil {
				return nil, err
			}
			result[key] = r
		}
		return result, nil

	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			r, err := ResolveValue(v, item)
			if err != nil {
				return nil, err
			}
			result[i] = r
		}
		return result, nil

	default:
		return deepcopy.Copy(value), nil
	}
}

func resolveString(v *domain.View, s string) (any, error) {
	matches, err := scanReferences(s)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return s, nil
	}

	// Ровно одна ссылка и больше ничего — тип сохраняется.
	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(s) {
		return ResolveReference(v, matches[0].ref)
	}

	var b strings.Builder
	pos := 0
	for _, m := range matches {
		b.WriteString(s[pos:m.start])
		val, err := ResolveReference(v, m.ref)
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(val))
		pos = m.end
	}
	b.WriteString(s[pos:])
	return b.String(), nil
}

// ResolveReference возвращает значение по ссылке.
//
// Если task ещё не завершён, возвращает Unresolved и ошибку ErrUnresolved.
func ResolveReference(v *domain.View, ref Reference) (any, error) {
	wf := v.Workflow()

	switch ref.Root {
	case RootVars:
		return walkPath(ref, wf.Vars, ref.Path)

	case RootInput:
		return walkPath(ref, wf.Input, ref.Path)

	case RootError:
		taskID := ref.TaskID()
		if _, ok := v.Task(taskID); !ok {
			return nil, &ReferenceError{Ref: ref.Raw, Segment: taskID, Err: ErrUnknownReference}
		}
		rec, ok := v.Error(taskID)
		if !ok {
			return unresolved(ref, "task "+taskID+" has no error record")
		}
		return walkPath(ref, rec.AsMap(), ref.Path[1:])
	}

	task, ok := v.Task(ref.Root)
	if !ok {
		return nil, &ReferenceError{Ref: ref.Raw, Segment: ref.Root, Err: ErrUnknownReference}
	}
	if task.Status != domain.TaskStatusCompleted || task.Output == nil {
		return unresolved(ref, "task "+task.ID+" is "+string(task.Status))
	}

	if len(ref.Path) == 0 {
		return deepcopy.Copy(task.Output.Result), nil
	}
	if first := ref.Path[0]; !first.IsIndex && outputFields[first.Field] {
		return walkPath(ref, task.Output.AsMap(), ref.Path)
	}
	return walkPath(ref, task.Output.Result, ref.Path)
}

func unresolved(ref Reference, reason string) (any, error) {
	return Unresolved{Ref: ref.Raw, Reason: reason},
		&ReferenceError{Ref: ref.Raw, Err: fmt.Errorf("%w: %s", ErrUnresolved, reason)}
}

// walkPath проходит по сегментам пути и возвращает копию найденного значения.
func walkPath(ref Reference, root any, path []Segment) (any, error) {
	cur := root
	for _, seg := range path {
		var err error
		if seg.IsIndex {
			cur, err = index(cur, seg.Index)
		} else {
			cur, err = field(cur, seg.Field)
		}
		if err != nil {
			return nil, &ReferenceError{Ref: ref.Raw, Segment: seg.String(), Err: err}
		}
	}
	return deepcopy.Copy(cur), nil
}

func field(cur any, name string) (any, error) {
	switch m := cur.(type) {
	case map[string]any:
		val, ok := m[name]
		if !ok {
			return nil, ErrPathNotFound
		}
		return val, nil
	case map[string]string:
		val, ok := m[name]
		if !ok {
			return nil, ErrPathNotFound
		}
		return val, nil
	case nil:
		return nil, fmt.Errorf("%w: value is null", ErrNotARecord)
	}

	rv := reflect.ValueOf(cur)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, ErrPathNotFound
		}
		return val.Interface(), nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotARecord, cur)
}

func index(cur any, i int) (any, error) {
	if s, ok := cur.([]any); ok {
		if i >= len(s) {
			return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, len(s))
		}
		return s[i], nil
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: value is null", ErrNotIndexable)
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if i >= rv.Len() {
			return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, rv.Len())
		}
		return rv.Index(i).Interface(), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotIndexable, cur)
	}
}

// Stringify возвращает строковое представление значения для подстановки в текст.
// Записи и последовательности сериализуются в JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case fmt.Stringer:
		return val.String()
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
