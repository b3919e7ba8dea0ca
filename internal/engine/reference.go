package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Зарезервированные корни ссылок.
const (
	// RootError — ${error.<task_id>...} адресует запись об ошибке task.
	RootError = "error"

	// RootVars — ${vars.<name>...} адресует переменные workflow.
	RootVars = "vars"

	// RootInput — ${input.<name>...} адресует входные данные запуска.
	RootInput = "input"
)

// IsReservedID проверяет, что ID занят корнем ссылок.
func IsReservedID(id string) bool {
	switch id {
	case RootError, RootVars, RootInput:
		return true
	default:
		return false
	}
}

// Segment — один шаг пути: поле или индекс.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

// String возвращает сегмент в исходной записи.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Field
}

// Reference — разобранная ссылка ${root.path[0]...}.
type Reference struct {
	Raw  string
	Root string
	Path []Segment
}

// String возвращает исходный текст ссылки.
func (r Reference) String() string {
	return r.Raw
}

// IsError — ссылка на запись об ошибке.
func (r Reference) IsError() bool { return r.Root == RootError }

// TaskID возвращает ID task, на который указывает ссылка.
// Для ${vars.*} и ${input.*} возвращает пустую строку.
func (r Reference) TaskID() string {
	switch r.Root {
	case RootVars, RootInput:
		return ""
	case RootError:
		if len(r.Path) > 0 && !r.Path[0].IsIndex {
			return r.Path[0].Field
		}
		return ""
	default:
		return r.Root
	}
}

// match — найденная в строке ссылка с позицией.
type match struct {
	start, end int
	ref        Reference
}

// ParseReference разбирает одну ссылку вида ${...}.
func ParseReference(s string) (Reference, error) {
	matches, err := scanReferences(s)
	if err != nil {
		return Reference{}, err
	}
	if len(matches) != 1 || matches[0].start != 0 || matches[0].end != len(s) {
		return Reference{}, fmt.Errorf("%w: %q is not a single reference", ErrMalformedReference, s)
	}
	return matches[0].ref, nil
}

// ParseReferences возвращает все ссылки в строке.
func ParseReferences(s string) ([]Reference, error) {
	matches, err := scanReferences(s)
	if err != nil {
		return nil, err
	}
	refs := make([]Reference, len(matches))
	for i, m := range matches {
		refs[i] = m.ref
	}
	return refs, nil
}

// CollectReferences рекурсивно собирает ссылки из шаблона input.
func CollectReferences(value any) ([]Reference, error) {
	var refs []Reference
	var walk func(v any) error
	walk = func(v any) error {
		switch val := v.(type) {
		case string:
			found, err := ParseReferences(val)
			if err != nil {
				return err
			}
			refs = append(refs, found...)
		case map[string]any:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case []any:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(value); err != nil {
		return nil, err
	}
	return refs, nil
}

func scanReferences(s string) ([]match, error) {
	var out []match
	pos := 0
	for {
		i := strings.Index(s[pos:], "${")
		if i < 0 {
			return out, nil
		}
		start := pos + i
		closing := strings.IndexByte(s[start:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("%w: unterminated reference in %q", ErrMalformedReference, s)
		}
		end := start + closing + 1
		raw := s[start:end]
		ref, err := parseBody(raw, s[start+2:end-1])
		if err != nil {
			return nil, err
		}
		out = append(out, match{start: start, end: end, ref: ref})
		pos = end
	}
}

// parseBody разбирает содержимое между ${ и }.
// Грамматика: id ( "." field | "[" int "]" )*
func parseBody(raw, body string) (Reference, error) {
	ref := Reference{Raw: raw}

	n := identLen(body)
	if n == 0 {
		return ref, fmt.Errorf("%w: %s: missing task id", ErrMalformedReference, raw)
	}
	ref.Root = body[:n]
	rest := body[n:]

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			n := identLen(rest[1:])
			if n == 0 {
				return ref, fmt.Errorf("%w: %s: empty field name", ErrMalformedReference, raw)
			}
			ref.Path = append(ref.Path, Segment{Field: rest[1 : 1+n]})
			rest = rest[1+n:]
		case '[':
			closing := strings.IndexByte(rest, ']')
			if closing < 0 {
				return ref, fmt.Errorf("%w: %s: unterminated index", ErrMalformedReference, raw)
			}
			idx, err := strconv.Atoi(rest[1:closing])
			if err != nil || idx < 0 || strings.ContainsAny(rest[1:closing], "+- ") {
				return ref, fmt.Errorf("%w: %s: index %q is not a non-negative integer",
					ErrMalformedReference, raw, rest[1:closing])
			}
			ref.Path = append(ref.Path, Segment{Index: idx, IsIndex: true})
			rest = rest[closing+1:]
		default:
			return ref, fmt.Errorf("%w: %s: unexpected %q", ErrMalformedReference, raw, rest[0])
		}
	}

	if ref.Root == RootError && ref.TaskID() == "" {
		return ref, fmt.Errorf("%w: %s: error reference needs a task id", ErrMalformedReference, raw)
	}
	return ref, nil
}

func identLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			continue
		}
		return i
	}
	return len(s)
}
