package engine

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"

	"github.com/mohae/deepcopy"

	"github.com/shaiso/agentflow/internal/domain"
)

// CheckInput проверяет входные данные запуска по объявленной форме
// и подставляет значения по умолчанию.
//
// Без объявлений input принимается как есть.
func CheckInput(defs map[string]domain.InputDef, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input)+len(defs))
	for k, v := range input {
		out[k] = deepcopy.Copy(v)
	}
	if len(defs) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		def := defs[name]
		val, ok := out[name]
		if !ok || val == nil {
			if def.Default != nil {
				out[name] = deepcopy.Copy(def.Default)
				continue
			}
			if def.Required {
				errs = append(errs, fmt.Errorf("%w: %s", ErrInputRequired, name))
			}
			continue
		}
		if !matchesType(def.Type, val) {
			errs = append(errs, fmt.Errorf("%w: %s: expected %s, got %T", ErrInputType, name, def.Type, val))
		}
	}

	extra := make([]string, 0)
	for name := range out {
		if _, ok := defs[name]; !ok {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInputUnknown, name))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		return isNumber(v)
	case "integer":
		switch n := v.(type) {
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		}
		return isNumber(v)
	case "object":
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map
	case "array":
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
