package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	// ToolJSONExtract — имя инструмента извлечения полей из JSON.
	ToolJSONExtract = "json_extract"

	inputSource = "source"
	inputPaths  = "paths"
)

// JSONExtractTool извлекает значения из документа по gjson путям.
//
// Input:
//
//	{
//	    "source": "${fetch.result.body}",   // строка JSON или любая запись
//	    "paths": {
//	        "total": "items.#",
//	        "first_id": "items.0.id",
//	        "names": "items.#.name"
//	    }
//	}
//
// Результат: запись с теми же ключами, что и paths.
// Отсутствующий путь даёт null.
type JSONExtractTool struct{}

// NewJSONExtractTool создаёт JSONExtractTool.
func NewJSONExtractTool() *JSONExtractTool {
	return &JSONExtractTool{}
}

// Name возвращает имя инструмента.
func (j *JSONExtractTool) Name() string {
	return ToolJSONExtract
}

// Invoke извлекает значения.
func (j *JSONExtractTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolCancelled, err)
	}

	source, ok := input[inputSource]
	if !ok {
		return nil, fmt.Errorf("%w: %s: source is required", ErrInvalidInput, ToolJSONExtract)
	}

	doc, err := toJSON(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, ToolJSONExtract, err)
	}
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: %s: source is not valid JSON", ErrInvalidInput, ToolJSONExtract)
	}

	paths := GetMapString(input, inputPaths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s: paths are required", ErrInvalidInput, ToolJSONExtract)
	}

	out := make(map[string]any, len(paths))
	for key, path := range paths {
		res := gjson.GetBytes(doc, path)
		if !res.Exists() {
			out[key] = nil
			continue
		}
		out[key] = res.Value()
	}
	return out, nil
}

func toJSON(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return json.Marshal(v)
	}
}
