package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseInputs разбирает пары KEY=VALUE.
// Значение, похожее на JSON (число, bool, объект, массив), декодируется.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		out[key] = parseValue(value)
	}
	return out, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseAnswers разбирает ответы TASK=VALUE или TASK.KEY=VALUE.
// Без KEY значение передаётся как answer.
func parseAnswers(pairs []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	for _, kv := range pairs {
		target, value, ok := strings.Cut(kv, "=")
		if !ok || target == "" {
			return nil, fmt.Errorf("invalid answer format %q, expected TASK=VALUE", kv)
		}
		taskID, key, hasKey := strings.Cut(target, ".")
		if !hasKey {
			key = "answer"
		}
		if taskID == "" || key == "" {
			return nil, fmt.Errorf("invalid answer target %q", target)
		}
		if out[taskID] == nil {
			out[taskID] = make(map[string]any)
		}
		out[taskID][key] = parseValue(value)
	}
	return out, nil
}

// loadInputFile читает входные данные из JSON или YAML файла.
func loadInputFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse input file %s: %w", path, err)
	}
	return out, nil
}

// mergeInputs накладывает значения из флагов на значения из файла.
func mergeInputs(base, over map[string]any) map[string]any {
	if base == nil {
		return over
	}
	for k, v := range over {
		base[k] = v
	}
	return base
}
