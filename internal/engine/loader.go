package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/agentflow/internal/domain"
)

// Форматы файлов определения.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// LoadDefinitionFile читает определение workflow с диска.
// Формат определяется по расширению (.json, иначе YAML).
func LoadDefinitionFile(path string) (*domain.WorkflowDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definition %s: %w", path, err)
	}
	defer f.Close()

	def, err := LoadDefinition(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", path, err)
	}
	return def, nil
}

// FormatFromPath возвращает формат по расширению файла.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// LoadDefinition разбирает определение. Неизвестные поля — ошибка.
func LoadDefinition(r io.Reader, format string) (*domain.WorkflowDef, error) {
	var def domain.WorkflowDef

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidDefinition, err)
		}
	case FormatYAML, "yml", "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidDefinition, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidDefinition, format)
	}

	return &def, nil
}
