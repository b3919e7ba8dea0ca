package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
id: triage
name: Ticket triage
vars:
  threshold: 0.5
inputs:
  ticket:
    type: string
    required: true
defaults:
  max_retries: 1
tasks:
  - id: classify
    kind: model
    inputs:
      prompt: "Classify: ${input.ticket}"
    condition: 'result.score > vars.threshold'
    on_success: escalate
    on_failure: archive
  - id: escalate
    kind: tool
    tool: echo
    inputs:
      label: ${classify.result.label}
  - id: archive
    kind: tool
    tool: echo
`

func TestLoadDefinition_YAML(t *testing.T) {
	def, err := LoadDefinition(strings.NewReader(yamlDefinition), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "triage", def.ID)
	require.Len(t, def.Tasks, 3)
	assert.Equal(t, "escalate", def.Tasks[0].OnSuccess)
	assert.Equal(t, 1, def.Tasks[1].EffectiveMaxRetries(def.Defaults))
	assert.True(t, def.Inputs["ticket"].Required)
	assert.Equal(t, "${classify.result.label}", def.Tasks[1].Inputs["label"])

	err = Validate(def, Options{Tools: fakeTools{"echo": true}})
	assert.NoError(t, err)
}

func TestLoadDefinition_RejectsUnknownFields(t *testing.T) {
	_, err := LoadDefinition(strings.NewReader("id: x\ntasks: []\nretries: 3\n"), FormatYAML)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))

	_, err = LoadDefinition(strings.NewReader(`{"id":"x","tasks":[{"id":"a","kind":"tool","color":"red"}]}`), FormatJSON)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
}

func TestLoadDefinitionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","tasks":[{"id":"a","kind":"tool","tool":"echo"}]}`), 0o600))

	def, err := LoadDefinitionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", def.ID)
	assert.Equal(t, FormatJSON, FormatFromPath(path))
	assert.Equal(t, FormatYAML, FormatFromPath("wf.yml"))

	_, err = LoadDefinitionFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
