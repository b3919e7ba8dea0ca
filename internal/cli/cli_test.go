package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/app"
	"github.com/shaiso/agentflow/internal/config"
	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/orchestrator"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	appFn  AppFunc
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	json   bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.FromViper(config.New())
	require.NoError(t, err)
	cfg.LLM.Provider = "mock"

	env := &testEnv{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	env.appFn = func(ctx context.Context) (*app.App, error) {
		return app.New(ctx, cfg, quietLogger, app.Options{
			Handlers: domain.HandlerSet{
				"boom": domain.InputOnlyHandler(func(context.Context, map[string]any) (any, error) {
					return nil, errors.New("boom")
				}),
			},
		})
	}
	return env
}

func (e *testEnv) output() *Output {
	return NewOutputTo(e.json, e.stdout, e.stderr)
}

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const echoFlow = `
id: echo-flow
tasks:
  - id: a
    kind: tool
    tool: echo
    inputs:
      v: "${input.name}"
  - id: b
    kind: tool
    tool: echo
    depends_on: [a]
    inputs:
      prev: "${a.v}"
inputs:
  name:
    type: string
    required: true
`

const askFlow = `
id: ask-flow
tasks:
  - id: ask
    kind: inline
    handler: ask
    inputs:
      question: Which region?
  - id: deploy
    kind: tool
    tool: echo
    depends_on: [ask]
    inputs:
      region: "${ask.answer}"
`

func decodeReport(t *testing.T, data []byte) orchestrator.Report {
	t.Helper()
	var r orchestrator.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func taskState(r orchestrator.Report, id string) domain.TaskState {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t
		}
	}
	return domain.TaskState{}
}

func TestRunCmd_Success(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path, "--input", "name=alice")
	require.NoError(t, err)

	out := env.stdout.String()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "alice")
}

func TestRunCmd_JSONReport(t *testing.T) {
	env := newTestEnv(t)
	env.json = true
	path := writeFile(t, "flow.yaml", echoFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path, "--input", "name=bob")
	require.NoError(t, err)

	r := decodeReport(t, env.stdout.Bytes())
	assert.Equal(t, domain.WorkflowStatusCompleted, r.Status)
	assert.Equal(t, orchestrator.ExitSuccess, r.ExitCode)
	assert.Equal(t, map[string]any{"prev": "bob"}, taskState(r, "b").Output.Result)
}

func TestRunCmd_MissingInputExitCode(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path)
	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitInput, ExitCode(err))
}

func TestRunCmd_InvalidDefinitionExitCode(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", `
id: broken
tasks:
  - id: a
    kind: tool
    tool: no_such_tool
`)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path)
	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitValidation, ExitCode(err))
	assert.Contains(t, env.stderr.String(), "no_such_tool")
}

func TestRunCmd_UnreadableDefinition(t *testing.T) {
	env := newTestEnv(t)

	err := execute(NewRunCmd(env.appFn, env.output, nil), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, orchestrator.ExitValidation, ExitCode(err))
}

func TestRunCmd_ExecutionFailureExitCode(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", `
id: failing
tasks:
  - id: a
    kind: inline
    handler: boom
`)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path)
	require.Error(t, err)
	assert.Equal(t, orchestrator.ExitExecution, ExitCode(err))
	assert.Contains(t, env.stdout.String(), "boom")
}

func TestRunCmd_PausedWithoutAnswer(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", askFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path)
	require.NoError(t, err)

	out := env.stdout.String()
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "Awaiting input:")
	assert.Contains(t, out, "ask: Which region?")
}

func TestRunCmd_AnswerResumes(t *testing.T) {
	env := newTestEnv(t)
	env.json = true
	path := writeFile(t, "flow.yaml", askFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path, "--answer", "ask=eu-west")
	require.NoError(t, err)

	r := decodeReport(t, env.stdout.Bytes())
	assert.Equal(t, domain.WorkflowStatusCompleted, r.Status)
	assert.Equal(t, map[string]any{"region": "eu-west"}, taskState(r, "deploy").Output.Result)
}

func TestRunCmd_Interactive(t *testing.T) {
	env := newTestEnv(t)
	env.json = true
	path := writeFile(t, "flow.yaml", askFlow)

	err := execute(NewRunCmd(env.appFn, env.output, strings.NewReader("us-east\n")), path, "-i")
	require.NoError(t, err)

	r := decodeReport(t, env.stdout.Bytes())
	assert.Equal(t, domain.WorkflowStatusCompleted, r.Status)
	assert.Equal(t, map[string]any{"region": "us-east"}, taskState(r, "deploy").Output.Result)
	assert.Contains(t, env.stderr.String(), "Which region?")
}

func TestRunCmd_BadInputFlag(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path, "--input", "novalue")
	assert.Equal(t, orchestrator.ExitInput, ExitCode(err))
}

func TestRunCmd_InputFile(t *testing.T) {
	env := newTestEnv(t)
	env.json = true
	path := writeFile(t, "flow.yaml", echoFlow)
	inputs := writeFile(t, "input.json", `{"name": "from-file"}`)

	err := execute(NewRunCmd(env.appFn, env.output, nil), path, "--input-file", inputs)
	require.NoError(t, err)

	r := decodeReport(t, env.stdout.Bytes())
	assert.Equal(t, map[string]any{"v": "from-file"}, taskState(r, "a").Output.Result)
}

func TestValidateCmd(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	require.NoError(t, execute(NewValidateCmd(env.appFn, env.output), path))
	assert.Contains(t, env.stderr.String(), "echo-flow is valid (2 tasks)")
}

func TestValidateCmd_Invalid(t *testing.T) {
	env := newTestEnv(t)
	env.json = true
	path := writeFile(t, "flow.yaml", `
id: cyclic
tasks:
  - id: a
    kind: tool
    tool: echo
    depends_on: [b]
  - id: b
    kind: tool
    tool: echo
    depends_on: [a]
`)

	err := execute(NewValidateCmd(env.appFn, env.output), path)
	assert.Equal(t, orchestrator.ExitValidation, ExitCode(err))

	var resp struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Errors)
}

func TestGraphCmd(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	require.NoError(t, execute(NewGraphCmd(env.output), path))
	out := env.stdout.String()
	assert.True(t, strings.HasPrefix(out, "digraph"))
	assert.Contains(t, out, `"a" -> "b"`)
}

func TestGraphCmd_JSONToFile(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)
	target := filepath.Join(t.TempDir(), "graph.json")

	require.NoError(t, execute(NewGraphCmd(env.output), path, "--format", "json", "-o", target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var g struct {
		ID    string           `json:"id"`
		Nodes []map[string]any `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Equal(t, "echo-flow", g.ID)
	assert.Len(t, g.Nodes, 2)
}

func TestGraphCmd_UnknownFormat(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	assert.Error(t, execute(NewGraphCmd(env.output), path, "--format", "png"))
}

func TestHistoryCmd_NotConfigured(t *testing.T) {
	env := newTestEnv(t)

	err := execute(NewHistoryCmd(env.appFn, env.output))
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestEventsCmd_NotConfigured(t *testing.T) {
	env := newTestEnv(t)

	err := execute(NewEventsCmd(env.appFn, env.output))
	assert.ErrorIs(t, err, ErrNoBroker)
}

func TestScheduleCmd_MaxRuns(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	err := execute(NewScheduleCmd(env.appFn, env.output), path,
		"--every", "1s", "--max-runs", "1", "--input", "name=cron")
	require.NoError(t, err)

	assert.Contains(t, env.stderr.String(), "Scheduled flow.yaml")
	assert.Contains(t, env.stdout.String(), "completed")
}

func TestScheduleCmd_RequiresOneTrigger(t *testing.T) {
	env := newTestEnv(t)
	path := writeFile(t, "flow.yaml", echoFlow)

	assert.Error(t, execute(NewScheduleCmd(env.appFn, env.output), path))
	assert.Error(t, execute(NewScheduleCmd(env.appFn, env.output), path, "--every", "1m", "--cron", "* * * * *"))
}

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"ask=yes", "form.count=3", `form.tags=["a","b"]`})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{
		"ask":  {"answer": "yes"},
		"form": {"count": float64(3), "tags": []any{"a", "b"}},
	}, got)

	_, err = parseAnswers([]string{"=x"})
	assert.Error(t, err)
	_, err = parseAnswers([]string{"noequals"})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(&ExitError{Code: 3}))
	assert.Equal(t, 4, ExitCode(errors.Join(errors.New("x"), &ExitError{Code: 4})))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
}
