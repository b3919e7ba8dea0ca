package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/orchestrator"
	"github.com/shaiso/agentflow/internal/runs"
	"github.com/shaiso/agentflow/internal/strategy"
	"github.com/shaiso/agentflow/internal/tools"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := tools.NewRegistry()
	reg.Register(tools.NewEchoTool())

	manager := runs.New(runs.Config{
		Runner: orchestrator.New(orchestrator.Config{
			Strategies: strategy.NewRegistry(nil, reg, quietLogger),
			Logger:     quietLogger,
		}),
		Tools:       reg,
		StrictTools: true,
		Handlers: domain.HandlerSet{
			"ask": domain.InputOnlyHandler(func(_ context.Context, in map[string]any) (any, error) {
				if answer, ok := in["answer"]; ok {
					return answer, nil
				}
				return map[string]any{"status": "needs_input", "question": "Which region?"}, nil
			}),
		},
		Logger: quietLogger,
	})

	mux := http.NewServeMux()
	NewHandler(Config{Runs: manager, Logger: quietLogger}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

const echoRun = `{
	"definition": {
		"id": "echo",
		"tasks": [
			{"id": "a", "kind": "tool", "tool": "echo", "inputs": {"v": 1}},
			{"id": "b", "kind": "tool", "tool": "echo", "depends_on": ["a"], "inputs": {"prev": "${a.v}"}}
		]
	}
}`

func TestCreateRun(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", echoRun)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, float64(0), data["exit_code"])
	runID := data["run_id"].(string)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+runID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["data"].(map[string]any)["status"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/runs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
}

func TestCreateRun_YAMLDefinition(t *testing.T) {
	srv := newServer(t)

	payload, err := json.Marshal(map[string]any{
		"definition_yaml": "id: y\ntasks:\n  - id: a\n    kind: tool\n    tool: echo\n",
	})
	require.NoError(t, err)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", string(payload))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "completed", body["data"].(map[string]any)["status"])
}

func TestCreateRun_InvalidDefinition(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs",
		`{"definition": {"id": "x", "tasks": [{"id": "a", "kind": "tool", "tool": "nope"}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	detail := body["error"].(map[string]any)
	assert.Equal(t, string(ErrCodeInvalidWorkflow), detail["code"])
	assert.NotEmpty(t, detail["details"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/runs", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResumeRun(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", `{
		"definition": {
			"id": "clarify",
			"tasks": [
				{"id": "ask", "kind": "inline", "handler": "ask"},
				{"id": "deploy", "kind": "tool", "tool": "echo", "depends_on": ["ask"], "inputs": {"region": "${ask}"}}
			]
		}
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "paused", data["status"])
	assert.Equal(t, "Which region?", data["questions"].(map[string]any)["ask"])
	runID := data["run_id"].(string)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/runs/"+runID+"/resume", `{"task_id": "deploy"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/runs/"+runID+"/resume", `{"input": {}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/runs/"+runID+"/resume",
		`{"task_id": "ask", "input": {"answer": "eu-west"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["data"].(map[string]any)["status"])
}

func TestGetRun_NotFound(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/runs/1b4e28ba-2fa1-11d2-883f-0016d3cca427", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunGraph(t *testing.T) {
	srv := newServer(t)

	_, body := do(t, http.MethodPost, srv.URL+"/api/v1/runs", echoRun)
	runID := body["data"].(map[string]any)["run_id"].(string)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+runID+"/graph", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g := body["data"].(map[string]any)
	assert.Len(t, g["nodes"], 2)
	assert.Len(t, g["edges"], 1)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/runs/"+runID+"/graph?format=dot", nil)
	require.NoError(t, err)
	dotResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dotResp.Body.Close()
	dot, err := io.ReadAll(dotResp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dotResp.StatusCode)
	assert.Contains(t, string(dot), "digraph")

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/runs/"+runID+"/graph?format=png", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidate(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/validate", echoRun)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["data"].(map[string]any)["valid"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/validate",
		`{"definition": {"id": "c", "tasks": [
			{"id": "a", "kind": "tool", "tool": "echo", "depends_on": ["b"]},
			{"id": "b", "kind": "tool", "tool": "echo", "depends_on": ["a"]}
		]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["valid"])
	assert.NotEmpty(t, data["errors"])
}

func TestListHistory_NotConfigured(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/history", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, string(ErrCodeNotConfigured), body["error"].(map[string]any)["code"])
}

func TestRecovery(t *testing.T) {
	h := Chain(RequestID(quietLogger), Recovery())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRequestID_Propagated(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(HeaderRequestID))
}
