package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/agentflow/internal/orchestrator"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunSummary — краткое описание запуска из API.
type RunSummary struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// HistoryEntry — строка архива из API.
type HistoryEntry struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	SavedAt    string `json:"saved_at"`
}

// ValidateResult — результат проверки определения.
type ValidateResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// --- Request types ---

type definitionRequest struct {
	Definition     json.RawMessage `json:"definition,omitempty"`
	DefinitionYAML string          `json:"definition_yaml,omitempty"`
}

type createRunRequest struct {
	definitionRequest
	Input map[string]any `json:"input,omitempty"`
	Async bool           `json:"async,omitempty"`
}

type resumeRequest struct {
	TaskID string         `json:"task_id"`
	Input  map[string]any `json:"input"`
}

// HistoryOpts — параметры фильтрации архива.
type HistoryOpts struct {
	WorkflowID string
	Status     string
	Limit      int
	Offset     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая сервером.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

// --- Client ---

// Client — HTTP-клиент для agentflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// Таймаут покрывает синхронные запуски, поэтому он больше обычного.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Validate проверяет определение на сервере.
func (c *Client) Validate(ctx context.Context, path string) (*ValidateResult, error) {
	body, err := readDefinition(path)
	if err != nil {
		return nil, err
	}
	var result ValidateResult
	err = c.post(ctx, "/api/v1/validate", body, &result)
	return &result, err
}

// StartRun запускает workflow синхронно и возвращает отчёт.
func (c *Client) StartRun(ctx context.Context, path string, input map[string]any) (*orchestrator.Report, error) {
	def, err := readDefinition(path)
	if err != nil {
		return nil, err
	}
	var report orchestrator.Report
	err = c.post(ctx, "/api/v1/runs", createRunRequest{definitionRequest: *def, Input: input}, &report)
	return &report, err
}

// SubmitRun запускает workflow в фоне.
func (c *Client) SubmitRun(ctx context.Context, path string, input map[string]any) (*RunSummary, error) {
	def, err := readDefinition(path)
	if err != nil {
		return nil, err
	}
	var run RunSummary
	err = c.post(ctx, "/api/v1/runs", createRunRequest{definitionRequest: *def, Input: input, Async: true}, &run)
	return &run, err
}

// ListRuns возвращает запуски сервера.
func (c *Client) ListRuns(ctx context.Context, status string) ([]RunSummary, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	var runs []RunSummary
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает отчёт о запуске.
func (c *Client) GetRun(ctx context.Context, id string) (*orchestrator.Report, error) {
	var report orchestrator.Report
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &report)
	return &report, err
}

// ResumeRun передаёт ответ task, ожидающему ввода.
func (c *Client) ResumeRun(ctx context.Context, id, taskID string, input map[string]any) (*orchestrator.Report, error) {
	var report orchestrator.Report
	err := c.post(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/resume", resumeRequest{TaskID: taskID, Input: input}, &report)
	return &report, err
}

// RunGraph возвращает граф запуска в формате dot (как есть) или json.
func (c *Client) RunGraph(ctx context.Context, id, format string) ([]byte, error) {
	path := "/api/v1/runs/" + url.PathEscape(id) + "/graph?format=" + url.QueryEscape(format)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var dr dataResponse
		if err := json.Unmarshal(data, &dr); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return dr.Data, nil
	}
	return data, nil
}

// ListHistory возвращает архив отчётов.
func (c *Client) ListHistory(ctx context.Context, opts HistoryOpts) ([]HistoryEntry, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var items []HistoryEntry
	err := c.list(ctx, "/api/v1/history", params, &items)
	return items, err
}

// readDefinition читает файл определения в тело запроса.
// JSON передаётся как объект, остальное — как YAML.
func readDefinition(path string) (*definitionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &definitionRequest{Definition: data}, nil
	}
	return &definitionRequest{DefinitionYAML: string(data)}, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		Details: er.Error.Details,
	}
}
