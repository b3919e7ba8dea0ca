package tools

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ToolHTTP — имя HTTP инструмента.
	ToolHTTP = "http_request"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи input HTTP инструмента.
const (
	inputMethod          = "method"
	inputURL             = "url"
	inputHeaders         = "headers"
	inputBody            = "body"
	inputFollowRedirects = "follow_redirects"
	inputValidateSSL     = "validate_ssl"
	inputTimeoutSec      = "timeout_sec"
	inputFailOnStatus    = "fail_on_status"
)

// HTTPTool — инструмент HTTP запроса.
//
// Input:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Authorization": "Bearer ${vars.token}"},
//	    "body": {"items": "${fetch.result.items}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "fail_on_status": true
//	}
//
// Результат:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // JSON или строка
//	}
//
// При fail_on_status (по умолчанию true) ответ 4xx/5xx возвращается как HTTPError.
type HTTPTool struct{}

// NewHTTPTool создаёт HTTPTool.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{}
}

// Name возвращает имя инструмента.
func (h *HTTPTool) Name() string {
	return ToolHTTP
}

// Invoke выполняет HTTP запрос.
func (h *HTTPTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	cfg, err := h.parseInput(input)
	if err != nil {
		return nil, err
	}

	client := h.buildClient(cfg)

	req, err := h.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrToolCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	result, err := h.parseResponse(resp)
	if err != nil {
		return nil, err
	}

	if cfg.FailOnStatus && resp.StatusCode >= 400 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       fmt.Sprint(result["body"]),
		}
	}
	return result, nil
}

// httpInput — распарсенный input HTTP инструмента.
type httpInput struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
	FailOnStatus    bool
}

func (h *HTTPTool) parseInput(input map[string]any) (*httpInput, error) {
	cfg := &httpInput{
		Method:          GetString(input, inputMethod),
		URL:             GetString(input, inputURL),
		Headers:         GetMapString(input, inputHeaders),
		Body:            input[inputBody],
		FollowRedirects: GetBool(input, inputFollowRedirects, true),
		ValidateSSL:     GetBool(input, inputValidateSSL, true),
		TimeoutSec:      GetInt(input, inputTimeoutSec),
		FailOnStatus:    GetBool(input, inputFailOnStatus, true),
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidInput, ToolHTTP)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return cfg, nil
}

func (h *HTTPTool) buildClient(cfg *httpInput) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.ValidateSSL},
		},
	}
}

func (h *HTTPTool) buildRequest(ctx context.Context, cfg *httpInput) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.Headers["Content-Type"]; !ok {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func (h *HTTPTool) parseResponse(resp *http.Response) (map[string]any, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}

// HTTPError — ответ с кодом 4xx/5xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
