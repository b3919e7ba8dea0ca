package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/strategy"
	"github.com/shaiso/agentflow/internal/tools"
)

// Ошибки клиента модели.
var (
	// ErrMissingAPIKey — для провайдера не задан ключ.
	ErrMissingAPIKey = errors.New("model API key is not configured")

	// ErrUnknownProvider — неизвестный провайдер.
	ErrUnknownProvider = errors.New("unknown model provider")

	// ErrEmptyResponse — модель не вернула ни одного варианта.
	ErrEmptyResponse = errors.New("model returned no choices")
)

// Провайдеры.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config — настройки модели.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Client адаптирует llms.Model к strategy.ModelClient.
//
// Поддерживаемые поля input: prompt (обязательно), system,
// temperature, max_tokens. Результат — запись {text, stop_reason}.
type Client struct {
	model llms.Model

	// keyErr — ошибка конфигурации, которая проявляется только при вызове.
	keyErr error
}

// New создаёт клиент по конфигурации.
//
// Отсутствие ключа не мешает созданию клиента: model tasks упадут
// с resource ошибкой, а остальные tasks выполнятся.
func New(cfg Config) (*Client, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		if cfg.APIKey == "" {
			return &Client{keyErr: ErrMissingAPIKey}, nil
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return NewWithModel(model), nil

	case ProviderMock:
		return NewWithModel(NewEchoModel()), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NewWithModel оборачивает готовую модель.
func NewWithModel(model llms.Model) *Client {
	return &Client{model: model}
}

// Complete реализует strategy.ModelClient.
func (c *Client) Complete(ctx context.Context, input map[string]any) (any, error) {
	if c.keyErr != nil {
		return nil, strategy.WithKind(domain.ErrorKindResource, c.keyErr)
	}

	prompt := tools.GetString(input, "prompt")
	if prompt == "" {
		return nil, strategy.WithKind(domain.ErrorKindValidation, strategy.ErrMissingPrompt)
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system := tools.GetString(input, "system"); system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := c.model.GenerateContent(ctx, messages, callOptions(input)...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return map[string]any{
		"text":        choice.Content,
		"stop_reason": choice.StopReason,
	}, nil
}

func callOptions(input map[string]any) []llms.CallOption {
	var opts []llms.CallOption
	switch t := input["temperature"].(type) {
	case float64:
		opts = append(opts, llms.WithTemperature(t))
	case int:
		opts = append(opts, llms.WithTemperature(float64(t)))
	}
	if n := tools.GetInt(input, "max_tokens"); n > 0 {
		opts = append(opts, llms.WithMaxTokens(n))
	}
	return opts
}

// EchoModel — детерминированная модель для локальных запусков и тестов.
// Возвращает последний пользовательский текст.
type EchoModel struct{}

// NewEchoModel создаёт EchoModel.
func NewEchoModel() *EchoModel { return &EchoModel{} }

// GenerateContent реализует llms.Model.
func (m *EchoModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var last string
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		var parts []string
		for _, p := range msg.Parts {
			if text, ok := p.(llms.TextContent); ok {
				parts = append(parts, text.Text)
			}
		}
		last = strings.Join(parts, " ")
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: last, StopReason: "stop"}},
	}, nil
}

// Call реализует llms.Model.
func (m *EchoModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}
