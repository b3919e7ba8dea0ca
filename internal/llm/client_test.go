package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/shaiso/agentflow/internal/domain"
	"github.com/shaiso/agentflow/internal/strategy"
)

type stubModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	err      error
}

func (s *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.messages = messages
	for _, o := range options {
		o(&s.opts)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "summary", StopReason: "stop"}},
	}, nil
}

func (s *stubModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func TestClient_Complete(t *testing.T) {
	model := &stubModel{}
	client := NewWithModel(model)

	res, err := client.Complete(context.Background(), map[string]any{
		"prompt":      "Summarize",
		"system":      "Be brief",
		"temperature": 0.2,
		"max_tokens":  64,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "summary", "stop_reason": "stop"}, res)
	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 0.2, model.opts.Temperature)
	assert.Equal(t, 64, model.opts.MaxTokens)
}

func TestClient_Errors(t *testing.T) {
	t.Run("Should classify missing key as resource", func(t *testing.T) {
		client, err := New(Config{Provider: ProviderOpenAI})
		require.NoError(t, err)

		out := strategy.NewModelStrategy(client).Execute(context.Background(),
			&domain.Task{ID: "m"}, map[string]any{"prompt": "hi"})
		require.False(t, out.Success)
		assert.Equal(t, domain.ErrorKindResource, out.Error.Kind)
	})
	t.Run("Should classify provider failure as execution", func(t *testing.T) {
		client := NewWithModel(&stubModel{err: errors.New("429 too many requests")})

		out := strategy.NewModelStrategy(client).Execute(context.Background(),
			&domain.Task{ID: "m"}, map[string]any{"prompt": "hi"})
		require.False(t, out.Success)
		assert.Equal(t, domain.ErrorKindExecution, out.Error.Kind)
		assert.Contains(t, out.Error.Message, "429")
	})
	t.Run("Should reject unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "carrier-pigeon"})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestEchoModel(t *testing.T) {
	client, err := New(Config{Provider: ProviderMock})
	require.NoError(t, err)

	res, err := client.Complete(context.Background(), map[string]any{"prompt": "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", res.(map[string]any)["text"])
}
