package devserver

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/config"
)

type mockLLM struct {
	requests []openai.ChatCompletionRequest
	resp     openai.ChatCompletionResponse
	err      error
}

func (m *mockLLM) CreateChatCompletion(_ context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return m.resp, nil
}

func answer(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestEcho(t *testing.T) {
	out, err := Echo{}.Reply(context.Background(), []api.Message{{Role: "user", Content: "ping"}})
	require.NoError(t, err)
	require.Equal(t, "You said: ping", out)

	_, err = Echo{}.Reply(context.Background(), nil)
	require.Error(t, err)
}

func TestLLM_MapsHistoryWithDefaultPrompt(t *testing.T) {
	m := &mockLLM{resp: answer("Paris.")}
	r := NewLLM(m, config.LLMConfig{Model: "test-model"})

	out, err := r.Reply(context.Background(), []api.Message{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello!"},
		{Role: "user", Content: "Capital of France?"},
	})
	require.NoError(t, err)
	require.Equal(t, "Paris.", out)

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	require.Equal(t, "test-model", req.Model)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: defaultSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		{Role: openai.ChatMessageRoleAssistant, Content: "Hello!"},
		{Role: openai.ChatMessageRoleUser, Content: "Capital of France?"},
	}, req.Messages)
}

func TestLLM_ConfiguredPromptOverridesDefault(t *testing.T) {
	m := &mockLLM{resp: answer("ok")}
	r := NewLLM(m, config.LLMConfig{SystemPrompt: "Be brief."})

	_, err := r.Reply(context.Background(), []api.Message{{Role: "user", Content: "Hi"}})
	require.NoError(t, err)
	require.Equal(t, "Be brief.", m.requests[0].Messages[0].Content)
}

func TestLLM_Errors(t *testing.T) {
	_, err := NewLLM(&mockLLM{err: errors.New("rate limited")}, config.LLMConfig{}).
		Reply(context.Background(), []api.Message{{Role: "user", Content: "Hi"}})
	require.ErrorContains(t, err, "rate limited")

	_, err = NewLLM(&mockLLM{}, config.LLMConfig{}).
		Reply(context.Background(), []api.Message{{Role: "user", Content: "Hi"}})
	require.ErrorContains(t, err, "no choices")
}

func TestNewResponder(t *testing.T) {
	r, err := NewResponder(config.DevServerConfig{}, config.LLMConfig{})
	require.NoError(t, err)
	require.IsType(t, Echo{}, r)

	r, err = NewResponder(config.DevServerConfig{Responder: "llm"}, config.LLMConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	require.IsType(t, &LLM{}, r)

	_, err = NewResponder(config.DevServerConfig{Responder: "oracle"}, config.LLMConfig{})
	require.ErrorContains(t, err, "unknown responder")
}
