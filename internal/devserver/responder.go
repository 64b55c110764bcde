package devserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/config"
	"github.com/comigor/fastbot-go/internal/llm"
	"github.com/comigor/fastbot-go/internal/logger"
)

// Responder produces the assistant reply for a chat. history ends with the
// user message being answered.
type Responder interface {
	Reply(ctx context.Context, history []api.Message) (string, error)
}

// Echo answers every message with its own content. Useful when no model is
// available and in tests.
type Echo struct{}

func (Echo) Reply(_ context.Context, history []api.Message) (string, error) {
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	return "You said: " + history[len(history)-1].Content, nil
}

const defaultSystemPrompt = "You are a helpful AI assistant. Please respond to the user's request accurately and concisely."

// LLM answers with an OpenAI-compatible chat completion over the whole
// chat history.
type LLM struct {
	client llm.Client
	cfg    config.LLMConfig
}

// NewLLM creates an LLM responder.
func NewLLM(client llm.Client, cfg config.LLMConfig) *LLM {
	return &LLM{client: client, cfg: cfg}
}

func (l *LLM) Reply(ctx context.Context, history []api.Message) (string, error) {
	prompt := defaultSystemPrompt
	if l.cfg.SystemPrompt != "" {
		prompt = l.cfg.SystemPrompt
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	for _, m := range history {
		role := openai.ChatMessageRoleAssistant
		if m.Role == "user" {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    l.cfg.Model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	logger.L.Debug("LLM response received", "model", resp.Model, "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// NewResponder builds the responder named by cfg.Responder.
func NewResponder(cfg config.DevServerConfig, llmCfg config.LLMConfig) (Responder, error) {
	switch cfg.Responder {
	case "", "echo":
		return Echo{}, nil
	case "llm":
		return NewLLM(llm.NewClient(llmCfg), llmCfg), nil
	default:
		return nil, fmt.Errorf("unknown responder %q, supported are 'echo' and 'llm'", cfg.Responder)
	}
}
