package llm

import (
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/fastbot-go/internal/config"
)

// NewClient creates an OpenAI-compatible client. An empty base URL keeps the
// library default.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
