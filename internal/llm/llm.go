// Package llm is the chat-completion port used to generate answers.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"technews/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Params tunes one completion. Zero values leave the provider default.
type Params struct {
	Temperature float32
	MaxTokens   int
}

type Client interface {
	Generate(ctx context.Context, messages []Message, params Params) (string, error)
}

// NewClient builds the configured client. A missing API key is an error.
func NewClient(cfg config.LLMConfig) (Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	return NewOpenAIClient(Options{
		APIKey:  key,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
	}), nil
}

type unavailable struct{ err error }

// Unavailable returns a client whose every call fails with err. It lets a
// session start without credentials and report the problem per answer.
func Unavailable(err error) Client { return unavailable{err: err} }

func (u unavailable) Generate(context.Context, []Message, Params) (string, error) {
	return "", u.err
}
