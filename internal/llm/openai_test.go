package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/config"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Go 1.23 is out."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Options{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"})
	out, err := c.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "what's new?"},
	}, Params{Temperature: 0.7, MaxTokens: 1000})

	require.NoError(t, err)
	assert.Equal(t, "Go 1.23 is out.", out)
	assert.Equal(t, "gpt-test", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "what's new?", got.Messages[1].Content)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), nil, Params{})
	require.Error(t, err)
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), nil, Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("TECHNEWS_LLM_KEY", "")
	_, err := NewClient(config.LLMConfig{APIKeyEnv: "TECHNEWS_LLM_KEY"})
	require.Error(t, err)

	t.Setenv("TECHNEWS_LLM_KEY", "sk-x")
	c, err := NewClient(config.LLMConfig{APIKeyEnv: "TECHNEWS_LLM_KEY", Model: "gpt-3.5-turbo"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
