package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/embedding/hashing"
)

type countingEmbedder struct {
	domain.Embedder
	calls [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, texts)
	return c.Embedder.Embed(ctx, texts)
}

func TestNew(t *testing.T) {
	t.Run("hashing", func(t *testing.T) {
		e, err := New(config.EmbedderConfig{Type: "hashing", Hashing: &config.HashingEmbedderConfig{Dimension: 64}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "hashing", e.Name())
		assert.Equal(t, 64, e.Dimension())
	})

	t.Run("cache wrapper", func(t *testing.T) {
		e, err := New(config.EmbedderConfig{Type: "hashing", CacheTTLSecs: 60}, nil)
		require.NoError(t, err)
		assert.IsType(t, &Cached{}, e)
	})

	t.Run("unknown type is a config error", func(t *testing.T) {
		_, err := New(config.EmbedderConfig{Type: "word2vec"}, nil)
		require.Error(t, err)
		assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	})

	t.Run("openai without key is a config error", func(t *testing.T) {
		t.Setenv("TECHNEWS_TEST_MISSING_KEY", "")
		_, err := New(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "TECHNEWS_TEST_MISSING_KEY"}}, nil)
		require.Error(t, err)
		assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	})
}

func TestCached_OnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{Embedder: hashing.New(32)}
	c := NewCached(inner, time.Minute)

	first, err := c.Embed(context.Background(), []string{"golang release", "rust compiler"})
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), []string{"rust compiler", "zig build"})
	require.NoError(t, err)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"zig build"}, inner.calls[1])
	assert.Equal(t, first[1], second[0])

	_, err = c.Embed(context.Background(), []string{"zig build", "golang release"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}
