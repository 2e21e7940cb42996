// Package embedding builds the configured text embedder.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/embedding/hashing"
	"technews/internal/embedding/ollama"
	"technews/internal/embedding/openai"
)

// New returns the embedder selected by cfg.Type, wrapped in a vector cache
// when cfg.CacheTTLSecs is positive.
func New(cfg config.EmbedderConfig, logger *logrus.Logger) (domain.Embedder, error) {
	var (
		e   domain.Embedder
		err error
	)
	switch cfg.Type {
	case "openai":
		c := cfg.OpenAI
		if c == nil {
			c = &config.OpenAIEmbedderConfig{APIKeyEnv: "OPENAI_API_KEY"}
		}
		e, err = openai.New(openai.Config{BaseURL: c.BaseURL, APIKeyEnv: c.APIKeyEnv, Model: c.Model, Dimension: c.Dimension})
	case "ollama":
		c := cfg.Ollama
		if c == nil {
			c = &config.OllamaEmbedderConfig{}
		}
		e = ollama.New(ollama.Config{
			BaseURL:   c.BaseURL,
			APIKeyEnv: c.APIKeyEnv,
			Model:     c.Model,
			Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
		})
	case "hashing":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		e = hashing.New(dim)
	default:
		err = fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfig, Op: "embedder", Err: err}
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{"embedder": e.Name(), "dimension": e.Dimension()}).Debug("embedder ready")
	}
	if cfg.CacheTTLSecs > 0 {
		e = NewCached(e, time.Duration(cfg.CacheTTLSecs)*time.Second)
	}
	return e, nil
}

// Cached remembers vectors by text so repeated queries skip the backend.
type Cached struct {
	inner domain.Embedder
	cache *cache.Cache
}

// NewCached wraps inner with an in-memory cache whose entries expire after ttl.
func NewCached(inner domain.Embedder, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed serves cached vectors and sends only the misses to the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, cache.DefaultExpiration)
	}
	return out, nil
}
