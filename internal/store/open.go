package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/embedding"
	"technews/internal/vectorstore"
	"technews/internal/vectorstore/memory"
	"technews/internal/vectorstore/pgvector"
	"technews/internal/vectorstore/qdrant"
	"technews/internal/vectorstore/sqlite"
)

// Open builds the embedder and storage named by cfg and wires them into a
// Store. Errors here are configuration errors.
func Open(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*Store, error) {
	embedder, err := embedding.New(cfg.Embedder, logger)
	if err != nil {
		return nil, err
	}
	storage, err := OpenStorage(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"backend":    cfg.VectorStore.Type,
			"collection": cfg.VectorStore.Collection,
			"embedder":   embedder.Name(),
		}).Debug("store opened")
	}
	return New(storage, embedder, cfg.VectorStore.Collection, logger), nil
}

// OpenStorage connects the configured vector storage backend.
func OpenStorage(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	var (
		s   vectorstore.Storage
		err error
	)
	switch cfg.Type {
	case "memory":
		s = memory.NewStorage()
	case "sqlite":
		dir := "./data"
		if cfg.SQLite != nil {
			dir = cfg.SQLite.Dir
		}
		s, err = sqlite.Open(sqlite.Config{Dir: dir, Collection: cfg.Collection})
	case "qdrant":
		if cfg.Qdrant == nil {
			err = fmt.Errorf("qdrant settings are missing")
			break
		}
		s = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		})
	case "pgvector":
		if cfg.PGVector == nil {
			err = fmt.Errorf("pgvector settings are missing")
			break
		}
		s, err = pgvector.Open(ctx, pgvector.Config{DSN: cfg.PGVector.DSN, Collection: cfg.Collection})
	default:
		err = fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfig, Op: "vector store", Err: err}
	}
	return s, nil
}
