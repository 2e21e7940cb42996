// Package storagetest holds behavior checks shared by every
// vectorstore.Storage implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/domain"
	"technews/internal/vectorstore"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func record(title, source string, age time.Duration, vec ...float32) vectorstore.Record {
	d := domain.Document{
		Title:     title,
		Content:   title + " content",
		URL:       "https://example.com/" + title,
		Source:    source,
		Timestamp: base.Add(-age),
		Summary:   title + " summary",
	}
	return vectorstore.Record{ID: d.ID(), Document: d, Vector: vec}
}

// Fixture returns three 3-dimensional records from two sources, newest
// first: go (hackernews), rust (reddit), zig (hackernews).
func Fixture() []vectorstore.Record {
	return []vectorstore.Record{
		record("go", "hackernews", 0, 1, 0, 0),
		record("rust", "reddit", time.Hour, 0, 1, 0),
		record("zig", "hackernews", 48*time.Hour, 0.7, 0.7, 0),
	}
}

// Run exercises s, which must be empty.
func Run(t *testing.T, open func(t *testing.T) vectorstore.Storage) {
	ctx := context.Background()

	t.Run("empty storage", func(t *testing.T) {
		s := open(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		matches, err := s.Query(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, matches)
		list, err := s.List(ctx, vectorstore.Filter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("add and query", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Add(ctx, Fixture()))

		matches, err := s.Query(ctx, []float32{1, 0.1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "go", matches[0].Document.Title)
		assert.Equal(t, "zig", matches[1].Document.Title)
		assert.Equal(t, "rust", matches[2].Document.Title)
		for i := 1; i < len(matches); i++ {
			assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
		}
		assert.InDelta(t, 0.005, matches[0].Distance, 0.01)

		top, err := s.Query(ctx, []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "rust", top[0].Document.Title)
		assert.Equal(t, Fixture()[1].ID, top[0].ID)
		assert.True(t, Fixture()[1].Document.Timestamp.Equal(top[0].Document.Timestamp))
	})

	t.Run("add keeps existing ids", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Add(ctx, Fixture()))
		require.NoError(t, s.Add(ctx, Fixture()[:2]))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		exists, err := s.Exists(ctx, []string{Fixture()[0].ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{Fixture()[0].ID: true}, exists)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 3))
		err := s.Add(ctx, []vectorstore.Record{record("bad", "x", 0, 1, 0)})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("list filters and orders", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Add(ctx, Fixture()))

		all, err := s.List(ctx, vectorstore.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "rust", "zig"}, titles(all))

		hn, err := s.List(ctx, vectorstore.Filter{Source: "hackernews"})
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "zig"}, titles(hn))

		limited, err := s.List(ctx, vectorstore.Filter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "rust"}, titles(limited))

		old, err := s.List(ctx, vectorstore.Filter{Before: base.Add(-24 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, []string{"zig"}, titles(old))
	})

	t.Run("delete and reset", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Add(ctx, Fixture()))

		require.NoError(t, s.Delete(ctx, []string{Fixture()[1].ID}))
		all, err := s.List(ctx, vectorstore.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "zig"}, titles(all))

		require.NoError(t, s.Reset(ctx))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		// a reset collection accepts a new dimension
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Add(ctx, []vectorstore.Record{record("small", "x", 0, 1, 0)}))
	})
}

func titles(records []vectorstore.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Document.Title
	}
	return out
}
