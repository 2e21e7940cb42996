package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/vectorstore"
	"technews/internal/vectorstore/storagetest"
)

func TestStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) vectorstore.Storage {
		s, err := Open(Config{Dir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir, Collection: "tech_updates"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, dbFile), s.Path())
	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Add(ctx, storagetest.Fixture()))
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Dir: dir, Collection: "tech_updates"})
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, reopened.Init(ctx, 8), vectorstore.ErrDimensionMismatch)

	matches, err := reopened.Query(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rust", matches[0].Document.Title)
}

func TestStorage_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := Open(Config{Dir: dir, Collection: "a"})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Init(ctx, 3))
	require.NoError(t, a.Add(ctx, storagetest.Fixture()))

	b, err := Open(Config{Dir: dir, Collection: "b"})
	require.NoError(t, err)
	defer b.Close()
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}

func TestInMemory(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(context.Background(), 3))
	require.NoError(t, s.Add(context.Background(), storagetest.Fixture()))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
