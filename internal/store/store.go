// Package store keeps normalized documents in a vector index and answers
// similarity queries over them. Every failure is logged and absorbed: reads
// return empty or zeroed results and writes report nothing added.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"technews/internal/domain"
	"technews/internal/vectorstore"
)

// InsertReport is the outcome of one Insert call. Err is set when the
// batch could not be indexed.
type InsertReport struct {
	Added   int
	Skipped int
	Err     error
}

// Store combines an embedder with a vector storage backend.
type Store struct {
	storage    vectorstore.Storage
	embedder   domain.Embedder
	collection string
	logger     *logrus.Logger
	now        func() time.Time
	dimension  int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for age-based deletion.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wires a store. The storage is initialized lazily, once the first
// vector reveals the embedding dimension.
func New(storage vectorstore.Storage, embedder domain.Embedder, collection string, logger *logrus.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Store{
		storage:    storage,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection names the index.
func (s *Store) Collection() string { return s.collection }

// Insert indexes the documents that are not present yet. Documents with an
// identifier already in the index, or repeated within docs, are skipped.
func (s *Store) Insert(ctx context.Context, docs []domain.Document) InsertReport {
	if len(docs) == 0 {
		return InsertReport{}
	}
	ids := make([]string, 0, len(docs))
	fresh := make([]vectorstore.Record, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		id := d.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		fresh = append(fresh, vectorstore.Record{ID: id, Document: d})
	}

	existing, err := s.storage.Exists(ctx, ids)
	if err != nil {
		return s.insertFailed("check existing", err, len(docs))
	}
	pending := fresh[:0]
	for _, r := range fresh {
		if !existing[r.ID] {
			pending = append(pending, r)
		}
	}
	report := InsertReport{Skipped: len(docs) - len(pending)}
	if len(pending) == 0 {
		s.logger.WithFields(logrus.Fields{"skipped": report.Skipped}).Debug("nothing new to index")
		return report
	}

	texts := make([]string, len(pending))
	for i, r := range pending {
		texts[i] = r.Document.IndexText()
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return s.insertFailed("embed documents", err, len(docs))
	}
	if len(vecs) != len(pending) {
		return s.insertFailed("embed documents", fmt.Errorf("got %d vectors for %d documents", len(vecs), len(pending)), len(docs))
	}
	for i := range pending {
		pending[i].Vector = vecs[i]
	}
	if err := s.ensureInit(ctx, len(vecs[0])); err != nil {
		return s.insertFailed("init storage", err, len(docs))
	}
	if err := s.storage.Add(ctx, pending); err != nil {
		return s.insertFailed("add documents", err, len(docs))
	}

	report.Added = len(pending)
	s.logger.WithFields(logrus.Fields{
		"added":      report.Added,
		"skipped":    report.Skipped,
		"collection": s.collection,
	}).Info("documents indexed")
	return report
}

func (s *Store) insertFailed(op string, err error, total int) InsertReport {
	err = s.indexError(op, err)
	return InsertReport{Skipped: total, Err: err}
}

func (s *Store) ensureInit(ctx context.Context, dimension int) error {
	if s.dimension == dimension {
		return nil
	}
	if err := s.storage.Init(ctx, dimension); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

// Search returns up to k documents nearest to query, most similar first.
// The score is 1 minus the cosine distance.
func (s *Store) Search(ctx context.Context, query string, k int) []domain.QueryResult {
	if k <= 0 {
		return nil
	}
	if s.Count(ctx) == 0 {
		return nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		s.indexError("embed query", err)
		return nil
	}
	if len(vecs) == 0 || isZero(vecs[0]) {
		return s.lexicalSearch(ctx, query, k)
	}
	matches, err := s.storage.Query(ctx, vecs[0], k)
	if err != nil {
		s.indexError("query", err)
		return nil
	}
	out := make([]domain.QueryResult, len(matches))
	for i, m := range matches {
		out[i] = domain.QueryResult{Document: m.Document, Score: 1 - m.Distance}
	}
	return out
}

// Recent returns the n newest documents.
func (s *Store) Recent(ctx context.Context, n int) []domain.Document {
	if n <= 0 {
		return nil
	}
	return s.list(ctx, "recent", vectorstore.Filter{Limit: n})
}

// BySource returns up to n newest documents carrying the source tag.
func (s *Store) BySource(ctx context.Context, source string, n int) []domain.Document {
	if n <= 0 {
		return nil
	}
	return s.list(ctx, "by source", vectorstore.Filter{Source: source, Limit: n})
}

func (s *Store) list(ctx context.Context, op string, f vectorstore.Filter) []domain.Document {
	records, err := s.storage.List(ctx, f)
	if err != nil {
		s.indexError(op, err)
		return nil
	}
	docs := make([]domain.Document, len(records))
	for i, r := range records {
		docs[i] = r.Document
	}
	return docs
}

// Stats reports totals per source.
func (s *Store) Stats(ctx context.Context) domain.Stats {
	stats := domain.Stats{BySource: map[string]int{}, Collection: s.collection}
	records, err := s.storage.List(ctx, vectorstore.Filter{})
	if err != nil {
		s.indexError("stats", err)
		return stats
	}
	for _, r := range records {
		stats.BySource[r.Document.Source]++
	}
	stats.Total = len(records)
	return stats
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) int {
	n, err := s.storage.Count(ctx)
	if err != nil {
		s.indexError("count", err)
		return 0
	}
	return n
}

// Clear removes every document and returns how many were removed.
func (s *Store) Clear(ctx context.Context) int {
	n := s.Count(ctx)
	if err := s.storage.Reset(ctx); err != nil {
		s.indexError("clear", err)
		return 0
	}
	s.dimension = 0
	s.logger.WithFields(logrus.Fields{"removed": n, "collection": s.collection}).Info("index cleared")
	return n
}

// DeleteOlderThan removes documents whose timestamp is before now minus
// age and returns how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) int {
	cutoff := s.now().Add(-age)
	records, err := s.storage.List(ctx, vectorstore.Filter{Before: cutoff})
	if err != nil {
		s.indexError("list old", err)
		return 0
	}
	if len(records) == 0 {
		return 0
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := s.storage.Delete(ctx, ids); err != nil {
		s.indexError("delete old", err)
		return 0
	}
	s.logger.WithFields(logrus.Fields{"removed": len(ids), "cutoff": cutoff.Format(time.RFC3339)}).Info("old documents pruned")
	return len(ids)
}

// Close releases the storage backend.
func (s *Store) Close() error {
	return s.storage.Close()
}

func (s *Store) indexError(op string, err error) error {
	wrapped := &domain.Error{Kind: domain.KindIndex, Op: op, Err: err}
	s.logger.WithFields(logrus.Fields{"op": op, "collection": s.collection, "error": err}).Error("index operation failed")
	return wrapped
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
