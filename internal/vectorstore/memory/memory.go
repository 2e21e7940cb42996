// Package memory is an ephemeral vector store using brute-force cosine
// similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"technews/internal/vectorstore"
)

// Storage keeps records in insertion order.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	index     map[string]int
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{index: map[string]int{}} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.records) > 0 {
		return fmt.Errorf("%w: have %d, got %d", vectorstore.ErrDimensionMismatch, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Exists(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Add appends records. Existing IDs are left untouched.
func (s *Storage) Add(_ context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
	}
	for _, r := range records {
		if _, ok := s.index[r.ID]; ok {
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

func (s *Storage) Query(_ context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	return vectorstore.Nearest(s.records, vector, k), nil
}

func (s *Storage) List(_ context.Context, f vectorstore.Filter) ([]vectorstore.Record, error) {
	s.mu.RLock()
	out := make([]vectorstore.Record, 0, len(s.records))
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	vectorstore.SortNewestFirst(out)
	return f.Apply(out), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.reindex()
	return nil
}

func (s *Storage) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.index = map[string]int{}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}
