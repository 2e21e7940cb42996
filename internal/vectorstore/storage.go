// Package vectorstore defines the persistence port for indexed documents
// and their embeddings.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"technews/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the size
// the storage was initialized with.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one indexed document with its identifier and embedding.
type Record struct {
	ID       string
	Document domain.Document
	Vector   []float32
}

// Match is a query hit. Distance is the cosine distance to the query.
type Match struct {
	Record
	Distance float64
}

// Filter narrows List. Zero values mean no constraint.
type Filter struct {
	Source string
	Before time.Time
	Limit  int
}

// Storage persists records and supports similarity search.
// List returns records newest first and may leave Vector empty.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Exists(ctx context.Context, ids []string) (map[string]bool, error)
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, ids []string) error
	Reset(ctx context.Context) error
	Close() error
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Nearest ranks records by cosine distance to vector and keeps the first k.
// Ties keep input order.
func Nearest(records []Record, vector []float32, k int) []Match {
	matches := make([]Match, len(records))
	for i, r := range records {
		matches[i] = Match{Record: r, Distance: CosineDistance(r.Vector, vector)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k >= 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// Matches reports whether r passes the source and age constraints of f.
func (f Filter) Matches(r Record) bool {
	if f.Source != "" && r.Document.Source != f.Source {
		return false
	}
	if !f.Before.IsZero() && !r.Document.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

// SortNewestFirst orders records by descending timestamp, ties by ID.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Document.Timestamp, records[j].Document.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].ID < records[j].ID
	})
}

// Apply truncates records to f.Limit when it is positive.
func (f Filter) Apply(records []Record) []Record {
	if f.Limit > 0 && len(records) > f.Limit {
		return records[:f.Limit]
	}
	return records
}
