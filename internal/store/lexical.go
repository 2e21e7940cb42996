package store

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"technews/internal/domain"
	"technews/internal/vectorstore"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`)

// lexicalSearch ranks documents by token overlap with the query. It serves
// queries whose embedding is the zero vector, where every cosine distance
// is the same and the vector ranking says nothing.
func (s *Store) lexicalSearch(ctx context.Context, query string, k int) []domain.QueryResult {
	records, err := s.storage.List(ctx, vectorstore.Filter{})
	if err != nil {
		s.indexError("lexical search", err)
		return nil
	}
	qset := toTokenSet(query)
	out := make([]domain.QueryResult, len(records))
	for i, r := range records {
		out[i] = domain.QueryResult{Document: r.Document, Score: overlapOchiai(qset, r.Document.IndexText())}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k < len(out) {
		out = out[:k]
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
