// Package qdrant is a minimal REST client to Qdrant implementing
// vectorstore.Storage. The collection uses cosine distance and is created
// on Init if missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"technews/internal/domain"
	"technews/internal/vectorstore"
)

const scrollPage = 256

// Config contains connection details.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Storage talks to one Qdrant collection.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

var _ vectorstore.Storage = (*Storage)(nil)

var errNotFound = errors.New("qdrant: not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a document identifier to the UUID Qdrant requires. MD5 hex
// identifiers are reinterpreted as 16 raw bytes; anything else is hashed.
func PointID(id string) string {
	if raw, err := hex.DecodeString(id); err == nil && len(raw) == 16 {
		if u, err := uuid.FromBytes(raw); err == nil {
			return u.String()
		}
	}
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(id)).String()
}

type payload struct {
	DocID     string `json:"doc_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	TS        int64  `json:"ts"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
	Score   float64   `json:"score,omitempty"`
}

func toPoint(r vectorstore.Record) point {
	d := r.Document
	return point{
		ID:     PointID(r.ID),
		Vector: r.Vector,
		Payload: payload{
			DocID:     r.ID,
			Title:     d.Title,
			Content:   d.Content,
			URL:       d.URL,
			Source:    d.Source,
			Summary:   d.Summary,
			Timestamp: d.Timestamp.UTC().Format(time.RFC3339Nano),
			TS:        d.Timestamp.UnixNano(),
		},
	}
}

func (p point) record() vectorstore.Record {
	return vectorstore.Record{
		ID: p.Payload.DocID,
		Document: domain.Document{
			Title:     p.Payload.Title,
			Content:   p.Payload.Content,
			URL:       p.Payload.URL,
			Source:    p.Payload.Source,
			Summary:   p.Payload.Summary,
			Timestamp: time.Unix(0, p.Payload.TS).UTC(),
		},
		Vector: p.Vector,
	}
}

// Init creates the collection if it does not exist yet.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if s.dimension == dimension {
		return nil
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("%w: collection %s has %d, got %d", vectorstore.ErrDimensionMismatch, s.collection, size, dimension)
		}
	case errors.Is(err, errNotFound):
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return err
		}
	default:
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = PointID(id)
	}
	var resp struct {
		Result []point `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points"), map[string]any{
		"ids":          pids,
		"with_payload": []string{"doc_id"},
		"with_vector":  false,
	}, &resp)
	if errors.Is(err, errNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Result {
		out[p.Payload.DocID] = true
	}
	return out, nil
}

func (s *Storage) Add(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]point, len(records))
	for i, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
		points[i] = toPoint(r)
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Query returns the k nearest points. Qdrant reports cosine similarity,
// which is converted back to a distance.
func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	var resp struct {
		Result []point `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	matches := make([]vectorstore.Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		matches = append(matches, vectorstore.Match{Record: p.record(), Distance: 1 - p.Score})
	}
	return matches, nil
}

// List scrolls through every matching point and orders them in Go; the
// scroll API has no timestamp ordering without a payload index.
func (s *Storage) List(ctx context.Context, f vectorstore.Filter) ([]vectorstore.Record, error) {
	var must []map[string]any
	if f.Source != "" {
		must = append(must, map[string]any{"key": "source", "match": map[string]any{"value": f.Source}})
	}
	if !f.Before.IsZero() {
		must = append(must, map[string]any{"key": "ts", "range": map[string]any{"lt": f.Before.UnixNano()}})
	}

	var out []vectorstore.Record
	var offset any
	for {
		body := map[string]any{"limit": scrollPage, "with_payload": true, "with_vector": false}
		if len(must) > 0 {
			body["filter"] = map[string]any{"must": must}
		}
		if offset != nil {
			body["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), body, &resp)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, p.record())
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	vectorstore.SortNewestFirst(out)
	return f.Apply(out), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	return resp.Result.Count, err
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = PointID(id)
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"points": pids}, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// Reset drops the collection. It is recreated by the next Init.
func (s *Storage) Reset(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
