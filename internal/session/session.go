// Package session holds the state of one interactive run: chat history,
// the latest fetched batch, the ready flag and the response style.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/retriever"
	"technews/internal/store"
)

// NotReadyMessage answers questions asked before any update was loaded.
const NotReadyMessage = "Please fetch latest tech updates first."

// Fetcher fetches every configured source.
type Fetcher interface {
	FetchAllReport(ctx context.Context) retriever.Report
}

// Index is the part of the store a session uses.
type Index interface {
	Insert(ctx context.Context, docs []domain.Document) store.InsertReport
	Search(ctx context.Context, query string, k int) []domain.QueryResult
	Recent(ctx context.Context, n int) []domain.Document
	Count(ctx context.Context) int
	Close() error
}

// Answerer produces the reply text for a question.
type Answerer interface {
	Answer(ctx context.Context, query string, results []domain.QueryResult, style domain.Style) string
}

// RefreshReport summarizes one refresh.
type RefreshReport struct {
	Fetched  int
	Added    int
	Skipped  int
	Counts   map[string]int
	Failures map[string]error
	IndexErr error
	Ready    bool
}

// Session is created at startup and closed at the end of the run. Its
// methods are safe to call from several goroutines, but callers are
// expected to run one action at a time.
type Session struct {
	fetcher  Fetcher
	index    Index
	answerer Answerer
	cfg      config.SessionConfig
	logger   *logrus.Logger
	now      func() time.Time

	mu      sync.Mutex
	history []domain.ChatTurn
	latest  []domain.Document
	ready   bool
	style   domain.Style
}

// Option customizes a Session.
type Option func(*Session)

// WithClock overrides the clock used to stamp chat turns.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a session that is not ready yet.
func New(fetcher Fetcher, index Index, answerer Answerer, cfg config.SessionConfig, logger *logrus.Logger, opts ...Option) (*Session, error) {
	style, err := domain.ParseStyle(cfg.Style)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfig, Op: "session", Err: err}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.HistoryDisplay <= 0 {
		cfg.HistoryDisplay = 5
	}
	if cfg.UpdatesDisplay <= 0 {
		cfg.UpdatesDisplay = 10
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Session{
		fetcher:  fetcher,
		index:    index,
		answerer: answerer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		style:    style,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resume marks the session ready when the index already holds documents
// from an earlier run, and shows the newest of them as the latest batch.
func (s *Session) Resume(ctx context.Context) bool {
	if s.index.Count(ctx) == 0 {
		return s.Ready()
	}
	recent := s.index.Recent(ctx, s.cfg.UpdatesDisplay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	if len(s.latest) == 0 {
		s.latest = recent
	}
	return true
}

// Refresh fetches every source and indexes the results. The session
// becomes ready when the batch is non-empty or the index already holds
// documents. An empty batch keeps the previous latest updates.
func (s *Session) Refresh(ctx context.Context) RefreshReport {
	fetched := s.fetcher.FetchAllReport(ctx)
	report := RefreshReport{
		Fetched:  len(fetched.Documents),
		Counts:   fetched.Counts,
		Failures: fetched.Failures,
	}
	if len(fetched.Documents) > 0 {
		ins := s.index.Insert(ctx, fetched.Documents)
		report.Added, report.Skipped, report.IndexErr = ins.Added, ins.Skipped, ins.Err
	}
	hasEntries := len(fetched.Documents) > 0 || s.index.Count(ctx) > 0

	s.mu.Lock()
	if len(fetched.Documents) > 0 {
		s.latest = fetched.Documents
	}
	if hasEntries {
		s.ready = true
	}
	report.Ready = s.ready
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"fetched": report.Fetched,
		"added":   report.Added,
		"skipped": report.Skipped,
		"failed":  len(report.Failures),
		"ready":   report.Ready,
	}).Info("refresh finished")
	return report
}

// Ask answers query and records the exchange. Blank queries are ignored
// and return the zero turn.
func (s *Session) Ask(ctx context.Context, query string) domain.ChatTurn {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ChatTurn{}
	}

	s.mu.Lock()
	s.history = append(s.history, domain.ChatTurn{Query: query, AskedAt: s.now()})
	idx := len(s.history) - 1
	ready, style := s.ready, s.style
	s.mu.Unlock()

	response := NotReadyMessage
	if ready {
		results := s.index.Search(ctx, query, s.cfg.TopK)
		s.logger.WithFields(logrus.Fields{"results": len(results), "style": string(style)}).Debug("context retrieved")
		response = s.answerer.Answer(ctx, query, results, style)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[idx].Response = response
	s.history[idx].Answered = true
	return s.history[idx]
}

// Style returns the active response style.
func (s *Session) Style() domain.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// SetStyle changes the active response style.
func (s *Session) SetStyle(style domain.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
}

// ToggleStyle switches between the two styles and returns the new one.
func (s *Session) ToggleStyle() domain.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = s.style.Toggle()
	return s.style
}

// History returns every turn, oldest first.
func (s *Session) History() []domain.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatTurn(nil), s.history...)
}

// RecentHistory returns the last n turns, newest first. n <= 0 uses the
// configured display size.
func (s *Session) RecentHistory(n int) []domain.ChatTurn {
	if n <= 0 {
		n = s.cfg.HistoryDisplay
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(len(s.history)-n, 0)
	out := make([]domain.ChatTurn, 0, len(s.history)-start)
	for i := len(s.history) - 1; i >= start; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// LatestUpdates returns the first n documents of the latest batch. n <= 0
// uses the configured display size.
func (s *Session) LatestUpdates(n int) []domain.Document {
	if n <= 0 {
		n = s.cfg.UpdatesDisplay
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n = min(n, len(s.latest))
	return append([]domain.Document(nil), s.latest[:n]...)
}

// Ready reports whether questions can be answered.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Close drops the session state and releases the index.
func (s *Session) Close() error {
	s.mu.Lock()
	s.history, s.latest, s.ready = nil, nil, false
	s.mu.Unlock()
	return s.index.Close()
}
