package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/embedding/hashing"
	"technews/internal/logging"
	"technews/internal/retriever"
	"technews/internal/store"
	"technews/internal/vectorstore/memory"
)

var now = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	batches []retriever.Report
	calls   int
}

func (f *stubFetcher) FetchAllReport(context.Context) retriever.Report {
	f.calls++
	if len(f.batches) == 0 {
		return retriever.Report{Counts: map[string]int{}, Failures: map[string]error{}}
	}
	r := f.batches[0]
	f.batches = f.batches[1:]
	return r
}

type stubAnswerer struct {
	calls   int
	results []domain.QueryResult
	style   domain.Style
}

func (a *stubAnswerer) Answer(_ context.Context, query string, results []domain.QueryResult, style domain.Style) string {
	a.calls++
	a.results, a.style = results, style
	return fmt.Sprintf("answer to %q from %d docs", query, len(results))
}

func batch(n int) retriever.Report {
	docs := make([]domain.Document, n)
	for i := range docs {
		docs[i] = domain.Document{
			Title:     fmt.Sprintf("story %d about golang", i),
			Content:   "golang news",
			URL:       fmt.Sprintf("https://news.example/%d", i),
			Source:    "hackernews",
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	return retriever.Report{
		Documents: docs,
		Counts:    map[string]int{"hackernews": n, "reddit": 0},
		Failures:  map[string]error{"reddit": errors.New("timeout")},
	}
}

func newSession(t *testing.T, fetcher Fetcher) (*Session, *store.Store, *stubAnswerer) {
	t.Helper()
	idx := store.New(memory.NewStorage(), hashing.New(64), "tech_updates", logging.Discard())
	ans := &stubAnswerer{}
	s, err := New(fetcher, idx, ans, config.SessionConfig{}, logging.Discard(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return s, idx, ans
}

func TestAsk_BeforeReady(t *testing.T) {
	s, _, ans := newSession(t, &stubFetcher{})

	turn := s.Ask(context.Background(), "what's new?")

	assert.Equal(t, NotReadyMessage, turn.Response)
	assert.False(t, turn.Pending())
	assert.Zero(t, ans.calls)
	assert.Len(t, s.History(), 1)
}

func TestAsk_IgnoresBlankQuery(t *testing.T) {
	s, _, _ := newSession(t, &stubFetcher{})
	assert.Equal(t, domain.ChatTurn{}, s.Ask(context.Background(), "   "))
	assert.Empty(t, s.History())
}

func TestRefreshThenAsk(t *testing.T) {
	ctx := context.Background()
	s, idx, ans := newSession(t, &stubFetcher{batches: []retriever.Report{batch(12)}})

	report := s.Refresh(ctx)

	assert.True(t, report.Ready)
	assert.Equal(t, 12, report.Fetched)
	assert.Equal(t, 12, report.Added)
	assert.Contains(t, report.Failures, "reddit")
	assert.Equal(t, 12, idx.Count(ctx))
	assert.Len(t, s.LatestUpdates(0), 10)
	assert.Len(t, s.LatestUpdates(3), 3)

	turn := s.Ask(ctx, "golang")
	assert.Equal(t, `answer to "golang" from 5 docs`, turn.Response)
	assert.Equal(t, now, turn.AskedAt)
	assert.Len(t, ans.results, 5)
	assert.Equal(t, domain.StyleStructured, ans.style)
}

func TestRefresh_EmptyBatchKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{batches: []retriever.Report{batch(3), {}}}
	s, _, _ := newSession(t, fetcher)

	s.Refresh(ctx)
	report := s.Refresh(ctx)

	assert.Zero(t, report.Fetched)
	assert.True(t, report.Ready, "index still has entries")
	assert.Len(t, s.LatestUpdates(0), 3)
}

func TestRefresh_NothingAnywhereStaysNotReady(t *testing.T) {
	s, _, _ := newSession(t, &stubFetcher{})
	assert.False(t, s.Refresh(context.Background()).Ready)
	assert.False(t, s.Ready())
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	s, idx, _ := newSession(t, &stubFetcher{})
	assert.False(t, s.Resume(ctx))

	idx.Insert(ctx, batch(4).Documents)
	assert.True(t, s.Resume(ctx))
	latest := s.LatestUpdates(0)
	require.Len(t, latest, 4)
	assert.Equal(t, "story 0 about golang", latest[0].Title)
}

func TestRecentHistory_NewestFirst(t *testing.T) {
	s, _, _ := newSession(t, &stubFetcher{})
	for i := 0; i < 7; i++ {
		s.Ask(context.Background(), fmt.Sprintf("q%d", i))
	}

	recent := s.RecentHistory(0)
	require.Len(t, recent, 5)
	assert.Equal(t, "q6", recent[0].Query)
	assert.Equal(t, "q2", recent[4].Query)
	assert.Len(t, s.RecentHistory(2), 2)
	assert.Len(t, s.History(), 7)
	assert.Equal(t, "q0", s.History()[0].Query)
}

func TestStyle(t *testing.T) {
	ctx := context.Background()
	s, _, ans := newSession(t, &stubFetcher{batches: []retriever.Report{batch(2)}})
	s.Refresh(ctx)

	assert.Equal(t, domain.StyleConversational, s.ToggleStyle())
	s.Ask(ctx, "golang")
	assert.Equal(t, domain.StyleConversational, ans.style)

	s.SetStyle(domain.StyleStructured)
	assert.Equal(t, domain.StyleStructured, s.Style())
}

func TestNew_RejectsUnknownStyle(t *testing.T) {
	_, err := New(&stubFetcher{}, nil, &stubAnswerer{}, config.SessionConfig{Style: "poetic"}, logging.Discard())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, &stubFetcher{batches: []retriever.Report{batch(2)}})
	s.Refresh(ctx)
	s.Ask(ctx, "golang")

	require.NoError(t, s.Close())
	assert.False(t, s.Ready())
	assert.Empty(t, s.History())
	assert.Empty(t, s.LatestUpdates(0))
}
