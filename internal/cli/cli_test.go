package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/config"
	"technews/internal/domain"
	"technews/internal/embedding/hashing"
	"technews/internal/logging"
	"technews/internal/retriever"
	"technews/internal/session"
	"technews/internal/store"
	"technews/internal/vectorstore/memory"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Example</title>
<item><title>Rust compiler gets faster builds</title><link>https://news.example/rust</link>
<description>The Rust compiler team shipped incremental build improvements.</description></item>
<item><title>Go release adds iterators</title><link>https://news.example/go</link>
<description>The Go team released a version with range over func iterators.</description></item>
</channel></rss>`

type fixture struct {
	configPath string
	llmCalls   atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	t.Cleanup(feed.Close)
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.llmCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Rust builds got faster."},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(chat.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`
log:
  level: error
sources:
  - name: examplenews
    type: rss
    url: %s
retriever:
  timeout_secs: 5
  inter_source_delay_ms: 1
embedder:
  type: hashing
  hashing:
    dimension: 128
vector_store:
  type: sqlite
  sqlite:
    dir: %s
llm:
  base_url: %s
  api_key_env: TECHNEWS_TEST_KEY
`, feed.URL, filepath.Join(dir, "data"), chat.URL)
	f.configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o644))
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRefreshThenInspectIndex(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 updates: 2 added, 0 already indexed")
	assert.Contains(t, out, "examplenews")

	out, _, err = f.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Collection: tech_updates")
	assert.Contains(t, out, "Total:      2")

	out, _, err = f.run(t, "recent", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "examplenews")

	out, _, err = f.run(t, "recent", "--source", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "No updates indexed.\n", out)

	out, _, err = f.run(t, "search", "--json", "-n", "1", "rust compiler")
	require.NoError(t, err)
	var hits []domain.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "examplenews", hits[0].Source)

	out, _, err = f.run(t, "prune", "--days", "1")
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 entries older than 1 days\n", out)

	out, _, err = f.run(t, "clear")
	require.NoError(t, err)
	assert.Equal(t, "Removed 2 entries\n", out)

	out, _, err = f.run(t, "search", "rust")
	require.NoError(t, err)
	assert.Equal(t, "No results.\n", out)
}

func TestRefresh_FeedItemsAreStampedWithFetchTime(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.run(t, "refresh")
	require.NoError(t, err)

	// A later run stamps the same links with a new time, so they index again.
	out, _, err := f.run(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 2 updates: 2 added")

	out, _, err = f.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total:      4")
}

func TestAsk_FetchesWhenIndexEmpty(t *testing.T) {
	t.Setenv("TECHNEWS_TEST_KEY", "sk-test")
	f := newFixture(t)

	out, errOut, err := f.run(t, "ask", "what", "happened", "to", "rust?")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Fetched 2 updates")
	assert.Contains(t, out, "Rust builds got faster.")
	assert.Contains(t, out, "Sources:")
	assert.EqualValues(t, 1, f.llmCalls.Load())
}

func TestAsk_ConversationalStyle(t *testing.T) {
	t.Setenv("TECHNEWS_TEST_KEY", "sk-test")
	f := newFixture(t)

	out, _, err := f.run(t, "ask", "--style", "conversational", "-k", "1", "rust")
	require.NoError(t, err)
	assert.Equal(t, "Rust builds got faster.\n", out)
}

func TestAsk_MissingKeyReportsInline(t *testing.T) {
	t.Setenv("TECHNEWS_TEST_KEY", "")
	f := newFixture(t)

	out, _, err := f.run(t, "ask", "rust")
	require.NoError(t, err)
	assert.Contains(t, out, "Error generating response")
	assert.Zero(t, f.llmCalls.Load())
}

func TestAsk_RejectsUnknownStyle(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.run(t, "ask", "--style", "poetic", "rust")
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestBadConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector_store:\n  type: cassandra\n"), 0o644))

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "stats"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, validateSchedule("*/30 * * * *"))
	assert.NoError(t, validateSchedule("0 8 * * 1-5"))
	assert.Error(t, validateSchedule("every half hour"))
	assert.Error(t, validateSchedule("* * * * * *"))
}

func TestWatch_RejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.run(t, "watch", "--schedule", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestWatch_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", f.configPath, "watch", "--schedule", "0 0 1 1 *"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

type stubFetcher struct{ docs []domain.Document }

func (s stubFetcher) FetchAllReport(context.Context) retriever.Report {
	return retriever.Report{Documents: s.docs, Counts: map[string]int{"stub": len(s.docs)}}
}

type silentAnswerer struct{}

func (silentAnswerer) Answer(context.Context, string, []domain.QueryResult, domain.Style) string {
	return ""
}

func TestWatchJob_RefreshesAndPrunes(t *testing.T) {
	logger := logging.Discard()
	now := time.Now()
	st := store.New(memory.NewStorage(), hashing.New(64), "tech_updates", logger)
	stale := domain.Document{Title: "old", URL: "https://x/old", Source: "stub", Timestamp: now.Add(-30 * 24 * time.Hour), Content: "old story"}
	require.NoError(t, st.Insert(context.Background(), []domain.Document{stale}).Err)

	fresh := domain.Document{Title: "new", URL: "https://x/new", Source: "stub", Timestamp: now, Content: "new story"}
	sess, err := session.New(stubFetcher{docs: []domain.Document{fresh}}, st, silentAnswerer{}, config.SessionConfig{Style: "structured"}, logger)
	require.NoError(t, err)

	var out bytes.Buffer
	job := &watchJob{session: sess, store: st, maxAge: 7 * 24 * time.Hour, sources: []string{"stub"}, out: &out, logger: logger}
	job.run(context.Background())

	assert.Contains(t, out.String(), "Fetched 1 updates: 1 added")
	assert.Contains(t, out.String(), "Pruned 1 stale entries")
	assert.Equal(t, 1, st.Count(context.Background()))
	assert.True(t, sess.Ready())
}

func TestPrune_NegativeMaxAgeDisablesDefault(t *testing.T) {
	f := newFixture(t)
	cfg, err := os.OpenFile(f.configPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = cfg.WriteString("maintenance:\n  max_age_days: -1\n")
	require.NoError(t, err)
	require.NoError(t, cfg.Close())

	out, _, err := f.run(t, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruning is disabled")

	out, _, err = f.run(t, "prune", "--days", "2")
	require.NoError(t, err)
	assert.Equal(t, "Removed 0 entries older than 2 days\n", out)

	_, _, err = f.run(t, "prune", "--days", "0")
	require.Error(t, err)
}

func TestWatchJob_NegativeMaxAgeSkipsPrune(t *testing.T) {
	logger := logging.Discard()
	st := store.New(memory.NewStorage(), hashing.New(64), "tech_updates", logger)
	stale := domain.Document{Title: "old", URL: "https://x/old", Source: "stub", Timestamp: time.Now().Add(-30 * 24 * time.Hour), Content: "old story"}
	require.NoError(t, st.Insert(context.Background(), []domain.Document{stale}).Err)

	sess, err := session.New(stubFetcher{}, st, silentAnswerer{}, config.SessionConfig{Style: "structured"}, logger)
	require.NoError(t, err)

	var out bytes.Buffer
	job := &watchJob{session: sess, store: st, maxAge: maxAge(-1), sources: []string{"stub"}, out: &out, logger: logger}
	job.run(context.Background())

	assert.NotContains(t, out.String(), "Pruned")
	assert.Equal(t, 1, st.Count(context.Background()))
}

func TestRootCmd_Flags(t *testing.T) {
	root := NewRootCmd()
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	verbose := root.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	search, _, err := root.Find([]string{"search"})
	require.NoError(t, err)
	limit := search.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "n", limit.Shorthand)
	assert.Equal(t, "5", limit.DefValue)

	ask, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	assert.Equal(t, "k", ask.Flags().Lookup("top-k").Shorthand)

	prune, _, err := root.Find([]string{"prune"})
	require.NoError(t, err)
	assert.Equal(t, "7", prune.Flags().Lookup("days").DefValue)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestSourcesCmd_ReportsCountsWithoutIndexing(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "examplenews")
	assert.Contains(t, out, " 2\n")

	out, _, err = f.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total:      0")
}
