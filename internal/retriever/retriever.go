// Package retriever fetches documents from the configured news sources.
//
// Each source type has its own SourceAdapter, built from a small table of
// factories keyed by type. Fetch failures stay inside the retriever: they are
// logged and reported as KindTransient errors alongside an empty result.
package retriever

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"technews/internal/config"
	"technews/internal/domain"
)

// SourceAdapter fetches and normalizes the documents of one source.
type SourceAdapter interface {
	Fetch(ctx context.Context) ([]domain.Document, error)
}

// Env is what adapter factories get to build an adapter.
type Env struct {
	Client    *http.Client
	UserAgent string
	Limits    config.RetrieverConfig
	Now       func() time.Time
}

// Factory builds the adapter for one configured source.
type Factory func(src config.SourceConfig, env Env) (SourceAdapter, error)

var factories = map[string]Factory{
	config.SourceTypeRSS:    newFeedAdapter,
	config.SourceTypeGitHub: newGitHubAdapter,
	config.SourceTypeReddit: newRedditAdapter,
}

// Report is the outcome of fetching every source.
type Report struct {
	Documents []domain.Document
	Counts    map[string]int
	Failures  map[string]error
}

// Retriever fetches documents from a fixed, ordered set of named sources.
type Retriever struct {
	order    []string
	adapters map[string]SourceAdapter
	logger   *logrus.Logger

	mu      sync.Mutex // serializes passes; guards limiter
	delay   time.Duration
	limiter *rate.Limiter
}

// Option customizes a Retriever.
type Option func(*options)

type options struct {
	client   *http.Client
	now      func() time.Time
	adapters map[string]SourceAdapter
}

// WithHTTPClient sets the HTTP client shared by all adapters.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithClock overrides the fetch-time clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithAdapter replaces the adapter of a configured source.
func WithAdapter(name string, a SourceAdapter) Option {
	return func(o *options) { o.adapters[name] = a }
}

// New builds a retriever for the given sources, in the given order.
func New(limits config.RetrieverConfig, sources []config.SourceConfig, logger *logrus.Logger, opts ...Option) (*Retriever, error) {
	o := options{now: time.Now, adapters: map[string]SourceAdapter{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: limits.Timeout()}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	env := Env{Client: o.client, UserAgent: limits.UserAgent, Limits: limits, Now: o.now}

	r := &Retriever{
		adapters: make(map[string]SourceAdapter, len(sources)),
		delay:    limits.InterSourceDelay(),
		limiter:  newLimiter(limits.InterSourceDelay()),
		logger:   logger,
	}
	for _, src := range sources {
		if _, dup := r.adapters[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		adapter, ok := o.adapters[src.Name]
		if !ok {
			factory, known := factories[src.Type]
			if !known {
				return nil, fmt.Errorf("source %q: unsupported type %q", src.Name, src.Type)
			}
			var err error
			adapter, err = factory(src, env)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", src.Name, err)
			}
		}
		r.adapters[src.Name] = adapter
		r.order = append(r.order, src.Name)
	}
	return r, nil
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// rest restarts the inter-source gap once a source has finished. The new
// limiter has its token spent, so the next Wait blocks a full delay from now.
func (r *Retriever) rest() {
	lim := newLimiter(r.delay)
	lim.Allow()
	r.limiter = lim
}

// Sources returns the configured source names in fetch order.
func (r *Retriever) Sources() []string {
	return append([]string(nil), r.order...)
}

// Fetch returns the documents of one source. An unknown name is a
// KindConfig error. Any other failure is logged and returned as a
// KindTransient error with an empty result.
func (r *Retriever) Fetch(ctx context.Context, name string) ([]domain.Document, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, domain.Errorf(domain.KindConfig, "fetch", "%w: %s", domain.ErrUnknownSource, name)
	}

	start := time.Now()
	docs, err := safeFetch(ctx, adapter)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"source": name, "error": err}).Warn("source fetch failed")
		return nil, &domain.Error{Kind: domain.KindTransient, Op: "fetch " + name, Err: err}
	}
	r.logger.WithFields(logrus.Fields{
		"source":     name,
		"documents":  len(docs),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("source fetched")
	return docs, nil
}

// safeFetch turns a panicking adapter into an ordinary fetch error.
func safeFetch(ctx context.Context, a SourceAdapter) (docs []domain.Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			docs, err = nil, fmt.Errorf("adapter panic: %v", p)
		}
	}()
	return a.Fetch(ctx)
}

// FetchAll fetches every source in turn and returns the documents sorted
// newest first. Failed sources contribute nothing.
func (r *Retriever) FetchAll(ctx context.Context) []domain.Document {
	return r.FetchAllReport(ctx).Documents
}

// FetchAllReport is FetchAll with per-source counts and failures.
func (r *Retriever) FetchAllReport(ctx context.Context) Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	report := Report{Counts: map[string]int{}, Failures: map[string]error{}}
	for _, name := range r.order {
		if err := r.limiter.Wait(ctx); err != nil {
			report.Failures[name] = &domain.Error{Kind: domain.KindTransient, Op: "fetch " + name, Err: err}
			report.Counts[name] = 0
			continue
		}
		docs, err := r.Fetch(ctx, name)
		r.rest()
		if err != nil {
			report.Failures[name] = err
		}
		report.Counts[name] = len(docs)
		report.Documents = append(report.Documents, docs...)
	}
	sort.SliceStable(report.Documents, func(i, j int) bool {
		return report.Documents[i].Timestamp.After(report.Documents[j].Timestamp)
	})
	return report
}

// SourceStats fetches every source and reports how many documents each
// returned. Failed sources report 0.
func (r *Retriever) SourceStats(ctx context.Context) map[string]int {
	return r.FetchAllReport(ctx).Counts
}
