package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"technews/internal/config"
	"technews/internal/domain"
)

// feedAdapter reads an RSS or Atom feed. Its documents are stamped with
// the fetch time.
type feedAdapter struct {
	name     string
	url      string
	parser   *gofeed.Parser
	limit    int
	maxChars int
	now      func() time.Time
}

func newFeedAdapter(src config.SourceConfig, env Env) (SourceAdapter, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	parser := gofeed.NewParser()
	parser.Client = env.Client
	parser.UserAgent = env.UserAgent
	return &feedAdapter{
		name:     src.Name,
		url:      src.URL,
		parser:   parser,
		limit:    env.Limits.FeedLimit,
		maxChars: env.Limits.ContentMaxChars,
		now:      env.Now,
	}, nil
}

func (a *feedAdapter) Fetch(ctx context.Context) ([]domain.Document, error) {
	feed, err := a.parser.ParseURLWithContext(a.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", a.url, err)
	}
	items := feed.Items
	if a.limit > 0 && len(items) > a.limit {
		items = items[:a.limit]
	}

	fetchedAt := a.now()
	docs := make([]domain.Document, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		body := item.Description
		if body == "" {
			body = item.Content
		}
		content := CleanHTML(body, a.maxChars)
		docs = append(docs, domain.Document{
			Title:     strings.TrimSpace(item.Title),
			Content:   content,
			URL:       item.Link,
			Source:    a.name,
			Timestamp: fetchedAt,
			Summary:   Summarize(content),
		})
	}
	return docs, nil
}
