package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"technews/internal/config"
	"technews/internal/domain"
)

const redditBaseURL = "https://reddit.com"

// redditAdapter reads a subreddit listing. Unlike the other adapters, its
// documents carry the post's creation time rather than the fetch time.
type redditAdapter struct {
	name      string
	url       string
	client    *http.Client
	userAgent string
	limit     int
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Pinned      bool    `json:"pinned"`
}

func newRedditAdapter(src config.SourceConfig, env Env) (SourceAdapter, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("listing url is required")
	}
	return &redditAdapter{
		name:      src.Name,
		url:       src.URL,
		client:    env.Client,
		userAgent: env.UserAgent,
		limit:     env.Limits.APILimit,
	}, nil
}

func (a *redditAdapter) Fetch(ctx context.Context) ([]domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", a.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("get %s: unexpected status %s", a.url, resp.Status)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	children := listing.Data.Children
	if a.limit > 0 && len(children) > a.limit {
		children = children[:a.limit]
	}
	docs := make([]domain.Document, 0, len(children))
	for _, child := range children {
		post := child.Data
		if post.Pinned {
			continue
		}
		docs = append(docs, domain.Document{
			Title: post.Title,
			Content: fmt.Sprintf("%d upvotes | %d comments\n\n%s...",
				post.Score, post.NumComments, Prefix(post.Selftext, 300)),
			URL:       redditBaseURL + post.Permalink,
			Source:    a.name,
			Timestamp: time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Summary:   fmt.Sprintf("Reddit discussion: %s...", Prefix(post.Title, 80)),
		})
	}
	return docs, nil
}
