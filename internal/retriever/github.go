package retriever

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"technews/internal/config"
	"technews/internal/domain"
)

// githubAdapter lists repositories created since yesterday, most starred
// first. Its documents are stamped with the fetch time.
type githubAdapter struct {
	name  string
	gh    *gh.Client
	limit int
	now   func() time.Time
}

func newGitHubAdapter(src config.SourceConfig, env Env) (SourceAdapter, error) {
	client := gh.NewClient(env.Client)
	if src.TokenEnv != "" {
		if token := os.Getenv(src.TokenEnv); token != "" {
			client = client.WithAuthToken(token)
		}
	}
	if src.URL != "" {
		base := src.URL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		client.BaseURL = u
	}
	if env.UserAgent != "" {
		client.UserAgent = env.UserAgent
	}
	return &githubAdapter{name: src.Name, gh: client, limit: env.Limits.APILimit, now: env.Now}, nil
}

func (a *githubAdapter) Fetch(ctx context.Context) ([]domain.Document, error) {
	fetchedAt := a.now()
	yesterday := fetchedAt.AddDate(0, 0, -1).Format("2006-01-02")
	opts := &gh.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: a.limit},
	}
	result, _, err := a.gh.Search.Repositories(ctx, "created:>"+yesterday, opts)
	if err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}

	repos := result.Repositories
	if a.limit > 0 && len(repos) > a.limit {
		repos = repos[:a.limit]
	}
	docs := make([]domain.Document, 0, len(repos))
	for _, repo := range repos {
		description := orDefault(repo.GetDescription(), "No description")
		docs = append(docs, domain.Document{
			Title: repo.GetFullName(),
			Content: fmt.Sprintf("%d stars | %s | %s",
				repo.GetStargazersCount(), orDefault(repo.GetLanguage(), "N/A"), description),
			URL:       repo.GetHTMLURL(),
			Source:    a.name,
			Timestamp: fetchedAt,
			Summary:   fmt.Sprintf("Trending %s: %s...", orDefault(repo.GetLanguage(), "repository"), Prefix(description, 100)),
		})
	}
	return docs, nil
}
