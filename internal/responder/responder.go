// Package responder turns retrieved documents and a question into an
// answer from the language model. Answer always returns text: model
// failures become an inline error message.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"technews/internal/domain"
	"technews/internal/llm"
)

const (
	contextContentChars = 800
	footerTitleChars    = 50
	footerLinksPerSrc   = 3
)

// Per-style generation settings.
var (
	structuredParams     = llm.Params{Temperature: 0.7, MaxTokens: 1000}
	conversationalParams = llm.Params{Temperature: 0.7, MaxTokens: 800}
)

type Responder struct {
	client llm.Client
	logger *logrus.Logger
}

func New(client llm.Client, logger *logrus.Logger) *Responder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Responder{client: client, logger: logger}
}

// Answer answers query from results in the given style. With no results it
// returns a fixed message without calling the model.
func (r *Responder) Answer(ctx context.Context, query string, results []domain.QueryResult, style domain.Style) string {
	if style == domain.StyleConversational {
		return r.conversational(ctx, query, results)
	}
	return r.structured(ctx, query, results)
}

func (r *Responder) structured(ctx context.Context, query string, results []domain.QueryResult) string {
	if len(results) == 0 {
		return structuredNoContext
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: structuredSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(structuredUserPrompt, query, BuildContext(results))},
	}
	out, err := r.generate(ctx, domain.StyleStructured, messages, structuredParams, len(results))
	if err != nil {
		return fmt.Sprintf("Error generating response: %v. Please check your OpenAI API key and try again.", err)
	}
	return out + SourcesFooter(results)
}

func (r *Responder) conversational(ctx context.Context, query string, results []domain.QueryResult) string {
	if len(results) == 0 {
		return conversationalNoContext
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: conversationalSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(conversationalUserPrompt, BuildContext(results), query)},
	}
	out, err := r.generate(ctx, domain.StyleConversational, messages, conversationalParams, len(results))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return strings.TrimSpace(out)
}

func (r *Responder) generate(ctx context.Context, style domain.Style, messages []llm.Message, params llm.Params, docs int) (string, error) {
	start := time.Now()
	out, err := r.client.Generate(ctx, messages, params)
	fields := logrus.Fields{
		"style":      string(style),
		"documents":  docs,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		err = &domain.Error{Kind: domain.KindGeneration, Op: "generate", Err: err}
		r.logger.WithFields(fields).WithError(err).Error("answer generation failed")
		return "", err
	}
	r.logger.WithFields(fields).Info("answer generated")
	return out, nil
}

// BuildContext renders the retrieved documents as the prompt context block.
func BuildContext(results []domain.QueryResult) string {
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = fmt.Sprintf("Document %d:\nTitle: %s\nSource: %s\nContent: %s...\nRelevance Score: %.3f\n---",
			i+1,
			orDefault(res.Title, "No title"),
			orDefault(res.Source, "Unknown"),
			prefix(res.Content, contextContentChars),
			res.Score)
	}
	return strings.Join(parts, "\n")
}

// SourcesFooter lists up to three links per source, sources in the order
// they first appear in results.
func SourcesFooter(results []domain.QueryResult) string {
	var order []string
	bySource := map[string][]domain.Document{}
	for _, res := range results {
		src := orDefault(res.Source, "Unknown")
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], res.Document)
	}

	var b strings.Builder
	b.WriteString("\n\n📚 **Sources:**\n")
	for _, src := range order {
		docs := bySource[src]
		if len(docs) > footerLinksPerSrc {
			docs = docs[:footerLinksPerSrc]
		}
		links := make([]string, len(docs))
		for i, d := range docs {
			title := prefix(orDefault(d.Title, "No title"), footerTitleChars)
			if d.URL != "" {
				links[i] = fmt.Sprintf("[%s...](%s)", title, d.URL)
			} else {
				links[i] = title + "..."
			}
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", titleCase(src), strings.Join(links, ", "))
	}
	return b.String()
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "github_trending" becomes "Github_Trending".
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
