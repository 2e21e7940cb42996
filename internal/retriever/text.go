package retriever

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanHTML strips markup, collapses whitespace and truncates to maxChars
// characters, appending "..." when text was cut.
func CleanHTML(body string, maxChars int) string {
	if body == "" {
		return ""
	}
	text := body
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		text = doc.Text()
	}
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	return Truncate(text, maxChars)
}

// Summarize derives a one-line summary: the first sentence when it is longer
// than 20 characters, otherwise the first 100 characters.
func Summarize(content string) string {
	if content == "" {
		return "No content available"
	}
	first, _, _ := strings.Cut(content, ".")
	if utf8.RuneCountInString(first) > 20 {
		return first + "."
	}
	return Truncate(content, 100)
}

// Truncate cuts s to n characters and appends "..." if anything was removed.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return Prefix(s, n) + "..."
}

// Prefix returns at most the first n characters of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
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
