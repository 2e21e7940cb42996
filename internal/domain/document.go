package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Document is a normalized record produced by a source adapter.
// Documents are immutable once created.
type Document struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
}

// ID returns the index identifier of the document.
func (d Document) ID() string { return DocumentID(d.URL, d.Timestamp) }

// IndexText is the text that gets embedded for the document.
func (d Document) IndexText() string {
	return fmt.Sprintf("%s\n\n%s\n\nSource:%s", d.Title, d.Content, d.Source)
}

// DocumentID derives the dedup key of an indexed entry from its url and
// timestamp. Equal instants in different zones produce the same key.
func DocumentID(url string, timestamp time.Time) string {
	key := url + "_" + timestamp.UTC().Format(time.RFC3339Nano)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// QueryResult is a document matched by a similarity search.
type QueryResult struct {
	Document
	// Score is 1 - cosine distance; higher is more relevant.
	Score float64 `json:"similarity_score"`
}

// ChatTurn is one question/answer exchange of a session.
type ChatTurn struct {
	Query    string
	Response string
	Answered bool
	AskedAt  time.Time
}

// Pending reports whether the turn is still waiting for its response.
func (t ChatTurn) Pending() bool { return !t.Answered }

// Stats summarizes the contents of the index.
type Stats struct {
	Total      int            `json:"total_documents"`
	BySource   map[string]int `json:"source_distribution"`
	Collection string         `json:"collection_name"`
}

// Style selects how the responder phrases an answer.
type Style string

const (
	StyleStructured     Style = "structured"
	StyleConversational Style = "conversational"
)

// ParseStyle accepts a style name in any letter case.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleStructured, "":
		return StyleStructured, nil
	case StyleConversational:
		return StyleConversational, nil
	default:
		return "", fmt.Errorf("unknown response style %q", s)
	}
}

// Label is the display name of the style.
func (s Style) Label() string {
	if s == StyleConversational {
		return "Conversational"
	}
	return "Structured"
}

// Toggle returns the other style.
func (s Style) Toggle() Style {
	if s == StyleConversational {
		return StyleStructured
	}
	return StyleConversational
}
