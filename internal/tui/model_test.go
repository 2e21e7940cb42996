package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"technews/internal/domain"
	"technews/internal/session"
)

type fakeSession struct {
	ready     bool
	style     domain.Style
	refreshes int
	asked     []string
	history   []domain.ChatTurn
	updates   []domain.Document
}

func (f *fakeSession) Refresh(context.Context) session.RefreshReport {
	f.refreshes++
	f.ready = true
	f.updates = []domain.Document{{Title: "Go 1.23 released", Source: "hackernews", URL: "https://go.dev", Summary: "Iterators.", Timestamp: time.Now()}}
	return session.RefreshReport{Fetched: 1, Added: 1, Ready: true, Failures: map[string]error{"reddit": errors.New("429")}}
}

func (f *fakeSession) Ask(_ context.Context, q string) domain.ChatTurn {
	f.asked = append(f.asked, q)
	t := domain.ChatTurn{Query: q, Response: "Go 1.23 added iterators. Nothing else.", Answered: true, AskedAt: time.Now()}
	f.history = append([]domain.ChatTurn{t}, f.history...)
	return t
}

func (f *fakeSession) ToggleStyle() domain.Style {
	f.style = f.style.Toggle()
	return f.style
}

func (f *fakeSession) Style() domain.Style                 { return f.style }
func (f *fakeSession) RecentHistory(int) []domain.ChatTurn { return f.history }
func (f *fakeSession) LatestUpdates(int) []domain.Document { return f.updates }
func (f *fakeSession) Ready() bool                         { return f.ready }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNew_NotReadyStartsRefresh(t *testing.T) {
	fs := &fakeSession{style: domain.StyleStructured}
	m := New(context.Background(), fs)
	assert.Equal(t, fetchingMsg, m.Busy())
	assert.NotNil(t, m.Init())

	m, _ = update(t, m, refreshDoneMsg{report: fs.Refresh(context.Background())})
	assert.Empty(t, m.Busy())
	assert.Equal(t, "Loaded 1 tech updates (1 new). Failed: reddit.", m.status)
}

func TestAsk_RunsInBackgroundAndBlocksNewActions(t *testing.T) {
	fs := &fakeSession{ready: true, style: domain.StyleStructured, updates: []domain.Document{
		{Title: "Go 1.23 released", Source: "hackernews", Timestamp: time.Now()},
	}}
	m := New(context.Background(), fs)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m.input.SetValue("what about go?")

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, analyzingMsg, m.Busy())
	assert.Empty(t, m.input.Value())

	// further actions are rejected while the answer is pending
	m.input.SetValue("second question")
	m, cmd2 := update(t, m, key("enter"))
	assert.Nil(t, cmd2)
	assert.Contains(t, m.status, "Please wait")
	m, cmd3 := update(t, m, key("ctrl+r"))
	assert.Nil(t, cmd3)
	assert.Zero(t, fs.refreshes)

	msg := cmd()
	require.IsType(t, answerMsg{}, msg)
	m, _ = update(t, m, msg)
	assert.Empty(t, m.Busy())
	assert.Equal(t, []string{"what about go?"}, fs.asked)

	view := m.View()
	assert.Contains(t, view, "what about go?")
	assert.Contains(t, view, "Latest updates")
}

func TestAsk_ShowsQueryWhileThinking(t *testing.T) {
	fs := &fakeSession{ready: true, style: domain.StyleStructured}
	m := New(context.Background(), fs)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m.input.SetValue("rust news?")

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "rust news?")
	assert.Contains(t, view, "Thinking...")
	assert.NotContains(t, view, "No questions yet")

	m, _ = update(t, m, cmd())
	view = m.View()
	assert.Contains(t, view, "rust news?")
	assert.NotContains(t, view, "Thinking...")
}

func TestBlankEnterDoesNothing(t *testing.T) {
	fs := &fakeSession{ready: true}
	m := New(context.Background(), fs)
	m.input.SetValue("   ")
	_, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Empty(t, fs.asked)
}

func TestTabTogglesStyle(t *testing.T) {
	fs := &fakeSession{ready: true, style: domain.StyleStructured}
	m := New(context.Background(), fs)
	m, _ = update(t, m, key("tab"))
	assert.Equal(t, domain.StyleConversational, fs.style)
	assert.Equal(t, "Response style: Conversational", m.status)
}

func TestCtrlRRefreshes(t *testing.T) {
	fs := &fakeSession{ready: true}
	m := New(context.Background(), fs)
	m, cmd := update(t, m, key("ctrl+r"))
	require.NotNil(t, cmd)
	assert.Equal(t, fetchingMsg, m.Busy())
	require.IsType(t, refreshDoneMsg{}, cmd())
	assert.Equal(t, 1, fs.refreshes)
}

func TestEscQuits(t *testing.T) {
	m := New(context.Background(), &fakeSession{ready: true})
	_, cmd := update(t, m, key("esc"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestViewBeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeSession{ready: true})
	assert.Equal(t, "Loading...", m.View())
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Rust had a release. Go 1.23 added iterators. Zig is young."
	out := highlightBestSentence(text, "go iterators")
	assert.Contains(t, out, "Rust had a release.")
	assert.Contains(t, out, "Zig is young.")
	assert.Equal(t, text, highlightBestSentence(text, ""))
	assert.True(t, strings.HasPrefix(out, "Rust had a release. "))
}

func TestRefreshStatus(t *testing.T) {
	assert.Equal(t, "No new updates could be fetched.", refreshStatus(session.RefreshReport{}))
	assert.Equal(t, "Indexing failed: boom", refreshStatus(session.RefreshReport{Fetched: 2, IndexErr: errors.New("boom")}))
}
