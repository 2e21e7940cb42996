// Package tui is the interactive terminal front end over a session.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"technews/internal/domain"
	"technews/internal/session"
)

const (
	fetchingMsg  = "Fetching latest tech updates..."
	analyzingMsg = "Analyzing latest tech updates..."

	sidebarWidth    = 48
	minWidthSidebar = 100
	sidebarTitleLen = 50
)

// SessionPort is the TUI-facing subset of the session.
type SessionPort interface {
	Refresh(ctx context.Context) session.RefreshReport
	Ask(ctx context.Context, query string) domain.ChatTurn
	ToggleStyle() domain.Style
	Style() domain.Style
	RecentHistory(n int) []domain.ChatTurn
	LatestUpdates(n int) []domain.Document
	Ready() bool
}

type refreshDoneMsg struct{ report session.RefreshReport }

type answerMsg struct{ turn domain.ChatTurn }

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	status   string
	busy     string
	pending  string // query sent but not yet recorded by the session
	width    int
	height   int
	ready    bool
}

// New creates a new TUI model instance. ctx bounds the background actions.
func New(ctx context.Context, s SessionPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the latest tech news and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	m := Model{
		ctx:      ctx,
		session:  s,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "enter ask · ctrl+r refresh · tab style · pgup/pgdown scroll · esc quit",
	}
	if !s.Ready() {
		m.busy = fetchingMsg
	}
	return m
}

// Init starts the cursor blink and the spinner, and fetches updates when
// the session has nothing loaded yet.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.busy == fetchingMsg {
		cmds = append(cmds, m.refreshCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg { return refreshDoneMsg{report: m.session.Refresh(m.ctx)} }
}

func (m Model) askCmd(q string) tea.Cmd {
	return func() tea.Msg { return answerMsg{turn: m.session.Ask(m.ctx, q)} }
}

// Busy reports the running action, if any.
func (m Model) Busy() string { return m.busy }

// Update handles key, window and action-result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.viewport.SetContent(m.renderConversation())
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case refreshDoneMsg:
		m.busy = ""
		m.status = refreshStatus(msg.report)
		m.viewport.SetContent(m.renderConversation())
		return m, nil
	case answerMsg:
		m.busy = ""
		m.pending = ""
		m.status = fmt.Sprintf("Answered in %s style.", m.session.Style().Label())
		m.viewport.SetContent(m.renderConversation())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "pgup":
			m.viewport.ViewUp()
			return m, nil
		case "pgdown":
			m.viewport.ViewDown()
			return m, nil
		case "tab":
			m.status = fmt.Sprintf("Response style: %s", m.session.ToggleStyle().Label())
			return m, nil
		case "ctrl+r":
			if m.busy != "" {
				m.status = "Please wait: " + m.busy
				return m, nil
			}
			m.busy = fetchingMsg
			return m, m.refreshCmd()
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			if m.busy != "" {
				m.status = "Please wait: " + m.busy
				return m, nil
			}
			m.input.Reset()
			m.busy = analyzingMsg
			m.pending = q
			m.viewport.SetContent(m.renderConversation())
			return m, m.askCmd(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	_, ch := conversationBoxStyle.GetFrameSize()
	_, qh := queryBoxStyle.GetFrameSize()
	reserved := 1 + 1 + qh + 1 // header, status, input line
	vh := max(3, m.height-reserved-ch)
	vw := m.width
	if m.showSidebar() {
		vw -= sidebarWidth
	}
	fw, _ := conversationBoxStyle.GetFrameSize()
	m.viewport.Width = max(20, vw-fw)
	m.viewport.Height = vh
	m.input.Width = max(10, m.width-6)
}

func (m Model) showSidebar() bool { return m.width >= minWidthSidebar }

// View renders the header, conversation, sidebar, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Tech News Assistant") + "  " +
		mutedStyle.Render(fmt.Sprintf("style: %s", m.session.Style().Label()))
	body := conversationBoxStyle.Render(m.viewport.View())
	if m.showSidebar() {
		sidebar := sidebarStyle.Width(sidebarWidth - 2).Height(m.viewport.Height).Render(m.renderUpdates())
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, sidebar)
	}
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy != "" {
		status = m.spinner.View() + " " + statusStyle.Render(m.busy)
	}
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderConversation() string {
	if !m.session.Ready() && m.busy == "" {
		return mutedStyle.Render("Fetch the latest tech updates with ctrl+r to start.")
	}
	turns := m.session.RecentHistory(0)
	if m.pending != "" && !hasPending(turns) {
		turns = append([]domain.ChatTurn{{Query: m.pending, AskedAt: time.Now()}}, turns...)
	}
	if len(turns) == 0 {
		return mutedStyle.Render("No questions yet. Ask about the latest tech news.")
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s %s\n", questionStyle.Render("You:"), t.Query)
		b.WriteString(mutedStyle.Render(t.AskedAt.Format("15:04:05")) + "\n")
		if t.Pending() {
			b.WriteString(mutedStyle.Render("Thinking..."))
			continue
		}
		b.WriteString(highlightBestSentence(t.Response, t.Query))
	}
	return b.String()
}

func hasPending(turns []domain.ChatTurn) bool {
	for _, t := range turns {
		if t.Pending() {
			return true
		}
	}
	return false
}

func (m Model) renderUpdates() string {
	docs := m.session.LatestUpdates(0)
	if len(docs) == 0 {
		return mutedStyle.Render("No updates loaded.")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Latest updates") + "\n")
	for _, d := range docs {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s\n", sourceStyle.Render("["+d.Source+"]"), truncate(d.Title, sidebarTitleLen))
		b.WriteString(mutedStyle.Render(d.Timestamp.Local().Format("Jan 02 15:04")) + "\n")
		if d.Summary != "" {
			b.WriteString(d.Summary + "\n")
		}
		if d.URL != "" {
			b.WriteString(mutedStyle.Render(d.URL) + "\n")
		}
	}
	return b.String()
}

func refreshStatus(r session.RefreshReport) string {
	if r.IndexErr != nil {
		return "Indexing failed: " + r.IndexErr.Error()
	}
	msg := fmt.Sprintf("Loaded %d tech updates (%d new).", r.Fetched, r.Added)
	if r.Fetched == 0 {
		msg = "No new updates could be fetched."
	}
	if len(r.Failures) > 0 {
		names := make([]string, 0, len(r.Failures))
		for name := range r.Failures {
			names = append(names, name)
		}
		sort.Strings(names)
		msg += " Failed: " + strings.Join(names, ", ") + "."
	}
	return msg
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}

var (
	conversationBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sidebarStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle          = lipgloss.NewStyle().Bold(true)
	mutedStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	spinnerStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	highlightStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
