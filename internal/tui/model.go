package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"syllabiq/internal/agent"
	"syllabiq/internal/domain"
	"syllabiq/internal/session"
)

// Responder answers one user turn given the conversation so far.
type Responder interface {
	Respond(ctx context.Context, history []domain.Turn, input string, onDelta func(string)) (*agent.Result, error)
}

type deltaMsg string

type doneMsg struct {
	input  string
	result *agent.Result
	err    error
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx       context.Context
	responder Responder
	history   *session.History
	title     string
	summary   string

	input    textinput.Model
	viewport viewport.Model
	status   string
	ready    bool

	busy    bool
	pending strings.Builder
	events  chan tea.Msg
	cancel  context.CancelFunc
}

// New creates a chat model. summary is shown under the title, e.g. the
// summary of files ingested at startup.
func New(ctx context.Context, responder Responder, title, summary string) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return &Model{
		ctx:       ctx,
		responder: responder,
		history:   session.NewHistory(),
		title:     title,
		summary:   summary,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Ready. ctrl+r clears the conversation, ctrl+c quits.",
	}
}

func (m *Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case deltaMsg:
		m.pending.WriteString(string(msg))
		m.refresh()
		return m, m.next()

	case doneMsg:
		m.busy = false
		m.cancel()
		m.pending.Reset()
		if msg.err != nil {
			m.history.AppendFailure(msg.input, "⚠️ Error: "+msg.err.Error())
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history.Append(domain.RoleUser, msg.input)
			m.history.Append(domain.RoleAssistant, msg.result.Answer)
			m.status = statusFor(msg.result)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyCtrlR:
			if m.busy {
				m.status = "Wait for the current answer before clearing."
				return m, nil
			}
			m.history.Reset()
			m.status = "Conversation cleared."
			m.refresh()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask starts a turn in the background. Deltas and the final result arrive as
// messages through the events channel.
func (m *Model) ask(input string) tea.Cmd {
	m.busy = true
	m.status = "Thinking..."
	m.pending.Reset()
	m.events = make(chan tea.Msg, 64)
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	history := m.history.Turns()
	events := m.events
	m.refresh()

	run := func() tea.Msg {
		res, err := m.responder.Respond(ctx, history, input, func(d string) { events <- deltaMsg(d) })
		events <- doneMsg{input: input, result: res, err: err}
		close(events)
		return nil
	}
	return tea.Batch(run, m.next())
}

func (m *Model) next() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m *Model) render() string {
	turns := m.history.Turns()
	if len(turns) == 0 && !m.busy {
		return "No questions yet."
	}
	var b strings.Builder
	lastQuestion := ""
	for i, t := range turns {
		switch {
		case t.Error && t.Role == domain.RoleAssistant:
			b.WriteString(errorStyle.Render(t.Content))
		case t.Role == domain.RoleUser:
			lastQuestion = t.Content
			b.WriteString(userStyle.Render("You: ") + t.Content)
		default:
			body := t.Content
			if i == len(turns)-1 {
				body = highlightBestSentence(body, lastQuestion)
			}
			b.WriteString(botStyle.Render(m.title+": ") + body)
		}
		b.WriteString("\n\n")
	}
	if m.busy {
		b.WriteString(botStyle.Render(m.title+": ") + m.pending.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusFor(res *agent.Result) string {
	if res.Declined {
		return "Nothing relevant found in the course material."
	}
	return fmt.Sprintf("Answered in %d steps, %d searches.", res.Steps, len(res.Searches))
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence of text sharing the most
// words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	qTokens := toTokenSet(query)
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	if len(qTokens) == 0 || len(sentences) < 2 {
		return text
	}
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestScore == 0 {
		return text
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sentences[i])
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
