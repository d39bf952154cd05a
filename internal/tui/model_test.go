package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/agent"
	"syllabiq/internal/domain"
)

type fakeResponder struct {
	err  error
	seen [][]domain.Turn
}

func (f *fakeResponder) Respond(_ context.Context, history []domain.Turn, input string, onDelta func(string)) (*agent.Result, error) {
	f.seen = append(f.seen, history)
	onDelta("TCP uses ")
	onDelta("a three-way handshake.")
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Result{Answer: "TCP uses a three-way handshake.", Steps: 2, Searches: []agent.Search{{Query: input, Found: true}}}, nil
}

// send types q, presses enter and drives the turn to completion.
func send(t *testing.T, m *Model, q string) {
	t.Helper()
	m.input.SetValue(q)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)
	go batch[0]()
	next := batch[1]
	for next != nil {
		_, next = m.Update(next())
	}
}

func newModel(r Responder) *Model {
	m := New(context.Background(), r, "SyllabiQ", "2 files ingested")
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestTurnStreamsIntoHistory(t *testing.T) {
	r := &fakeResponder{}
	m := newModel(r)

	send(t, m, "How does TCP connect?")
	assert.False(t, m.busy)
	turns := m.history.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "TCP uses a three-way handshake.", turns[1].Content)
	assert.Equal(t, "Answered in 2 steps, 1 searches.", m.status)
	assert.Contains(t, m.render(), "How does TCP connect?")

	send(t, m, "And UDP?")
	require.Len(t, r.seen, 2)
	assert.Len(t, r.seen[1], 2)
	assert.Empty(t, m.input.Value())
}

func TestErrorsAreShownInline(t *testing.T) {
	m := newModel(&fakeResponder{err: errors.New("connection refused")})
	send(t, m, "What is paging?")

	turns := m.history.Turns()
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Error)
	assert.Contains(t, m.render(), "⚠️ Error: connection refused")
	assert.NotContains(t, m.render(), "three-way", "partial text is discarded")
}

func TestCtrlRClearsConversation(t *testing.T) {
	m := newModel(&fakeResponder{})
	send(t, m, "What is TCP?")
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Zero(t, m.history.Len())
	assert.Equal(t, "No questions yet.", m.render())
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	m := newModel(&fakeResponder{})
	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Paging uses frames. TCP uses a handshake. Done"
	out := highlightBestSentence(text, "what does tcp use")
	assert.Contains(t, out, "Paging uses frames.")
	assert.True(t, strings.HasSuffix(out, "Done"))
	assert.Equal(t, "single sentence.", highlightBestSentence("single sentence.", "sentence"))
	assert.Equal(t, text, highlightBestSentence(text, ""))
}
