// Package session holds the per-session conversation history.
package session

import (
	"sync"
	"time"

	"syllabiq/internal/domain"
)

// History is an append-only list of turns. It is never truncated; a long
// session keeps growing until Reset.
type History struct {
	mu    sync.RWMutex
	turns []domain.Turn
	now   func() time.Time
}

func NewHistory() *History {
	return &History{now: time.Now}
}

// Append records a turn and returns it.
func (h *History) Append(role domain.Role, content string) domain.Turn {
	return h.append(domain.Turn{Role: role, Content: content})
}

// AppendError records a failed turn. It is shown to the user but never
// replayed to the model.
func (h *History) AppendError(content string) domain.Turn {
	return h.append(domain.Turn{Role: domain.RoleAssistant, Content: content, Error: true})
}

// AppendFailure records a user turn whose answer failed, followed by the
// rendered error. Both are display-only.
func (h *History) AppendFailure(input, message string) {
	h.append(
		domain.Turn{Role: domain.RoleUser, Content: input, Error: true},
		domain.Turn{Role: domain.RoleAssistant, Content: message, Error: true},
	)
}

func (h *History) append(turns ...domain.Turn) domain.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for i := range turns {
		turns[i].Timestamp = now
	}
	h.turns = append(h.turns, turns...)
	return turns[len(turns)-1]
}

// Turns returns a copy of all turns in order.
func (h *History) Turns() []domain.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
