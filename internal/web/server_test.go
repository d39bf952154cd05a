package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/agent"
	"syllabiq/internal/domain"
)

type fakeResponder struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	started chan struct{}
	seen    [][]domain.Turn
}

func (f *fakeResponder) Respond(_ context.Context, history []domain.Turn, input string, onDelta func(string)) (*agent.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, history)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		onDelta("half an ans")
		return nil, f.err
	}
	answer := "Answer to: " + input
	onDelta("Answer ")
	onDelta("to: " + input)
	return &agent.Result{Answer: answer}, nil
}

type countingCloser struct{ closed int }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

type harness struct {
	server    *Server
	clock     *fakeClock
	handler   http.Handler
	responder *fakeResponder
	closers   []*countingCloser
	opened    int
}

func newHarness(r *fakeResponder) *harness {
	h := &harness{responder: r, clock: &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}}
	h.server = newServer(func(context.Context) (Responder, io.Closer, error) {
		h.opened++
		c := &countingCloser{}
		h.closers = append(h.closers, c)
		return h.responder, c, nil
	}, Options{
		Title:      "SyllabiQ",
		Curriculum: "KTU B.Tech CSE",
		Metrics:    http.NotFoundHandler(),
		SessionTTL: 30 * time.Minute,
	}, h.clock.Now)
	h.handler = h.server.Handler()
	return h
}

// newSession loads the page and returns the session cookie it set.
func (h *harness) newSession(t *testing.T) *http.Cookie {
	t.Helper()
	page := h.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, page.Code)
	return sessionCookie(t, page)
}

func (h *harness) do(method, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func ask(q string) url.Values { return url.Values{"message": {q}} }

func TestChat_StreamsAndKeepsHistory(t *testing.T) {
	h := newHarness(&fakeResponder{})
	page := h.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "<title>SyllabiQ</title>")
	cookie := sessionCookie(t, page)

	rec := h.do(http.MethodPost, "/api/chat", cookie, ask("What is TCP?"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Answer to: What is TCP?", rec.Body.String())
	assert.True(t, rec.Flushed)

	rec = h.do(http.MethodPost, "/api/chat", cookie, ask("How does it connect?"))
	assert.Equal(t, "Answer to: How does it connect?", rec.Body.String())
	require.Len(t, h.responder.seen, 2)
	assert.Len(t, h.responder.seen[1], 2)
	assert.Equal(t, 1, h.opened, "store handle is opened once per session")

	page = h.do(http.MethodGet, "/", cookie, nil)
	assert.Contains(t, page.Body.String(), "Answer to: What is TCP?")
	assert.Contains(t, page.Body.String(), "How does it connect?")
}

func TestChat_ErrorIsRenderedAndRecorded(t *testing.T) {
	h := newHarness(&fakeResponder{err: errors.New("connection refused")})
	cookie := h.newSession(t)
	rec := h.do(http.MethodPost, "/api/chat", cookie, ask("What is paging?"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Body.String(), errorMark+"⚠️ Error: connection refused"))

	page := h.do(http.MethodGet, "/", cookie, nil)
	assert.Contains(t, page.Body.String(), `class="turn error"`)
	assert.Contains(t, page.Body.String(), "⚠️ Error: connection refused")

	// The shell keeps accepting input and the failed exchange is flagged.
	h.responder.err = nil
	rec = h.do(http.MethodPost, "/api/chat", cookie, ask("What is paging?"))
	assert.Equal(t, "Answer to: What is paging?", rec.Body.String())
	require.Len(t, h.responder.seen[1], 2)
	assert.True(t, h.responder.seen[1][0].Error)
	assert.True(t, h.responder.seen[1][1].Error)
}

func TestChat_SessionsAreIsolated(t *testing.T) {
	h := newHarness(&fakeResponder{})
	a, b := h.newSession(t), h.newSession(t)
	assert.NotEqual(t, a.Value, b.Value)
	h.do(http.MethodPost, "/api/chat", a, ask("alpha"))
	h.do(http.MethodPost, "/api/chat", b, ask("beta"))
	assert.Equal(t, 2, h.opened)

	pageA := h.do(http.MethodGet, "/", a, nil).Body.String()
	assert.Contains(t, pageA, "alpha")
	assert.NotContains(t, pageA, "beta")
}

func TestChat_RejectsConcurrentTurn(t *testing.T) {
	r := &fakeResponder{block: make(chan struct{}), started: make(chan struct{})}
	h := newHarness(r)
	cookie := h.newSession(t)

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- h.do(http.MethodPost, "/api/chat", cookie, ask("first")) }()
	<-r.started

	second := h.do(http.MethodPost, "/api/chat", cookie, ask("second"))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/reset", cookie, nil).Code)

	close(r.block)
	first := <-done
	assert.Equal(t, "Answer to: first", first.Body.String())
}

func TestReset_ClosesStoreAndClearsHistory(t *testing.T) {
	h := newHarness(&fakeResponder{})
	cookie := h.newSession(t)
	h.do(http.MethodPost, "/api/chat", cookie, ask("What is TCP?"))

	rec := h.do(http.MethodPost, "/api/reset", cookie, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, h.closers, 1)
	assert.Equal(t, 1, h.closers[0].closed)
	assert.NotContains(t, h.do(http.MethodGet, "/", cookie, nil).Body.String(), "What is TCP?")

	// The next turn reopens a handle.
	h.do(http.MethodPost, "/api/chat", cookie, ask("again"))
	assert.Equal(t, 2, h.opened)
	require.NoError(t, h.server.Close())
	assert.Equal(t, 1, h.closers[1].closed)
}

func TestChat_RequiresMessage(t *testing.T) {
	h := newHarness(&fakeResponder{})
	rec := h.do(http.MethodPost, "/api/chat", nil, ask("   "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.opened)
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(&fakeResponder{})
	rec := h.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/metrics", nil, nil).Code)
}

func TestFactoryFailureIsRendered(t *testing.T) {
	s := NewServer(func(context.Context) (Responder, io.Closer, error) {
		return nil, nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}, Options{})
	defer s.Close()
	handler := s.Handler()

	page := httptest.NewRecorder()
	handler.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, page)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("message=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "⚠️ Error: dial tcp")
}

func TestChat_RequiresKnownSession(t *testing.T) {
	h := newHarness(&fakeResponder{})
	for i := 0; i < 5; i++ {
		rec := h.do(http.MethodPost, "/api/chat", nil, ask("What is TCP?"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	}
	forged := &http.Cookie{Name: cookieName, Value: "6f1b7c1e-4d0a-4c55-9a53-7f0f3c6d2e11"}
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/chat", forged, ask("hi")).Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/api/reset", nil, nil).Code)

	assert.Zero(t, h.opened)
	assert.Empty(t, h.server.sessions)
}

func TestSweep_ExpiresIdleSessions(t *testing.T) {
	h := newHarness(&fakeResponder{})
	idle := h.newSession(t)
	h.do(http.MethodPost, "/api/chat", idle, ask("What is TCP?"))
	require.Len(t, h.closers, 1)

	h.clock.Advance(20 * time.Minute)
	active := h.newSession(t)
	h.do(http.MethodPost, "/api/chat", active, ask("What is paging?"))

	h.clock.Advance(15 * time.Minute)
	h.server.sweep()
	assert.Equal(t, 1, h.closers[0].closed, "idle session store is closed")
	assert.Zero(t, h.closers[1].closed)
	assert.Len(t, h.server.sessions, 1)

	// The expired cookie no longer reaches a store; the page mints a new session.
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/chat", idle, ask("again")).Code)
	page := h.do(http.MethodGet, "/", idle, nil)
	assert.NotEqual(t, idle.Value, sessionCookie(t, page).Value)
	assert.NotContains(t, page.Body.String(), "What is TCP?")
	assert.Equal(t, 2, h.opened)
}

func TestSweep_SkipsSessionWithTurnInFlight(t *testing.T) {
	r := &fakeResponder{block: make(chan struct{}), started: make(chan struct{})}
	h := newHarness(r)
	cookie := h.newSession(t)

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- h.do(http.MethodPost, "/api/chat", cookie, ask("first")) }()
	<-r.started

	h.clock.Advance(time.Hour)
	h.server.sweep()
	assert.Len(t, h.server.sessions, 1)

	close(r.block)
	<-done
	assert.Zero(t, h.closers[0].closed)

	// Idle again once the turn has finished.
	h.clock.Advance(2 * time.Hour)
	h.server.sweep()
	assert.Equal(t, 1, h.closers[0].closed)
	assert.Empty(t, h.server.sessions)
}

func TestClose_RefusesLateOpen(t *testing.T) {
	h := newHarness(&fakeResponder{})
	cookie := h.newSession(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	conv := h.server.lookup(req)
	require.NotNil(t, conv)

	require.NoError(t, h.server.Close())
	_, err := conv.open(context.Background(), h.server.factory)
	assert.ErrorIs(t, err, errSessionClosed)
	assert.Zero(t, h.opened)

	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/chat", cookie, ask("late")).Code)
	require.NoError(t, h.server.Close())
}
