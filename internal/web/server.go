// Package web serves the browser chat page. Every browser session gets its own
// history and its own store handle, released on reset, on expiry or at
// shutdown.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"syllabiq/internal/agent"
	"syllabiq/internal/domain"
	"syllabiq/internal/session"
)

const (
	cookieName = "syllabiq_session"
	// errorMark precedes a rendered error in a streamed answer so the page can
	// replace any partial text with it.
	errorMark = "\x1e"
)

//go:embed templates/index.html
var templates embed.FS

var pageTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

// Responder answers one user turn given the conversation so far.
type Responder interface {
	Respond(ctx context.Context, history []domain.Turn, input string, onDelta func(string)) (*agent.Result, error)
}

// Factory opens the store handle for a new session and returns the responder
// bound to it. The closer is called when the session is reset or the server
// shuts down.
type Factory func(ctx context.Context) (Responder, io.Closer, error)

type Options struct {
	Title      string
	Curriculum string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// SessionTTL is how long an idle session keeps its history and store
	// handle. Zero disables expiry.
	SessionTTL time.Duration
}

var errSessionClosed = errors.New("session closed")

type conversation struct {
	busy     sync.Mutex
	history  *session.History
	lastUsed time.Time // guarded by Server.mu

	mu        sync.Mutex
	responder Responder
	closer    io.Closer
	closed    bool
}

type Server struct {
	factory Factory
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*conversation
	closed   bool

	stop    chan struct{}
	stopped chan struct{}
}

func NewServer(factory Factory, opts Options) *Server {
	return newServer(factory, opts, time.Now)
}

func newServer(factory Factory, opts Options, now func() time.Time) *Server {
	if opts.Title == "" {
		opts.Title = "SyllabiQ"
	}
	s := &Server{
		factory:  factory,
		opts:     opts,
		now:      now,
		sessions: make(map[string]*conversation),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if opts.SessionTTL > 0 {
		go s.sweepLoop(sweepInterval(opts.SessionTTL))
	} else {
		close(s.stopped)
	}
	return s
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/", s.handlePage)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/reset", s.handleReset)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.Get("/metrics", s.opts.Metrics.ServeHTTP)
	}
	return r
}

// Close stops the sweeper and releases every session's store handle. Turns
// still in flight fail to open a new handle afterwards.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	convs := make([]*conversation, 0, len(s.sessions))
	for id, c := range s.sessions {
		convs = append(convs, c)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped

	var errs []error
	for _, c := range convs {
		errs = append(errs, c.retire())
	}
	return errors.Join(errs...)
}

func (s *Server) sweepLoop(interval time.Duration) {
	defer close(s.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep retires sessions idle for longer than the TTL. Sessions with a turn
// in flight are left for the next pass.
func (s *Server) sweep() {
	cutoff := s.now().Add(-s.opts.SessionTTL)
	var expired []*conversation
	s.mu.Lock()
	for id, c := range s.sessions {
		if !c.lastUsed.Before(cutoff) || !c.busy.TryLock() {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, c)
	}
	s.mu.Unlock()

	for _, c := range expired {
		if err := c.retire(); err != nil {
			slog.Warn("failed to close expired session store", "error", err)
		}
		c.busy.Unlock()
	}
	if len(expired) > 0 {
		slog.Debug("expired idle sessions", "count", len(expired))
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	conv := s.session(w, r)
	if conv == nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, map[string]any{
		"Title":      s.opts.Title,
		"Curriculum": s.opts.Curriculum,
		"Turns":      conv.history.Turns(),
		"ErrorMark":  errorMark,
	})
	if err != nil {
		slog.Error("failed to render page", "error", err)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	conv := s.lookup(r)
	if conv == nil {
		http.Error(w, "unknown or expired session, reload the page", http.StatusUnauthorized)
		return
	}
	if !conv.busy.TryLock() {
		http.Error(w, "a question is already being answered in this session", http.StatusConflict)
		return
	}
	defer conv.busy.Unlock()
	defer s.touch(conv)

	responder, err := conv.open(r.Context(), s.factory)
	if errors.Is(err, errSessionClosed) {
		http.Error(w, "unknown or expired session, reload the page", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)
	write := func(text string) {
		_, _ = io.WriteString(w, text)
		if flusher != nil {
			flusher.Flush()
		}
	}

	var res *agent.Result
	if err == nil {
		res, err = responder.Respond(r.Context(), conv.history.Turns(), message, write)
	}
	if err != nil {
		rendered := "⚠️ Error: " + err.Error()
		slog.Error("turn failed", "error", err)
		conv.history.AppendFailure(message, rendered)
		write(errorMark + rendered)
		return
	}
	conv.history.Append(domain.RoleUser, message)
	conv.history.Append(domain.RoleAssistant, res.Answer)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	conv := s.lookup(r)
	if conv == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer s.touch(conv)
	if !conv.busy.TryLock() {
		http.Error(w, "a question is still being answered in this session", http.StatusConflict)
		return
	}
	defer conv.busy.Unlock()
	if err := conv.release(); err != nil {
		slog.Warn("failed to close session store", "error", err)
	}
	conv.history.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// lookup returns the caller's session, or nil when the request carries no
// known session id.
func (s *Server) lookup(r *http.Request) *conversation {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.sessions[c.Value]
	if !ok {
		return nil
	}
	conv.lastUsed = s.now()
	return conv
}

// session returns the caller's session, minting a new one and setting the
// cookie when the request carries no known id. It returns nil once the server
// is closed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation {
	if conv := s.lookup(r); conv != nil {
		return conv
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	conv := &conversation{history: session.NewHistory(), lastUsed: s.now()}
	s.sessions[id] = conv
	slog.Debug("session created", "session", id)
	return conv
}

func (s *Server) touch(conv *conversation) {
	s.mu.Lock()
	conv.lastUsed = s.now()
	s.mu.Unlock()
}

// open acquires the session's store handle on first use.
func (c *conversation) open(ctx context.Context, factory Factory) (Responder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errSessionClosed
	}
	if c.responder != nil {
		return c.responder, nil
	}
	responder, closer, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	c.responder, c.closer = responder, closer
	return responder, nil
}

// retire releases the store handle and refuses any later open.
func (c *conversation) retire() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.release()
}

func (c *conversation) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	closer := c.closer
	c.responder, c.closer = nil, nil
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
