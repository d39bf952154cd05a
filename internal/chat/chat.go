// Package chat is the line-oriented front end: one question per line, answers
// printed as they stream in.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"syllabiq/internal/agent"
	"syllabiq/internal/domain"
	"syllabiq/internal/session"
)

const prompt = "\nAsk a question (or 'quit'): "

// Responder answers one user turn given the conversation so far.
type Responder interface {
	Respond(ctx context.Context, history []domain.Turn, input string, onDelta func(string)) (*agent.Result, error)
}

// Info is printed in the banner.
type Info struct {
	Name  string
	Model string
	Store string
	Table string
}

type Shell struct {
	responder Responder
	info      Info
	in        io.Reader
	out       io.Writer
	stream    bool
	history   *session.History
}

func New(responder Responder, info Info, in io.Reader, out io.Writer, stream bool) *Shell {
	return &Shell{
		responder: responder,
		info:      info,
		in:        in,
		out:       out,
		stream:    stream,
		history:   session.NewHistory(),
	}
}

// History exposes the turns recorded so far.
func (s *Shell) History() *session.History { return s.history }

// Run reads questions until quit, EOF or cancellation while waiting for input.
// The first failed turn ends the loop and is returned.
func (s *Shell) Run(ctx context.Context) error {
	s.banner()
	lines, errc, stop := s.readLines()
	defer stop()
	for {
		fmt.Fprint(s.out, prompt)
		var (
			text string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case text, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(s.out)
			return <-errc
		}
		input := strings.TrimSpace(text)
		if isQuit(input) {
			return nil
		}
		if input == "" {
			continue
		}
		if err := s.turn(ctx, input); err != nil {
			return err
		}
	}
}

// readLines scans input in the background so a blocked read does not hold up
// cancellation.
func (s *Shell) readLines() (<-chan string, <-chan error, func()) {
	lines := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc, func() { close(done) }
}

func (s *Shell) turn(ctx context.Context, input string) error {
	fmt.Fprintln(s.out, "\nAgent Thinking...")
	var onDelta func(string)
	started := false
	if s.stream {
		onDelta = func(d string) {
			if !started {
				fmt.Fprintln(s.out, "\n🤖 AI Response:")
				started = true
			}
			fmt.Fprint(s.out, d)
		}
	}

	res, err := s.responder.Respond(ctx, s.history.Turns(), input, onDelta)
	if err != nil {
		if started {
			fmt.Fprintln(s.out)
		}
		return err
	}
	if started {
		fmt.Fprintln(s.out)
	} else {
		fmt.Fprintf(s.out, "\n🤖 AI Response:\n%s\n", res.Answer)
	}
	s.history.Append(domain.RoleUser, input)
	s.history.Append(domain.RoleAssistant, res.Answer)
	return nil
}

func (s *Shell) banner() {
	name := s.info.Name
	if name == "" {
		name = "SyllabiQ"
	}
	fmt.Fprintf(s.out, "--- %s Initialized ---\n", name)
	fmt.Fprintf(s.out, "Model: %s\n", s.info.Model)
	fmt.Fprintf(s.out, "Store: %s\n", s.info.Store)
	fmt.Fprintf(s.out, "Table: %s\n", s.info.Table)
}

func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "q", "quit":
		return true
	}
	return false
}
