// Package agent implements the grounded responder: a tool-using loop around a
// chat model whose only capability is searching the knowledge base.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/llm"
	"syllabiq/internal/metrics"
	"syllabiq/internal/retrieval"
)

// Config controls the responder.
type Config struct {
	Name           string
	Curriculum     string
	Instruction    string
	DeclineMessage string
	MaxSteps       int
	Temperature    float64
}

// ConfigFrom maps application settings onto a responder Config.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		Name:           cfg.Agent.Name,
		Curriculum:     cfg.Agent.Curriculum,
		Instruction:    cfg.Agent.Instruction,
		DeclineMessage: cfg.Agent.DeclineMessage,
		MaxSteps:       cfg.Agent.MaxSteps,
		Temperature:    cfg.AI.Temperature,
	}
}

// Search records one knowledge base lookup made during a turn.
type Search struct {
	Query string
	Found bool
}

// Result is the outcome of a completed turn.
type Result struct {
	Answer   string
	Searches []Search
	// Declined is set when every search came back empty and the answer was
	// replaced by the decline message.
	Declined bool
	Steps    int
}

type Agent struct {
	model    llm.Model
	searcher Searcher
	cfg      Config
	system   string
	tools    []llm.ToolDefinition
	metrics  *metrics.Recorder
}

type Option func(*Agent)

// WithMetrics records turn, search and model instruments.
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Agent) { a.metrics = r }
}

func New(model llm.Model, searcher Searcher, cfg Config, opts ...Option) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 6
	}
	if cfg.DeclineMessage == "" {
		cfg.DeclineMessage = "I'm sorry, but I couldn't find anything about that in the course material, so I can't answer it."
	}
	a := &Agent{
		model:    model,
		searcher: searcher,
		cfg:      cfg,
		system:   systemPrompt(cfg),
		tools:    []llm.ToolDefinition{searchDefinition(cfg.Curriculum)},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Respond runs one user turn to completion. history holds the prior turns
// (error turns are skipped). When onDelta is non-nil the model is streamed;
// once a search has found context, text is delivered as it arrives, and
// before that a step's text is delivered only when it is the final answer.
// The concatenated deltas always equal Result.Answer. On error or
// cancellation nothing is returned; any streamed text should be discarded by
// the caller.
func (a *Agent) Respond(ctx context.Context, history []domain.Turn, input string, onDelta func(string)) (*Result, error) {
	start := time.Now()
	res, err := a.respond(ctx, history, input, onDelta)
	outcome := "answered"
	switch {
	case err != nil:
		outcome = "error"
	case res.Declined:
		outcome = "declined"
	}
	a.metrics.RecordTurn(ctx, outcome, time.Since(start))
	return res, err
}

func (a *Agent) respond(ctx context.Context, history []domain.Turn, input string, onDelta func(string)) (*Result, error) {
	state := StateReceived
	a.enter(state)
	if strings.TrimSpace(input) == "" {
		return nil, domain.ErrEmptyQuery
	}

	messages := append(historyMessages(history), llm.Message{Role: llm.RoleUser, Content: input})
	res := &Result{}
	// shown collects the step text the caller sees, in order. It becomes the
	// answer unless the turn is declined.
	var shown strings.Builder

	for {
		if res.Steps >= a.cfg.MaxSteps {
			return nil, fmt.Errorf("%w: %d model steps without a final answer", domain.ErrTooManySteps, res.Steps)
		}
		state = StateDeciding
		a.enter(state)

		// Until a search has found context the turn may still be declined, so
		// text is held back until the step turns out to be the final one.
		live := grounded(res.Searches)
		var deltas func(string)
		if onDelta != nil && live {
			deltas = onDelta
		}
		resp, err := a.call(ctx, &llm.Request{
			System:      a.system,
			Messages:    messages,
			Tools:       a.tools,
			Temperature: a.cfg.Temperature,
		}, onDelta != nil, deltas)
		if err != nil {
			return nil, err
		}
		res.Steps++

		if len(resp.ToolCalls) == 0 {
			state = StateComposing
			a.enter(state)
			if !live && !ungrounded(res.Searches) && onDelta != nil && resp.Text != "" {
				onDelta(resp.Text)
			}
			shown.WriteString(resp.Text)
			break
		}
		if live {
			shown.WriteString(resp.Text)
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			state = StateToolInvoked
			a.enter(state, "tool", call.Name)
			output, err := a.invoke(ctx, call, res)
			if err != nil {
				return nil, err
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	answer := shown.String()
	if ungrounded(res.Searches) {
		slog.Info("no context retrieved, declining", "searches", len(res.Searches))
		answer = a.cfg.DeclineMessage
		res.Declined = true
		if onDelta != nil {
			onDelta(answer)
		}
	}
	res.Answer = answer
	a.enter(StateDone, "steps", res.Steps)
	return res, nil
}

func (a *Agent) call(ctx context.Context, req *llm.Request, stream bool, onDelta func(string)) (*llm.Response, error) {
	start := time.Now()
	var (
		resp *llm.Response
		err  error
	)
	if stream {
		if onDelta == nil {
			onDelta = func(string) {}
		}
		resp, err = a.model.Stream(ctx, req, onDelta)
	} else {
		resp, err = a.model.Generate(ctx, req)
	}
	a.metrics.RecordLLMCall(ctx, a.model.Name(), time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, nil
}

// invoke executes one tool call. Bad arguments and unknown tools are reported
// back to the model; search failures abort the turn.
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall, res *Result) (string, error) {
	capability, ok := capabilityFor(call.Name)
	if !ok {
		slog.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q. The only available tool is %s.", call.Name, SearchToolName), nil
	}
	switch capability {
	case CapabilitySearch:
		query, err := parseSearchArgs(call.Arguments)
		if err != nil {
			return "Error: " + err.Error(), nil
		}
		start := time.Now()
		out, err := a.searcher.Context(ctx, query)
		if err != nil {
			return "", fmt.Errorf("knowledge base search failed: %w", err)
		}
		found := !retrieval.IsNoContext(out)
		a.metrics.RecordSearch(ctx, found, time.Since(start))
		res.Searches = append(res.Searches, Search{Query: query, Found: found})
		return out, nil
	}
	return "", fmt.Errorf("unhandled capability %d", capability)
}

func (a *Agent) enter(s State, args ...any) {
	slog.Debug("agent state", append([]any{"state", s.String()}, args...)...)
}

// grounded reports whether any search found context.
func grounded(searches []Search) bool {
	for _, s := range searches {
		if s.Found {
			return true
		}
	}
	return false
}

// ungrounded reports whether at least one search ran and none found context.
func ungrounded(searches []Search) bool {
	if len(searches) == 0 {
		return false
	}
	for _, s := range searches {
		if s.Found {
			return false
		}
	}
	return true
}

// historyMessages converts displayed turns into model messages. Error turns
// and system turns are display-only.
func historyMessages(turns []domain.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		if t.Error {
			continue
		}
		switch t.Role {
		case domain.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Content})
		case domain.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.Content})
		}
	}
	return out
}
