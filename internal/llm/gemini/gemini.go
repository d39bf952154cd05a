// Package gemini adapts the Gemini API (google.golang.org/genai) to llm.Model.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"syllabiq/internal/domain"
	"syllabiq/internal/llm"
	"syllabiq/internal/provider"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

type Model struct {
	model  string
	client *provider.GeminiClient
}

var _ llm.Model = (*Model)(nil)

func New(model string, client *provider.GeminiClient) *Model {
	return &Model{model: model, client: client}
}

func (m *Model) Name() string { return "gemini:" + m.model }

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	client, err := m.client.Get(ctx)
	if err != nil {
		return nil, err
	}
	contents, err := buildContents(req.Messages)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(ctx, m.model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", provider.ClassifyGeminiError(err))
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response from Gemini", domain.ErrMalformedResponse)
	}
	out := &llm.Response{}
	collect(out, resp.Candidates[0], nil)
	return out, nil
}

func (m *Model) Stream(ctx context.Context, req *llm.Request, onDelta func(string)) (*llm.Response, error) {
	client, err := m.client.Get(ctx)
	if err != nil {
		return nil, err
	}
	contents, err := buildContents(req.Messages)
	if err != nil {
		return nil, err
	}
	out := &llm.Response{}
	for chunk, err := range client.Models.GenerateContentStream(ctx, m.model, contents, buildConfig(req)) {
		if err != nil {
			return nil, fmt.Errorf("Gemini streaming error: %w", provider.ClassifyGeminiError(err))
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		collect(out, chunk.Candidates[0], func(delta string) {
			if onDelta != nil {
				onDelta(delta)
			}
		})
		out.ToolCalls = dedupe(out.ToolCalls)
	}
	return out, nil
}

// collect appends the candidate's text and function calls to out.
func collect(out *llm.Response, cand *genai.Candidate, onDelta func(string)) {
	if cand == nil || cand.Content == nil {
		return
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" && !part.Thought {
			out.Text += part.Text
			if onDelta != nil {
				onDelta(part.Text)
			}
		}
		if fc := part.FunctionCall; fc != nil {
			args, _ := json.Marshal(fc.Args)
			id := fc.ID
			if id == "" {
				id = stableCallID(fc.Name, args)
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        id,
				Name:      fc.Name,
				Arguments: string(args),
				Signature: part.ThoughtSignature,
			})
		}
	}
}

// dedupe drops calls whose id was already emitted earlier in the stream.
func dedupe(calls []llm.ToolCall) []llm.ToolCall {
	out := calls[:0]
	seen := map[string]bool{}
	for _, c := range calls {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func stableCallID(name string, args []byte) string {
	sum := sha256.Sum256(append([]byte(name+":"), args...))
	return fmt.Sprintf("call-%x", sum[:12])
}

func buildContents(messages []llm.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, fmt.Errorf("tool call %s has invalid arguments: %w", tc.ID, err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
					ThoughtSignature: tc.Signature,
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}
		case llm.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.Name,
				Response: map[string]any{"result": msg.Content},
			}}
			// Consecutive tool results belong in one user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == roleUser && isFunctionResponse(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})
			}
		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	return contents, nil
}

func isFunctionResponse(c *genai.Content) bool {
	return len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

func buildConfig(req *llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// toSchema converts a JSON schema map into a genai.Schema.
func toSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if p, ok := prop.(map[string]any); ok {
				s.Properties[name] = toSchema(p)
			}
		}
	}
	switch req := schema["required"].(type) {
	case []string:
		s.Required = append(s.Required, req...)
	case []any:
		for _, r := range req {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	return s
}
