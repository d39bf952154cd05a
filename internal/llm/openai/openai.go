// Package openai adapts go-openai chat completions (OpenAI, Groq, Ollama) to llm.Model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"syllabiq/internal/domain"
	"syllabiq/internal/llm"
	"syllabiq/internal/provider"
)

type Model struct {
	name   string
	model  string
	client *goopenai.Client
}

var _ llm.Model = (*Model)(nil)

// New creates a chat model for an OpenAI-compatible provider.
func New(id provider.ID, baseURL string, timeoutSecs int) (*Model, error) {
	cfg, err := provider.OpenAIConfig(id.Provider, baseURL, timeoutSecs)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(id.String(), id.Model, cfg), nil
}

// NewWithConfig wraps an explicit go-openai configuration.
func NewWithConfig(name, model string, cfg goopenai.ClientConfig) *Model {
	return &Model{name: name, model: model, client: goopenai.NewClientWithConfig(cfg)}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	resp, err := m.client.CreateChatCompletion(ctx, m.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", provider.ClassifyOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", domain.ErrMalformedResponse)
	}
	msg := resp.Choices[0].Message
	out := &llm.Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (m *Model) Stream(ctx context.Context, req *llm.Request, onDelta func(string)) (*llm.Response, error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, m.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", provider.ClassifyOpenAIError(err))
	}
	defer stream.Close()

	var (
		text  strings.Builder
		calls = map[int]*llm.ToolCall{}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream failed: %w", provider.ClassifyOpenAIError(err))
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}
		// Tool calls arrive in fragments keyed by index; the name and id come
		// first and the arguments are concatenated across chunks.
		for i, tc := range delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &llm.ToolCall{}
				calls[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	out := &llm.Response{Text: text.String()}
	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		if calls[idx].Name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no name", domain.ErrMalformedResponse, idx)
		}
		out.ToolCalls = append(out.ToolCalls, *calls[idx])
	}
	return out, nil
}

func (m *Model) buildRequest(req *llm.Request, stream bool) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleTool:
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.Name,
				ToolCallID: msg.ToolCallID,
			})
		case llm.RoleAssistant:
			out := goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, goopenai.ToolCall{
					ID:   tc.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			messages = append(messages, out)
		default:
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	out := goopenai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
