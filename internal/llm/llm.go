// Package llm defines the provider-neutral chat model contract used by the agent.
package llm

import "context"

// Role of a message in a model conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool result back to the model.
	RoleTool Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	// Arguments is the raw JSON object produced by the model.
	Arguments string
	// Signature is an opaque provider token that must be echoed back with the call.
	Signature []byte
}

// Message is one entry of the working conversation.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	// ToolCallID and Name identify the call a RoleTool message answers.
	ToolCallID string
	Name       string
}

// ToolDefinition declares a callable function. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

// Response is a complete model step: text, tool calls or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Model is a chat completion backend.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream behaves like Generate but reports text deltas to onDelta as they arrive.
	Stream(ctx context.Context, req *Request, onDelta func(string)) (*Response, error)
}
