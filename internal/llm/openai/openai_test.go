package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/domain"
	"syllabiq/internal/llm"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewWithConfig("groq:llama-3.1-8b-instant", "llama-3.1-8b-instant", cfg)
}

var searchTool = llm.ToolDefinition{
	Name:        "search_knowledge_base",
	Description: "Search the notes.",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	},
}

func TestModel_GenerateToolCall(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msgs := body["messages"].([]any)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Len(t, body["tools"], 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"tool_calls",
			"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function",
			"function":{"name":"search_knowledge_base","arguments":"{\"query\":\"tcp handshake\"}"}}]}}]}`))
	})

	resp, err := m.Generate(context.Background(), &llm.Request{
		System:   "be grounded",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "How does TCP connect?"}},
		Tools:    []llm.ToolDefinition{searchTool},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_knowledge_base", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"tcp handshake"}`, resp.ToolCalls[0].Arguments)
}

func TestModel_StreamTextAndFragmentedToolCall(t *testing.T) {
	chunks := []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"check."}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"search_knowledge_base","arguments":"{\"que"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"paging\"}"}}]}}]}`,
	}
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	resp, err := m.Stream(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "paging?"}},
	}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Let me ", "check."}, deltas)
	assert.Equal(t, "Let me check.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"paging"}`, resp.ToolCalls[0].Arguments)
}

func TestModel_Unauthorized(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := m.Generate(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestBuildRequest_ReplaysToolTurns(t *testing.T) {
	m := NewWithConfig("openai:gpt-4o-mini", "gpt-4o-mini", goopenai.DefaultConfig("k"))
	req := m.buildRequest(&llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "q"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search_knowledge_base", Arguments: `{"query":"q"}`}}},
			{Role: llm.RoleTool, ToolCallID: "c1", Name: "search_knowledge_base", Content: "Retrieved Context:\nContent: x"},
		},
	}, false)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, goopenai.ChatMessageRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "c1", req.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, goopenai.ChatMessageRoleTool, req.Messages[2].Role)
	assert.Equal(t, "c1", req.Messages[2].ToolCallID)
}
