package docent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// mockProvider returns canned responses in order and records every request.
type mockProvider struct {
	mu        sync.Mutex
	name      string
	responses []ChatResponse
	errs      []error
	requests  []ChatRequest
	idx       int
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := m.idx
	m.idx++
	if i < len(m.errs) && m.errs[i] != nil {
		return ChatResponse{}, m.errs[i]
	}
	if i >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}, nil
	}
	return m.responses[i], nil
}

func (m *mockProvider) calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// stubTool is a single-function tool with a scripted result.
type stubTool struct {
	name   string
	fn     func(args json.RawMessage) (ToolResult, error)
	mu     sync.Mutex
	nCalls int
}

func (s *stubTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        s.name,
		Description: "stub",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}}
}

func (s *stubTool) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	s.mu.Lock()
	s.nCalls++
	s.mu.Unlock()
	if name != s.name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	if s.fn != nil {
		return s.fn(args)
	}
	return ToolResult{Content: "ok"}, nil
}

func (s *stubTool) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nCalls
}

// failingCheckpointer fails every operation.
type failingCheckpointer struct{}

func (failingCheckpointer) Save(context.Context, string, []byte) error {
	return fmt.Errorf("checkpoint backend down")
}
func (failingCheckpointer) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, fmt.Errorf("checkpoint backend down")
}
func (failingCheckpointer) Delete(context.Context, string) error {
	return fmt.Errorf("checkpoint backend down")
}

// toolCallResponse builds an assistant response requesting one tool call.
func toolCallResponse(id, name, args string) ChatResponse {
	return ChatResponse{ToolCalls: []ToolCall{{ID: id, Name: name, Args: json.RawMessage(args)}}}
}
