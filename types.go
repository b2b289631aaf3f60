package docent

import "encoding/json"

// --- Domain types ---

// ParentSection is a large, context-preserving segment of a source document.
// Sized for LLM context windows; persisted in a ParentStore and fetched by
// the fetch_parent tool when a sub-agent needs more context than a fragment.
type ParentSection struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ChildFragment is a small, overlapping slice of a parent section's content,
// sized for retrieval index granularity. Metadata always carries the owning
// parent's ID under MetaParentID plus the inherited source metadata.
type ChildFragment struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
}

// Well-known metadata keys shared by the ingest pipeline, the index, and the
// retrieval tools.
const (
	MetaParentID = "parent_id"
	MetaSource   = "source"
)

// ParentID returns the owning parent section's ID, or "" if untagged.
func (f ChildFragment) ParentID() string { return f.Metadata[MetaParentID] }

// Source returns the source document name, or "" if untagged.
func (f ChildFragment) Source() string { return f.Metadata[MetaSource] }

// SubAnswer is the structured result of one retrieval sub-agent.
// Index is the sub-query's ordinal position at fan-out time, preserved so
// aggregation can restore question order regardless of completion order.
type SubAnswer struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	// Temperature overrides the provider's default sampling temperature for
	// this call when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
}

type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// Temperature returns a *float64 for ChatRequest.Temperature.
func Temperature(t float64) *float64 { return &t }
