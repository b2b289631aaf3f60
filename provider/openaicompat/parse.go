package openaicompat

import (
	"encoding/json"

	"github.com/docent-ai/docent"
)

// ParseResponse converts an OpenAI-format ChatResponse to a docent
// ChatResponse, extracting content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (docent.ChatResponse, error) {
	var out docent.ChatResponse
	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}
	if resp.Usage != nil {
		out.Usage = docent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to docent ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid JSON is
// replaced with an empty object so the tool layer sees well-formed args.
func ParseToolCalls(tcs []ToolCallRequest) []docent.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]docent.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, docent.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
