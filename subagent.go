package docent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// maxParallelDispatch bounds concurrent tool executions within one sub-agent
// iteration.
const maxParallelDispatch = 8

// runSubAgent answers one sub-query with a bounded tool-calling loop. Each
// branch starts from an empty scratchpad so sibling branches cannot
// influence each other. It never returns an error: model failures and
// exhausted iterations both degrade to the fallback answer.
func (o *Orchestrator) runSubAgent(ctx context.Context, idx int, question string) SubAnswer {
	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "orchestrator.process_question",
			IntAttr("question_index", idx))
		defer span.End()
	}

	defs := o.registry.AllDefinitions()
	scratch := []ChatMessage{
		SystemMessage(subAgentPrompt),
		UserMessage(question),
	}

	for iter := 0; iter < o.maxIter; iter++ {
		resp, err := o.provider.Chat(ctx, ChatRequest{Messages: scratch, Tools: defs})
		if err != nil {
			o.logger.Warn("sub-agent model call failed",
				"question_index", idx, "iteration", iter, "error", err)
			break
		}
		scratch = append(scratch, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			break
		}
		results := o.dispatchTools(ctx, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			scratch = append(scratch, ToolResultMessage(tc.ID, results[i]))
		}
	}

	return SubAnswer{Index: idx, Question: question, Answer: extractAnswer(scratch)}
}

// extractAnswer scans the scratchpad in reverse for the most recent
// assistant message with non-empty content and no pending tool request.
func extractAnswer(scratch []ChatMessage) string {
	for i := len(scratch) - 1; i >= 0; i-- {
		m := scratch[i]
		if m.Role == "assistant" && m.Content != "" && len(m.ToolCalls) == 0 {
			return m.Content
		}
	}
	return fallbackAnswer
}

// dispatchTools executes all tool calls of one iteration, returning results
// in call order. A single call runs inline; multiple calls run concurrently
// under a bounded group.
func (o *Orchestrator) dispatchTools(ctx context.Context, calls []ToolCall) []string {
	out := make([]string, len(calls))
	if len(calls) == 1 {
		out[0] = o.execTool(ctx, calls[0])
		return out
	}
	g := new(errgroup.Group)
	g.SetLimit(maxParallelDispatch)
	for i, tc := range calls {
		g.Go(func() error {
			out[i] = o.execTool(ctx, tc)
			return nil
		})
	}
	g.Wait()
	return out
}

// execTool runs one tool call and folds every failure mode, including
// panics, into a textual result the model can reason about.
func (o *Orchestrator) execTool(ctx context.Context, tc ToolCall) (out string) {
	defer func() {
		if p := recover(); p != nil {
			out = fmt.Sprintf("error: tool %q panic: %v", tc.Name, p)
		}
	}()
	res, err := o.registry.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return "error: " + err.Error()
	}
	if res.Error != "" {
		return "error: " + res.Error
	}
	return res.Content
}
