package docent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestRunSingleTurnNoTools(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{Content: "sub answer"},
		{Content: "final answer"},
	}}
	o := NewOrchestrator(provider, nil)

	reply, err := o.Run(context.Background(), "s1", "what is a parent section?")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "final answer" {
		t.Fatalf("reply = %q, want %q", reply, "final answer")
	}

	// One message in history means summarization is skipped, so the first
	// call is the sub-agent and the second is synthesis.
	calls := provider.calls()
	if len(calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(calls))
	}
	if calls[0].Messages[0].Content != subAgentPrompt {
		t.Errorf("first call system prompt is not the sub-agent prompt")
	}
	if calls[1].Messages[0].Content != aggregationPrompt {
		t.Errorf("second call system prompt is not the aggregation prompt")
	}
	if !strings.Contains(calls[1].Messages[1].Content, "Answer 1:\nsub answer") {
		t.Errorf("synthesis input missing ordinal answer block: %q", calls[1].Messages[1].Content)
	}
}

func TestRunPersistsState(t *testing.T) {
	cp := NewMemoryCheckpointer()
	provider := &mockProvider{responses: []ChatResponse{
		{Content: "sub answer"},
		{Content: "final answer"},
	}}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	if _, err := o.Run(context.Background(), "s1", "hello"); err != nil {
		t.Fatal(err)
	}

	raw, ok, err := cp.Load(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("checkpoint missing after turn: ok=%v err=%v", ok, err)
	}
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 2 {
		t.Fatalf("persisted messages = %d, want user+assistant", len(st.Messages))
	}
	if st.Messages[1].Role != "assistant" || st.Messages[1].Content != "final answer" {
		t.Errorf("persisted assistant turn = %+v", st.Messages[1])
	}
	if len(st.Answers) != 1 || st.Answers[0].Index != 0 {
		t.Errorf("persisted answers = %+v", st.Answers)
	}
	if st.OriginalQuery != "hello" || len(st.RewrittenQueries) != 1 {
		t.Errorf("persisted queries = %q / %v", st.OriginalQuery, st.RewrittenQueries)
	}
}

func TestRunWithToolCalls(t *testing.T) {
	tool := &stubTool{name: "search_fragments", fn: func(json.RawMessage) (ToolResult, error) {
		return ToolResult{Content: "Parent ID: doc_parent_0\nContent: some evidence"}, nil
	}}
	provider := &mockProvider{responses: []ChatResponse{
		toolCallResponse("c1", "search_fragments", `{"query":"evidence"}`),
		{Content: "answer backed by evidence"},
		{Content: "final"},
	}}
	o := NewOrchestrator(provider, []Tool{tool})

	reply, err := o.Run(context.Background(), "s1", "question")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "final" {
		t.Fatalf("reply = %q", reply)
	}
	if tool.callCount() != 1 {
		t.Fatalf("tool calls = %d, want 1", tool.callCount())
	}

	// The second sub-agent iteration must see the tool result message.
	calls := provider.calls()
	second := calls[1].Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Fatalf("scratchpad tail = %+v, want tool result for c1", last)
	}
	if !strings.Contains(last.Content, "some evidence") {
		t.Errorf("tool result content = %q", last.Content)
	}
}

func TestSummarizeRunsOnLongHistory(t *testing.T) {
	cp := NewMemoryCheckpointer()
	seed := sessionState{Messages: []ChatMessage{
		UserMessage("q1"),
		AssistantMessage("a1"),
		UserMessage("q2"),
		AssistantMessage("a2"),
	}}
	raw, _ := json.Marshal(seed)
	if err := cp.Save(context.Background(), "s1", raw); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{responses: []ChatResponse{
		{Content: "running summary"},
		{Content: "sub answer"},
		{Content: "final"},
	}}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	if _, err := o.Run(context.Background(), "s1", "q3"); err != nil {
		t.Fatal(err)
	}

	calls := provider.calls()
	if len(calls) != 3 {
		t.Fatalf("provider calls = %d, want summarize+subagent+aggregate", len(calls))
	}
	sum := calls[0]
	if sum.Messages[0].Content != summaryPrompt {
		t.Errorf("first call is not summarization")
	}
	if sum.Temperature == nil || *sum.Temperature != summaryTemperature {
		t.Errorf("summarize temperature = %v, want %v", sum.Temperature, summaryTemperature)
	}
	// The latest user turn is excluded from the summarized transcript.
	if strings.Contains(sum.Messages[1].Content, "q3") {
		t.Errorf("summary input contains the current question: %q", sum.Messages[1].Content)
	}
	if !strings.Contains(sum.Messages[1].Content, "User: q1") {
		t.Errorf("summary input missing history: %q", sum.Messages[1].Content)
	}
	// The synthesis call carries the fresh summary.
	if !strings.Contains(calls[2].Messages[1].Content, "running summary") {
		t.Errorf("synthesis input missing summary: %q", calls[2].Messages[1].Content)
	}
}

func TestSummarizeSkippedOnShortHistory(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{Content: "sub answer"},
		{Content: "final"},
	}}
	o := NewOrchestrator(provider, nil)

	if _, err := o.Run(context.Background(), "s1", "first question"); err != nil {
		t.Fatal(err)
	}
	if calls := provider.calls(); len(calls) != 2 {
		t.Fatalf("provider calls = %d, want 2 (no summarization)", len(calls))
	}
}

func TestRunClearsPreviousCycleAnswers(t *testing.T) {
	cp := NewMemoryCheckpointer()
	seed := sessionState{
		Messages: []ChatMessage{UserMessage("old"), AssistantMessage("old reply")},
		Answers:  []SubAnswer{{Index: 0, Question: "old", Answer: "stale"}},
	}
	raw, _ := json.Marshal(seed)
	if err := cp.Save(context.Background(), "s1", raw); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{responses: []ChatResponse{
		{Content: "fresh sub answer"},
		{Content: "final"},
	}}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	if _, err := o.Run(context.Background(), "s1", "new question"); err != nil {
		t.Fatal(err)
	}

	raw, _, _ = cp.Load(context.Background(), "s1")
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Answers) != 1 || st.Answers[0].Answer != "fresh sub answer" {
		t.Fatalf("answers after new cycle = %+v, want only the fresh record", st.Answers)
	}
	// Synthesis must never see the stale record.
	for _, c := range provider.calls() {
		for _, m := range c.Messages {
			if strings.Contains(m.Content, "stale") {
				t.Fatalf("stale answer leaked into prompt: %q", m.Content)
			}
		}
	}
}

func TestFanOutRestoresOrdinalOrder(t *testing.T) {
	// Drive the fan-out node directly with three sub-queries; answers land
	// in completion order but aggregation must see ordinal order.
	provider := &mockProvider{responses: []ChatResponse{
		{Content: "answer for one of the questions"},
		{Content: "answer for one of the questions"},
		{Content: "answer for one of the questions"},
	}}
	o := NewOrchestrator(provider, nil)

	tr := &turn{
		st: &sessionState{
			OriginalQuery:    "multi",
			RewrittenQueries: []string{"qa", "qb", "qc"},
		},
		col: &answerCollector{},
	}
	if _, err := o.fanOut(context.Background(), tr); err != nil {
		t.Fatal(err)
	}

	answers := tr.col.Sorted()
	if len(answers) != 3 {
		t.Fatalf("answers = %d, want 3", len(answers))
	}
	for i, a := range answers {
		if a.Index != i {
			t.Errorf("answers[%d].Index = %d", i, a.Index)
		}
	}
	wantQ := []string{"qa", "qb", "qc"}
	for i, a := range answers {
		if a.Question != wantQ[i] {
			t.Errorf("answers[%d].Question = %q, want %q", i, a.Question, wantQ[i])
		}
	}
}

func TestAggregateFormatsOrdinalBlock(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{{Content: "synth"}}}
	o := NewOrchestrator(provider, nil)

	tr := &turn{st: &sessionState{OriginalQuery: "q"}, col: &answerCollector{}}
	// Out-of-order completion.
	tr.col.Append(SubAnswer{Index: 2, Question: "q3", Answer: "third"})
	tr.col.Append(SubAnswer{Index: 0, Question: "q1", Answer: "first"})
	tr.col.Append(SubAnswer{Index: 1, Question: "q2", Answer: "second"})

	if _, err := o.aggregate(context.Background(), tr); err != nil {
		t.Fatal(err)
	}

	input := provider.calls()[0].Messages[1].Content
	i1 := strings.Index(input, "Answer 1:\nfirst")
	i2 := strings.Index(input, "Answer 2:\nsecond")
	i3 := strings.Index(input, "Answer 3:\nthird")
	if i1 < 0 || i2 < 0 || i3 < 0 || !(i1 < i2 && i2 < i3) {
		t.Fatalf("evidence block not in ordinal order:\n%s", input)
	}
}

func TestAggregateNoAnswers(t *testing.T) {
	provider := &mockProvider{}
	o := NewOrchestrator(provider, nil)

	tr := &turn{st: &sessionState{}, col: &answerCollector{}}
	if _, err := o.aggregate(context.Background(), tr); err != nil {
		t.Fatal(err)
	}
	if tr.reply != noAnswersReply {
		t.Fatalf("reply = %q, want %q", tr.reply, noAnswersReply)
	}
	if len(provider.calls()) != 0 {
		t.Fatalf("synthesis called with no answers")
	}
}

func TestRunErrorLeavesStateUnmodified(t *testing.T) {
	cp := NewMemoryCheckpointer()
	seed := sessionState{Messages: []ChatMessage{UserMessage("old"), AssistantMessage("reply")}}
	raw, _ := json.Marshal(seed)
	if err := cp.Save(context.Background(), "s1", raw); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{
		responses: []ChatResponse{{Content: "sub answer"}},
		errs:      []error{nil, fmt.Errorf("model unavailable")},
	}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	_, err := o.Run(context.Background(), "s1", "new question")
	if err == nil {
		t.Fatal("want error from failed synthesis")
	}
	if !strings.Contains(err.Error(), "aggregate") {
		t.Errorf("error = %v, want aggregate wrap", err)
	}

	// The previous checkpoint survives untouched for retry.
	got, _, _ := cp.Load(context.Background(), "s1")
	var st sessionState
	if err := json.Unmarshal(got, &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 2 || st.Messages[0].Content != "old" {
		t.Fatalf("state modified by failed turn: %+v", st.Messages)
	}
}

func TestRunResumesAwaitingSession(t *testing.T) {
	cp := NewMemoryCheckpointer()
	seed := sessionState{
		Messages:      []ChatMessage{UserMessage("vague question")},
		AwaitingInput: true,
	}
	raw, _ := json.Marshal(seed)
	if err := cp.Save(context.Background(), "s1", raw); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{responses: []ChatResponse{
		{Content: "sub answer"},
		{Content: "final"},
	}}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	reply, err := o.Run(context.Background(), "s1", "the clarified question")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "final" {
		t.Fatalf("reply = %q", reply)
	}

	raw, _, _ = cp.Load(context.Background(), "s1")
	var st sessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if st.AwaitingInput {
		t.Fatal("session still awaiting input after resume")
	}
	if st.OriginalQuery != "the clarified question" {
		t.Fatalf("rewrite did not use the injected input: %q", st.OriginalQuery)
	}
}

func TestResumeRejectsActiveSession(t *testing.T) {
	o := NewOrchestrator(&mockProvider{}, nil)
	if _, err := o.Resume(context.Background(), "s1", "input"); err == nil {
		t.Fatal("want error resuming a session that is not awaiting input")
	}
}

func TestRunCheckpointerFailure(t *testing.T) {
	o := NewOrchestrator(&mockProvider{}, nil, WithCheckpointer(failingCheckpointer{}))
	if _, err := o.Run(context.Background(), "s1", "q"); err == nil {
		t.Fatal("want error when checkpoint load fails")
	}
}

func TestDeleteSession(t *testing.T) {
	cp := NewMemoryCheckpointer()
	provider := &mockProvider{responses: []ChatResponse{
		{Content: "sub"}, {Content: "final"},
	}}
	o := NewOrchestrator(provider, nil, WithCheckpointer(cp))

	if _, err := o.Run(context.Background(), "s1", "q"); err != nil {
		t.Fatal(err)
	}
	if err := o.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cp.Load(context.Background(), "s1"); ok {
		t.Fatal("checkpoint still present after delete")
	}
}
