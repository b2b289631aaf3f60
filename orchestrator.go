package docent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	// defaultMaxIter caps a sub-agent's tool-calling iterations.
	defaultMaxIter = 10
	// defaultSummaryWindow is how many qualifying history messages the
	// summarize node feeds to the model.
	defaultSummaryWindow = 6
	// minSummaryMessages is the history size below which summarization is
	// skipped entirely.
	minSummaryMessages = 4
	// summaryTemperature is the relaxed sampling setting for summarization.
	summaryTemperature = 0.2

	// fallbackAnswer is recorded when a sub-agent produces no usable answer.
	fallbackAnswer = "Unable to generate an answer."
	// noAnswersReply is the turn's reply when no answer records reached
	// aggregation at all.
	noAnswersReply = "No answers were generated."
)

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer enables span emission around every workflow node.
func WithTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithCheckpointer sets the session state store. Defaults to an in-process
// MemoryCheckpointer.
func WithCheckpointer(cp Checkpointer) OrchestratorOption {
	return func(o *Orchestrator) {
		if cp != nil {
			o.checkpoints = cp
		}
	}
}

// WithMaxIter sets the maximum tool-calling iterations per sub-agent.
func WithMaxIter(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIter = n
		}
	}
}

// WithSummaryWindow sets how many qualifying history messages feed the
// running conversation summary.
func WithSummaryWindow(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.summaryWindow = n
		}
	}
}

// turn carries the mutable state of one Run/Resume invocation through the
// workflow nodes.
type turn struct {
	st    *sessionState
	col   *answerCollector
	input string
	// reply is set by the aggregate node and becomes the turn's result.
	reply string
	// clarifyPrompt is set by rewrite on the unclear branch and surfaced via
	// ErrAwaitingInput.
	clarifyPrompt string
}

type nodeFunc func(ctx context.Context, t *turn) (orchEvent, error)

// Orchestrator runs the per-turn question-answering workflow: summarize the
// conversation, rewrite the user message into sub-queries, fan out one
// retrieval sub-agent per sub-query, and aggregate their answers into one
// reply. Session state is checkpointed between turns and across the
// human_input suspension.
//
// An Orchestrator is safe for concurrent use across distinct session IDs.
// Concurrent turns on the same session ID race on the checkpoint.
type Orchestrator struct {
	provider      Provider
	registry      *ToolRegistry
	checkpoints   Checkpointer
	logger        *slog.Logger
	tracer        Tracer
	maxIter       int
	summaryWindow int

	// nodes is the dispatch table of the state machine. Transitions between
	// nodes are decided by nextState.
	nodes map[orchState]nodeFunc
}

// NewOrchestrator builds an orchestrator over the given LLM provider and
// retrieval tools.
func NewOrchestrator(provider Provider, tools []Tool, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:      provider,
		registry:      NewToolRegistry(),
		checkpoints:   NewMemoryCheckpointer(),
		logger:        nopLogger,
		maxIter:       defaultMaxIter,
		summaryWindow: defaultSummaryWindow,
	}
	for _, t := range tools {
		o.registry.Add(t)
	}
	for _, opt := range opts {
		opt(o)
	}
	o.nodes = map[orchState]nodeFunc{
		stateSummarize:  o.summarize,
		stateRewrite:    o.rewrite,
		stateHumanInput: o.humanInput,
		stateFanOut:     o.fanOut,
		stateAggregate:  o.aggregate,
	}
	return o
}

// Run executes one conversational turn for the given session and returns the
// user-visible reply.
//
// If the session was previously suspended awaiting clarification, userMsg is
// treated as that clarification and the turn continues from the suspension
// point (same as calling Resume). If the current turn suspends, Run returns
// ("", *ErrAwaitingInput) after durably checkpointing the session.
//
// Session state is persisted only on successful completion or suspension;
// on error the previous checkpoint is left unmodified so the next turn can
// retry.
func (o *Orchestrator) Run(ctx context.Context, sessionID, userMsg string) (string, error) {
	st, err := o.loadState(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if st.AwaitingInput {
		return o.resume(ctx, sessionID, st, userMsg)
	}
	st.appendMessage(UserMessage(userMsg))
	t := &turn{st: st, col: &answerCollector{}, input: userMsg}
	o.logger.Debug("turn start", "session_id", sessionID)
	return o.drive(ctx, sessionID, t, stateSummarize)
}

// Resume continues a session suspended at human_input, injecting the user's
// clarification into the rewrite stage. Returns an error if the session is
// not awaiting input.
func (o *Orchestrator) Resume(ctx context.Context, sessionID, input string) (string, error) {
	st, err := o.loadState(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !st.AwaitingInput {
		return "", fmt.Errorf("session %s is not awaiting input", sessionID)
	}
	return o.resume(ctx, sessionID, st, input)
}

func (o *Orchestrator) resume(ctx context.Context, sessionID string, st *sessionState, input string) (string, error) {
	st.AwaitingInput = false
	st.appendMessage(UserMessage(input))
	t := &turn{st: st, col: &answerCollector{}, input: input}
	o.logger.Debug("turn resumed", "session_id", sessionID)
	// Re-enter at human_input: the node is a no-op on resume and control
	// returns to rewrite with the clarification as the current input.
	return o.drive(ctx, sessionID, t, stateHumanInput)
}

// DeleteSession removes all persisted state for sessionID.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	return o.checkpoints.Delete(ctx, sessionID)
}

// drive walks the state machine from s until stateDone, checkpointing on
// completion or on suspension into human_input.
func (o *Orchestrator) drive(ctx context.Context, sessionID string, t *turn, s orchState) (string, error) {
	for s != stateDone {
		ev, err := o.runNode(ctx, sessionID, s, t)
		if err != nil {
			return "", fmt.Errorf("%s: %w", s, err)
		}
		next := nextState(s, ev)
		switch next {
		case stateInvalid:
			return "", fmt.Errorf("invalid transition from %s on event %d", s, ev)
		case stateHumanInput:
			// Suspend before entering the node: checkpoint durably, then
			// surface the pause to the caller.
			t.st.AwaitingInput = true
			if err := o.saveState(ctx, sessionID, t.st); err != nil {
				return "", fmt.Errorf("checkpoint before human_input: %w", err)
			}
			o.logger.Info("turn suspended awaiting input", "session_id", sessionID)
			return "", &ErrAwaitingInput{SessionID: sessionID, Prompt: t.clarifyPrompt}
		}
		s = next
	}

	t.st.Answers = t.col.Sorted()
	t.st.appendMessage(AssistantMessage(t.reply))
	if err := o.saveState(ctx, sessionID, t.st); err != nil {
		return "", fmt.Errorf("checkpoint turn: %w", err)
	}
	o.logger.Debug("turn done", "session_id", sessionID, "answers", len(t.st.Answers))
	return t.reply, nil
}

func (o *Orchestrator) runNode(ctx context.Context, sessionID string, s orchState, t *turn) (orchEvent, error) {
	node, ok := o.nodes[s]
	if !ok {
		return 0, fmt.Errorf("no node registered for state %s", s)
	}
	if o.tracer == nil {
		return node(ctx, t)
	}
	nodeCtx, span := o.tracer.Start(ctx, "orchestrator."+s.String(),
		StringAttr("session_id", sessionID))
	defer span.End()
	ev, err := node(nodeCtx, t)
	if err != nil {
		span.Error(err)
	}
	return ev, err
}

// --- Nodes ---

// summarize compresses recent conversation history into the running summary.
// It also clears the previous cycle's accumulated answers, so every turn's
// aggregation sees only records produced by its own fan-out.
func (o *Orchestrator) summarize(ctx context.Context, t *turn) (orchEvent, error) {
	t.col.Reset()
	t.st.Answers = nil

	if len(t.st.Messages) < minSummaryMessages {
		return eventAdvance, nil
	}
	// Exclude the latest user turn; it is the question being answered, not
	// history to compress.
	hist := t.st.Messages[:len(t.st.Messages)-1]
	var qualifying []ChatMessage
	for _, m := range hist {
		if (m.Role == "user" || m.Role == "assistant") && len(m.ToolCalls) == 0 && m.Content != "" {
			qualifying = append(qualifying, m)
		}
	}
	if len(qualifying) == 0 {
		return eventAdvance, nil
	}
	if len(qualifying) > o.summaryWindow {
		qualifying = qualifying[len(qualifying)-o.summaryWindow:]
	}

	var b strings.Builder
	for _, m := range qualifying {
		if m.Role == "user" {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	resp, err := o.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(summaryPrompt),
			UserMessage(b.String()),
		},
		Temperature: Temperature(summaryTemperature),
	})
	if err != nil {
		return 0, fmt.Errorf("summarize conversation: %w", err)
	}
	t.st.Summary = strings.TrimSpace(resp.Content)
	return eventAdvance, nil
}

// rewrite turns the latest user message into the cycle's sub-queries.
//
// Clarity classification is bypassed: every message is treated as a clear,
// retrievable query and becomes the sole sub-query. The unclear branch
// (eventUnclear plus t.clarifyPrompt) is retained as specified future
// behavior and exercised by tests through the transition function.
func (o *Orchestrator) rewrite(_ context.Context, t *turn) (orchEvent, error) {
	query := strings.TrimSpace(t.input)
	if query == "" {
		query = strings.TrimSpace(t.st.lastUserMessage())
	}
	t.st.OriginalQuery = query
	t.st.RewrittenQueries = []string{query}
	return eventAdvance, nil
}

// humanInput is reached only on resume; the suspension itself happens in
// drive before the node is entered. On resume it is a no-op returning
// control to rewrite.
func (o *Orchestrator) humanInput(_ context.Context, _ *turn) (orchEvent, error) {
	return eventResumed, nil
}

// fanOut dispatches one retrieval sub-agent per sub-query and blocks until
// every branch has completed. Branches are fully independent: each gets its
// own scratchpad and appends exactly one SubAnswer to the shared collector.
// Dispatched branches are never cancelled mid-flight; the barrier waits for
// all of them.
func (o *Orchestrator) fanOut(ctx context.Context, t *turn) (orchEvent, error) {
	var wg sync.WaitGroup
	for i, q := range t.st.RewrittenQueries {
		wg.Add(1)
		go func(idx int, question string) {
			defer wg.Done()
			t.col.Append(o.runSubAgent(ctx, idx, question))
		}(i, q)
	}
	wg.Wait()
	return eventAdvance, nil
}

// aggregate restores answer order by ordinal index, formats the evidence
// block, and asks the model for one synthesized reply to the original
// question.
func (o *Orchestrator) aggregate(ctx context.Context, t *turn) (orchEvent, error) {
	answers := t.col.Sorted()
	if len(answers) == 0 {
		t.reply = noAnswersReply
		return eventAdvance, nil
	}

	var b strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&b, "Answer %d:\n%s\n\n", a.Index+1, a.Answer)
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Original user question: %s\n\n", t.st.OriginalQuery)
	if t.st.Summary != "" {
		fmt.Fprintf(&user, "Conversation summary: %s\n\n", t.st.Summary)
	}
	user.WriteString("Retrieved answers:\n")
	user.WriteString(b.String())

	resp, err := o.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(aggregationPrompt),
			UserMessage(user.String()),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("synthesize answer: %w", err)
	}
	t.reply = strings.TrimSpace(resp.Content)
	if t.reply == "" {
		t.reply = fallbackAnswer
	}
	return eventAdvance, nil
}

// --- Checkpoint plumbing ---

func (o *Orchestrator) loadState(ctx context.Context, sessionID string) (*sessionState, error) {
	raw, ok, err := o.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	st := &sessionState{}
	if !ok {
		return st, nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return st, nil
}

func (o *Orchestrator) saveState(ctx context.Context, sessionID string, st *sessionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := o.checkpoints.Save(ctx, sessionID, raw); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}
