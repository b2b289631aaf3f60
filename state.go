package docent

import (
	"sort"
	"sync"
)

// --- Orchestrator state machine ---

// orchState enumerates the nodes of the per-turn workflow. The graph is
// fixed, so it is encoded as an explicit state type plus a transition
// function rather than a generic graph engine.
type orchState int

const (
	stateSummarize orchState = iota
	stateRewrite
	stateHumanInput
	stateFanOut
	stateAggregate
	stateDone
	stateInvalid
)

func (s orchState) String() string {
	switch s {
	case stateSummarize:
		return "summarize"
	case stateRewrite:
		return "rewrite"
	case stateHumanInput:
		return "human_input"
	case stateFanOut:
		return "process_question"
	case stateAggregate:
		return "aggregate"
	case stateDone:
		return "done"
	}
	return "invalid"
}

// orchEvent is the outcome a node reports to the transition function.
type orchEvent int

const (
	// eventAdvance moves to the next node on the main path.
	eventAdvance orchEvent = iota
	// eventUnclear is emitted by rewrite when the query needs clarification.
	eventUnclear
	// eventResumed is emitted by human_input once external input arrived.
	eventResumed
)

// nextState is the transition function of the workflow:
//
//	summarize → rewrite → (human_input ⇄ rewrite | process_question) → aggregate → done
//
// The human_input branch is reachable only when rewrite judges the query
// unclear; the current rewrite implementation always judges it clear, but
// the branch is kept as specified future behavior.
func nextState(s orchState, ev orchEvent) orchState {
	switch s {
	case stateSummarize:
		return stateRewrite
	case stateRewrite:
		if ev == eventUnclear {
			return stateHumanInput
		}
		return stateFanOut
	case stateHumanInput:
		if ev == eventResumed {
			return stateRewrite
		}
		return stateInvalid
	case stateFanOut:
		return stateAggregate
	case stateAggregate:
		return stateDone
	}
	return stateInvalid
}

// --- Per-session state ---

// maxHistoryMessages caps the accumulated message history carried in the
// checkpoint. Oldest turns fall off; the running summary covers them.
const maxHistoryMessages = 40

// sessionState is the checkpointed conversation state for one session
// identifier. It is serialized as JSON by the orchestrator and handed to the
// Checkpointer, so every field must round-trip through encoding/json.
type sessionState struct {
	// Messages is the accumulated user/assistant history, append-only in
	// turn order, trimmed to maxHistoryMessages.
	Messages []ChatMessage `json:"messages"`
	// Summary is the latest running conversation summary.
	Summary string `json:"summary"`
	// OriginalQuery is the clarified user question of the current cycle.
	OriginalQuery string `json:"original_query"`
	// RewrittenQueries are the sub-queries derived from OriginalQuery.
	RewrittenQueries []string `json:"rewritten_queries"`
	// Answers accumulates one SubAnswer per completed fan-out branch.
	Answers []SubAnswer `json:"answers"`
	// AwaitingInput marks a session suspended before human_input. The next
	// submission is treated as the clarification and re-enters at rewrite.
	AwaitingInput bool `json:"awaiting_input"`
}

// appendMessage appends to the history, dropping the oldest entries once the
// cap is exceeded.
func (st *sessionState) appendMessage(msg ChatMessage) {
	st.Messages = append(st.Messages, msg)
	if n := len(st.Messages); n > maxHistoryMessages {
		st.Messages = st.Messages[n-maxHistoryMessages:]
	}
}

// lastUserMessage returns the most recent user turn, or "" if none exists.
func (st *sessionState) lastUserMessage() string {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == "user" {
			return st.Messages[i].Content
		}
	}
	return ""
}

// --- Answer accumulation ---

// answerCollector is the one piece of state written by concurrent fan-out
// branches. Writers append through a mutex so parallel completions compose
// instead of overwriting each other; Reset clears the previous cycle's
// answers when a new summarization cycle begins.
type answerCollector struct {
	mu      sync.Mutex
	answers []SubAnswer
}

// Reset discards all accumulated answers. Called exactly once per cycle, at
// the start of summarize, so stale records never reach aggregation.
func (c *answerCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = nil
}

// Append adds one branch's answer.
func (c *answerCollector) Append(ans SubAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, ans)
}

// Sorted returns a copy of the accumulated answers restored to original
// question order by ordinal index, independent of completion order.
func (c *answerCollector) Sorted() []SubAnswer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SubAnswer, len(c.answers))
	copy(out, c.answers)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
