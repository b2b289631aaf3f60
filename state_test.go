package docent

import (
	"fmt"
	"sync"
	"testing"
)

func TestNextStateMainPath(t *testing.T) {
	steps := []struct {
		from orchState
		ev   orchEvent
		want orchState
	}{
		{stateSummarize, eventAdvance, stateRewrite},
		{stateRewrite, eventAdvance, stateFanOut},
		{stateFanOut, eventAdvance, stateAggregate},
		{stateAggregate, eventAdvance, stateDone},
	}
	for _, s := range steps {
		if got := nextState(s.from, s.ev); got != s.want {
			t.Errorf("nextState(%s) = %s, want %s", s.from, got, s.want)
		}
	}
}

func TestNextStateClarificationBranch(t *testing.T) {
	if got := nextState(stateRewrite, eventUnclear); got != stateHumanInput {
		t.Fatalf("unclear rewrite = %s, want %s", got, stateHumanInput)
	}
	if got := nextState(stateHumanInput, eventResumed); got != stateRewrite {
		t.Fatalf("resumed human_input = %s, want %s", got, stateRewrite)
	}
	if got := nextState(stateHumanInput, eventAdvance); got != stateInvalid {
		t.Fatalf("advance from human_input = %s, want invalid", got)
	}
	if got := nextState(stateDone, eventAdvance); got != stateInvalid {
		t.Fatalf("advance from done = %s, want invalid", got)
	}
}

func TestAnswerCollectorConcurrentAppend(t *testing.T) {
	var col answerCollector
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			col.Append(SubAnswer{Index: i, Answer: fmt.Sprintf("a%d", i)})
		}(i)
	}
	wg.Wait()

	got := col.Sorted()
	if len(got) != n {
		t.Fatalf("got %d answers, want %d", len(got), n)
	}
	for i, a := range got {
		if a.Index != i {
			t.Fatalf("answers[%d].Index = %d, want %d", i, a.Index, i)
		}
	}
}

func TestAnswerCollectorReset(t *testing.T) {
	var col answerCollector
	col.Append(SubAnswer{Index: 0, Answer: "stale"})
	col.Reset()
	col.Append(SubAnswer{Index: 0, Answer: "fresh"})

	got := col.Sorted()
	if len(got) != 1 || got[0].Answer != "fresh" {
		t.Fatalf("after reset got %+v, want only the fresh answer", got)
	}
}

func TestAnswerCollectorSortedReturnsCopy(t *testing.T) {
	var col answerCollector
	col.Append(SubAnswer{Index: 0, Answer: "a"})
	snap := col.Sorted()
	snap[0].Answer = "mutated"
	if got := col.Sorted()[0].Answer; got != "a" {
		t.Fatalf("collector state mutated through snapshot: %q", got)
	}
}

func TestSessionStateHistoryCap(t *testing.T) {
	st := &sessionState{}
	for i := 0; i < maxHistoryMessages+10; i++ {
		st.appendMessage(UserMessage(fmt.Sprintf("m%d", i)))
	}
	if len(st.Messages) != maxHistoryMessages {
		t.Fatalf("history length = %d, want %d", len(st.Messages), maxHistoryMessages)
	}
	if st.Messages[0].Content != "m10" {
		t.Fatalf("oldest kept = %q, want m10", st.Messages[0].Content)
	}
}

func TestSessionStateLastUserMessage(t *testing.T) {
	st := &sessionState{}
	if got := st.lastUserMessage(); got != "" {
		t.Fatalf("empty history last user = %q", got)
	}
	st.appendMessage(UserMessage("first"))
	st.appendMessage(AssistantMessage("reply"))
	st.appendMessage(UserMessage("second"))
	if got := st.lastUserMessage(); got != "second" {
		t.Fatalf("last user = %q, want second", got)
	}
}
