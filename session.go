package docent

import (
	"context"
	"errors"
)

// notInitializedReply is returned by Submit when the session has no
// orchestrator behind it.
const notInitializedReply = "The assistant is not initialized yet. Ingest a document corpus and configure the LLM provider first."

// Session is the user-facing conversational surface: a stable identity plus
// string-in/string-out submission. All workflow errors are converted to
// user-visible strings at this boundary; persisted state is never corrupted
// by a failed turn.
type Session struct {
	orch *Orchestrator
	id   string
}

// NewSession creates a session with a fresh identity.
func NewSession(orch *Orchestrator) *Session {
	return &Session{orch: orch, id: NewID()}
}

// ID returns the current session identifier.
func (s *Session) ID() string { return s.id }

// Submit runs one conversational turn and returns the reply text.
//
// When the turn suspends awaiting clarification, the clarification request
// itself becomes the reply and the next Submit continues the suspended turn.
// Any other failure is returned as an error-prefixed string.
func (s *Session) Submit(ctx context.Context, message string) string {
	if s.orch == nil {
		return notInitializedReply
	}
	reply, err := s.orch.Run(ctx, s.id, message)
	if err != nil {
		var await *ErrAwaitingInput
		if errors.As(err, &await) {
			if await.Prompt != "" {
				return await.Prompt
			}
			return "Could you clarify your question?"
		}
		return "Error: " + err.Error()
	}
	return reply
}

// Reset deletes the persisted state for the current identity (best-effort)
// and replaces the identity with a freshly generated one.
func (s *Session) Reset(ctx context.Context) {
	if s.orch != nil {
		if err := s.orch.DeleteSession(ctx, s.id); err != nil {
			s.orch.logger.Warn("delete session state", "session_id", s.id, "error", err)
		}
	}
	s.id = NewID()
}
