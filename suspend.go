package docent

// ErrAwaitingInput is returned by Orchestrator.Run when the workflow
// suspends before the human_input node. The session state is checkpointed;
// the caller should collect a clarification from the user and continue the
// turn with Resume.
type ErrAwaitingInput struct {
	SessionID string
	// Prompt is the clarification request to show the user.
	Prompt string
}

func (e *ErrAwaitingInput) Error() string {
	return "session " + e.SessionID + " awaiting user input: " + e.Prompt
}
