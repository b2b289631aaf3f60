package docent

import (
	"context"
	"sync"
)

// Checkpointer persists serialized session state keyed by session identifier.
// The orchestrator writes a checkpoint after every completed turn and before
// suspending for human input, and reloads it on the next invocation. This is
// what makes the human_input pause durable rather than an in-memory
// call-stack suspension.
type Checkpointer interface {
	// Save writes the serialized state for sessionID, replacing any previous
	// checkpoint.
	Save(ctx context.Context, sessionID string, state []byte) error
	// Load returns the checkpoint for sessionID. The bool reports whether one
	// exists; an absent checkpoint is not an error.
	Load(ctx context.Context, sessionID string) ([]byte, bool, error)
	// Delete removes the checkpoint for sessionID. Deleting an absent
	// checkpoint is a no-op.
	Delete(ctx context.Context, sessionID string) error
}

// MemoryCheckpointer is an in-process Checkpointer. State survives across
// turns within one process but not across restarts; use checkpoint/sqlite
// for durable sessions.
type MemoryCheckpointer struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var _ Checkpointer = (*MemoryCheckpointer)(nil)

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{states: make(map[string][]byte)}
}

func (m *MemoryCheckpointer) Save(_ context.Context, sessionID string, state []byte) error {
	cp := make([]byte, len(state))
	copy(cp, state)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID] = cp
	return nil
}

func (m *MemoryCheckpointer) Load(_ context.Context, sessionID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[sessionID]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, true, nil
}

func (m *MemoryCheckpointer) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}
