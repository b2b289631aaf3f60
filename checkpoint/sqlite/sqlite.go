// Package sqlite implements docent.Checkpointer on pure-Go SQLite, making
// session state durable across process restarts. This is what lets a
// human_input suspension outlive the process that created it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docent-ai/docent"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Checkpointer stores one serialized state blob per session identifier.
type Checkpointer struct {
	db *sql.DB
}

var _ docent.Checkpointer = (*Checkpointer)(nil)

// New opens (or creates) the checkpoint database at dbPath.
// A single connection serializes all access, same as the sqlite index.
func New(dbPath string) *Checkpointer {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	return &Checkpointer{db: db}
}

// Init creates the checkpoints table.
func (c *Checkpointer) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		state BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create checkpoints table: %w", err)
	}
	return nil
}

func (c *Checkpointer) Save(ctx context.Context, sessionID string, state []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state,
		   updated_at = excluded.updated_at`,
		sessionID, state, docent.NowUnix())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", sessionID, err)
	}
	return nil
}

func (c *Checkpointer) Load(ctx context.Context, sessionID string) ([]byte, bool, error) {
	var state []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE session_id = ?`, sessionID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}
	return state, true, nil
}

func (c *Checkpointer) Delete(ctx context.Context, sessionID string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the database handle.
func (c *Checkpointer) Close() error { return c.db.Close() }
