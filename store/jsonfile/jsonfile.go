// Package jsonfile implements docent.ParentStore with one JSON file per
// parent section under a base directory. Records are written during
// ingestion and read-only at query time, so no locking is needed beyond the
// atomicity of a file rename.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docent-ai/docent"
)

// Store persists parent sections as {id}.json files under dir.
type Store struct {
	dir string
}

var _ docent.ParentStore = (*Store)(nil)

// New creates the base directory if needed and returns the store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create parent store dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes one record, replacing any previous record for id. The write
// goes through a temp file and rename so a crash never leaves a truncated
// record behind.
func (s *Store) Save(_ context.Context, id string, rec docent.ParentRecord) error {
	if err := validID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode parent %s: %w", id, err)
	}
	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write parent %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write parent %s: %w", id, err)
	}
	return nil
}

// Load returns the record for id. An absent record is (zero, false, nil).
func (s *Store) Load(_ context.Context, id string) (docent.ParentRecord, bool, error) {
	if err := validID(id); err != nil {
		return docent.ParentRecord{}, false, err
	}
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return docent.ParentRecord{}, false, nil
	}
	if err != nil {
		return docent.ParentRecord{}, false, fmt.Errorf("read parent %s: %w", id, err)
	}
	var rec docent.ParentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return docent.ParentRecord{}, false, fmt.Errorf("decode parent %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validID rejects identifiers that would escape the base directory.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid parent id %q", id)
	}
	return nil
}
