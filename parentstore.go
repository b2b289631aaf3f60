package docent

import "context"

// ParentRecord is the persisted form of a parent section: full content plus
// the metadata map captured at ingestion time.
type ParentRecord struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// ParentStore is key/value persistence of parent sections, addressed by the
// section's identifier. One record per key; re-saving overwrites.
// Records are written during ingestion and read-only at query time.
type ParentStore interface {
	// Save writes one record, replacing any previous record for id.
	Save(ctx context.Context, id string, rec ParentRecord) error
	// Load returns the record for id. The bool reports whether it exists;
	// an absent record is not an error.
	Load(ctx context.Context, id string) (ParentRecord, bool, error)
}
