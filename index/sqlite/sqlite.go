// Package sqlite implements docent.Index using pure-Go SQLite with
// in-process brute-force vector search. Zero CGO required. The keyword leg
// runs over an FTS5 table; the dense leg scans JSON-encoded embeddings and
// scores them by cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/docent-ai/docent"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DefaultMinScore is the cosine similarity threshold below which dense hits
// are discarded before fusion.
const DefaultMinScore = 0.7

const defaultKeywordWeight = 0.3

// candidateFactor oversamples each search leg before fusion so RRF has
// enough overlap to rank on.
const candidateFactor = 3

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a structured logger. When set, the index emits debug logs
// with timing and row counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMinScore sets the cosine similarity threshold for the dense leg.
func WithMinScore(score float32) Option {
	return func(i *Index) { i.minScore = score }
}

// WithKeywordWeight sets the keyword leg's weight in the RRF merge.
// Must be in [0, 1]. Default is 0.3 (the dense leg gets 0.7).
func WithKeywordWeight(w float32) Option {
	return func(i *Index) {
		if w >= 0 && w <= 1 {
			i.keywordWeight = w
		}
	}
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Index implements docent.Index backed by a local SQLite file.
type Index struct {
	db            *sql.DB
	logger        *slog.Logger
	minScore      float32
	keywordWeight float32
}

var _ docent.Index = (*Index)(nil)

// New creates an Index using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors from concurrent writers.
func New(dbPath string, opts ...Option) *Index {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	i := &Index{
		db:            db,
		logger:        nopLogger,
		minScore:      DefaultMinScore,
		keywordWeight: defaultKeywordWeight,
	}
	for _, o := range opts {
		o(i)
	}
	i.logger.Debug("sqlite: index opened", "path", dbPath)
	return i
}

// Init creates the fragments table and its FTS5 companion.
func (i *Index) Init(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS fragments (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding TEXT,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create fragments table: %w", err)
	}
	if _, err := i.db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fragments_fts USING fts5(fragment_id UNINDEXED, content)`); err != nil {
		return fmt.Errorf("create fragments fts table: %w", err)
	}
	return nil
}

// IndexFragments upserts fragments and their FTS rows in one transaction.
func (i *Index) IndexFragments(ctx context.Context, fragments []docent.ChildFragment) error {
	start := time.Now()
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	for _, f := range fragments {
		meta, _ := json.Marshal(f.Metadata)
		emb, _ := json.Marshal(f.Embedding)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fragments (id, content, metadata, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET content=excluded.content,
			   metadata=excluded.metadata, embedding=excluded.embedding`,
			f.ID, f.Content, string(meta), string(emb), docent.NowUnix()); err != nil {
			return fmt.Errorf("insert fragment %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM fragments_fts WHERE fragment_id = ?`, f.ID); err != nil {
			return fmt.Errorf("refresh fts for %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fragments_fts (fragment_id, content) VALUES (?, ?)`,
			f.ID, f.Content); err != nil {
			return fmt.Errorf("insert fts for %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	i.logger.Debug("sqlite: fragments indexed", "count", len(fragments), "duration", time.Since(start))
	return nil
}

// Search runs both legs, fuses them with RRF, and returns at most topK
// results sorted by fused score descending.
func (i *Index) Search(ctx context.Context, query string, embedding []float32, topK int) ([]docent.ScoredFragment, error) {
	start := time.Now()
	candidates := topK * candidateFactor

	dense, err := i.searchDense(ctx, embedding, candidates)
	if err != nil {
		return nil, err
	}
	keyword, err := i.searchKeyword(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	fused := docent.FuseRanked(dense, keyword, i.keywordWeight)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	i.logger.Debug("sqlite: search ok",
		"dense", len(dense), "keyword", len(keyword), "returned", len(fused),
		"duration", time.Since(start))
	return fused, nil
}

// searchDense performs brute-force cosine similarity over all embedded
// fragments, keeping hits at or above the similarity threshold.
func (i *Index) searchDense(ctx context.Context, embedding []float32, topK int) ([]docent.ScoredFragment, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM fragments WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	defer rows.Close()

	var results []docent.ScoredFragment
	for rows.Next() {
		var f docent.ChildFragment
		var metaJSON, embJSON string
		if err := rows.Scan(&f.ID, &f.Content, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &f.Metadata)
		var stored []float32
		if err := json.Unmarshal([]byte(embJSON), &stored); err != nil {
			continue
		}
		score := cosineSimilarity(embedding, stored)
		if score < i.minScore {
			continue
		}
		results = append(results, docent.ScoredFragment{Fragment: f, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// searchKeyword performs FTS5 full-text search, sorted by FTS5 rank.
func (i *Index) searchKeyword(ctx context.Context, query string, topK int) ([]docent.ScoredFragment, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT fr.id, fr.content, fr.metadata, f.rank
		 FROM fragments_fts f
		 JOIN fragments fr ON fr.id = f.fragment_id
		 WHERE fragments_fts MATCH ?
		 ORDER BY f.rank LIMIT ?`, match, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []docent.ScoredFragment
	for rows.Next() {
		var f docent.ChildFragment
		var metaJSON string
		var rank float64
		if err := rows.Scan(&f.ID, &f.Content, &metaJSON, &rank); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &f.Metadata)
		// FTS5 rank is negative (closer to 0 = better). Use -rank as score.
		score := float32(-rank)
		if score < 0 {
			score = 0
		}
		results = append(results, docent.ScoredFragment{Fragment: f, Score: score})
	}
	return results, rows.Err()
}

// Close releases the database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// ftsQuery quotes each term so user text can never break FTS5 query syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
