// Package postgres implements docent.Index using PostgreSQL with pgvector
// for native vector similarity search and tsvector for full-text keyword
// search.
//
// The Index accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool; Close on the Index is
// a no-op in that respect.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent"
)

// DefaultMinScore is the cosine similarity threshold below which dense hits
// are discarded before fusion.
const DefaultMinScore = 0.7

const defaultKeywordWeight = 0.3

const candidateFactor = 3

// pgConfig holds settings applied via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector column
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	minScore           float32
	keywordWeight      float32
}

// Option configures a PostgreSQL Index.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node). Higher
// values improve recall at the cost of memory. Default: pgvector's 16.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter. Higher values
// improve index quality at the cost of slower builds. Default: pgvector's 64.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithMinScore sets the cosine similarity threshold for the dense leg.
func WithMinScore(score float32) Option {
	return func(c *pgConfig) { c.minScore = score }
}

// WithKeywordWeight sets the keyword leg's weight in the RRF merge.
// Must be in [0, 1]. Default is 0.3 (the dense leg gets 0.7).
func WithKeywordWeight(w float32) Option {
	return func(c *pgConfig) {
		if w >= 0 && w <= 1 {
			c.keywordWeight = w
		}
	}
}

// Index implements docent.Index backed by PostgreSQL with pgvector. The
// dense leg uses an HNSW index with cosine distance; the keyword leg uses a
// GIN index over to_tsvector.
type Index struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

var _ docent.Index = (*Index)(nil)

// New creates an Index using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool, opts ...Option) *Index {
	cfg := pgConfig{minScore: DefaultMinScore, keywordWeight: defaultKeywordWeight}
	for _, o := range opts {
		o(&cfg)
	}
	return &Index{pool: pool, cfg: cfg}
}

func (i *Index) vectorType() string {
	if i.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", i.cfg.embeddingDimension)
	}
	return "vector"
}

func (i *Index) hnswWithClause() string {
	var parts []string
	if i.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", i.cfg.hnswM))
	}
	if i.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", i.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the fragments table, and both search
// indexes.
func (i *Index) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding %s,
			created_at BIGINT NOT NULL
		)`, i.vectorType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS fragments_embedding_idx
			ON fragments USING hnsw (embedding vector_cosine_ops)%s`, i.hnswWithClause()),
		`CREATE INDEX IF NOT EXISTS fragments_fts_idx
			ON fragments USING gin(to_tsvector('english', content))`,
	}
	for _, stmt := range stmts {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// IndexFragments upserts fragments in one transaction.
func (i *Index) IndexFragments(ctx context.Context, fragments []docent.ChildFragment) error {
	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin index tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range fragments {
		meta, _ := json.Marshal(f.Metadata)
		if _, err := tx.Exec(ctx,
			`INSERT INTO fragments (id, content, metadata, embedding, created_at)
			 VALUES ($1, $2, $3, $4::vector, $5)
			 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
			   metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			f.ID, f.Content, meta, vectorLiteral(f.Embedding), docent.NowUnix()); err != nil {
			return fmt.Errorf("postgres: insert fragment %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit index tx: %w", err)
	}
	return nil
}

// Search runs both legs server-side, fuses them with RRF in-process, and
// returns at most topK results sorted by fused score descending.
func (i *Index) Search(ctx context.Context, query string, embedding []float32, topK int) ([]docent.ScoredFragment, error) {
	candidates := topK * candidateFactor

	dense, err := i.searchDense(ctx, embedding, candidates)
	if err != nil {
		return nil, err
	}
	keyword, err := i.searchKeyword(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	fused := docent.FuseRanked(dense, keyword, i.cfg.keywordWeight)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (i *Index) searchDense(ctx context.Context, embedding []float32, topK int) ([]docent.ScoredFragment, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		 FROM fragments
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`, vectorLiteral(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: dense search: %w", err)
	}
	defer rows.Close()

	var results []docent.ScoredFragment
	for rows.Next() {
		var f docent.ChildFragment
		var metaJSON []byte
		var score float32
		if err := rows.Scan(&f.ID, &f.Content, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan fragment: %w", err)
		}
		if score < i.cfg.minScore {
			continue
		}
		_ = json.Unmarshal(metaJSON, &f.Metadata)
		results = append(results, docent.ScoredFragment{Fragment: f, Score: score})
	}
	return results, rows.Err()
}

func (i *Index) searchKeyword(ctx context.Context, query string, topK int) ([]docent.ScoredFragment, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT id, content, metadata,
		        ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
		 FROM fragments
		 WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		 ORDER BY score DESC
		 LIMIT $2`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search: %w", err)
	}
	defer rows.Close()

	var results []docent.ScoredFragment
	for rows.Next() {
		var f docent.ChildFragment
		var metaJSON []byte
		var score float32
		if err := rows.Scan(&f.ID, &f.Content, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan fragment: %w", err)
		}
		_ = json.Unmarshal(metaJSON, &f.Metadata)
		results = append(results, docent.ScoredFragment{Fragment: f, Score: score})
	}
	return results, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (i *Index) Close() error { return nil }

// vectorLiteral renders a float32 slice in pgvector's input format.
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
