package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docent-ai/docent"
)

const defaultBatchSize = 64

// nop logger used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize sets the number of fragments per Embed call (default 64).
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline runs the full ingestion flow for a document: extract, chunk,
// persist parent sections, embed fragments in batches, and index them.
// All index and store writes happen here; query-time execution treats both
// as read-only.
type Pipeline struct {
	chunker   *HierarchicalChunker
	parents   docent.ParentStore
	index     docent.Index
	embedding docent.EmbeddingProvider
	batchSize int
	logger    *slog.Logger
}

// NewPipeline wires a pipeline over its backing stores.
func NewPipeline(chunker *HierarchicalChunker, parents docent.ParentStore, index docent.Index, emb docent.EmbeddingProvider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		chunker:   chunker,
		parents:   parents,
		index:     index,
		embedding: emb,
		batchSize: defaultBatchSize,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result reports what one ingestion produced.
type Result struct {
	Documents int
	Parents   int
	Fragments int
}

// IngestText chunks and indexes one document given as text. docName keys
// the deterministic parent IDs, so ingesting the same docName again
// overwrites the previous records.
func (p *Pipeline) IngestText(ctx context.Context, docName, text string) (Result, error) {
	parents, fragments := p.chunker.Chunk(docName, text)
	for _, parent := range parents {
		rec := docent.ParentRecord{Content: parent.Content, Metadata: parent.Metadata}
		if err := p.parents.Save(ctx, parent.ID, rec); err != nil {
			return Result{}, fmt.Errorf("save parent %s: %w", parent.ID, err)
		}
	}

	for start := 0; start < len(fragments); start += p.batchSize {
		end := min(start+p.batchSize, len(fragments))
		batch := fragments[start:end]
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Content
		}
		embs, err := p.embedding.Embed(ctx, texts)
		if err != nil {
			return Result{}, fmt.Errorf("embed fragments for %s: %w", docName, err)
		}
		if len(embs) != len(batch) {
			return Result{}, fmt.Errorf("embed fragments for %s: got %d vectors for %d texts", docName, len(embs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = embs[i]
		}
		if err := p.index.IndexFragments(ctx, batch); err != nil {
			return Result{}, fmt.Errorf("index fragments for %s: %w", docName, err)
		}
	}

	p.logger.Info("document ingested",
		"document", docName, "parents", len(parents), "fragments", len(fragments))
	return Result{Documents: 1, Parents: len(parents), Fragments: len(fragments)}, nil
}

// IngestFile extracts, chunks, and indexes one file. The file stem becomes
// the document name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (Result, error) {
	ex, ok := ForFile(path)
	if !ok {
		return Result{}, fmt.Errorf("unsupported file type: %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	text, err := ex.Extract(raw)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", path, err)
	}
	base := filepath.Base(path)
	docName := strings.TrimSuffix(base, filepath.Ext(base))
	return p.IngestText(ctx, docName, text)
}

// IngestDir ingests every supported file directly under dir, in sorted
// name order so parent ordinals are stable across runs. Unsupported files
// are skipped; a failing file aborts the run.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read corpus dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ForFile(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var total Result
	for _, name := range names {
		res, err := p.IngestFile(ctx, filepath.Join(dir, name))
		if err != nil {
			return total, err
		}
		total.Documents += res.Documents
		total.Parents += res.Parents
		total.Fragments += res.Fragments
	}
	return total, nil
}
