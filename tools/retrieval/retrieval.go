// Package retrieval provides the two tools a retrieval sub-agent reasons
// with: fragment search over the hybrid index and parent-section lookup from
// the persistent store.
//
// Failures never cross the tool boundary as errors. Empty results and
// exceptions alike are folded into sentinel strings in the tool's textual
// result, so the model can decide to retry, rephrase, or answer without that
// evidence.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docent-ai/docent"
)

// Sentinel values surfaced to the model in place of errors.
const (
	// NoRelevantFragments means the search completed but nothing scored
	// above the relevance threshold.
	NoRelevantFragments = "NO_RELEVANT_FRAGMENTS"
	// NoParentSection means the requested parent identifier does not exist.
	NoParentSection = "NO_PARENT_SECTION"

	searchErrPrefix = "RETRIEVAL_ERROR: "
	parentErrPrefix = "PARENT_RETRIEVAL_ERROR: "
)

const defaultTopK = 5

// Retrieval exposes the search_fragments and fetch_parent tools.
type Retrieval struct {
	index     docent.Index
	embedding docent.EmbeddingProvider
	parents   docent.ParentStore
	topK      int
}

var _ docent.Tool = (*Retrieval)(nil)

// Option configures a Retrieval.
type Option func(*Retrieval)

// WithTopK sets the default number of fragments returned by search_fragments
// when the model does not pass a limit. Default is 5.
func WithTopK(n int) Option {
	return func(r *Retrieval) {
		if n > 0 {
			r.topK = n
		}
	}
}

// New creates the retrieval tool pair over a fragment index and parent store.
func New(index docent.Index, emb docent.EmbeddingProvider, parents docent.ParentStore, opts ...Option) *Retrieval {
	r := &Retrieval{index: index, embedding: emb, parents: parents, topK: defaultTopK}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Retrieval) Definitions() []docent.ToolDefinition {
	return []docent.ToolDefinition{
		{
			Name:        "search_fragments",
			Description: "Search the document corpus for fragments relevant to a query. Each hit includes the parent section ID; use fetch_parent to read the full surrounding section.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"},"limit":{"type":"integer","description":"Maximum number of fragments to return"}},"required":["query"]}`),
		},
		{
			Name:        "fetch_parent",
			Description: "Fetch the full parent section a fragment belongs to, by its parent section ID.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"parent_id":{"type":"string","description":"Parent section ID from a search_fragments result"}},"required":["parent_id"]}`),
		},
	}
}

func (r *Retrieval) Execute(ctx context.Context, name string, args json.RawMessage) (docent.ToolResult, error) {
	switch name {
	case "search_fragments":
		return docent.ToolResult{Content: r.searchFragments(ctx, args)}, nil
	case "fetch_parent":
		return docent.ToolResult{Content: r.fetchParent(ctx, args)}, nil
	}
	return docent.ToolResult{Error: "unknown tool: " + name}, nil
}

func (r *Retrieval) searchFragments(ctx context.Context, args json.RawMessage) string {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return searchErrPrefix + "invalid arguments: " + err.Error()
	}
	if strings.TrimSpace(params.Query) == "" {
		return searchErrPrefix + "empty query"
	}
	limit := params.Limit
	if limit <= 0 {
		limit = r.topK
	}

	embs, err := r.embedding.Embed(ctx, []string{params.Query})
	if err != nil || len(embs) == 0 {
		if err == nil {
			err = fmt.Errorf("no embedding returned")
		}
		return searchErrPrefix + err.Error()
	}
	hits, err := r.index.Search(ctx, params.Query, embs[0], limit)
	if err != nil {
		return searchErrPrefix + err.Error()
	}
	if len(hits) == 0 {
		return NoRelevantFragments
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("Parent ID: %s\nSource: %s\nContent: %s",
			h.Fragment.ParentID(), h.Fragment.Source(), h.Fragment.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (r *Retrieval) fetchParent(ctx context.Context, args json.RawMessage) string {
	var params struct {
		ParentID string `json:"parent_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return parentErrPrefix + "invalid arguments: " + err.Error()
	}
	if strings.TrimSpace(params.ParentID) == "" {
		return parentErrPrefix + "empty parent_id"
	}

	rec, ok, err := r.parents.Load(ctx, params.ParentID)
	if err != nil {
		return parentErrPrefix + err.Error()
	}
	if !ok {
		return NoParentSection
	}
	return fmt.Sprintf("Parent ID: %s\nSource: %s\nContent: %s",
		params.ParentID, rec.Metadata[docent.MetaSource], rec.Content)
}
