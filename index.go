package docent

import (
	"context"
	"sort"
)

// ScoredFragment is a child fragment with a relevance score in [0, 1]
// (fused hybrid score; higher means more relevant).
type ScoredFragment struct {
	Fragment ChildFragment `json:"fragment"`
	Score    float32       `json:"score"`
}

// Index abstracts the external fragment search structure. Implementations
// combine dense semantic similarity over the stored embeddings with sparse
// keyword matching over the fragment text (hybrid search).
//
// Writes happen only during ingestion; query-time execution treats the index
// as read-only, so concurrent sub-agent searches need no coordination.
type Index interface {
	// Init creates the backing schema.
	Init(ctx context.Context) error
	// IndexFragments writes fragments (with embeddings) to the index.
	// Re-indexing a fragment ID overwrites the previous record.
	IndexFragments(ctx context.Context, fragments []ChildFragment) error
	// Search runs a hybrid query: embedding drives the dense leg, query text
	// drives the keyword leg. Results are fused, threshold-filtered, and
	// sorted by score descending, at most topK.
	Search(ctx context.Context, query string, embedding []float32, topK int) ([]ScoredFragment, error)
	// Close releases backing resources.
	Close() error
}

// --- Reciprocal Rank Fusion ---

const rrfK = 60

// FuseRanked merges dense and keyword search result lists using Reciprocal
// Rank Fusion. keywordWeight is in [0,1]; the dense leg gets 1-keywordWeight.
// Both inputs must be sorted by their own relevance descending. The fused
// list is sorted by fused score descending. Shared by the Index backends.
func FuseRanked(dense, keyword []ScoredFragment, keywordWeight float32) []ScoredFragment {
	denseWeight := 1 - keywordWeight

	type entry struct {
		frag  ChildFragment
		score float32
	}
	merged := make(map[string]*entry)
	var order []string

	add := func(rank int, sf ScoredFragment, weight float32) {
		e, ok := merged[sf.Fragment.ID]
		if !ok {
			e = &entry{frag: sf.Fragment}
			merged[sf.Fragment.ID] = e
			order = append(order, sf.Fragment.ID)
		}
		e.score += weight * (1.0 / float32(rrfK+rank+1))
	}

	for rank, sf := range dense {
		add(rank, sf, denseWeight)
	}
	for rank, sf := range keyword {
		add(rank, sf, keywordWeight)
	}

	results := make([]ScoredFragment, 0, len(order))
	for _, id := range order {
		e := merged[id]
		results = append(results, ScoredFragment{Fragment: e.frag, Score: e.score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
