// Package docent is a retrieval-augmented question-answering assistant over
// a private document corpus.
//
// The ingest package splits documents into a two-tier hierarchy: large
// parent sections for LLM context and small child fragments for retrieval.
// Parent sections live in a ParentStore; child fragments are
// embedded and written to an Index supporting hybrid dense + keyword search.
//
// At query time the Orchestrator runs an explicit state machine per
// conversational turn: summarize the recent history, rewrite the user
// question into sub-queries, fan out one retrieval sub-agent per sub-query
// (each a ReAct loop over the retrieval tools), and aggregate the collected
// answers into a single reply. The Session facade wraps the orchestrator
// behind a synchronous Submit/Reset surface.
package docent
