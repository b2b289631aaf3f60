package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docent-ai/docent"
)

// Embedding implements docent.EmbeddingProvider against an
// OpenAI-compatible /embeddings endpoint. It shares the Provider's HTTP
// plumbing, so the same base URL and API key serve both chat and embedding
// models.
type Embedding struct {
	p          *Provider
	dimensions int
}

var _ docent.EmbeddingProvider = (*Embedding)(nil)

// NewEmbedding creates an embedding provider. dimensions must match the
// embedding model's output size (e.g. 1536 for text-embedding-3-small).
func NewEmbedding(apiKey, model, baseURL string, dimensions int, opts ...ProviderOption) *Embedding {
	return &Embedding{p: NewProvider(apiKey, model, baseURL, opts...), dimensions: dimensions}
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.p.name }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dimensions }

// Embed returns one vector per input text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := EmbeddingRequest{Model: e.p.model, Input: texts}

	resp, err := e.p.sendHTTP(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.p.httpErr(resp)
	}

	var embResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &docent.ErrLLM{Provider: e.p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &docent.ErrLLM{Provider: e.p.name,
			Message: fmt.Sprintf("got %d embeddings for %d inputs", len(embResp.Data), len(texts))}
	}

	// The API reports each vector's input index; order by it rather than
	// trusting response order.
	out := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &docent.ErrLLM{Provider: e.p.name,
				Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
