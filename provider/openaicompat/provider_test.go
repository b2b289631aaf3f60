package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docent-ai/docent"
)

func TestChatSendsRequestAndParsesResponse(t *testing.T) {
	var got ChatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: &ChoiceMessage{Content: "hello back"}}},
			Usage:   &Usage{PromptTokens: 3, CompletionTokens: 2},
		})
	}))
	defer srv.Close()

	p := NewProvider("secret", "test-model", srv.URL+"/v1")
	resp, err := p.Chat(context.Background(), docent.ChatRequest{
		Messages: []docent.ChatMessage{docent.UserMessage("hello")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello back" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if auth != "Bearer secret" {
		t.Errorf("authorization = %q", auth)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 {
		t.Errorf("request body = %+v", got)
	}
}

func TestChatTemperatureOverrideWins(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ChatResponse{})
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithOptions(WithTemperature(0.9)))
	_, err := p.Chat(context.Background(), docent.ChatRequest{
		Temperature: docent.Temperature(0.2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Fatalf("temperature = %v, want per-request override", got.Temperature)
	}

	// Without a per-request override the provider default applies.
	_, err = p.Chat(context.Background(), docent.ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Temperature == nil || *got.Temperature != 0.9 {
		t.Fatalf("temperature = %v, want provider default", got.Temperature)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), docent.ChatRequest{})
	if err == nil {
		t.Fatal("want error on non-200 status")
	}
	var httpErr *docent.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %T, want *docent.ErrHTTP", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
}

func TestChatDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL, WithName("flaky"))
	_, err := p.Chat(context.Background(), docent.ChatRequest{})
	var llmErr *docent.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("err = %T, want *docent.ErrLLM", err)
	}
	if llmErr.Provider != "flaky" {
		t.Errorf("provider = %q", llmErr.Provider)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		// Return vectors out of order.
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 1, Embedding: []float32{2, 2}},
			{Index: 0, Embedding: []float32{1, 1}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "emb-model", srv.URL, 2)
	out, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("out = %d vectors", len(out))
	}
	if out[0][0] != 1 || out[1][0] != 2 {
		t.Fatalf("vectors not ordered by index: %v", out)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewEmbedding("", "m", "http://unused", 2)
	out, err := e.Embed(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("out=%v err=%v, want no-op", out, err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 0, Embedding: []float32{1}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "m", srv.URL, 1)
	_, err := e.Embed(context.Background(), []string{"a", "b"})
	var llmErr *docent.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("err = %T, want *docent.ErrLLM", err)
	}
}

func TestEmbedIndexOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 5, Embedding: []float32{1}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "m", srv.URL, 1)
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("want error for out-of-range index")
	}
}

func TestEmbedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	e := NewEmbedding("wrong", "m", srv.URL, 1)
	_, err := e.Embed(context.Background(), []string{"a"})
	var httpErr *docent.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %T, want *docent.ErrHTTP", err)
	}
	if httpErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", httpErr.Status)
	}
}
