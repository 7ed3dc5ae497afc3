// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// stubEmbedder is shared by the store and ingestion tests.
type stubEmbedder struct {
	vecs  [][]float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.vecs != nil {
		return s.vecs, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Model() string { return "stub-embed" }

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder("cohere", "some-model")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "cohere") {
		t.Errorf("error should name the provider, got: %s", err.Error())
	}
}

func TestNewEmbedder_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewEmbedder("openai", "text-embedding-3-small")
	if err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is unset")
	}
}

func TestNewEmbedder_Ollama(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
	e, err := NewEmbedder("ollama", "nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("model = %q, want %q", e.Model(), "nomic-embed-text")
	}
}

func TestNewOllamaEmbedder_RequiresBaseURL(t *testing.T) {
	_, err := NewOllamaEmbedder("", "nomic-embed-text")
	if err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestNewOllamaEmbedder_RequiresModel(t *testing.T) {
	_, err := NewOllamaEmbedder("http://localhost:11434", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestOllamaEmbedder_Embed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/embed")
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q, want %q", req.Model, "nomic-embed-text")
		}
		if len(req.Input) != 2 {
			t.Errorf("input count = %d, want 2", len(req.Input))
		}

		resp := ollamaEmbedResponse{
			Model:      req.Model,
			Embeddings: [][]float32{{3, 4}, {0, 5}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vecs, err := embedder.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}

	// [3,4] normalizes to [0.6, 0.8].
	if math.Abs(float64(vecs[0][0])-0.6) > 1e-6 || math.Abs(float64(vecs[0][1])-0.8) > 1e-6 {
		t.Errorf("vector 0 = %v, want [0.6 0.8]", vecs[0])
	}
	if norm := vectorNorm(vecs[1]); math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("vector 1 norm = %f, want 1.0", norm)
	}
}

func TestOllamaEmbedder_Embed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	embedder, _ := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	_, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for embedding count mismatch")
	}
}

func TestOllamaEmbedder_Embed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer server.Close()

	embedder, _ := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error should include status, got: %s", err.Error())
	}
}

func TestOllamaEmbedder_Embed_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	defer server.Close()

	embedder, _ := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for error field in response")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry the API message, got: %s", err.Error())
	}
}

func TestOllamaEmbedder_Embed_EmptyInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for empty input")
	}))
	defer server.Close()

	embedder, _ := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	vecs, err := embedder.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs != nil {
		t.Errorf("vectors = %v, want nil", vecs)
	}
}

func TestOpenAIEmbedder_Embed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-test")
		}

		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Return the data out of order; Embed must place by index.
		resp := openAIEmbedResponse{
			Data: []openAIEmbedDatum{
				{Index: 1, Embedding: []float32{0, 2}},
				{Index: 0, Embedding: []float32{4, 0}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", server.URL)
	vecs, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[0][1] != 0 {
		t.Errorf("vector 0 = %v, want unit vector on first axis", vecs[0])
	}
	if vecs[1][0] != 0 || vecs[1][1] != 1 {
		t.Errorf("vector 1 = %v, want unit vector on second axis", vecs[1])
	}
}

func TestOpenAIEmbedder_Embed_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("sk-bad", "text-embedding-3-small", server.URL)
	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for HTTP 401")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error should include status, got: %s", err.Error())
	}
}

func TestOpenAIEmbedder_Embed_MissingIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(openAIEmbedResponse{
			Data: []openAIEmbedDatum{
				{Index: 0, Embedding: []float32{1}},
				{Index: 0, Embedding: []float32{2}},
			},
		})
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", server.URL)
	_, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error when an input index is never filled")
	}
}

func TestEmbedQuery_ReturnsFirstVector(t *testing.T) {
	stub := &stubEmbedder{vecs: [][]float32{{0.5, 0.5}}}
	vec, err := EmbedQuery(context.Background(), stub, "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector length = %d, want 2", len(vec))
	}
}

func TestEmbedQuery_EmptyResult(t *testing.T) {
	stub := &stubEmbedder{vecs: [][]float32{}}
	_, err := EmbedQuery(context.Background(), stub, "query")
	if err == nil {
		t.Fatal("expected error when embedder returns no vector")
	}
}

func TestNormalizeVectors_ZeroVectorUntouched(t *testing.T) {
	vecs := [][]float32{{0, 0, 0}}
	normalizeVectors(vecs)
	for _, x := range vecs[0] {
		if x != 0 {
			t.Fatalf("zero vector changed: %v", vecs[0])
		}
	}
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
