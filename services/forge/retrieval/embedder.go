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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/invoke"
	"github.com/AleutianAI/AleutianForge/services/forge/providers"
	"github.com/AleutianAI/AleutianForge/services/llm"
)

// queryEmbedTimeout bounds embedding of a single search query. Corpus
// embedding during ingestion is not bounded here; the caller's context
// governs it.
const queryEmbedTimeout = 3 * time.Second

const defaultOpenAIEmbedURL = "https://api.openai.com/v1/embeddings"

// Embedder produces unit-normalized vector embeddings for text.
//
// Thread Safety: implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier. Vectors from different
	// models are not comparable; the model name participates in corpus
	// cache keys.
	Model() string
}

// NewEmbedder selects an embedding backend by provider name.
//
// Description:
//
//	"ollama" talks to the local Ollama server resolved the same way the
//	chat providers resolve it (OLLAMA_BASE_URL, then the deprecated
//	OLLAMA_URL, then localhost:11434). "openai" requires OPENAI_API_KEY
//	in the environment.
//
// Outputs:
//   - Embedder: The configured backend.
//   - error: Non-nil for an unknown provider or missing OpenAI credentials.
func NewEmbedder(provider, model string) (Embedder, error) {
	switch provider {
	case "ollama":
		return NewOllamaEmbedder(providers.ResolveOllamaURL(), model)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("retrieval: OPENAI_API_KEY not set for openai embedding provider")
		}
		return NewOpenAIEmbedder(apiKey, model, ""), nil
	default:
		return nil, fmt.Errorf("retrieval: unknown embedding provider %q", provider)
	}
}

// EmbedQuery embeds a single search query under the query deadline.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := invoke.WithTimeout(ctx, queryEmbedTimeout, "retrieval.embed_query",
		func(ctx context.Context) ([][]float32, error) {
			return e.Embed(ctx, []string{text})
		})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("retrieval: embedder returned no vector")
	}
	return vecs[0], nil
}

// normalizeVectors scales each vector to unit L2 norm in place. Zero
// vectors are left untouched.
func normalizeVectors(vecs [][]float32) {
	for _, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norm := math.Sqrt(sum)
		if norm == 0 {
			continue
		}
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
}

// =============================================================================
// Ollama Wire Types
// =============================================================================

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// OllamaEmbedder calls the Ollama /api/embed endpoint using raw net/http.
//
// Thread Safety: OllamaEmbedder is safe for concurrent use.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaEmbedder creates an embedder pinned to one model on one Ollama
// server. Pass the server base URL without the /api/embed suffix.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama embed: base URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama embed: model is required")
	}
	slog.Info("Initializing Ollama embedder",
		slog.String("model", model),
		slog.String("base_url", baseURL),
	)
	return &OllamaEmbedder{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Model implements Embedder.
func (o *OllamaEmbedder) Model() string { return o.model }

// Embed implements Embedder against the Ollama /api/embed endpoint.
func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: failed to marshal request: %w", err)
	}

	url := o.baseURL + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: API returned status %d: %s",
			resp.StatusCode, llm.SafeLogString(string(respBody)))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("ollama embed: failed to unmarshal response: %w", err)
	}
	if embedResp.Error != "" {
		return nil, fmt.Errorf("ollama embed: API error: %s", llm.SafeLogString(embedResp.Error))
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs",
			len(embedResp.Embeddings), len(texts))
	}

	normalizeVectors(embedResp.Embeddings)
	return embedResp.Embeddings, nil
}

// =============================================================================
// OpenAI Wire Types
// =============================================================================

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIEmbedResponse struct {
	Data  []openAIEmbedDatum `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint using raw net/http.
//
// Thread Safety: OpenAIEmbedder is safe for concurrent use.
type OpenAIEmbedder struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIEmbedder creates an embedder for the OpenAI embeddings API.
// An empty baseURL selects the public endpoint.
func NewOpenAIEmbedder(apiKey, model, baseURL string) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = defaultOpenAIEmbedURL
	}
	slog.Info("Initializing OpenAI embedder", slog.String("model", model))
	return &OpenAIEmbedder{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Model implements Embedder.
func (o *OpenAIEmbedder) Model() string { return o.model }

// Embed implements Embedder against the OpenAI embeddings endpoint. The
// response carries an index per embedding; vectors are placed by index so
// the output order always matches the input order.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(openAIEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openai embed: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai embed: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embed: API returned status %d: %s",
			resp.StatusCode, llm.SafeLogString(string(respBody)))
	}

	var embedResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("openai embed: failed to unmarshal response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("openai embed: API error: %s", llm.SafeLogString(embedResp.Error.Message))
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs",
			len(embedResp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embed: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embed: missing embedding for input %d", i)
		}
	}

	normalizeVectors(out)
	return out, nil
}
