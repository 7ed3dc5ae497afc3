// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultOllamaKeepAlive = "5m"

// =============================================================================
// Ollama Wire Types
// =============================================================================

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Format    string          `json:"format,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Options   *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions mirrors the subset of Ollama model options this service sets.
type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	NumCtx      *int     `json:"num_ctx,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Model     string        `json:"model"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OllamaClient implements LLMClient for a local Ollama server using raw net/http.
//
// Description:
//
//	Talks to the Ollama /api/chat endpoint with streaming disabled. The
//	client pins a single model; the keep_alive and num_ctx settings are
//	fixed at construction because they describe the deployment (VRAM
//	residency, context window), not an individual request.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	keepAlive  string
	numCtx     int
}

// NewOllamaClient creates an OllamaClient for the given server and model.
//
// Description:
//
//	Creates a client pinned to one model on one Ollama server. Pass the
//	server base URL without the /api/chat suffix (e.g. "http://localhost:11434").
//	keepAlive controls model VRAM lifetime; empty defaults to "5m". numCtx
//	sets the context window; zero leaves the model default in place.
//
// Inputs:
//   - baseURL: The Ollama server base URL. Must not be empty.
//   - model: The model identifier (e.g., "granite4:micro-h"). Must not be empty.
//   - keepAlive: VRAM keep-alive duration string, or empty for the default.
//   - numCtx: Context window size, or 0 for the model default.
//
// Outputs:
//   - *OllamaClient: The configured client.
//   - error: Non-nil if baseURL or model is empty.
func NewOllamaClient(baseURL, model, keepAlive string, numCtx int) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: base URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	if keepAlive == "" {
		keepAlive = defaultOllamaKeepAlive
	}
	slog.Info("Initializing Ollama client",
		slog.String("model", model),
		slog.String("base_url", baseURL),
	)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		model:      model,
		keepAlive:  keepAlive,
		numCtx:     numCtx,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	messages := []Message{
		{Role: "user", Content: prompt},
	}
	return o.Chat(ctx, messages, params)
}

// Chat implements LLMClient.Chat against the Ollama /api/chat endpoint.
//
// Description:
//
//	Sends the conversation in one non-streaming request. When
//	params.ForceJSON is set, the request carries format "json", which
//	constrains the model's sampler to valid JSON output.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	slog.Debug("Chat via Ollama", slog.String("model", o.model), slog.Int("messages", len(messages)))

	wireMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		wireMessages = append(wireMessages, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	reqPayload := ollamaChatRequest{
		Model:     o.model,
		Messages:  wireMessages,
		Stream:    false,
		KeepAlive: o.keepAlive,
	}
	if params.ForceJSON {
		reqPayload.Format = "json"
	}

	opts := &ollamaOptions{}
	hasOpts := false
	if params.Temperature != nil {
		opts.Temperature = params.Temperature
		hasOpts = true
	}
	if params.TopP != nil {
		opts.TopP = params.TopP
		hasOpts = true
	}
	if params.MaxTokens != nil {
		opts.NumPredict = params.MaxTokens
		hasOpts = true
	}
	if len(params.Stop) > 0 {
		opts.Stop = params.Stop
		hasOpts = true
	}
	if o.numCtx > 0 {
		numCtx := o.numCtx
		opts.NumCtx = &numCtx
		hasOpts = true
	}
	if hasOpts {
		reqPayload.Options = opts
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	url := o.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, SafeLogString(string(respBody)))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("ollama: failed to unmarshal response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama: API error: %s", SafeLogString(chatResp.Error))
	}
	if chatResp.Message.Content == "" {
		return "", fmt.Errorf("ollama: returned empty message content")
	}

	return chatResp.Message.Content, nil
}
