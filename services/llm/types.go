// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm contains raw wire clients for the language-model backends the
// forge service can talk to (Anthropic, OpenAI, Gemini, Ollama). Each client
// speaks its provider's REST API directly over net/http; there is no SDK
// layer. The provider factory in services/forge/providers selects one of
// these at startup and the conversation logic never branches on the backend.
package llm

import "context"

// Message is one turn of a chat exchange in provider-neutral form.
// Role is "system", "user", or "assistant"; clients map it to their
// provider's wire vocabulary.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries the optional generation knobs shared by all
// backends. Nil pointer fields are omitted from the outbound request so the
// provider's own defaults apply.
//
// ForceJSON asks the backend for a JSON-only response where the wire API
// supports it natively (OpenAI response_format, Gemini responseMimeType,
// Ollama format). Anthropic has no equivalent switch; callers relying on
// ForceJSON must still instruct the model in the prompt, which the intent
// extractor does regardless of backend.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
	ForceJSON   bool
}

// LLMClient is the minimal completion surface the forge service needs.
//
// Description:
//
//	Generate is single-prompt convenience; Chat takes full multi-turn
//	history. Both return the model's text reply or an error. Timeouts are
//	enforced by the caller (the wizard wraps every call in the shared
//	deadline utility); the embedded http.Client timeout is only a backstop.
//
// Thread Safety: Implementations must be safe for concurrent use.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}
