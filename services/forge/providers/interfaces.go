// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines provider-agnostic interfaces and factories for
// the LLM backends used by the forge wizard. It enables per-role provider
// configuration (Main, Ranker, Namer) so each role can use a different
// provider (Ollama, Anthropic, OpenAI, Gemini).
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for concurrent use.
package providers

import (
	"context"

	"github.com/AleutianAI/AleutianForge/services/llm"
)

// ChatClient is the interface every wizard role speaks to its model through.
//
// Description:
//
//	The wizard only needs simple chat (no tool calls, no streaming). This
//	minimal interface makes adapters trivial for any provider, and lets
//	tests substitute a canned client.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages (system, user, assistant).
	//   - opts: Provider-agnostic chat options.
	//
	// Outputs:
	//   - string: The assistant's response text.
	//   - error: Non-nil on failure.
	Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error)
}

// ChatOptions holds provider-agnostic options for a chat request.
//
// Description:
//
//	The model, endpoint, and Ollama VRAM settings are pinned per role at
//	client construction; per-request options cover only what varies between
//	wizard calls.
type ChatOptions struct {
	// Temperature controls randomness (0.0-1.0). Set to 0.0 for most
	// deterministic output. Set to a negative value (e.g., -1) to omit
	// from the request and use the provider's default. The Go zero value
	// (0.0) is treated as an explicit "most deterministic" setting.
	Temperature float64

	// MaxTokens limits the response length. Zero omits the limit except on
	// Anthropic, where the wire client substitutes its mandatory default.
	MaxTokens int

	// ForceJSON requests a single JSON object as the response. Native on
	// OpenAI, Gemini, and Ollama; a no-op on Anthropic, where the prompt
	// must carry the instruction instead.
	ForceJSON bool
}
