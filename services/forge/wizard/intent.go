// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wizard

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianForge/services/forge/invoke"
	"github.com/AleutianAI/AleutianForge/services/forge/providers"
	"github.com/AleutianAI/AleutianForge/services/llm"
)

// Extractor turns free text into a structured Intent via the main model.
//
// Description:
//
//	Pure call: builds the fixed extraction instruction plus optional
//	retrieved context, sends the user's text, and parses the JSON reply.
//	Never mutates session state; the caller stores the returned fields.
//
// Thread Safety: Safe for concurrent use.
type Extractor struct {
	client providers.ChatClient
}

// NewExtractor builds an extractor over the main-role chat client. client
// may be nil, in which case every Extract reports ErrNotConfigured.
func NewExtractor(client providers.ChatClient) *Extractor {
	return &Extractor{client: client}
}

// Configured reports whether an extraction model is available.
func (e *Extractor) Configured() bool {
	return e != nil && e.client != nil
}

// Extract parses the user's text into a structured Intent.
//
// Inputs:
//   - ctx: Bounds the turn; the model call itself is capped at 30s.
//   - userText: The user's message, verbatim.
//   - ragContext: Optional retrieved context appended to the system prompt.
//     Empty means no context was available.
//
// Outputs:
//   - *Intent: Goal defaults to userText and TransformationType to
//     "transformation" when the model omits them.
//   - error: ErrNotConfigured when no model or credentials are available
//     (wrapped when the provider rejected the call); *ExtractionError for
//     timeouts, transport failures, and unparseable replies.
func (e *Extractor) Extract(ctx context.Context, userText, ragContext string) (*Intent, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}

	system := intentSystemPrompt
	if ragContext != "" {
		system += "\n\nRelevant Context:" + ragContext
	}
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf(
			"User input: %s\n\nExtract the intent and any mentioned databases/tables.", userText)},
	}

	reply, err := invoke.WithTimeout(ctx, modelCallTimeout, "wizard.extract_intent",
		func(callCtx context.Context) (string, error) {
			return e.client.Chat(callCtx, messages, providers.ChatOptions{ForceJSON: true})
		})
	if err != nil {
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		return nil, &ExtractionError{Err: err}
	}

	var intent Intent
	if err := unmarshalModelJSON(reply, &intent); err != nil {
		return nil, &ExtractionError{Err: err}
	}

	if intent.Goal == "" {
		intent.Goal = userText
	}
	if intent.TransformationType == "" {
		intent.TransformationType = "transformation"
	}
	return &intent, nil
}
