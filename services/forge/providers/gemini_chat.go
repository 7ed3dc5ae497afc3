// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianForge/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GeminiChatAdapter wraps GeminiClient to implement ChatClient.
//
// Thread Safety: GeminiChatAdapter is safe for concurrent use.
type GeminiChatAdapter struct {
	client *llm.GeminiClient
}

// NewGeminiChatAdapter creates a new GeminiChatAdapter.
//
// Inputs:
//   - client: The GeminiClient to wrap. Must not be nil.
//
// Outputs:
//   - *GeminiChatAdapter: The configured adapter.
func NewGeminiChatAdapter(client *llm.GeminiClient) *GeminiChatAdapter {
	return &GeminiChatAdapter{client: client}
}

// Chat implements ChatClient by delegating to GeminiClient.Chat.
func (a *GeminiChatAdapter) Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("Gemini client is nil")
	}

	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "providers.GeminiChatAdapter.Chat",
		trace.WithAttributes(
			attribute.String("provider", "gemini"),
			attribute.Int("message_count", len(messages)),
			attribute.Float64("temperature", opts.Temperature),
		),
	)
	defer span.End()

	params := llm.GenerationParams{ForceJSON: opts.ForceJSON}
	if opts.Temperature >= 0 {
		temp := float32(opts.Temperature)
		params.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = &opts.MaxTokens
	}

	startTime := time.Now()
	result, err := a.client.Chat(ctx, messages, params)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordChatMetrics("gemini", duration, err)
		return "", err
	}

	recordChatMetrics("gemini", duration, nil)
	return result, nil
}
