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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianForge/services/llm"
)

const guardMaxRetries = 2

// GuardedChatClient decorates a ChatClient with rate limiting and retries.
//
// Description:
//
//	Every provider call first passes the token-bucket limiter, then runs
//	under exponential-backoff retry. Only transient failures (timeout,
//	rate limit, 5xx) are retried; configuration failures such as a bad API
//	key surface immediately, because retrying them just burns quota and
//	delays the operator's diagnosis.
//
// Thread Safety: GuardedChatClient is safe for concurrent use.
type GuardedChatClient struct {
	inner    ChatClient
	limiter  *rate.Limiter
	provider string
}

// NewGuardedChatClient wraps inner with a rate limiter and retry policy.
//
// Inputs:
//   - inner: The ChatClient to guard. Must not be nil.
//   - provider: Provider label for log lines.
//   - rps: Sustained requests per second allowed through.
//   - burst: Bucket size for short bursts.
//
// Outputs:
//   - *GuardedChatClient: The configured decorator.
func NewGuardedChatClient(inner ChatClient, provider string, rps float64, burst int) *GuardedChatClient {
	return &GuardedChatClient{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		provider: provider,
	}
}

// Chat implements ChatClient with rate limiting and transient-error retry.
func (g *GuardedChatClient) Chat(ctx context.Context, messages []llm.Message, opts ChatOptions) (string, error) {
	if g.inner == nil {
		return "", fmt.Errorf("guarded chat client is nil")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var result string
	attempt := 0
	operation := func() error {
		attempt++
		r, err := g.inner.Chat(ctx, messages, opts)
		if err != nil {
			if !isTransientChatError(err) {
				return backoff.Permanent(err)
			}
			slog.Warn("Transient chat failure, will retry",
				slog.String("provider", g.provider),
				slog.Int("attempt", attempt),
				slog.String("error_type", classifyChatError(err)),
			)
			return err
		}
		result = r
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 5 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, guardMaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return result, nil
}
