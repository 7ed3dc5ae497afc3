// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package invoke provides the one deadline-bounded call primitive shared by
// every outbound collaborator call in the forge service (language model,
// warehouse catalog, embedding store). Call sites never hand-roll their own
// goroutine-and-select timeout logic; they describe the operation and the
// bound, and WithTimeout does the rest.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is returned when a bounded call does not complete within its
// window. Callers match it with errors.Is to distinguish an abandoned call
// from a failure the collaborator itself reported.
var ErrTimedOut = errors.New("call timed out")

// WithTimeout runs fn under a derived deadline and abandons it on expiry.
//
// Description:
//
//	Executes fn on its own goroutine with a context bounded by timeout. If
//	fn finishes in time, its result and error are returned unchanged. If the
//	bound elapses first, WithTimeout returns ErrTimedOut (wrapped with op)
//	immediately; the worker goroutine is left to drain into a buffered
//	channel and exit on its own once it observes cancellation, so an
//	abandoned call never blocks the turn that gave up on it and never leaks
//	a goroutine that is waiting on a send.
//
// Inputs:
//   - ctx: Parent context. Cancellation of the parent also abandons the call.
//   - timeout: Upper bound on the wait. Zero or negative runs fn inline with
//     no added bound.
//   - op: Short operation label used in the timeout error ("llm.extract",
//     "catalog.list_schemas").
//   - fn: The call to bound. Must honor context cancellation to actually
//     stop doing work; WithTimeout only guarantees the caller stops waiting.
//
// Outputs:
//   - T: fn's result when it completed in time; the zero value otherwise.
//   - error: fn's error, ErrTimedOut on expiry, or the parent context's
//     error when the parent was cancelled first.
//
// Thread Safety: Safe for concurrent use. Each call owns its worker.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}

	// Buffered so an abandoned worker can always deliver its result and exit.
	results := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- outcome{err: fmt.Errorf("%s: panic in bounded call: %v", op, r)}
			}
		}()
		v, err := fn(callCtx)
		results <- outcome{val: v, err: err}
	}()

	select {
	case out := <-results:
		return out.val, out.err
	case <-callCtx.Done():
		if parentErr := ctx.Err(); parentErr != nil {
			return zero, fmt.Errorf("%s: %w", op, parentErr)
		}
		return zero, fmt.Errorf("%s: %w after %s", op, ErrTimedOut, timeout)
	}
}
