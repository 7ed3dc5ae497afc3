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
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when a model-backed step has no client or the
// provider rejects our credentials. Conversation retries cannot fix it; the
// wizard tells the user to contact the operator instead of apologizing.
var ErrNotConfigured = errors.New("language model not configured")

// ErrAlreadyFinalized is returned when finalize runs for a session that
// already completed. Guards against duplicate specifications from a repeated
// confirmation.
var ErrAlreadyFinalized = errors.New("session already finalized")

// ExtractionError wraps a transient failure of a model-backed step (timeout,
// network error, unparseable reply). The session stays in its stage so the
// user can simply try again.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("intent extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError reports user input or collected state that cannot proceed
// (empty name, no databases). Rendered as a corrective prompt; the stage
// does not advance.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// isAuthError classifies a provider error as a credentials problem so the
// intent handler can render operator guidance instead of a retry apology.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"api key", "authentication", "unauthorized", "status 401", "status 403"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
