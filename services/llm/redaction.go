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

import "regexp"

// redactionPattern pairs a compiled regex with a labeled replacement so the
// log reader knows what class of secret was present without seeing it.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns is ordered most-specific-first: the Anthropic prefix
// must run before the generic "sk-" OpenAI pattern or a key like
// "sk-ant-api03-…" would be only partially redacted. The warehouse DSN
// patterns exist because forge logs catalog errors, and a misconfigured
// deployment can echo its connection string straight into one.
var redactionPatterns = []redactionPattern{
	{regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`), "key=[REDACTED]"},
	{regexp.MustCompile(`password=[^\s&]{3,}`), "password=[REDACTED]"},
	{regexp.MustCompile(`(postgres|postgresql|mysql|mongodb|snowflake)://[^\s]+@`), "${1}://[REDACTED]@"},
}

// SafeLogString redacts known secret patterns from a string before logging.
//
// Description:
//
//	Replaces API keys, bearer tokens, passwords, and credentialed connection
//	strings with labeled placeholders. Every log statement in this package
//	and in the forge service that could carry model output, provider error
//	bodies, or catalog errors routes through this function first.
//
// Inputs:
//   - s: The string to redact. Empty input returns empty output.
//
// Outputs:
//   - string: The input with all matched secret patterns replaced; unchanged
//     when nothing matched.
//
// Limitations:
//   - Pattern-based only; a secret in an unrecognized format passes through.
//   - Single-line matching; a secret split across lines is not caught.
//
// Thread Safety: Safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}
