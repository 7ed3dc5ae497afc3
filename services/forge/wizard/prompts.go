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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// modelCallTimeout bounds every model-backed wizard step. A turn may make a
// few of these in sequence (extract, rank, name), so the bound is per call.
const modelCallTimeout = 30 * time.Second

const intentSystemPrompt = `You are a helpful AI Data Engineer assistant. Your job is to understand what the user wants to build.

Extract from the user's input:
1. What they want to accomplish (intent)
2. Any mentioned databases or data sources
3. Any mentioned tables or data entities
4. The type of transformation (dashboard, report, pipeline, etc.)

Use the provided documentation and similar past builds as context to better understand the user's intent and suggest appropriate transformations.

Return JSON with:
- intent: What the user wants to accomplish (brief description)
- mentioned_databases: List of database names mentioned (if any)
- mentioned_tables: List of table names mentioned (if any)
- transformation_type: Type of transformation (dashboard, report, pipeline, analytics, etc.)
- keywords: List of key words that might help match to databases/tables`

const rankerSystemPrompt = `You are a helpful AI assistant that matches user intent to database schemas.
Use the provided documentation to understand database structures and naming conventions.

Given the user's intent and available schemas, select the most relevant database(s).

Return JSON with:
- selected_databases: List of schema names that match the intent (1-3 schemas)
- reasoning: Brief explanation of why these schemas were selected`

const namerSystemPrompt = `You are a helpful AI assistant that generates transformation names based on user intent and database names.

Generate 3 transformation name suggestions in UPPERCASE with underscores (e.g., SALES_DASHBOARD, PERFORMANCE_MONITORING).

The names should be:
- Descriptive and clear
- Related to the intent and databases
- Professional and concise
- In UPPERCASE with underscores

Return JSON with:
- suggestions: List of 3 transformation name strings`

// unmarshalModelJSON decodes a model reply into out, tolerating the usual
// decoration: markdown code fences and prose before or after the object.
// Takes the outermost brace pair so a reply that embeds JSON mid-sentence
// still parses.
func unmarshalModelJSON(reply string, out any) error {
	s := strings.TrimSpace(reply)
	if s == "" {
		return fmt.Errorf("empty response from model")
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in response: %s", truncateForLog(s, 100))
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), out); err != nil {
		return fmt.Errorf("parsing model JSON: %w", err)
	}
	return nil
}

func truncateForLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
