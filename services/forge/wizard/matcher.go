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
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/invoke"
	"github.com/AleutianAI/AleutianForge/services/forge/providers"
	"github.com/AleutianAI/AleutianForge/services/llm"
)

// maxMatchedSchemas caps how many schemas a match may select.
const maxMatchedSchemas = 3

// maxRankedSchemas caps how many schemas the ranker prompt describes.
const maxRankedSchemas = 10

// Matcher resolves an extracted intent to warehouse schemas.
//
// Description:
//
//	Tiered: cheap heuristics first, then (when a ranker model is
//	configured and the heuristics found nothing) a model ranking over
//	per-schema table summaries, then the mentioned-or-first fallback.
//	Whatever the tier, the result never exceeds three schemas and never
//	contains a name absent from the available list.
//
// Thread Safety: Safe for concurrent use.
type Matcher struct {
	ranker  providers.ChatClient
	advisor ContextAdvisor
}

// NewMatcher builds a matcher. ranker may be nil (heuristics and fallback
// only); advisor may be nil (no retrieved context in the ranking prompt).
func NewMatcher(ranker providers.ChatClient, advisor ContextAdvisor) *Matcher {
	return &Matcher{ranker: ranker, advisor: advisor}
}

// Match selects up to three schemas for the intent.
//
// Inputs:
//   - intent: The extracted intent. Must not be nil.
//   - available: Schemas that exist, in catalog order.
//   - index: Snapshot of each schema's first tables, used for the ranking
//     prompt summaries.
//
// Outputs:
//   - []string: 0 to 3 schema names, all present in available. Empty only
//     when available is empty.
func (m *Matcher) Match(ctx context.Context, intent *Intent, available []string, index map[string][]string) []string {
	if len(available) == 0 {
		return nil
	}

	if matched := heuristicMatch(intent, available); len(matched) > 0 {
		return matched
	}

	if m != nil && m.ranker != nil {
		if ranked := m.rankSchemas(ctx, intent, available, index); len(ranked) > 0 {
			return ranked
		}
	}

	return fallbackMatch(intent.MentionedDatabases, available)
}

// heuristicMatch scans the available schemas in order and keeps those whose
// name contains a keyword, contains an intent word longer than three
// characters, or overlaps a mentioned name in either direction. Deduplicated
// in encounter order, capped at three.
func heuristicMatch(intent *Intent, available []string) []string {
	intentWords := strings.Fields(strings.ToLower(intent.Goal))
	keywords := lowerAll(intent.Keywords)
	mentioned := lowerAll(intent.MentionedDatabases)

	var matched []string
	seen := make(map[string]bool, len(available))
	for _, schema := range available {
		if seen[schema] {
			continue
		}
		schemaLower := strings.ToLower(schema)

		hit := false
		for _, kw := range keywords {
			if kw != "" && strings.Contains(schemaLower, kw) {
				hit = true
				break
			}
		}
		if !hit {
			for _, word := range intentWords {
				if len(word) > 3 && strings.Contains(schemaLower, word) {
					hit = true
					break
				}
			}
		}
		if !hit {
			for _, name := range mentioned {
				if name != "" && (strings.Contains(schemaLower, name) || strings.Contains(name, schemaLower)) {
					hit = true
					break
				}
			}
		}

		if hit {
			matched = append(matched, schema)
			seen[schema] = true
			if len(matched) == maxMatchedSchemas {
				break
			}
		}
	}
	return matched
}

// rankSchemas asks the ranker model to pick schemas given table summaries
// and retrieved context. Model suggestions not present in available are
// discarded. Returns nil on any failure.
func (m *Matcher) rankSchemas(ctx context.Context, intent *Intent, available []string, index map[string][]string) []string {
	ragContext := ""
	if m.advisor != nil {
		query := strings.TrimSpace(intent.Goal + " " +
			strings.Join(intent.Keywords, " ") + " " +
			strings.Join(intent.MentionedDatabases, " "))
		ragContext = m.advisor.ContextFor(ctx, query, "schemas", "documentation")
	}

	described := available
	if len(described) > maxRankedSchemas {
		described = described[:maxRankedSchemas]
	}
	summaries := make([]string, 0, len(described))
	for _, schema := range described {
		tables := index[schema]
		sample := tables
		if len(sample) > 3 {
			sample = sample[:3]
		}
		summaries = append(summaries, fmt.Sprintf("%s (has %d tables: %s)",
			schema, len(tables), strings.Join(sample, ", ")))
	}

	system := rankerSystemPrompt
	if ragContext != "" {
		system += "\n\nRelevant Documentation:" + ragContext
	}
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf(
			"User Intent: %s\nKeywords: %s\nMentioned Databases: %s\nAvailable Schemas: %s\n\nSelect the most relevant database(s) for this intent.",
			intent.Goal,
			joinOrNone(intent.Keywords),
			joinOrNone(intent.MentionedDatabases),
			strings.Join(summaries, "\n"))},
	}

	reply, err := invoke.WithTimeout(ctx, modelCallTimeout, "wizard.rank_schemas",
		func(callCtx context.Context) (string, error) {
			return m.ranker.Chat(callCtx, messages, providers.ChatOptions{ForceJSON: true})
		})
	if err != nil {
		slog.Warn("Schema ranking failed, falling back",
			slog.String("error", err.Error()))
		return nil
	}

	var parsed struct {
		SelectedDatabases []string `json:"selected_databases"`
	}
	if err := unmarshalModelJSON(reply, &parsed); err != nil {
		slog.Warn("Schema ranking reply unparseable, falling back",
			slog.String("error", err.Error()))
		return nil
	}

	valid := make([]string, 0, maxMatchedSchemas)
	seen := make(map[string]bool, len(parsed.SelectedDatabases))
	for _, name := range parsed.SelectedDatabases {
		if seen[name] || !containsString(available, name) {
			continue
		}
		valid = append(valid, name)
		seen[name] = true
		if len(valid) == maxMatchedSchemas {
			break
		}
	}
	return valid
}

// fallbackMatch returns mentioned schemas that exist (substring overlap in
// either direction), else the first available schema.
func fallbackMatch(mentioned, available []string) []string {
	var matched []string
	seen := make(map[string]bool)
	for _, name := range mentioned {
		nameLower := strings.ToLower(name)
		for _, schema := range available {
			schemaLower := strings.ToLower(schema)
			if strings.Contains(schemaLower, nameLower) || strings.Contains(nameLower, schemaLower) {
				if !seen[schema] {
					matched = append(matched, schema)
					seen[schema] = true
				}
				break
			}
		}
		if len(matched) == maxMatchedSchemas {
			break
		}
	}
	if len(matched) == 0 && len(available) > 0 {
		matched = []string{available[0]}
	}
	return matched
}

// selectTables keeps the tables whose name contains a keyword or an intent
// word longer than three characters, capped at five; with no matches it
// falls back to the schema's first three tables.
func selectTables(intent *Intent, tables []string) []string {
	if len(tables) == 0 {
		return nil
	}

	intentWords := strings.Fields(strings.ToLower(intent.Goal))
	keywords := lowerAll(intent.Keywords)

	var relevant []string
	for _, table := range tables {
		tableLower := strings.ToLower(table)
		hit := false
		for _, kw := range keywords {
			if kw != "" && strings.Contains(tableLower, kw) {
				hit = true
				break
			}
		}
		if !hit {
			for _, word := range intentWords {
				if len(word) > 3 && strings.Contains(tableLower, word) {
					hit = true
					break
				}
			}
		}
		if hit {
			relevant = append(relevant, table)
		}
	}

	if len(relevant) > 5 {
		relevant = relevant[:5]
	}
	if len(relevant) == 0 {
		count := min(3, len(tables))
		relevant = append(relevant, tables[:count]...)
	}
	return relevant
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func joinOrNone(in []string) string {
	if len(in) == 0 {
		return "none"
	}
	return strings.Join(in, ", ")
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
