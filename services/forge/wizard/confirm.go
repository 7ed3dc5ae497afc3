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
	"strings"
)

const (
	// confirmTablesShown caps how many tables the view lists per schema.
	confirmTablesShown = 5

	// confirmIntentClip caps the intent excerpt in a similar-build line.
	confirmIntentClip = 50
)

// confirmationView renders the full collected specification with
// suggestions from the retrieval corpora and the confirm/change prompt.
func (w *Wizard) confirmationView(ctx context.Context, sess *Session) *TurnResult {
	c := &sess.Collected

	parts := []string{
		fmt.Sprintf("I found %d database(s): %s", len(c.Databases), strings.Join(c.Databases, ", ")),
	}

	if len(c.Tables) > 0 {
		byDB := make(map[string][]string)
		var order []string
		for _, ref := range c.Tables {
			if _, ok := byDB[ref.Schema]; !ok {
				order = append(order, ref.Schema)
			}
			byDB[ref.Schema] = append(byDB[ref.Schema], ref.Table)
		}

		var lines []string
		for _, db := range order {
			tables := byDB[db]
			shown := tables
			ellipsis := ""
			if len(shown) > confirmTablesShown {
				shown = shown[:confirmTablesShown]
				ellipsis = "..."
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s%s", db, strings.Join(shown, ", "), ellipsis))
		}
		parts = append(parts, "I'll use these tables:\n"+strings.Join(lines, "\n"))
	}

	parts = append(parts, "Name: "+c.TransformationName)
	if c.UseExistingConnection {
		parts = append(parts, "Connection: Using existing connection")
	} else {
		parts = append(parts, "Connection: New connection")
	}

	parts = append(parts, w.suggestionLines(ctx, sess)...)
	parts = append(parts, "\nSound good? (Say 'yes' to proceed, or tell me what to change)")

	return &TurnResult{
		Stage:         StageConfirmation,
		Message:       strings.Join(parts, "\n"),
		Hints:         []string{},
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// suggestionLines pulls up to two similar builds and one example document
// for the confirmation view. Both corpora degrade to nothing.
func (w *Wizard) suggestionLines(ctx context.Context, sess *Session) []string {
	if w.advisor == nil || sess.Collected.Intent == "" {
		return nil
	}

	query := strings.TrimSpace(sess.Collected.Intent + " " +
		sess.Collected.TransformationName + " " +
		strings.Join(sess.Collected.Databases, " "))

	docs := w.advisor.Documents(ctx, query, 2, "examples")
	builds := w.advisor.SimilarBuilds(ctx, query, 2)
	if len(docs) == 0 && len(builds) == 0 {
		return nil
	}

	lines := []string{"\n💡 Suggestions based on similar builds and documentation:"}
	for _, build := range builds {
		name := build.TransformationName
		if name == "" {
			name = "Unnamed"
		}
		intent := build.Intent
		if intent == "" {
			intent = "N/A"
		}
		lines = append(lines, fmt.Sprintf("  - Similar build: %s (Intent: %s...)",
			name, clipRunes(intent, confirmIntentClip)))
	}
	if len(docs) > 0 {
		source := docs[0].Metadata["source"]
		if source == "" {
			source = "Document"
		}
		lines = append(lines, fmt.Sprintf("  - See: %s for examples", source))
	}
	return lines
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
