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
	"regexp"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianForge/services/forge/config"
	"github.com/AleutianAI/AleutianForge/services/forge/invoke"
	"github.com/AleutianAI/AleutianForge/services/forge/providers"
	"github.com/AleutianAI/AleutianForge/services/llm"
)

var reWhitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeName normalizes a transformation name for persistence: keeps
// letters, digits, whitespace, hyphens and underscores, collapses each
// whitespace run to a single underscore, and upper-cases the result.
// Idempotent, and applied the same whether the name came from the model, a
// template, or a user rename.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(reWhitespaceRun.ReplaceAllString(b.String(), "_"))
}

// Namer proposes transformation names during auto discovery.
//
// Description:
//
//	Three-step chain: ask the namer model for suggestions (with naming-rule
//	context from the documentation corpus), fall back to the keyword
//	template families, and finally to the configured last-resort literal.
//	Every failure in the chain degrades to the next step; SuggestName never
//	errors.
//
// Thread Safety: Safe for concurrent use.
type Namer struct {
	client  providers.ChatClient
	advisor ContextAdvisor
}

// NewNamer builds a namer. client may be nil (templates only); advisor may
// be nil (no naming-rule context in the prompt).
func NewNamer(client providers.ChatClient, advisor ContextAdvisor) *Namer {
	return &Namer{client: client, advisor: advisor}
}

// SuggestName returns the best transformation name for the intent. The
// result is not yet sanitized; callers sanitize once at the point of use.
func (n *Namer) SuggestName(ctx context.Context, intent string, databases []string) string {
	if n != nil && n.client != nil && len(databases) > 0 {
		if suggestions := n.modelSuggestions(ctx, intent, databases); len(suggestions) > 0 {
			return suggestions[0]
		}
	}

	if suggestions := templateSuggestions(ctx, intent); len(suggestions) > 0 {
		return suggestions[0]
	}

	tpl, err := config.GetNamingTemplates(ctx)
	if err != nil {
		return "TRANSFORMATION"
	}
	return tpl.LastResort
}

// modelSuggestions asks the namer model for up to three UPPERCASE_UNDERSCORE
// names. Returns nil on any failure.
func (n *Namer) modelSuggestions(ctx context.Context, intent string, databases []string) []string {
	ragContext := ""
	if n.advisor != nil {
		query := "naming conventions transformation " + intent
		ragContext = n.advisor.ContextFor(ctx, query, "rules", "documentation")
	}

	system := namerSystemPrompt
	if ragContext != "" {
		system += "\n\nNaming Guidelines:" + ragContext
	}
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf(
			"Intent: %s\nDatabases: %s\n\nGenerate 3 transformation name suggestions.",
			intent, strings.Join(databases, ", "))},
	}

	reply, err := invoke.WithTimeout(ctx, modelCallTimeout, "wizard.suggest_name",
		func(callCtx context.Context) (string, error) {
			return n.client.Chat(callCtx, messages, providers.ChatOptions{ForceJSON: true})
		})
	if err != nil {
		slog.Warn("Name suggestion failed, falling back to templates",
			slog.String("error", err.Error()))
		return nil
	}

	var parsed struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := unmarshalModelJSON(reply, &parsed); err != nil {
		slog.Warn("Name suggestion reply unparseable, falling back to templates",
			slog.String("error", err.Error()))
		return nil
	}

	suggestions := parsed.Suggestions
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	out := suggestions[:0]
	for _, s := range suggestions {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// templateSuggestions matches the intent against the keyword template
// families. Families are checked in order and their suggestions
// concatenated, so a "sales performance" intent proposes the sales names
// first.
func templateSuggestions(ctx context.Context, intent string) []string {
	tpl, err := config.GetNamingTemplates(ctx)
	if err != nil {
		slog.Warn("Naming templates unavailable", slog.String("error", err.Error()))
		return nil
	}

	intentLower := strings.ToLower(intent)
	var suggestions []string
	for _, family := range tpl.Families {
		for _, keyword := range family.Keywords {
			if strings.Contains(intentLower, keyword) {
				suggestions = append(suggestions, family.Suggestions...)
				break
			}
		}
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, tpl.Defaults...)
	}
	if len(suggestions) > tpl.MaxSuggestions {
		suggestions = suggestions[:tpl.MaxSuggestions]
	}
	return suggestions
}
