// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var retrievalTracer = otel.Tracer("forge.retrieval")

const (
	docsPerCategory   = 3
	docsUncategorized = 5
	similarBuildsK    = 3

	categorizedClipLen   = 500
	uncategorizedClipLen = 400
)

// DocumentSearcher is the read side of the documentation corpus.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int, category string) []Snippet
}

// BuildSearcher is the read side of the prior-builds corpus.
type BuildSearcher interface {
	SearchSimilar(ctx context.Context, query string, topK int) []BuildMatch
}

// Advisor composes both corpora into prompt context blocks.
//
// Description:
//
//	The wizard asks for context at three points: intent extraction
//	(documentation, examples, rules), schema discovery (schemas,
//	documentation) and naming (rules, documentation). The advisor returns
//	one string of labeled blocks ready to append to a system prompt, or
//	"" when neither corpus had anything relevant.
//
// Thread Safety: Advisor is safe for concurrent use.
type Advisor struct {
	docs   DocumentSearcher
	builds BuildSearcher
}

// NewAdvisor builds an advisor over the two corpora. Either searcher may
// be nil when that corpus is not configured.
func NewAdvisor(docs DocumentSearcher, builds BuildSearcher) *Advisor {
	return &Advisor{docs: docs, builds: builds}
}

// ContextFor retrieves documentation and similar-build context for a query.
//
// Inputs:
//   - query: Free text to search with, usually the user's own words.
//   - categories: Document categories to search, three per category. Empty
//     searches the whole documentation corpus with a wider cut.
//
// Outputs:
//   - string: Labeled context blocks joined by newlines, or "".
func (a *Advisor) ContextFor(ctx context.Context, query string, categories ...string) string {
	if a == nil {
		return ""
	}

	ctx, span := retrievalTracer.Start(ctx, "forge.retrieval.context")
	defer span.End()

	var parts []string
	parts = append(parts, a.documentBlocks(ctx, query, categories)...)
	parts = append(parts, a.buildBlock(ctx, query)...)

	span.SetAttributes(
		attribute.Int("retrieval.context_parts", len(parts)),
		attribute.Int("retrieval.categories", len(categories)),
	)

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// Documents searches the documentation corpus directly, bypassing block
// formatting. Used where the caller renders its own view of the results.
func (a *Advisor) Documents(ctx context.Context, query string, k int, category string) []Snippet {
	if a == nil || a.docs == nil {
		return nil
	}
	return a.docs.Search(ctx, query, k, category)
}

// SimilarBuilds searches the prior-builds corpus directly.
func (a *Advisor) SimilarBuilds(ctx context.Context, query string, topK int) []BuildMatch {
	if a == nil || a.builds == nil {
		return nil
	}
	return a.builds.SearchSimilar(ctx, query, topK)
}

func (a *Advisor) documentBlocks(ctx context.Context, query string, categories []string) []string {
	if a.docs == nil {
		return nil
	}

	var parts []string
	if len(categories) > 0 {
		for _, category := range categories {
			docs := a.docs.Search(ctx, query, docsPerCategory, category)
			if len(docs) == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("\n--- Relevant %s Documentation ---", strings.ToUpper(category)))
			for i, doc := range docs {
				parts = append(parts, fmt.Sprintf("\n[%d] %s (Score: %.2f)",
					i+1, snippetSource(doc), doc.Score))
				parts = append(parts, clip(doc.Content, categorizedClipLen)+"...")
			}
		}
		return parts
	}

	docs := a.docs.Search(ctx, query, docsUncategorized, "")
	if len(docs) == 0 {
		return nil
	}
	parts = append(parts, "\n--- Relevant Documentation ---")
	for i, doc := range docs {
		category := doc.Metadata["category"]
		if category == "" {
			category = CategoryGeneral
		}
		parts = append(parts, fmt.Sprintf("\n[%d] %s (%s)", i+1, snippetSource(doc), category))
		parts = append(parts, clip(doc.Content, uncategorizedClipLen)+"...")
	}
	return parts
}

func (a *Advisor) buildBlock(ctx context.Context, query string) []string {
	if a.builds == nil {
		return nil
	}

	builds := a.builds.SearchSimilar(ctx, query, similarBuildsK)
	if len(builds) == 0 {
		return nil
	}

	parts := []string{"\n--- Similar Past Builds ---"}
	for i, build := range builds {
		name := build.TransformationName
		if name == "" {
			name = "Unnamed"
		}
		intent := build.Intent
		if intent == "" {
			intent = "N/A"
		}
		parts = append(parts, fmt.Sprintf("\n[%d] %s (Score: %.2f)", i+1, name, build.Score))
		parts = append(parts, "Intent: "+intent)
		parts = append(parts, "Databases: "+strings.Join(build.Databases, ", "))
	}
	return parts
}

func snippetSource(s Snippet) string {
	if src := s.Metadata["source"]; src != "" {
		return src
	}
	return "Document"
}

// clip truncates to at most n runes without splitting a multi-byte
// character.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
