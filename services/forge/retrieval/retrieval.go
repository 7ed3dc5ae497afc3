// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements the advisory context layer for the build
// wizard: two Weaviate-backed vector corpora (reference documentation and
// prior finalized builds), the embedding clients that feed them, and the
// ingestion pipeline that keeps the documentation corpus current.
//
// The package degrades rather than fails. A missing Weaviate endpoint, an
// absent class, or a network error produces empty search results and a log
// line, never an error on the conversational read path. Write-path
// operations (ingestion, build indexing) do return errors so operators see
// them.
package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snippet is one retrieved fragment from a vector corpus.
//
// Score is normalized so that higher is better regardless of the distance
// metric the corpus was built with: certainty when the store reports one,
// otherwise 1/(1+distance).
type Snippet struct {
	Content  string
	Metadata map[string]string
	Score    float64
}

// BuildMatch is one prior finalized build returned by similarity search.
type BuildMatch struct {
	BuildID            string
	Intent             string
	TransformationName string
	Databases          []string
	Summary            string
	Score              float64
}

// Document categories recognized by the documentation corpus. Files outside
// these folders ingest under CategoryGeneral.
const (
	CategoryDocumentation = "documentation"
	CategorySchemas       = "schemas"
	CategoryExamples      = "examples"
	CategoryRules         = "rules"
	CategoryGeneral       = "general"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forge",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Vector similarity searches by corpus and outcome.",
		},
		[]string{"corpus", "outcome"},
	)

	vectorCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forge",
			Subsystem: "retrieval",
			Name:      "vector_cache_total",
			Help:      "Embedding corpus cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)

const (
	outcomeOK       = "ok"
	outcomeEmpty    = "empty"
	outcomeDegraded = "degraded"
)
