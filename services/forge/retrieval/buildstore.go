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
	"log/slog"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const buildClassName = "ForgeBuild"

// minBuildScore drops weak prior-build matches. Below this threshold a
// past build is more likely to mislead the wizard than to help it.
const minBuildScore = 0.5

const defaultBuildSearchK = 5

// BuildRecord is the searchable digest of one finalized build.
type BuildRecord struct {
	BuildID            string
	Intent             string
	TransformationName string
	TransformationType string
	Databases          []string
	Tables             []string
}

// BuildStore is the prior-builds corpus.
//
// Description:
//
//	Each finalized specification is flattened into one searchable summary
//	line and upserted into the ForgeBuild class under a deterministic ID,
//	so re-finalizing a build replaces its entry. Similarity search feeds
//	the wizard "you built something like this before" context.
//
// Thread Safety: BuildStore is safe for concurrent use.
type BuildStore struct {
	client   *weaviate.Client
	embedder Embedder
}

// NewBuildStore wires the corpus to a Weaviate client and an embedder.
func NewBuildStore(client *weaviate.Client, embedder Embedder) *BuildStore {
	return &BuildStore{client: client, embedder: embedder}
}

func buildClass() *models.Class {
	return &models.Class{
		Class:       buildClassName,
		Description: "Finalized build specifications for similarity lookup",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "summary", DataType: []string{"text"}},
			{Name: "intent", DataType: []string{"text"}},
			{Name: "transformationName", DataType: []string{"text"}},
			{Name: "databases", DataType: []string{"text"}},
			{Name: "buildId", DataType: []string{"text"}},
		},
	}
}

func buildObjectID(buildID string) strfmt.UUID {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte("forge/build/"+buildID))
	return strfmt.UUID(u.String())
}

// buildSearchText flattens a record into the text that gets embedded.
// Empty fields are skipped so sparse records still embed cleanly.
func buildSearchText(rec BuildRecord) string {
	parts := make([]string, 0, 5)
	if rec.Intent != "" {
		parts = append(parts, "Intent: "+rec.Intent)
	}
	if rec.TransformationName != "" {
		parts = append(parts, "Transformation: "+rec.TransformationName)
	}
	if len(rec.Databases) > 0 {
		parts = append(parts, "Databases: "+strings.Join(rec.Databases, ", "))
	}
	if len(rec.Tables) > 0 {
		parts = append(parts, "Tables: "+strings.Join(rec.Tables, ", "))
	}
	if rec.TransformationType != "" {
		parts = append(parts, "Type: "+rec.TransformationType)
	}
	return strings.Join(parts, " | ")
}

// EnsureSchema creates the ForgeBuild class when missing.
func (s *BuildStore) EnsureSchema(ctx context.Context) error {
	return ensureClass(ctx, s.client, buildClass())
}

// Available reports whether the corpus can answer searches right now.
func (s *BuildStore) Available(ctx context.Context) bool {
	return s != nil && s.client != nil && isLive(ctx, s.client)
}

// IndexBuild embeds and upserts one finalized build.
//
// Description:
//
//	Runs after the specification has been persisted; failures here never
//	block or roll back a finalize. Callers log the error and move on.
func (s *BuildStore) IndexBuild(ctx context.Context, rec BuildRecord) error {
	if rec.BuildID == "" {
		return fmt.Errorf("retrieval: build record has no ID")
	}

	text := buildSearchText(rec)
	if text == "" {
		return fmt.Errorf("retrieval: build %s has nothing to index", rec.BuildID)
	}

	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("retrieval: embedding build %s: %w", rec.BuildID, err)
	}
	if len(vecs) == 0 {
		return fmt.Errorf("retrieval: embedder returned no vector for build %s", rec.BuildID)
	}

	obj := &models.Object{
		Class: buildClassName,
		ID:    buildObjectID(rec.BuildID),
		Properties: map[string]interface{}{
			"summary":            text,
			"intent":             rec.Intent,
			"transformationName": rec.TransformationName,
			"databases":          strings.Join(rec.Databases, ", "),
			"buildId":            rec.BuildID,
		},
		Vector: vecs[0],
	}

	if _, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx); err != nil {
		return fmt.Errorf("retrieval: indexing build %s: %w", rec.BuildID, err)
	}

	slog.Info("Indexed finalized build",
		slog.String("build_id", rec.BuildID),
		slog.String("transformation", rec.TransformationName),
	)
	return nil
}

// SearchSimilar returns up to topK prior builds scoring at or above the
// floor, best first. Degrades to empty results on every failure mode.
func (s *BuildStore) SearchSimilar(ctx context.Context, query string, topK int) []BuildMatch {
	if s == nil || s.client == nil {
		return nil
	}
	if topK <= 0 {
		topK = defaultBuildSearchK
	}

	vec, err := EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		slog.Warn("Build search degraded, query embedding failed",
			slog.String("error", err.Error()))
		searchesTotal.WithLabelValues("builds", outcomeDegraded).Inc()
		return nil
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(buildClassName).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(topK).
		WithFields(
			graphql.Field{Name: "summary"},
			graphql.Field{Name: "intent"},
			graphql.Field{Name: "transformationName"},
			graphql.Field{Name: "databases"},
			graphql.Field{Name: "buildId"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "certainty"},
				{Name: "distance"},
			}},
		).
		Do(ctx)
	if err != nil {
		slog.Warn("Build search degraded, vector store unreachable",
			slog.String("error", err.Error()))
		searchesTotal.WithLabelValues("builds", outcomeDegraded).Inc()
		return nil
	}
	if msg := graphqlErrors(resp); msg != "" {
		slog.Warn("Build search degraded, vector store rejected query",
			slog.String("error", msg))
		searchesTotal.WithLabelValues("builds", outcomeDegraded).Inc()
		return nil
	}

	rows := graphqlRows(resp, buildClassName)
	matches := make([]BuildMatch, 0, len(rows))
	for _, row := range rows {
		score := rowScore(row)
		if score < minBuildScore {
			continue
		}
		matches = append(matches, BuildMatch{
			BuildID:            rowString(row, "buildId"),
			Intent:             rowString(row, "intent"),
			TransformationName: rowString(row, "transformationName"),
			Databases:          splitDatabases(rowString(row, "databases")),
			Summary:            rowString(row, "summary"),
			Score:              score,
		})
	}

	if len(matches) == 0 {
		searchesTotal.WithLabelValues("builds", outcomeEmpty).Inc()
	} else {
		searchesTotal.WithLabelValues("builds", outcomeOK).Inc()
	}
	return matches
}

func splitDatabases(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
