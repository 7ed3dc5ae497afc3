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

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const documentClassName = "ForgeDocument"

const defaultDocSearchK = 5

// DocumentChunk is one ingestion unit headed for the documentation corpus.
type DocumentChunk struct {
	Source   string
	Category string
	Index    int
	Content  string
}

// DocumentStore is the reference-documentation corpus.
//
// Description:
//
//	Chunks of operator-provided documentation live in the ForgeDocument
//	class, embedded externally (Vectorizer "none") so the same embedder
//	serves both write and query sides. Search degrades to empty results
//	when the store is unreachable; only the write path surfaces errors.
//
// Thread Safety: DocumentStore is safe for concurrent use.
type DocumentStore struct {
	client   *weaviate.Client
	embedder Embedder
}

// NewDocumentStore wires the corpus to a Weaviate client and an embedder.
func NewDocumentStore(client *weaviate.Client, embedder Embedder) *DocumentStore {
	return &DocumentStore{client: client, embedder: embedder}
}

func documentClass() *models.Class {
	return &models.Class{
		Class:       documentClassName,
		Description: "Chunked reference documentation for build advice",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
		},
	}
}

// chunkKey is the natural key of one chunk. It names cache map entries and
// seeds the deterministic object ID, so re-ingesting a file overwrites its
// previous chunks instead of duplicating them.
func chunkKey(source string, index int) string {
	return fmt.Sprintf("%s#%d", source, index)
}

func documentObjectID(source string, index int) strfmt.UUID {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte("forge/doc/"+chunkKey(source, index)))
	return strfmt.UUID(u.String())
}

// EnsureSchema creates the ForgeDocument class when missing.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	return ensureClass(ctx, s.client, documentClass())
}

// Available reports whether the corpus can answer searches right now.
func (s *DocumentStore) Available(ctx context.Context) bool {
	return s != nil && s.client != nil && isLive(ctx, s.client)
}

// IndexChunks batch-upserts pre-embedded chunks into the corpus.
//
// Inputs:
//   - chunks: Chunk texts and metadata.
//   - vectors: One vector per chunk, same order.
//
// Outputs:
//   - error: Non-nil on length mismatch or when the batch write fails.
func (s *DocumentStore) IndexChunks(ctx context.Context, chunks []DocumentChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("retrieval: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(chunks))
	for i, chunk := range chunks {
		objects = append(objects, &models.Object{
			Class: documentClassName,
			ID:    documentObjectID(chunk.Source, chunk.Index),
			Properties: map[string]interface{}{
				"content":    chunk.Content,
				"category":   chunk.Category,
				"source":     chunk.Source,
				"chunkIndex": chunk.Index,
			},
			Vector: vectors[i],
		})
	}

	if _, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx); err != nil {
		return fmt.Errorf("retrieval: indexing %d document chunks: %w", len(chunks), err)
	}

	slog.Info("Indexed document chunks",
		slog.String("source", chunks[0].Source),
		slog.Int("chunks", len(chunks)),
	)
	return nil
}

// Search returns the k nearest documentation chunks for a query, optionally
// restricted to one category. Empty category searches the whole corpus.
//
// Description:
//
//	Degrades to an empty result on every failure mode: unconfigured store,
//	embedder unavailable, vector store down, class missing. The failure is
//	logged and counted; the conversational caller never sees an error.
func (s *DocumentStore) Search(ctx context.Context, query string, k int, category string) []Snippet {
	if s == nil || s.client == nil {
		return nil
	}
	if k <= 0 {
		k = defaultDocSearchK
	}

	vec, err := EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		slog.Warn("Document search degraded, query embedding failed",
			slog.String("error", err.Error()))
		searchesTotal.WithLabelValues("documents", outcomeDegraded).Inc()
		return nil
	}

	builder := s.client.GraphQL().Get().
		WithClassName(documentClassName).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(k).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "category"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "certainty"},
				{Name: "distance"},
			}},
		)
	if category != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString(category))
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		slog.Warn("Document search degraded, vector store unreachable",
			slog.String("error", err.Error()))
		searchesTotal.WithLabelValues("documents", outcomeDegraded).Inc()
		return nil
	}
	if msg := graphqlErrors(resp); msg != "" {
		slog.Warn("Document search degraded, vector store rejected query",
			slog.String("error", msg))
		searchesTotal.WithLabelValues("documents", outcomeDegraded).Inc()
		return nil
	}

	rows := graphqlRows(resp, documentClassName)
	snippets := make([]Snippet, 0, len(rows))
	for _, row := range rows {
		snippets = append(snippets, Snippet{
			Content: rowString(row, "content"),
			Metadata: map[string]string{
				"source":   rowString(row, "source"),
				"category": rowString(row, "category"),
			},
			Score: rowScore(row),
		})
	}

	if len(snippets) == 0 {
		searchesTotal.WithLabelValues("documents", outcomeEmpty).Inc()
	} else {
		searchesTotal.WithLabelValues("documents", outcomeOK).Inc()
	}
	return snippets
}
