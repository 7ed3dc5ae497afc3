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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// NewWeaviateClient builds a client for the vector store behind the two
// retrieval corpora. host is bare host:port; scheme is http or https.
// Construction does not dial; liveness is probed per call.
func NewWeaviateClient(scheme, host string) (*weaviate.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("retrieval: weaviate host is required")
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")

	client, err := weaviate.NewClient(weaviate.Config{
		Scheme: scheme,
		Host:   host,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: creating weaviate client: %w", err)
	}
	return client, nil
}

// isLive reports whether the vector store answers its liveness probe.
// Any transport or server error reads as not live.
func isLive(ctx context.Context, client *weaviate.Client) bool {
	live, err := client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return false
	}
	return live
}

// ensureClass creates the class when it does not exist yet. Concurrent
// creators can race; an "already exists" rejection from the server is
// treated as success.
func ensureClass(ctx context.Context, client *weaviate.Client, class *models.Class) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(class.Class).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("retrieval: checking class %s: %w", class.Class, err)
	}
	if exists {
		return nil
	}

	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("retrieval: creating class %s: %w", class.Class, err)
	}

	slog.Info("Created vector store class", slog.String("class", class.Class))
	return nil
}

// graphqlRows digs the per-class object list out of a GraphQL Get response.
// Returns nil when the shape is not what a Get query produces.
func graphqlRows(resp *models.GraphQLResponse, className string) []map[string]interface{} {
	if resp == nil {
		return nil
	}
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

// graphqlErrors flattens response errors into one message for logging.
func graphqlErrors(resp *models.GraphQLResponse) string {
	if resp == nil || len(resp.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// rowString reads a string property off a result row.
func rowString(row map[string]interface{}, key string) string {
	s, _ := row[key].(string)
	return s
}

// rowScore normalizes a row's similarity to higher-is-better. Certainty is
// preferred when the server reports it (cosine metric); otherwise the
// distance folds through 1/(1+distance). Rows with neither score as 0.
func rowScore(row map[string]interface{}) float64 {
	add, ok := row["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	if c, ok := add["certainty"].(float64); ok && c > 0 {
		return c
	}
	if d, ok := add["distance"].(float64); ok {
		return 1.0 / (1.0 + d)
	}
	return 0
}
