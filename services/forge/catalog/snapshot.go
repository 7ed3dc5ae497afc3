// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// maxSnapshotSchemas bounds how many schemas one snapshot inspects.
	maxSnapshotSchemas = 10

	// maxSnapshotTables bounds the tables kept per schema.
	maxSnapshotTables = 5

	// snapshotConcurrency bounds parallel ListTables calls so a snapshot of
	// a slow warehouse finishes in a few table-timeout windows, not ten.
	snapshotConcurrency = 4
)

// Snapshot is an ephemeral view of the catalog taken during auto discovery.
//
// Description:
//
//	Bounded to the first maxSnapshotSchemas schemas with at most
//	maxSnapshotTables tables each, so turn latency stays bounded no matter
//	how large the warehouse is. Never persisted; the session keeps a
//	filtered view of it.
//
// Thread Safety: Immutable after BuildSnapshot returns.
type Snapshot struct {
	// Schemas is the inspected schema list, gateway order preserved.
	Schemas []string

	// Tables maps each inspected schema to its first tables.
	Tables map[string][]string
}

// TablesFor returns the snapshot's tables for a schema (possibly empty).
func (s *Snapshot) TablesFor(schema string) []string {
	return s.Tables[schema]
}

// BuildSnapshot fetches a bounded catalog view through the gateway.
//
// Description:
//
//	Lists schemas once, then fans out table listings with bounded
//	concurrency. Expected to be called with a TimeboxedGateway, which never
//	errors on the listing calls; any error that does surface from another
//	Gateway implementation degrades that schema to an empty table list so a
//	snapshot is always produced.
//
// Inputs:
//   - ctx: Bounds the whole snapshot; cancellation stops remaining fan-out.
//   - gw: The catalog gateway. Must not be nil.
//
// Outputs:
//   - *Snapshot: Never nil. Schemas is non-empty whenever the gateway
//     honors the default-fallback contract.
//
// Thread Safety: Safe for concurrent use.
func BuildSnapshot(ctx context.Context, gw Gateway) *Snapshot {
	schemas, err := gw.ListSchemas(ctx)
	if err != nil || len(schemas) == 0 {
		schemas = DefaultSchemas()
	}
	if len(schemas) > maxSnapshotSchemas {
		schemas = schemas[:maxSnapshotSchemas]
	}

	results := make([][]string, len(schemas))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, schema := range schemas {
		g.Go(func() error {
			tables, err := gw.ListTables(groupCtx, schema)
			if err != nil {
				tables = nil
			}
			if len(tables) > maxSnapshotTables {
				tables = tables[:maxSnapshotTables]
			}
			results[i] = tables
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	tables := make(map[string][]string, len(schemas))
	for i, schema := range schemas {
		tables[schema] = results[i]
	}

	return &Snapshot{Schemas: schemas, Tables: tables}
}
