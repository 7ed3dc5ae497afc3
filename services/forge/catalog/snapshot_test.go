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
	"errors"
	"fmt"
	"testing"
)

func TestBuildSnapshot_CapsSchemas(t *testing.T) {
	var schemas []string
	tables := make(map[string][]string)
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("schema_%02d", i)
		schemas = append(schemas, name)
		tables[name] = []string{"t1"}
	}
	inner := &fakeGateway{schemas: schemas, tables: tables}

	snap := BuildSnapshot(context.Background(), inner)
	if len(snap.Schemas) != maxSnapshotSchemas {
		t.Fatalf("expected %d schemas, got %d", maxSnapshotSchemas, len(snap.Schemas))
	}
	// Gateway order preserved
	if snap.Schemas[0] != "schema_00" || snap.Schemas[9] != "schema_09" {
		t.Errorf("unexpected schema order: %v", snap.Schemas)
	}
	if len(snap.Tables) != maxSnapshotSchemas {
		t.Errorf("expected %d table entries, got %d", maxSnapshotSchemas, len(snap.Tables))
	}
}

func TestBuildSnapshot_CapsTablesPerSchema(t *testing.T) {
	var many []string
	for i := 0; i < 8; i++ {
		many = append(many, fmt.Sprintf("table_%d", i))
	}
	inner := &fakeGateway{
		schemas: []string{"public"},
		tables:  map[string][]string{"public": many},
	}

	snap := BuildSnapshot(context.Background(), inner)
	got := snap.TablesFor("public")
	if len(got) != maxSnapshotTables {
		t.Fatalf("expected %d tables, got %d", maxSnapshotTables, len(got))
	}
	if got[0] != "table_0" || got[4] != "table_4" {
		t.Errorf("expected first tables kept in order, got %v", got)
	}
}

func TestBuildSnapshot_SchemaErrorGivesDefaults(t *testing.T) {
	inner := &fakeGateway{schemasErr: errors.New("connection refused")}

	snap := BuildSnapshot(context.Background(), inner)
	if len(snap.Schemas) != 4 || snap.Schemas[0] != "public" {
		t.Errorf("expected default schemas, got %v", snap.Schemas)
	}
}

func TestBuildSnapshot_TableErrorsGiveEmptyLists(t *testing.T) {
	inner := &fakeGateway{
		schemas:   []string{"public", "sales"},
		tablesErr: errors.New("relation walk failed"),
	}

	snap := BuildSnapshot(context.Background(), inner)
	for _, schema := range snap.Schemas {
		if len(snap.TablesFor(schema)) != 0 {
			t.Errorf("expected empty tables for %s, got %v", schema, snap.TablesFor(schema))
		}
	}
}

func TestSnapshot_TablesForUnknownSchema(t *testing.T) {
	snap := &Snapshot{Schemas: []string{"public"}, Tables: map[string][]string{"public": {"users"}}}
	if got := snap.TablesFor("ghost"); len(got) != 0 {
		t.Errorf("expected empty tables for unknown schema, got %v", got)
	}
}
