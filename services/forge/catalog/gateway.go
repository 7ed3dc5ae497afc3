// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides bounded-time, failure-tolerant access to the
// warehouse schema catalog.
//
// The concrete PostgresGateway talks to the warehouse; TimeboxedGateway
// wraps any Gateway with per-call deadlines and substitutes safe defaults
// when the warehouse is slow, broken, or permanently misconfigured, so a
// conversation turn is never blocked on database trouble. StaticGateway
// serves a small embedded catalog when no warehouse is configured at all.
//
// The gateway is a process-wide shared resource: the lifecycle owner
// constructs one and injects it; nothing in the conversational path opens
// its own connections.
package catalog

import "context"

// TableRef names one table by schema and table name.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// ColumnMetadata describes one column of a warehouse table.
type ColumnMetadata struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	Nullable        bool   `json:"nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key"`
	IsForeignKey    bool   `json:"is_foreign_key"`
	ForeignKeyTable string `json:"foreign_key_table,omitempty"`
}

// TableMetadata describes a warehouse table.
//
// Description:
//
//	Fetched opportunistically (e.g. when describing a table to the user);
//	the happy path of the conversation never requires it.
type TableMetadata struct {
	Name       string           `json:"name"`
	SchemaName string           `json:"schema_name"`
	Columns    []ColumnMetadata `json:"columns"`

	// BusinessKeys are the primary key column names, in column order.
	BusinessKeys []string `json:"business_keys"`

	RowCount int64 `json:"row_count"`
}

// Gateway is the warehouse catalog surface the wizard depends on.
//
// Description:
//
//	ListSchemas and ListTables feed auto discovery; GetTableMetadata and
//	CountRows exist for opportunistic enrichment. Implementations wrapped
//	by TimeboxedGateway degrade ListSchemas/ListTables to safe defaults
//	rather than returning errors; metadata calls surface their errors since
//	callers already treat them as best-effort.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Gateway interface {
	// ListSchemas returns the warehouse's schema names in a stable order.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns the base table names of one schema in a stable order.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// GetTableMetadata returns column and row-count detail for one table.
	GetTableMetadata(ctx context.Context, schema, table string) (*TableMetadata, error)

	// CountRows returns the row count of one table.
	CountRows(ctx context.Context, schema, table string) (int64, error)
}
