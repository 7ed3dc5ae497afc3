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
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

//go:embed static_catalog.yaml
var defaultStaticCatalogYAML []byte

// DefaultSchemas returns the fixed fallback schema list used whenever the
// warehouse cannot be consulted. Always non-empty so a degraded turn still
// has something to converse about.
func DefaultSchemas() []string {
	return []string{"public", "sales", "customer", "orders"}
}

// StaticCatalog is a compiled-in catalog for deployments without a warehouse.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type StaticCatalog struct {
	// Schemas is the schema list, in presentation order.
	Schemas []string `yaml:"schemas"`

	// Tables maps schema name to its sample table names.
	Tables map[string][]string `yaml:"tables"`
}

// LoadStaticCatalog parses and validates a StaticCatalog from YAML bytes.
func LoadStaticCatalog(data []byte) (*StaticCatalog, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("LoadStaticCatalog: empty YAML data")
	}

	var cat StaticCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("LoadStaticCatalog: parsing YAML: %w", err)
	}

	if len(cat.Schemas) == 0 {
		return nil, fmt.Errorf("LoadStaticCatalog: schemas must not be empty")
	}

	return &cat, nil
}

// StaticGateway serves the embedded catalog. Used when no warehouse DSN is
// configured so the conversation can still run end to end.
//
// Thread Safety: Safe for concurrent use (read-only data).
type StaticGateway struct {
	cat *StaticCatalog
}

// NewStaticGateway creates a gateway over the embedded static catalog.
//
// Outputs:
//
//	*StaticGateway - Never nil. If the embedded YAML fails to parse (which
//	the package tests prevent), the gateway falls back to DefaultSchemas
//	with no tables.
func NewStaticGateway() *StaticGateway {
	cat, err := LoadStaticCatalog(defaultStaticCatalogYAML)
	if err != nil {
		slog.Warn("embedded static catalog failed to load, using bare defaults",
			slog.Any("error", err))
		cat = &StaticCatalog{Schemas: DefaultSchemas()}
	}
	return &StaticGateway{cat: cat}
}

// ListSchemas returns the static schema list.
func (g *StaticGateway) ListSchemas(_ context.Context) ([]string, error) {
	out := make([]string, len(g.cat.Schemas))
	copy(out, g.cat.Schemas)
	return out, nil
}

// ListTables returns the sample tables for a schema, or an empty list for
// schemas the static catalog does not know.
func (g *StaticGateway) ListTables(_ context.Context, schema string) ([]string, error) {
	tables := g.cat.Tables[schema]
	out := make([]string, len(tables))
	copy(out, tables)
	return out, nil
}

// GetTableMetadata always fails: the static catalog carries no column detail.
func (g *StaticGateway) GetTableMetadata(_ context.Context, schema, table string) (*TableMetadata, error) {
	return nil, fmt.Errorf("catalog: static catalog has no metadata for %s.%s", schema, table)
}

// CountRows always fails: the static catalog carries no row counts.
func (g *StaticGateway) CountRows(_ context.Context, schema, table string) (int64, error) {
	return 0, fmt.Errorf("catalog: static catalog has no row counts for %s.%s", schema, table)
}
