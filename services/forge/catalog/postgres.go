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
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AleutianAI/AleutianForge/services/llm"
)

const connectTimeout = 5 * time.Second

// PostgresGateway reads the warehouse catalog from information_schema over
// a shared pgx connection pool.
//
// Description:
//
//	The pool is established once at construction and reused for every
//	session. Identifier interpolation (the COUNT query is the only place
//	a name enters SQL text) goes through pgx.Identifier sanitization; all
//	other values are bound parameters.
//
// Thread Safety: Safe for concurrent use (pgxpool is concurrency-safe).
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway connects to the warehouse and verifies the connection.
//
// Inputs:
//   - ctx: Bounds the initial connect and ping.
//   - dsn: Postgres connection string. Never logged; parse errors pass
//     through redaction before they can reach a log line.
//
// Outputs:
//   - *PostgresGateway: Connected gateway. Caller owns Close.
//   - error: Non-nil if the DSN is invalid or the warehouse is unreachable.
func NewPostgresGateway(ctx context.Context, dsn string) (*PostgresGateway, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing warehouse DSN: %s", llm.SafeLogString(err.Error()))
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating warehouse pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: pinging warehouse: %w", err)
	}

	slog.Info("warehouse catalog connected",
		slog.String("database", poolCfg.ConnConfig.Database),
		slog.Int("max_conns", int(poolCfg.MaxConns)))

	return &PostgresGateway{pool: pool}, nil
}

// Close releases the connection pool.
func (g *PostgresGateway) Close() {
	g.pool.Close()
	slog.Info("warehouse catalog closed")
}

// ListSchemas returns user-visible schema names in name order.
func (g *PostgresGateway) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scanning schema name: %w", err)
		}
		schemas = append(schemas, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating schemas: %w", err)
	}

	return schemas, nil
}

// ListTables returns the base tables of one schema in name order.
func (g *PostgresGateway) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying tables for %s: %w", schema, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating tables: %w", err)
	}

	return tables, nil
}

// GetTableMetadata returns column detail, key flags, and the row count for
// one table.
func (g *PostgresGateway) GetTableMetadata(ctx context.Context, schema, table string) (*TableMetadata, error) {
	columns, err := g.queryColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("catalog: table %s.%s not found", schema, table)
	}

	pkSet, err := g.queryPrimaryKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	fkMap, err := g.queryForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	var businessKeys []string
	for i := range columns {
		if pkSet[columns[i].Name] {
			columns[i].IsPrimaryKey = true
			businessKeys = append(businessKeys, columns[i].Name)
		}
		if referred, ok := fkMap[columns[i].Name]; ok {
			columns[i].IsForeignKey = true
			columns[i].ForeignKeyTable = referred
		}
	}

	rowCount, err := g.CountRows(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	return &TableMetadata{
		Name:         table,
		SchemaName:   schema,
		Columns:      columns,
		BusinessKeys: businessKeys,
		RowCount:     rowCount,
	}, nil
}

// CountRows runs the scalar row-count query for one table.
func (g *PostgresGateway) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var count int64
	if err := g.pool.QueryRow(ctx, countQuerySQL(schema, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("catalog: counting rows of %s.%s: %w", schema, table, err)
	}
	return count, nil
}

// countQuerySQL builds the row-count statement. Identifiers cannot be bound
// parameters, so they pass through pgx's identifier sanitizer.
func countQuerySQL(schema, table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{schema, table}.Sanitize())
}

func (g *PostgresGateway) queryColumns(ctx context.Context, schema, table string) ([]ColumnMetadata, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []ColumnMetadata
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("catalog: scanning column: %w", err)
		}
		columns = append(columns, ColumnMetadata{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating columns: %w", err)
	}

	return columns, nil
}

func (g *PostgresGateway) queryPrimaryKeys(ctx context.Context, schema, table string) (map[string]bool, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		  AND tc.constraint_type = 'PRIMARY KEY'
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying primary keys of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	pkSet := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scanning primary key: %w", err)
		}
		pkSet[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating primary keys: %w", err)
	}

	return pkSet, nil
}

func (g *PostgresGateway) queryForeignKeys(ctx context.Context, schema, table string) (map[string]string, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name AS referred_table
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		  AND tc.constraint_type = 'FOREIGN KEY'
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying foreign keys of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	fkMap := make(map[string]string)
	for rows.Next() {
		var column, referred string
		if err := rows.Scan(&column, &referred); err != nil {
			return nil, fmt.Errorf("catalog: scanning foreign key: %w", err)
		}
		fkMap[column] = referred
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating foreign keys: %w", err)
	}

	return fkMap, nil
}
