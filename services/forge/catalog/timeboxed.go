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
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianForge/services/forge/invoke"
)

// ErrGatewayDisabled is returned by metadata calls after a configuration
// error has permanently disabled the warehouse gateway.
var ErrGatewayDisabled = errors.New("catalog: warehouse gateway disabled")

var (
	catalogCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forge",
			Subsystem: "catalog",
			Name:      "call_duration_seconds",
			Help:      "Warehouse catalog call latency by call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"call"},
	)

	catalogDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forge",
			Subsystem: "catalog",
			Name:      "degraded_total",
			Help:      "Catalog calls that substituted defaults, by call and reason.",
		},
		[]string{"call", "reason"},
	)
)

// GatewayTimeouts bounds each catalog call class.
type GatewayTimeouts struct {
	// Schemas bounds ListSchemas.
	Schemas time.Duration

	// Tables bounds each ListTables call.
	Tables time.Duration

	// Metadata bounds GetTableMetadata and CountRows.
	Metadata time.Duration
}

// DefaultGatewayTimeouts returns the production bounds: schema listing gets
// five seconds, per-schema table listing and metadata three.
func DefaultGatewayTimeouts() GatewayTimeouts {
	return GatewayTimeouts{
		Schemas:  5 * time.Second,
		Tables:   3 * time.Second,
		Metadata: 3 * time.Second,
	}
}

// TimeboxedGateway bounds every call to an inner Gateway and substitutes
// safe defaults so conversation turns survive a slow or broken warehouse.
//
// Description:
//
//	ListSchemas degrades to DefaultSchemas and ListTables to an empty list;
//	neither ever returns an error. A configuration or authentication error
//	from the inner gateway permanently disables it for the process
//	lifetime: subsequent calls short-circuit to defaults without touching
//	the warehouse again. Timeouts and transient connection failures leave
//	the gateway enabled for the next turn. Metadata calls are bounded too
//	but surface their errors, since callers use them opportunistically.
//
// Thread Safety: Safe for concurrent use.
type TimeboxedGateway struct {
	inner    Gateway
	timeouts GatewayTimeouts
	disabled atomic.Bool
}

// NewTimeboxedGateway wraps inner with per-call deadlines and fallbacks.
func NewTimeboxedGateway(inner Gateway, timeouts GatewayTimeouts) *TimeboxedGateway {
	return &TimeboxedGateway{inner: inner, timeouts: timeouts}
}

// ListSchemas returns the warehouse's schemas, or the fixed default list
// when the warehouse is disabled, slow, broken, or empty. Never errors.
func (g *TimeboxedGateway) ListSchemas(ctx context.Context) ([]string, error) {
	if g.disabled.Load() {
		catalogDegradedTotal.WithLabelValues("list_schemas", "disabled").Inc()
		return DefaultSchemas(), nil
	}

	start := time.Now()
	schemas, err := invoke.WithTimeout(ctx, g.timeouts.Schemas, "catalog.list_schemas", g.inner.ListSchemas)
	catalogCallDuration.WithLabelValues("list_schemas").Observe(time.Since(start).Seconds())

	if err != nil {
		g.noteFailure("list_schemas", err)
		return DefaultSchemas(), nil
	}
	if len(schemas) == 0 {
		catalogDegradedTotal.WithLabelValues("list_schemas", "empty").Inc()
		return DefaultSchemas(), nil
	}
	return schemas, nil
}

// ListTables returns one schema's tables, or an empty list when the
// warehouse is disabled, slow, or broken. Never errors.
func (g *TimeboxedGateway) ListTables(ctx context.Context, schema string) ([]string, error) {
	if g.disabled.Load() {
		catalogDegradedTotal.WithLabelValues("list_tables", "disabled").Inc()
		return []string{}, nil
	}

	start := time.Now()
	tables, err := invoke.WithTimeout(ctx, g.timeouts.Tables, "catalog.list_tables",
		func(ctx context.Context) ([]string, error) {
			return g.inner.ListTables(ctx, schema)
		})
	catalogCallDuration.WithLabelValues("list_tables").Observe(time.Since(start).Seconds())

	if err != nil {
		g.noteFailure("list_tables", err)
		return []string{}, nil
	}
	return tables, nil
}

// GetTableMetadata bounds the inner call but passes errors through.
func (g *TimeboxedGateway) GetTableMetadata(ctx context.Context, schema, table string) (*TableMetadata, error) {
	if g.disabled.Load() {
		catalogDegradedTotal.WithLabelValues("get_table_metadata", "disabled").Inc()
		return nil, ErrGatewayDisabled
	}

	start := time.Now()
	meta, err := invoke.WithTimeout(ctx, g.timeouts.Metadata, "catalog.get_table_metadata",
		func(ctx context.Context) (*TableMetadata, error) {
			return g.inner.GetTableMetadata(ctx, schema, table)
		})
	catalogCallDuration.WithLabelValues("get_table_metadata").Observe(time.Since(start).Seconds())

	if err != nil {
		g.noteFailure("get_table_metadata", err)
		return nil, err
	}
	return meta, nil
}

// CountRows bounds the inner call but passes errors through.
func (g *TimeboxedGateway) CountRows(ctx context.Context, schema, table string) (int64, error) {
	if g.disabled.Load() {
		catalogDegradedTotal.WithLabelValues("count_rows", "disabled").Inc()
		return 0, ErrGatewayDisabled
	}

	start := time.Now()
	count, err := invoke.WithTimeout(ctx, g.timeouts.Metadata, "catalog.count_rows",
		func(ctx context.Context) (int64, error) {
			return g.inner.CountRows(ctx, schema, table)
		})
	catalogCallDuration.WithLabelValues("count_rows").Observe(time.Since(start).Seconds())

	if err != nil {
		g.noteFailure("count_rows", err)
		return 0, err
	}
	return count, nil
}

// Disabled reports whether the gateway has been permanently disabled.
func (g *TimeboxedGateway) Disabled() bool {
	return g.disabled.Load()
}

// noteFailure records the degradation and disables the gateway for the rest
// of the process lifetime when the failure is one no retry can fix.
func (g *TimeboxedGateway) noteFailure(call string, err error) {
	reason := "error"
	if isTimeoutError(err) {
		reason = "timeout"
	} else if isConfigError(err) {
		reason = "config"
		if g.disabled.CompareAndSwap(false, true) {
			slog.Error("warehouse catalog permanently disabled, serving defaults",
				slog.String("call", call),
				slog.Any("error", err))
		}
	}
	catalogDegradedTotal.WithLabelValues(call, reason).Inc()

	if reason != "config" {
		slog.Warn("catalog call degraded to defaults",
			slog.String("call", call),
			slog.String("reason", reason),
			slog.Any("error", err))
	}
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, invoke.ErrTimedOut) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout")
}

// isConfigError reports whether the failure is authentication or
// configuration trouble that re-attempting every turn cannot fix.
func isConfigError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sqlstate 28"): // invalid_authorization_specification family
		return true
	case strings.Contains(msg, "authentication"):
		return true
	case strings.Contains(msg, "password"):
		return true
	case strings.Contains(msg, "parsing warehouse dsn"):
		return true
	case strings.Contains(msg, "sqlstate 3d"): // invalid_catalog_name: database does not exist
		return true
	case strings.Contains(msg, "does not exist") && strings.Contains(msg, "database"):
		return true
	default:
		return false
	}
}
