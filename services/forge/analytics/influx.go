// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics records wizard turns into InfluxDB so operators can see
// how conversations move through the stages: where sessions stall, how long
// turns take, and how many reach completion. The sink uses the non-blocking
// write API; a turn is never delayed by a slow or absent InfluxDB.
package analytics

import (
	"context"
	"log/slog"
	"time"

	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/AleutianForge/services/forge/wizard"
)

// measurementTurn is the InfluxDB measurement one point per turn lands in.
const measurementTurn = "forge_wizard_turn"

// Sink writes one point per wizard turn.
//
// Thread Safety: RecordTurn is safe for concurrent use; the underlying
// write API batches internally.
type Sink struct {
	api influxdb2api.WriteAPI
}

// NewSink wraps a non-blocking write API. The api's error channel is
// drained into the log so failed batches are visible without ever
// blocking a writer; the goroutine exits when the owning client closes.
func NewSink(api influxdb2api.WriteAPI) *Sink {
	s := &Sink{api: api}
	if api != nil {
		go func() {
			for err := range api.Errors() {
				slog.Warn("Turn analytics write failed", slog.String("error", err.Error()))
			}
		}()
	}
	return s
}

// RecordTurn emits one point for a completed turn. Stage is the only tag;
// session ids are unbounded and stay fields to keep series cardinality
// flat. A nil api drops the point.
func (s *Sink) RecordTurn(ctx context.Context, sessionID string, turn *wizard.TurnResult, duration time.Duration) {
	if s == nil || s.api == nil || turn == nil {
		return
	}

	tags := map[string]string{
		"stage": string(turn.Stage),
	}
	fields := map[string]any{
		"session_id":     sessionID,
		"duration_ms":    float64(duration.Milliseconds()),
		"requires_input": turn.RequiresInput,
		"completed":      turn.Stage == wizard.StageComplete,
	}

	point := write.NewPoint(measurementTurn, tags, fields, time.Now())
	if turn.BuildSpecification != nil {
		point.AddField("build_id", turn.BuildSpecification.ID)
	}
	if turn.PersistenceWarning != "" {
		point.AddField("persistence_degraded", true)
	}

	s.api.WritePoint(point)
}
