// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forge exposes the build wizard over HTTP: a gin REST surface, a
// websocket chat channel, and the status endpoint operators poll to see
// which subsystems came up. Every subsystem except the wizard itself is
// optional; handlers degrade to 503 with a stable error code when a
// dependency was not configured rather than failing at startup.
package forge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/storage"
	"github.com/AleutianAI/AleutianForge/services/forge/wizard"
)

// TurnRecorder receives one event per completed chat turn. Implementations
// must not block; the turn analytics sink writes asynchronously.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn *wizard.TurnResult, duration time.Duration)
}

// ServiceConfig wires the subsystems the HTTP surface serves. Wizard is
// required; everything else may be left zero when the corresponding
// backend is not configured, and the status endpoint reports the gaps.
type ServiceConfig struct {
	Wizard *wizard.Wizard
	Builds *storage.BuildStore
	Turns  TurnRecorder

	// LLMConfigured, CatalogConfigured, and RetrievalAvailable describe
	// what cmd/forge managed to bring up; they feed the status report
	// and the warmup decision.
	LLMConfigured      bool
	CatalogConfigured  bool
	RetrievalAvailable bool

	// StartupErrors are human-readable notes about subsystems that were
	// configured but failed to initialize. They surface verbatim in the
	// status report.
	StartupErrors []string
}

// Service owns the HTTP-facing view of the build wizard.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	wizard *wizard.Wizard
	builds *storage.BuildStore
	turns  TurnRecorder

	llmConfigured      bool
	catalogConfigured  bool
	retrievalAvailable bool
	startupErrors      []string

	warmed atomic.Bool
}

// NewService builds a Service from the wired subsystems. When retrieval is
// not available there is nothing to warm, so the service starts ready;
// otherwise cmd/forge flips readiness with SetWarmed once the embedding
// backend answered its first probe.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		wizard:             cfg.Wizard,
		builds:             cfg.Builds,
		turns:              cfg.Turns,
		llmConfigured:      cfg.LLMConfigured,
		catalogConfigured:  cfg.CatalogConfigured,
		retrievalAvailable: cfg.RetrievalAvailable,
		startupErrors:      cfg.StartupErrors,
	}
	if !cfg.RetrievalAvailable {
		s.warmed.Store(true)
	}
	return s
}

// ProcessTurn runs one conversation turn and reports it to the turn
// analytics sink when one is configured.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, message string) (*wizard.TurnResult, error) {
	start := time.Now()
	turn, err := s.wizard.ProcessTurn(ctx, sessionID, message)
	if err == nil && s.turns != nil {
		s.turns.RecordTurn(ctx, sessionID, turn, time.Since(start))
	}
	return turn, err
}

// ResetSession discards the session's conversation state. Unknown ids are
// a no-op.
func (s *Service) ResetSession(sessionID string) {
	s.wizard.ResetSession(sessionID)
}

// SetWarmed marks the retrieval warmup as finished. Called once by the
// cmd/forge warmup goroutine.
func (s *Service) SetWarmed() {
	s.warmed.Store(true)
}

// Warmed reports whether the service is ready to take chat traffic.
func (s *Service) Warmed() bool {
	return s.warmed.Load()
}

// StatusReport describes which subsystems are serving. Errors collects
// startup failures plus a note per subsystem that is down, so a single
// status call explains a degraded deployment.
type StatusReport struct {
	AgentInitialized   bool     `json:"agent_initialized"`
	LLMConfigured      bool     `json:"llm_configured"`
	CatalogConfigured  bool     `json:"catalog_configured"`
	RetrievalAvailable bool     `json:"retrieval_available"`
	StorageInitialized bool     `json:"storage_initialized"`
	ActiveSessions     int      `json:"active_sessions"`
	Warmed             bool     `json:"warmed"`
	Errors             []string `json:"errors"`
}

// Status assembles the subsystem report served by GET /v1/build/status.
func (s *Service) Status() StatusReport {
	report := StatusReport{
		AgentInitialized:   s.wizard != nil,
		LLMConfigured:      s.llmConfigured,
		CatalogConfigured:  s.catalogConfigured,
		RetrievalAvailable: s.retrievalAvailable,
		StorageInitialized: s.builds != nil,
		Warmed:             s.warmed.Load(),
		Errors:             make([]string, 0, len(s.startupErrors)+4),
	}
	report.Errors = append(report.Errors, s.startupErrors...)

	if s.wizard == nil {
		report.Errors = append(report.Errors, "build wizard is not initialized")
	} else {
		report.ActiveSessions = s.wizard.Sessions().Len()
	}
	if !s.llmConfigured {
		report.Errors = append(report.Errors, "no language model is configured")
	}
	if !s.catalogConfigured {
		report.Errors = append(report.Errors, "warehouse catalog is not connected")
	}
	if s.builds == nil {
		report.Errors = append(report.Errors, "build storage is not available")
	}
	return report
}
