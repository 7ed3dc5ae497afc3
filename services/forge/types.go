// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package forge

import (
	"github.com/AleutianAI/AleutianForge/services/forge/storage"
	"github.com/AleutianAI/AleutianForge/services/forge/wizard"
)

// ChatRequest is the body of POST /v1/build/chat. A missing session_id
// starts a new conversation; the minted id comes back in the response and
// must be replayed on every following turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// ChatResponse is the envelope returned for every successful chat turn,
// over REST and over the websocket alike. Hints and Data are always
// present, even when empty, so clients can render them without key
// checks. BuildID and BuildSpecification appear only on the turn that
// completes the conversation; Warning carries the partial-success note
// when the build finished but could not be persisted.
type ChatResponse struct {
	Success            bool                        `json:"success"`
	SessionID          string                      `json:"session_id"`
	Stage              string                      `json:"stage"`
	Message            string                      `json:"message"`
	Hints              []string                    `json:"hints"`
	RequiresInput      bool                        `json:"requires_input"`
	Data               *wizard.Collected           `json:"data"`
	BuildSpecification *storage.BuildSpecification `json:"build_specification,omitempty"`
	BuildID            string                      `json:"build_id,omitempty"`
	Warning            string                      `json:"warning,omitempty"`
}

// ResetRequest is the body of POST /v1/build/reset.
type ResetRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// ResetResponse acknowledges a session reset.
type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListSpecsResponse carries persisted build specifications, newest first.
type ListSpecsResponse struct {
	Success bool                          `json:"success"`
	Builds  []*storage.BuildSpecification `json:"builds"`
}

// GetSpecResponse carries a single persisted build specification.
type GetSpecResponse struct {
	Success bool                        `json:"success"`
	Build   *storage.BuildSpecification `json:"build"`
}

// StatusResponse wraps the subsystem report for GET /v1/build/status.
type StatusResponse struct {
	Success bool         `json:"success"`
	Status  StatusReport `json:"status"`
}

// ErrorResponse is the uniform error body for all endpoints. Error is a
// short human-readable description that never carries raw collaborator
// errors; Code is a stable machine-readable identifier.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// chatEnvelope converts a wizard turn into the wire envelope. The wizard
// omits empty hints and data from its own JSON form; the envelope pins
// both keys so the contract holds on every turn.
func chatEnvelope(sessionID string, turn *wizard.TurnResult) ChatResponse {
	hints := turn.Hints
	if hints == nil {
		hints = []string{}
	}
	data := turn.Data
	if data == nil {
		data = &wizard.Collected{}
	}

	resp := ChatResponse{
		Success:            true,
		SessionID:          sessionID,
		Stage:              string(turn.Stage),
		Message:            turn.Message,
		Hints:              hints,
		RequiresInput:      turn.RequiresInput,
		Data:               data,
		BuildSpecification: turn.BuildSpecification,
		Warning:            turn.PersistenceWarning,
	}
	if turn.BuildSpecification != nil {
		resp.BuildID = turn.BuildSpecification.ID
	}
	return resp
}
