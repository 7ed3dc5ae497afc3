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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianForge/services/forge/storage"
)

// Handlers carries the HTTP handlers for the build wizard service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the handler set for a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleChat handles POST /v1/build/chat.
//
// Description:
//
//	Runs one conversation turn against the build wizard. A request
//	without a session_id starts a new session under a minted uuid.
//
// Request Body:
//
//	ChatRequest (message required, session_id optional)
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: Missing or empty message
//	500 Internal Server Error: Turn processing failed
//	503 Service Unavailable: Wizard not initialized
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	if h.svc.wizard == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "build agent not available",
			Code:  "AGENT_NOT_AVAILABLE",
		})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "message is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	turn, err := h.svc.ProcessTurn(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		logger.Error("chat turn failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to process conversation",
			Code:  "CHAT_FAILED",
		})
		return
	}

	logger.Info("chat turn complete",
		slog.String("session_id", sessionID),
		slog.String("stage", string(turn.Stage)),
		slog.Bool("requires_input", turn.RequiresInput),
	)

	c.JSON(http.StatusOK, chatEnvelope(sessionID, turn))
}

// HandleReset handles POST /v1/build/reset.
//
// Description:
//
//	Discards a session's conversation state. Resetting an unknown
//	session succeeds; the operation is idempotent.
//
// Request Body:
//
//	ResetRequest (session_id required)
//
// Response:
//
//	200 OK: ResetResponse
//	400 Bad Request: Missing session_id
//	503 Service Unavailable: Wizard not initialized
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReset")

	if h.svc.wizard == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "build agent not available",
			Code:  "AGENT_NOT_AVAILABLE",
		})
		return
	}

	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	h.svc.ResetSession(req.SessionID)
	logger.Info("session reset", slog.String("session_id", req.SessionID))

	c.JSON(http.StatusOK, ResetResponse{
		Success: true,
		Message: "Session reset successfully",
	})
}

// HandleListSpecs handles GET /v1/build/specs.
//
// Description:
//
//	Lists persisted build specifications, newest first.
//
// Query Parameters:
//
//	limit: Maximum results, default 50
//
// Response:
//
//	200 OK: ListSpecsResponse
//	500 Internal Server Error: Storage read failed
//	503 Service Unavailable: Storage not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListSpecs(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListSpecs")

	if h.svc.builds == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "build storage not available",
			Code:  "STORAGE_NOT_AVAILABLE",
		})
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	specs, err := h.svc.builds.List(limit)
	if err != nil {
		logger.Error("failed to list builds", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list build specifications",
			Code:  "STORAGE_READ_FAILED",
		})
		return
	}
	if specs == nil {
		specs = []*storage.BuildSpecification{}
	}

	logger.Info("listed builds", slog.Int("count", len(specs)))

	c.JSON(http.StatusOK, ListSpecsResponse{
		Success: true,
		Builds:  specs,
	})
}

// HandleGetSpec handles GET /v1/build/specs/:id.
//
// Description:
//
//	Returns one persisted build specification.
//
// Path Parameters:
//
//	id: Build id assigned at save time (required)
//
// Response:
//
//	200 OK: GetSpecResponse
//	400 Bad Request: Missing id
//	404 Not Found: No build with that id
//	503 Service Unavailable: Storage not configured
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetSpec(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetSpec")

	if h.svc.builds == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "build storage not available",
			Code:  "STORAGE_NOT_AVAILABLE",
		})
		return
	}

	buildID := c.Param("id")
	if buildID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "build id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	spec, err := h.svc.builds.Get(buildID)
	if err != nil {
		if errors.Is(err, storage.ErrBuildNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "build not found",
				Code:  "BUILD_NOT_FOUND",
			})
			return
		}
		logger.Error("failed to load build", slog.String("build_id", buildID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to load build specification",
			Code:  "STORAGE_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, GetSpecResponse{
		Success: true,
		Build:   spec,
	})
}

// HandleStatus handles GET /v1/build/status.
//
// Description:
//
//	Reports which subsystems are serving. The endpoint stays available
//	while the service warms so operators can watch startup progress.
//
// Response:
//
//	200 OK: StatusResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Success: true,
		Status:  h.svc.Status(),
	})
}
