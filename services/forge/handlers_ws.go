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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// wsWriteWait bounds a single frame write.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the read deadline; a connection that neither sends a
	// frame nor answers a ping within this window is dropped.
	wsPongWait = 60 * time.Second

	// wsPingPeriod must be shorter than wsPongWait so a healthy client
	// always refreshes its deadline in time.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsMaxMessageSize caps inbound frames. Chat turns are short; anything
	// larger is a misbehaving client.
	wsMaxMessageSize = 64 << 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The service fronts an internal tool; origin policy belongs to
		// the deployment's proxy.
		return true
	},
}

// wsClientFrame is one inbound chat message.
type wsClientFrame struct {
	Message string `json:"message"`
}

// HandleChatSocket handles GET /v1/build/chat/ws.
//
// Description:
//
//	Upgrades to a websocket and runs the conversation over it. The whole
//	connection is bound to one session: the session_id query parameter
//	when given, a minted uuid otherwise. Each inbound frame carries one
//	user message; each outbound frame is the same ChatResponse envelope
//	the REST endpoint returns. Invalid frames get an ErrorResponse frame
//	and the connection stays open. The server pings on wsPingPeriod and
//	drops connections that miss the wsPongWait read deadline.
//
// Query Parameters:
//
//	session_id: Optional session to resume
//
// Response:
//
//	101 Switching Protocols on success
//	503 Service Unavailable: Wizard not initialized
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleChatSocket(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChatSocket")

	if h.svc.wizard == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "build agent not available",
			Code:  "AGENT_NOT_AVAILABLE",
		})
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	logger.Info("websocket chat opened", slog.String("session_id", sessionID))

	for {
		var frame wsClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if strings.TrimSpace(frame.Message) == "" {
			if err := writeSocketJSON(conn, ErrorResponse{
				Error: "message is required",
				Code:  "INVALID_REQUEST",
			}); err != nil {
				return
			}
			continue
		}

		turn, err := h.svc.ProcessTurn(c.Request.Context(), sessionID, frame.Message)
		if err != nil {
			logger.Error("chat turn failed",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
			if err := writeSocketJSON(conn, ErrorResponse{
				Error: "failed to process conversation",
				Code:  "CHAT_FAILED",
			}); err != nil {
				return
			}
			continue
		}

		if err := writeSocketJSON(conn, chatEnvelope(sessionID, turn)); err != nil {
			logger.Warn("websocket write failed", slog.Any("error", err))
			return
		}
	}
}

// pingLoop keeps the connection's read deadline refreshable. WriteControl
// is safe to call concurrently with the handler's data writes.
func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeSocketJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}
