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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all build wizard routes with the router.
//
// Description:
//
//	Registers all /v1/build/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/build/chat - Run one conversation turn
//	GET  /v1/build/chat/ws - Websocket conversation channel
//	POST /v1/build/reset - Reset a session
//	GET  /v1/build/specs - List persisted specifications
//	GET  /v1/build/specs/:id - Get one specification
//	GET  /v1/build/status - Subsystem status report
//
// Example:
//
//	service := forge.NewService(forge.ServiceConfig{Wizard: w})
//	handlers := forge.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	forge.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	RegisterRoutesWithMiddleware(rg, handlers, nil)
}

// RegisterRoutesWithMiddleware registers build routes with optional chat
// middleware.
//
// Description:
//
//	Same as RegisterRoutes but applies middleware (e.g., warmup guard) to
//	the conversation endpoints. Spec reads and the status report stay
//	unguarded so operators can watch a warming service. If middleware is
//	nil, no additional middleware is applied.
//
// Inputs:
//
//	rg - The router group to register routes under.
//	handlers - The handlers.
//	middleware - Optional middleware for the chat endpoints. Can be nil.
//
// Thread Safety: This function is safe for concurrent use.
func RegisterRoutesWithMiddleware(rg *gin.RouterGroup, handlers *Handlers, middleware gin.HandlerFunc) {
	build := rg.Group("/build")
	{
		// Conversation
		var chat *gin.RouterGroup
		if middleware != nil {
			chat = build.Group("/chat", middleware)
		} else {
			chat = build.Group("/chat")
		}
		{
			chat.POST("", handlers.HandleChat)
			chat.GET("/ws", handlers.HandleChatSocket)
		}

		build.POST("/reset", handlers.HandleReset)

		// Persisted specifications
		build.GET("/specs", handlers.HandleListSpecs)
		build.GET("/specs/:id", handlers.HandleGetSpec)

		// Subsystem health
		build.GET("/status", handlers.HandleStatus)
	}
}
