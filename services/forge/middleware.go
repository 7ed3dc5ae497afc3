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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestIDMiddleware tags every request with an id for log correlation.
// An inbound X-Request-ID is honored so ids survive proxy hops; otherwise
// a fresh uuid is minted. The id is echoed on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// getOrCreateRequestID returns the request id set by RequestIDMiddleware,
// minting one when the middleware was not installed (direct handler tests,
// embedded routers).
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}

// WarmupGuard rejects requests with 503 and a Retry-After header until
// ready reports true. cmd/forge installs it on the chat endpoints while
// the embedding backend warms, so sessions never start against a
// retrieval layer that cannot answer yet.
func WarmupGuard(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready() {
			c.Next()
			return
		}
		c.Header("Retry-After", "5")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "service is warming up, try again shortly",
			Code:  "WARMING_UP",
		})
	}
}
