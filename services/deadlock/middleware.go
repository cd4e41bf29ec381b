// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deadlock

import (
	"net/http"
	"strconv"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/observability"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit limits mutating requests (POST, PATCH, DELETE) to rps with the
// given burst. Reads are never limited. A non-positive rps disables the
// limiter.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete:
			if !limiter.Allow() {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
					Error: "rate limit exceeded",
					Code:  CodeRateLimited,
				})
				return
			}
		}
		c.Next()
	}
}

// RequestMetrics counts requests by route template and status code.
// Unmatched routes are counted under "unmatched".
func RequestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}
