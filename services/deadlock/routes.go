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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the deadlock API with the router group.
//
// Description:
//
//	Registers all /api/* endpoints with the given Gin router group. The
//	group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically the engine root)
//	h - The handlers instance
//
// Process Endpoints:
//
//	POST  /api/process/create - Create a process
//	POST  /api/process/request - Request one resource instance
//	POST  /api/process/release - Release one resource instance
//	POST  /api/process/terminate - Terminate a process
//	GET   /api/process/:id - Get a process
//	PATCH /api/process/:id - Update wait time or requested list
//
// Resource Endpoints:
//
//	POST  /api/resource/create - Create a resource
//
// System Endpoints:
//
//	GET   /api/system/state - Snapshot with detection and prediction
//	POST  /api/system/reset - Clear all state
//	POST  /api/system/resolve - Detect and resolve now
//	GET   /api/scenarios - List scenarios
//	POST  /api/scenario/:name - Load a scenario (?size=N for ring)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	api := rg.Group("/api")
	{
		proc := api.Group("/process")
		{
			proc.POST("/create", h.HandleCreateProcess)
			proc.POST("/request", h.HandleRequestResource)
			proc.POST("/release", h.HandleReleaseResource)
			proc.POST("/terminate", h.HandleTerminateProcess)
			proc.GET("/:id", h.HandleGetProcess)
			proc.PATCH("/:id", h.HandleUpdateProcess)
		}

		api.POST("/resource/create", h.HandleCreateResource)

		system := api.Group("/system")
		{
			system.GET("/state", h.HandleSystemState)
			system.POST("/reset", h.HandleReset)
			system.POST("/resolve", h.HandleResolve)
		}

		api.GET("/scenarios", h.HandleListScenarios)
		api.POST("/scenario/:name", h.HandleScenario)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName is the otelgin server name. Empty disables tracing middleware.
	ServiceName string

	// RateLimitRPS and RateLimitBurst bound mutating requests.
	RateLimitRPS   float64
	RateLimitBurst int

	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the complete HTTP engine.
//
// Description:
//
//	Applies recovery, tracing, request metrics and rate limiting, then
//	registers /health, /metrics, /ws and the /api routes.
//
// Inputs:
//
//	h - The handlers instance
//	cfg - Router configuration
//
// Outputs:
//
//	*gin.Engine - Ready to serve
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(RequestMetrics(h.metrics))
	router.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/ws", h.HandleStream)
	RegisterRoutes(&router.RouterGroup, h)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	return router
}
