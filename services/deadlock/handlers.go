// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deadlock is the HTTP transport for the deadlock coordinator.
//
// Handlers translate JSON requests into coordinator operations and map
// domain errors to status codes. They hold no state of their own.
package deadlock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/observability"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/scenario"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the deadlockd version.
const ServiceVersion = "0.1.0"

// DefaultStreamBuffer is the per-client websocket event buffer.
const DefaultStreamBuffer = 16

// Handlers contains the HTTP handlers.
type Handlers struct {
	coord        *coordinator.Coordinator
	metrics      *observability.Metrics
	streamBuffer int
}

// NewHandlers creates handlers for the given coordinator.
func NewHandlers(coord *coordinator.Coordinator) *Handlers {
	return &Handlers{coord: coord, streamBuffer: DefaultStreamBuffer}
}

// WithMetrics sets the metrics used for stream gauges.
func (h *Handlers) WithMetrics(m *observability.Metrics) *Handlers {
	h.metrics = m
	return h
}

// WithStreamBuffer sets the per-client websocket buffer.
func (h *Handlers) WithStreamBuffer(n int) *Handlers {
	if n > 0 {
		h.streamBuffer = n
	}
	return h
}

// getOrCreateRequestID returns the caller's X-Request-ID or a new one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func invalidRequest(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid request body",
		Code:  CodeInvalidRequest,
	})
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	loaded, source := h.coord.Estimator().Loaded()
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "healthy",
		Version:          ServiceVersion,
		ClassifierLoaded: loaded,
		ClassifierSource: source,
	})
}

// HandleCreateProcess handles POST /api/process/create.
//
// Request Body:
//
//	CreateProcessRequest
//
// Response:
//
//	200 OK: CreateProcessResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleCreateProcess(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateProcess")

	var req CreateProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	id := h.coord.CreateProcess(req.Name, req.Resources)
	logger.Info("Process created", "process_id", id, "name", req.Name)
	c.JSON(http.StatusOK, CreateProcessResponse{ProcessID: id, Status: "created"})
}

// HandleCreateResource handles POST /api/resource/create.
//
// Response:
//
//	200 OK: CreateResourceResponse
//	400 Bad Request: Validation error or instances < 1
func (h *Handlers) HandleCreateResource(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateResource")

	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}
	instances := 1
	if req.Instances != nil {
		instances = *req.Instances
	}

	id, err := h.coord.CreateResource(req.Name, instances)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Resource created", "resource_id", id, "name", req.Name, "instances", instances)
	c.JSON(http.StatusOK, CreateResourceResponse{ResourceID: id, Status: "created"})
}

// HandleRequestResource handles POST /api/process/request.
//
// Description:
//
//	Runs the full allocation path. Blocked and failed allocations are
//	normal outcomes and return 200 with the decision.
//
// Response:
//
//	200 OK: coordinator.Decision
//	400 Bad Request: Validation error
//	404 Not Found: Unknown process
func (h *Handlers) HandleRequestResource(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRequestResource")

	var req AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	decision, err := h.coord.RequestAllocation(c.Request.Context(), req.ProcessID, req.ResourceID)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Allocation decided",
		"process_id", req.ProcessID,
		"resource_id", req.ResourceID,
		"status", decision.Status,
		"deadlock_detected", decision.DeadlockDetected)
	c.JSON(http.StatusOK, decision)
}

// HandleReleaseResource handles POST /api/process/release.
//
// Response:
//
//	200 OK: StatusResponse with "released" or "noop"
func (h *Handlers) HandleReleaseResource(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReleaseResource")

	var req AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	status := "noop"
	if h.coord.ReleaseAllocation(c.Request.Context(), req.ProcessID, req.ResourceID) {
		status = "released"
	}
	c.JSON(http.StatusOK, StatusResponse{Status: status})
}

// HandleTerminateProcess handles POST /api/process/terminate.
//
// Response:
//
//	200 OK: TerminateResponse
//	404 Not Found: Unknown process
func (h *Handlers) HandleTerminateProcess(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTerminateProcess")

	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	released, err := h.coord.TerminateProcess(c.Request.Context(), req.ProcessID)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, TerminateResponse{
		Status:    "terminated",
		ProcessID: req.ProcessID,
		Released:  released,
	})
}

// HandleGetProcess handles GET /api/process/:id.
func (h *Handlers) HandleGetProcess(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetProcess")

	id, ok := processIDParam(c, logger)
	if !ok {
		return
	}
	p, found := h.coord.Process(id)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "process not found", Code: CodeProcessNotFound})
		return
	}
	c.JSON(http.StatusOK, p)
}

// HandleUpdateProcess handles PATCH /api/process/:id.
//
// Request Body:
//
//	UpdateProcessRequest
//
// Response:
//
//	200 OK: the updated process
//	400 Bad Request: Invalid id, body or wait time
//	404 Not Found: Unknown process
func (h *Handlers) HandleUpdateProcess(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateProcess")

	id, ok := processIDParam(c, logger)
	if !ok {
		return
	}
	var req UpdateProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, logger, err)
		return
	}

	if req.WaitTime != nil {
		if err := h.coord.SetWaitTime(id, *req.WaitTime); err != nil {
			writeError(c, logger, err)
			return
		}
	}
	if req.Requested != nil {
		if err := h.coord.SetRequested(id, *req.Requested); err != nil {
			writeError(c, logger, err)
			return
		}
	}

	p, found := h.coord.Process(id)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "process not found", Code: CodeProcessNotFound})
		return
	}
	c.JSON(http.StatusOK, p)
}

func processIDParam(c *gin.Context, logger *slog.Logger) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		logger.Warn("Invalid process id", "id", c.Param("id"))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid process id", Code: CodeInvalidRequest})
		return 0, false
	}
	return id, true
}

// HandleSystemState handles GET /api/system/state.
func (h *Handlers) HandleSystemState(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.coord.Snapshot(c.Request.Context()))
}

// HandleReset handles POST /api/system/reset.
func (h *Handlers) HandleReset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	h.coord.Reset()
	slog.Info("System reset", "request_id", requestID)
	c.JSON(http.StatusOK, StatusResponse{Status: "reset"})
}

// HandleResolve handles POST /api/system/resolve.
//
// Response:
//
//	200 OK: coordinator.Resolution (deadlock_detected false when acyclic)
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	res := h.coord.Resolve(c.Request.Context())
	if res.DeadlockDetected {
		slog.Info("Deadlock resolved on demand", "request_id", requestID, "victim", res.Victim)
	}
	c.JSON(http.StatusOK, res)
}

// HandleListScenarios handles GET /api/scenarios.
func (h *Handlers) HandleListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, ScenariosResponse{Scenarios: scenario.Names()})
}

// HandleScenario handles POST /api/scenario/:name.
//
// Query Parameters:
//
//	size: Ring size (optional, ring only)
//
// Response:
//
//	200 OK: coordinator.Snapshot after setup
//	400 Bad Request: Invalid size
//	404 Not Found: Unknown scenario
//	409 Conflict: A setup allocation was not granted
func (h *Handlers) HandleScenario(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleScenario")

	size := 0
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid size", Code: CodeInvalidScenarioSize})
			return
		}
		size = n
	}

	snap, err := scenario.Run(c.Request.Context(), h.coord, c.Param("name"), size)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Scenario loaded", "scenario", c.Param("name"), "deadlock", snap.Deadlock.HasDeadlock)
	c.JSON(http.StatusOK, snap)
}
