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

// =============================================================================
// Requests
// =============================================================================

// CreateProcessRequest is the body of POST /api/process/create.
type CreateProcessRequest struct {
	Name string `json:"name" binding:"required,max=256"`

	// Resources is the initial requested list.
	Resources []int `json:"resources" binding:"omitempty,dive,gt=0"`
}

// CreateResourceRequest is the body of POST /api/resource/create.
type CreateResourceRequest struct {
	Name string `json:"name" binding:"required,max=256"`

	// Instances defaults to 1 when omitted.
	Instances *int `json:"instances"`
}

// AllocationRequest is the body of the request and release endpoints.
type AllocationRequest struct {
	ProcessID  int `json:"process_id" binding:"required,gt=0"`
	ResourceID int `json:"resource_id" binding:"required,gt=0"`
}

// TerminateRequest is the body of POST /api/process/terminate.
type TerminateRequest struct {
	ProcessID int `json:"process_id" binding:"required,gt=0"`
}

// UpdateProcessRequest is the body of PATCH /api/process/:id. Omitted
// fields are left unchanged.
type UpdateProcessRequest struct {
	WaitTime  *float64 `json:"wait_time"`
	Requested *[]int   `json:"requested"`
}

// =============================================================================
// Responses
// =============================================================================

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	ClassifierLoaded bool   `json:"classifier_loaded"`
	ClassifierSource string `json:"classifier_source,omitempty"`
}

// CreateProcessResponse is returned by POST /api/process/create.
type CreateProcessResponse struct {
	ProcessID int    `json:"process_id"`
	Status    string `json:"status"`
}

// CreateResourceResponse is returned by POST /api/resource/create.
type CreateResourceResponse struct {
	ResourceID int    `json:"resource_id"`
	Status     string `json:"status"`
}

// StatusResponse is a plain status acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// TerminateResponse is returned by POST /api/process/terminate.
type TerminateResponse struct {
	Status    string `json:"status"`
	ProcessID int    `json:"process_id"`
	Released  []int  `json:"released,omitempty"`
}

// ScenariosResponse lists the available scenarios.
type ScenariosResponse struct {
	Scenarios []string `json:"scenarios"`
}
