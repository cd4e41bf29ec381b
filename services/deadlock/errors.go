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
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/resource"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/scenario"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeProcessNotFound      = "PROCESS_NOT_FOUND"
	CodeInvalidInstanceCount = "INVALID_INSTANCE_COUNT"
	CodeInvalidWaitTime      = "INVALID_WAIT_TIME"
	CodeScenarioNotFound     = "SCENARIO_NOT_FOUND"
	CodeInvalidScenarioSize  = "INVALID_SCENARIO_SIZE"
	CodeScenarioFailed       = "SCENARIO_FAILED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
)

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, process.ErrUnknownProcess):
		return http.StatusNotFound, CodeProcessNotFound
	case errors.Is(err, process.ErrInvalidWaitTime):
		return http.StatusBadRequest, CodeInvalidWaitTime
	case errors.Is(err, resource.ErrInvalidInstanceCount):
		return http.StatusBadRequest, CodeInvalidInstanceCount
	case errors.Is(err, scenario.ErrUnknownScenario):
		return http.StatusNotFound, CodeScenarioNotFound
	case errors.Is(err, scenario.ErrInvalidSize):
		return http.StatusBadRequest, CodeInvalidScenarioSize
	case errors.Is(err, scenario.ErrSetupFailed):
		return http.StatusConflict, CodeScenarioFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
