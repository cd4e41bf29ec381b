// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import "errors"

// Sentinel errors for the risk package.
var (
	// ErrEstimatorUnavailable is returned when no classifier could be loaded.
	ErrEstimatorUnavailable = errors.New("deadlock estimator unavailable")

	// ErrEstimatorFailure wraps any fault raised while predicting.
	ErrEstimatorFailure = errors.New("deadlock estimator failure")

	// ErrInvalidArtifact is returned when a classifier artifact is malformed.
	ErrInvalidArtifact = errors.New("invalid classifier artifact")
)
