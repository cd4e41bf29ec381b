// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import "errors"

// Sentinel errors for the process package.
var (
	// ErrUnknownProcess is returned when an id does not match a live record.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrInvalidWaitTime is returned for negative or non-finite wait times.
	ErrInvalidWaitTime = errors.New("wait time must be a finite non-negative number")

	// ErrInvalidState is returned when setting an unrecognized state.
	ErrInvalidState = errors.New("invalid process state")
)
