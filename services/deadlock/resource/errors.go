// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resource

import "errors"

// Sentinel errors for the resource package.
var (
	// ErrUnknownResource is returned when a resource id is not registered.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrResourceExhausted is returned when no instance is available.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidInstanceCount is returned when creating a resource with
	// fewer than one instance.
	ErrInvalidInstanceCount = errors.New("instance count must be at least 1")
)
