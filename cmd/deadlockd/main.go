// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command deadlockd runs the deadlock detection and resolution service.
//
// Usage:
//
//	deadlockd serve --config deadlockd.yaml
//	deadlockd simulate ring --size 6
//	deadlockd config init deadlockd.yaml
//	deadlockd version
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8000/health
//
//	# Load the two-process scenario
//	curl -X POST http://localhost:8000/api/scenario/two-process
//
//	# Request a resource
//	curl -X POST http://localhost:8000/api/process/request \
//	  -H "Content-Type: application/json" \
//	  -d '{"process_id": 1, "resource_id": 2}'
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
