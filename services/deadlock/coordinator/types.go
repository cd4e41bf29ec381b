// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import (
	"time"

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/process"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/rag"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/resource"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/risk"
)

// Status is the outcome of an allocation request.
type Status string

const (
	StatusAllocated Status = "allocated"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// Decision reasons.
const (
	ReasonHighRisk          = "high deadlock probability"
	ReasonUnknownResource   = "unknown resource"
	ReasonResourceExhausted = "resource exhausted"
)

// Decision is the result of RequestAllocation.
type Decision struct {
	Status     Status `json:"status"`
	ProcessID  int    `json:"process_id"`
	ResourceID int    `json:"resource_id"`
	Reason     string `json:"reason,omitempty"`

	// Probability and RiskLevel come from the pre-check.
	Probability float64    `json:"probability"`
	RiskLevel   risk.Level `json:"risk_level"`

	DeadlockDetected bool        `json:"deadlock_detected"`
	Resolution       *Resolution `json:"resolution,omitempty"`
}

// Resolution describes one automated deadlock resolution.
type Resolution struct {
	DeadlockDetected bool     `json:"deadlock_detected"`
	Cycle            []string `json:"cycle"`
	Victim           int      `json:"victim,omitempty"`

	// Released lists resource ids returned by the victim, one entry per
	// instance. Empty unless release-on-terminate is enabled.
	Released []int `json:"released,omitempty"`

	// Notified is the number of observers the event was queued for.
	Notified int `json:"notified"`
}

// Snapshot is the immutable composite read model. Every slice is a copy.
type Snapshot struct {
	Processes  []process.Process   `json:"processes"`
	Resources  []resource.Resource `json:"resources"`
	Deadlock   rag.CycleResult     `json:"deadlock"`
	Prediction risk.Prediction     `json:"prediction"`
	Graph      rag.View            `json:"graph"`
	TakenAt    time.Time           `json:"taken_at"`
}
