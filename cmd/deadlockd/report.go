// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianDeadlock/pkg/ux"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/risk"
)

// renderSnapshot formats processes, resources, the detected cycle and the
// risk prediction.
func renderSnapshot(theme ux.Theme, title string, snap coordinator.Snapshot) string {
	var b strings.Builder
	b.WriteString(theme.Title("Scenario: "+title) + "\n\n")

	b.WriteString(theme.Label("Processes") + "\n")
	if len(snap.Processes) == 0 {
		b.WriteString("  " + theme.Muted("none") + "\n")
	}
	for _, p := range snap.Processes {
		fmt.Fprintf(&b, "  %s P%d %-12s %-8s holds %s wants %s wait %.0f\n",
			ux.IconBullet, p.ID, p.Name, p.State, formatIDs("R", p.Allocated), formatIDs("R", p.Requested), p.WaitTime)
	}

	b.WriteString(theme.Label("Resources") + "\n")
	for _, r := range snap.Resources {
		fmt.Fprintf(&b, "  %s R%d %-12s %d/%d free\n", ux.IconBullet, r.ID, r.Name, r.Available, r.Instances)
	}
	b.WriteString("\n")

	if snap.Deadlock.HasDeadlock {
		b.WriteString(theme.Error("Deadlock: "+strings.Join(snap.Deadlock.Cycle, " "+string(ux.IconArrow)+" ")) + "\n")
	} else {
		b.WriteString(theme.Success("No deadlock") + "\n")
	}
	b.WriteString(renderPrediction(theme, snap.Prediction))
	return b.String()
}

func renderPrediction(theme ux.Theme, pred risk.Prediction) string {
	line := fmt.Sprintf("Risk: %s (p=%.2f, base %.2f, utilization %.2f, mean wait %.1f)",
		pred.Level, pred.Probability, pred.BaseProbability, pred.Features.Utilization, pred.Features.MeanWaitTime)
	switch pred.Level {
	case risk.LevelHigh, risk.LevelError:
		return theme.Error(line)
	case risk.LevelMedium, risk.LevelUnknown:
		return theme.Warning(line)
	default:
		return theme.Success(line)
	}
}

// renderResolution formats the outcome of a resolution.
func renderResolution(theme ux.Theme, res coordinator.Resolution) string {
	if !res.DeadlockDetected {
		return theme.Box([]string{"Nothing to resolve"}, false)
	}
	lines := []string{
		theme.Title("Deadlock resolved"),
		fmt.Sprintf("Victim:   P%d", res.Victim),
		fmt.Sprintf("Cycle:    %s", strings.Join(res.Cycle, " ")),
		fmt.Sprintf("Released: %s", formatIDs("R", res.Released)),
		fmt.Sprintf("Notified: %d observer(s)", res.Notified),
	}
	return theme.Box(lines, true)
}

func formatIDs(prefix string, ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s%d", prefix, id)
	}
	return strings.Join(parts, ",")
}
