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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianDeadlock/pkg/logging"
	"github.com/AleutianAI/AleutianDeadlock/pkg/ux"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/scenario"
	"github.com/spf13/cobra"
)

// runSimulate builds a scenario on a fresh in-process coordinator, prints
// what was detected, resolves it and prints the outcome.
func runSimulate(cmd *cobra.Command, args []string) error {
	name := scenario.TwoProcess
	if len(args) == 1 {
		name = args[0]
	}

	theme := ux.NewTheme(false)
	if !simulatePlain {
		theme = ux.DetectTheme(os.Stdout)
	}

	logger := logging.New(logging.Config{Level: slog.LevelWarn, Service: "deadlockd"})
	defer logger.Close()

	coord := coordinator.New(coordinator.WithLogger(logger.Slog()))
	return simulate(cmd.Context(), coord, name, simulateSize, theme, cmd.OutOrStdout())
}

func simulate(ctx context.Context, coord *coordinator.Coordinator, name string, size int, theme ux.Theme, w io.Writer) error {
	snap, err := scenario.Run(ctx, coord, name, size)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, renderSnapshot(theme, name, snap))

	if !snap.Deadlock.HasDeadlock {
		return nil
	}
	res := coord.Resolve(ctx)
	fmt.Fprintln(w, renderResolution(theme, res))
	fmt.Fprintln(w, renderSnapshot(theme, name+" (after resolution)", coord.Snapshot(ctx)))
	return nil
}
