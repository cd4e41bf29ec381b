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

	"github.com/AleutianAI/AleutianDeadlock/services/deadlock"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	simulateSize  int
	simulatePlain bool

	rootCmd = &cobra.Command{
		Use:   "deadlockd",
		Short: "Deadlock detection, risk estimation and automated resolution",
		Long: `deadlockd tracks processes and resources, refuses allocations that
would likely deadlock, detects circular waits and resolves them by
terminating a victim.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate [scenario]",
		Short: "Run a scenario in-process and print detection and resolution",
		Long: `Builds a scenario on a fresh coordinator, reports the detected cycle
and risk, then resolves it. Scenarios: two-process, ring, safe-state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSimulate, // Defined in cmd_simulate.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage deadlockd configuration",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit, // Defined in cmd_config.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the deadlockd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "deadlockd "+deadlock.ServiceVersion)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (defaults apply when empty)")

	simulateCmd.Flags().IntVar(&simulateSize, "size", 0, "Ring size for the ring scenario (default 5)")
	simulateCmd.Flags().BoolVar(&simulatePlain, "plain", false, "Disable terminal styling")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, simulateCmd, configCmd, versionCmd)
}
