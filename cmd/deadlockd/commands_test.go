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
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianDeadlock/pkg/ux"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/config"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/coordinator"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/risk"
	"github.com/AleutianAI/AleutianDeadlock/services/deadlock/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		simulateSize = 0
		simulatePlain = false
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, deadlock.ServiceVersion)
}

func TestSimulateCommand_Ring(t *testing.T) {
	out, err := execute(t, "simulate", "ring", "--size", "3", "--plain")
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: ring")
	assert.Contains(t, out, "Deadlock: P1 → R2 → P2 → R3 → P3 → R1")
	assert.Contains(t, out, "Risk: HIGH")
	assert.Contains(t, out, "Victim:   P1")
	assert.Contains(t, out, "ring (after resolution)")
	assert.Contains(t, out, "No deadlock")
}

func TestSimulateCommand_SafeState(t *testing.T) {
	out, err := execute(t, "simulate", "safe-state", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "No deadlock")
	assert.NotContains(t, out, "Deadlock resolved")
}

func TestSimulateCommand_UnknownScenario(t *testing.T) {
	_, err := execute(t, "simulate", "philosophers", "--plain")
	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadlockd.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err)
}

func TestBuildEstimator(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := buildEstimator(config.EstimatorConfig{Classifier: config.ClassifierHeuristic}, log)
	loaded, source := e.Loaded()
	assert.True(t, loaded)
	assert.Equal(t, config.ClassifierHeuristic, source)

	e = buildEstimator(config.EstimatorConfig{Classifier: config.ClassifierNone}, log)
	loaded, _ = e.Loaded()
	assert.False(t, loaded)

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: logistic\nweights: [0, 0, 0, 0, 0]\n"), 0o644))
	e = buildEstimator(config.EstimatorConfig{Classifier: config.ClassifierArtifact, ArtifactPath: path}, log)
	_, source = e.Loaded()
	assert.Equal(t, path, source)
}

func TestBuildEstimator_MissingArtifactDegradesToUnknown(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	path := filepath.Join(t.TempDir(), "model.yaml")

	e := buildEstimator(config.EstimatorConfig{
		Classifier:    config.ClassifierArtifact,
		ArtifactPath:  path,
		WatchArtifact: true,
	}, log)
	require.NotNil(t, e)
	loaded, _ := e.Loaded()
	assert.False(t, loaded)
	assert.Contains(t, buf.String(), "Classifier artifact unavailable")

	pred := e.Predict(context.Background(), risk.Features{CircularWait: 1, Utilization: 1})
	assert.Equal(t, risk.LevelUnknown, pred.Level)
	assert.Equal(t, 0.0, pred.Probability)

	// A later write is picked up by a reload.
	require.NoError(t, os.WriteFile(path, []byte("kind: heuristic\n"), 0o644))
	require.NoError(t, risk.NewArtifactWatcher(path, e, log).Reload())
	loaded, source := e.Loaded()
	assert.True(t, loaded)
	assert.Equal(t, path, source)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := newLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	l, err := newLogger(config.LoggingConfig{Level: "debug"})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

func TestRenderResolution_Plain(t *testing.T) {
	theme := ux.NewTheme(false)
	assert.Contains(t, renderResolution(theme, coordinator.Resolution{}), "Nothing to resolve")

	out := renderResolution(theme, coordinator.Resolution{
		DeadlockDetected: true,
		Cycle:            []string{"P2", "R1", "P3", "R2"},
		Victim:           2,
		Released:         []int{1},
	})
	assert.Contains(t, out, "Victim:   P2")
	assert.Contains(t, out, "Released: R1")
}
