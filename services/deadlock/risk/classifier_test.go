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

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const logisticArtifact = `
kind: logistic
version: 1
weights: [0, 0, 0, 0, 0]
bias: 0
`

func TestParseArtifact_Logistic(t *testing.T) {
	c, err := ParseArtifact([]byte(logisticArtifact))
	require.NoError(t, err)

	p, err := c.Predict(Vector{3, 3, 50, 0.5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)
}

func TestParseArtifact_LogisticStandardized(t *testing.T) {
	c, err := ParseArtifact([]byte(`
kind: logistic
weights: [0, 0, 0, 2, 0]
bias: 0
means: [0, 0, 0, 0.5, 0]
scales: [1, 1, 1, 0.25, 1]
`))
	require.NoError(t, err)

	atMean, _ := c.Predict(Vector{0, 0, 0, 0.5, 0})
	above, _ := c.Predict(Vector{0, 0, 0, 0.75, 0})
	assert.InDelta(t, 0.5, atMean, 1e-9)
	assert.Greater(t, above, atMean)
}

func TestParseArtifact_Heuristic(t *testing.T) {
	c, err := ParseArtifact([]byte("kind: heuristic\n"))
	require.NoError(t, err)
	assert.IsType(t, HeuristicClassifier{}, c)
}

func TestParseArtifact_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "kind: [logistic"},
		{"unknown kind", "kind: forest\n"},
		{"missing weights", "kind: logistic\nbias: 1\n"},
		{"short weights", "kind: logistic\nweights: [1, 2]\n"},
		{"bad scales", "kind: logistic\nweights: [1, 1, 1, 1, 1]\nscales: [1]\n"},
		{"non-finite weight", "kind: logistic\nweights: [1, 1, .nan, 1, 1]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestLoadArtifact_MissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrEstimatorUnavailable)
}

func TestArtifactWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: heuristic\n"), 0o644))

	e := NewEstimator(nil)
	w := NewArtifactWatcher(path, e, nil)
	require.NoError(t, w.Reload())

	loaded, source := e.Loaded()
	assert.True(t, loaded)
	assert.Equal(t, path, source)
}

func TestArtifactWatcher_PicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: heuristic\n"), 0o644))

	e := NewEstimator(HeuristicClassifier{})
	w := NewArtifactWatcher(path, e, nil)
	w.debounce = 10 * time.Millisecond
	w.reloaded = make(chan error, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(logisticArtifact), 0o644))

	select {
	case err := <-w.reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload the artifact")
	}

	pred := e.Predict(context.Background(), Features{})
	assert.InDelta(t, 0.5, pred.BaseProbability, 1e-9)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestArtifactWatcher_BadReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: forest\n"), 0o644))

	e := NewEstimator(Constant(0.2))
	w := NewArtifactWatcher(path, e, nil)
	assert.ErrorIs(t, w.Reload(), ErrInvalidArtifact)

	pred := e.Predict(context.Background(), Features{})
	assert.Equal(t, 0.2, pred.BaseProbability)
}
