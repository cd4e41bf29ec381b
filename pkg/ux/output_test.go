// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainThemeLeavesTextAlone(t *testing.T) {
	th := NewTheme(false)
	assert.False(t, th.Styled())
	assert.Equal(t, "Deadlock", th.Title("Deadlock"))
	assert.Equal(t, "✓ safe", th.Success("safe"))
	assert.Equal(t, "⚠ medium", th.Warning("medium"))
	assert.Equal(t, "✗ cycle", th.Error("cycle"))
	assert.Equal(t, "  a\n  b", th.Box([]string{"a", "b"}, false))
}

func TestStyledThemeKeepsContent(t *testing.T) {
	th := NewTheme(true)
	assert.Contains(t, th.Box([]string{"victim P1"}, true), "victim P1")
	assert.Contains(t, th.Label("cycle"), "cycle")
}

func TestDetectThemeOnRegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	assert.False(t, DetectTheme(f).Styled())
}
