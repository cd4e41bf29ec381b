// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal styling for the deadlockd CLI.
//
// Output is styled only when writing to a terminal; pipes and files get
// plain text so reports stay greppable.
package ux

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Theme renders text with or without styling.
type Theme struct {
	styled bool

	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	box     lipgloss.Style
	alarm   lipgloss.Style
}

// NewTheme returns a theme. When styled is false every method returns its
// input unchanged apart from icons and indentation.
func NewTheme(styled bool) Theme {
	return Theme{
		styled:  styled,
		title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
		label:   lipgloss.NewStyle().Foreground(ColorTealPrimary),
		muted:   lipgloss.NewStyle().Foreground(ColorSlate),
		success: lipgloss.NewStyle().Foreground(ColorSuccess),
		warning: lipgloss.NewStyle().Foreground(ColorWarning),
		err:     lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
		alarm: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(0, 1),
	}
}

// DetectTheme returns a styled theme if f is a terminal.
func DetectTheme(f *os.File) Theme {
	fd := f.Fd()
	return NewTheme(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// Styled reports whether the theme emits ANSI styling.
func (t Theme) Styled() bool { return t.styled }

func (t Theme) render(s lipgloss.Style, text string) string {
	if !t.styled {
		return text
	}
	return s.Render(text)
}

// Title renders a heading.
func (t Theme) Title(text string) string { return t.render(t.title, text) }

// Label renders a field label.
func (t Theme) Label(text string) string { return t.render(t.label, text) }

// Muted renders secondary text.
func (t Theme) Muted(text string) string { return t.render(t.muted, text) }

// Success renders a positive status line with its icon.
func (t Theme) Success(text string) string {
	return t.render(t.success, string(IconSuccess)+" "+text)
}

// Warning renders a warning line with its icon.
func (t Theme) Warning(text string) string {
	return t.render(t.warning, string(IconWarning)+" "+text)
}

// Error renders an error line with its icon.
func (t Theme) Error(text string) string {
	return t.render(t.err, string(IconError)+" "+text)
}

// Box frames lines. Plain themes indent instead. alarm selects the error
// border color.
func (t Theme) Box(lines []string, alarm bool) string {
	body := strings.Join(lines, "\n")
	if !t.styled {
		return "  " + strings.ReplaceAll(body, "\n", "\n  ")
	}
	if alarm {
		return t.alarm.Render(body)
	}
	return t.box.Render(body)
}
