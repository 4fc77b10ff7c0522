// Package ui renders CLI output: ANSI colors for statuses and priorities and
// a yes/no confirmation prompt.
package ui

import (
	"fmt"

	"github.com/alfredjeanlab/reg2progress/internal/model"
)

// ANSI 256-color codes.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // gray
	colorGood   = 71  // green
	colorWarn   = 179 // amber
	colorBad    = 167 // red
)

var noColor bool

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent color, used for ids and headings.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in gray, used for timestamps and authors.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderStatus colors an issue status.
func RenderStatus(s model.Status) string {
	switch s {
	case model.StatusResolved:
		return paint(colorGood, s.String())
	case model.StatusInProgress:
		return paint(colorWarn, s.String())
	default:
		return paint(colorAccent, s.String())
	}
}

// RenderPriority colors an issue priority.
func RenderPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return paint(colorBad, p.String())
	case model.PriorityMedium:
		return paint(colorWarn, p.String())
	default:
		return paint(colorGood, p.String())
	}
}
