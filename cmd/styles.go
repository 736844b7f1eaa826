// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles shared by the error_detection and control TUIs
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	focusedBoxStyle = boxStyle.BorderForeground(lipgloss.Color("12"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("12")).
			Padding(0, 2)
	focusedButtonStyle = buttonStyle.Background(lipgloss.Color("10"))
)

// renderLog formats the newest rows entries, oldest first
func renderLog(entries []errorLogEntry, rows int, timeFormat string) string {
	if len(entries) == 0 {
		return dimStyle.Render("  (no events yet)")
	}
	if rows < len(entries) {
		entries = entries[len(entries)-rows:]
	}

	var b strings.Builder
	for _, entry := range entries {
		line := warningStyle.Render("ℹ " + entry.message)
		if entry.isError {
			line = errorStyle.Render("✗ " + entry.message)
		}
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(entry.timestamp.Format(timeFormat)), line)
	}
	return b.String()
}
