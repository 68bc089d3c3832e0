// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
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
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Terminal styles for governance output.
var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89"))
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#3DD68C"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	styleBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#16858E")).
			Padding(0, 1)
)

// snapshotView is the CLI-side read model of a snapshot.
type snapshotView struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	Reflection string    `json:"reflection"`
	Kernel     struct {
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"kernel"`
}

// statusStyle picks a style for an approval status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "user_approved":
		return styleSuccess
	case "reviewed":
		return styleTitle
	case "system_rollback":
		return styleError
	default:
		return styleWarning
	}
}

// renderSnapshot formats one snapshot as a bordered summary.
func renderSnapshot(snap snapshotView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n",
		styleTitle.Render(fmt.Sprintf("v%d", snap.Version)),
		statusStyle(snap.Status).Render(snap.Status))
	fmt.Fprintf(&b, "%s %s (%s)\n", styleMuted.Render("kernel:"),
		snap.Kernel.Name, snap.Kernel.Role)
	fmt.Fprintf(&b, "%s %s\n", styleMuted.Render("created:"),
		snap.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s %s", styleMuted.Render("reflection:"), snap.Reflection)
	return styleBox.Render(b.String())
}

// renderTimeline formats a history as one line per snapshot.
func renderTimeline(snaps []snapshotView) string {
	if len(snaps) == 0 {
		return styleMuted.Render("(empty timeline)")
	}
	var b strings.Builder
	for i, snap := range snaps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  %-16s  %s  %s",
			styleTitle.Render(fmt.Sprintf("v%-4d", snap.Version)),
			statusStyle(snap.Status).Render(snap.Status),
			styleMuted.Render(snap.CreatedAt.Format("2006-01-02 15:04:05")),
			snap.Reflection)
	}
	return b.String()
}
