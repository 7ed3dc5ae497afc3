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

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	statusUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's subsystem status",
	RunE:  runStatusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	client := newAPIClient(getServerBaseURL())
	report, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(renderStatus(client.baseURL, report))
	return nil
}

// renderStatus formats the subsystem report, one row per subsystem plus
// any startup errors the server collected.
func renderStatus(serverURL string, report *statusReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Forge server at %s\n\n", serverURL)

	row := func(label string, up bool, upText, downText string) {
		state := statusDownStyle.Render(downText)
		if up {
			state = statusUpStyle.Render(upText)
		}
		fmt.Fprintf(&b, "  %-16s %s\n", label, state)
	}

	row("Build wizard", report.AgentInitialized, "ready", "unavailable")
	row("Language model", report.LLMConfigured, "configured", "not configured")
	row("Warehouse", report.CatalogConfigured, "connected", "static catalog")
	row("Retrieval", report.RetrievalAvailable, warmedText(report), "disabled")
	row("Storage", report.StorageInitialized, "ready", "unavailable")

	fmt.Fprintf(&b, "  %-16s %d\n", "Sessions", report.ActiveSessions)

	if len(report.Errors) > 0 {
		b.WriteString("\nNotes:\n")
		for _, e := range report.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}

	return b.String()
}

// warmedText distinguishes a warming retrieval stack from a serving one.
func warmedText(report *statusReport) string {
	if report.Warmed {
		return "available"
	}
	return "warming up"
}
