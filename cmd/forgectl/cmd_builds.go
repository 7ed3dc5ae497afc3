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
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// buildsLimit holds the --limit flag for builds list.
var buildsLimit int

// defaultBuildsLimit mirrors the server-side list default.
const defaultBuildsLimit = 50

var (
	buildsHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	buildsLabelStyle  = lipgloss.NewStyle().Bold(true)
	buildsDimStyle    = lipgloss.NewStyle().Faint(true)
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "Inspect saved build specifications",
}

var buildsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved build specifications, newest first",
	Long: `List build specifications persisted by the Forge server.

Examples:
  forgectl builds list
  forgectl builds list --limit 10`,
	RunE: runBuildsList,
}

var buildsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one build specification in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildsShow,
}

func init() {
	rootCmd.AddCommand(buildsCmd)
	buildsCmd.AddCommand(buildsListCmd)
	buildsCmd.AddCommand(buildsShowCmd)

	buildsListCmd.Flags().IntVar(&buildsLimit, "limit", defaultBuildsLimit, "Maximum number of specifications to list")
}

func runBuildsList(cmd *cobra.Command, _ []string) error {
	client := newAPIClient(getServerBaseURL())
	builds, err := client.ListBuilds(cmd.Context(), buildsLimit)
	if err != nil {
		return err
	}
	fmt.Print(renderBuildsTable(builds))
	return nil
}

func runBuildsShow(cmd *cobra.Command, args []string) error {
	client := newAPIClient(getServerBaseURL())
	build, err := client.GetBuild(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Print(renderBuildDetail(build))
	return nil
}

// renderBuildsTable formats specifications as a fixed-width table.
func renderBuildsTable(builds []*buildSpecification) string {
	if len(builds) == 0 {
		return "No build specifications saved yet. Run 'forgectl chat' to create one.\n"
	}

	var b strings.Builder
	header := fmt.Sprintf("%-36s  %-28s  %-10s  %s", "ID", "NAME", "STATUS", "CREATED")
	b.WriteString(buildsHeaderStyle.Render(header))
	b.WriteString("\n")

	for _, spec := range builds {
		b.WriteString(fmt.Sprintf("%-36s  %-28s  %-10s  %s\n",
			spec.ID,
			clipColumn(spec.SanitizedName, 28),
			spec.Status,
			spec.CreatedAt.Format(time.RFC3339)))
	}

	b.WriteString(buildsDimStyle.Render(fmt.Sprintf("\n%d specification(s)", len(builds))))
	b.WriteString("\n")
	return b.String()
}

// renderBuildDetail formats one specification as labeled rows.
func renderBuildDetail(spec *buildSpecification) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(buildsLabelStyle.Render(fmt.Sprintf("%-14s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("ID:", spec.ID)
	row("Name:", spec.TransformationName)
	row("Sanitized:", spec.SanitizedName)
	row("Intent:", spec.Intent)
	row("Status:", spec.Status)
	row("Created:", spec.CreatedAt.Format(time.RFC3339))
	row("Databases:", strings.Join(spec.Databases, ", "))

	if len(spec.Tables) > 0 {
		refs := make([]string, 0, len(spec.Tables))
		for _, t := range spec.Tables {
			refs = append(refs, t.Schema+"."+t.Table)
		}
		row("Tables:", strings.Join(refs, ", "))
	}

	switch {
	case spec.UseExistingConnection:
		row("Connection:", "existing warehouse credentials")
	case len(spec.ConnectionDetails) > 0:
		pairs := make([]string, 0, len(spec.ConnectionDetails))
		for _, key := range []string{"host", "port", "database", "user"} {
			if v, ok := spec.ConnectionDetails[key]; ok {
				pairs = append(pairs, key+"="+v)
			}
		}
		row("Connection:", strings.Join(pairs, " "))
	}

	return b.String()
}

// clipColumn truncates a value to fit its table column.
func clipColumn(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
