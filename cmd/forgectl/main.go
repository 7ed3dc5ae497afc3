// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command forgectl is the command-line client for the Aleutian Forge
// build service.
//
// Usage:
//
//	forgectl chat                     # interactive build conversation
//	forgectl chat --plain             # line-mode REPL (no TUI)
//	forgectl chat --session <id>      # resume a session
//	forgectl builds list              # saved build specifications
//	forgectl builds show <id>         # one specification in detail
//	forgectl status                   # server subsystem report
//	forgectl reset <session-id>       # discard a session (asks first)
//
// The server address resolves from --server, then FORGE_SERVER_URL, then
// http://localhost:8080.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultServerURL is where a locally started cmd/forge listens.
const defaultServerURL = "http://localhost:8080"

// serverFlag holds the --server persistent flag value.
var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Client for the Aleutian Forge build service",
	Long: `forgectl talks to a running Aleutian Forge server.

Forge turns a guided conversation into a validated data build
specification: describe what you want to build, confirm the discovered
databases and tables, pick a name, and the specification is persisted
server-side.`,
	Version: "1.0.0",
	// Errors print once in main; usage noise on a failed API call helps
	// nobody.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"Forge server base URL (default $FORGE_SERVER_URL or "+defaultServerURL+")")
}

// getServerBaseURL resolves the server address: the --server flag wins,
// then FORGE_SERVER_URL, then the local default.
func getServerBaseURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if env := os.Getenv("FORGE_SERVER_URL"); env != "" {
		return env
	}
	return defaultServerURL
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
