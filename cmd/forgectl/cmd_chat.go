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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// chatSessionID and chatPlain hold flag values for the chat command.
var (
	chatSessionID string
	chatPlain     bool
)

// openingMessage starts a conversation; the server answers with its
// greeting and the option menu.
const openingMessage = "hello"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive build conversation",
	Long: `Start a conversation with the Forge build wizard.

On a terminal this opens the chat TUI; when output is piped or --plain is
set it falls back to a line-mode REPL. Type "exit" or "quit" to leave at
any point.

Examples:
  forgectl chat
  forgectl chat --plain
  forgectl chat --session 6f1d2c8a-9b3e-47f1-a2d4-58c0de12f9ab`,
	RunE: runChatCommand,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume an existing session id")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Force the line-mode REPL instead of the TUI")
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		fmt.Printf("Warning: Unexpected arguments ignored: %v\n", args)
		fmt.Println("Use 'forgectl chat --help' to see available flags.")
	}

	client := newAPIClient(getServerBaseURL())

	if chatPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return runPlainChat(cmd.Context(), client, chatSessionID)
	}
	return runChatTUI(client, chatSessionID)
}

// runPlainChat is the non-TUI conversation loop: one prompt per turn,
// hints as a suggestion line, until the wizard stops asking for input.
func runPlainChat(ctx context.Context, client *apiClient, sessionID string) error {
	turn, err := client.Chat(ctx, sessionID, openingMessage)
	if err != nil {
		return err
	}
	sessionID = turn.SessionID
	fmt.Printf("Session: %s\n", sessionID)
	printTurn(os.Stdout, turn)

	scanner := bufio.NewScanner(os.Stdin)
	for turn.RequiresInput {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" || line == "q" {
			fmt.Println("Goodbye.")
			return nil
		}

		turn, err = client.Chat(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		sessionID = turn.SessionID
		printTurn(os.Stdout, turn)
	}
	return scanner.Err()
}

// printTurn renders one wizard reply for the line-mode REPL.
func printTurn(w io.Writer, turn *chatResponse) {
	fmt.Fprintf(w, "\n%s\n", turn.Message)
	if line := hintLine(turn.Hints); line != "" {
		fmt.Fprintf(w, "%s\n", line)
	}
	if turn.Warning != "" {
		fmt.Fprintf(w, "\nWarning: %s\n", turn.Warning)
	}
	if turn.BuildID != "" {
		fmt.Fprintf(w, "\nBuild specification saved: %s\n", turn.BuildID)
	}
	fmt.Fprintln(w)
}

// hintLine folds reply hints into one compact suggestion line. The greeting
// already spells its menu out in the message body, so its hints are
// suppressed rather than printed twice.
func hintLine(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	short := make([]string, 0, len(hints))
	for _, h := range hints {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		// Menu hints ("1. Build a Report") restate the greeting body.
		if len(h) > 2 && h[1] == '.' && h[0] >= '1' && h[0] <= '9' {
			return ""
		}
		short = append(short, h)
	}
	if len(short) == 0 {
		return ""
	}
	return "(suggestions: " + strings.Join(short, " | ") + ")"
}
