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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// resetYes skips the confirmation prompt for scripted use.
var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Discard a conversation session on the server",
	Long: `Discard all collected answers for a session. The next message on
that session id starts the wizard from the greeting.

Examples:
  forgectl reset 6f1d2c8a-9b3e-47f1-a2d4-58c0de12f9ab
  forgectl reset --yes 6f1d2c8a-9b3e-47f1-a2d4-58c0de12f9ab`,
	Args: cobra.ExactArgs(1),
	RunE: runResetCommand,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Skip the confirmation prompt")
}

func runResetCommand(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	if !resetYes {
		var confirmed bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Reset session %s?", sessionID)).
				Description("All collected answers for this session are discarded.").
				Affirmative("Reset").
				Negative("Cancel").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	client := newAPIClient(getServerBaseURL())
	message, err := client.Reset(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}
