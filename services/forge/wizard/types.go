// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wizard

import (
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
	"github.com/AleutianAI/AleutianForge/services/forge/storage"
)

// Collected is everything the wizard gathers before finalization.
//
// Description:
//
//	Strongly typed on purpose: a stage handler can only write the fields
//	that exist, and the finalize boundary validates the combination instead
//	of discovering a missing key at persistence time. ConnectionDetails
//	holds non-secret fields only (host, port, database, user); the patch
//	parser refuses password-looking input before it ever reaches here.
type Collected struct {
	// Intent is the user's goal in their own words (or the menu selection
	// used as a working hint until extraction replaces it).
	Intent string `json:"intent"`

	// Databases are the selected schema names, ordered, deduplicated,
	// between 1 and 3 entries by the time confirmation is shown.
	Databases []string `json:"databases"`

	// Tables are the selected tables across those schemas.
	Tables []catalog.TableRef `json:"tables"`

	// TransformationName is the display name; SanitizedName is its
	// uppercase-underscore form used for persistence and indexing.
	TransformationName string `json:"transformation_name"`
	SanitizedName      string `json:"transformation_name_sanitized"`

	ConnectionDetails     map[string]string `json:"connection_details,omitempty"`
	UseExistingConnection bool              `json:"use_existing_connection"`
}

// clone deep-copies the collected fields so a TurnResult can escape the
// session lock without sharing mutable state with later turns.
func (c Collected) clone() Collected {
	out := c
	if c.Databases != nil {
		out.Databases = append([]string(nil), c.Databases...)
	}
	if c.Tables != nil {
		out.Tables = append([]catalog.TableRef(nil), c.Tables...)
	}
	if c.ConnectionDetails != nil {
		out.ConnectionDetails = make(map[string]string, len(c.ConnectionDetails))
		for k, v := range c.ConnectionDetails {
			out.ConnectionDetails[k] = v
		}
	}
	return out
}

// Intent is the structured result of model-based intent extraction.
type Intent struct {
	// Goal is a brief description of what the user wants to accomplish.
	Goal string `json:"intent"`

	MentionedDatabases []string `json:"mentioned_databases"`
	MentionedTables    []string `json:"mentioned_tables"`

	// TransformationType is the kind of artifact (dashboard, report,
	// pipeline, analytics); defaults to "transformation".
	TransformationType string `json:"transformation_type"`

	// Keywords help match the intent to schema and table names.
	Keywords []string `json:"keywords"`
}

// ChatTurn is one message of the session transcript. Kept for display and
// debugging only; no flow decision reads past messages.
type ChatTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// TurnResult is what one processed turn reports back to the transport.
//
// Description:
//
//	Every turn produces one, including every failure path; no collaborator
//	error escapes raw. BuildSpecification is set only on the turn that
//	reaches StageComplete. PersistenceWarning carries the partial-success
//	qualifier when the conversation finished but the specification could
//	not be saved.
type TurnResult struct {
	Stage         Stage      `json:"stage"`
	Message       string     `json:"message"`
	Hints         []string   `json:"hints,omitempty"`
	RequiresInput bool       `json:"requires_input"`
	Data          *Collected `json:"data,omitempty"`

	BuildSpecification *storage.BuildSpecification `json:"build_specification,omitempty"`
	PersistenceWarning string                      `json:"persistence_warning,omitempty"`
}
