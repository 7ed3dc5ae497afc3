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
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
)

// Patch grammar for the confirmation stage. Alternations list longer words
// first so "username" is not half-consumed as "user".
var (
	reRename   = regexp.MustCompile(`(?i)(?:name to|name is|call it)\s+([^.,!?]+)`)
	reAddTable = regexp.MustCompile(`(?i)table:?\s+([^.,!?]+)`)
	reConnHost = regexp.MustCompile(`(?i)(?:host|server|address)[\s:=]+([^\s,]+)`)
	reConnUser = regexp.MustCompile(`(?i)(?:username|userid|user)[\s:=]+([^\s,]+)`)
	reConnDB   = regexp.MustCompile(`(?i)(?:database|db)[\s:=]+([^\s,]+)`)
	reConnPort = regexp.MustCompile(`(?i)port[\s:=]+(\d+)`)
	rePassword = regexp.MustCompile(`(?i)(?:password|pwd|pass)[\s:=]+\S+`)
)

// changeSet is one parsed patch command against the collected specification.
type changeSet struct {
	name       string
	databases  []string
	addTable   string
	connection map[string]string

	// secretRejected is set when the input carried a password. The whole
	// input is refused in that case; nothing else from it is applied.
	secretRejected bool
}

func (c changeSet) empty() bool {
	return c.name == "" && len(c.databases) == 0 && c.addTable == "" &&
		len(c.connection) == 0 && !c.secretRejected
}

// parseChanges recognizes the confirmation-stage patch commands: rename,
// database switch, add table, and non-secret connection fields.
//
// Description:
//
//	Password-looking input short-circuits everything: the turn is refused
//	with a security notice and no field of it is stored, not even the
//	non-secret ones. Connection fields are only parsed when no structural
//	change (rename, switch, add) matched, so "add table user_accounts"
//	cannot be misread as a connection user.
func parseChanges(input string, availableSchemas []string) changeSet {
	var cs changeSet
	lower := strings.ToLower(input)

	if rePassword.MatchString(input) {
		cs.secretRejected = true
		return cs
	}

	if m := reRename.FindStringSubmatch(input); m != nil {
		cs.name = strings.TrimSpace(m[1])
	}

	if strings.Contains(lower, "use database") || strings.Contains(lower, "change database") {
		for _, schema := range availableSchemas {
			if strings.Contains(lower, strings.ToLower(schema)) {
				cs.databases = []string{schema}
				break
			}
		}
	}

	if strings.Contains(lower, "add table") || strings.Contains(lower, "include table") {
		if m := reAddTable.FindStringSubmatch(input); m != nil {
			cs.addTable = strings.TrimSpace(m[1])
		}
	}

	if cs.name == "" && len(cs.databases) == 0 && cs.addTable == "" {
		conn := map[string]string{}
		if m := reConnHost.FindStringSubmatch(input); m != nil {
			conn["host"] = m[1]
		}
		if m := reConnUser.FindStringSubmatch(input); m != nil {
			conn["user"] = m[1]
		}
		if m := reConnPort.FindStringSubmatch(input); m != nil {
			conn["port"] = m[1]
		}
		// "use database sales" is a switch, not a connection field; the
		// guard above already excluded it.
		if m := reConnDB.FindStringSubmatch(input); m != nil {
			conn["database"] = m[1]
		}
		if len(conn) > 0 {
			cs.connection = conn
		}
	}

	return cs
}

// applyChanges mutates the session's collected fields per the change set.
// Returns "" when everything applied, else a corrective message for the
// user; on a corrective message nothing may be half-applied for that field.
func applyChanges(sess *Session, cs changeSet) string {
	if cs.name != "" {
		sanitized := SanitizeName(cs.name)
		if len(sanitized) < 3 {
			return "That name is too short. Please give me at least three characters (letters, numbers, hyphens or underscores)."
		}
		sess.Collected.TransformationName = cs.name
		sess.Collected.SanitizedName = sanitized
	}

	if len(cs.databases) > 0 {
		sess.Collected.Databases = cs.databases
		var tables []catalog.TableRef
		for _, db := range cs.databases {
			known := sess.DiscoveredCatalog[db]
			count := min(3, len(known))
			for _, table := range known[:count] {
				tables = append(tables, catalog.TableRef{Schema: db, Table: table})
			}
		}
		sess.Collected.Tables = tables
	}

	if cs.addTable != "" {
		ref, found := findTable(sess, cs.addTable)
		if !found {
			return fmt.Sprintf("I couldn't find a table named %q in the discovered schemas. You can say 'use database X' to switch schemas first.", cs.addTable)
		}
		if !hasTable(sess.Collected.Tables, ref) {
			sess.Collected.Tables = append(sess.Collected.Tables, ref)
		}
	}

	if len(cs.connection) > 0 {
		if sess.Collected.ConnectionDetails == nil {
			sess.Collected.ConnectionDetails = map[string]string{}
		}
		for k, v := range cs.connection {
			sess.Collected.ConnectionDetails[k] = v
		}
		sess.Collected.UseExistingConnection = false
	}

	return ""
}

// findTable locates the owning schema of a table name in the session's
// discovery snapshot, case-insensitively, and returns the catalog's own
// spelling.
func findTable(sess *Session, name string) (catalog.TableRef, bool) {
	nameLower := strings.ToLower(name)
	for _, schema := range sess.AvailableSchemas {
		for _, table := range sess.DiscoveredCatalog[schema] {
			if strings.ToLower(table) == nameLower {
				return catalog.TableRef{Schema: schema, Table: table}, true
			}
		}
	}
	return catalog.TableRef{}, false
}

func hasTable(tables []catalog.TableRef, ref catalog.TableRef) bool {
	for _, t := range tables {
		if strings.EqualFold(t.Schema, ref.Schema) && strings.EqualFold(t.Table, ref.Table) {
			return true
		}
	}
	return false
}
