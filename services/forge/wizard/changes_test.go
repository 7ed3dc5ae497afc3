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
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
)

var changeTestSchemas = []string{"sales", "customer"}

func confirmationSession() *Session {
	sess := newSession("s-changes")
	sess.Stage = StageConfirmation
	sess.AvailableSchemas = changeTestSchemas
	sess.DiscoveredCatalog = map[string][]string{
		"sales":    {"sales_daily", "regions_dim", "orders_fact", "returns"},
		"customer": {"customers_dim", "accounts"},
	}
	sess.Collected = Collected{
		Intent:                "build a sales dashboard",
		Databases:             []string{"sales"},
		Tables:                []catalog.TableRef{{Schema: "sales", Table: "sales_daily"}},
		TransformationName:    "Sales Dashboard",
		SanitizedName:         "SALES_DASHBOARD",
		UseExistingConnection: true,
	}
	return sess
}

func TestParseChanges(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  changeSet
	}{
		{
			name:  "rename with name to",
			input: "change name to CUSTOMER_INSIGHTS",
			want:  changeSet{name: "CUSTOMER_INSIGHTS"},
		},
		{
			name:  "rename with name is",
			input: "the name is Quarterly Revenue",
			want:  changeSet{name: "Quarterly Revenue"},
		},
		{
			name:  "rename with call it",
			input: "call it DAILY_OPS.",
			want:  changeSet{name: "DAILY_OPS"},
		},
		{
			name:  "switch database",
			input: "use database customer",
			want:  changeSet{databases: []string{"customer"}},
		},
		{
			name:  "switch database alternate phrasing",
			input: "please change database to sales",
			want:  changeSet{databases: []string{"sales"}},
		},
		{
			name:  "add table",
			input: "add table regions_dim",
			want:  changeSet{addTable: "regions_dim"},
		},
		{
			name:  "include table",
			input: "include table accounts",
			want:  changeSet{addTable: "accounts"},
		},
		{
			name:  "connection details",
			input: "host: warehouse.internal port: 5439 user: svc_forge database: analytics",
			want: changeSet{connection: map[string]string{
				"host":     "warehouse.internal",
				"port":     "5439",
				"user":     "svc_forge",
				"database": "analytics",
			}},
		},
		{
			name:  "structural change suppresses connection fields",
			input: "add table sessions, user: bob",
			want:  changeSet{addTable: "sessions"},
		},
		{
			name:  "password refused outright",
			input: "host: db.internal password: hunter2",
			want:  changeSet{secretRejected: true},
		},
		{
			name:  "pwd variant refused",
			input: "pwd=s3cret",
			want:  changeSet{secretRejected: true},
		},
		{
			name:  "no change recognized",
			input: "hello there",
			want:  changeSet{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseChanges(tc.input, changeTestSchemas)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseChanges(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseChanges_PasswordDropsEverythingElse(t *testing.T) {
	got := parseChanges("use database customer, host: h, password: hunter2", changeTestSchemas)
	if !got.secretRejected {
		t.Fatal("expected secretRejected")
	}
	if got.name != "" || len(got.databases) != 0 || got.addTable != "" || len(got.connection) != 0 {
		t.Errorf("password input still produced changes: %+v", got)
	}
}

func TestChangeSet_Empty(t *testing.T) {
	if !(changeSet{}).empty() {
		t.Error("zero changeSet should be empty")
	}
	if (changeSet{name: "X"}).empty() {
		t.Error("named changeSet should not be empty")
	}
	if (changeSet{secretRejected: true}).empty() {
		t.Error("refused changeSet should not be empty")
	}
}

func TestApplyChanges_Rename(t *testing.T) {
	sess := confirmationSession()

	if msg := applyChanges(sess, changeSet{name: "Customer Insights"}); msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	if sess.Collected.TransformationName != "Customer Insights" {
		t.Errorf("display name = %q", sess.Collected.TransformationName)
	}
	if sess.Collected.SanitizedName != "CUSTOMER_INSIGHTS" {
		t.Errorf("sanitized name = %q", sess.Collected.SanitizedName)
	}
}

func TestApplyChanges_RenameTooShort(t *testing.T) {
	sess := confirmationSession()

	msg := applyChanges(sess, changeSet{name: "ab"})
	if !strings.Contains(msg, "too short") {
		t.Fatalf("expected too-short corrective, got %q", msg)
	}
	if sess.Collected.SanitizedName != "SALES_DASHBOARD" {
		t.Errorf("name changed despite rejection: %q", sess.Collected.SanitizedName)
	}
}

func TestApplyChanges_SwitchDatabaseReselectsTables(t *testing.T) {
	sess := confirmationSession()

	if msg := applyChanges(sess, changeSet{databases: []string{"customer"}}); msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	if !reflect.DeepEqual(sess.Collected.Databases, []string{"customer"}) {
		t.Errorf("databases = %v", sess.Collected.Databases)
	}
	want := []catalog.TableRef{
		{Schema: "customer", Table: "customers_dim"},
		{Schema: "customer", Table: "accounts"},
	}
	if !reflect.DeepEqual(sess.Collected.Tables, want) {
		t.Errorf("tables = %v, want %v", sess.Collected.Tables, want)
	}
}

func TestApplyChanges_SwitchDatabaseCapsTablesAtThree(t *testing.T) {
	sess := confirmationSession()

	if msg := applyChanges(sess, changeSet{databases: []string{"sales"}}); msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	if len(sess.Collected.Tables) != 3 {
		t.Errorf("tables = %v, want first three of the schema", sess.Collected.Tables)
	}
}

func TestApplyChanges_AddTable(t *testing.T) {
	sess := confirmationSession()

	if msg := applyChanges(sess, changeSet{addTable: "REGIONS_DIM"}); msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	want := catalog.TableRef{Schema: "sales", Table: "regions_dim"}
	found := false
	for _, ref := range sess.Collected.Tables {
		if ref == want {
			found = true
		}
	}
	if !found {
		t.Errorf("tables = %v, want %v appended with catalog spelling", sess.Collected.Tables, want)
	}
}

func TestApplyChanges_AddTableDuplicateIgnored(t *testing.T) {
	sess := confirmationSession()
	before := len(sess.Collected.Tables)

	if msg := applyChanges(sess, changeSet{addTable: "sales_daily"}); msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	if len(sess.Collected.Tables) != before {
		t.Errorf("duplicate add grew tables: %v", sess.Collected.Tables)
	}
}

func TestApplyChanges_AddTableUnknown(t *testing.T) {
	sess := confirmationSession()

	msg := applyChanges(sess, changeSet{addTable: "no_such_table"})
	if !strings.Contains(msg, "couldn't find a table named") {
		t.Fatalf("expected corrective, got %q", msg)
	}
	if len(sess.Collected.Tables) != 1 {
		t.Errorf("tables changed despite rejection: %v", sess.Collected.Tables)
	}
}

func TestApplyChanges_ConnectionDetails(t *testing.T) {
	sess := confirmationSession()

	msg := applyChanges(sess, changeSet{connection: map[string]string{
		"host": "warehouse.internal",
		"port": "5439",
	}})
	if msg != "" {
		t.Fatalf("unexpected corrective message: %q", msg)
	}
	if sess.Collected.ConnectionDetails["host"] != "warehouse.internal" {
		t.Errorf("host = %q", sess.Collected.ConnectionDetails["host"])
	}
	if sess.Collected.UseExistingConnection {
		t.Error("expected use_existing_connection=false")
	}

	// A later message merges instead of replacing.
	applyChanges(sess, changeSet{connection: map[string]string{"user": "svc_forge"}})
	if sess.Collected.ConnectionDetails["host"] != "warehouse.internal" {
		t.Error("merge dropped earlier host")
	}
	if sess.Collected.ConnectionDetails["user"] != "svc_forge" {
		t.Errorf("user = %q", sess.Collected.ConnectionDetails["user"])
	}
}
