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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
	"github.com/AleutianAI/AleutianForge/services/forge/providers"
	"github.com/AleutianAI/AleutianForge/services/forge/retrieval"
	"github.com/AleutianAI/AleutianForge/services/forge/storage"
	"github.com/AleutianAI/AleutianForge/services/llm"
)

// =============================================================================
// Test doubles
// =============================================================================

// cannedChat answers every call with a fixed reply or error and records the
// prompts it saw.
type cannedChat struct {
	reply string
	err   error

	mu    sync.Mutex
	calls [][]llm.Message
}

func (c *cannedChat) Chat(_ context.Context, messages []llm.Message, _ providers.ChatOptions) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, messages)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *cannedChat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeGateway serves a fixed in-memory catalog.
type fakeGateway struct {
	schemas []string
	tables  map[string][]string
}

func (g *fakeGateway) ListSchemas(context.Context) ([]string, error) {
	return g.schemas, nil
}

func (g *fakeGateway) ListTables(_ context.Context, schema string) ([]string, error) {
	return g.tables[schema], nil
}

func (g *fakeGateway) GetTableMetadata(context.Context, string, string) (*catalog.TableMetadata, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) CountRows(context.Context, string, string) (int64, error) {
	return 0, errors.New("not implemented")
}

// stubAdvisor returns fixed retrieval results.
type stubAdvisor struct {
	contextText string
	docs        []retrieval.Snippet
	builds      []retrieval.BuildMatch
}

func (a *stubAdvisor) ContextFor(context.Context, string, ...string) string {
	return a.contextText
}

func (a *stubAdvisor) Documents(context.Context, string, int, string) []retrieval.Snippet {
	return a.docs
}

func (a *stubAdvisor) SimilarBuilds(context.Context, string, int) []retrieval.BuildMatch {
	return a.builds
}

// recordingSaver captures saved specifications, assigning identity the way
// the real store does.
type recordingSaver struct {
	mu    sync.Mutex
	err   error
	saved []*storage.BuildSpecification
}

func (s *recordingSaver) Save(_ context.Context, spec *storage.BuildSpecification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	spec.ID = fmt.Sprintf("build-%d", len(s.saved)+1)
	spec.Status = "completed"
	spec.CreatedAt = time.Now().UTC()
	s.saved = append(s.saved, spec)
	return nil
}

type recordingIndexer struct {
	mu      sync.Mutex
	err     error
	records []retrieval.BuildRecord
}

func (i *recordingIndexer) IndexBuild(_ context.Context, rec retrieval.BuildRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.records = append(i.records, rec)
	return nil
}

const extractorReply = `{"intent": "build a sales dashboard", "mentioned_databases": [], "mentioned_tables": [], "transformation_type": "report", "keywords": ["sales", "dashboard"]}`

const namerReply = `{"suggestions": ["Sales Dashboard", "SALES_OVERVIEW", "DAILY_SALES"]}`

func testGateway() *fakeGateway {
	return &fakeGateway{
		schemas: []string{"sales", "customer", "orders"},
		tables: map[string][]string{
			"sales":    {"sales_daily", "orders_fact", "regions_dim"},
			"customer": {"customers_dim", "accounts"},
			"orders":   {"orders", "order_items"},
		},
	}
}

func newTestWizard(t *testing.T) (*Wizard, *recordingSaver, *recordingIndexer) {
	t.Helper()
	saver := &recordingSaver{}
	indexer := &recordingIndexer{}
	w, err := New(Deps{
		Sessions:  NewSessionRegistry(time.Hour),
		Catalog:   testGateway(),
		Advisor:   &stubAdvisor{},
		Extractor: NewExtractor(&cannedChat{reply: extractorReply}),
		Matcher:   NewMatcher(nil, nil),
		Namer:     NewNamer(&cannedChat{reply: namerReply}, nil),
		Finalizer: NewFinalizer(saver, indexer),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, saver, indexer
}

func mustTurn(t *testing.T, w *Wizard, sessionID, input string) *TurnResult {
	t.Helper()
	res, err := w.ProcessTurn(context.Background(), sessionID, input)
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", input, err)
	}
	return res
}

// driveToConfirmation walks a fresh session to the confirmation stage.
func driveToConfirmation(t *testing.T, w *Wizard, sessionID string) *TurnResult {
	t.Helper()
	mustTurn(t, w, sessionID, "")
	if res := mustTurn(t, w, sessionID, "1"); res.Stage != StageIntentCapture {
		t.Fatalf("after option selection: stage = %q, want %q", res.Stage, StageIntentCapture)
	}
	res := mustTurn(t, w, sessionID, "I want a sales dashboard")
	if res.Stage != StageConfirmation {
		t.Fatalf("after intent capture: stage = %q, want %q\nmessage: %s", res.Stage, StageConfirmation, res.Message)
	}
	return res
}

// =============================================================================
// Conversation flow
// =============================================================================

func TestProcessTurn_FirstContactShowsMenu(t *testing.T) {
	w, _, _ := newTestWizard(t)

	res := mustTurn(t, w, "s-greeting", "")
	if res.Stage != StageInitialGreeting {
		t.Errorf("stage = %q, want %q", res.Stage, StageInitialGreeting)
	}
	if string(res.Stage) != "initial_greeting" {
		t.Errorf("stage wire value = %q, want initial_greeting", string(res.Stage))
	}
	if !res.RequiresInput {
		t.Error("expected requires_input=true")
	}
	if len(res.Hints) != 6 {
		t.Fatalf("hints = %d, want 6", len(res.Hints))
	}
	if res.Hints[0] != "1. Build a Report" {
		t.Errorf("first hint = %q", res.Hints[0])
	}
	if res.Hints[5] != "6. Bulk migration of report" {
		t.Errorf("last hint = %q", res.Hints[5])
	}
	if !strings.Contains(res.Message, "Please reply with the option number (1-6)") {
		t.Errorf("greeting missing instruction, got: %s", res.Message)
	}
	if res.Data == nil {
		t.Error("expected data snapshot on every turn")
	}
}

func TestProcessTurn_GreetingKeywordsShowMenu(t *testing.T) {
	w, _, _ := newTestWizard(t)

	for _, input := range []string{"hi", "Hello!", "hey there", "start"} {
		res := mustTurn(t, w, "s-"+input, input)
		if res.Stage != StageInitialGreeting {
			t.Errorf("input %q: stage = %q, want greeting", input, res.Stage)
		}
		if len(res.Hints) != 6 {
			t.Errorf("input %q: hints = %d, want 6", input, len(res.Hints))
		}
	}
}

func TestProcessTurn_GreetingIsWholeWordOnly(t *testing.T) {
	w, _, _ := newTestWizard(t)

	// "this" and "shipping" contain "hi" but the message is not a greeting.
	res := mustTurn(t, w, "s-notgreeting", "this is about shipping")
	if !strings.Contains(res.Message, "I didn't understand your selection") {
		t.Errorf("expected unrecognized-selection reply, got: %s", res.Message)
	}
	if res.Stage != StageInitialGreeting {
		t.Errorf("stage = %q, want greeting", res.Stage)
	}
}

func TestProcessTurn_MenuSelection(t *testing.T) {
	cases := []struct {
		input      string
		wantIntent string
		wantInMsg  string
	}{
		{"1", "build a report", "build a report"},
		{"build a report", "build a report", "build a report"},
		{"2", "full refresh", "full refresh"},
		{"3", "make changes to existing workflow", "existing workflow"},
		{"4", "create report from existing silver layer", "Silver layer"},
		{"5", "build gold layer on existing silver layer", "Gold layer"},
		{"6", "bulk migration of report", "bulk migration"},
		{"I want to do bulk migration", "bulk migration of report", "bulk migration"},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w, _, _ := newTestWizard(t)
			mustTurn(t, w, "s-menu", "")

			res := mustTurn(t, w, "s-menu", tc.input)
			if res.Stage != StageIntentCapture {
				t.Fatalf("stage = %q, want %q", res.Stage, StageIntentCapture)
			}
			if res.Data.Intent != tc.wantIntent {
				t.Errorf("intent = %q, want %q", res.Data.Intent, tc.wantIntent)
			}
			if !strings.Contains(res.Message, tc.wantInMsg) {
				t.Errorf("message %q does not mention %q", res.Message, tc.wantInMsg)
			}
			if !res.RequiresInput {
				t.Error("expected requires_input=true")
			}
		})
	}
}

func TestProcessTurn_UnrecognizedSelectionRepeatsMenu(t *testing.T) {
	w, _, _ := newTestWizard(t)
	mustTurn(t, w, "s-unknown-option", "")

	res := mustTurn(t, w, "s-unknown-option", "make me a sandwich")
	if res.Stage != StageInitialGreeting {
		t.Errorf("stage = %q, want greeting", res.Stage)
	}
	if !strings.Contains(res.Message, "I didn't understand your selection") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if !strings.Contains(res.Message, "1. Do you want to build a Report?") {
		t.Errorf("expected menu repeated, got: %s", res.Message)
	}
	if len(res.Hints) != 6 {
		t.Errorf("hints = %d, want 6", len(res.Hints))
	}
}

func TestProcessTurn_IntentToConfirmation(t *testing.T) {
	w, _, _ := newTestWizard(t)

	res := driveToConfirmation(t, w, "s-flow")

	if !strings.HasPrefix(res.Message, "I'll create a report for you. Let me gather what I need...") {
		t.Errorf("missing discovery preamble, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "I found 1 database(s): sales") {
		t.Errorf("expected sales schema found, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "I'll use these tables:") {
		t.Errorf("expected table listing, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "Name: Sales Dashboard") {
		t.Errorf("expected display name, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "Connection: Using existing connection") {
		t.Errorf("expected connection line, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "Sound good?") {
		t.Errorf("expected confirmation question, got: %s", res.Message)
	}

	data := res.Data
	if data == nil {
		t.Fatal("expected data snapshot")
	}
	if len(data.Databases) < 1 || len(data.Databases) > 3 {
		t.Errorf("databases = %v, want 1 to 3 entries", data.Databases)
	}
	if data.Databases[0] != "sales" {
		t.Errorf("databases = %v, want sales first", data.Databases)
	}
	if data.SanitizedName != "SALES_DASHBOARD" {
		t.Errorf("sanitized name = %q, want SALES_DASHBOARD", data.SanitizedName)
	}
	for _, r := range data.SanitizedName {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			t.Errorf("sanitized name %q contains %q", data.SanitizedName, r)
		}
	}
	if !data.UseExistingConnection {
		t.Error("expected use_existing_connection=true after discovery")
	}
}

func TestProcessTurn_ConfirmCompletesAndPersists(t *testing.T) {
	w, saver, indexer := newTestWizard(t)
	before := driveToConfirmation(t, w, "s-confirm")

	res := mustTurn(t, w, "s-confirm", "yes")
	if res.Stage != StageComplete {
		t.Fatalf("stage = %q, want %q\nmessage: %s", res.Stage, StageComplete, res.Message)
	}
	if res.RequiresInput {
		t.Error("expected requires_input=false on completion")
	}
	if !strings.Contains(res.Message, "Perfect! I'm creating your transformation 'Sales Dashboard' now.") {
		t.Errorf("unexpected completion message: %s", res.Message)
	}
	if !strings.Contains(res.Message, "Setup complete! 🎉") {
		t.Errorf("missing completion marker: %s", res.Message)
	}
	if res.PersistenceWarning != "" {
		t.Errorf("unexpected persistence warning: %q", res.PersistenceWarning)
	}

	spec := res.BuildSpecification
	if spec == nil {
		t.Fatal("expected build specification on completion")
	}
	if spec.Intent != before.Data.Intent {
		t.Errorf("spec intent = %q, want %q", spec.Intent, before.Data.Intent)
	}
	if len(spec.Databases) != len(before.Data.Databases) {
		t.Errorf("spec databases = %v, want %v", spec.Databases, before.Data.Databases)
	}
	if spec.SanitizedName != "SALES_DASHBOARD" {
		t.Errorf("spec sanitized name = %q", spec.SanitizedName)
	}
	if spec.ID == "" {
		t.Error("expected saver-assigned id")
	}

	saver.mu.Lock()
	savedCount := len(saver.saved)
	saver.mu.Unlock()
	if savedCount != 1 {
		t.Errorf("saved %d specs, want 1", savedCount)
	}

	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	if len(indexer.records) != 1 {
		t.Fatalf("indexed %d builds, want 1", len(indexer.records))
	}
	if indexer.records[0].TransformationName != "SALES_DASHBOARD" {
		t.Errorf("indexed name = %q", indexer.records[0].TransformationName)
	}
}

func TestProcessTurn_RenameBeforeConfirm(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-rename")

	res := mustTurn(t, w, "s-rename", "change name to CUSTOMER_INSIGHTS")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if !strings.HasPrefix(res.Message, "Updated! ") {
		t.Errorf("expected Updated! prefix, got: %s", res.Message)
	}
	if res.Data.TransformationName != "CUSTOMER_INSIGHTS" {
		t.Errorf("name = %q, want CUSTOMER_INSIGHTS", res.Data.TransformationName)
	}
	if res.Data.SanitizedName != "CUSTOMER_INSIGHTS" {
		t.Errorf("sanitized = %q, want CUSTOMER_INSIGHTS", res.Data.SanitizedName)
	}

	// The rename must not be read as a confirmation even though "MY_NAME"
	// style input contains the letter y.
	res = mustTurn(t, w, "s-rename", "change name to My Quarterly Summary")
	if res.Stage != StageConfirmation {
		t.Fatalf("rename confirmed instead of updating: stage = %q", res.Stage)
	}
	if res.Data.SanitizedName != "MY_QUARTERLY_SUMMARY" {
		t.Errorf("sanitized = %q, want MY_QUARTERLY_SUMMARY", res.Data.SanitizedName)
	}

	res = mustTurn(t, w, "s-rename", "yes")
	if res.Stage != StageComplete {
		t.Fatalf("stage = %q, want complete", res.Stage)
	}
	if res.BuildSpecification.SanitizedName != "MY_QUARTERLY_SUMMARY" {
		t.Errorf("spec name = %q", res.BuildSpecification.SanitizedName)
	}
}

func TestProcessTurn_ChangeDatabaseBeforeConfirm(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-switch")

	res := mustTurn(t, w, "s-switch", "use database customer")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if len(res.Data.Databases) != 1 || res.Data.Databases[0] != "customer" {
		t.Fatalf("databases = %v, want [customer]", res.Data.Databases)
	}
	for _, ref := range res.Data.Tables {
		if ref.Schema != "customer" {
			t.Errorf("table %v kept stale schema", ref)
		}
	}
	if !strings.Contains(res.Message, "I found 1 database(s): customer") {
		t.Errorf("view not refreshed: %s", res.Message)
	}
}

func TestProcessTurn_AddTableBeforeConfirm(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-addtable")

	res := mustTurn(t, w, "s-addtable", "add table regions_dim")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	found := false
	for _, ref := range res.Data.Tables {
		if ref.Table == "regions_dim" {
			found = true
		}
	}
	if !found {
		t.Errorf("tables = %v, want regions_dim added", res.Data.Tables)
	}

	res = mustTurn(t, w, "s-addtable", "add table no_such_table")
	if !strings.Contains(res.Message, "couldn't find a table named") {
		t.Errorf("expected corrective message, got: %s", res.Message)
	}
	if res.Stage != StageConfirmation {
		t.Errorf("stage = %q, want confirmation", res.Stage)
	}
}

func TestProcessTurn_PasswordRefused(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-secret")

	res := mustTurn(t, w, "s-secret", "host: db.internal password: hunter2 user: svc_forge")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if !strings.Contains(res.Message, "FORGE_WAREHOUSE_DSN") {
		t.Errorf("expected env guidance, got: %s", res.Message)
	}
	if len(res.Data.ConnectionDetails) != 0 {
		t.Errorf("connection details stored despite refusal: %v", res.Data.ConnectionDetails)
	}
	if strings.Contains(res.Message, "hunter2") {
		t.Error("secret echoed back to the user")
	}

	// The transcript must not keep the assistant repeating the secret either.
	sess, ok := w.Sessions().Get("s-secret")
	if !ok {
		t.Fatal("session missing")
	}
	for _, turn := range sess.Messages {
		if turn.Role == "assistant" && strings.Contains(turn.Content, "hunter2") {
			t.Error("assistant transcript contains the secret")
		}
	}
}

func TestProcessTurn_ConnectionFieldsAccepted(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-conn")

	res := mustTurn(t, w, "s-conn", "host: warehouse.internal port: 5439 user: svc_forge")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if res.Data.ConnectionDetails["host"] != "warehouse.internal" {
		t.Errorf("host = %q", res.Data.ConnectionDetails["host"])
	}
	if res.Data.ConnectionDetails["port"] != "5439" {
		t.Errorf("port = %q", res.Data.ConnectionDetails["port"])
	}
	if res.Data.ConnectionDetails["user"] != "svc_forge" {
		t.Errorf("user = %q", res.Data.ConnectionDetails["user"])
	}
	if res.Data.UseExistingConnection {
		t.Error("expected use_existing_connection=false after new details")
	}
	if !strings.Contains(res.Message, "Connection: New connection") {
		t.Errorf("view not refreshed: %s", res.Message)
	}
}

func TestProcessTurn_ConfirmationHelp(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-help")

	res := mustTurn(t, w, "s-help", "what do you mean")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if !strings.Contains(res.Message, "Say 'yes' to proceed") {
		t.Errorf("expected help text, got: %s", res.Message)
	}
}

func TestProcessTurn_EmptyConfirmationRedisplays(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-redisplay")

	res := mustTurn(t, w, "s-redisplay", "   ")
	if res.Stage != StageConfirmation {
		t.Fatalf("stage = %q, want confirmation", res.Stage)
	}
	if !strings.Contains(res.Message, "Sound good?") {
		t.Errorf("expected view redisplayed, got: %s", res.Message)
	}
	if strings.HasPrefix(res.Message, "Updated!") {
		t.Errorf("empty input treated as change: %s", res.Message)
	}
}

func TestProcessTurn_CompleteStageStaysComplete(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-done")
	mustTurn(t, w, "s-done", "yes")

	res := mustTurn(t, w, "s-done", "yes")
	if res.Stage != StageComplete {
		t.Errorf("stage = %q, want complete", res.Stage)
	}
	if !res.RequiresInput {
		t.Error("expected requires_input=true on already-complete reply")
	}
	if !strings.Contains(res.Message, "Setup is already complete.") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if res.BuildSpecification != nil {
		t.Error("repeat turn must not mint another specification")
	}
}

func TestProcessTurn_EmptyIntentInput(t *testing.T) {
	w, _, _ := newTestWizard(t)
	mustTurn(t, w, "s-emptyintent", "")
	mustTurn(t, w, "s-emptyintent", "1")

	res := mustTurn(t, w, "s-emptyintent", "   ")
	if res.Stage != StageIntentCapture {
		t.Errorf("stage = %q, want intent_capture", res.Stage)
	}
	if !strings.Contains(res.Message, "Please tell me what you'd like to build.") {
		t.Errorf("unexpected message: %s", res.Message)
	}
}

func TestProcessTurn_NoModelConfigured(t *testing.T) {
	saver := &recordingSaver{}
	w, err := New(Deps{
		Sessions:  NewSessionRegistry(time.Hour),
		Catalog:   testGateway(),
		Extractor: NewExtractor(nil),
		Finalizer: NewFinalizer(saver, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustTurn(t, w, "s-nomodel", "")
	mustTurn(t, w, "s-nomodel", "1")

	res := mustTurn(t, w, "s-nomodel", "build a sales dashboard")
	if res.Stage != StageIntentCapture {
		t.Errorf("stage = %q, want intent_capture", res.Stage)
	}
	if !strings.Contains(res.Message, "FORGE_MAIN_PROVIDER") {
		t.Errorf("expected operator guidance, got: %s", res.Message)
	}
	if !res.RequiresInput {
		t.Error("expected requires_input=true")
	}
}

func TestProcessTurn_TransientExtractionError(t *testing.T) {
	w, err := New(Deps{
		Sessions:  NewSessionRegistry(time.Hour),
		Catalog:   testGateway(),
		Extractor: NewExtractor(&cannedChat{err: errors.New("connection refused")}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustTurn(t, w, "s-transient", "")
	mustTurn(t, w, "s-transient", "1")

	res := mustTurn(t, w, "s-transient", "build a sales dashboard")
	if res.Stage != StageIntentCapture {
		t.Errorf("stage = %q, want intent_capture", res.Stage)
	}
	if !strings.Contains(res.Message, "Could you tell me more about what you'd like to build?") {
		t.Errorf("expected retry invitation, got: %s", res.Message)
	}
	if !strings.Contains(res.Message, "(Error:") {
		t.Errorf("expected error detail, got: %s", res.Message)
	}
}

func TestProcessTurn_AuthErrorReadsAsNotConfigured(t *testing.T) {
	w, err := New(Deps{
		Sessions:  NewSessionRegistry(time.Hour),
		Catalog:   testGateway(),
		Extractor: NewExtractor(&cannedChat{err: errors.New("request failed with status 401")}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustTurn(t, w, "s-auth", "")
	mustTurn(t, w, "s-auth", "1")

	res := mustTurn(t, w, "s-auth", "build a sales dashboard")
	if !strings.Contains(res.Message, "FORGE_MAIN_PROVIDER") {
		t.Errorf("expected operator guidance for auth failure, got: %s", res.Message)
	}
}

func TestProcessTurn_UnknownStageRecovers(t *testing.T) {
	w, _, _ := newTestWizard(t)
	sess := w.Sessions().GetOrCreate("s-bogus")
	sess.Stage = Stage("bogus")

	res := mustTurn(t, w, "s-bogus", "I want a sales dashboard")
	if res.Stage != StageConfirmation {
		t.Errorf("stage = %q, want confirmation after recovery", res.Stage)
	}
}

func TestProcessTurn_EmptySessionID(t *testing.T) {
	w, _, _ := newTestWizard(t)
	if _, err := w.ProcessTurn(context.Background(), "", "hello"); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestResetSession_StartsFresh(t *testing.T) {
	w, _, _ := newTestWizard(t)
	driveToConfirmation(t, w, "s-reset")

	w.ResetSession("s-reset")
	w.ResetSession("s-reset") // idempotent

	res := mustTurn(t, w, "s-reset", "")
	if res.Stage != StageInitialGreeting {
		t.Errorf("stage = %q, want greeting after reset", res.Stage)
	}
	if res.Data != nil && len(res.Data.Databases) != 0 {
		t.Errorf("stale data after reset: %v", res.Data)
	}
}

func TestProcessTurn_ConcurrentSameSession(t *testing.T) {
	w, _, _ := newTestWizard(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.ProcessTurn(context.Background(), "s-concurrent", "hello"); err != nil {
				t.Errorf("ProcessTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, ok := w.Sessions().Get("s-concurrent")
	if !ok {
		t.Fatal("session missing")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	// Each turn appends exactly one user and one assistant message.
	if len(sess.Messages) != 16 {
		t.Errorf("messages = %d, want 16", len(sess.Messages))
	}
	for i, turn := range sess.Messages {
		want := "user"
		if i%2 == 1 {
			want = "assistant"
		}
		if turn.Role != want {
			t.Errorf("message %d role = %q, want %q", i, turn.Role, want)
		}
	}
}

func TestProcessTurn_SessionsAreIsolated(t *testing.T) {
	w, _, _ := newTestWizard(t)

	driveToConfirmation(t, w, "s-one")
	res := mustTurn(t, w, "s-two", "")
	if res.Stage != StageInitialGreeting {
		t.Errorf("fresh session stage = %q, want greeting", res.Stage)
	}

	if n := w.Sessions().Len(); n != 2 {
		t.Errorf("live sessions = %d, want 2", n)
	}
}

// =============================================================================
// Keyword matching
// =============================================================================

func TestIsGreeting(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"hi", true},
		{"Hi!", true},
		{"hello there", true},
		{"hey", true},
		{"greetings", true},
		{"start", true},
		{"begin", true},
		{"this is about shipping", false},
		{"highway to the danger zone", false},
		{"hello I would like to build a report please", false},
		{"", false},
		{"beginner question about reports", false},
	}
	for _, tc := range cases {
		if got := isGreeting(tc.input); got != tc.want {
			t.Errorf("isGreeting(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestIsConfirmation(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"yes", true},
		{"Yes.", true},
		{"y", true},
		{"proceed", true},
		{"ok", true},
		{"okay then", true},
		{"sure", true},
		{"confirm", true},
		{"go ahead", true},
		{"go ahead and create it", true},
		{"sounds good", true},
		{"create", true},
		{"nope", false},
		{"change name to MY_REPORT", false},
		{"yearly report", false},
		{"use database sales", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isConfirmation(tc.input); got != tc.want {
			t.Errorf("isConfirmation(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to Stage
		want     bool
	}{
		{StageInitialGreeting, StageIntentCapture, true},
		{StageIntentCapture, StageAutoDiscovery, true},
		{StageAutoDiscovery, StageConfirmation, true},
		{StageConfirmation, StageComplete, true},
		{StageInitialGreeting, StageComplete, true},
		{StageComplete, StageConfirmation, false},
		{StageConfirmation, StageIntentCapture, false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.want {
			t.Errorf("CanAdvance(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
