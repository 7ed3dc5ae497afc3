// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wizard implements the conversational build flow: a per-session
// state machine that captures what the user wants to build, discovers the
// matching warehouse schemas and tables, proposes a transformation name, and
// finalizes the confirmed result into a persisted build specification.
//
// The wizard owns conversation state and flow only. Models, the warehouse
// catalog, the retrieval corpora, and persistence are injected collaborators;
// every one of them may be absent or failing and the wizard still answers
// every turn with a usable TurnResult.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
	"github.com/AleutianAI/AleutianForge/services/forge/retrieval"
)

var wizardTracer = otel.Tracer("forge.wizard")

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forge",
		Subsystem: "wizard",
		Name:      "turns_total",
		Help:      "Conversation turns processed, by resulting stage.",
	}, []string{"stage"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forge",
		Subsystem: "wizard",
		Name:      "turn_duration_seconds",
		Help:      "Turn processing latency, by resulting stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
)

// ContextAdvisor supplies retrieval-augmented context and raw suggestions.
// Implemented by retrieval.Advisor; nil disables retrieval everywhere.
type ContextAdvisor interface {
	ContextFor(ctx context.Context, query string, categories ...string) string
	Documents(ctx context.Context, query string, k int, category string) []retrieval.Snippet
	SimilarBuilds(ctx context.Context, query string, topK int) []retrieval.BuildMatch
}

// Deps are the collaborators a Wizard needs. Catalog and Sessions are
// required; everything else may be nil and degrades per the error taxonomy.
type Deps struct {
	Sessions  *SessionRegistry
	Catalog   catalog.Gateway
	Advisor   ContextAdvisor
	Extractor *Extractor
	Matcher   *Matcher
	Namer     *Namer
	Finalizer *Finalizer
}

// Wizard is the conversation state machine.
//
// Thread Safety: Safe for concurrent use across sessions; turns for one
// session serialize on the session's lock.
type Wizard struct {
	sessions  *SessionRegistry
	catalog   catalog.Gateway
	advisor   ContextAdvisor
	extractor *Extractor
	matcher   *Matcher
	namer     *Namer
	finalizer *Finalizer
}

// New assembles a wizard from its collaborators.
func New(deps Deps) (*Wizard, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("wizard: session registry is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("wizard: catalog gateway is required")
	}
	w := &Wizard{
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		advisor:   deps.Advisor,
		extractor: deps.Extractor,
		matcher:   deps.Matcher,
		namer:     deps.Namer,
		finalizer: deps.Finalizer,
	}
	if w.extractor == nil {
		w.extractor = NewExtractor(nil)
	}
	if w.matcher == nil {
		w.matcher = NewMatcher(nil, deps.Advisor)
	}
	if w.namer == nil {
		w.namer = NewNamer(nil, deps.Advisor)
	}
	if w.finalizer == nil {
		w.finalizer = NewFinalizer(nil, nil)
	}
	return w, nil
}

const greetingMessage = `Hi, How can I help you?

Please select one of the following options:

1. Do you want to build a Report?
2. Do you want to do the full refresh?
3. Do you want to make changes to existing Workflow?
4. Do you want to create report from existing Silver layer?
5. Do you want to build Gold layer on existing Silver Layer?
6. Do you want to do bulk migration of report?

Please reply with the option number (1-6) or the option text.`

var greetingHints = []string{
	"1. Build a Report",
	"2. Full refresh",
	"3. Make changes to existing Workflow",
	"4. Create report from existing Silver layer",
	"5. Build Gold layer on existing Silver Layer",
	"6. Bulk migration of report",
}

var greetingKeywords = []string{"hi", "hello", "hey", "greetings", "start", "begin"}

// menuOptions maps selection phrases to working intents, checked in order
// so numeric selections win over looser keyword matches.
var menuOptions = []struct{ key, intent string }{
	{"1", "build a report"},
	{"build a report", "build a report"},
	{"report", "build a report"},
	{"2", "full refresh"},
	{"full refresh", "full refresh"},
	{"refresh", "full refresh"},
	{"3", "make changes to existing workflow"},
	{"make changes to existing workflow", "make changes to existing workflow"},
	{"changes to workflow", "make changes to existing workflow"},
	{"workflow", "make changes to existing workflow"},
	{"4", "create report from existing silver layer"},
	{"create report from existing silver layer", "create report from existing silver layer"},
	{"silver layer report", "create report from existing silver layer"},
	{"silver", "create report from existing silver layer"},
	{"5", "build gold layer on existing silver layer"},
	{"build gold layer on existing silver layer", "build gold layer on existing silver layer"},
	{"gold layer", "build gold layer on existing silver layer"},
	{"gold", "build gold layer on existing silver layer"},
	{"6", "bulk migration of report"},
	{"bulk migration of report", "bulk migration of report"},
	{"bulk migration", "bulk migration of report"},
	{"migration", "bulk migration of report"},
}

// menuContextMessages acknowledge a selection and ask for detail.
var menuContextMessages = map[string]string{
	"build a report":                            "Great! I'll help you build a report. Please tell me more about what kind of report you want to create.",
	"full refresh":                              "I'll help you with a full refresh. Please provide details about what needs to be refreshed.",
	"make changes to existing workflow":         "I'll help you make changes to an existing workflow. Please tell me which workflow you want to modify.",
	"create report from existing silver layer":  "I'll help you create a report from an existing Silver layer. Please provide details about the Silver layer and the report you want to create.",
	"build gold layer on existing silver layer": "I'll help you build a Gold layer on an existing Silver layer. Please provide details about the Silver layer and the Gold layer requirements.",
	"bulk migration of report":                  "I'll help you with bulk migration of reports. Please provide details about the reports you want to migrate.",
}

// notConfiguredMessage is the operator-facing guidance for a missing or
// rejected model configuration. Distinct from the transient apology so the
// user knows retrying will not help.
const notConfiguredMessage = "❌ Error: no language model is configured. " +
	"Ask the operator to set FORGE_MAIN_PROVIDER (and the provider's API key or base URL) and restart the service."

// confirmationHelpMessage is shown when confirmation input is neither a
// confirm phrase nor a recognized change command.
const confirmationHelpMessage = "I didn't understand. You can:\n" +
	"- Say 'yes' to proceed\n" +
	"- Say 'change name to X' to change the name\n" +
	"- Say 'use database X' to change databases\n" +
	"- Say 'add table X' to add tables"

// secretRejectedMessage explains why the wizard refuses password input.
const secretRejectedMessage = "For security I can't keep passwords in the conversation, so I ignored that message. " +
	"Set the warehouse credentials in the service environment (FORGE_WAREHOUSE_DSN) instead; " +
	"host, port, database, and user are fine to share here."

var confirmationKeywords = []string{"yes", "y", "proceed", "ok", "okay", "sure", "confirm", "go ahead", "create", "sounds good"}

// ProcessTurn handles one user message for one session.
//
// Description:
//
//	The only externally observable operation besides ResetSession. Loads or
//	creates the session, serializes on its lock, dispatches to the current
//	stage's handler, and appends both sides of the exchange to the
//	transcript. Every path returns a TurnResult; the error return is
//	reserved for caller mistakes (empty session id), never for collaborator
//	failures.
//
// Thread Safety: Safe for concurrent use. Turns for the same session are
// applied in lock-acquisition order.
func (w *Wizard) ProcessTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("wizard: session id is required")
	}

	ctx, span := wizardTracer.Start(ctx, "forge.wizard.turn")
	defer span.End()
	started := time.Now()

	sess := w.sessions.GetOrCreate(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	trimmed := strings.TrimSpace(userText)
	if trimmed != "" {
		sess.appendTurn("user", userText)
	}

	var result *TurnResult
	switch sess.Stage {
	case StageInitialGreeting:
		result = w.handleOptionSelection(sess, trimmed)
	case StageIntentCapture:
		result = w.handleIntentCapture(ctx, sess, trimmed)
	case StageAutoDiscovery:
		result = w.handleAutoDiscovery(ctx, sess, trimmed)
	case StageConfirmation:
		result = w.handleConfirmation(ctx, sess, trimmed)
	case StageComplete:
		result = completeView(sess)
	default:
		// Unknown stage in a restored session; recapture intent.
		sess.Stage = StageIntentCapture
		result = w.handleIntentCapture(ctx, sess, trimmed)
	}

	sess.appendTurn("assistant", result.Message)
	sess.UpdatedAt = time.Now().UTC()

	stage := string(result.Stage)
	turnsTotal.WithLabelValues(stage).Inc()
	turnDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.String("wizard.stage", stage),
		attribute.Bool("wizard.requires_input", result.RequiresInput),
	)

	return result, nil
}

// ResetSession discards all state for the session id. Idempotent; a
// subsequent turn for the same id starts fresh at the greeting.
func (w *Wizard) ResetSession(sessionID string) {
	w.sessions.Delete(sessionID)
	slog.Info("Session reset", slog.String("session_id", sessionID))
}

// Sessions exposes the registry for lifecycle management (Start/Stop) and
// status reporting.
func (w *Wizard) Sessions() *SessionRegistry {
	return w.sessions
}

func greetingView(sess *Session) *TurnResult {
	return &TurnResult{
		Stage:         StageInitialGreeting,
		Message:       greetingMessage,
		Hints:         append([]string(nil), greetingHints...),
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// isGreeting reports whether the input is a short greeting ("hi", "hello
// there"). Whole-word matching keeps "this is about shipping" from reading
// as a greeting just because it contains "hi".
func isGreeting(input string) bool {
	words := strings.Fields(strings.ToLower(input))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:")
		for _, keyword := range greetingKeywords {
			if word == keyword {
				return true
			}
		}
	}
	return false
}

// handleOptionSelection resolves the greeting menu reply into a working
// intent hint, or re-displays the menu. Empty input and plain greetings
// show the menu without complaint.
func (w *Wizard) handleOptionSelection(sess *Session, input string) *TurnResult {
	if input == "" || isGreeting(input) {
		return greetingView(sess)
	}

	lower := strings.ToLower(input)
	for _, option := range menuOptions {
		if !strings.Contains(lower, option.key) {
			continue
		}
		sess.Collected.Intent = option.intent
		sess.Stage = StageIntentCapture

		message, ok := menuContextMessages[option.intent]
		if !ok {
			message = fmt.Sprintf("I understand you want to %s. Please provide more details.", option.intent)
		}
		return &TurnResult{
			Stage:         StageIntentCapture,
			Message:       message,
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}

	return &TurnResult{
		Stage:         StageInitialGreeting,
		Message:       "I didn't understand your selection. Please choose one of the following options:\n\n" + greetingMessage,
		Hints:         append([]string(nil), greetingHints...),
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// handleIntentCapture extracts structured intent from free text and, on
// success, runs auto discovery within the same turn.
func (w *Wizard) handleIntentCapture(ctx context.Context, sess *Session, input string) *TurnResult {
	if input == "" {
		return &TurnResult{
			Stage:         StageIntentCapture,
			Message:       "Please tell me what you'd like to build.",
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}

	if !w.extractor.Configured() {
		return &TurnResult{
			Stage:         StageIntentCapture,
			Message:       notConfiguredMessage,
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}

	ragContext := ""
	if w.advisor != nil {
		ragContext = w.advisor.ContextFor(ctx, input, "documentation", "examples", "rules")
	}

	intent, err := w.extractor.Extract(ctx, input, ragContext)
	if err != nil {
		return w.intentFailureView(sess, err)
	}

	sess.Extraction = intent
	sess.Collected.Intent = intent.Goal
	sess.Stage = StageAutoDiscovery

	result := w.performDiscovery(ctx, sess)
	result.Message = fmt.Sprintf("I'll create a %s for you. Let me gather what I need...\n\n",
		intent.TransformationType) + result.Message
	return result
}

func (w *Wizard) intentFailureView(sess *Session, err error) *TurnResult {
	if errors.Is(err, ErrNotConfigured) {
		slog.Error("Intent extraction unavailable", slog.String("error", err.Error()))
		return &TurnResult{
			Stage:         StageIntentCapture,
			Message:       notConfiguredMessage,
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}

	slog.Warn("Intent extraction failed",
		slog.String("session_id", sess.ID),
		slog.String("error", err.Error()))
	return &TurnResult{
		Stage: StageIntentCapture,
		Message: fmt.Sprintf(
			"I understand you want to create something. Could you tell me more about what you'd like to build?\n\n(Error: %v)", err),
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// performDiscovery snapshots the catalog, matches schemas and tables,
// proposes a name, and moves the session to confirmation. Never fails: the
// timeboxed gateway substitutes defaults and every model step has a
// non-model fallback.
func (w *Wizard) performDiscovery(ctx context.Context, sess *Session) *TurnResult {
	intent := sess.Extraction
	if intent == nil {
		intent = &Intent{Goal: sess.Collected.Intent}
	}

	snap := catalog.BuildSnapshot(ctx, w.catalog)
	sess.AvailableSchemas = snap.Schemas
	sess.DiscoveredCatalog = snap.Tables

	selected := w.matcher.Match(ctx, intent, snap.Schemas, snap.Tables)

	var tables []catalog.TableRef
	for _, db := range selected {
		for _, table := range selectTables(intent, snap.Tables[db]) {
			tables = append(tables, catalog.TableRef{Schema: db, Table: table})
		}
	}

	name := w.namer.SuggestName(ctx, intent.Goal, selected)

	sess.Collected.Databases = selected
	sess.Collected.Tables = tables
	sess.Collected.TransformationName = name
	sess.Collected.SanitizedName = SanitizeName(name)
	sess.Collected.UseExistingConnection = true
	sess.Collected.ConnectionDetails = map[string]string{}

	slog.Info("Auto discovery finished",
		slog.String("session_id", sess.ID),
		slog.Int("databases", len(selected)),
		slog.Int("tables", len(tables)),
		slog.String("name", sess.Collected.SanitizedName))

	sess.Stage = StageConfirmation
	return w.confirmationView(ctx, sess)
}

// handleAutoDiscovery exists for dispatch totality: discovery normally runs
// inside the intent-capture turn and sessions do not wait in this stage.
func (w *Wizard) handleAutoDiscovery(ctx context.Context, sess *Session, input string) *TurnResult {
	if len(sess.Collected.Databases) == 0 {
		return w.performDiscovery(ctx, sess)
	}
	sess.Stage = StageConfirmation
	if input == "" {
		return w.confirmationView(ctx, sess)
	}
	return w.handleConfirmation(ctx, sess, input)
}

// handleConfirmation accepts a confirm phrase, a change command, or empty
// input (re-display); anything else gets the help text.
func (w *Wizard) handleConfirmation(ctx context.Context, sess *Session, input string) *TurnResult {
	if input == "" {
		return w.confirmationView(ctx, sess)
	}

	if isConfirmation(input) {
		return w.finalizeTurn(ctx, sess)
	}

	changes := parseChanges(input, sess.AvailableSchemas)
	if changes.secretRejected {
		return &TurnResult{
			Stage:         StageConfirmation,
			Message:       secretRejectedMessage,
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}
	if !changes.empty() {
		if corrective := applyChanges(sess, changes); corrective != "" {
			return &TurnResult{
				Stage:         StageConfirmation,
				Message:       corrective,
				RequiresInput: true,
				Data:          snapshotData(sess),
			}
		}
		result := w.confirmationView(ctx, sess)
		result.Message = "Updated! " + result.Message
		return result
	}

	return &TurnResult{
		Stage:         StageConfirmation,
		Message:       confirmationHelpMessage,
		Hints:         []string{},
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// isConfirmation matches confirm phrases. Single-word phrases match whole
// words only; "change name to MY_REPORT" must not confirm just because a
// word in it contains the letter y.
func isConfirmation(input string) bool {
	lower := strings.ToLower(input)
	words := strings.Fields(lower)
	for _, keyword := range confirmationKeywords {
		if strings.Contains(keyword, " ") {
			if strings.Contains(lower, keyword) {
				return true
			}
			continue
		}
		for _, word := range words {
			if strings.Trim(word, ".,!?;:") == keyword {
				return true
			}
		}
	}
	return false
}

func (w *Wizard) finalizeTurn(ctx context.Context, sess *Session) *TurnResult {
	spec, warning, err := w.finalizer.Finalize(ctx, sess)
	if err != nil {
		slog.Warn("Finalize refused",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return &TurnResult{
			Stage:         StageConfirmation,
			Message:       fmt.Sprintf("I can't finish the setup yet: %v. Tell me what to change, or say 'yes' once it looks right.", err),
			RequiresInput: true,
			Data:          snapshotData(sess),
		}
	}

	sess.Stage = StageComplete

	message := fmt.Sprintf(
		"Perfect! I'm creating your transformation '%s' now. This will be saved to the build catalog.\n\nSetup complete! 🎉",
		sess.Collected.TransformationName)
	if warning != "" {
		message += "\n\n(Note: Setup completed but " + warning + ")"
	}

	return &TurnResult{
		Stage:              StageComplete,
		Message:            message,
		RequiresInput:      false,
		Data:               snapshotData(sess),
		BuildSpecification: spec,
		PersistenceWarning: warning,
	}
}

func completeView(sess *Session) *TurnResult {
	return &TurnResult{
		Stage:         StageComplete,
		Message:       "Setup is already complete. Would you like to create another transformation?",
		RequiresInput: true,
		Data:          snapshotData(sess),
	}
}

// snapshotData deep-copies the collected fields so the result can leave the
// session lock safely.
func snapshotData(sess *Session) *Collected {
	c := sess.Collected.clone()
	return &c
}
