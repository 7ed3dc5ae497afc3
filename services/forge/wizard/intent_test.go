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
	"strings"
	"testing"
)

func TestExtractor_Configured(t *testing.T) {
	if NewExtractor(nil).Configured() {
		t.Error("nil client should not be configured")
	}
	if !NewExtractor(&cannedChat{}).Configured() {
		t.Error("non-nil client should be configured")
	}
}

func TestExtract_NotConfigured(t *testing.T) {
	_, err := NewExtractor(nil).Extract(context.Background(), "build something", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestExtract_ParsesFencedReply(t *testing.T) {
	client := &cannedChat{reply: "```json\n" +
		`{"intent": "track daily sales", "mentioned_databases": ["sales"], "mentioned_tables": ["sales_daily"], "transformation_type": "dashboard", "keywords": ["sales", "daily"]}` +
		"\n```"}
	e := NewExtractor(client)

	intent, err := e.Extract(context.Background(), "I want to track daily sales", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if intent.Goal != "track daily sales" {
		t.Errorf("goal = %q", intent.Goal)
	}
	if intent.TransformationType != "dashboard" {
		t.Errorf("type = %q", intent.TransformationType)
	}
	if len(intent.MentionedDatabases) != 1 || intent.MentionedDatabases[0] != "sales" {
		t.Errorf("mentioned databases = %v", intent.MentionedDatabases)
	}
	if len(intent.Keywords) != 2 {
		t.Errorf("keywords = %v", intent.Keywords)
	}
}

func TestExtract_ProseWrappedReply(t *testing.T) {
	client := &cannedChat{reply: "Here is the extraction:\n{\"intent\": \"refresh inventory\"}\nLet me know if that helps."}
	e := NewExtractor(client)

	intent, err := e.Extract(context.Background(), "refresh the inventory", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if intent.Goal != "refresh inventory" {
		t.Errorf("goal = %q", intent.Goal)
	}
}

func TestExtract_DefaultsForSparseReply(t *testing.T) {
	e := NewExtractor(&cannedChat{reply: `{"keywords": []}`})

	intent, err := e.Extract(context.Background(), "make me something useful", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if intent.Goal != "make me something useful" {
		t.Errorf("goal = %q, want the raw user text", intent.Goal)
	}
	if intent.TransformationType != "transformation" {
		t.Errorf("type = %q, want transformation", intent.TransformationType)
	}
}

func TestExtract_GarbageReplyIsExtractionError(t *testing.T) {
	e := NewExtractor(&cannedChat{reply: "I could not produce JSON, sorry."})

	_, err := e.Extract(context.Background(), "build a report", "")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("err = %T (%v), want *ExtractionError", err, err)
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Error("parse failure must not read as a configuration problem")
	}
}

func TestExtract_TransientTransportError(t *testing.T) {
	e := NewExtractor(&cannedChat{err: errors.New("connection refused")})

	_, err := e.Extract(context.Background(), "build a report", "")
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("err = %T (%v), want *ExtractionError", err, err)
	}
}

func TestExtract_AuthErrorsReadAsNotConfigured(t *testing.T) {
	for _, msg := range []string{
		"invalid API key provided",
		"authentication failed",
		"unauthorized",
		"request failed with status 401",
		"request failed with status 403",
	} {
		e := NewExtractor(&cannedChat{err: errors.New(msg)})
		_, err := e.Extract(context.Background(), "build a report", "")
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("error %q: got %v, want ErrNotConfigured", msg, err)
		}
	}
}

func TestExtract_ContextReachesSystemPrompt(t *testing.T) {
	client := &cannedChat{reply: `{"intent": "q"}`}
	e := NewExtractor(client)

	if _, err := e.Extract(context.Background(), "q", "\nThe warehouse uses star schemas."); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 1 {
		t.Fatalf("chat calls = %d, want 1", len(client.calls))
	}
	system := client.calls[0][0].Content
	if !strings.Contains(system, "Relevant Context:") || !strings.Contains(system, "star schemas") {
		t.Errorf("system prompt missing retrieval context:\n%s", system)
	}
	user := client.calls[0][1].Content
	if !strings.Contains(user, "User input: q") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestUnmarshalModelJSON(t *testing.T) {
	type payload struct {
		Intent string `json:"intent"`
	}

	t.Run("plain object", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON(`{"intent": "a"}`, &p); err != nil || p.Intent != "a" {
			t.Errorf("got %+v, %v", p, err)
		}
	})

	t.Run("fenced", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON("```json\n{\"intent\": \"b\"}\n```", &p); err != nil || p.Intent != "b" {
			t.Errorf("got %+v, %v", p, err)
		}
	})

	t.Run("bare fence", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON("```\n{\"intent\": \"c\"}\n```", &p); err != nil || p.Intent != "c" {
			t.Errorf("got %+v, %v", p, err)
		}
	})

	t.Run("surrounding prose", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON("Sure!\n{\"intent\": \"d\"}\nAnything else?", &p); err != nil || p.Intent != "d" {
			t.Errorf("got %+v, %v", p, err)
		}
	})

	t.Run("no object", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON("there is no json here", &p); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON("", &p); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("unbalanced", func(t *testing.T) {
		var p payload
		if err := unmarshalModelJSON(`{"intent": "e"`, &p); err == nil {
			t.Error("expected error")
		}
	})
}

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("Invalid API Key"), true},
		{errors.New("Authentication required"), true},
		{errors.New("401 Unauthorized"), true},
		{errors.New("server returned status 403"), true},
		{errors.New("connection refused"), false},
		{errors.New("timeout"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isAuthError(tc.err); got != tc.want {
			t.Errorf("isAuthError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
