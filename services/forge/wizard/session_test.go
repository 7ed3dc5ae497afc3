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
	"sync"
	"testing"
	"time"
)

func TestSessionRegistry_GetOrCreate(t *testing.T) {
	r := NewSessionRegistry(time.Hour)

	sess := r.GetOrCreate("s1")
	if sess.ID != "s1" {
		t.Errorf("id = %q", sess.ID)
	}
	if sess.Stage != StageInitialGreeting {
		t.Errorf("new session stage = %q, want greeting", sess.Stage)
	}
	if sess.CreatedAt.IsZero() || sess.CreatedAt.Location() != time.UTC {
		t.Errorf("created at = %v, want non-zero UTC", sess.CreatedAt)
	}

	if again := r.GetOrCreate("s1"); again != sess {
		t.Error("GetOrCreate returned a different session for the same id")
	}
}

func TestSessionRegistry_GetWithoutCreate(t *testing.T) {
	r := NewSessionRegistry(time.Hour)

	if _, ok := r.Get("missing"); ok {
		t.Error("Get created a session")
	}
	r.GetOrCreate("s1")
	if _, ok := r.Get("s1"); !ok {
		t.Error("Get missed a live session")
	}
}

func TestSessionRegistry_DeleteIdempotent(t *testing.T) {
	r := NewSessionRegistry(time.Hour)
	r.GetOrCreate("a")
	r.GetOrCreate("b")

	r.Delete("a")
	r.Delete("a")
	r.Delete("never-existed")

	if _, ok := r.Get("a"); ok {
		t.Error("deleted session still present")
	}
	if n := r.Len(); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func TestSessionRegistry_IdleExpiry(t *testing.T) {
	r := NewSessionRegistry(40 * time.Millisecond)
	r.GetOrCreate("s1")

	time.Sleep(120 * time.Millisecond)
	if _, ok := r.Get("s1"); ok {
		t.Error("idle session survived past its TTL")
	}
}

func TestSessionRegistry_ActivityExtendsTTL(t *testing.T) {
	r := NewSessionRegistry(200 * time.Millisecond)
	r.GetOrCreate("s1")

	for i := 0; i < 3; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, ok := r.Get("s1"); !ok {
			t.Fatalf("session expired despite activity (check %d)", i)
		}
	}
}

func TestSessionRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewSessionRegistry(time.Hour)

	var mu sync.Mutex
	seen := make(map[*Session]bool)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := r.GetOrCreate("shared")
			mu.Lock()
			seen[sess] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 1 {
		t.Errorf("GetOrCreate produced %d distinct sessions, want 1", len(seen))
	}
}

func TestCollected_CloneIsDeep(t *testing.T) {
	sess := confirmationSession()
	snap := snapshotData(sess)

	snap.Databases[0] = "tampered"
	snap.Tables[0].Table = "tampered"
	snap.ConnectionDetails = map[string]string{"host": "tampered"}

	if sess.Collected.Databases[0] != "sales" {
		t.Error("clone shares the databases slice")
	}
	if sess.Collected.Tables[0].Table != "sales_daily" {
		t.Error("clone shares the tables slice")
	}
	if len(sess.Collected.ConnectionDetails) != 0 {
		t.Error("clone shares the connection map")
	}
}
