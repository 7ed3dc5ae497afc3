// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func validSpec() *BuildSpecification {
	return &BuildSpecification{
		Intent:             "build a sales dashboard",
		Databases:          []string{"sales"},
		Tables:             []catalog.TableRef{{Schema: "sales", Table: "sales_orders"}},
		TransformationName: "SALES DASHBOARD",
		SanitizedName:      "SALES_DASHBOARD",
	}
}

func TestBuildStore_Save_AssignsIdentity(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)
	spec := validSpec()

	before := time.Now().UTC()
	if err := store.Save(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.ID == "" {
		t.Error("Save must assign an ID")
	}
	if spec.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", spec.Status, StatusCompleted)
	}
	if spec.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %s, want at or after %s", spec.CreatedAt, before)
	}
}

func TestBuildStore_Save_Validation(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)

	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("expected error for nil spec")
	}

	noName := validSpec()
	noName.SanitizedName = ""
	if err := store.Save(context.Background(), noName); err == nil {
		t.Error("expected error for missing sanitized name")
	}

	noDatabases := validSpec()
	noDatabases.Databases = nil
	if err := store.Save(context.Background(), noDatabases); err == nil {
		t.Error("expected error for missing databases")
	}
}

func TestBuildStore_SaveGetRoundtrip(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)
	spec := validSpec()
	spec.ConnectionDetails = map[string]string{"host": "warehouse.internal", "port": "5432"}
	spec.UseExistingConnection = false

	if err := store.Save(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(spec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != spec.Intent {
		t.Errorf("intent = %q, want %q", got.Intent, spec.Intent)
	}
	if got.SanitizedName != "SALES_DASHBOARD" {
		t.Errorf("sanitized name = %q", got.SanitizedName)
	}
	if len(got.Tables) != 1 || got.Tables[0].Table != "sales_orders" {
		t.Errorf("tables = %v", got.Tables)
	}
	if got.ConnectionDetails["host"] != "warehouse.internal" {
		t.Errorf("connection details = %v", got.ConnectionDetails)
	}
}

func TestBuildStore_Get_NotFound(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)

	_, err := store.Get("nonexistent")
	if !errors.Is(err, ErrBuildNotFound) {
		t.Errorf("error = %v, want ErrBuildNotFound", err)
	}
}

func TestBuildStore_List_NewestFirst(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)

	names := []string{"FIRST_BUILD", "SECOND_BUILD", "THIRD_BUILD"}
	for _, name := range names {
		spec := validSpec()
		spec.SanitizedName = name
		if err := store.Save(context.Background(), spec); err != nil {
			t.Fatalf("saving %s: %v", name, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	specs, err := store.List(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("got %d specs, want 3", len(specs))
	}
	if specs[0].SanitizedName != "THIRD_BUILD" {
		t.Errorf("newest = %q, want THIRD_BUILD", specs[0].SanitizedName)
	}
	if specs[2].SanitizedName != "FIRST_BUILD" {
		t.Errorf("oldest = %q, want FIRST_BUILD", specs[2].SanitizedName)
	}
}

func TestBuildStore_List_HonorsLimit(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)

	for i := 0; i < 5; i++ {
		if err := store.Save(context.Background(), validSpec()); err != nil {
			t.Fatalf("saving spec %d: %v", i, err)
		}
	}

	specs, err := store.List(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 2 {
		t.Errorf("got %d specs, want 2", len(specs))
	}
}

func TestBuildStore_List_Empty(t *testing.T) {
	store := NewBuildStore(newTestDB(t), nil)

	specs, err := store.List(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("got %d specs, want 0", len(specs))
	}
}

func TestMaintainGC_StopsOnCancel(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		MaintainGC(ctx, db, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MaintainGC did not stop after cancel")
	}
}
