// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
)

func TestBuildSearchText_AllFields(t *testing.T) {
	rec := BuildRecord{
		BuildID:            "b-1",
		Intent:             "build a sales dashboard",
		TransformationName: "SALES_DASHBOARD",
		TransformationType: "dashboard",
		Databases:          []string{"sales", "public"},
		Tables:             []string{"sales_orders", "revenue_daily"},
	}

	got := buildSearchText(rec)
	want := "Intent: build a sales dashboard | Transformation: SALES_DASHBOARD | " +
		"Databases: sales, public | Tables: sales_orders, revenue_daily | Type: dashboard"
	if got != want {
		t.Errorf("searchable text:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildSearchText_SkipsEmptyFields(t *testing.T) {
	rec := BuildRecord{BuildID: "b-2", Intent: "monitor performance"}
	if got := buildSearchText(rec); got != "Intent: monitor performance" {
		t.Errorf("searchable text = %q", got)
	}
}

func TestBuildObjectID_Deterministic(t *testing.T) {
	if buildObjectID("b-1") != buildObjectID("b-1") {
		t.Error("same build ID produced different object IDs")
	}
	if buildObjectID("b-1") == buildObjectID("b-2") {
		t.Error("different build IDs produced the same object ID")
	}
}

func TestBuildStore_IndexBuild_RequiresID(t *testing.T) {
	store := NewBuildStore(nil, &stubEmbedder{})
	if err := store.IndexBuild(context.Background(), BuildRecord{}); err == nil {
		t.Fatal("expected error for record without ID")
	}
}

func TestBuildStore_IndexBuild_RequiresContent(t *testing.T) {
	store := NewBuildStore(nil, &stubEmbedder{})
	if err := store.IndexBuild(context.Background(), BuildRecord{BuildID: "b-3"}); err == nil {
		t.Fatal("expected error for record with nothing to index")
	}
}

func TestBuildStore_IndexBuild_Upserts(t *testing.T) {
	var mu sync.Mutex
	var objects []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/batch/objects" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var body struct {
			Objects []map[string]interface{} `json:"objects"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding batch request: %v", err)
		}
		mu.Lock()
		objects = append(objects, body.Objects...)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	store := NewBuildStore(testWeaviateClient(t, server), &stubEmbedder{})
	rec := BuildRecord{
		BuildID:            "b-7",
		Intent:             "customer churn report",
		TransformationName: "CUSTOMER_REPORT",
		Databases:          []string{"customer"},
	}

	if err := store.IndexBuild(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(objects) != 1 {
		t.Fatalf("got %d batched objects, want 1", len(objects))
	}
	if objects[0]["class"] != buildClassName {
		t.Errorf("class = %v, want %s", objects[0]["class"], buildClassName)
	}
	if objects[0]["id"] != string(buildObjectID("b-7")) {
		t.Errorf("id = %v, want deterministic ID for b-7", objects[0]["id"])
	}
	props := objects[0]["properties"].(map[string]interface{})
	if props["buildId"] != "b-7" {
		t.Errorf("buildId = %v", props["buildId"])
	}
	if props["databases"] != "customer" {
		t.Errorf("databases = %v", props["databases"])
	}
	if props["summary"] == "" {
		t.Error("summary must carry the searchable text")
	}
}

func TestBuildStore_SearchSimilar_FiltersBelowFloor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphql" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(`{"data":{"Get":{"ForgeBuild":[
			{"summary":"Intent: sales","intent":"sales","transformationName":"SALES_DASHBOARD","databases":"sales, public","buildId":"b-1","_additional":{"certainty":0.88}},
			{"summary":"Intent: stale","intent":"stale","transformationName":"OLD_THING","databases":"","buildId":"b-2","_additional":{"certainty":0.31}}
		]}}}`))
	}))
	defer server.Close()

	store := NewBuildStore(testWeaviateClient(t, server), &stubEmbedder{})
	matches := store.SearchSimilar(context.Background(), "sales dashboard", 3)

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 after floor filter", len(matches))
	}
	if matches[0].BuildID != "b-1" {
		t.Errorf("build ID = %q, want b-1", matches[0].BuildID)
	}
	if !reflect.DeepEqual(matches[0].Databases, []string{"sales", "public"}) {
		t.Errorf("databases = %v, want [sales public]", matches[0].Databases)
	}
	if matches[0].Score != 0.88 {
		t.Errorf("score = %f, want 0.88", matches[0].Score)
	}
}

func TestBuildStore_SearchSimilar_DistanceFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphql" {
			w.WriteHeader(http.StatusOK)
			return
		}
		// 1/(1+1.0) = 0.5 sits exactly on the floor and survives;
		// 1/(1+3.0) = 0.25 does not.
		w.Write([]byte(`{"data":{"Get":{"ForgeBuild":[
			{"summary":"s","intent":"i","transformationName":"A","databases":"x","buildId":"b-1","_additional":{"distance":1.0}},
			{"summary":"s","intent":"i","transformationName":"B","databases":"y","buildId":"b-2","_additional":{"distance":3.0}}
		]}}}`))
	}))
	defer server.Close()

	store := NewBuildStore(testWeaviateClient(t, server), &stubEmbedder{})
	matches := store.SearchSimilar(context.Background(), "anything", 5)

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Score != 0.5 {
		t.Errorf("score = %f, want 0.5 from distance fallback", matches[0].Score)
	}
}

func TestBuildStore_SearchSimilar_ServerDownReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	store := NewBuildStore(testWeaviateClient(t, server), &stubEmbedder{})
	if got := store.SearchSimilar(context.Background(), "anything", 3); got != nil {
		t.Errorf("matches = %v, want nil when store is unreachable", got)
	}
}

func TestBuildStore_SearchSimilar_NilStore(t *testing.T) {
	var store *BuildStore
	if got := store.SearchSimilar(context.Background(), "anything", 3); got != nil {
		t.Errorf("matches = %v, want nil for nil store", got)
	}
}

func TestSplitDatabases(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"sales", []string{"sales"}},
		{"sales, public", []string{"sales", "public"}},
		{" sales ,  , public ", []string{"sales", "public"}},
	}
	for _, tc := range cases {
		got := splitDatabases(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitDatabases(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
