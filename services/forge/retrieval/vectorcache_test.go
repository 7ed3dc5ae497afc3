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
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func newTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestVectorCache_PutGetRoundtrip(t *testing.T) {
	cache := NewVectorCache(newTestBadger(t), 0)

	want := map[string][]float32{
		"guide.md#0": {0.1, 0.2, 0.3},
		"guide.md#1": {0.4, 0.5, 0.6},
	}
	hash := CorpusHash("nomic-embed-text", []string{"chunk one", "chunk two"})

	if err := cache.Put(hash, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := cache.Get(hash)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for key, vec := range want {
		cached, ok := got[key]
		if !ok {
			t.Fatalf("missing key %q", key)
		}
		if len(cached) != len(vec) {
			t.Fatalf("key %q: got %d dims, want %d", key, len(cached), len(vec))
		}
		for i := range vec {
			if cached[i] != vec[i] {
				t.Errorf("key %q dim %d: got %f, want %f", key, i, cached[i], vec[i])
			}
		}
	}
}

func TestVectorCache_MissOnUnknownHash(t *testing.T) {
	cache := NewVectorCache(newTestBadger(t), 0)

	if _, ok := cache.Get("deadbeef"); ok {
		t.Fatal("expected cache miss for unknown hash")
	}
}

func TestVectorCache_DecodeFailureIsMiss(t *testing.T) {
	db := newTestBadger(t)
	cache := NewVectorCache(db, 0)

	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(vectorCacheKeyPrefix+"broken"), []byte("not gob data"))
	})
	if err != nil {
		t.Fatalf("seeding broken entry: %v", err)
	}

	if _, ok := cache.Get("broken"); ok {
		t.Fatal("expected miss for undecodable entry")
	}
}

func TestNewVectorCache_DefaultTTL(t *testing.T) {
	cache := NewVectorCache(newTestBadger(t), 0)
	if cache.ttl != DefaultVectorTTL {
		t.Errorf("ttl = %s, want %s", cache.ttl, DefaultVectorTTL)
	}
}

func TestCorpusHash_Stable(t *testing.T) {
	a := CorpusHash("m", []string{"x", "y"})
	b := CorpusHash("m", []string{"x", "y"})
	if a != b {
		t.Errorf("same inputs hashed differently: %s vs %s", a, b)
	}
}

func TestCorpusHash_OrderSensitive(t *testing.T) {
	a := CorpusHash("m", []string{"x", "y"})
	b := CorpusHash("m", []string{"y", "x"})
	if a == b {
		t.Error("reordered chunks must change the corpus hash")
	}
}

func TestCorpusHash_ModelSensitive(t *testing.T) {
	a := CorpusHash("model-a", []string{"x"})
	b := CorpusHash("model-b", []string{"x"})
	if a == b {
		t.Error("different models must change the corpus hash")
	}
}

func TestCorpusHash_BoundarySensitive(t *testing.T) {
	a := CorpusHash("m", []string{"ab", "c"})
	b := CorpusHash("m", []string{"a", "bc"})
	if a == b {
		t.Error("chunk boundaries must participate in the corpus hash")
	}
}
