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
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// vectorCacheKeyPrefix namespaces embedding cache entries inside the shared
// BadgerDB. The forge_cache_dump tool must match this exactly.
const vectorCacheKeyPrefix = "forge/emb/v1/"

// DefaultVectorTTL is how long cached corpus embeddings stay valid. A week
// is long enough to survive restarts and short Ollama outages; stale
// entries age out on their own so model upgrades do not need a manual
// cache wipe.
const DefaultVectorTTL = 7 * 24 * time.Hour

// VectorCache persists corpus embeddings in BadgerDB keyed by corpus hash.
//
// Description:
//
//	A corpus is one ingestion unit (all chunks of one document). Its hash
//	covers the embedding model name and every chunk text, so any edit to
//	the file or change of model produces a new key and a clean miss. The
//	value is a gob-encoded map from chunk key to vector.
//
// Thread Safety: VectorCache is safe for concurrent use; BadgerDB
// transactions provide isolation.
type VectorCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewVectorCache wraps an open BadgerDB handle. The handle is shared with
// other stores in the process; VectorCache does not close it. A zero ttl
// selects DefaultVectorTTL.
func NewVectorCache(db *badger.DB, ttl time.Duration) *VectorCache {
	if ttl <= 0 {
		ttl = DefaultVectorTTL
	}
	return &VectorCache{db: db, ttl: ttl}
}

// CorpusHash derives the cache key for a corpus: the embedding model name
// plus every chunk text, in order. Chunk order matters; reordering a
// document reorders its vectors.
func CorpusHash(model string, texts []string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached vectors for a corpus hash, or false on miss.
// Decode failures count as misses; the entry is left to expire.
func (c *VectorCache) Get(corpusHash string) (map[string][]float32, bool) {
	var vectors map[string][]float32

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(vectorCacheKeyPrefix + corpusHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&vectors)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			slog.Warn("Vector cache read failed",
				slog.String("corpus_hash", corpusHash),
				slog.String("error", err.Error()),
			)
		}
		vectorCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	vectorCacheTotal.WithLabelValues("hit").Inc()
	return vectors, true
}

// Put stores corpus vectors under the cache TTL.
func (c *VectorCache) Put(corpusHash string, vectors map[string][]float32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("retrieval: encoding vector cache entry: %w", err)
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(vectorCacheKeyPrefix+corpusHash), buf.Bytes()).
			WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("retrieval: writing vector cache entry: %w", err)
	}

	slog.Debug("Cached corpus embeddings",
		slog.String("corpus_hash", corpusHash),
		slog.Int("vectors", len(vectors)),
	)
	return nil
}
