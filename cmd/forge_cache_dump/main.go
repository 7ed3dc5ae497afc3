// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// forge_cache_dump inspects the Forge embedding vector cache.
//
// The vector cache persists corpus embeddings (one entry per ingested
// document, keyed by corpus hash) in BadgerDB between service restarts so
// re-ingesting unchanged documentation skips the embedding provider. This
// tool opens the store read-only and prints a human-readable summary: keys,
// corpus hashes, TTL remaining, per-chunk vector dimensions, and a short
// sample of each vector.
//
// The store is shared with the build specification records; this tool only
// walks the embedding key prefix and ignores everything else.
//
// Usage:
//
//	forge_cache_dump [--path /path/to/forge-data]
//
// If --path is not given, reads FORGE_DATA_DIR from the environment,
// falling back to ./forge-data (the server default).
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// vectorCacheKeyPrefix must match retrieval/vectorcache.go exactly.
const vectorCacheKeyPrefix = "forge/emb/v1/"

func main() {
	pathFlag := flag.String("path", "", "Path to the Forge BadgerDB directory (overrides FORGE_DATA_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("FORGE_DATA_DIR")
	}
	if dbPath == "" {
		dbPath = "./forge-data"
	}

	fmt.Printf("Forge data path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Data directory does not exist. The service has not yet opened its store.")
		fmt.Println("Start the Forge service with FORGE_DOCS_DIR set to populate the cache.")
		os.Exit(0)
	}

	// Open read-only. The server may hold the write lock; a read-only open
	// coexists with it.
	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	// Collect all entries under the embedding key prefix.
	type entry struct {
		key        string
		corpusHash string
		expiresAt  time.Time
		hasExpiry  bool
		vectors    map[string][]float32
		rawSize    int
		decodeErr  error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(vectorCacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			corpusHash := strings.TrimPrefix(key, vectorCacheKeyPrefix)

			var e entry
			e.key = key
			e.corpusHash = corpusHash

			// TTL: item.ExpiresAt() returns Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			vectors, err := gobDecode(raw)
			if err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.vectors = vectors
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo embedding cache entries found.")
		fmt.Println("Ingestion has not run yet, or the embedding provider was unavailable")
		fmt.Println("when the documents directory was scanned.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d embedding cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Printf("    Corpus hash: %s\n", e.corpusHash)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:         EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:         %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:         no expiry set\n")
		}

		fmt.Printf("    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Chunks:      %d vectors\n", len(e.vectors))

		// Print each chunk's vector stats in sorted order. Chunk keys are
		// "<source file>#<index>", so sorting groups a document's chunks.
		chunkNames := make([]string, 0, len(e.vectors))
		for name := range e.vectors {
			chunkNames = append(chunkNames, name)
		}
		sort.Strings(chunkNames)

		// Determine column width from longest chunk key.
		maxNameLen := 0
		for _, n := range chunkNames {
			if len(n) > maxNameLen {
				maxNameLen = len(n)
			}
		}
		colWidth := maxNameLen + 2

		fmt.Printf("\n    %-*s  %5s  %7s  %s\n", colWidth, "Chunk", "Dims", "L2Norm", "Sample (first 4 values)")
		fmt.Printf("    %s  %s  %s  %s\n",
			strings.Repeat("─", colWidth),
			strings.Repeat("─", 5),
			strings.Repeat("─", 7),
			strings.Repeat("─", 40),
		)

		for _, name := range chunkNames {
			vec := e.vectors[name]
			dims := len(vec)
			norm := l2Norm(vec)

			// Print first 4 values for visual inspection.
			sample := formatSample(vec, 4)

			fmt.Printf("    %-*s  %5d  %7.4f  %s\n", colWidth, name, dims, norm, sample)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, data path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), dbPath)
}

// gobDecode deserializes a map[string][]float32 from gob-encoded bytes.
// Must match retrieval/vectorcache.go exactly.
func gobDecode(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// l2Norm computes the L2 norm of a float32 vector.
// Unit-normalized vectors will show ≈1.0000.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// formatSample returns the first n values of a vector as a bracketed string.
func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "forge_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
