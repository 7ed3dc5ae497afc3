// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists finalized build specifications in BadgerDB and
// optionally mirrors each one to a GCS bucket for archival.
//
// One BadgerDB instance backs the whole process; the retrieval layer's
// embedding cache shares it under a different key prefix. The lifecycle
// owner opens the database once and injects the handle.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// gcDiscardRatio is the value-log rewrite threshold badger recommends for
// online garbage collection.
const gcDiscardRatio = 0.5

// Open opens (creating if needed) the process-wide BadgerDB under dir.
func Open(dir string) (*badger.DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating data directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger at %s: %w", dir, err)
	}

	slog.Info("Opened embedded store", slog.String("dir", dir))
	return db, nil
}

// MaintainGC runs badger value-log garbage collection on a fixed interval
// until ctx is done. Run it on its own goroutine next to the open handle.
func MaintainGC(ctx context.Context, db *badger.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Each successful pass may free another log file; loop until
			// badger reports nothing left to rewrite.
			for {
				if err := db.RunValueLogGC(gcDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}
