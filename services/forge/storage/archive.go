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
	"fmt"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// archiveTimeout bounds one archive upload. Archival is best-effort off the
// finalize path; a hung upload must not pin goroutines for long.
const archiveTimeout = 30 * time.Second

// Archiver mirrors finalized build specifications to a GCS bucket.
//
// Description:
//
//	Credentials come from Application Default Credentials; deployments
//	without a bucket simply do not construct an Archiver. Objects land
//	under builds/<id>.json so a bucket lifecycle rule can manage them.
//
// Thread Safety: Archiver is safe for concurrent use.
type Archiver struct {
	client *gcs.Client
	bucket string
}

// NewArchiver dials GCS for the given bucket. Extra client options exist
// for emulator-backed tests.
func NewArchiver(ctx context.Context, bucket string, opts ...option.ClientOption) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: archive bucket is required")
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: creating GCS client: %w", err)
	}

	slog.Info("Build archival enabled", slog.String("bucket", bucket))
	return &Archiver{client: client, bucket: bucket}, nil
}

// Archive uploads one serialized specification.
func (a *Archiver) Archive(ctx context.Context, buildID string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	name := "builds/" + buildID + ".json"
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	// Specs are a few KB; a single-request upload beats the resumable
	// handshake.
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: writing archive object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finishing archive object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (a *Archiver) Close() error {
	return a.client.Close()
}
