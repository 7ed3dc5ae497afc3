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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianForge/services/forge/catalog"
)

// buildKeyPrefix namespaces build specifications inside the shared BadgerDB.
const buildKeyPrefix = "forge/build/v1/"

// StatusCompleted is the terminal status every finalized spec carries.
const StatusCompleted = "completed"

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// ErrBuildNotFound is returned by Get for an unknown build ID.
var ErrBuildNotFound = errors.New("storage: build not found")

var buildSavesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "forge",
		Subsystem: "storage",
		Name:      "build_saves_total",
		Help:      "Build specification saves by outcome.",
	},
	[]string{"outcome"},
)

// BuildSpecification is the immutable artifact a finalized conversation
// produces.
//
// Description:
//
//	ConnectionDetails carries only non-secret fields (host, port, database,
//	user); credentials never enter conversation state, so they can never
//	land here. ID and CreatedAt are assigned at persistence time.
type BuildSpecification struct {
	ID                    string             `json:"id"`
	Intent                string             `json:"intent"`
	Databases             []string           `json:"databases"`
	Tables                []catalog.TableRef `json:"tables"`
	TransformationName    string             `json:"transformation_name"`
	SanitizedName         string             `json:"sanitized_name"`
	ConnectionDetails     map[string]string  `json:"connection_details,omitempty"`
	UseExistingConnection bool               `json:"use_existing_connection"`
	Status                string             `json:"status"`
	CreatedAt             time.Time          `json:"created_at"`
}

// BuildStore persists build specifications.
//
// Thread Safety: BuildStore is safe for concurrent use.
type BuildStore struct {
	db       *badger.DB
	archiver *Archiver
}

// NewBuildStore wraps the shared BadgerDB handle. archiver may be nil;
// archival is then skipped entirely.
func NewBuildStore(db *badger.DB, archiver *Archiver) *BuildStore {
	return &BuildStore{db: db, archiver: archiver}
}

// Save assigns identity to a specification and persists it.
//
// Description:
//
//	The ID (when absent), the completed status and CreatedAt are stamped
//	here so that a specification that never reached persistence never
//	looks persisted. After a successful local write the record is mirrored
//	to the archive bucket best-effort; archive failures are logged, not
//	returned.
//
// Outputs:
//   - error: Non-nil when validation fails or the local write fails.
func (s *BuildStore) Save(ctx context.Context, spec *BuildSpecification) error {
	if spec == nil {
		return fmt.Errorf("storage: nil build specification")
	}
	if spec.SanitizedName == "" {
		return fmt.Errorf("storage: build specification has no sanitized name")
	}
	if len(spec.Databases) == 0 {
		return fmt.Errorf("storage: build specification has no databases")
	}

	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Status == "" {
		spec.Status = StatusCompleted
	}
	spec.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(spec)
	if err != nil {
		buildSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("storage: encoding build %s: %w", spec.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(buildKeyPrefix+spec.ID), data)
	})
	if err != nil {
		buildSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("storage: saving build %s: %w", spec.ID, err)
	}
	buildSavesTotal.WithLabelValues("ok").Inc()

	slog.Info("Saved build specification",
		slog.String("build_id", spec.ID),
		slog.String("name", spec.SanitizedName),
	)

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, spec.ID, data); err != nil {
			slog.Warn("Build archive upload failed",
				slog.String("build_id", spec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Get returns one build specification by ID.
func (s *BuildStore) Get(id string) (*BuildSpecification, error) {
	var spec BuildSpecification

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(buildKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &spec)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
		}
		return nil, fmt.Errorf("storage: reading build %s: %w", id, err)
	}
	return &spec, nil
}

// List returns up to limit specifications, newest first. limit <= 0 selects
// DefaultListLimit.
func (s *BuildStore) List(limit int) ([]*BuildSpecification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var specs []*BuildSpecification
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(buildKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var spec BuildSpecification
				if err := json.Unmarshal(val, &spec); err != nil {
					return err
				}
				specs = append(specs, &spec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: listing builds: %w", err)
	}

	sort.Slice(specs, func(i, j int) bool {
		return specs[i].CreatedAt.After(specs[j].CreatedAt)
	})
	if len(specs) > limit {
		specs = specs[:limit]
	}
	return specs, nil
}
