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
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/retrieval"
	"github.com/AleutianAI/AleutianForge/services/forge/storage"
)

// SpecSaver persists a finalized specification. Implemented by
// storage.BuildStore.
type SpecSaver interface {
	Save(ctx context.Context, spec *storage.BuildSpecification) error
}

// BuildIndexer writes a finalized specification into the prior-builds
// corpus. Implemented by retrieval.BuildStore.
type BuildIndexer interface {
	IndexBuild(ctx context.Context, rec retrieval.BuildRecord) error
}

// Finalizer freezes a confirmed session into a BuildSpecification and
// persists it.
//
// Description:
//
//	Persistence is at-least-once "try and report": a save failure never
//	fails the turn, it comes back as a warning string for the caller to
//	append to the success message. Indexing into the prior-builds corpus
//	happens only after a successful save and its failure is log-only.
//
// Thread Safety: Safe for concurrent use; the caller holds the session
// lock.
type Finalizer struct {
	saver   SpecSaver
	indexer BuildIndexer
}

// NewFinalizer builds a finalizer. saver may be nil (specs are reported but
// not persisted, with a warning); indexer may be nil (no corpus indexing).
func NewFinalizer(saver SpecSaver, indexer BuildIndexer) *Finalizer {
	return &Finalizer{saver: saver, indexer: indexer}
}

// Finalize validates the collected fields, persists them, and returns the
// frozen specification.
//
// Outputs:
//   - *storage.BuildSpecification: The frozen spec, with ID, Status, and
//     CreatedAt assigned by the store. Non-nil whenever error is nil, even
//     if persistence failed.
//   - string: Partial-success warning ("" when the save succeeded).
//   - error: ErrAlreadyFinalized for a completed session; *ValidationError
//     when the collected fields cannot form a specification.
func (f *Finalizer) Finalize(ctx context.Context, sess *Session) (*storage.BuildSpecification, string, error) {
	if sess.Stage == StageComplete {
		return nil, "", ErrAlreadyFinalized
	}
	if len(sess.Collected.Databases) == 0 {
		return nil, "", &ValidationError{Field: "databases", Reason: "at least one database must be selected"}
	}
	if sess.Collected.SanitizedName == "" {
		return nil, "", &ValidationError{Field: "transformation_name", Reason: "a transformation name is required"}
	}

	collected := sess.Collected.clone()
	spec := &storage.BuildSpecification{
		Intent:                collected.Intent,
		Databases:             collected.Databases,
		Tables:                collected.Tables,
		TransformationName:    collected.TransformationName,
		SanitizedName:         collected.SanitizedName,
		ConnectionDetails:     collected.ConnectionDetails,
		UseExistingConnection: collected.UseExistingConnection,
	}

	warning := ""
	if f.saver == nil {
		warning = "persistence is not configured; the specification was not saved"
	} else if err := f.saver.Save(ctx, spec); err != nil {
		slog.Error("Failed to persist build specification",
			slog.String("session_id", sess.ID),
			slog.String("name", spec.SanitizedName),
			slog.String("error", err.Error()))
		warning = "failed to save to database: " + err.Error()
	}

	if warning == "" && f.indexer != nil {
		f.indexBuild(ctx, sess, spec)
	}

	return spec, warning, nil
}

// indexBuild mirrors the saved spec into the prior-builds corpus so future
// conversations can retrieve it as a similar build.
func (f *Finalizer) indexBuild(ctx context.Context, sess *Session, spec *storage.BuildSpecification) {
	tables := make([]string, 0, len(spec.Tables))
	for _, t := range spec.Tables {
		tables = append(tables, t.Schema+"."+t.Table)
	}
	transformationType := ""
	if sess.Extraction != nil {
		transformationType = sess.Extraction.TransformationType
	}

	rec := retrieval.BuildRecord{
		BuildID:            spec.ID,
		Intent:             spec.Intent,
		TransformationName: spec.SanitizedName,
		TransformationType: transformationType,
		Databases:          spec.Databases,
		Tables:             tables,
	}
	if err := f.indexer.IndexBuild(ctx, rec); err != nil {
		slog.Warn("Failed to index build into retrieval corpus",
			slog.String("build_id", spec.ID),
			slog.String("name", strings.TrimSpace(spec.SanitizedName)),
			slog.String("error", err.Error()))
	}
}
