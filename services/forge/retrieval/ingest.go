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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200

	// maxDocFileSize bounds a single documentation file read. Larger files
	// are skipped with a warning rather than embedded piecemeal.
	maxDocFileSize = 4 << 20

	// watchDebounce collapses the event bursts editors emit on save into
	// one re-ingestion per file.
	watchDebounce = 500 * time.Millisecond
)

// Ingestor feeds the documentation corpus from a local directory.
//
// Description:
//
//	Walks the docs directory for markdown and plain-text files, splits
//	them into overlapping chunks, embeds each corpus once (with a BadgerDB
//	cache so unchanged files cost nothing on restart) and upserts the
//	chunks into the ForgeDocument class. Watch keeps the corpus current as
//	files change on disk.
//
// Thread Safety: Ingestor is safe for concurrent use, though Watch is
// expected to run on a single goroutine.
type Ingestor struct {
	docs     *DocumentStore
	embedder Embedder
	cache    *VectorCache
	dir      string
	splitter textsplitter.RecursiveCharacter
}

// IngestReport summarizes one directory pass.
type IngestReport struct {
	Processed int
	Failed    int
	Chunks    int
}

// NewIngestor builds an ingestor over a docs directory. cache may be nil;
// every pass then re-embeds from scratch.
func NewIngestor(docs *DocumentStore, embedder Embedder, cache *VectorCache, dir string) *Ingestor {
	return &Ingestor{
		docs:     docs,
		embedder: embedder,
		cache:    cache,
		dir:      dir,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// categoryFor maps a file's path to its document category by folder name.
func categoryFor(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, CategoryDocumentation):
		return CategoryDocumentation
	case strings.Contains(lower, CategorySchemas):
		return CategorySchemas
	case strings.Contains(lower, CategoryExamples):
		return CategoryExamples
	case strings.Contains(lower, CategoryRules):
		return CategoryRules
	default:
		return CategoryGeneral
	}
}

func isDocFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	default:
		return false
	}
}

// IngestFile chunks, embeds and indexes one document.
//
// Outputs:
//   - int: Number of chunks indexed.
//   - error: Non-nil when the file cannot be read, embedded or indexed.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("retrieval: stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() > maxDocFileSize {
		return 0, fmt.Errorf("retrieval: document %s is %d bytes, limit %d",
			filepath.Base(path), info.Size(), maxDocFileSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("retrieval: reading %s: %w", filepath.Base(path), err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return 0, fmt.Errorf("retrieval: document %s is empty", filepath.Base(path))
	}

	texts, err := i.splitter.SplitText(content)
	if err != nil {
		return 0, fmt.Errorf("retrieval: chunking %s: %w", filepath.Base(path), err)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	source := filepath.Base(path)
	category := categoryFor(path)

	chunks := make([]DocumentChunk, len(texts))
	for idx, text := range texts {
		chunks[idx] = DocumentChunk{
			Source:   source,
			Category: category,
			Index:    idx,
			Content:  text,
		}
	}

	vectors, err := i.embedCorpus(ctx, source, texts)
	if err != nil {
		return 0, err
	}

	if err := i.docs.IndexChunks(ctx, chunks, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// embedCorpus returns one vector per text, consulting the corpus cache
// first. A cache entry is only used when it covers every chunk.
func (i *Ingestor) embedCorpus(ctx context.Context, source string, texts []string) ([][]float32, error) {
	hash := CorpusHash(i.embedder.Model(), texts)

	if i.cache != nil {
		if cached, ok := i.cache.Get(hash); ok {
			vectors := make([][]float32, len(texts))
			complete := true
			for idx := range texts {
				v, ok := cached[chunkKey(source, idx)]
				if !ok {
					complete = false
					break
				}
				vectors[idx] = v
			}
			if complete {
				slog.Debug("Corpus embeddings served from cache",
					slog.String("source", source),
					slog.Int("chunks", len(texts)),
				)
				return vectors, nil
			}
		}
	}

	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding %s: %w", source, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("retrieval: embedder returned %d vectors for %d chunks of %s",
			len(vectors), len(texts), source)
	}

	if i.cache != nil {
		entry := make(map[string][]float32, len(vectors))
		for idx, v := range vectors {
			entry[chunkKey(source, idx)] = v
		}
		if err := i.cache.Put(hash, entry); err != nil {
			slog.Warn("Failed to cache corpus embeddings",
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
		}
	}
	return vectors, nil
}

// IngestDir runs one full pass over the docs directory.
func (i *Ingestor) IngestDir(ctx context.Context) (*IngestReport, error) {
	if i.dir == "" {
		return nil, fmt.Errorf("retrieval: no docs directory configured")
	}
	if _, err := os.Stat(i.dir); err != nil {
		return nil, fmt.Errorf("retrieval: docs directory %s: %w", i.dir, err)
	}

	if err := i.docs.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(i.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isDocFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: walking docs directory: %w", err)
	}

	slog.Info("Starting document ingestion",
		slog.String("dir", i.dir),
		slog.Int("files", len(paths)),
	)

	report := &IngestReport{}
	for _, path := range paths {
		n, err := i.IngestFile(ctx, path)
		if err != nil {
			report.Failed++
			slog.Warn("Document ingestion failed",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Processed++
		report.Chunks += n
	}

	slog.Info("Document ingestion complete",
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("chunks", report.Chunks),
	)
	return report, nil
}

// Watch re-ingests documents as they change on disk until ctx is done.
//
// Description:
//
//	Watches the docs directory and every subdirectory present at start;
//	directories created while watching are added as they appear. Event
//	bursts are debounced so one file save costs one re-ingestion.
func (i *Ingestor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("retrieval: creating docs watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(i.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("retrieval: watching docs directory: %w", err)
	}

	slog.Info("Watching docs directory", slog.String("dir", i.dir))

	dirty := make(map[string]struct{})
	var flush *time.Timer
	var flushC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						slog.Warn("Failed to watch new directory",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()),
						)
					}
					continue
				}
			}
			if !isDocFile(event.Name) {
				continue
			}
			dirty[event.Name] = struct{}{}
			if flush == nil {
				flush = time.NewTimer(watchDebounce)
				flushC = flush.C
			} else {
				flush.Reset(watchDebounce)
			}

		case <-flushC:
			for path := range dirty {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				n, err := i.IngestFile(ctx, path)
				if err != nil {
					slog.Warn("Document re-ingestion failed",
						slog.String("file", filepath.Base(path)),
						slog.String("error", err.Error()),
					)
					continue
				}
				slog.Info("Re-ingested changed document",
					slog.String("file", filepath.Base(path)),
					slog.Int("chunks", n),
				)
			}
			dirty = make(map[string]struct{})
			flush = nil
			flushC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Docs watcher error", slog.String("error", err.Error()))
		}
	}
}
