// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Naming Templates
// =============================================================================

//go:embed naming_templates.yaml
var defaultNamingTemplatesYAML []byte

var configTracer = otel.Tracer("forge.config")

// MaxYAMLFileSize bounds the size of any YAML document this package will
// parse. Guards against a mis-pointed override file.
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Naming Template Types
// =============================================================================

// NamingTemplates defines the keyword-template fallback for transformation
// name generation.
//
// Description:
//
//	When auto discovery cannot get name suggestions from a language model,
//	the wizard matches the captured intent against these keyword families
//	and proposes the family's suggestions. If no family matches, Defaults
//	apply; LastResort is the literal name used when everything else is
//	empty.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type NamingTemplates struct {
	// MaxSuggestions caps how many names a single lookup returns.
	MaxSuggestions int `yaml:"max_suggestions"`

	// Families map intent keywords to ready-made name suggestions.
	Families []TemplateFamily `yaml:"families"`

	// Defaults are the suggestions used when no family matches.
	Defaults []string `yaml:"defaults"`

	// LastResort is the single literal name used when no suggestion
	// survives at all.
	LastResort string `yaml:"last_resort"`
}

// TemplateFamily maps intent keywords to name suggestions.
type TemplateFamily struct {
	// Keywords are matched as case-insensitive substrings of the intent.
	Keywords []string `yaml:"keywords"`

	// Suggestions are proposed when any keyword matches. Already in
	// sanitized form (uppercase, underscores).
	Suggestions []string `yaml:"suggestions"`
}

// DefaultMaxSuggestions caps name suggestions per lookup when the file does
// not say otherwise.
const DefaultMaxSuggestions = 3

// =============================================================================
// Singleton Naming Templates
// =============================================================================

var (
	namingMu              sync.RWMutex
	namingOnce            sync.Once
	cachedNamingTemplates *NamingTemplates
	namingLoadErr         error
)

// GetNamingTemplates returns the cached naming templates.
//
// Description:
//
//	Loads the embedded template rules on first call and caches for
//	subsequent calls. Uses sync.Once for thread-safe initialization.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*NamingTemplates - The loaded templates. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetNamingTemplates(ctx context.Context) (*NamingTemplates, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetNamingTemplates: ctx must not be nil")
	}

	namingMu.RLock()
	if cachedNamingTemplates != nil || namingLoadErr != nil {
		tpl, err := cachedNamingTemplates, namingLoadErr
		namingMu.RUnlock()
		return tpl, err
	}
	namingMu.RUnlock()

	namingMu.Lock()
	defer namingMu.Unlock()

	if cachedNamingTemplates != nil || namingLoadErr != nil {
		return cachedNamingTemplates, namingLoadErr
	}

	namingOnce.Do(func() {
		cachedNamingTemplates, namingLoadErr = LoadNamingTemplates(ctx, defaultNamingTemplatesYAML)
	})

	return cachedNamingTemplates, namingLoadErr
}

// ResetNamingTemplates resets the cached templates for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetNamingTemplates() {
	namingMu.Lock()
	defer namingMu.Unlock()
	cachedNamingTemplates = nil
	namingLoadErr = nil
	namingOnce = sync.Once{}
}

// LoadNamingTemplates loads and validates NamingTemplates from YAML bytes.
//
// Description:
//
//	Parses the YAML, applies defaults for missing fields, and validates
//	that every family has keywords and suggestions and that the fallback
//	chain is non-empty.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*NamingTemplates - The validated templates.
//	error - Non-nil if parsing or validation fails.
func LoadNamingTemplates(ctx context.Context, data []byte) (*NamingTemplates, error) {
	_, span := configTracer.Start(ctx, "config.LoadNamingTemplates")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadNamingTemplates: empty YAML data")
	}

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadNamingTemplates: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var tpl NamingTemplates
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("LoadNamingTemplates: parsing YAML: %w", err)
	}

	if tpl.MaxSuggestions <= 0 {
		tpl.MaxSuggestions = DefaultMaxSuggestions
	}

	if err := validateNamingTemplates(&tpl); err != nil {
		return nil, fmt.Errorf("LoadNamingTemplates: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("families", len(tpl.Families)),
		attribute.Int("defaults", len(tpl.Defaults)),
		attribute.Int("max_suggestions", tpl.MaxSuggestions),
	)

	slog.Info("naming templates loaded",
		slog.Int("families", len(tpl.Families)),
		slog.Int("defaults", len(tpl.Defaults)),
	)

	return &tpl, nil
}

// validateNamingTemplates checks the template rules for consistency.
func validateNamingTemplates(tpl *NamingTemplates) error {
	for i, fam := range tpl.Families {
		if len(fam.Keywords) == 0 {
			return fmt.Errorf("family[%d]: keywords must not be empty", i)
		}
		if len(fam.Suggestions) == 0 {
			return fmt.Errorf("family[%d] (%s): suggestions must not be empty", i, fam.Keywords[0])
		}
		for j, kw := range fam.Keywords {
			if kw == "" {
				return fmt.Errorf("family[%d]: keyword[%d] must not be empty", i, j)
			}
		}
	}

	if len(tpl.Defaults) == 0 {
		return fmt.Errorf("defaults must not be empty")
	}
	if tpl.LastResort == "" {
		return fmt.Errorf("last_resort must not be empty")
	}

	return nil
}
