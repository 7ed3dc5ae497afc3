// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the forge service configuration from the environment
// and owns the supporting configuration surfaces: the memguard-backed secret
// manager and the embedded naming-template rules.
//
// Role-based LLM provider selection (FORGE_MAIN_MODEL and friends) lives in
// services/forge/providers; this package covers everything else the service
// reads at startup.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Service Configuration
// =============================================================================

// Config holds the environment-driven settings for the forge service.
//
// Description:
//
//	Populated by Load from FORGE_* environment variables with sensible
//	defaults for local development. Optional subsystems (retrieval,
//	analytics, archival) are enabled by setting their endpoint variables
//	and stay off otherwise.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Config struct {
	// DataDir is the root directory for embedded storage (build
	// specifications and the embedding cache).
	DataDir string `validate:"required"`

	// DocsDir is the documentation corpus directory watched for ingestion.
	// Empty disables document ingestion and the corpus watcher.
	DocsDir string

	// WeaviateURL is the host:port of the Weaviate instance backing the
	// retrieval stores. Empty disables retrieval entirely.
	WeaviateURL string

	// WeaviateScheme is the connection scheme for Weaviate.
	WeaviateScheme string `validate:"oneof=http https"`

	// EmbedProvider selects the embedding backend for retrieval.
	EmbedProvider string `validate:"oneof=ollama openai"`

	// EmbedModel is the embedding model name.
	EmbedModel string `validate:"required"`

	// SessionTTL is how long an idle wizard session is retained before the
	// registry evicts it.
	SessionTTL time.Duration `validate:"gt=0"`

	// ChatRPS caps outbound LLM calls per second for each role client.
	ChatRPS float64 `validate:"gt=0"`

	// ChatBurst is the rate limiter burst size for LLM calls.
	ChatBurst int `validate:"gte=1"`

	// SecretCacheTTL is how long resolved secrets stay cached before the
	// secret manager re-reads its backend. Zero disables caching.
	SecretCacheTTL time.Duration `validate:"gte=0"`

	// OTLPEndpoint is the OTLP gRPC collector address (host:port). Empty
	// disables trace export.
	OTLPEndpoint string

	// InfluxURL enables the turn-analytics sink when set.
	InfluxURL string

	// InfluxOrg is the InfluxDB organization for turn analytics.
	InfluxOrg string

	// InfluxBucket is the InfluxDB bucket for turn analytics.
	InfluxBucket string

	// GCSBucket enables archival of finalized specifications when set.
	GCSBucket string
}

// Defaults applied by Load when the corresponding variable is unset.
const (
	// DefaultDataDir is where embedded storage lives unless overridden.
	DefaultDataDir = "./forge-data"

	// DefaultEmbedModel is the embedding model used for retrieval.
	DefaultEmbedModel = "nomic-embed-text"

	// DefaultSessionTTL is how long idle wizard sessions are kept.
	DefaultSessionTTL = 2 * time.Hour

	// DefaultChatRPS is the per-role LLM call rate.
	DefaultChatRPS = 4.0

	// DefaultChatBurst is the per-role LLM rate limiter burst.
	DefaultChatBurst = 8

	// DefaultSecretCacheTTL is how long the secret manager caches values.
	DefaultSecretCacheTTL = 5 * time.Minute
)

// Load reads the forge service configuration from the environment.
//
// Description:
//
//	Reads FORGE_* variables, applies defaults for anything unset, and
//	validates the result. Parse failures on numeric or duration variables
//	are reported with the variable name so operators can fix the exact
//	setting.
//
// Outputs:
//
//	*Config - The validated configuration. Never nil on success.
//	error - Non-nil if a variable fails to parse or validation fails.
//
// Thread Safety: Safe for concurrent use (reads environment only).
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:        envOr("FORGE_DATA_DIR", DefaultDataDir),
		DocsDir:        os.Getenv("FORGE_DOCS_DIR"),
		WeaviateURL:    os.Getenv("FORGE_WEAVIATE_URL"),
		WeaviateScheme: envOr("FORGE_WEAVIATE_SCHEME", "http"),
		EmbedProvider:  envOr("FORGE_EMBED_PROVIDER", "ollama"),
		EmbedModel:     envOr("FORGE_EMBED_MODEL", DefaultEmbedModel),
		OTLPEndpoint:   os.Getenv("FORGE_OTLP_ENDPOINT"),
		InfluxURL:      os.Getenv("FORGE_INFLUX_URL"),
		InfluxOrg:      envOr("FORGE_INFLUX_ORG", "aleutian"),
		InfluxBucket:   envOr("FORGE_INFLUX_BUCKET", "forge_turns"),
		GCSBucket:      os.Getenv("FORGE_GCS_BUCKET"),
	}

	var err error
	if cfg.SessionTTL, err = envDuration("FORGE_SESSION_TTL", DefaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.SecretCacheTTL, err = envDuration("FORGE_SECRET_CACHE_TTL", DefaultSecretCacheTTL); err != nil {
		return nil, err
	}
	if cfg.ChatRPS, err = envFloat("FORGE_CHAT_RPS", DefaultChatRPS); err != nil {
		return nil, err
	}
	if cfg.ChatBurst, err = envInt("FORGE_CHAT_BURST", DefaultChatBurst); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	slog.Info("service config loaded",
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("retrieval_enabled", cfg.WeaviateURL != ""),
		slog.Bool("docs_ingest_enabled", cfg.DocsDir != ""),
		slog.Bool("analytics_enabled", cfg.InfluxURL != ""),
		slog.Bool("archive_enabled", cfg.GCSBucket != ""),
		slog.Duration("session_ttl", cfg.SessionTTL),
	)

	return cfg, nil
}

// validateConfig runs struct validation and rewrites the first failure into
// an operator-readable message.
func validateConfig(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: field %s failed %q validation (value %v)",
				f.Field(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: validation: %w", err)
	}
	return nil
}

// =============================================================================
// Environment Helpers
// =============================================================================

// envOr returns the variable's value, or fallback when unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration parses a duration variable (e.g. "2h", "90s").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: parsing %s: %w", key, err)
	}
	return d, nil
}

// envFloat parses a float variable.
func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parsing %s: %w", key, err)
	}
	return f, nil
}

// envInt parses an integer variable.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parsing %s: %w", key, err)
	}
	return n, nil
}
