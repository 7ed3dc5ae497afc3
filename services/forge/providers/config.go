// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider constants for supported LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Role constants for the LLM roles in the forge wizard.
const (
	// RoleMain drives intent extraction and conversational replies.
	RoleMain = "MAIN"

	// RoleRanker validates heuristic catalog matches.
	RoleRanker = "RANKER"

	// RoleNamer proposes transformation names.
	RoleNamer = "NAMER"
)

// ProviderConfig holds the configuration for a single LLM provider instance.
//
// Description:
//
//	Specifies which provider to use, which model, and any provider-specific
//	settings. Used by ProviderFactory to create the right adapter.
type ProviderConfig struct {
	// Provider is the backend to use: "ollama", "anthropic", "openai", "gemini".
	Provider string

	// Model is the provider-specific model identifier.
	// Examples: "granite4:micro-h" (Ollama), "claude-3-5-sonnet-20241022" (Anthropic).
	Model string

	// BaseURL is an optional endpoint override.
	// For Ollama: defaults to OLLAMA_BASE_URL or http://localhost:11434.
	// For cloud providers: uses the provider's default API URL.
	BaseURL string

	// APIKey is the authentication key for cloud providers.
	// Loaded from environment: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY.
	APIKey string

	// KeepAlive controls model VRAM lifetime (Ollama-specific).
	KeepAlive string

	// NumCtx sets the context window size (Ollama-specific).
	NumCtx int
}

// RoleConfig holds per-role provider configurations.
//
// Description:
//
//	Contains the provider configuration for each of the three LLM roles
//	in the forge wizard: Main (conversation and intent extraction), Ranker
//	(catalog match validation), and Namer (name suggestions).
type RoleConfig struct {
	Main   ProviderConfig
	Ranker ProviderConfig
	Namer  ProviderConfig
}

// ValidProviders contains the set of valid provider names.
var ValidProviders = []string{ProviderOllama, ProviderAnthropic, ProviderOpenAI, ProviderGemini}

// isValidProvider checks if a provider name is valid.
func isValidProvider(provider string) bool {
	for _, p := range ValidProviders {
		if provider == p {
			return true
		}
	}
	return false
}

// ResolveOllamaURL resolves the Ollama server URL from environment variables.
//
// Description:
//
//	Resolution order:
//	  1. OLLAMA_BASE_URL (preferred)
//	  2. OLLAMA_URL (deprecated, emits warning)
//	  3. http://localhost:11434 (default)
//
// Outputs:
//   - string: The resolved Ollama URL.
func ResolveOllamaURL() string {
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		return url
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		slog.Warn("OLLAMA_URL is deprecated, use OLLAMA_BASE_URL instead",
			slog.String("ollama_url", url))
		return url
	}
	return "http://localhost:11434"
}

// InferProvider infers the provider from a model name prefix.
//
// Description:
//
//	Maps known model name prefixes to provider names:
//	  - "claude-*" -> "anthropic"
//	  - "gpt-*" -> "openai"
//	  - "gemini-*" -> "gemini"
//	  - anything else -> "" (unknown)
//
//	This is a utility function for display/inference purposes.
//	It does not auto-apply; the default Ollama fallback is unchanged.
//
// Inputs:
//   - model: The model name to infer from.
//
// Outputs:
//   - string: The inferred provider name, or empty string if unknown.
func InferProvider(model string) string {
	if strings.HasPrefix(model, "claude-") {
		return ProviderAnthropic
	}
	if strings.HasPrefix(model, "gpt-") {
		return ProviderOpenAI
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}
	return ""
}

// LoadRoleConfig reads per-role provider configuration from environment variables.
//
// Description:
//
//	Reads FORGE_<ROLE>_PROVIDER and FORGE_<ROLE>_MODEL for each role.
//	The MAIN role must resolve to a usable configuration; RANKER and NAMER
//	inherit MAIN's provider and model when their own variables are unset,
//	so a single-model deployment needs only FORGE_MAIN_* set.
//
// Resolution order per role:
//  1. FORGE_<ROLE>_PROVIDER -> explicit provider
//  2. Fallback: MAIN's provider (for RANKER/NAMER), else "ollama"
//  3. FORGE_<ROLE>_MODEL -> explicit model
//  4. Fallback: MAIN's model (for RANKER/NAMER), else OLLAMA_MODEL
//
// Outputs:
//   - *RoleConfig: Per-role configurations.
//   - error: Non-nil if an invalid provider is specified or the main role
//     has no model.
//
// Example:
//
//	cfg, err := LoadRoleConfig()
func LoadRoleConfig() (*RoleConfig, error) {
	mainCfg, err := loadSingleRoleConfig(RoleMain, ProviderOllama, os.Getenv("OLLAMA_MODEL"))
	if err != nil {
		return nil, fmt.Errorf("loading main role config: %w", err)
	}
	if mainCfg.Model == "" {
		return nil, fmt.Errorf("no model for main role (set FORGE_MAIN_MODEL or OLLAMA_MODEL)")
	}

	rankerCfg, err := loadSingleRoleConfig(RoleRanker, mainCfg.Provider, mainCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("loading ranker role config: %w", err)
	}

	namerCfg, err := loadSingleRoleConfig(RoleNamer, mainCfg.Provider, mainCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("loading namer role config: %w", err)
	}

	return &RoleConfig{
		Main:   mainCfg,
		Ranker: rankerCfg,
		Namer:  namerCfg,
	}, nil
}

// loadSingleRoleConfig loads configuration for a single role.
func loadSingleRoleConfig(role, providerFallback, modelFallback string) (ProviderConfig, error) {
	providerEnv := fmt.Sprintf("FORGE_%s_PROVIDER", role)
	modelEnv := fmt.Sprintf("FORGE_%s_MODEL", role)

	provider := os.Getenv(providerEnv)
	if provider == "" {
		provider = providerFallback
	}

	if !isValidProvider(provider) {
		return ProviderConfig{}, fmt.Errorf("invalid provider %q for %s (valid: %v)", provider, providerEnv, ValidProviders)
	}

	model := os.Getenv(modelEnv)
	if model == "" {
		model = modelFallback
	}

	cfg := ProviderConfig{
		Provider: provider,
		Model:    model,
	}

	// Load provider-specific settings
	switch provider {
	case ProviderOllama:
		cfg.BaseURL = ResolveOllamaURL()
		cfg.KeepAlive = os.Getenv("OLLAMA_KEEP_ALIVE")
		if numCtx := os.Getenv("OLLAMA_NUM_CTX"); numCtx != "" {
			n, err := strconv.Atoi(numCtx)
			if err != nil {
				return ProviderConfig{}, fmt.Errorf("invalid OLLAMA_NUM_CTX %q: %w", numCtx, err)
			}
			cfg.NumCtx = n
		}
	case ProviderAnthropic:
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	// Validate: if provider is explicitly set but model is empty and no fallback was provided,
	// return a descriptive error to help the operator diagnose misconfiguration.
	explicitProvider := os.Getenv(providerEnv)
	if explicitProvider != "" && cfg.Model == "" {
		return ProviderConfig{}, fmt.Errorf(
			"%s is %q but no model specified (set %s)",
			providerEnv, provider, modelEnv,
		)
	}

	return cfg, nil
}
