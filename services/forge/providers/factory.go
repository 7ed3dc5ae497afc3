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

	"github.com/AleutianAI/AleutianForge/services/llm"
)

// ProviderFactory creates the right LLM adapters based on provider configuration.
//
// Description:
//
//	ProviderFactory is the central creation point for all ChatClient
//	adapters. Each wizard role (Main, Ranker, Namer) gets its own client,
//	pinned to the model and endpoint in its ProviderConfig.
//
// Thread Safety: ProviderFactory is safe for concurrent use after construction.
type ProviderFactory struct {
	logger *slog.Logger
}

// NewProviderFactory creates a new ProviderFactory.
//
// Outputs:
//   - *ProviderFactory: Configured factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{
		logger: slog.Default(),
	}
}

// CreateChatClient creates a ChatClient adapter for the given provider config.
//
// Description:
//
//	Creates the appropriate ChatClient adapter based on the provider type.
//	Cloud providers require an API key in the config; Ollama requires a
//	base URL and model.
//
// Inputs:
//   - cfg: Provider configuration specifying provider type and model.
//
// Outputs:
//   - ChatClient: The chat adapter for the specified provider.
//   - error: Non-nil if the provider is unsupported or construction fails.
//
// Example:
//
//	client, err := factory.CreateChatClient(ProviderConfig{
//	    Provider: "anthropic",
//	    Model:    "claude-3-5-sonnet-20241022",
//	    APIKey:   "sk-ant-...",
//	})
func (f *ProviderFactory) CreateChatClient(cfg ProviderConfig) (ChatClient, error) {
	switch cfg.Provider {
	case ProviderOllama:
		client, err := llm.NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.KeepAlive, cfg.NumCtx)
		if err != nil {
			return nil, fmt.Errorf("creating Ollama client: %w", err)
		}
		return NewOllamaChatAdapter(client), nil

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY required for Anthropic provider")
		}
		return NewAnthropicChatAdapter(llm.NewAnthropicClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)), nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY required for OpenAI provider")
		}
		return NewOpenAIChatAdapter(llm.NewOpenAIClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)), nil

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY required for Gemini provider")
		}
		return NewGeminiChatAdapter(llm.NewGeminiClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", cfg.Provider, ValidProviders)
	}
}

// CreateRoleClients creates one ChatClient per wizard role.
//
// Description:
//
//	Convenience wrapper over CreateChatClient for the full RoleConfig.
//	Fails fast on the first role that cannot be constructed; a partially
//	configured wizard is worse than a clean startup error.
//
// Inputs:
//   - roles: Per-role provider configurations. Must not be nil.
//
// Outputs:
//   - main, ranker, namer: One ChatClient per role.
//   - error: Non-nil if any role fails to construct.
func (f *ProviderFactory) CreateRoleClients(roles *RoleConfig) (main, ranker, namer ChatClient, err error) {
	if roles == nil {
		return nil, nil, nil, fmt.Errorf("role config is nil")
	}

	main, err = f.CreateChatClient(roles.Main)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("main role: %w", err)
	}
	ranker, err = f.CreateChatClient(roles.Ranker)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ranker role: %w", err)
	}
	namer, err = f.CreateChatClient(roles.Namer)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("namer role: %w", err)
	}

	f.logger.Info("Created wizard LLM clients",
		slog.String("main_provider", roles.Main.Provider),
		slog.String("main_model", roles.Main.Model),
		slog.String("ranker_provider", roles.Ranker.Provider),
		slog.String("namer_provider", roles.Namer.Provider),
	)
	return main, ranker, namer, nil
}
