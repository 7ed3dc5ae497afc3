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
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
)

// Well-known secret keys. Secrets are never collected through the chat
// surface; they enter the process through the environment (or whatever
// backend fronts it) and stay sealed in memory between uses.
const (
	// SecretWarehouseDSN is the Postgres connection string for the
	// warehouse catalog.
	SecretWarehouseDSN = "FORGE_WAREHOUSE_DSN"

	// SecretInfluxToken authenticates the turn-analytics sink.
	SecretInfluxToken = "FORGE_INFLUX_TOKEN"
)

// ErrSecretNotFound is returned when a required secret is not set or empty.
var ErrSecretNotFound = errors.New("secret not found")

// SecretBackend is the interface for retrieving secrets.
//
// Thread Safety: Implementations must be safe for concurrent use.
type SecretBackend interface {
	// GetSecret retrieves a secret by key.
	//
	// Inputs:
	//   - ctx: Context for cancellation.
	//   - key: The secret key name.
	//
	// Outputs:
	//   - *memguard.LockedBuffer: The secret material. The caller MUST call
	//     Destroy on it as soon as the value has been used.
	//   - error: Non-nil if the secret cannot be retrieved (including
	//     ErrSecretNotFound).
	GetSecret(ctx context.Context, key string) (*memguard.LockedBuffer, error)
}

// EnvBackend reads secrets from environment variables with TTL-based caching.
//
// Description:
//
//	Reads secrets from os.Getenv and caches them for the configured TTL.
//	Cached values are sealed in memguard enclaves (encrypted at rest in
//	process memory) rather than held as plain strings, so a heap dump
//	between uses does not expose credentials. The TTL allows secret
//	rotation without a restart.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex.
type EnvBackend struct {
	mu    sync.RWMutex
	cache map[string]cachedSecret
	ttl   time.Duration
}

type cachedSecret struct {
	enclave   *memguard.Enclave // nil means the variable was unset or empty
	fetchedAt int64             // Unix milliseconds UTC
}

// NewEnvBackend creates a secret backend that reads from environment variables.
//
// Inputs:
//   - ttl: How long to cache secrets before re-reading from the environment.
//     Use 0 for no caching (re-read every time).
//
// Outputs:
//   - *EnvBackend: Configured backend.
func NewEnvBackend(ttl time.Duration) *EnvBackend {
	return &EnvBackend{
		cache: make(map[string]cachedSecret),
		ttl:   ttl,
	}
}

// GetSecret retrieves a secret from the environment, using the cache if fresh.
//
// Inputs:
//   - ctx: Context for cancellation (environment reads are fast, but respected).
//   - key: The environment variable name.
//
// Outputs:
//   - *memguard.LockedBuffer: The secret material. Caller must Destroy it.
//   - error: ErrSecretNotFound if the environment variable is not set or empty.
func (e *EnvBackend) GetSecret(ctx context.Context, key string) (*memguard.LockedBuffer, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("retrieving secret %q: %w", key, ctx.Err())
	}

	now := time.Now().UnixMilli()

	// Check cache first
	if e.ttl > 0 {
		e.mu.RLock()
		if cached, ok := e.cache[key]; ok {
			age := time.Duration(now-cached.fetchedAt) * time.Millisecond
			if age < e.ttl {
				enclave := cached.enclave
				e.mu.RUnlock()
				if enclave == nil {
					return nil, fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
				}
				buf, err := enclave.Open()
				if err != nil {
					return nil, fmt.Errorf("opening cached secret %q: %w", key, err)
				}
				return buf, nil
			}
		}
		e.mu.RUnlock()
	}

	// Read from environment and seal. NewEnclave wipes the source slice,
	// which is our own copy of the value.
	value := os.Getenv(key)
	var enclave *memguard.Enclave
	if value != "" {
		enclave = memguard.NewEnclave([]byte(value))
	}

	// Update cache (absence is cached too, so a missing variable does not
	// trigger a syscall per request)
	if e.ttl > 0 {
		e.mu.Lock()
		e.cache[key] = cachedSecret{enclave: enclave, fetchedAt: now}
		e.mu.Unlock()
	}

	if enclave == nil {
		return nil, fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening secret %q: %w", key, err)
	}
	return buf, nil
}

// SecretManager selects the appropriate secret backend based on configuration.
//
// Description:
//
//	Currently supports only the "env" backend (environment variables).
//	Fronts the warehouse DSN, provider API keys, and the analytics token
//	so no credential is ever accepted through the conversation itself.
//
// Thread Safety: Safe for concurrent use (delegates to thread-safe backend).
type SecretManager struct {
	backend SecretBackend
}

// NewSecretManager creates a secret manager with the appropriate backend.
//
// Inputs:
//   - cacheTTL: Cache TTL for the environment backend.
//
// Outputs:
//   - *SecretManager: Configured secret manager.
func NewSecretManager(cacheTTL time.Duration) *SecretManager {
	return &SecretManager{
		backend: NewEnvBackend(cacheTTL),
	}
}

// GetSecret retrieves a secret from the configured backend.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - key: The secret key name.
//
// Outputs:
//   - *memguard.LockedBuffer: The secret material. Caller must Destroy it.
//   - error: Non-nil if the secret cannot be retrieved.
func (s *SecretManager) GetSecret(ctx context.Context, key string) (*memguard.LockedBuffer, error) {
	return s.backend.GetSecret(ctx, key)
}

// HasSecret reports whether a secret resolves without exposing its value.
//
// Description:
//
//	Used by status reporting to say "configured" or "missing" without
//	holding the secret open longer than the check itself.
func (s *SecretManager) HasSecret(ctx context.Context, key string) bool {
	buf, err := s.backend.GetSecret(ctx, key)
	if err != nil {
		return false
	}
	buf.Destroy()
	return true
}
