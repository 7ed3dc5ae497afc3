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
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Session is the whole conversation state for one session id.
//
// Description:
//
//	AvailableSchemas and DiscoveredCatalog are the catalog snapshot taken
//	once during auto discovery; patch commands re-select tables from this
//	snapshot instead of re-querying the warehouse mid-conversation.
//	Extraction keeps the last successful intent extraction so discovery
//	and the confirmation view can reuse its keywords.
//
// Thread Safety: Guarded by mu; ProcessTurn holds it for the whole turn so
// two turns for the same session never interleave.
type Session struct {
	ID        string
	Stage     Stage
	Collected Collected
	Messages  []ChatTurn

	Extraction        *Intent
	AvailableSchemas  []string
	DiscoveredCatalog map[string][]string

	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.Mutex
}

func newSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Stage:     StageInitialGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) appendTurn(role, content string) {
	s.Messages = append(s.Messages, ChatTurn{Role: role, Content: content, At: time.Now().UTC()})
}

// SessionRegistry holds live sessions with idle-TTL eviction.
//
// Description:
//
//	Backed by ttlcache; every lookup touches the entry so a session stays
//	alive as long as the user keeps talking. Eviction of an idle session is
//	indistinguishable from a reset: the next turn for that id starts fresh
//	at the greeting.
//
// Thread Safety: Safe for concurrent use. Per-session serialization is the
// session's own lock, not the registry's.
type SessionRegistry struct {
	cache *ttlcache.Cache[string, *Session]
}

// NewSessionRegistry creates a registry with the given idle TTL. Call Start
// on it (usually in a goroutine) to enable background eviction and Stop on
// shutdown.
func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Session](ttl),
		),
	}
}

// GetOrCreate returns the live session for id, creating it at the greeting
// stage if none exists. Touches the TTL either way.
func (r *SessionRegistry) GetOrCreate(id string) *Session {
	item, _ := r.cache.GetOrSet(id, newSession(id))
	return item.Value()
}

// Get returns the live session for id without creating one.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	item := r.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete discards all state for id. Idempotent: deleting an unknown id is a
// no-op.
func (r *SessionRegistry) Delete(id string) {
	r.cache.Delete(id)
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.Len()
}

// Start runs the background eviction loop until Stop is called.
func (r *SessionRegistry) Start() {
	r.cache.Start()
}

// Stop halts background eviction.
func (r *SessionRegistry) Stop() {
	r.cache.Stop()
}
