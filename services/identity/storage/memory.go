// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides TimelineStore implementations for the
// identity manager. MemoryStore here is the process-local reference
// implementation; badgerstore holds the durable one.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// MemoryStore is a map-backed TimelineStore. It is the default
// collaborator for deployments without a data directory, and the
// reference implementation the badgerstore tests are checked against.
//
// Safe for concurrent use; the manager already serializes per-key
// mutations, so a single RWMutex is enough here.
type MemoryStore struct {
	mu        sync.RWMutex
	timelines map[string][]identity.Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		timelines: make(map[string][]identity.Snapshot),
	}
}

// LoadTimeline returns a copy of the retained window for key, ordered
// by version ascending. Unknown keys yield an empty slice, not an error.
func (s *MemoryStore) LoadTimeline(ctx context.Context, key string) ([]identity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.timelines[key]
	out := make([]identity.Snapshot, len(snaps))
	copy(out, snaps)
	return out, nil
}

// Append persists snap as the new newest entry for key.
func (s *MemoryStore) Append(ctx context.Context, key string, snap identity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[key] = append(s.timelines[key], snap)
	return nil
}

// Replace installs snap as the authoritative record for the version it
// carries. The entry's position never moves.
func (s *MemoryStore) Replace(ctx context.Context, key string, snap identity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.timelines[key]
	for i := range snaps {
		if snaps[i].Version() == snap.Version() {
			snaps[i] = snap
			return nil
		}
	}
	return fmt.Errorf("no stored snapshot %s v%d to replace", key, snap.Version())
}

// EvictOldest drops the count oldest retained entries for key.
func (s *MemoryStore) EvictOldest(ctx context.Context, key string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.timelines[key]
	if count >= len(snaps) {
		delete(s.timelines, key)
		return nil
	}
	s.timelines[key] = append([]identity.Snapshot(nil), snaps[count:]...)
	return nil
}

// Ensure MemoryStore implements the collaborator contract.
var _ identity.TimelineStore = (*MemoryStore)(nil)
