// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore provides a durable TimelineStore backed by
// BadgerDB, for deployments where identity timelines must survive a
// process restart.
//
// Snapshots are stored as JSON under zero-padded version keys:
//
//	timeline/{escaped identity key}/{version:020d}
//
// so a prefix scan yields the retained window already ordered by
// version ascending. The identity key segment is path-escaped, keeping
// keys that contain the "/" delimiter out of each other's windows. Predicate invariants do not survive the trip (they
// are process-local capabilities); a rehydrated predicate evaluates as
// a hard violation rather than a pass.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// keyPrefix namespaces all timeline data inside the database.
const keyPrefix = "timeline/"

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Governance state is small and rarely written; keep this on in
	// production.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults (durable, sync writes).
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a durable TimelineStore over a BadgerDB instance.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// isolation, and the identity manager serializes per-key mutations.
type Store struct {
	db *badger.DB
}

// Open creates and opens a badger-backed store with the given
// configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory is a convenience function for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// snapshotKey builds the storage key for one snapshot. Zero-padding
// keeps lexicographic order equal to version order. The identity key
// segment is escaped so a key containing "/" cannot bleed into another
// key's prefix scan.
func snapshotKey(key string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, url.PathEscape(key), version))
}

// timelinePrefix is the scan prefix for one identity key.
func timelinePrefix(key string) []byte {
	return []byte(keyPrefix + url.PathEscape(key) + "/")
}

// LoadTimeline returns the retained window for key, ordered by version
// ascending. Unknown keys yield an empty slice.
func (s *Store) LoadTimeline(ctx context.Context, key string) ([]identity.Snapshot, error) {
	var snaps []identity.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = timelinePrefix(key)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var snap identity.Snapshot
				if err := json.Unmarshal(val, &snap); err != nil {
					return fmt.Errorf("decode snapshot %s: %w", it.Item().Key(), err)
				}
				snaps = append(snaps, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load timeline %s: %w", key, err)
	}
	return snaps, nil
}

// Append persists snap as the newest entry for key.
func (s *Store) Append(ctx context.Context, key string, snap identity.Snapshot) error {
	return s.put(ctx, key, snap)
}

// Replace installs snap as the authoritative record for its version.
// The key layout makes this a plain overwrite of the version's slot.
func (s *Store) Replace(ctx context.Context, key string, snap identity.Snapshot) error {
	return s.put(ctx, key, snap)
}

// put writes one snapshot under its version key.
func (s *Store) put(ctx context.Context, key string, snap identity.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s v%d: %w", key, snap.Version(), err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(key, snap.Version()), data)
	})
	if err != nil {
		return fmt.Errorf("write snapshot %s v%d: %w", key, snap.Version(), err)
	}
	return nil
}

// EvictOldest drops the count oldest retained entries for key.
func (s *Store) EvictOldest(ctx context.Context, key string, count int) error {
	if count <= 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = timelinePrefix(key)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		deleted := 0
		for it.Rewind(); it.Valid() && deleted < count; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().KeyCopy(nil)
			if err := txn.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict %d snapshots for %s: %w", count, key, err)
	}
	return nil
}

// Ensure Store implements the collaborator contract.
var _ identity.TimelineStore = (*Store)(nil)
