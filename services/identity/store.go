// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import "context"

// TimelineStore is the persistence collaborator consumed by the
// manager. The core defines only this contract; implementations may be
// in-memory (storage.MemoryStore) or durable (badgerstore.Store).
//
// The manager serializes all calls for a single key, so implementations
// do not need per-key ordering of their own, only safety under
// concurrent calls for different keys.
//
// # Semantics
//
//   - LoadTimeline returns the retained window for key, ordered by
//     version ascending, or an empty slice for an unknown key
//   - Append persists snap as the new newest entry for key
//   - Replace persists snap as the authoritative record for the version
//     it carries; the entry's position and version never move
//   - EvictOldest drops the count oldest retained entries for key;
//     version numbers of dropped entries are never reused
type TimelineStore interface {
	LoadTimeline(ctx context.Context, key string) ([]Snapshot, error)
	Append(ctx context.Context, key string, snap Snapshot) error
	Replace(ctx context.Context, key string, snap Snapshot) error
	EvictOldest(ctx context.Context, key string, count int) error
}
