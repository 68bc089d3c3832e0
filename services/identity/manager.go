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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer for manager operations.
var tracer = otel.Tracer("services/identity")

// =============================================================================
// Configuration
// =============================================================================

// ApprovalPolicy selects which statuses LatestApproved accepts. It is
// explicit configuration rather than an inferred default: what counts
// as "approved" is a governance decision, not an implementation detail.
type ApprovalPolicy string

const (
	// RequireUserApproved accepts only USER_APPROVED snapshots.
	RequireUserApproved ApprovalPolicy = "require_user_approved"

	// AcceptReviewed accepts REVIEWED as well as USER_APPROVED.
	AcceptReviewed ApprovalPolicy = "accept_reviewed"
)

// ManagerConfig configures an IdentityManager.
type ManagerConfig struct {
	// Store is the persistence collaborator. Optional; when nil the
	// manager keeps timelines in memory only.
	Store TimelineStore

	// MaxRetained is the rotation limit: the maximum number of snapshots
	// retained per key. 0 disables rotation (retain all). Eviction runs
	// after append and never removes the newest entry.
	MaxRetained int

	// Policy selects the LatestApproved acceptance threshold.
	// Default: RequireUserApproved.
	Policy ApprovalPolicy

	// ValidateOnCommit runs the invariant engine against the reflection
	// text before each commit. Violations are logged, not blocking: the
	// governance decision stays with the caller.
	ValidateOnCommit bool

	// Engine is required when ValidateOnCommit is set.
	Engine *InvariantEngine

	// Logger for manager operations. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultManagerConfig returns production defaults: a 20-snapshot
// rotation window and the strict approval policy.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetained: 20,
		Policy:      RequireUserApproved,
	}
}

// Validate checks if the configuration is valid.
func (c *ManagerConfig) Validate() error {
	if c.MaxRetained < 0 {
		return errors.New("max_retained must be non-negative")
	}
	switch c.Policy {
	case "", RequireUserApproved, AcceptReviewed:
	default:
		return fmt.Errorf("unknown approval policy %q", c.Policy)
	}
	if c.ValidateOnCommit && c.Engine == nil {
		return errors.New("validate_on_commit requires an engine")
	}
	return nil
}

// =============================================================================
// Identity Manager
// =============================================================================

// timeline is the mutable per-key state. Its mutex serializes every
// commit/rollback/status change for one key; different keys never block
// one another.
type timeline struct {
	mu     sync.Mutex
	loaded bool
	snaps  []Snapshot
}

// IdentityManager owns per-key append-only snapshot timelines. It
// assigns versions, enforces rotation, exposes latest/latest-approved
// queries, and degrades to the skeleton identity on any internal
// failure rather than propagating an unusable state.
//
// # Description
//
// Construct one manager per storage collaborator via NewIdentityManager;
// there is no hidden package-level instance, so tests can run
// independent managers side by side.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations for a single key
// are mutually exclusive; operations on different keys proceed in
// parallel.
//
// # Failure Semantics
//
// A detected version-contiguity break or storage inconsistency is fatal
// to the key's current state: the manager installs a skeleton snapshot
// tagged SYSTEM_ROLLBACK. Read paths (Latest, LatestApproved) therefore
// never return an error and never return "no identity" — the worst case
// is the skeleton under SYSTEM_ROLLBACK.
type IdentityManager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// now is the commit clock; swapped in tests.
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*timeline
}

// NewIdentityManager creates a manager with the given configuration.
//
// # Inputs
//
//   - cfg: manager configuration; see ManagerConfig
//
// # Outputs
//
//   - *IdentityManager: ready for use
//   - error: non-nil if cfg is invalid
func NewIdentityManager(cfg ManagerConfig) (*IdentityManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manager config: %w", err)
	}
	if cfg.Policy == "" {
		cfg.Policy = RequireUserApproved
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityManager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		keys:   make(map[string]*timeline),
	}, nil
}

// timelineFor returns the per-key state, creating it on first touch.
func (m *IdentityManager) timelineFor(key string) *timeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.keys[key]
	if !ok {
		t = &timeline{}
		m.keys[key] = t
	}
	return t
}

// =============================================================================
// Public Contract
// =============================================================================

// CommitNewSnapshot constructs and appends a new snapshot for key.
//
// # Description
//
// The version is manager-assigned: one greater than the key's current
// maximum, starting at 1 for a new key. The timestamp is the current
// UTC time. status defaults to AUTO when empty; SYSTEM_ROLLBACK is a
// system-only transition and is rejected here. After the append the
// rotation limit is enforced by evicting the oldest retained entries.
//
// # Inputs
//
//   - ctx: carries cancellation to the storage collaborator
//   - key: identity key (e.g. a user identifier)
//   - kernel: the immutable kernel to snapshot; must be non-nil
//   - reflection: non-empty reason the snapshot exists
//   - status: initial approval status, or "" for AUTO
//
// # Outputs
//
//   - Snapshot: the new immutable snapshot
//   - error: construction errors, or a storage failure (in which case
//     the key has already been rolled back to the skeleton)
func (m *IdentityManager) CommitNewSnapshot(ctx context.Context, key string,
	kernel *Kernel, reflection string, status ApprovalStatus) (Snapshot, error) {

	ctx, span := tracer.Start(ctx, "identity.manager.commit",
		trace.WithAttributes(attribute.String("identity.key", key)))
	defer span.End()

	if status == "" {
		status = StatusAuto
	}
	if !status.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if status == StatusSystemRollback {
		return Snapshot{}, &TransitionError{
			Key: key, To: StatusSystemRollback,
			Reason: "rollback is a system-only transition",
		}
	}
	if kernel == nil {
		return Snapshot{}, ErrNilKernel
	}
	if reflection == "" {
		return Snapshot{}, ErrEmptyReflection
	}

	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	if m.cfg.ValidateOnCommit {
		if ok, violations := m.cfg.Engine.Evaluate(kernel, reflection); !ok {
			m.logger.Warn("commit reflection failed invariant validation",
				"key", key,
				"kernel", kernel.Name(),
				"violations", len(violations),
			)
		}
	}

	if !contiguous(t.snaps) {
		// The window is untrustworthy; repair before building on it.
		m.repairLocked(ctx, t, key, "timeline corruption detected at commit")
	}

	snap := newSnapshot(kernel, m.nextVersion(t), m.now(), status, reflection)
	if err := m.appendLocked(ctx, t, key, snap); err != nil {
		return Snapshot{}, err
	}

	commitsTotal.WithLabelValues(string(status)).Inc()
	span.SetAttributes(attribute.Int("identity.version", snap.Version()))
	m.logger.Info("snapshot committed",
		"key", key,
		"version", snap.Version(),
		"status", string(status),
	)
	return snap, nil
}

// SetStatus produces a new snapshot identical to the target except for
// its approval status, and makes it the authoritative record for that
// version. The version number and timeline position never move.
//
// Fails with an error wrapping ErrInvalidTransition if the move is not
// a legal forward progression, or if the requested status is
// SYSTEM_ROLLBACK (not settable via this API).
func (m *IdentityManager) SetStatus(ctx context.Context, key string, version int,
	newStatus ApprovalStatus) (Snapshot, error) {

	ctx, span := tracer.Start(ctx, "identity.manager.set_status",
		trace.WithAttributes(
			attribute.String("identity.key", key),
			attribute.Int("identity.version", version),
		))
	defer span.End()

	if !newStatus.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}
	if newStatus == StatusSystemRollback {
		return Snapshot{}, &TransitionError{
			Key: key, Version: version, To: StatusSystemRollback,
			Reason: "rollback is a system-only transition",
		}
	}

	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	idx := indexOfVersion(t.snaps, version)
	if idx < 0 {
		return Snapshot{}, fmt.Errorf("%w: %s v%d", ErrSnapshotNotFound, key, version)
	}
	current := t.snaps[idx]
	if !current.Status().canTransitionTo(newStatus) {
		return Snapshot{}, &TransitionError{
			Key: key, Version: version,
			From: current.Status(), To: newStatus,
			Reason: "not a forward progression",
		}
	}

	next := current.withStatus(newStatus)
	if m.cfg.Store != nil {
		if err := m.cfg.Store.Replace(ctx, key, next); err != nil {
			// Timeline unchanged; the caller can retry.
			return Snapshot{}, fmt.Errorf("failed to persist status change: %w", err)
		}
	}
	t.snaps[idx] = next

	transitionsTotal.WithLabelValues(string(current.Status()), string(newStatus)).Inc()
	m.logger.Info("snapshot status changed",
		"key", key,
		"version", version,
		"from", string(current.Status()),
		"to", string(newStatus),
	)
	return next, nil
}

// Latest returns the highest-version snapshot for key, or the skeleton
// snapshot if the key is unknown or its timeline is empty. It never
// returns an error: load failures degrade to a rollback internally.
func (m *IdentityManager) Latest(ctx context.Context, key string) Snapshot {
	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	if len(t.snaps) == 0 {
		return SkeletonSnapshot()
	}
	return t.snaps[len(t.snaps)-1]
}

// LatestApproved returns the newest snapshot whose status satisfies the
// configured approval policy, scanning from newest to oldest. Falls
// back to the skeleton snapshot if none qualifies.
func (m *IdentityManager) LatestApproved(ctx context.Context, key string) Snapshot {
	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	for i := len(t.snaps) - 1; i >= 0; i-- {
		if m.approved(t.snaps[i].Status()) {
			return t.snaps[i]
		}
	}
	return SkeletonSnapshot()
}

// History returns a read copy of the retained window for key, ordered
// by version ascending. The copy is the caller's to keep; mutating it
// cannot affect the timeline.
func (m *IdentityManager) History(ctx context.Context, key string) []Snapshot {
	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	out := make([]Snapshot, len(t.snaps))
	copy(out, t.snaps)
	return out
}

// Rollback forcibly commits a skeleton snapshot for key with status
// SYSTEM_ROLLBACK and a reflection containing reason. It becomes the
// new latest for the key. This is the manager's own recovery action; it
// is also invoked automatically when an internal operation would
// otherwise leave the timeline inconsistent.
func (m *IdentityManager) Rollback(ctx context.Context, key, reason string) Snapshot {
	ctx, span := tracer.Start(ctx, "identity.manager.rollback",
		trace.WithAttributes(attribute.String("identity.key", key)))
	defer span.End()

	t := m.timelineFor(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	m.loadLocked(ctx, t, key)

	return m.rollbackLocked(ctx, t, key, reason)
}

// =============================================================================
// Internals
// =============================================================================

// loadLocked hydrates the window from the storage collaborator on the
// key's first touch. A load failure or a non-contiguous stored window
// is absorbed here: the key degrades to a skeleton rollback instead of
// surfacing the corruption to callers. Caller holds t.mu.
func (m *IdentityManager) loadLocked(ctx context.Context, t *timeline, key string) {
	if t.loaded {
		return
	}
	t.loaded = true
	if m.cfg.Store == nil {
		return
	}
	snaps, err := m.cfg.Store.LoadTimeline(ctx, key)
	if err != nil {
		m.logger.Error("failed to load timeline, degrading to skeleton",
			"key", key,
			"error", err,
		)
		m.rollbackLocked(ctx, t, key, fmt.Sprintf("storage load failure: %v", err))
		return
	}
	t.snaps = snaps
	if !contiguous(t.snaps) {
		m.repairLocked(ctx, t, key, "timeline corruption detected at load")
	}
}

// appendLocked appends snap to the window, mirrors it to storage, and
// enforces rotation. A storage append failure triggers an automatic
// rollback so consumers keep a usable identity. Caller holds t.mu.
func (m *IdentityManager) appendLocked(ctx context.Context, t *timeline, key string,
	snap Snapshot) error {

	if m.cfg.Store != nil {
		if err := m.cfg.Store.Append(ctx, key, snap); err != nil {
			m.logger.Error("failed to persist snapshot, rolling back",
				"key", key,
				"version", snap.Version(),
				"error", err,
			)
			m.rollbackLocked(ctx, t, key, fmt.Sprintf("storage append failure: %v", err))
			return fmt.Errorf("%w: append failed for %s v%d: %v",
				ErrTimelineCorrupted, key, snap.Version(), err)
		}
	}
	t.snaps = append(t.snaps, snap)
	m.rotateLocked(ctx, t, key)
	return nil
}

// rotateLocked enforces the retention window after an append. Eviction
// never renumbers the remaining entries and never removes the newest.
// Caller holds t.mu.
func (m *IdentityManager) rotateLocked(ctx context.Context, t *timeline, key string) {
	if m.cfg.MaxRetained <= 0 || len(t.snaps) <= m.cfg.MaxRetained {
		return
	}
	drop := len(t.snaps) - m.cfg.MaxRetained
	if m.cfg.Store != nil {
		if err := m.cfg.Store.EvictOldest(ctx, key, drop); err != nil {
			// The in-memory window stays authoritative; a stale store
			// entry is re-evicted on the next rotation pass.
			m.logger.Warn("failed to evict rotated snapshots from storage",
				"key", key,
				"count", drop,
				"error", err,
			)
		}
	}
	t.snaps = append([]Snapshot(nil), t.snaps[drop:]...)
	evictionsTotal.Add(float64(drop))
}

// rollbackLocked installs a skeleton snapshot as the new latest. When
// the existing window is corrupt its retained entries are discarded
// wholesale: history that cannot vouch for its own contiguity is worse
// than no history. Caller holds t.mu.
func (m *IdentityManager) rollbackLocked(ctx context.Context, t *timeline, key,
	reason string) Snapshot {

	if reason == "" {
		reason = "system rollback"
	}
	version := maxVersion(t.snaps) + 1
	snap := newSnapshot(SkeletonKernel(), version, m.now(), StatusSystemRollback, reason)

	if contiguous(t.snaps) {
		t.snaps = append(t.snaps, snap)
	} else {
		if m.cfg.Store != nil {
			if err := m.cfg.Store.EvictOldest(ctx, key, len(t.snaps)); err != nil {
				m.logger.Warn("failed to evict corrupted window from storage",
					"key", key,
					"error", err,
				)
			}
		}
		t.snaps = []Snapshot{snap}
	}
	if m.cfg.Store != nil {
		if err := m.cfg.Store.Append(ctx, key, snap); err != nil {
			// Memory stays authoritative; the skeleton is still served.
			m.logger.Error("failed to persist rollback snapshot",
				"key", key,
				"version", version,
				"error", err,
			)
		}
	}
	m.rotateLocked(ctx, t, key)

	rollbacksTotal.Inc()
	m.logger.Warn("identity rolled back to skeleton",
		"key", key,
		"version", version,
		"reason", reason,
	)
	return snap
}

// repairLocked is the corruption path: log, then rollback.
func (m *IdentityManager) repairLocked(ctx context.Context, t *timeline, key,
	reason string) {
	m.logger.Error("timeline corruption",
		"key", key,
		"reason", reason,
	)
	m.rollbackLocked(ctx, t, key, reason)
}

// nextVersion returns the version the next commit must carry.
func (m *IdentityManager) nextVersion(t *timeline) int {
	if len(t.snaps) == 0 {
		return 1
	}
	return t.snaps[len(t.snaps)-1].Version() + 1
}

// approved applies the configured policy threshold.
func (m *IdentityManager) approved(status ApprovalStatus) bool {
	switch status {
	case StatusUserApproved:
		return true
	case StatusReviewed:
		return m.cfg.Policy == AcceptReviewed
	}
	return false
}

// contiguous reports whether snaps carry strictly consecutive versions
// with a sane starting point. Rotation moves the start of the window
// forward, so the check is relative, not anchored at 1.
func contiguous(snaps []Snapshot) bool {
	for i, s := range snaps {
		if s.Version() < 1 {
			return false
		}
		if i > 0 && s.Version() != snaps[i-1].Version()+1 {
			return false
		}
	}
	return true
}

// maxVersion returns the highest version in snaps, or 0 when empty.
// It scans rather than trusting order so a corrupted window still
// yields a monotonic next version.
func maxVersion(snaps []Snapshot) int {
	max := 0
	for _, s := range snaps {
		if s.Version() > max {
			max = s.Version()
		}
	}
	return max
}

// indexOfVersion locates version in an ordered window, or -1.
func indexOfVersion(snaps []Snapshot, version int) int {
	for i, s := range snaps {
		if s.Version() == version {
			return i
		}
	}
	return -1
}
