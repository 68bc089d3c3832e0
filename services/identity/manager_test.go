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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTime is a fixed commit timestamp for hand-built snapshots.
func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// stubStore is an in-memory TimelineStore with injectable failures.
// The storage package has real implementations; using one here would
// import a package that imports this one.
type stubStore struct {
	mu   sync.Mutex
	data map[string][]Snapshot

	failLoad    error
	failAppend  error
	failReplace error
	failEvict   error
}

func newStubStore() *stubStore {
	return &stubStore{data: make(map[string][]Snapshot)}
}

func (s *stubStore) LoadTimeline(ctx context.Context, key string) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, s.failLoad
	}
	out := make([]Snapshot, len(s.data[key]))
	copy(out, s.data[key])
	return out, nil
}

func (s *stubStore) Append(ctx context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	s.data[key] = append(s.data[key], snap)
	return nil
}

func (s *stubStore) Replace(ctx context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace != nil {
		return s.failReplace
	}
	snaps := s.data[key]
	for i := range snaps {
		if snaps[i].Version() == snap.Version() {
			snaps[i] = snap
			return nil
		}
	}
	return fmt.Errorf("no snapshot %s v%d", key, snap.Version())
}

func (s *stubStore) EvictOldest(ctx context.Context, key string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvict != nil {
		return s.failEvict
	}
	snaps := s.data[key]
	if count >= len(snaps) {
		delete(s.data, key)
		return nil
	}
	s.data[key] = append([]Snapshot(nil), snaps[count:]...)
	return nil
}

var _ TimelineStore = (*stubStore)(nil)

// newTestManager builds a manager with rotation disabled unless a test
// overrides the config.
func newTestManager(t *testing.T, mutate ...func(*ManagerConfig)) *IdentityManager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.MaxRetained = 0
	for _, fn := range mutate {
		fn(&cfg)
	}
	mgr, err := NewIdentityManager(cfg)
	require.NoError(t, err)
	return mgr
}

func TestNewIdentityManager_ConfigValidation(t *testing.T) {
	_, err := NewIdentityManager(ManagerConfig{MaxRetained: -1})
	assert.Error(t, err)

	_, err = NewIdentityManager(ManagerConfig{Policy: "strict"})
	assert.Error(t, err)

	_, err = NewIdentityManager(ManagerConfig{ValidateOnCommit: true})
	assert.Error(t, err, "validate_on_commit needs an engine")

	mgr, err := NewIdentityManager(ManagerConfig{})
	require.NoError(t, err)
	assert.Equal(t, RequireUserApproved, mgr.cfg.Policy, "empty policy defaults to strict")
}

func TestCommit_AssignsConsecutiveVersions(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	k := testKernel(t)

	for want := 1; want <= 3; want++ {
		snap, err := mgr.CommitNewSnapshot(ctx, "alice", k, "iteration", "")
		require.NoError(t, err)
		assert.Equal(t, want, snap.Version())
		assert.Equal(t, StatusAuto, snap.Status(), "empty status defaults to auto")
	}

	// Versions are per key.
	snap, err := mgr.CommitNewSnapshot(ctx, "bob", k, "first", StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version())
	assert.Equal(t, StatusReviewed, snap.Status())
}

func TestCommit_RejectsInvalidInput(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	k := testKernel(t)

	_, err := mgr.CommitNewSnapshot(ctx, "alice", nil, "reflection", "")
	assert.ErrorIs(t, err, ErrNilKernel)

	_, err = mgr.CommitNewSnapshot(ctx, "alice", k, "", "")
	assert.ErrorIs(t, err, ErrEmptyReflection)

	_, err = mgr.CommitNewSnapshot(ctx, "alice", k, "reflection", "banana")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = mgr.CommitNewSnapshot(ctx, "alice", k, "reflection", StatusSystemRollback)
	require.Error(t, err)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusSystemRollback, terr.To)

	// Nothing was committed.
	assert.Empty(t, mgr.History(ctx, "alice"))
}

func TestSetStatus_ForwardProgression(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	k := testKernel(t)

	snap, err := mgr.CommitNewSnapshot(ctx, "alice", k, "draft", "")
	require.NoError(t, err)

	reviewed, err := mgr.SetStatus(ctx, "alice", snap.Version(), StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, reviewed.Status())
	assert.Equal(t, snap.Version(), reviewed.Version())
	assert.Equal(t, snap.CreatedAt(), reviewed.CreatedAt(), "a status change keeps the original timestamp")

	approved, err := mgr.SetStatus(ctx, "alice", snap.Version(), StatusUserApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusUserApproved, approved.Status())

	// The timeline holds the updated record in place.
	history := mgr.History(ctx, "alice")
	require.Len(t, history, 1)
	assert.Equal(t, StatusUserApproved, history[0].Status())
}

func TestSetStatus_SkipReviewed(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	snap, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "draft", "")
	require.NoError(t, err)

	approved, err := mgr.SetStatus(ctx, "alice", snap.Version(), StatusUserApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusUserApproved, approved.Status())
}

func TestSetStatus_RejectsIllegalMoves(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	snap, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "draft", StatusUserApproved)
	require.NoError(t, err)

	tests := []struct {
		name string
		to   ApprovalStatus
	}{
		{"backward to reviewed", StatusReviewed},
		{"backward to auto", StatusAuto},
		{"same status", StatusUserApproved},
		{"rollback via approval api", StatusSystemRollback},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mgr.SetStatus(ctx, "alice", snap.Version(), tc.to)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}

	// The record is untouched after every rejection.
	assert.Equal(t, StatusUserApproved, mgr.Latest(ctx, "alice").Status())
}

func TestSetStatus_UnknownVersion(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.SetStatus(ctx, "alice", 42, StatusReviewed)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSetStatus_RollbackSnapshotIsTerminal(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	snap := mgr.Rollback(ctx, "alice", "manual rollback")
	require.Equal(t, StatusSystemRollback, snap.Status())

	_, err := mgr.SetStatus(ctx, "alice", snap.Version(), StatusUserApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLatest_SkeletonFallback(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	snap := mgr.Latest(ctx, "nobody")
	assert.Equal(t, 0, snap.Version())
	assert.Equal(t, StatusSystemRollback, snap.Status())
	assert.True(t, snap.Kernel().Equal(SkeletonKernel()))
}

func TestLatestApproved_Policy(t *testing.T) {
	ctx := context.Background()
	k := testKernel(t)

	seed := func(t *testing.T, mgr *IdentityManager) {
		_, err := mgr.CommitNewSnapshot(ctx, "alice", k, "v1", StatusUserApproved)
		require.NoError(t, err)
		_, err = mgr.CommitNewSnapshot(ctx, "alice", k, "v2", StatusReviewed)
		require.NoError(t, err)
		_, err = mgr.CommitNewSnapshot(ctx, "alice", k, "v3", "")
		require.NoError(t, err)
	}

	t.Run("require_user_approved", func(t *testing.T) {
		mgr := newTestManager(t)
		seed(t, mgr)
		assert.Equal(t, 3, mgr.Latest(ctx, "alice").Version())
		assert.Equal(t, 1, mgr.LatestApproved(ctx, "alice").Version(),
			"strict policy skips reviewed and auto")
	})

	t.Run("accept_reviewed", func(t *testing.T) {
		mgr := newTestManager(t, func(c *ManagerConfig) { c.Policy = AcceptReviewed })
		seed(t, mgr)
		assert.Equal(t, 2, mgr.LatestApproved(ctx, "alice").Version())
	})

	t.Run("nothing qualifies", func(t *testing.T) {
		mgr := newTestManager(t)
		_, err := mgr.CommitNewSnapshot(ctx, "alice", k, "v1", "")
		require.NoError(t, err)
		snap := mgr.LatestApproved(ctx, "alice")
		assert.Equal(t, 0, snap.Version())
		assert.Equal(t, StatusSystemRollback, snap.Status())
	})
}

func TestHistory_ReturnsCopy(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v1", "")
	require.NoError(t, err)
	_, err = mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v2", "")
	require.NoError(t, err)

	history := mgr.History(ctx, "alice")
	require.Len(t, history, 2)
	history[0] = Snapshot{}

	again := mgr.History(ctx, "alice")
	assert.Equal(t, 1, again[0].Version(), "callers cannot mutate the timeline through History")
}

func TestRotation_EvictsOldestWithoutRenumbering(t *testing.T) {
	store := newStubStore()
	mgr := newTestManager(t, func(c *ManagerConfig) {
		c.MaxRetained = 3
		c.Store = store
	})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), fmt.Sprintf("v%d", i), "")
		require.NoError(t, err)
	}

	history := mgr.History(ctx, "alice")
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Version())
	assert.Equal(t, 4, history[1].Version())
	assert.Equal(t, 5, history[2].Version())

	// The store mirrors the retained window.
	stored, err := store.LoadTimeline(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 3, stored[0].Version())

	// The next commit continues numbering from the surviving maximum.
	snap, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v6", "")
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Version())
}

func TestRotation_ZeroRetainsAll(t *testing.T) {
	mgr := newTestManager(t) // MaxRetained: 0
	ctx := context.Background()

	for i := 1; i <= 40; i++ {
		_, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "r", "")
		require.NoError(t, err)
	}
	assert.Len(t, mgr.History(ctx, "alice"), 40)
}

func TestStore_HydratesOnFirstTouch(t *testing.T) {
	store := newStubStore()
	ctx := context.Background()

	first := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	_, err := first.CommitNewSnapshot(ctx, "alice", testKernel(t), "v1", StatusUserApproved)
	require.NoError(t, err)
	_, err = first.CommitNewSnapshot(ctx, "alice", testKernel(t), "v2", "")
	require.NoError(t, err)

	// A fresh manager over the same store sees the persisted window.
	second := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	history := second.History(ctx, "alice")
	require.Len(t, history, 2)
	assert.Equal(t, StatusUserApproved, history[0].Status())

	snap, err := second.CommitNewSnapshot(ctx, "alice", testKernel(t), "v3", "")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Version())
}

func TestStore_LoadFailureDegradesToSkeleton(t *testing.T) {
	store := newStubStore()
	store.failLoad = errors.New("disk on fire")
	mgr := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	ctx := context.Background()

	snap := mgr.Latest(ctx, "alice")
	assert.Equal(t, StatusSystemRollback, snap.Status())
	assert.True(t, snap.Kernel().Equal(SkeletonKernel()))
	assert.Contains(t, snap.Reflection(), "storage load failure")
	assert.GreaterOrEqual(t, snap.Version(), 1, "the rollback joins the timeline, unlike the read fallback")
}

func TestStore_AppendFailureRollsBack(t *testing.T) {
	store := newStubStore()
	mgr := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	ctx := context.Background()

	_, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v1", "")
	require.NoError(t, err)

	store.failAppend = errors.New("write timeout")
	_, err = mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v2", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimelineCorrupted)

	// The key stays usable: its latest is now a skeleton rollback.
	latest := mgr.Latest(ctx, "alice")
	assert.Equal(t, StatusSystemRollback, latest.Status())
	assert.Equal(t, 2, latest.Version(), "the rollback takes the version the failed commit would have")
}

func TestStore_ReplaceFailureLeavesTimelineUntouched(t *testing.T) {
	store := newStubStore()
	mgr := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	ctx := context.Background()

	snap, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v1", "")
	require.NoError(t, err)

	store.failReplace = errors.New("write timeout")
	_, err = mgr.SetStatus(ctx, "alice", snap.Version(), StatusReviewed)
	require.Error(t, err)

	assert.Equal(t, StatusAuto, mgr.Latest(ctx, "alice").Status())

	// Once the store recovers the transition goes through.
	store.failReplace = nil
	_, err = mgr.SetStatus(ctx, "alice", snap.Version(), StatusReviewed)
	require.NoError(t, err)
}

func TestStore_CorruptWindowDiscardedOnLoad(t *testing.T) {
	store := newStubStore()
	ctx := context.Background()
	k := testKernel(t)

	// Seed a window with a version gap, as a buggy writer might leave.
	require.NoError(t, store.Append(ctx, "alice", newSnapshot(k, 1, testTime(), StatusAuto, "v1")))
	require.NoError(t, store.Append(ctx, "alice", newSnapshot(k, 2, testTime(), StatusAuto, "v2")))
	require.NoError(t, store.Append(ctx, "alice", newSnapshot(k, 5, testTime(), StatusAuto, "v5")))

	mgr := newTestManager(t, func(c *ManagerConfig) { c.Store = store })
	history := mgr.History(ctx, "alice")

	// The whole window is replaced by a single skeleton rollback with a
	// version above everything it displaced.
	require.Len(t, history, 1)
	assert.Equal(t, StatusSystemRollback, history[0].Status())
	assert.Equal(t, 6, history[0].Version())
	assert.True(t, history[0].Kernel().Equal(SkeletonKernel()))
}

func TestRollback_ExtendsContiguousTimeline(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v1", StatusUserApproved)
	require.NoError(t, err)
	_, err = mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "v2", "")
	require.NoError(t, err)

	snap := mgr.Rollback(ctx, "alice", "operator intervention")
	assert.Equal(t, 3, snap.Version())
	assert.Equal(t, StatusSystemRollback, snap.Status())
	assert.Contains(t, snap.Reflection(), "operator intervention")

	// Prior history is preserved; the rollback is simply the new latest.
	history := mgr.History(ctx, "alice")
	require.Len(t, history, 3)
	assert.Equal(t, StatusUserApproved, history[0].Status())

	// Recovery: a fresh commit continues the numbering.
	next, err := mgr.CommitNewSnapshot(ctx, "alice", testKernel(t), "recovered", "")
	require.NoError(t, err)
	assert.Equal(t, 4, next.Version())
}

func TestValidateOnCommit_DoesNotBlock(t *testing.T) {
	mgr := newTestManager(t, func(c *ManagerConfig) {
		c.ValidateOnCommit = true
		c.Engine = NewInvariantEngine(nil)
	})
	ctx := context.Background()

	k := kernelWith(t, Declarative("no_secrets", RuleContainsNot, "password"))
	snap, err := mgr.CommitNewSnapshot(ctx, "alice", k, "noting the password rotation", "")
	require.NoError(t, err, "validation findings are advisory, not blocking")
	assert.Equal(t, 1, snap.Version())
}

func TestManager_ConcurrentCommits(t *testing.T) {
	mgr := newTestManager(t, func(c *ManagerConfig) { c.Store = newStubStore() })
	ctx := context.Background()
	k := testKernel(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := mgr.CommitNewSnapshot(ctx, "alice", k, "concurrent", "")
				assert.NoError(t, err)
				_ = mgr.Latest(ctx, "alice")
			}
		}()
	}
	wg.Wait()

	history := mgr.History(ctx, "alice")
	require.Len(t, history, workers*perWorker)
	assert.True(t, contiguous(history), "interleaved commits must still produce consecutive versions")
	assert.Equal(t, workers*perWorker, history[len(history)-1].Version())
}
