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
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------
//
// Error taxonomy for the governance engine:
//
//   - rule violations are data, not errors: Evaluate returns them as
//     Violation values and never fails
//   - construction errors (ErrInvalidKernel, ErrInvalidSpec) reject
//     malformed input before it can enter a timeline
//   - ErrInvalidTransition rejects illegal approval moves; the timeline
//     is left untouched
//   - timeline corruption is never surfaced to identity consumers: the
//     manager absorbs it via rollback so Latest always returns a usable
//     snapshot

var (
	// ErrInvalidKernel indicates a malformed KernelSpec (missing required
	// fields) rejected at construction time.
	ErrInvalidKernel = errors.New("invalid kernel spec")

	// ErrInvalidSpec indicates a malformed InvariantSpec (empty rule ID,
	// nil predicate, unknown kind) rejected at construction time.
	ErrInvalidSpec = errors.New("invalid invariant spec")

	// ErrInvalidTransition indicates an illegal approval-status change.
	// The timeline is unchanged when this is returned.
	ErrInvalidTransition = errors.New("invalid approval transition")

	// ErrEmptyReflection indicates a commit without an explanation.
	// Every snapshot must say why it exists.
	ErrEmptyReflection = errors.New("reflection must not be empty")

	// ErrNilKernel indicates a commit with a nil kernel.
	ErrNilKernel = errors.New("kernel must not be nil")

	// ErrSnapshotNotFound indicates the requested version is not in the
	// retained window for the key (it may have been evicted by rotation,
	// or never existed).
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrTimelineCorrupted indicates a break in version contiguity or a
	// storage read inconsistency. It is internal: the manager converts it
	// into an automatic rollback and never returns it from read paths.
	ErrTimelineCorrupted = errors.New("timeline corrupted")
)

// TransitionError reports an illegal approval-status change with enough
// context to act on. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	Key     string
	Version int
	From    ApprovalStatus
	To      ApprovalStatus
	Reason  string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid approval transition for %s v%d: %s -> %s (%s)",
		e.Key, e.Version, e.From, e.To, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
