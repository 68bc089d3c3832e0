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
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Approval Status
// =============================================================================

// ApprovalStatus is the governance tag on a snapshot. It is a closed
// enumeration; the values carry no numeric ranking, though rollback is
// treated specially (system-only, terminal for the snapshot it tags).
type ApprovalStatus string

const (
	// StatusAuto marks a snapshot committed without review.
	StatusAuto ApprovalStatus = "auto"

	// StatusReviewed marks a snapshot a reviewer has looked at.
	StatusReviewed ApprovalStatus = "reviewed"

	// StatusUserApproved marks a snapshot a human has explicitly approved.
	StatusUserApproved ApprovalStatus = "user_approved"

	// StatusSystemRollback marks a fail-safe snapshot installed by the
	// manager itself. It is never settable through the public approval
	// API; the only way out of it is committing a brand-new snapshot.
	StatusSystemRollback ApprovalStatus = "system_rollback"
)

// forwardRank orders the reviewer-driven progression AUTO -> REVIEWED ->
// USER_APPROVED. Rollback sits outside the progression entirely.
var forwardRank = map[ApprovalStatus]int{
	StatusAuto:         0,
	StatusReviewed:     1,
	StatusUserApproved: 2,
}

// Valid reports whether s is a member of the closed enumeration.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusAuto, StatusReviewed, StatusUserApproved, StatusSystemRollback:
		return true
	}
	return false
}

// canTransitionTo reports whether the reviewer-driven move s -> next is
// legal. Only strictly forward moves are allowed; a reviewer may skip
// REVIEWED and go straight to USER_APPROVED, but never backwards, and
// never into or out of SYSTEM_ROLLBACK.
func (s ApprovalStatus) canTransitionTo(next ApprovalStatus) bool {
	from, ok := forwardRank[s]
	if !ok {
		return false // rollback is terminal for the snapshot it tags
	}
	to, ok := forwardRank[next]
	if !ok {
		return false // rollback is not settable via the approval API
	}
	return to > from
}

// ParseApprovalStatus converts a string into an ApprovalStatus.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	status := ApprovalStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown approval status %q", s)
	}
	return status, nil
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable, versioned record pairing a kernel with its
// governance metadata. Snapshots are created only by the manager's
// commit path or the skeleton factory; versions are assigned by the
// manager, never by a caller.
//
// A status change produces a new Snapshot value for the same version
// (see IdentityManager.SetStatus); no field of an existing snapshot is
// ever written in place.
type Snapshot struct {
	kernel     *Kernel
	version    int
	createdAt  time.Time
	status     ApprovalStatus
	reflection string
}

// newSnapshot builds a snapshot. Unexported: version assignment is the
// manager's privilege.
func newSnapshot(kernel *Kernel, version int, createdAt time.Time,
	status ApprovalStatus, reflection string) Snapshot {
	return Snapshot{
		kernel:     kernel,
		version:    version,
		createdAt:  createdAt.UTC(),
		status:     status,
		reflection: reflection,
	}
}

// Kernel returns the snapshot's kernel (itself immutable).
func (s Snapshot) Kernel() *Kernel { return s.kernel }

// Version returns the manager-assigned version number.
func (s Snapshot) Version() int { return s.version }

// CreatedAt returns the UTC commit timestamp.
func (s Snapshot) CreatedAt() time.Time { return s.createdAt }

// Status returns the snapshot's approval status.
func (s Snapshot) Status() ApprovalStatus { return s.status }

// Reflection returns the human-readable reason the snapshot exists.
func (s Snapshot) Reflection() string { return s.reflection }

// IsZero reports whether s is the zero value (no kernel, version 0 with
// no status). The skeleton snapshot is not zero.
func (s Snapshot) IsZero() bool { return s.kernel == nil && s.status == "" }

// withStatus returns a copy of s with only the status replaced. The
// version, timestamp, kernel and reflection are carried over unchanged,
// so the copy stays the authoritative record for the same version.
func (s Snapshot) withStatus(status ApprovalStatus) Snapshot {
	s.status = status
	return s
}

// snapshotJSON is the wire form of a Snapshot.
type snapshotJSON struct {
	Kernel     *Kernel        `json:"kernel"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	Status     ApprovalStatus `json:"status"`
	Reflection string         `json:"reflection"`
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Kernel:     s.kernel,
		Version:    s.version,
		CreatedAt:  s.createdAt,
		Status:     s.status,
		Reflection: s.reflection,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.kernel = w.Kernel
	s.version = w.Version
	s.createdAt = w.CreatedAt.UTC()
	s.status = w.Status
	s.reflection = w.Reflection
	return nil
}
