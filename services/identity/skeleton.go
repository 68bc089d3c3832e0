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
	"time"

	"github.com/NexusMindAI/NexusIdentity/services/identity/enforcement"
)

// Skeleton identity constants. Generic, safe values with no externally
// supplied expertise or style.
const (
	skeletonName       = "Nexus Assistant"
	skeletonRole       = "helpful assistant"
	skeletonStyle      = "neutral"
	skeletonReflection = "Fallback due to load failure"
)

// SkeletonKernel returns the hard-coded minimal safe kernel.
//
// This factory takes no arguments and cannot fail: it is the one
// guaranteed-constructible object in the system, installed whenever the
// manager cannot produce a valid state. It deliberately bypasses
// NewKernel; its values are fixed at compile time and the baseline
// ruleset ships embedded in the binary.
//
// If the embedded ruleset is ever unparseable (a build defect, not a
// runtime condition), the factory falls back to a single hard-coded
// conservative rule rather than returning an error.
func SkeletonKernel() *Kernel {
	invariants, err := ParseRuleset(enforcement.BaselineInvariants)
	if err != nil {
		invariants = []InvariantSpec{
			Declarative("baseline_no_illegal", RuleContainsNot, "illegal"),
		}
	}
	return &Kernel{
		name:               skeletonName,
		role:               skeletonRole,
		coreValues:         []string{"honesty", "helpfulness", "safety"},
		communicationStyle: skeletonStyle,
		expertiseDomains:   []string{"general knowledge"},
		invariants:         invariants,
	}
}

// SkeletonSnapshot returns the fail-safe snapshot wrapping the skeleton
// kernel. Version 0 marks it as outside any timeline's numbering; it is
// what Latest and LatestApproved return for an unknown or empty key.
func SkeletonSnapshot() Snapshot {
	return newSnapshot(SkeletonKernel(), 0, time.Now().UTC(),
		StatusSystemRollback, skeletonReflection)
}
