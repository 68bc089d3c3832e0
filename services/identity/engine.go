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
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Violation is a single invariant failure produced by evaluation. It is
// returned as data, never thrown; the caller decides what a violation
// means for the workflow that produced the text.
type Violation struct {
	// RuleID addresses the invariant that failed.
	RuleID string `json:"rule_id"`

	// Message is the human-readable diagnostic.
	Message string `json:"message"`

	// IsCrash distinguishes an evaluation crash (panic inside a
	// predicate, unresolvable rule) from a normal rule failure. A crash
	// is always a hard violation: invariants never fail open.
	IsCrash bool `json:"is_crash"`
}

// InvariantEngine evaluates a kernel's rule set against arbitrary text.
//
// # Thread Safety
//
// Evaluate depends only on its arguments and records nothing between
// calls; it is safe to invoke from any number of goroutines without
// coordination. For fixed (kernel, text) inputs the result is
// deterministic.
//
// # Failure Semantics
//
// The engine never lets a failure escape its boundary. A predicate that
// panics, a predicate that cannot be resolved in this process, and a
// declarative rule with an unrecognized type all become crash-flagged
// Violations. Absence of a clean true/false answer is itself a failure.
type InvariantEngine struct {
	logger *slog.Logger
}

// NewInvariantEngine creates an engine.
//
// logger may be nil, in which case slog.Default() is used. The engine
// only logs; it never mutates anything.
func NewInvariantEngine(logger *slog.Logger) *InvariantEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvariantEngine{logger: logger}
}

// Evaluate runs every invariant in kernel against text, in declared
// order.
//
// # Inputs
//
//   - kernel: source of the rule set (immutable)
//   - text: candidate text; may be empty or arbitrarily long
//
// # Outputs
//
//   - bool: true iff zero violations were recorded
//   - []Violation: diagnostics in rule declaration order
//
// Declarative rules are literal, case-sensitive substring checks; there
// is no normalization and no regex.
func (e *InvariantEngine) Evaluate(kernel *Kernel, text string) (bool, []Violation) {
	if kernel == nil {
		// A missing kernel cannot vouch for anything.
		return false, []Violation{{
			RuleID:  "engine",
			Message: "invariant error: kernel is nil",
			IsCrash: true,
		}}
	}

	start := time.Now()
	var violations []Violation
	for _, rule := range kernel.invariants {
		if v, ok := e.check(rule, text); !ok {
			violations = append(violations, v)
		}
	}
	observeEvaluation(time.Since(start), len(violations))

	if len(violations) > 0 {
		e.logger.Warn("identity invariant validation failure",
			"kernel", kernel.name,
			"violations", len(violations),
		)
	}
	return len(violations) == 0, violations
}

// check evaluates a single rule. ok is false when a violation was
// recorded. Panics inside caller-supplied predicates are recovered here
// and converted into crash-flagged violations.
func (e *InvariantEngine) check(rule InvariantSpec, text string) (v Violation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v = Violation{
				RuleID:  rule.id,
				Message: fmt.Sprintf("invariant error: check crashed (%v)", r),
				IsCrash: true,
			}
			ok = false
		}
	}()

	switch rule.kind {
	case KindPredicate:
		if rule.predicate == nil {
			// A predicate rehydrated from storage has no function to
			// call. Fail closed rather than assume it would have passed.
			return Violation{
				RuleID:  rule.id,
				Message: "invariant error: predicate not resolvable in this process",
				IsCrash: true,
			}, false
		}
		if !rule.predicate(text) {
			return Violation{
				RuleID:  rule.id,
				Message: "invariant violation: predicate check failed",
			}, false
		}
		return Violation{}, true

	case KindDeclarative:
		switch rule.ruleType {
		case RuleContains:
			if !strings.Contains(text, rule.pattern) {
				return Violation{
					RuleID:  rule.id,
					Message: fmt.Sprintf("invariant violation: required pattern %q missing", rule.pattern),
				}, false
			}
			return Violation{}, true
		case RuleContainsNot:
			if strings.Contains(text, rule.pattern) {
				return Violation{
					RuleID:  rule.id,
					Message: fmt.Sprintf("invariant violation: restricted pattern %q detected", rule.pattern),
				}, false
			}
			return Violation{}, true
		default:
			return Violation{
				RuleID:  rule.id,
				Message: fmt.Sprintf("invariant error: unrecognized rule type %q", rule.ruleType),
				IsCrash: true,
			}, false
		}

	default:
		return Violation{
			RuleID:  rule.id,
			Message: fmt.Sprintf("invariant error: unrecognized rule kind %q", rule.kind),
			IsCrash: true,
		}, false
	}
}
