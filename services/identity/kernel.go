// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity implements the governance engine for agent identity:
// immutable identity kernels, invariant validation over candidate text,
// and strictly-versioned snapshot timelines with approval tracking.
//
// The package answers one question for its callers: which identity
// configuration is currently authorized, and is it safe to use? It does
// not generate content, store conversation history, or model affect.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                     IdentityManager                        │
//	│  per-key timelines │ version assignment │ rotation │       │
//	│  approval transitions │ fail-safe rollback                 │
//	└──────────────┬──────────────────────────┬──────────────────┘
//	               │                          │
//	       ┌───────▼────────┐        ┌────────▼────────┐
//	       │ InvariantEngine │        │  TimelineStore  │
//	       │ (pure checks)   │        │  (collaborator) │
//	       └───────┬────────┘        └─────────────────┘
//	               │
//	       ┌───────▼────────┐
//	       │     Kernel      │
//	       │ (immutable)     │
//	       └────────────────┘
//
// Kernels and snapshots are value objects: every field is set at
// construction and never mutated. Approval changes produce a new
// snapshot for the same version; the timeline itself only ever appends.
package identity

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Invariant Specifications
// =============================================================================

// RuleKind distinguishes the two invariant variants.
type RuleKind string

const (
	// KindPredicate is an opaque boolean function over candidate text.
	KindPredicate RuleKind = "predicate"

	// KindDeclarative is a structured rule (type tag + literal pattern).
	KindDeclarative RuleKind = "declarative"
)

// RuleType names a declarative rule primitive.
//
// Both supported primitives are literal, case-sensitive substring checks.
// There is no normalization and no regex; a pattern matches exactly the
// bytes it contains.
type RuleType string

const (
	// RuleContains passes iff the pattern is a substring of the text.
	RuleContains RuleType = "contains"

	// RuleContainsNot passes iff the pattern is NOT a substring of the text.
	RuleContainsNot RuleType = "contains_not"
)

// PredicateFunc is a caller-supplied boolean check over candidate text.
//
// Predicates are opaque capabilities: the engine never inspects them, it
// only invokes them. A predicate that panics is treated as a hard
// violation, never as a pass (see InvariantEngine).
type PredicateFunc func(text string) bool

// InvariantSpec is a single identity rule, either a predicate or a
// declarative pattern rule. Specs are constructed via Predicate or
// Declarative and are immutable afterwards.
//
// Every spec carries a non-empty rule ID used to address diagnostics.
type InvariantSpec struct {
	kind      RuleKind
	id        string
	predicate PredicateFunc
	ruleType  RuleType
	pattern   string
}

// Predicate builds a predicate-variant invariant.
//
// The rule ID must be non-empty and fn must be non-nil; both are checked
// when the spec enters a kernel via NewKernel.
func Predicate(id string, fn PredicateFunc) InvariantSpec {
	return InvariantSpec{
		kind:      KindPredicate,
		id:        id,
		predicate: fn,
	}
}

// Declarative builds a declarative-variant invariant.
//
// Unknown rule types are accepted at construction and fail closed at
// evaluation time: the engine reports them as hard violations rather
// than guessing at semantics.
func Declarative(id string, ruleType RuleType, pattern string) InvariantSpec {
	return InvariantSpec{
		kind:     KindDeclarative,
		id:       id,
		ruleType: ruleType,
		pattern:  pattern,
	}
}

// ID returns the spec's rule identifier.
func (s InvariantSpec) ID() string { return s.id }

// Kind returns the spec's variant.
func (s InvariantSpec) Kind() RuleKind { return s.kind }

// Type returns the declarative rule type (empty for predicates).
func (s InvariantSpec) Type() RuleType { return s.ruleType }

// Pattern returns the declarative match pattern (empty for predicates).
func (s InvariantSpec) Pattern() string { return s.pattern }

// validateSpec checks structural well-formedness of a single spec.
func validateSpec(i int, s InvariantSpec) error {
	if s.id == "" {
		return fmt.Errorf("%w: invariant %d has an empty rule id", ErrInvalidSpec, i)
	}
	switch s.kind {
	case KindPredicate:
		if s.predicate == nil {
			return fmt.Errorf("%w: invariant %q has a nil predicate", ErrInvalidSpec, s.id)
		}
	case KindDeclarative:
		if s.ruleType == "" {
			return fmt.Errorf("%w: invariant %q has an empty rule type", ErrInvalidSpec, s.id)
		}
	default:
		return fmt.Errorf("%w: invariant %q has unknown kind %q", ErrInvalidSpec, s.id, s.kind)
	}
	return nil
}

// invariantJSON is the wire form of an InvariantSpec.
//
// Predicate functions are process-local capabilities and cannot cross a
// serialization boundary. They are persisted as (kind, id) only; a spec
// rehydrated from storage carries a nil predicate, which the engine
// treats as a crash-class violation (fail closed) rather than a pass.
type invariantJSON struct {
	Kind    RuleKind `json:"kind"`
	ID      string   `json:"id"`
	Type    RuleType `json:"type,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s InvariantSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(invariantJSON{
		Kind:    s.kind,
		ID:      s.id,
		Type:    s.ruleType,
		Pattern: s.pattern,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *InvariantSpec) UnmarshalJSON(data []byte) error {
	var w invariantJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.kind = w.Kind
	s.id = w.ID
	s.ruleType = w.Type
	s.pattern = w.Pattern
	s.predicate = nil
	return nil
}

// =============================================================================
// Kernel
// =============================================================================

// KernelSpec is the construction input for a Kernel.
//
// Structural validation (required fields present, invariant list items
// well-typed) happens in NewKernel. Running the invariants themselves is
// the engine's job, not the constructor's.
type KernelSpec struct {
	// Name is the identity's display name.
	Name string `json:"name" validate:"required"`

	// Role describes what the identity is for.
	Role string `json:"role" validate:"required"`

	// CoreValues is the ordered set of values the identity holds.
	CoreValues []string `json:"core_values" validate:"required,min=1,dive,required"`

	// CommunicationStyle describes how the identity expresses itself.
	CommunicationStyle string `json:"communication_style" validate:"required"`

	// ExpertiseDomains is the ordered set of domains the identity claims.
	ExpertiseDomains []string `json:"expertise_domains" validate:"dive,required"`

	// Invariants is the ordered rule set evaluated against candidate text.
	Invariants []InvariantSpec `json:"invariants" validate:"-"`
}

// structValidate checks KernelSpec field presence via struct tags.
var structValidate = validator.New()

// Kernel is the immutable core identity: fixed traits plus the ordered
// invariant rule set. Once constructed a kernel is never mutated; any
// "change" is a new kernel committed as a new snapshot.
//
// # Thread Safety
//
// Kernel has no mutable state and is safe to share across goroutines.
type Kernel struct {
	name               string
	role               string
	coreValues         []string
	communicationStyle string
	expertiseDomains   []string
	invariants         []InvariantSpec
}

// NewKernel validates spec and constructs an immutable Kernel.
//
// # Inputs
//
//   - spec: construction input; Name, Role, CommunicationStyle and at
//     least one CoreValue are required, and every invariant must carry a
//     non-empty rule ID and a well-typed variant.
//
// # Outputs
//
//   - *Kernel: the constructed kernel (slices are defensively copied)
//   - error: wraps ErrInvalidKernel or ErrInvalidSpec on malformed input
func NewKernel(spec KernelSpec) (*Kernel, error) {
	if err := structValidate.Struct(spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKernel, err)
	}
	for i, inv := range spec.Invariants {
		if err := validateSpec(i, inv); err != nil {
			return nil, err
		}
	}
	return &Kernel{
		name:               spec.Name,
		role:               spec.Role,
		coreValues:         copyStrings(spec.CoreValues),
		communicationStyle: spec.CommunicationStyle,
		expertiseDomains:   copyStrings(spec.ExpertiseDomains),
		invariants:         copySpecs(spec.Invariants),
	}, nil
}

// Name returns the identity's display name.
func (k *Kernel) Name() string { return k.name }

// Role returns the identity's role description.
func (k *Kernel) Role() string { return k.role }

// CommunicationStyle returns the identity's communication style.
func (k *Kernel) CommunicationStyle() string { return k.communicationStyle }

// CoreValues returns a copy of the ordered core values.
func (k *Kernel) CoreValues() []string { return copyStrings(k.coreValues) }

// ExpertiseDomains returns a copy of the ordered expertise domains.
func (k *Kernel) ExpertiseDomains() []string { return copyStrings(k.expertiseDomains) }

// Invariants returns a copy of the ordered invariant specs.
func (k *Kernel) Invariants() []InvariantSpec { return copySpecs(k.invariants) }

// Equal reports whether two kernels describe the same identity.
//
// Invariants are compared by (kind, id, type, pattern); predicate
// functions are identity-less capabilities and do not participate.
func (k *Kernel) Equal(other *Kernel) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.name != other.name || k.role != other.role ||
		k.communicationStyle != other.communicationStyle {
		return false
	}
	if !equalStrings(k.coreValues, other.coreValues) ||
		!equalStrings(k.expertiseDomains, other.expertiseDomains) {
		return false
	}
	if len(k.invariants) != len(other.invariants) {
		return false
	}
	for i := range k.invariants {
		a, b := k.invariants[i], other.invariants[i]
		if a.kind != b.kind || a.id != b.id || a.ruleType != b.ruleType || a.pattern != b.pattern {
			return false
		}
	}
	return true
}

// kernelJSON is the wire form of a Kernel.
type kernelJSON struct {
	Name               string          `json:"name"`
	Role               string          `json:"role"`
	CoreValues         []string        `json:"core_values"`
	CommunicationStyle string          `json:"communication_style"`
	ExpertiseDomains   []string        `json:"expertise_domains"`
	Invariants         []InvariantSpec `json:"invariants"`
}

// MarshalJSON implements json.Marshaler.
func (k *Kernel) MarshalJSON() ([]byte, error) {
	return json.Marshal(kernelJSON{
		Name:               k.name,
		Role:               k.role,
		CoreValues:         k.coreValues,
		CommunicationStyle: k.communicationStyle,
		ExpertiseDomains:   k.expertiseDomains,
		Invariants:         k.invariants,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Deserialization bypasses NewKernel validation on purpose: a stored
// kernel was validated when it entered the timeline, and rejecting it
// at read time would leave a key without any identity. Fail-safety for
// unreadable state lives in the manager's rollback path instead.
func (k *Kernel) UnmarshalJSON(data []byte) error {
	var w kernelJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k.name = w.Name
	k.role = w.Role
	k.coreValues = w.CoreValues
	k.communicationStyle = w.CommunicationStyle
	k.expertiseDomains = w.ExpertiseDomains
	k.invariants = w.Invariants
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copySpecs(in []InvariantSpec) []InvariantSpec {
	if in == nil {
		return nil
	}
	out := make([]InvariantSpec, len(in))
	copy(out, in)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
