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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kernelWith builds a minimal kernel carrying exactly the given rules.
func kernelWith(t *testing.T, rules ...InvariantSpec) *Kernel {
	t.Helper()
	k, err := NewKernel(KernelSpec{
		Name:               "test",
		Role:               "test",
		CoreValues:         []string{"v"},
		CommunicationStyle: "s",
		Invariants:         rules,
	})
	require.NoError(t, err)
	return k
}

func TestEvaluate_Declarative(t *testing.T) {
	engine := NewInvariantEngine(nil)

	tests := []struct {
		name      string
		rule      InvariantSpec
		text      string
		valid     bool
		wantInMsg string
		wantCrash bool
	}{
		{
			name:  "contains pass",
			rule:  Declarative("must_cite", RuleContains, "citation"),
			text:  "see citation [3] for details",
			valid: true,
		},
		{
			name:      "contains fail",
			rule:      Declarative("must_cite", RuleContains, "citation"),
			text:      "no sources here",
			valid:     false,
			wantInMsg: `required pattern "citation" missing`,
		},
		{
			name:  "contains_not pass",
			rule:  Declarative("no_secrets", RuleContainsNot, "password"),
			text:  "all clear",
			valid: true,
		},
		{
			name:      "contains_not fail",
			rule:      Declarative("no_secrets", RuleContainsNot, "password"),
			text:      "the password is hunter2",
			valid:     false,
			wantInMsg: `restricted pattern "password" detected`,
		},
		{
			name:  "matching is case sensitive",
			rule:  Declarative("no_secrets", RuleContainsNot, "password"),
			text:  "the PASSWORD is hunter2",
			valid: true,
		},
		{
			name:  "empty text",
			rule:  Declarative("no_secrets", RuleContainsNot, "password"),
			text:  "",
			valid: true,
		},
		{
			name:      "unknown rule type fails closed",
			rule:      Declarative("r", "regex", ".*"),
			text:      "anything",
			valid:     false,
			wantInMsg: `unrecognized rule type "regex"`,
			wantCrash: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			valid, violations := engine.Evaluate(kernelWith(t, tc.rule), tc.text)
			assert.Equal(t, tc.valid, valid)
			if tc.valid {
				assert.Empty(t, violations)
				return
			}
			require.Len(t, violations, 1)
			assert.Equal(t, tc.rule.ID(), violations[0].RuleID)
			assert.Contains(t, violations[0].Message, tc.wantInMsg)
			assert.Equal(t, tc.wantCrash, violations[0].IsCrash)
		})
	}
}

func TestEvaluate_Predicate(t *testing.T) {
	engine := NewInvariantEngine(nil)

	t.Run("pass", func(t *testing.T) {
		k := kernelWith(t, Predicate("short", func(text string) bool {
			return len(text) < 50
		}))
		valid, violations := engine.Evaluate(k, "brief")
		assert.True(t, valid)
		assert.Empty(t, violations)
	})

	t.Run("fail", func(t *testing.T) {
		k := kernelWith(t, Predicate("short", func(text string) bool {
			return len(text) < 5
		}))
		valid, violations := engine.Evaluate(k, "this is far too long")
		assert.False(t, valid)
		require.Len(t, violations, 1)
		assert.Equal(t, "short", violations[0].RuleID)
		assert.Contains(t, violations[0].Message, "predicate check failed")
		assert.False(t, violations[0].IsCrash)
	})

	t.Run("panic becomes crash violation", func(t *testing.T) {
		boom := Predicate("boom", func(text string) bool {
			panic("rule imploded")
		})
		safe := Declarative("no_secrets", RuleContainsNot, "password")
		k := kernelWith(t, boom, safe)

		valid, violations := engine.Evaluate(k, "the password leaked")
		assert.False(t, valid)
		require.Len(t, violations, 2, "a panicking rule must not mask later rules")
		assert.Equal(t, "boom", violations[0].RuleID)
		assert.True(t, violations[0].IsCrash)
		assert.Contains(t, violations[0].Message, "check crashed")
		assert.Contains(t, violations[0].Message, "rule imploded")
		assert.Equal(t, "no_secrets", violations[1].RuleID)
		assert.False(t, violations[1].IsCrash)
	})

	t.Run("rehydrated predicate fails closed", func(t *testing.T) {
		k := kernelWith(t, Predicate("local_only", func(string) bool { return true }))
		data, err := json.Marshal(k)
		require.NoError(t, err)
		var back Kernel
		require.NoError(t, json.Unmarshal(data, &back))

		valid, violations := engine.Evaluate(&back, "any text")
		assert.False(t, valid)
		require.Len(t, violations, 1)
		assert.True(t, violations[0].IsCrash)
		assert.Contains(t, violations[0].Message, "not resolvable in this process")
	})
}

func TestEvaluate_NilKernel(t *testing.T) {
	engine := NewInvariantEngine(nil)
	valid, violations := engine.Evaluate(nil, "text")
	assert.False(t, valid)
	require.Len(t, violations, 1)
	assert.True(t, violations[0].IsCrash)
}

func TestEvaluate_NoRules(t *testing.T) {
	engine := NewInvariantEngine(nil)
	valid, violations := engine.Evaluate(kernelWith(t), "anything at all")
	assert.True(t, valid)
	assert.Empty(t, violations)
}

func TestEvaluate_DeclaredOrder(t *testing.T) {
	engine := NewInvariantEngine(nil)
	k := kernelWith(t,
		Declarative("first", RuleContains, "alpha"),
		Declarative("second", RuleContains, "beta"),
		Declarative("third", RuleContains, "gamma"),
	)

	valid, violations := engine.Evaluate(k, "only gamma appears")
	assert.False(t, valid)
	require.Len(t, violations, 2)
	assert.Equal(t, "first", violations[0].RuleID)
	assert.Equal(t, "second", violations[1].RuleID)
}

func TestEvaluate_LargeText(t *testing.T) {
	engine := NewInvariantEngine(nil)
	k := kernelWith(t, Declarative("needle", RuleContains, "needle"))

	text := strings.Repeat("hay ", 100_000) + "needle"
	valid, violations := engine.Evaluate(k, text)
	assert.True(t, valid)
	assert.Empty(t, violations)
}
