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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleset_Valid(t *testing.T) {
	doc := []byte(`
invariants:
  - id: must_cite
    type: contains
    pattern: "citation"
  - id: no_secrets
    type: contains_not
    pattern: "password"
`)
	specs, err := ParseRuleset(doc)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "must_cite", specs[0].ID())
	assert.Equal(t, KindDeclarative, specs[0].Kind())
	assert.Equal(t, RuleContains, specs[0].Type())
	assert.Equal(t, "citation", specs[0].Pattern())

	assert.Equal(t, "no_secrets", specs[1].ID())
	assert.Equal(t, RuleContainsNot, specs[1].Type())
}

func TestParseRuleset_UnknownTypeRejected(t *testing.T) {
	doc := []byte(`
invariants:
  - id: r
    type: regex
    pattern: ".*"
`)
	_, err := ParseRuleset(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value for rule type")
}

func TestParseRuleset_MissingID(t *testing.T) {
	doc := []byte(`
invariants:
  - type: contains
    pattern: "x"
`)
	_, err := ParseRuleset(doc)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestParseRuleset_MalformedYAML(t *testing.T) {
	_, err := ParseRuleset([]byte("invariants: [unclosed"))
	assert.Error(t, err)
}

func TestParseRuleset_EmptyDocument(t *testing.T) {
	specs, err := ParseRuleset([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestLoadRuleset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
invariants:
  - id: no_secrets
    type: contains_not
    pattern: "password"
`), 0o644))

	specs, err := LoadRuleset(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "no_secrets", specs[0].ID())

	_, err = LoadRuleset(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
