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
	"os"

	"gopkg.in/yaml.v3"
)

// rulesetFile is the YAML document shape for declarative rulesets.
type rulesetFile struct {
	Invariants []rulesetEntry `yaml:"invariants"`
}

// rulesetEntry is one declarative rule in a ruleset file. Only the
// declarative variant can live in a file; predicates are process-local
// capabilities and have no file representation.
type rulesetEntry struct {
	ID      string   `yaml:"id"`
	Type    RuleType `yaml:"type"`
	Pattern string   `yaml:"pattern"`
}

// UnmarshalYAML validates the rule type as it is decoded, so a ruleset
// file with an unknown type is rejected at load time rather than
// producing runtime violations for every evaluation.
func (t *RuleType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := RuleType(s)
	switch incoming {
	case RuleContains, RuleContainsNot:
		*t = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for rule type: %q", incoming)
	}
}

// ParseRuleset decodes a YAML ruleset into declarative invariant specs,
// preserving file order.
//
// # Inputs
//
//   - data: raw YAML bytes (see enforcement/baseline_invariants.yaml for
//     the document shape)
//
// # Outputs
//
//   - []InvariantSpec: ordered declarative specs
//   - error: wraps ErrInvalidSpec on malformed entries, or the YAML
//     decode error on a malformed document
func ParseRuleset(data []byte) ([]InvariantSpec, error) {
	var file rulesetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ruleset: %w", err)
	}
	specs := make([]InvariantSpec, 0, len(file.Invariants))
	for i, entry := range file.Invariants {
		spec := Declarative(entry.ID, entry.Type, entry.Pattern)
		if err := validateSpec(i, spec); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// LoadRuleset reads and parses a YAML ruleset from disk.
func LoadRuleset(path string) ([]InvariantSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset %s: %w", path, err)
	}
	return ParseRuleset(data)
}
