// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// Exit codes for validate.
const (
	ValidateExitSuccess   = 0
	ValidateExitViolation = 1
	ValidateExitError     = 2
)

var (
	validateRules string
	validateText  string
	validateFile  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check text against an invariant ruleset",
	Long: `Validate runs candidate text through a declarative invariant ruleset
locally, without contacting identityd.

Text is taken from --text, from --file, or from stdin. Exit code 0
means the text passed every invariant, 1 means violations were found,
2 means the check itself could not run.`,
	Example: `  nexusid validate --rules rules.yaml --text "some candidate output"
  cat draft.txt | nexusid validate --rules rules.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runValidate())
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateRules, "rules", "", "path to a YAML invariant ruleset (required)")
	validateCmd.Flags().StringVar(&validateText, "text", "", "candidate text to validate")
	validateCmd.Flags().StringVar(&validateFile, "file", "", "file containing candidate text")
	_ = validateCmd.MarkFlagRequired("rules")
}

func runValidate() int {
	text, err := readCandidateText()
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("error: %v", err)))
		return ValidateExitError
	}

	invariants, err := identity.LoadRuleset(validateRules)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("error: %v", err)))
		return ValidateExitError
	}

	kernel, err := identity.NewKernel(identity.KernelSpec{
		Name:               "validation",
		Role:               "ruleset check",
		CoreValues:         []string{"governance"},
		CommunicationStyle: "n/a",
		Invariants:         invariants,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("error: %v", err)))
		return ValidateExitError
	}

	engine := identity.NewInvariantEngine(nil)
	isValid, violations := engine.Evaluate(kernel, text)
	if isValid {
		fmt.Println(styleSuccess.Render(fmt.Sprintf("PASS: %d invariants satisfied", len(invariants))))
		return ValidateExitSuccess
	}

	fmt.Println(styleError.Render(fmt.Sprintf("FAIL: %d violation(s)", len(violations))))
	for _, v := range violations {
		line := fmt.Sprintf("  [%s] %s", v.RuleID, v.Message)
		if v.IsCrash {
			fmt.Println(styleError.Render(line))
		} else {
			fmt.Println(styleWarning.Render(line))
		}
	}
	return ValidateExitViolation
}

// readCandidateText resolves the candidate text from flags or stdin.
func readCandidateText() (string, error) {
	switch {
	case validateText != "":
		return validateText, nil
	case validateFile != "":
		data, err := os.ReadFile(validateFile)
		if err != nil {
			return "", fmt.Errorf("read candidate file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}
