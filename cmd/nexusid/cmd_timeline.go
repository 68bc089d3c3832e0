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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// apiClient for timeline commands. Governance calls are small and
// local; a short timeout keeps a dead daemon from hanging the CLI.
var apiClient = &http.Client{Timeout: 30 * time.Second}

// snapshotEnvelope matches the daemon's {"snapshot": ...} responses.
type snapshotEnvelope struct {
	Snapshot snapshotView `json:"snapshot"`
}

// historyEnvelope matches the daemon's history response.
type historyEnvelope struct {
	Key       string         `json:"key"`
	Snapshots []snapshotView `json:"snapshots"`
	Count     int            `json:"count"`
}

// errorEnvelope matches the daemon's {"error": ...} responses.
type errorEnvelope struct {
	Error string `json:"error"`
}

// -----------------------------------------------------------------------------
// commit
// -----------------------------------------------------------------------------

var (
	commitRules      string
	commitName       string
	commitRole       string
	commitStyle      string
	commitValues     []string
	commitDomains    []string
	commitReflection string
)

var commitCmd = &cobra.Command{
	Use:   "commit <key>",
	Short: "Commit a new identity snapshot for a key",
	Args:  cobra.ExactArgs(1),
	Example: `  nexusid commit alice --rules rules.yaml \
      --name "Research Aide" --role "literature assistant" \
      --values honesty --values rigor \
      --reflection "tightened citation invariants"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var invariants []map[string]string
		if commitRules != "" {
			specs, err := identity.LoadRuleset(commitRules)
			if err != nil {
				return err
			}
			for _, spec := range specs {
				invariants = append(invariants, declarativeWire(spec))
			}
		}

		body := map[string]any{
			"kernel": map[string]any{
				"name":                commitName,
				"role":                commitRole,
				"core_values":         commitValues,
				"communication_style": commitStyle,
				"expertise_domains":   commitDomains,
				"invariants":          invariants,
			},
			"reflection": commitReflection,
		}
		var resp snapshotEnvelope
		url := fmt.Sprintf("%s/v1/identities/%s/snapshots", apiBaseURL(), args[0])
		if err := postJSON(url, body, &resp); err != nil {
			return err
		}
		fmt.Println(renderSnapshot(resp.Snapshot))
		return nil
	},
}

// declarativeWire converts a loaded spec back to its wire form. Only
// declarative rules exist in ruleset files, so kind is implied.
func declarativeWire(spec identity.InvariantSpec) map[string]string {
	return map[string]string{
		"id":      spec.ID(),
		"type":    string(spec.Type()),
		"pattern": spec.Pattern(),
	}
}

// -----------------------------------------------------------------------------
// approve
// -----------------------------------------------------------------------------

var approveStatus string

var approveCmd = &cobra.Command{
	Use:   "approve <key> <version>",
	Short: "Advance a snapshot's approval status",
	Args:  cobra.ExactArgs(2),
	Example: `  nexusid approve alice 3 --status reviewed
  nexusid approve alice 3 --status user_approved`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s/v1/identities/%s/snapshots/%s/status",
			apiBaseURL(), args[0], args[1])
		var resp snapshotEnvelope
		if err := patchJSON(url, map[string]string{"status": approveStatus}, &resp); err != nil {
			return err
		}
		fmt.Println(renderSnapshot(resp.Snapshot))
		return nil
	},
}

// -----------------------------------------------------------------------------
// history / latest / rollback
// -----------------------------------------------------------------------------

var historyCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "Show the retained snapshot timeline for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp historyEnvelope
		url := fmt.Sprintf("%s/v1/identities/%s/history", apiBaseURL(), args[0])
		if err := getJSON(url, &resp); err != nil {
			return err
		}
		fmt.Println(styleTitle.Render(fmt.Sprintf("timeline for %s (%d retained)", resp.Key, resp.Count)))
		fmt.Println(renderTimeline(resp.Snapshots))
		return nil
	},
}

var latestApproved bool

var latestCmd = &cobra.Command{
	Use:   "latest <key>",
	Short: "Show the latest (or latest approved) snapshot for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := "latest"
		if latestApproved {
			endpoint = "latest-approved"
		}
		var resp snapshotEnvelope
		url := fmt.Sprintf("%s/v1/identities/%s/%s", apiBaseURL(), args[0], endpoint)
		if err := getJSON(url, &resp); err != nil {
			return err
		}
		fmt.Println(renderSnapshot(resp.Snapshot))
		return nil
	},
}

var rollbackReason string

var rollbackCmd = &cobra.Command{
	Use:   "rollback <key>",
	Short: "Force a key back to the skeleton identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp snapshotEnvelope
		url := fmt.Sprintf("%s/v1/identities/%s/rollback", apiBaseURL(), args[0])
		if err := postJSON(url, map[string]string{"reason": rollbackReason}, &resp); err != nil {
			return err
		}
		fmt.Println(styleWarning.Render("identity rolled back to skeleton"))
		fmt.Println(renderSnapshot(resp.Snapshot))
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitRules, "rules", "", "YAML invariant ruleset for the new kernel")
	commitCmd.Flags().StringVar(&commitName, "name", "", "kernel name (required)")
	commitCmd.Flags().StringVar(&commitRole, "role", "", "kernel role (required)")
	commitCmd.Flags().StringVar(&commitStyle, "style", "neutral", "communication style")
	commitCmd.Flags().StringArrayVar(&commitValues, "values", nil, "core values (repeatable, required)")
	commitCmd.Flags().StringArrayVar(&commitDomains, "domains", nil, "expertise domains (repeatable)")
	commitCmd.Flags().StringVar(&commitReflection, "reflection", "", "why this snapshot exists (required)")
	_ = commitCmd.MarkFlagRequired("name")
	_ = commitCmd.MarkFlagRequired("role")
	_ = commitCmd.MarkFlagRequired("values")
	_ = commitCmd.MarkFlagRequired("reflection")

	approveCmd.Flags().StringVar(&approveStatus, "status", "", "target status: reviewed or user_approved (required)")
	_ = approveCmd.MarkFlagRequired("status")

	latestCmd.Flags().BoolVar(&latestApproved, "approved", false, "return the latest approved snapshot instead")

	rollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "why the rollback is needed (required)")
	_ = rollbackCmd.MarkFlagRequired("reason")
}

// -----------------------------------------------------------------------------
// HTTP helpers
// -----------------------------------------------------------------------------

func postJSON(url string, body, out any) error {
	return doJSON(http.MethodPost, url, body, out)
}

func patchJSON(url string, body, out any) error {
	return doJSON(http.MethodPatch, url, body, out)
}

func getJSON(url string, out any) error {
	return doJSON(http.MethodGet, url, nil, out)
}

func doJSON(method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("is identityd running at %s? %w", apiBaseURL(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr errorEnvelope
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			fmt.Fprintln(os.Stderr, styleError.Render(apiErr.Error))
			return fmt.Errorf("request failed (%d)", resp.StatusCode)
		}
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
