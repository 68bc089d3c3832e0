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
	"os"

	"github.com/spf13/cobra"
)

// defaultAPIURL is where a locally running identityd listens.
const defaultAPIURL = "http://localhost:12310"

// apiBaseURL resolves the daemon address.
func apiBaseURL() string {
	if url := os.Getenv("NEXUS_API_URL"); url != "" {
		return url
	}
	return defaultAPIURL
}

var rootCmd = &cobra.Command{
	Use:   "nexusid",
	Short: "Operate the Nexus identity governance plane",
	Long: `nexusid manages agent identity kernels, their invariant rulesets,
and the versioned snapshot timelines that govern which identity
configuration is authorized.

Validation runs locally; timeline commands require a running identityd
(see NEXUS_API_URL).`,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(rollbackCmd)
}
