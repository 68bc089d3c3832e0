// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command nexusid is the operator CLI for the identity governance
// service. Validation runs locally against a ruleset file; timeline
// operations talk to a running identityd instance over HTTP.
//
// # Environment Variables
//
//   - NEXUS_API_URL: identityd base URL (default: http://localhost:12310)
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
