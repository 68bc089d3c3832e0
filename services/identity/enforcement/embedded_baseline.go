// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file serves as the bridge between the build system and the runtime logic.
It utilizes the Go embed package to bake the baseline_invariants.yaml file
directly into the compiled binary, so the skeleton identity's rule floor is
immutable at runtime and travels with the executable.
*/

package enforcement

import (
	_ "embed"
)

// BaselineInvariants holds the raw byte content of 'baseline_invariants.yaml'.
//
// This variable is populated at compile-time using the Go 'embed' directive.
// Baking the ruleset into the binary guarantees the fail-safe floor cannot be
// tampered with on the host filesystem without recompiling the application.
//
// Usage:
//
//	specs, err := identity.ParseRuleset(enforcement.BaselineInvariants)
//
//go:embed baseline_invariants.yaml
var BaselineInvariants []byte
