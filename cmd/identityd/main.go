// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command identityd starts the Nexus identity governance HTTP service.
//
// It reads configuration from environment variables and starts the
// server.
//
// # Environment Variables
//
//   - IDENTITY_PORT: HTTP server port (default: 12310)
//   - IDENTITY_DATA_DIR: durable timeline storage directory (default:
//     empty, in-memory timelines)
//   - IDENTITY_MAX_RETAINED: per-key snapshot rotation limit (default: 20)
//   - IDENTITY_APPROVAL_POLICY: require_user_approved | accept_reviewed
//     (default: require_user_approved)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector address
//     (default: empty, tracing disabled)
//
// # Usage
//
//	# Build
//	go build -o identityd ./cmd/identityd
//
//	# Run with durable storage
//	IDENTITY_DATA_DIR=/var/lib/nexus/identity ./identityd
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/NexusMindAI/NexusIdentity/pkg/logging"
	"github.com/NexusMindAI/NexusIdentity/services/identity"
	"github.com/NexusMindAI/NexusIdentity/services/identity/server"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "identityd",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := server.Config{
		Port:         getEnvInt("IDENTITY_PORT", 12310),
		DataDir:      os.Getenv("IDENTITY_DATA_DIR"),
		MaxRetained:  getEnvInt("IDENTITY_MAX_RETAINED", 20),
		Policy:       identity.ApprovalPolicy(getEnvString("IDENTITY_APPROVAL_POLICY", string(identity.RequireUserApproved))),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Logger:       logger.Slog(),
	}

	slog.Info("starting identity service",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"max_retained", cfg.MaxRetained,
		"approval_policy", string(cfg.Policy),
	)

	svc, err := server.New(cfg)
	if err != nil {
		log.Fatalf("failed to create identity service: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("identity service error: %v", err)
	}
}

// getEnvString returns the environment variable or a default.
func getEnvString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as int, or a
// default when unset or unparseable.
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default",
			"key", key, "value", value, "default", fallback)
		return fallback
	}
	return parsed
}
