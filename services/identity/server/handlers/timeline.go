// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// LatestSnapshot handles GET /v1/identities/:key/latest.
//
// This endpoint never fails: the worst case is the skeleton identity
// under SYSTEM_ROLLBACK.
func LatestSnapshot(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		snap := mgr.Latest(c.Request.Context(), key)
		c.JSON(http.StatusOK, gin.H{"snapshot": snap})
	}
}

// LatestApprovedSnapshot handles GET /v1/identities/:key/latest-approved.
func LatestApprovedSnapshot(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		snap := mgr.LatestApproved(c.Request.Context(), key)
		c.JSON(http.StatusOK, gin.H{"snapshot": snap})
	}
}

// TimelineHistory handles GET /v1/identities/:key/history.
//
// Returns the retained window only; snapshots dropped by rotation are
// gone from the read model, though their version numbers are never
// reused.
func TimelineHistory(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		history := mgr.History(c.Request.Context(), key)
		c.JSON(http.StatusOK, gin.H{
			"key":       key,
			"snapshots": history,
			"count":     len(history),
		})
	}
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
