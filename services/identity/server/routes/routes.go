// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
	"github.com/NexusMindAI/NexusIdentity/services/identity/server/handlers"
)

// SetupRoutes registers the identity governance API on router.
func SetupRoutes(router *gin.Engine, mgr *identity.IdentityManager,
	engine *identity.InvariantEngine) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/validate", handlers.ValidateText(engine, mgr))

		identities := v1.Group("/identities/:key")
		{
			identities.POST("/snapshots", handlers.CommitSnapshot(mgr))
			identities.PATCH("/snapshots/:version/status", handlers.SetSnapshotStatus(mgr))
			identities.GET("/latest", handlers.LatestSnapshot(mgr))
			identities.GET("/latest-approved", handlers.LatestApprovedSnapshot(mgr))
			identities.GET("/history", handlers.TimelineHistory(mgr))
			identities.POST("/rollback", handlers.RollbackIdentity(mgr))
		}
	}
}
