// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the HTTP handlers for the identity
// governance API. Handlers are thin: they translate between JSON and
// the identity package's types; all governance decisions live in the
// manager and engine.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NexusMindAI/NexusIdentity/services/identity"
)

// kernelRequest is the JSON construction input for a kernel. Only
// declarative invariants can cross the API boundary; predicate
// invariants are process-local capabilities registered by embedding
// callers, not remote ones.
type kernelRequest struct {
	Name               string             `json:"name"`
	Role               string             `json:"role"`
	CoreValues         []string           `json:"core_values"`
	CommunicationStyle string             `json:"communication_style"`
	ExpertiseDomains   []string           `json:"expertise_domains"`
	Invariants         []invariantRequest `json:"invariants"`
}

type invariantRequest struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

// buildKernel converts the request into a validated kernel.
func (r kernelRequest) buildKernel() (*identity.Kernel, error) {
	specs := make([]identity.InvariantSpec, 0, len(r.Invariants))
	for _, inv := range r.Invariants {
		specs = append(specs, identity.Declarative(inv.ID, identity.RuleType(inv.Type), inv.Pattern))
	}
	return identity.NewKernel(identity.KernelSpec{
		Name:               r.Name,
		Role:               r.Role,
		CoreValues:         r.CoreValues,
		CommunicationStyle: r.CommunicationStyle,
		ExpertiseDomains:   r.ExpertiseDomains,
		Invariants:         specs,
	})
}

// commitRequest is the body of POST /v1/identities/:key/snapshots.
type commitRequest struct {
	Kernel     kernelRequest `json:"kernel"`
	Reflection string        `json:"reflection"`
	Status     string        `json:"status"` // optional, defaults to auto
}

// statusRequest is the body of PATCH .../snapshots/:version/status.
type statusRequest struct {
	Status string `json:"status"`
}

// rollbackRequest is the body of POST /v1/identities/:key/rollback.
type rollbackRequest struct {
	Reason string `json:"reason"`
}

// CommitSnapshot handles POST /v1/identities/:key/snapshots.
func CommitSnapshot(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		var req commitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		kernel, err := req.Kernel.buildKernel()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		status := identity.ApprovalStatus(req.Status)
		snap, err := mgr.CommitNewSnapshot(c.Request.Context(), key, kernel, req.Reflection, status)
		if err != nil {
			writeManagerError(c, key, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"snapshot": snap})
	}
}

// SetSnapshotStatus handles PATCH /v1/identities/:key/snapshots/:version/status.
func SetSnapshotStatus(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		version, err := strconv.Atoi(c.Param("version"))
		if err != nil || version < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
			return
		}

		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		status, err := identity.ParseApprovalStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		snap, err := mgr.SetStatus(c.Request.Context(), key, version, status)
		if err != nil {
			writeManagerError(c, key, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"snapshot": snap})
	}
}

// RollbackIdentity handles POST /v1/identities/:key/rollback.
func RollbackIdentity(mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		var req rollbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason must not be empty"})
			return
		}

		snap := mgr.Rollback(c.Request.Context(), key, req.Reason)
		slog.Info("rollback requested via API", "key", key, "reason", req.Reason)
		c.JSON(http.StatusOK, gin.H{"snapshot": snap})
	}
}

// writeManagerError maps manager errors onto HTTP statuses.
func writeManagerError(c *gin.Context, key string, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrNilKernel),
		errors.Is(err, identity.ErrEmptyReflection),
		errors.Is(err, identity.ErrInvalidKernel),
		errors.Is(err, identity.ErrInvalidSpec):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("identity operation failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity operation failed"})
	}
}
