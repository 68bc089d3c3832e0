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

// validateRequest is the body of POST /v1/validate. The caller may
// check text against an ad-hoc kernel, or against the stored latest
// kernel for a key by setting "key" instead of "kernel".
type validateRequest struct {
	Key    string         `json:"key"`
	Kernel *kernelRequest `json:"kernel"`
	Text   string         `json:"text"`
}

// validateResponse mirrors the engine's evaluate contract.
type validateResponse struct {
	IsValid    bool                 `json:"is_valid"`
	Violations []identity.Violation `json:"violations"`
}

// ValidateText handles POST /v1/validate.
func ValidateText(engine *identity.InvariantEngine, mgr *identity.IdentityManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var kernel *identity.Kernel
		switch {
		case req.Kernel != nil:
			k, err := req.Kernel.buildKernel()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			kernel = k
		case req.Key != "":
			kernel = mgr.Latest(c.Request.Context(), req.Key).Kernel()
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "either kernel or key is required"})
			return
		}

		isValid, violations := engine.Evaluate(kernel, req.Text)
		if violations == nil {
			violations = []identity.Violation{}
		}
		c.JSON(http.StatusOK, validateResponse{IsValid: isValid, Violations: violations})
	}
}
