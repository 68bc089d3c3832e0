// Copyright (C) 2025 NexusMind AI (engineering@nexusmind.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	// Note: identity keys are unbounded user identifiers, so no metric
	// carries the key as a label. Labels are limited to closed sets
	// (status names, boolean outcomes) to keep cardinality fixed.
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_commits_total",
		Help: "Snapshots committed, by initial approval status",
	}, []string{"status"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "identity_rollbacks_total",
		Help: "Fail-safe rollbacks to the skeleton identity",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_approval_transitions_total",
		Help: "Approval status transitions, by source and target status",
	}, []string{"from", "to"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "identity_snapshots_evicted_total",
		Help: "Snapshots dropped by rotation",
	})

	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_evaluations_total",
		Help: "Invariant evaluations, by validity of the result",
	}, []string{"valid"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "identity_evaluation_duration_seconds",
		Help:    "Time to evaluate a kernel's rule set against a text",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})
)

// observeEvaluation records one engine evaluation.
func observeEvaluation(d time.Duration, violations int) {
	evaluationsTotal.WithLabelValues(strconv.FormatBool(violations == 0)).Inc()
	evaluationDuration.Observe(d.Seconds())
}
