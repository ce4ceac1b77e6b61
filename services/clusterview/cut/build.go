// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cut

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/mdl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ==============================================================================
// Metrics
// ==============================================================================

var (
	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clusterview_cut_rejections_total",
		Help: "Expand and collapse requests rejected, by code",
	}, []string{"code"})

	invariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clusterview_cut_invariant_violations_total",
		Help: "Visible cuts that failed the partition check",
	})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterview_cut_build_duration_seconds",
		Help:    "Visible cut construction time",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	visibleClusters = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clusterview_cut_visible_clusters",
		Help:    "Visible clusters per built cut",
		Buckets: []float64{1, 4, 8, 16, 32, 64, 128, 256},
	})
)

// ==============================================================================
// Types
// ==============================================================================

// Request describes one visible cut computation.
type Request struct {
	// Budget is the resolved maximum number of visible clusters.
	Budget int

	// ExpandedIDs are nodes to show as their children, applied top-down
	// from the root. Empty means the MDL default cut.
	ExpandedIDs []string

	// CollapseGroup, when non-empty, is a sibling group to replace by its
	// parent after expansions.
	CollapseGroup []string
}

// Rejection is a non-fatal refusal of one requested operation.
type Rejection struct {
	// ID is the node the operation targeted.
	ID string `json:"id"`

	// Code is CodeCannotExpand, CodeCannotCollapse or CodeBudgetExhausted.
	Code string `json:"code"`

	// Reason is the human-readable reason.
	Reason string `json:"reason"`
}

// Result is a built visible cut.
type Result struct {
	// Cut is the final visible cut.
	Cut *Cut

	// Expanded lists the requested expansions that were applied, in the
	// order they were applied.
	Expanded []string

	// Rejections lists requested operations that were refused. A refused
	// operation leaves the cut as it was before that operation.
	Rejections []Rejection
}

// Build computes the visible cut for a request.
//
// Description:
//
//	1. Resolves every requested id; an unknown id fails the request.
//	2. With no expansions, starts from the MDL-gated default cut. Otherwise
//	   the expansion set is the whole view state and the cut starts from
//	   the root.
//	3. Applies expansions parents first (depth ascending, then leaf
//	   order), so a child that is also requested is expanded after its
//	   parent. Requested nodes that are not visible (hidden under a
//	   cluster whose expansion was refused) are skipped. A leaf or an
//	   expansion past the budget is recorded as a rejection.
//	4. Applies the collapse group in leaf order, recording a rejection
//	   against the first offending node if it is invalid.
//	5. Verifies the partition.
//
// Inputs:
//
//	ctx - Context for tracing.
//	d - The dendrogram. Must not be nil.
//	scorer - The MDL scorer for the default cut. Must not be nil.
//	req - Budget and requested operations.
//
// Outputs:
//
//	*Result - The cut with applied operations and rejections.
//	error - *NotFoundError for unknown ids, *InvariantViolationError if the
//	        final cut is not a partition.
//
// Thread Safety: Safe for concurrent use; d and scorer are read-only.
func Build(ctx context.Context, d *dendrogram.Dendrogram, scorer *mdl.Scorer, req Request) (*Result, error) {
	_, span := otel.Tracer("clusterview").Start(ctx, "cut.Build")
	defer span.End()
	start := time.Now()

	span.SetAttributes(
		attribute.Int("budget", req.Budget),
		attribute.Int("expanded_ids", len(req.ExpandedIDs)),
		attribute.Int("collapse_group", len(req.CollapseGroup)),
	)

	expand, err := resolveAll(d, req.ExpandedIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown expand id")
		return nil, err
	}
	group, err := resolveAll(d, req.CollapseGroup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown collapse id")
		return nil, err
	}

	res := &Result{}
	if len(expand) == 0 {
		res.Cut = NewDefault(d, scorer, req.Budget)
		span.AddEvent("default_cut", trace.WithAttributes(attribute.Int("visible", res.Cut.Len())))
	} else {
		res.Cut = NewRoot(d, req.Budget)
	}

	sortTopDown(expand)
	for _, n := range expand {
		err := res.Cut.expand(n)
		var inv *InvalidOperationError
		switch {
		case err == nil:
			res.Expanded = append(res.Expanded, n.ID)
		case errors.As(err, &inv) && inv.Reason == ReasonNotVisible:
			// Under a cluster that stayed closed.
		default:
			res.reject(n.ID, err)
		}
	}

	if len(group) > 0 {
		if err := res.Cut.collapse(group); err != nil {
			res.reject(group[0].ID, err)
		}
	}

	if err := res.Cut.Verify(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invariant violation")
		return nil, err
	}

	buildDuration.Observe(time.Since(start).Seconds())
	visibleClusters.Observe(float64(res.Cut.Len()))
	span.SetAttributes(
		attribute.Int("visible", res.Cut.Len()),
		attribute.Int("rejections", len(res.Rejections)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// reject records a refused operation. The error must be one of the
// non-fatal types returned by Expand or Collapse.
func (r *Result) reject(id string, err error) {
	rej := Rejection{ID: id, Reason: err.Error()}

	var inv *InvalidOperationError
	var be *BudgetExceededError
	switch {
	case errors.As(err, &inv):
		rej.ID, rej.Code, rej.Reason = inv.ID, inv.Op, inv.Reason
	case errors.As(err, &be):
		rej.Code, rej.Reason = CodeBudgetExhausted, be.Reason
	}

	rejectionsTotal.WithLabelValues(rej.Code).Inc()
	r.Rejections = append(r.Rejections, rej)
}

// resolveAll looks up ids, deduplicating repeats.
func resolveAll(d *dendrogram.Dendrogram, ids []string) ([]*dendrogram.Node, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]*dendrogram.Node, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n, err := d.Node(id)
		if err != nil {
			return nil, &NotFoundError{ID: id}
		}
		out = append(out, n)
	}
	return out, nil
}
