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
	"errors"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/mdl"
)

// ExpandPreview tells the UI whether a cluster can be expanded right now.
type ExpandPreview struct {
	ID        string  `json:"id"`
	CanExpand bool    `json:"can_expand"`
	Reason    *string `json:"reason"`

	// ChildCount is 2 for internal nodes and 0 for leaves.
	ChildCount int `json:"child_count"`

	// Informative reports whether the MDL scorer would adopt the split.
	// Expansion is not gated on it.
	Informative bool `json:"informative"`

	// GainBits is the description length saved by the split.
	GainBits float64 `json:"gain_bits"`
}

// CollapsePreview tells the UI whether a cluster can be folded into its parent.
type CollapsePreview struct {
	ID          string  `json:"id"`
	CanCollapse bool    `json:"can_collapse"`
	Reason      *string `json:"reason"`

	// SiblingIDs lists the other visible clusters the collapse would absorb,
	// in leaf order.
	SiblingIDs []string `json:"sibling_ids"`

	// ParentID is the cluster that would replace them. Empty for the root.
	ParentID string `json:"parent_id"`
}

// PreviewExpand evaluates Expand(id) without changing the cut.
//
// Outputs:
//
//	ExpandPreview - The preview. Reason is nil when CanExpand is true.
//	error - *NotFoundError for unknown ids.
func (c *Cut) PreviewExpand(scorer *mdl.Scorer, id string) (ExpandPreview, error) {
	n, err := c.lookup(id)
	if err != nil {
		return ExpandPreview{}, err
	}

	p := ExpandPreview{ID: id}
	if !n.IsLeaf() {
		left, right := c.d.Children(n)
		p.ChildCount = 2
		p.Informative = scorer.ShouldSplit(n, left, right)
		p.GainBits = scorer.Gain(n, left, right)
	}

	if err := c.Clone().expand(n); err != nil {
		reason := reasonOf(err)
		p.Reason = &reason
		return p, nil
	}
	p.CanExpand = true
	return p, nil
}

// PreviewCollapse evaluates collapsing id into its parent without changing
// the cut.
//
// Outputs:
//
//	CollapsePreview - The preview. Reason is nil when CanCollapse is true.
//	error - *NotFoundError for unknown ids.
func (c *Cut) PreviewCollapse(id string) (CollapsePreview, error) {
	n, err := c.lookup(id)
	if err != nil {
		return CollapsePreview{}, err
	}

	p := CollapsePreview{ID: id, SiblingIDs: []string{}}
	if parent := c.d.ParentOf(n); parent != nil {
		p.ParentID = parent.ID
		if c.IsVisible(n) {
			for _, s := range c.under(parent) {
				if s.Index != n.Index {
					p.SiblingIDs = append(p.SiblingIDs, s.ID)
				}
			}
		}
	}

	if _, err := c.collapseTarget([]*dendrogram.Node{n}); err != nil {
		reason := reasonOf(err)
		p.Reason = &reason
		return p, nil
	}
	p.CanCollapse = true
	return p, nil
}

func reasonOf(err error) string {
	var inv *InvalidOperationError
	var be *BudgetExceededError
	switch {
	case errors.As(err, &inv):
		return inv.Reason
	case errors.As(err, &be):
		return be.Reason
	default:
		return err.Error()
	}
}
