// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package view

import (
	"time"

	"github.com/AleutianAI/clusterview/services/clusterview/cut"
)

// Query is one view request.
type Query struct {
	// Preference is the desired level of detail in [0, 1].
	Preference float64 `json:"budget_preference"`

	// ExpandedIDs are clusters to show as their children.
	ExpandedIDs []string `json:"expanded_ids"`

	// CollapseGroup is an optional sibling group to fold into its parent.
	CollapseGroup []string `json:"collapse_group,omitempty"`

	// Affinity blends tree distance into the layout, in [0, 1]. Zero lays
	// out by embedding distance alone.
	Affinity float64 `json:"affinity,omitempty"`

	// IncludeMembers lists member ids on every cluster instead of only
	// the count.
	IncludeMembers bool `json:"include_members,omitempty"`
}

// Cluster is one visible cluster.
type Cluster struct {
	ID          string     `json:"id"`
	Size        int        `json:"size"`
	Height      float64    `json:"height"`
	Centroid    []float64  `json:"centroid"`
	IsLeaf      bool       `json:"is_leaf"`
	ChildrenIDs []string   `json:"children_ids"`
	ParentID    *string    `json:"parent_id"`
	MemberCount int        `json:"member_count"`
	MemberIDs   []string   `json:"member_ids,omitempty"`
	Position    [2]float64 `json:"position"`
}

// Edge joins two visible clusters that share a parent.
type Edge [2]string

// Meta describes how the view was produced.
type Meta struct {
	Budget          int             `json:"budget"`
	BudgetRemaining int             `json:"budget_remaining"`
	ExpandedIDs     []string        `json:"expanded_ids"`
	Rejections      []cut.Rejection `json:"rejections"`
	Stress          float64         `json:"stress"`
	Iterations      int             `json:"iterations"`
}

// View is a computed visible cut with its layout.
//
// Description:
//
//	Views are cached and shared between requests, so they must never be
//	modified after construction. CreatedAt is diagnostic only and is not
//	serialized, which keeps a cached view byte-identical to a fresh one.
type View struct {
	Key       string    `json:"key"`
	Clusters  []Cluster `json:"clusters"`
	Edges     []Edge    `json:"edges"`
	Meta      Meta      `json:"meta"`
	CreatedAt time.Time `json:"-"`
}

// NodeInfo describes one dendrogram node independent of any cut.
type NodeInfo struct {
	ID          string    `json:"id"`
	Size        int       `json:"size"`
	Height      float64   `json:"height"`
	Depth       int       `json:"depth"`
	Centroid    []float64 `json:"centroid"`
	IsLeaf      bool      `json:"is_leaf"`
	ChildrenIDs []string  `json:"children_ids"`
	ParentID    *string   `json:"parent_id"`

	// DescriptionBits is the MDL description length of the node.
	DescriptionBits float64 `json:"description_bits"`

	// SplitGain is the bits saved by showing the children instead.
	SplitGain float64 `json:"split_gain"`
}
