// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clusterview

import (
	"github.com/AleutianAI/clusterview/services/clusterview/cache"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
)

// DefaultPreference is used when a request omits budget_preference.
const DefaultPreference = 0.5

// MaxRequestIDs bounds expanded_ids and collapse_group.
const MaxRequestIDs = 4096

// ViewRequest is the body of POST /v1/clusterview/view.
//
// Out-of-range budget_preference and affinity values are clamped, not
// rejected.
type ViewRequest struct {
	// BudgetPreference is the desired level of detail in [0, 1].
	// Default: DefaultPreference.
	BudgetPreference *float64 `json:"budget_preference"`

	// ExpandedIDs are clusters to open.
	ExpandedIDs []string `json:"expanded_ids" validate:"max=4096,dive,required,cluster_id"`

	// CollapseGroup is an optional sibling group to fold into its parent.
	CollapseGroup []string `json:"collapse_group" validate:"max=4096,dive,required,cluster_id"`

	// Affinity blends tree distance into the layout, in [0, 1].
	Affinity float64 `json:"affinity"`

	// IncludeMembers lists member ids on every cluster.
	IncludeMembers bool `json:"include_members"`
}

// Query converts the request to an engine query.
func (r ViewRequest) Query() view.Query {
	pref := DefaultPreference
	if r.BudgetPreference != nil {
		pref = *r.BudgetPreference
	}
	return view.Query{
		Preference:     pref,
		ExpandedIDs:    r.ExpandedIDs,
		CollapseGroup:  r.CollapseGroup,
		Affinity:       r.Affinity,
		IncludeMembers: r.IncludeMembers,
	}
}

// PreviewRequest is the body of the preview endpoints: the current view
// state plus the node to evaluate.
type PreviewRequest struct {
	ViewRequest

	// ID is the node to preview.
	ID string `json:"id" validate:"required,cluster_id"`
}

// HealthResponse is the body of GET /v1/clusterview/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body of GET /v1/clusterview/ready.
type ReadyResponse struct {
	Ready bool `json:"ready"`

	// Artifact is the loaded dendrogram path.
	Artifact string `json:"artifact,omitempty"`

	// Nodes, Leaves and Members describe the loaded tree.
	Nodes   int `json:"nodes"`
	Leaves  int `json:"leaves"`
	Members int `json:"members"`

	// Entropy is the cluster entropy estimate fed to the budget model.
	Entropy float64 `json:"entropy"`

	// Cache reports view cache statistics.
	Cache cache.Stats `json:"cache"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
