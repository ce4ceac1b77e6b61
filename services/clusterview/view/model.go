// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package view turns view queries into laid-out visible cuts.
//
// A Model bundles the read-only state loaded at startup: the dendrogram,
// the MDL scorer and the budget model. An Engine answers queries against a
// Model through a view cache.
package view

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/clusterview/services/clusterview/budget"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/layout"
	"github.com/AleutianAI/clusterview/services/clusterview/mdl"
)

// ErrNilDendrogram indicates NewModel was called without a tree.
var ErrNilDendrogram = errors.New("view: dendrogram must not be nil")

// ModelConfig holds the tunables of the view model.
type ModelConfig struct {
	Budget budget.Config
	MDL    mdl.Config
	Layout layout.Options
}

// DefaultModelConfig returns the standard tunables.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Budget: budget.DefaultConfig(),
		MDL:    mdl.DefaultConfig(),
		Layout: layout.DefaultOptions(),
	}
}

// Model is the read-only state shared by every request.
//
// Thread Safety: Immutable after NewModel returns.
type Model struct {
	d       *dendrogram.Dendrogram
	scorer  *mdl.Scorer
	budget  budget.Config
	layout  layout.Options
	entropy float64
}

// NewModel validates cfg and precomputes the cluster entropy estimate.
//
// Description:
//
//	The entropy fed to the budget calculator is estimated once from the
//	size distribution of the classic top-k cut, where k is the base
//	working-memory capacity. It depends only on the tree, so it is
//	constant for the life of the model.
//
// Inputs:
//
//	d - The loaded dendrogram. Must not be nil.
//	cfg - Tunables. Layout.Init is ignored.
//
// Outputs:
//
//	*Model - The model.
//	error - Non-nil if d is nil or cfg is invalid.
func NewModel(d *dendrogram.Dendrogram, cfg ModelConfig) (*Model, error) {
	if d == nil {
		return nil, ErrNilDendrogram
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("view: %w", err)
	}
	scorer, err := mdl.New(cfg.MDL)
	if err != nil {
		return nil, fmt.Errorf("view: %w", err)
	}

	opts := cfg.Layout
	opts.Init = nil

	k := int(math.Round(math.Exp2(cfg.Budget.MillerBits + cfg.Budget.SpatialBonus)))
	top := d.TopCut(k)
	sizes := make([]int, len(top))
	for i, n := range top {
		sizes[i] = n.Size
	}

	return &Model{
		d:       d,
		scorer:  scorer,
		budget:  cfg.Budget,
		layout:  opts,
		entropy: budget.EntropyEstimate(sizes),
	}, nil
}

// Dendrogram returns the tree.
func (m *Model) Dendrogram() *dendrogram.Dendrogram {
	return m.d
}

// Scorer returns the MDL scorer.
func (m *Model) Scorer() *mdl.Scorer {
	return m.scorer
}

// Entropy returns the precomputed cluster entropy estimate.
func (m *Model) Entropy() float64 {
	return m.entropy
}

// Budget resolves a preference against the model.
func (m *Model) Budget(preference float64) budget.Budget {
	return m.budget.Resolve(preference, m.d.MemberCount(), m.entropy)
}
