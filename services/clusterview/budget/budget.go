// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget maps a user preference to the number of clusters the view
// may show at once.
//
// The model is a working-memory heuristic: a base capacity of roughly 23
// items (Miller's 7 plus a bonus for spatial layouts) shrinks as candidate
// clusters become harder to tell apart and grows with the user's preference
// and, slightly, with graph size.
package budget

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Default model constants.
const (
	// DefaultSpatialBonus is the extra capacity, in bits, granted to items
	// laid out in 2D rather than listed.
	DefaultSpatialBonus = 1.7

	// DefaultFloor is the smallest budget ever returned.
	DefaultFloor = 4

	// DefaultCeiling is the largest budget ever returned.
	DefaultCeiling = 200

	// sizeReference is the graph size at which the size nudge is neutral.
	sizeReference = 100
)

// DefaultMillerBits is log2(7), the classic working-memory span in bits.
var DefaultMillerBits = math.Log2(7)

// Config holds the budget model parameters.
type Config struct {
	// MillerBits is the base working-memory span in bits.
	MillerBits float64 `yaml:"miller_bits" json:"miller_bits" validate:"gt=0"`

	// SpatialBonus adds bits of capacity for spatial layouts.
	SpatialBonus float64 `yaml:"spatial_bonus" json:"spatial_bonus" validate:"gte=0"`

	// Floor and Ceiling clamp the resolved budget.
	Floor   int `yaml:"floor" json:"floor" validate:"gte=1"`
	Ceiling int `yaml:"ceiling" json:"ceiling" validate:"gtefield=Floor"`
}

// DefaultConfig returns the standard model: base ≈ 22.7 items, clamped to [4, 200].
func DefaultConfig() Config {
	return Config{
		MillerBits:   DefaultMillerBits,
		SpatialBonus: DefaultSpatialBonus,
		Floor:        DefaultFloor,
		Ceiling:      DefaultCeiling,
	}
}

// Validate checks the config for values that would make Compute meaningless.
func (c Config) Validate() error {
	if !(c.MillerBits > 0) || math.IsInf(c.MillerBits, 0) {
		return fmt.Errorf("budget: miller_bits must be positive and finite, got %v", c.MillerBits)
	}
	if !(c.SpatialBonus >= 0) || math.IsInf(c.SpatialBonus, 0) {
		return fmt.Errorf("budget: spatial_bonus must be non-negative and finite, got %v", c.SpatialBonus)
	}
	if c.Floor < 1 {
		return fmt.Errorf("budget: floor must be at least 1, got %d", c.Floor)
	}
	if c.Ceiling < c.Floor {
		return fmt.Errorf("budget: ceiling %d below floor %d", c.Ceiling, c.Floor)
	}
	return nil
}

// Budget is a resolved per-request budget.
type Budget struct {
	// Preference is the clamped user preference in [0, 1].
	Preference float64 `json:"preference"`

	// ResolvedCount is the maximum number of visible clusters.
	ResolvedCount int `json:"resolved_count"`

	// Remaining is ResolvedCount minus the clusters in use. Set by the caller
	// once the cut is known.
	Remaining int `json:"remaining"`
}

// WithUsed returns a copy of b with Remaining set for used visible clusters.
// Remaining never goes below zero.
func (b Budget) WithUsed(used int) Budget {
	b.Remaining = max(0, b.ResolvedCount-used)
	return b
}

// Compute maps a preference to a node-count budget using DefaultConfig.
func Compute(preference float64, nodeCount int, clusterEntropy float64) int {
	return DefaultConfig().Compute(preference, nodeCount, clusterEntropy)
}

// Compute maps a preference to a node-count budget.
//
// Description:
//
//	base = 2^(MillerBits+SpatialBonus) / entropy
//	count = base * (0.5 + 1.5*preference) * (1 + 0.1*log10(nodeCount/100))
//
//	The size nudge only applies above 100 nodes so small graphs are never
//	penalised. The result is rounded and clamped to [Floor, Ceiling].
//
// Inputs:
//
//	preference - Desired detail in [0, 1]. Out-of-range values are clamped,
//	             NaN is treated as 0.
//	nodeCount - Number of graph nodes covered by the dendrogram.
//	clusterEntropy - Difficulty of the candidate clusters, >= 1. Values
//	                 below 1, NaN and Inf are treated as 1.
//
// Outputs:
//
//	int - The budget. Always within [Floor, Ceiling].
//
// Thread Safety: Pure function, safe for concurrent use.
func (c Config) Compute(preference float64, nodeCount int, clusterEntropy float64) int {
	p := ClampPreference(preference)

	entropy := clusterEntropy
	if math.IsNaN(entropy) || math.IsInf(entropy, 0) || entropy < 1 {
		entropy = 1
	}

	count := math.Exp2(c.MillerBits+c.SpatialBonus) / entropy
	count *= 0.5 + 1.5*p
	if nodeCount > sizeReference {
		count *= 1 + 0.1*math.Log10(float64(nodeCount)/sizeReference)
	}

	n := int(math.Round(count))
	return min(max(n, c.Floor), c.Ceiling)
}

// Resolve computes the budget and wraps it with the clamped preference.
// Remaining starts equal to ResolvedCount.
func (c Config) Resolve(preference float64, nodeCount int, clusterEntropy float64) Budget {
	n := c.Compute(preference, nodeCount, clusterEntropy)
	return Budget{
		Preference:    ClampPreference(preference),
		ResolvedCount: n,
		Remaining:     n,
	}
}

// ClampPreference clamps p to [0, 1], mapping NaN to 0.
func ClampPreference(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// EntropyEstimate scores how hard a set of candidate clusters is to parse.
//
// Description:
//
//	Returns 1 + H/log2(k), where H is the Shannon entropy (bits) of the
//	cluster size distribution and k the number of non-empty clusters. A
//	single dominant cluster scores close to 1; k equally sized clusters
//	score 2.
//
// Inputs:
//
//	sizes - Cluster sizes. Non-positive entries are ignored.
//
// Outputs:
//
//	float64 - The estimate in [1, 2]. Exactly 1 for fewer than two clusters.
func EntropyEstimate(sizes []int) float64 {
	total := 0
	k := 0
	for _, s := range sizes {
		if s > 0 {
			total += s
			k++
		}
	}
	if k < 2 {
		return 1
	}

	p := make([]float64, 0, k)
	for _, s := range sizes {
		if s > 0 {
			p = append(p, float64(s)/float64(total))
		}
	}
	// stat.Entropy is in nats.
	h := stat.Entropy(p) / math.Ln2
	return 1 + h/math.Log2(float64(k))
}
