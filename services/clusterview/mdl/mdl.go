// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mdl scores dendrogram splits by minimum description length.
//
// A node is described by its centroid plus every member's Gaussian
// deviation from that centroid. A split is informative when describing the
// two children, plus a penalty for the extra model, costs fewer bits than
// describing the parent alone.
package mdl

import (
	"fmt"
	"math"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
)

// Defaults for the description length model.
const (
	// DefaultCentroidBitsPerDim is the fixed cost of one centroid
	// coordinate. Centroids live on a unit-normalised sphere so a constant
	// per-dimension cost is enough.
	DefaultCentroidBitsPerDim = 16.0

	// DefaultPrecision is the quantisation step for member coordinates.
	// Gaussian code lengths are relative to it.
	DefaultPrecision = 1e-3

	// DefaultComplexityPenalty scales the per-split model cost in bits.
	DefaultComplexityPenalty = 1.0
)

// twoPiE is 2πe, the constant in the Gaussian differential entropy.
var twoPiE = 2 * math.Pi * math.E

// Config holds the scorer parameters.
type Config struct {
	// ComplexityPenalty multiplies log2(2), the bits needed to say which of
	// two children a member belongs to.
	ComplexityPenalty float64 `yaml:"complexity_penalty" json:"complexity_penalty" validate:"gte=0"`

	// CentroidBitsPerDim is the cost of one centroid coordinate.
	CentroidBitsPerDim float64 `yaml:"centroid_bits_per_dim" json:"centroid_bits_per_dim" validate:"gte=0"`

	// Precision is the coordinate quantisation step. Must be positive.
	Precision float64 `yaml:"precision" json:"precision" validate:"gt=0"`
}

// DefaultConfig returns the standard scorer parameters.
func DefaultConfig() Config {
	return Config{
		ComplexityPenalty:  DefaultComplexityPenalty,
		CentroidBitsPerDim: DefaultCentroidBitsPerDim,
		Precision:          DefaultPrecision,
	}
}

// Validate rejects parameters that would produce NaN code lengths.
func (c Config) Validate() error {
	if !(c.ComplexityPenalty >= 0) || math.IsInf(c.ComplexityPenalty, 0) {
		return fmt.Errorf("mdl: complexity_penalty must be non-negative and finite, got %v", c.ComplexityPenalty)
	}
	if !(c.CentroidBitsPerDim >= 0) || math.IsInf(c.CentroidBitsPerDim, 0) {
		return fmt.Errorf("mdl: centroid_bits_per_dim must be non-negative and finite, got %v", c.CentroidBitsPerDim)
	}
	if !(c.Precision > 0) || math.IsInf(c.Precision, 0) {
		return fmt.Errorf("mdl: precision must be positive and finite, got %v", c.Precision)
	}
	return nil
}

// Scorer computes description lengths and split decisions.
//
// Thread Safety: Immutable, safe for concurrent use.
type Scorer struct {
	cfg Config

	// logPrecSq is log2(precision²), hoisted out of the per-dimension loop.
	logPrecSq float64
}

// New creates a scorer. It returns an error if cfg is invalid.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:       cfg,
		logPrecSq: 2 * math.Log2(cfg.Precision),
	}, nil
}

// Default returns a scorer with DefaultConfig.
func Default() *Scorer {
	s, _ := New(DefaultConfig())
	return s
}

// Config returns the scorer parameters.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Describe returns the description length of n in bits.
//
// Description:
//
//	bits = CentroidBitsPerDim*d + Σ_dims size * max(0, 0.5*log2(2πe·var/precision²))
//
//	Dimensions with non-positive or non-finite variance contribute no
//	member bits. The per-member cost of each dimension is floored at 0, so
//	spread below precision²/(2πe) is free to encode. The precision²
//	divisor otherwise cancels between a parent and its children. A node with no members or no variance in any dimension
//	has no compressible structure and describes as 0.
//
// Inputs:
//
//	n - The node. Nil describes as 0.
//
// Outputs:
//
//	float64 - Description length in bits, >= 0.
//
// Thread Safety: Pure function of n and the config.
func (s *Scorer) Describe(n *dendrogram.Node) float64 {
	if n == nil || n.Size <= 0 {
		return 0
	}

	size := float64(n.Size)
	memberBits := 0.0
	spread := false
	for _, v := range n.Variance {
		if !(v > 0) || math.IsInf(v, 0) {
			continue
		}
		spread = true
		perMember := 0.5 * (math.Log2(twoPiE*v) - s.logPrecSq)
		if perMember > 0 {
			memberBits += size * perMember
		}
	}
	if !spread {
		return 0
	}
	return s.cfg.CentroidBitsPerDim*float64(len(n.Centroid)) + memberBits
}

// ShouldSplit reports whether replacing parent by left and right compresses
// the data, using the configured complexity penalty.
func (s *Scorer) ShouldSplit(parent, left, right *dendrogram.Node) bool {
	return s.ShouldSplitWithPenalty(parent, left, right, s.cfg.ComplexityPenalty)
}

// ShouldSplitWithPenalty reports whether
//
//	Describe(left) + Describe(right) + penalty*log2(2) < Describe(parent).
//
// A nil child means there is nothing to split into and returns false.
func (s *Scorer) ShouldSplitWithPenalty(parent, left, right *dendrogram.Node, penalty float64) bool {
	if parent == nil || left == nil || right == nil {
		return false
	}
	return s.Describe(left)+s.Describe(right)+penalty*math.Log2(2) < s.Describe(parent)
}

// Gain returns the bits saved by splitting parent, net of the configured
// penalty. Positive gain means ShouldSplit is true.
func (s *Scorer) Gain(parent, left, right *dendrogram.Node) float64 {
	if parent == nil || left == nil || right == nil {
		return 0
	}
	return s.Describe(parent) - s.Describe(left) - s.Describe(right) - s.cfg.ComplexityPenalty
}
