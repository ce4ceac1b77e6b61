// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_BaseCapacity(t *testing.T) {
	// base ≈ 22.74; preference 0 gives half, preference 1 gives double.
	assert.Equal(t, 11, Compute(0, 100, 1))
	assert.Equal(t, 23, Compute(1.0/3, 100, 1))
	assert.Equal(t, 45, Compute(1, 100, 1))
}

func TestCompute_EntropyShrinks(t *testing.T) {
	assert.Equal(t, 23, Compute(1, 100, 2))
	assert.Less(t, Compute(0.5, 100, 1.8), Compute(0.5, 100, 1.2))
}

func TestCompute_SizeNudge(t *testing.T) {
	// 100x the reference size adds 20%.
	assert.Equal(t, 55, Compute(1, 10_000, 1))
	// Small graphs are not penalised.
	assert.Equal(t, Compute(1, 100, 1), Compute(1, 3, 1))
	assert.Equal(t, Compute(1, 100, 1), Compute(1, 0, 1))
}

func TestCompute_Clamping(t *testing.T) {
	tests := []struct {
		name       string
		preference float64
		nodes      int
		entropy    float64
		want       int
	}{
		{"negative preference clamps to 0", -5, 100, 1, 11},
		{"preference above 1 clamps to 1", 7, 100, 1, 45},
		{"NaN preference treated as 0", math.NaN(), 100, 1, 11},
		{"entropy below 1 treated as 1", 1, 100, 0.2, 45},
		{"NaN entropy treated as 1", 1, 100, math.NaN(), 45},
		{"huge entropy hits floor", 0, 100, 1000, DefaultFloor},
		{"huge graph grows but stays bounded", 1, math.MaxInt32, 1, 79},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.preference, tt.nodes, tt.entropy))
		})
	}

	cfg := DefaultConfig()
	cfg.MillerBits = 10
	assert.Equal(t, DefaultCeiling, cfg.Compute(1, 100, 1))
}

func TestCompute_Monotone(t *testing.T) {
	for _, nodes := range []int{10, 500, 40_000} {
		for _, entropy := range []float64{1, 1.3, 2, 7} {
			prev := 0
			for i := 0; i <= 100; i++ {
				got := Compute(float64(i)/100, nodes, entropy)
				require.GreaterOrEqual(t, got, prev, "nodes=%d entropy=%v p=%d", nodes, entropy, i)
				prev = got
			}
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	assert.Equal(t, Compute(0.42, 12345, 1.37), Compute(0.42, 12345, 1.37))
}

func TestResolve(t *testing.T) {
	b := DefaultConfig().Resolve(2, 100, 1)
	assert.Equal(t, 1.0, b.Preference)
	assert.Equal(t, 45, b.ResolvedCount)
	assert.Equal(t, 45, b.Remaining)

	used := b.WithUsed(40)
	assert.Equal(t, 5, used.Remaining)
	assert.Equal(t, 45, b.Remaining, "WithUsed must not modify the receiver")
	assert.Equal(t, 0, b.WithUsed(100).Remaining)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Ceiling = 2
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MillerBits = math.NaN()
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SpatialBonus = -1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Floor = 0
	assert.Error(t, bad.Validate())
}

func TestEntropyEstimate(t *testing.T) {
	assert.Equal(t, 1.0, EntropyEstimate(nil))
	assert.Equal(t, 1.0, EntropyEstimate([]int{42}))
	assert.Equal(t, 1.0, EntropyEstimate([]int{42, 0, -1}))
	assert.InDelta(t, 2.0, EntropyEstimate([]int{5, 5, 5, 5}), 1e-12)

	skewed := EntropyEstimate([]int{1000, 1, 1})
	assert.Greater(t, skewed, 1.0)
	assert.Less(t, skewed, 1.2)
}
