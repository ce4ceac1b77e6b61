// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dendrogramtest provides small synthetic dendrograms for tests.
package dendrogramtest

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/stretchr/testify/require"
)

// Node ids shared by the four-leaf fixtures.
const (
	LeafA = "a"
	LeafB = "b"
	LeafC = "c"
	LeafD = "d"
	PairA = "ab"
	PairC = "cd"
	Root  = "root"
)

// FourLeaf returns the 4-leaf tree ((a,b),(c,d)) with single-member leaves.
//
// Each leaf carries unit spread, so neither pair nor the root compresses
// when split and the default cut stays at the root.
func FourLeaf(tb testing.TB) *dendrogram.Dendrogram {
	tb.Helper()
	unit := []float64{1, 1}
	leaves := []dendrogram.MicroCluster{
		{ID: LeafA, MemberIDs: []string{"n1"}, Centroid: []float64{0, 0}, Variance: unit},
		{ID: LeafB, MemberIDs: []string{"n2"}, Centroid: []float64{0.1, 0}, Variance: unit},
		{ID: LeafC, MemberIDs: []string{"n3"}, Centroid: []float64{10, 0}, Variance: unit},
		{ID: LeafD, MemberIDs: []string{"n4"}, Centroid: []float64{10.1, 0}, Variance: unit},
	}
	return build(tb, leaves)
}

// Splittable returns the 4-leaf tree ((a,b),(c,d)) with 50 tight members per
// leaf: every split compresses, so the default cut opens as far as the
// budget allows.
func Splittable(tb testing.TB) *dendrogram.Dendrogram {
	tb.Helper()
	tight := []float64{1e-4, 1e-4}
	centres := [][]float64{{0, 0}, {1, 0}, {10, 0}, {11, 0}}
	ids := []string{LeafA, LeafB, LeafC, LeafD}
	leaves := make([]dendrogram.MicroCluster, len(ids))
	for i, id := range ids {
		members := make([]string, 50)
		for j := range members {
			members[j] = fmt.Sprintf("%s-%02d", id, j)
		}
		leaves[i] = dendrogram.MicroCluster{ID: id, MemberIDs: members, Centroid: centres[i], Variance: tight}
	}
	return build(tb, leaves)
}

// Bare returns the 4-leaf tree ((a,b),(c,d)) with one member per leaf, no
// leaf variance, and the given leaf centroids. Well separated pairs make
// every split compress, so the default cut opens to the leaves.
func Bare(tb testing.TB, centres [][]float64) *dendrogram.Dendrogram {
	tb.Helper()
	require.Len(tb, centres, 4)
	ids := []string{LeafA, LeafB, LeafC, LeafD}
	leaves := make([]dendrogram.MicroCluster, len(ids))
	for i, id := range ids {
		leaves[i] = dendrogram.MicroCluster{ID: id, MemberIDs: []string{fmt.Sprintf("n%d", i+1)}, Centroid: centres[i]}
	}
	return build(tb, leaves)
}

func build(tb testing.TB, leaves []dendrogram.MicroCluster) *dendrogram.Dendrogram {
	tb.Helper()
	merges := []dendrogram.Merge{
		{Left: 0, Right: 1, Height: 1, Count: 2, ID: PairA},
		{Left: 2, Right: 3, Height: 1.5, Count: 2, ID: PairC},
		{Left: 4, Right: 5, Height: 10, Count: 4, ID: Root},
	}
	d, err := dendrogram.New(leaves, merges)
	require.NoError(tb, err)
	return d
}

// Random builds a random agglomerative tree over n leaves in dim dimensions.
//
// Leaves get 1-5 members and random centroids; merges join two random open
// nodes at strictly increasing heights.
func Random(tb testing.TB, rng *rand.Rand, n, dim int) *dendrogram.Dendrogram {
	tb.Helper()
	leaves := make([]dendrogram.MicroCluster, n)
	member := 0
	for i := range leaves {
		size := 1 + rng.Intn(5)
		members := make([]string, size)
		for j := range members {
			members[j] = fmt.Sprintf("m%d", member)
			member++
		}
		centroid := make([]float64, dim)
		variance := make([]float64, dim)
		for k := range centroid {
			centroid[k] = rng.NormFloat64()
			variance[k] = rng.Float64() * 0.01
		}
		leaves[i] = dendrogram.MicroCluster{ID: fmt.Sprintf("L%d", i), MemberIDs: members, Centroid: centroid, Variance: variance}
	}

	open := make([]int, n)
	for i := range open {
		open[i] = i
	}
	merges := make([]dendrogram.Merge, 0, n-1)
	height := 0.0
	for next := n; len(open) > 1; next++ {
		i := rng.Intn(len(open))
		a := open[i]
		open = append(open[:i], open[i+1:]...)
		j := rng.Intn(len(open))
		b := open[j]
		open = append(open[:j], open[j+1:]...)

		height += 0.1 + rng.Float64()
		merges = append(merges, dendrogram.Merge{Left: a, Right: b, Height: height})
		open = append(open, next)
	}

	d, err := dendrogram.New(leaves, merges)
	require.NoError(tb, err)
	return d
}
