// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dendrogram_test

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram/dendrogramtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Aggregates(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)

	assert.Equal(t, 7, d.Len())
	assert.Equal(t, 4, d.LeafCount())
	assert.Equal(t, 4, d.MemberCount())
	assert.Equal(t, 2, d.Dim())

	root := d.Root()
	assert.Equal(t, dendrogramtest.Root, root.ID)
	assert.Equal(t, 4, root.Size)
	assert.Equal(t, 0, root.Depth)
	assert.InDelta(t, 5.05, root.Centroid[0], 1e-12)
	assert.InDelta(t, 0, root.Centroid[1], 1e-12)

	ab, err := d.Node(dendrogramtest.PairA)
	require.NoError(t, err)
	assert.Equal(t, 2, ab.Size)
	assert.Equal(t, 1, ab.Depth)
	assert.InDelta(t, 0.05, ab.Centroid[0], 1e-12)
	// Pooled variance: unit leaf spread plus the spread of the two centres.
	assert.InDelta(t, 1.0025, ab.Variance[0], 1e-12)
	assert.InDelta(t, 1.0, ab.Variance[1], 1e-12)

	a, err := d.Node(dendrogramtest.LeafA)
	require.NoError(t, err)
	assert.True(t, a.IsLeaf())
	assert.Equal(t, 2, a.Depth)
	assert.Equal(t, 0.0, a.Height)
}

func TestNew_LeafOrder(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)

	var order []string
	for pos := 0; pos < d.LeafCount(); pos++ {
		order = append(order, d.LeafAt(pos).ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	cd, _ := d.Node(dendrogramtest.PairC)
	lo, hi := cd.LeafRange()
	assert.Equal(t, 2, lo)
	assert.Equal(t, 4, hi)
	assert.Equal(t, 2, cd.LeafCount())
}

func TestNew_SingleLeaf(t *testing.T) {
	d, err := dendrogram.New([]dendrogram.MicroCluster{
		{MemberIDs: []string{"x"}, Centroid: []float64{1, 2, 3}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "leaf-0", d.Root().ID)
	assert.True(t, d.Root().IsLeaf())
	assert.Nil(t, d.ParentOf(d.Root()))
}

func TestNew_DefaultInternalIDs(t *testing.T) {
	d, err := dendrogram.New([]dendrogram.MicroCluster{
		{MemberIDs: []string{"x"}, Centroid: []float64{0}},
		{MemberIDs: []string{"y"}, Centroid: []float64{1}},
	}, []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}})
	require.NoError(t, err)
	assert.Equal(t, "node-2", d.Root().ID)
	assert.True(t, d.Contains("leaf-1"))
}

func TestNew_Validation(t *testing.T) {
	leaf := func(id string, members ...string) dendrogram.MicroCluster {
		return dendrogram.MicroCluster{ID: id, MemberIDs: members, Centroid: []float64{0, 0}}
	}

	tests := []struct {
		name   string
		leaves []dendrogram.MicroCluster
		merges []dendrogram.Merge
		want   error
	}{
		{
			name: "no leaves",
			want: dendrogram.ErrEmptyDendrogram,
		},
		{
			name:   "wrong merge count",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2")},
			want:   dendrogram.ErrInvalidLinkage,
		},
		{
			name:   "empty members",
			leaves: []dendrogram.MicroCluster{leaf("a"), leaf("b", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}},
			want:   dendrogram.ErrEmptyCluster,
		},
		{
			name:   "overlapping members",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "1")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}},
			want:   dendrogram.ErrOverlappingMembers,
		},
		{
			name: "dimension mismatch",
			leaves: []dendrogram.MicroCluster{
				leaf("a", "1"),
				{ID: "b", MemberIDs: []string{"2"}, Centroid: []float64{0}},
			},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}},
			want:   dendrogram.ErrDimensionMismatch,
		},
		{
			name:   "duplicate id",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("a", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}},
			want:   dendrogram.ErrDuplicateID,
		},
		{
			name:   "self merge",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 0, Height: 1}},
			want:   dendrogram.ErrInvalidLinkage,
		},
		{
			name:   "forward reference",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 2, Height: 1}},
			want:   dendrogram.ErrInvalidLinkage,
		},
		{
			name:   "node merged twice",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2"), leaf("c", "3")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}, {Left: 0, Right: 2, Height: 2}},
			want:   dendrogram.ErrInvalidLinkage,
		},
		{
			name:   "negative height",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: -1}},
			want:   dendrogram.ErrInvalidLinkage,
		},
		{
			name:   "count mismatch",
			leaves: []dendrogram.MicroCluster{leaf("a", "1"), leaf("b", "2")},
			merges: []dendrogram.Merge{{Left: 0, Right: 1, Height: 1, Count: 3}},
			want:   dendrogram.ErrInvalidLinkage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dendrogram.New(tt.leaves, tt.merges)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNode_NotFound(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	_, err := d.Node("missing")
	assert.ErrorIs(t, err, dendrogram.ErrNodeNotFound)
	assert.False(t, d.Contains("missing"))
}

func TestNavigation(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	a, _ := d.Node(dendrogramtest.LeafA)
	b, _ := d.Node(dendrogramtest.LeafB)
	c, _ := d.Node(dendrogramtest.LeafC)
	ab, _ := d.Node(dendrogramtest.PairA)

	left, right := d.Children(ab)
	assert.Equal(t, a, left)
	assert.Equal(t, b, right)

	l, r := d.Children(a)
	assert.Nil(t, l)
	assert.Nil(t, r)

	assert.Equal(t, ab, d.ParentOf(a))
	assert.Equal(t, b, d.SiblingOf(a))
	assert.Nil(t, d.SiblingOf(d.Root()))

	assert.True(t, d.IsAncestor(d.Root(), a))
	assert.True(t, d.IsAncestor(ab, b))
	assert.False(t, d.IsAncestor(ab, c))
	assert.False(t, d.IsAncestor(a, a))
}

func TestLCA_AndCopheneticDistance(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	a, _ := d.Node(dendrogramtest.LeafA)
	b, _ := d.Node(dendrogramtest.LeafB)
	c, _ := d.Node(dendrogramtest.LeafC)
	cd, _ := d.Node(dendrogramtest.PairC)

	assert.Equal(t, dendrogramtest.PairA, d.LCA(a, b).ID)
	assert.Equal(t, dendrogramtest.Root, d.LCA(a, c).ID)
	assert.Equal(t, dendrogramtest.PairC, d.LCA(c, cd).ID)

	assert.Equal(t, 0.0, d.CopheneticDistance(a, a))
	assert.Equal(t, 1.0, d.CopheneticDistance(a, b))
	assert.Equal(t, 10.0, d.CopheneticDistance(b, cd))
	assert.Equal(t, d.CopheneticDistance(a, c), d.CopheneticDistance(c, a))
}

func TestMemberIDs(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	cd, _ := d.Node(dendrogramtest.PairC)
	assert.Equal(t, []string{"n3", "n4"}, d.MemberIDs(cd))
	assert.Len(t, d.MemberIDs(d.Root()), 4)
}

func TestTopCut(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)

	ids := func(nodes []*dendrogram.Node) []string {
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = n.ID
		}
		return out
	}

	assert.Equal(t, []string{"root"}, ids(d.TopCut(1)))
	assert.Equal(t, []string{"ab", "cd"}, ids(d.TopCut(2)))
	// cd merges higher than ab, so it opens first.
	assert.Equal(t, []string{"ab", "c", "d"}, ids(d.TopCut(3)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(d.TopCut(10)))
}

func TestRandom_PartitionAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := dendrogramtest.Random(t, rng, 40, 3)

	seen := map[string]bool{}
	for _, m := range d.MemberIDs(d.Root()) {
		assert.False(t, seen[m], "member %s repeated", m)
		seen[m] = true
	}
	assert.Equal(t, d.MemberCount(), len(seen))

	for i := 0; i < d.Len(); i++ {
		n := d.At(i)
		if n.IsLeaf() {
			continue
		}
		l, r := d.Children(n)
		assert.Equal(t, l.Size+r.Size, n.Size)
		llo, lhi := l.LeafRange()
		rlo, rhi := r.LeafRange()
		lo, hi := n.LeafRange()
		assert.Equal(t, lo, llo)
		assert.Equal(t, lhi, rlo)
		assert.Equal(t, hi, rhi)
		for _, v := range n.Variance {
			assert.False(t, math.IsNaN(v))
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestNew_NaNCentroidAggregatesAsZero(t *testing.T) {
	d, err := dendrogram.New([]dendrogram.MicroCluster{
		{ID: "x", MemberIDs: []string{"1"}, Centroid: []float64{math.NaN(), 0}},
		{ID: "y", MemberIDs: []string{"2"}, Centroid: []float64{2, 0}},
	}, []dendrogram.Merge{{Left: 0, Right: 1, Height: 1}})
	require.NoError(t, err)

	x, _ := d.Node("x")
	assert.True(t, math.IsNaN(x.Centroid[0]), "leaf centroid is kept as supplied")
	assert.InDelta(t, 1.0, d.Root().Centroid[0], 1e-12)
}

func TestParseArtifact(t *testing.T) {
	doc := `{
		"leaves": [
			{"id": "p", "member_ids": ["1", "2"], "centroid": [0, 0]},
			{"id": "q", "member_ids": ["3"], "centroid": [1, 1], "variance": [0.1, 0.1]},
			{"id": "r", "member_ids": ["4"], "centroid": [5, 5]}
		],
		"linkage": [[0, 1, 0.5, 2], [3, 2, 4.0]],
		"internal_ids": ["pq", "top"]
	}`
	d, err := dendrogram.ParseArtifact(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "top", d.Root().ID)
	assert.Equal(t, 4, d.Root().Size)

	pq, err := d.Node("pq")
	require.NoError(t, err)
	assert.Equal(t, 0.5, pq.Height)
}

func TestParseArtifact_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad json":        `{`,
		"fractional ref":  `{"leaves":[{"member_ids":["1"],"centroid":[0]},{"member_ids":["2"],"centroid":[1]}],"linkage":[[0.5,1,1]]}`,
		"short row":       `{"leaves":[{"member_ids":["1"],"centroid":[0]},{"member_ids":["2"],"centroid":[1]}],"linkage":[[0,1]]}`,
		"id count":        `{"leaves":[{"member_ids":["1"],"centroid":[0]},{"member_ids":["2"],"centroid":[1]}],"linkage":[[0,1,1]],"internal_ids":[]}`,
		"negative height": `{"leaves":[{"member_ids":["1"],"centroid":[0]},{"member_ids":["2"],"centroid":[1]}],"linkage":[[0,1,-2]]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := dendrogram.ParseArtifact(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
