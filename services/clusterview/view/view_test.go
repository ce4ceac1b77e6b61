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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"testing"

	"github.com/AleutianAI/clusterview/services/clusterview/cut"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram/dendrogramtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, d *dendrogram.Dendrogram) *Engine {
	t.Helper()
	m, err := NewModel(d, DefaultModelConfig())
	require.NoError(t, err)
	return NewEngine(m)
}

func clusterIDs(v *View) []string {
	ids := make([]string, len(v.Clusters))
	for i, c := range v.Clusters {
		ids[i] = c.ID
	}
	return ids
}

func TestNewModel(t *testing.T) {
	_, err := NewModel(nil, DefaultModelConfig())
	assert.ErrorIs(t, err, ErrNilDendrogram)

	cfg := DefaultModelConfig()
	cfg.Budget.Floor = 0
	_, err = NewModel(dendrogramtest.FourLeaf(t), cfg)
	assert.Error(t, err)

	m, err := NewModel(dendrogramtest.FourLeaf(t), DefaultModelConfig())
	require.NoError(t, err)
	// Four equal single-member leaves.
	assert.InDelta(t, 2.0, m.Entropy(), 1e-12)
	// 22.74 / 2 * 0.5 rounds to 6.
	assert.Equal(t, 6, m.Budget(0).ResolvedCount)
}

func TestEngine_ConcreteScenario(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	ctx := context.Background()

	v, hit, err := e.View(ctx, Query{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{dendrogramtest.Root}, clusterIDs(v))
	assert.Nil(t, v.Clusters[0].ParentID)
	assert.Equal(t, []string{dendrogramtest.PairA, dendrogramtest.PairC}, v.Clusters[0].ChildrenIDs)
	assert.Equal(t, 4, v.Clusters[0].MemberCount)
	assert.Empty(t, v.Edges)

	v, _, err = e.View(ctx, Query{ExpandedIDs: []string{dendrogramtest.Root}})
	require.NoError(t, err)
	assert.Equal(t, []string{dendrogramtest.PairA, dendrogramtest.PairC}, clusterIDs(v))
	assert.Equal(t, []Edge{{dendrogramtest.PairA, dendrogramtest.PairC}}, v.Edges)

	v, _, err = e.View(ctx, Query{ExpandedIDs: []string{dendrogramtest.Root, dendrogramtest.PairA}})
	require.NoError(t, err)
	assert.Equal(t, []string{dendrogramtest.LeafA, dendrogramtest.LeafB, dendrogramtest.PairC}, clusterIDs(v))
	assert.Equal(t, []Edge{{dendrogramtest.LeafA, dendrogramtest.LeafB}}, v.Edges)
	assert.Equal(t, 6, v.Meta.Budget)
	assert.Equal(t, 3, v.Meta.BudgetRemaining)
	assert.Equal(t, []string{dendrogramtest.Root, dendrogramtest.PairA}, v.Meta.ExpandedIDs)
	assert.Empty(t, v.Meta.Rejections)
	require.NotNil(t, v.Clusters[0].ParentID)
	assert.Equal(t, dendrogramtest.PairA, *v.Clusters[0].ParentID)
	assert.True(t, v.Clusters[0].IsLeaf)
	assert.Nil(t, v.Clusters[0].ChildrenIDs)

	v, _, err = e.View(ctx, Query{
		ExpandedIDs:   []string{dendrogramtest.Root, dendrogramtest.PairA},
		CollapseGroup: []string{dendrogramtest.LeafA, dendrogramtest.LeafB},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{dendrogramtest.PairA, dendrogramtest.PairC}, clusterIDs(v))
}

func TestEngine_CacheHitIsByteIdentical(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	e := newEngine(t, d)
	ctx := context.Background()
	q := Query{ExpandedIDs: []string{dendrogramtest.Root, dendrogramtest.PairC}, Affinity: 0.3, IncludeMembers: true}

	first, hit, err := e.View(ctx, q)
	require.NoError(t, err)
	require.False(t, hit)

	second, hit, err := e.View(ctx, q)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	fresh, err := newEngine(t, d).Compute(ctx, q)
	require.NoError(t, err)

	cached, err := json.Marshal(second)
	require.NoError(t, err)
	recomputed, err := json.Marshal(fresh)
	require.NoError(t, err)
	assert.JSONEq(t, string(recomputed), string(cached))
	assert.Equal(t, string(recomputed), string(cached))
}

func TestEngine_ReorderedQueriesShareEntry(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	ctx := context.Background()

	a, _, err := e.View(ctx, Query{ExpandedIDs: []string{dendrogramtest.Root, dendrogramtest.PairA, dendrogramtest.PairC}})
	require.NoError(t, err)
	b, hit, err := e.View(ctx, Query{ExpandedIDs: []string{dendrogramtest.PairC, dendrogramtest.Root, dendrogramtest.PairA, dendrogramtest.Root}})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, a, b)

	// Preferences that resolve to the same budget share an entry too.
	_, hit, err = e.View(ctx, Query{Preference: math.NaN(), ExpandedIDs: []string{dendrogramtest.Root, dendrogramtest.PairA, dendrogramtest.PairC}})
	require.NoError(t, err)
	assert.True(t, hit)

	stats := e.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Computes)
}

func TestEngine_ReorderedCollapseGroupIsByteIdentical(t *testing.T) {
	d := dendrogramtest.FourLeaf(t)
	e := newEngine(t, d)
	ctx := context.Background()

	// Neither leaf is visible under the root-only cut, so the collapse is refused.
	first, hit, err := e.View(ctx, Query{CollapseGroup: []string{dendrogramtest.LeafA, dendrogramtest.LeafB}})
	require.NoError(t, err)
	require.False(t, hit)

	reordered := Query{CollapseGroup: []string{dendrogramtest.LeafB, dendrogramtest.LeafA}}
	second, hit, err := e.View(ctx, reordered)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	fresh, err := newEngine(t, d).Compute(ctx, reordered)
	require.NoError(t, err)
	require.Len(t, fresh.Meta.Rejections, 1)
	assert.Equal(t, dendrogramtest.LeafA, fresh.Meta.Rejections[0].ID)

	cached, err := json.Marshal(second)
	require.NoError(t, err)
	recomputed, err := json.Marshal(fresh)
	require.NoError(t, err)
	assert.Equal(t, string(recomputed), string(cached))
}

func TestEngine_ExpansionsStartFromRoot(t *testing.T) {
	d := dendrogramtest.Bare(t, [][]float64{{0}, {0.1}, {10}, {10.1}})
	e := newEngine(t, d)
	ctx := context.Background()

	v, _, err := e.View(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, clusterIDs(v))

	v, _, err = e.View(ctx, Query{ExpandedIDs: []string{dendrogramtest.Root}})
	require.NoError(t, err)
	assert.Equal(t, []string{dendrogramtest.PairA, dendrogramtest.PairC}, clusterIDs(v))
	assert.Equal(t, []string{dendrogramtest.Root}, v.Meta.ExpandedIDs)
	for _, c := range v.Clusters {
		assert.Equal(t, 2, c.Size)
	}
}

func TestEngine_LogsInvariantViolation(t *testing.T) {
	m, err := NewModel(dendrogramtest.FourLeaf(t), DefaultModelConfig())
	require.NoError(t, err)
	var buf bytes.Buffer
	e := NewEngine(m, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	e.logBuildError(&cut.NotFoundError{ID: "ghost"}, 4)
	assert.Zero(t, buf.Len())

	e.logBuildError(&cut.InvariantViolationError{Detail: "leaf positions [0, 1) uncovered", Visible: []string{"b"}}, 4)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "visible cut partition invariant violated", entry["msg"])
	assert.Equal(t, "leaf positions [0, 1) uncovered", entry["detail"])
	assert.Equal(t, 1.0, entry["visible"])
	assert.Equal(t, 4.0, entry["budget"])
}

func TestEngine_BudgetRejection(t *testing.T) {
	cfg := DefaultModelConfig()
	cfg.Budget.Floor, cfg.Budget.Ceiling = 2, 2
	m, err := NewModel(dendrogramtest.FourLeaf(t), cfg)
	require.NoError(t, err)
	e := NewEngine(m)

	v, _, err := e.View(context.Background(), Query{ExpandedIDs: []string{dendrogramtest.Root, dendrogramtest.PairA}})
	require.NoError(t, err)
	assert.Equal(t, []string{dendrogramtest.PairA, dendrogramtest.PairC}, clusterIDs(v))
	assert.Equal(t, 0, v.Meta.BudgetRemaining)
	assert.Equal(t, []string{dendrogramtest.Root}, v.Meta.ExpandedIDs)
	require.Len(t, v.Meta.Rejections, 1)
	assert.Equal(t, cut.Rejection{ID: dendrogramtest.PairA, Code: cut.CodeBudgetExhausted, Reason: cut.ReasonBudgetExhausted}, v.Meta.Rejections[0])
}

func TestEngine_UnknownIDFails(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	_, _, err := e.View(context.Background(), Query{ExpandedIDs: []string{"missing"}})
	assert.ErrorIs(t, err, cut.ErrNotFound)
	assert.Equal(t, 0, e.CacheStats().Entries)

	_, err = e.Node("missing")
	var nf *cut.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestEngine_NaNCentroidSerializes(t *testing.T) {
	leaves := []dendrogram.MicroCluster{
		{ID: "x", MemberIDs: []string{"m1"}, Centroid: []float64{math.NaN(), 1}},
		{ID: "y", MemberIDs: []string{"m2"}, Centroid: []float64{2, 1}},
	}
	d, err := dendrogram.New(leaves, []dendrogram.Merge{{Left: 0, Right: 1, Height: 1, Count: 2, ID: "xy"}})
	require.NoError(t, err)
	e := newEngine(t, d)

	v, _, err := e.View(context.Background(), Query{ExpandedIDs: []string{"xy"}})
	require.NoError(t, err)
	require.Len(t, v.Clusters, 2)
	assert.Equal(t, []float64{0, 1}, v.Clusters[0].Centroid)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "NaN")
	for _, c := range v.Clusters {
		assert.False(t, math.IsNaN(c.Position[0]) || math.IsNaN(c.Position[1]))
	}
}

func TestEngine_IncludeMembers(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	v, _, err := e.View(context.Background(), Query{ExpandedIDs: []string{dendrogramtest.Root}, IncludeMembers: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, v.Clusters[0].MemberIDs)
	assert.Equal(t, []string{"n3", "n4"}, v.Clusters[1].MemberIDs)

	v, _, err = e.View(context.Background(), Query{ExpandedIDs: []string{dendrogramtest.Root}})
	require.NoError(t, err)
	assert.Nil(t, v.Clusters[0].MemberIDs)
}

func TestEngine_AffinityBlendsTreeDistance(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	ctx := context.Background()
	expanded := []string{dendrogramtest.Root, dendrogramtest.PairA}

	dist := func(v *View) float64 {
		a, b := v.Clusters[0].Position, v.Clusters[1].Position
		return math.Hypot(a[0]-b[0], a[1]-b[1])
	}

	emb, _, err := e.View(ctx, Query{ExpandedIDs: expanded})
	require.NoError(t, err)
	tree, _, err := e.View(ctx, Query{ExpandedIDs: expanded, Affinity: 1})
	require.NoError(t, err)
	clamped, hit, err := e.View(ctx, Query{ExpandedIDs: expanded, Affinity: 7})
	require.NoError(t, err)

	// a and b are 0.1 apart in the embedding but merge at height 1.
	assert.InDelta(t, 0.1, dist(emb), 0.05)
	assert.Greater(t, dist(tree), 0.5)
	assert.True(t, hit, "affinity above 1 clamps to 1")
	assert.Same(t, tree, clamped)
}

func TestEngine_Previews(t *testing.T) {
	e := newEngine(t, dendrogramtest.FourLeaf(t))
	ctx := context.Background()
	q := Query{ExpandedIDs: []string{dendrogramtest.Root}}

	ep, err := e.ExpandPreview(ctx, q, dendrogramtest.PairA)
	require.NoError(t, err)
	assert.True(t, ep.CanExpand)
	assert.Nil(t, ep.Reason)
	assert.Equal(t, 2, ep.ChildCount)

	ep, err = e.ExpandPreview(ctx, q, dendrogramtest.LeafA)
	require.NoError(t, err)
	assert.False(t, ep.CanExpand)
	require.NotNil(t, ep.Reason)

	cp, err := e.CollapsePreview(ctx, q, dendrogramtest.PairA)
	require.NoError(t, err)
	assert.True(t, cp.CanCollapse)
	assert.Equal(t, dendrogramtest.Root, cp.ParentID)
	assert.Equal(t, []string{dendrogramtest.PairC}, cp.SiblingIDs)

	cp, err = e.CollapsePreview(ctx, Query{}, dendrogramtest.Root)
	require.NoError(t, err)
	assert.False(t, cp.CanCollapse)

	_, err = e.ExpandPreview(ctx, q, "missing")
	assert.ErrorIs(t, err, cut.ErrNotFound)

	assert.Equal(t, 0, e.CacheStats().Entries, "previews bypass the cache")
}

func TestEngine_Node(t *testing.T) {
	e := newEngine(t, dendrogramtest.Splittable(t))

	info, err := e.Node(dendrogramtest.PairA)
	require.NoError(t, err)
	assert.Equal(t, 100, info.Size)
	assert.Equal(t, 1, info.Depth)
	assert.Equal(t, []string{dendrogramtest.LeafA, dendrogramtest.LeafB}, info.ChildrenIDs)
	require.NotNil(t, info.ParentID)
	assert.Equal(t, dendrogramtest.Root, *info.ParentID)
	assert.Greater(t, info.DescriptionBits, 0.0)
	assert.Greater(t, info.SplitGain, 0.0)

	leaf, err := e.Node(dendrogramtest.LeafA)
	require.NoError(t, err)
	assert.True(t, leaf.IsLeaf)
	assert.Zero(t, leaf.SplitGain)
}
