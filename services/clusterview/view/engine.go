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
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/clusterview/services/clusterview/cache"
	"github.com/AleutianAI/clusterview/services/clusterview/cut"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/layout"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Engine answers view queries against a model through a view cache.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	model  *Model
	cache  *cache.ViewCache[*View]
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache replaces the default view cache.
func WithCache(c *cache.ViewCache[*View]) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over m.
func NewEngine(m *Model, opts ...EngineOption) *Engine {
	e := &Engine{
		model:  m,
		cache:  cache.New[*View](),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the engine's model.
func (e *Engine) Model() *Model {
	return e.model
}

// CacheStats returns view cache statistics.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// View computes or fetches the view for q.
//
// Description:
//
//	The preference is resolved to a budget first; the cache key is built
//	from the resolved budget and the other semantic parameters, so
//	reordered id lists and preferences that resolve to the same budget
//	share one entry. The returned view is shared and must not be modified.
//
// Inputs:
//
//	ctx - Context for tracing.
//	q - The query.
//
// Outputs:
//
//	*View - The view.
//	bool - True if served from the cache.
//	error - *cut.NotFoundError for unknown ids, *cut.InvariantViolationError
//	        on a bookkeeping defect, or a layout error.
func (e *Engine) View(ctx context.Context, q Query) (*View, bool, error) {
	ctx, span := otel.Tracer("clusterview").Start(ctx, "view.Engine.View")
	defer span.End()

	b := e.model.Budget(q.Preference)
	affinity := clampAffinity(q.Affinity)
	params := cache.KeyParams{
		Budget:         b.ResolvedCount,
		ExpandedIDs:    q.ExpandedIDs,
		CollapseGroup:  q.CollapseGroup,
		Affinity:       affinity,
		IncludeMembers: q.IncludeMembers,
	}
	key := params.Key()
	span.SetAttributes(
		attribute.Int("budget", b.ResolvedCount),
		attribute.String("key", string(key)),
	)

	v, hit, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*View, error) {
		return e.compute(ctx, string(key), b.ResolvedCount, q, affinity)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "view failed")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit))
	span.SetStatus(codes.Ok, "")
	return v, hit, nil
}

// Compute builds the view for q without consulting the cache.
func (e *Engine) Compute(ctx context.Context, q Query) (*View, error) {
	b := e.model.Budget(q.Preference)
	affinity := clampAffinity(q.Affinity)
	key := cache.KeyParams{
		Budget:         b.ResolvedCount,
		ExpandedIDs:    q.ExpandedIDs,
		CollapseGroup:  q.CollapseGroup,
		Affinity:       affinity,
		IncludeMembers: q.IncludeMembers,
	}.Key()
	return e.compute(ctx, string(key), b.ResolvedCount, q, affinity)
}

// compute runs the full pipeline: cut, distances, layout, assembly.
func (e *Engine) compute(ctx context.Context, key string, budgetCount int, q Query, affinity float64) (*View, error) {
	start := time.Now()
	d := e.model.d

	res, err := e.buildCut(ctx, budgetCount, q)
	if err != nil {
		return nil, err
	}

	nodes := res.Cut.Clusters()
	centroids := make([][]float64, len(nodes))
	for i, n := range nodes {
		centroids[i] = n.Centroid
	}

	var lay *layout.Result
	if affinity > 0 && len(nodes) > 1 {
		dis, err := blendedDistances(d, nodes, centroids, affinity)
		if err != nil {
			return nil, err
		}
		lay, err = layout.Solve(ctx, dis, e.model.layout)
		if err != nil {
			return nil, err
		}
	} else {
		lay, err = layout.Layout(ctx, centroids, e.model.layout)
		if err != nil {
			return nil, err
		}
	}

	v := &View{
		Key:      key,
		Clusters: make([]Cluster, len(nodes)),
		Edges:    siblingEdges(d, res.Cut, nodes),
		Meta: Meta{
			Budget:          res.Cut.Budget(),
			BudgetRemaining: res.Cut.Remaining(),
			ExpandedIDs:     nonNil(res.Expanded),
			Rejections:      res.Rejections,
			Stress:          lay.Stress,
			Iterations:      lay.Iterations,
		},
		CreatedAt: time.Now(),
	}
	if v.Meta.Rejections == nil {
		v.Meta.Rejections = []cut.Rejection{}
	}
	for i, n := range nodes {
		v.Clusters[i] = newCluster(d, n, q.IncludeMembers)
		v.Clusters[i].Position = lay.Point(i)
	}

	e.logger.Debug("view computed",
		slog.String("key", key),
		slog.Int("budget", budgetCount),
		slog.Int("clusters", len(nodes)),
		slog.Int("rejections", len(res.Rejections)),
		slog.Float64("stress", lay.Stress),
		slog.Duration("duration", time.Since(start)))
	return v, nil
}

// ExpandPreview reports whether id can be expanded in the view for q.
func (e *Engine) ExpandPreview(ctx context.Context, q Query, id string) (cut.ExpandPreview, error) {
	res, err := e.buildCut(ctx, e.model.Budget(q.Preference).ResolvedCount, q)
	if err != nil {
		return cut.ExpandPreview{}, err
	}
	return res.Cut.PreviewExpand(e.model.scorer, id)
}

// CollapsePreview reports whether id can be collapsed in the view for q.
func (e *Engine) CollapsePreview(ctx context.Context, q Query, id string) (cut.CollapsePreview, error) {
	res, err := e.buildCut(ctx, e.model.Budget(q.Preference).ResolvedCount, q)
	if err != nil {
		return cut.CollapsePreview{}, err
	}
	return res.Cut.PreviewCollapse(id)
}

func (e *Engine) buildCut(ctx context.Context, budgetCount int, q Query) (*cut.Result, error) {
	res, err := cut.Build(ctx, e.model.d, e.model.scorer, cut.Request{
		Budget:        budgetCount,
		ExpandedIDs:   q.ExpandedIDs,
		CollapseGroup: q.CollapseGroup,
	})
	if err != nil {
		e.logBuildError(err, budgetCount)
		return nil, err
	}
	return res, nil
}

// logBuildError reports a broken partition at error level. Unknown ids are
// client errors and are not logged here.
func (e *Engine) logBuildError(err error, budgetCount int) {
	var inv *cut.InvariantViolationError
	if !errors.As(err, &inv) {
		return
	}
	e.logger.Error("visible cut partition invariant violated",
		slog.String("detail", inv.Detail),
		slog.Int("visible", len(inv.Visible)),
		slog.Int("budget", budgetCount))
}

// Node describes a dendrogram node by id.
//
// Outputs:
//
//	NodeInfo - The description.
//	error - *cut.NotFoundError for unknown ids.
func (e *Engine) Node(id string) (NodeInfo, error) {
	d := e.model.d
	n, err := d.Node(id)
	if err != nil {
		return NodeInfo{}, &cut.NotFoundError{ID: id}
	}

	info := NodeInfo{
		ID:              n.ID,
		Size:            n.Size,
		Height:          n.Height,
		Depth:           n.Depth,
		Centroid:        finite(n.Centroid),
		IsLeaf:          n.IsLeaf(),
		ParentID:        parentID(d, n),
		ChildrenIDs:     childrenIDs(d, n),
		DescriptionBits: e.model.scorer.Describe(n),
	}
	if !n.IsLeaf() {
		left, right := d.Children(n)
		info.SplitGain = e.model.scorer.Gain(n, left, right)
	}
	return info, nil
}

func newCluster(d *dendrogram.Dendrogram, n *dendrogram.Node, includeMembers bool) Cluster {
	c := Cluster{
		ID:          n.ID,
		Size:        n.Size,
		Height:      n.Height,
		Centroid:    finite(n.Centroid),
		IsLeaf:      n.IsLeaf(),
		ChildrenIDs: childrenIDs(d, n),
		ParentID:    parentID(d, n),
		MemberCount: n.Size,
	}
	if includeMembers {
		c.MemberIDs = d.MemberIDs(n)
	}
	return c
}

// siblingEdges pairs visible clusters that share a parent: exactly the
// groups a collapse can fold. Edges follow leaf order.
func siblingEdges(d *dendrogram.Dendrogram, c *cut.Cut, nodes []*dendrogram.Node) []Edge {
	edges := []Edge{}
	for _, n := range nodes {
		p := d.ParentOf(n)
		if p == nil || p.Left != n.Index {
			continue
		}
		if sib := d.SiblingOf(n); c.IsVisible(sib) {
			edges = append(edges, Edge{n.ID, sib.ID})
		}
	}
	return edges
}

func childrenIDs(d *dendrogram.Dendrogram, n *dendrogram.Node) []string {
	if n.IsLeaf() {
		return nil
	}
	left, right := d.Children(n)
	return []string{left.ID, right.ID}
}

func parentID(d *dendrogram.Dendrogram, n *dendrogram.Node) *string {
	p := d.ParentOf(n)
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

// finite copies v with NaN and infinities replaced by 0 so it serializes.
func finite(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[i] = x
		}
	}
	return out
}

func clampAffinity(a float64) float64 {
	switch {
	case math.IsNaN(a), a < 0:
		return 0
	case a > 1:
		return 1
	default:
		return a
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
