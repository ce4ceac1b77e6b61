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
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/layout"
	"gonum.org/v1/gonum/mat"
)

// blendedDistances mixes embedding distance with tree distance.
//
// Description:
//
//	D = (1-α)·D_embedding + α·s·D_tree, where D_tree is the cophenetic
//	distance (height of the lowest common ancestor) and s rescales it to
//	the embedding distance range so α is a true mixing weight. With no
//	embedding spread the tree distance is used unscaled.
//
// Inputs:
//
//	d - The dendrogram.
//	nodes - Visible clusters, at least two.
//	centroids - Their centroids, in the same order.
//	alpha - Blend weight in (0, 1].
//
// Outputs:
//
//	*mat.SymDense - The blended dissimilarities.
//	error - layout.ErrDimensionMismatch for ragged centroids.
func blendedDistances(d *dendrogram.Dendrogram, nodes []*dendrogram.Node, centroids [][]float64, alpha float64) (*mat.SymDense, error) {
	clean, err := layout.Sanitize(centroids)
	if err != nil {
		return nil, err
	}
	emb := layout.EuclideanDistances(clean)

	n := len(nodes)
	tree := mat.NewSymDense(n, nil)
	maxEmb, maxTree := 0.0, 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			h := d.CopheneticDistance(nodes[i], nodes[j])
			tree.SetSym(i, j, h)
			maxTree = max(maxTree, h)
			maxEmb = max(maxEmb, emb.At(i, j))
		}
	}

	scale := 1.0
	if maxTree > 0 && maxEmb > 0 {
		scale = maxEmb / maxTree
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, (1-alpha)*emb.At(i, j)+alpha*scale*tree.At(i, j))
		}
	}
	return out, nil
}
