// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dendrogram

import (
	"fmt"
	"math"
	"sort"
)

// NoNode marks an absent child or parent reference.
const NoNode = -1

// =============================================================================
// Input Types
// =============================================================================

// MicroCluster is the smallest clustering unit produced upstream.
type MicroCluster struct {
	// ID is the stable identifier of the micro-cluster. When empty, the
	// dendrogram assigns "leaf-<index>".
	ID string `json:"id"`

	// MemberIDs are the graph node ids in this micro-cluster. Non-empty and
	// disjoint from every other micro-cluster.
	MemberIDs []string `json:"member_ids"`

	// Centroid is the micro-cluster centre in embedding space.
	Centroid []float64 `json:"centroid"`

	// Variance is the optional per-dimension spread of the members around
	// Centroid. Nil means the members sit on the centroid.
	Variance []float64 `json:"variance,omitempty"`
}

// Merge is one row of a linkage matrix.
type Merge struct {
	// Left and Right reference existing nodes: leaves are 0..n-1, the node
	// created by merge i is n+i.
	Left, Right int

	// Height is the dissimilarity at merge time.
	Height float64

	// Count is the number of leaves under the merge. Zero skips the check.
	Count int

	// ID optionally names the created node. Defaults to "node-<index>".
	ID string
}

// =============================================================================
// Node
// =============================================================================

// Node is a dendrogram node with aggregates derived at load time.
//
// Description:
//
//	Leaves wrap micro-clusters as zero-height nodes. Internal nodes carry
//	the merge height, the member count of all descendant leaves, the
//	member-weighted centroid and the pooled per-dimension variance.
//
// Thread Safety:
//
//	Immutable after the owning Dendrogram is built. Do not mutate.
type Node struct {
	// ID is the stable node identifier used by expand/collapse requests.
	ID string

	// Index is the position in the linkage numbering.
	Index int

	// Left and Right are child indexes, NoNode for leaves.
	Left, Right int

	// Parent is the parent index, NoNode for the root.
	Parent int

	// Height is the merge height (0 for leaves).
	Height float64

	// Size is the number of graph nodes covered.
	Size int

	// Depth is the distance from the root (root = 0).
	Depth int

	// Centroid is the member-weighted mean of descendant leaf centroids.
	// Leaves keep the centroid exactly as supplied, NaN entries included.
	Centroid []float64

	// Variance is the pooled per-dimension variance of the covered members.
	Variance []float64

	// leafLo and leafHi bound this node's leaves in leaf order: [leafLo, leafHi).
	leafLo, leafHi int
}

// IsLeaf reports whether the node is a micro-cluster.
func (n *Node) IsLeaf() bool {
	return n.Left == NoNode
}

// LeafRange returns the half-open range of leaf-order positions covered.
func (n *Node) LeafRange() (lo, hi int) {
	return n.leafLo, n.leafHi
}

// LeafCount returns the number of micro-clusters under the node.
func (n *Node) LeafCount() int {
	return n.leafHi - n.leafLo
}

// =============================================================================
// Dendrogram
// =============================================================================

// Dendrogram is an immutable binary merge tree over micro-clusters.
//
// Description:
//
//	Nodes are stored in linkage order in a flat slice. A left-first DFS
//	assigns every leaf a position in "leaf order"; each node then covers a
//	contiguous leaf-order range, which makes partition checks and member
//	enumeration linear.
//
// Thread Safety:
//
//	Safe for concurrent reads after New returns.
type Dendrogram struct {
	nodes       []Node
	byID        map[string]int
	leafOrder   []int
	members     [][]string
	root        int
	dim         int
	memberCount int
}

// New builds a dendrogram from micro-clusters and linkage merges.
//
// Description:
//
//	Validates the leaf table (non-empty disjoint members, one centroid
//	dimensionality) and the linkage (n-1 merges, every node merged exactly
//	once, non-negative heights), then aggregates sizes, centroids and
//	variances bottom-up and assigns depths and leaf-order ranges top-down.
//
// Inputs:
//
//	leaves - Micro-clusters, indexed 0..n-1 by the linkage.
//	merges - Exactly len(leaves)-1 merges.
//
// Outputs:
//
//	*Dendrogram - The immutable tree. Never nil on success.
//	error - Wraps one of the package sentinel errors on invalid input.
func New(leaves []MicroCluster, merges []Merge) (*Dendrogram, error) {
	n := len(leaves)
	if n == 0 {
		return nil, ErrEmptyDendrogram
	}
	if len(merges) != n-1 {
		return nil, fmt.Errorf("%w: %d leaves need %d merges, got %d", ErrInvalidLinkage, n, n-1, len(merges))
	}

	dim := len(leaves[0].Centroid)
	if dim == 0 {
		return nil, fmt.Errorf("%w: leaf 0 has an empty centroid", ErrDimensionMismatch)
	}

	d := &Dendrogram{
		nodes:   make([]Node, 2*n-1),
		byID:    make(map[string]int, 2*n-1),
		members: make([][]string, n),
		dim:     dim,
	}

	sums := make([][]float64, 2*n-1)
	sumSqs := make([][]float64, 2*n-1)
	owner := make(map[string]int)

	for i, leaf := range leaves {
		if err := validateLeaf(i, leaf, dim); err != nil {
			return nil, err
		}
		for _, m := range leaf.MemberIDs {
			if prev, dup := owner[m]; dup {
				return nil, fmt.Errorf("%w: %q in leaves %d and %d", ErrOverlappingMembers, m, prev, i)
			}
			owner[m] = i
		}

		id := leaf.ID
		if id == "" {
			id = fmt.Sprintf("leaf-%d", i)
		}
		if err := d.register(id, i); err != nil {
			return nil, err
		}

		size := len(leaf.MemberIDs)
		sum := make([]float64, dim)
		sumSq := make([]float64, dim)
		for k, c := range leaf.Centroid {
			c = finiteOrZero(c)
			v := 0.0
			if leaf.Variance != nil {
				v = finiteOrZero(leaf.Variance[k])
			}
			sum[k] = float64(size) * c
			sumSq[k] = float64(size) * (c*c + v)
		}
		sums[i], sumSqs[i] = sum, sumSq

		d.members[i] = append([]string(nil), leaf.MemberIDs...)
		d.memberCount += size
		d.nodes[i] = Node{
			ID:       id,
			Index:    i,
			Left:     NoNode,
			Right:    NoNode,
			Parent:   NoNode,
			Size:     size,
			Centroid: append([]float64(nil), leaf.Centroid...),
		}
	}

	leafCounts := make([]int, 2*n-1)
	for i := 0; i < n; i++ {
		leafCounts[i] = 1
	}

	for i, m := range merges {
		idx := n + i
		if err := d.validateMerge(i, idx, m); err != nil {
			return nil, err
		}
		if m.Count > 0 && m.Count != leafCounts[m.Left]+leafCounts[m.Right] {
			return nil, fmt.Errorf("%w: merge %d declares %d leaves, tree has %d",
				ErrInvalidLinkage, i, m.Count, leafCounts[m.Left]+leafCounts[m.Right])
		}
		leafCounts[idx] = leafCounts[m.Left] + leafCounts[m.Right]

		id := m.ID
		if id == "" {
			id = fmt.Sprintf("node-%d", idx)
		}
		if err := d.register(id, idx); err != nil {
			return nil, err
		}

		sum := make([]float64, dim)
		sumSq := make([]float64, dim)
		for k := 0; k < dim; k++ {
			sum[k] = sums[m.Left][k] + sums[m.Right][k]
			sumSq[k] = sumSqs[m.Left][k] + sumSqs[m.Right][k]
		}
		sums[idx], sumSqs[idx] = sum, sumSq

		d.nodes[m.Left].Parent = idx
		d.nodes[m.Right].Parent = idx
		d.nodes[idx] = Node{
			ID:     id,
			Index:  idx,
			Left:   m.Left,
			Right:  m.Right,
			Parent: NoNode,
			Height: m.Height,
			Size:   d.nodes[m.Left].Size + d.nodes[m.Right].Size,
		}
	}

	d.root = 2*n - 2
	for i := range d.nodes {
		node := &d.nodes[i]
		mean, variance := moments(sums[i], sumSqs[i], node.Size)
		if !node.IsLeaf() {
			node.Centroid = mean
		}
		node.Variance = variance
	}

	d.assignOrder()
	return d, nil
}

// validateLeaf checks one micro-cluster against the shared dimensionality.
func validateLeaf(i int, leaf MicroCluster, dim int) error {
	if len(leaf.MemberIDs) == 0 {
		return fmt.Errorf("%w: leaf %d", ErrEmptyCluster, i)
	}
	if len(leaf.Centroid) != dim {
		return fmt.Errorf("%w: leaf %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(leaf.Centroid), dim)
	}
	if leaf.Variance != nil && len(leaf.Variance) != dim {
		return fmt.Errorf("%w: leaf %d variance has %d dimensions, want %d", ErrDimensionMismatch, i, len(leaf.Variance), dim)
	}
	for k, v := range leaf.Variance {
		if v < 0 {
			return fmt.Errorf("%w: leaf %d has negative variance in dimension %d", ErrDimensionMismatch, i, k)
		}
	}
	return nil
}

// validateMerge checks that merge i references two distinct, unmerged nodes
// created before it.
func (d *Dendrogram) validateMerge(i, idx int, m Merge) error {
	if m.Left < 0 || m.Left >= idx || m.Right < 0 || m.Right >= idx {
		return fmt.Errorf("%w: merge %d references [%d, %d], valid range is [0, %d)", ErrInvalidLinkage, i, m.Left, m.Right, idx)
	}
	if m.Left == m.Right {
		return fmt.Errorf("%w: merge %d joins node %d with itself", ErrInvalidLinkage, i, m.Left)
	}
	if d.nodes[m.Left].Parent != NoNode || d.nodes[m.Right].Parent != NoNode {
		return fmt.Errorf("%w: merge %d reuses an already merged node", ErrInvalidLinkage, i)
	}
	if math.IsNaN(m.Height) || m.Height < 0 {
		return fmt.Errorf("%w: merge %d has invalid height %v", ErrInvalidLinkage, i, m.Height)
	}
	return nil
}

func (d *Dendrogram) register(id string, idx int) error {
	if prev, ok := d.byID[id]; ok {
		return fmt.Errorf("%w: %q used by nodes %d and %d", ErrDuplicateID, id, prev, idx)
	}
	d.byID[id] = idx
	return nil
}

// assignOrder walks the tree left-first without recursion, assigning depths
// and leaf-order ranges. Chained linkages can be as deep as the leaf count.
func (d *Dendrogram) assignOrder() {
	d.leafOrder = make([]int, 0, (len(d.nodes)+1)/2)

	type frame struct {
		idx     int
		visited bool
	}
	stack := []frame{{idx: d.root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &d.nodes[top.idx]

		if node.IsLeaf() {
			node.leafLo = len(d.leafOrder)
			d.leafOrder = append(d.leafOrder, top.idx)
			node.leafHi = len(d.leafOrder)
			continue
		}
		if top.visited {
			node.leafLo = d.nodes[node.Left].leafLo
			node.leafHi = d.nodes[node.Right].leafHi
			continue
		}

		d.nodes[node.Left].Depth = node.Depth + 1
		d.nodes[node.Right].Depth = node.Depth + 1
		stack = append(stack,
			frame{idx: top.idx, visited: true},
			frame{idx: node.Right},
			frame{idx: node.Left},
		)
	}
}

// moments turns running sums into a mean and a non-negative variance.
func moments(sum, sumSq []float64, size int) (mean, variance []float64) {
	mean = make([]float64, len(sum))
	variance = make([]float64, len(sum))
	if size == 0 {
		return mean, variance
	}
	w := float64(size)
	for k := range sum {
		mean[k] = sum[k] / w
		v := sumSq[k]/w - mean[k]*mean[k]
		if v < 0 {
			v = 0
		}
		variance[k] = v
	}
	return mean, variance
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// =============================================================================
// Queries
// =============================================================================

// Root returns the root node.
func (d *Dendrogram) Root() *Node {
	return &d.nodes[d.root]
}

// Len returns the total number of dendrogram nodes (2n-1).
func (d *Dendrogram) Len() int {
	return len(d.nodes)
}

// LeafCount returns the number of micro-clusters.
func (d *Dendrogram) LeafCount() int {
	return len(d.leafOrder)
}

// MemberCount returns the number of graph nodes covered by the root.
func (d *Dendrogram) MemberCount() int {
	return d.memberCount
}

// Dim returns the embedding dimensionality.
func (d *Dendrogram) Dim() int {
	return d.dim
}

// At returns the node at linkage index i. It panics if i is out of range.
func (d *Dendrogram) At(i int) *Node {
	return &d.nodes[i]
}

// Node looks up a node by id.
//
// Outputs:
//
//	*Node - The node. Nil when err is non-nil.
//	error - Wraps ErrNodeNotFound for unknown ids.
func (d *Dendrogram) Node(id string) (*Node, error) {
	idx, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return &d.nodes[idx], nil
}

// Contains reports whether id names a node.
func (d *Dendrogram) Contains(id string) bool {
	_, ok := d.byID[id]
	return ok
}

// Children returns both children of n, or nils for a leaf.
func (d *Dendrogram) Children(n *Node) (left, right *Node) {
	if n.IsLeaf() {
		return nil, nil
	}
	return &d.nodes[n.Left], &d.nodes[n.Right]
}

// ParentOf returns the parent of n, or nil for the root.
func (d *Dendrogram) ParentOf(n *Node) *Node {
	if n.Parent == NoNode {
		return nil
	}
	return &d.nodes[n.Parent]
}

// SiblingOf returns the other child of n's parent, or nil for the root.
func (d *Dendrogram) SiblingOf(n *Node) *Node {
	p := d.ParentOf(n)
	if p == nil {
		return nil
	}
	if p.Left == n.Index {
		return &d.nodes[p.Right]
	}
	return &d.nodes[p.Left]
}

// LeafAt returns the leaf at leaf-order position pos.
func (d *Dendrogram) LeafAt(pos int) *Node {
	return &d.nodes[d.leafOrder[pos]]
}

// IsAncestor reports whether a is a proper ancestor of b.
func (d *Dendrogram) IsAncestor(a, b *Node) bool {
	return a.Index != b.Index && a.leafLo <= b.leafLo && b.leafHi <= a.leafHi && a.Depth < b.Depth
}

// MemberIDs returns the sorted graph node ids covered by n.
func (d *Dendrogram) MemberIDs(n *Node) []string {
	out := make([]string, 0, n.Size)
	for pos := n.leafLo; pos < n.leafHi; pos++ {
		out = append(out, d.members[d.leafOrder[pos]]...)
	}
	sort.Strings(out)
	return out
}

// LCA returns the lowest common ancestor of a and b.
func (d *Dendrogram) LCA(a, b *Node) *Node {
	for a.Depth > b.Depth {
		a = &d.nodes[a.Parent]
	}
	for b.Depth > a.Depth {
		b = &d.nodes[b.Parent]
	}
	for a.Index != b.Index {
		a = &d.nodes[a.Parent]
		b = &d.nodes[b.Parent]
	}
	return a
}

// CopheneticDistance returns the merge height at which a and b first join.
// It is zero when a and b are the same node.
func (d *Dendrogram) CopheneticDistance(a, b *Node) float64 {
	if a.Index == b.Index {
		return 0
	}
	return d.LCA(a, b).Height
}

// TopCut returns the classic k-cluster cut: starting at the root, the
// highest merges are undone first until k nodes are open or only leaves
// remain. Nodes are returned in leaf order.
func (d *Dendrogram) TopCut(k int) []*Node {
	if k < 1 {
		k = 1
	}
	q := NewHeightQueue(false)
	var closed []*Node
	q.Push(d.Root())
	for q.Len() > 0 && q.Len()+len(closed) < k {
		n := q.Pop()
		if n.IsLeaf() {
			closed = append(closed, n)
			continue
		}
		left, right := d.Children(n)
		q.Push(left)
		q.Push(right)
	}
	out := append(closed, q.Drain()...)
	SortByLeafOrder(out)
	return out
}

// SortByLeafOrder sorts nodes by the start of their leaf-order range.
func SortByLeafOrder(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].leafLo != nodes[j].leafLo {
			return nodes[i].leafLo < nodes[j].leafLo
		}
		return nodes[i].Depth < nodes[j].Depth
	})
}
