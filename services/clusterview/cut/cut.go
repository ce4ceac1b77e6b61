// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cut maintains the visible cut of a dendrogram: the set of
// clusters currently displayed, which always partitions the leaves.
//
// A request with no expansions starts from an MDL-gated default (lowest
// merges first, bounded by the budget). A request that names expansions
// starts from the root and opens exactly those nodes. A collapse is
// applied last. Every operation either applies fully or leaves the cut
// untouched.
package cut

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/mdl"
)

// Cut is a mutable visible set over an immutable dendrogram.
//
// Description:
//
//	Visible nodes are tracked by linkage index. Expand replaces a visible
//	internal node by its two children; Collapse replaces every visible
//	descendant of a parent by the parent. Each operation changes the
//	visible count by a known amount, so the budget check happens before
//	any mutation.
//
// Thread Safety:
//
//	Not safe for concurrent use. Each request builds its own Cut; the
//	underlying dendrogram is shared read-only.
type Cut struct {
	d       *dendrogram.Dendrogram
	budget  int
	visible map[int]struct{}
}

// NewRoot creates a cut showing only the root.
//
// Inputs:
//
//	d - The dendrogram. Must not be nil.
//	budget - Maximum visible clusters. Values below 1 are treated as 1.
func NewRoot(d *dendrogram.Dendrogram, budget int) *Cut {
	return &Cut{
		d:       d,
		budget:  max(budget, 1),
		visible: map[int]struct{}{d.Root().Index: {}},
	}
}

// NewDefault creates the MDL-gated default cut.
//
// Description:
//
//	Starting from the root, the open node with the lowest merge height is
//	repeatedly considered for splitting. A split is applied when the scorer
//	judges it informative and the visible count stays within budget. Nodes
//	whose split is not informative stay visible and are not reconsidered.
//	Each split adds exactly one visible cluster, so the loop stops as soon
//	as the count reaches the budget or no candidates remain.
//
// Inputs:
//
//	d - The dendrogram. Must not be nil.
//	scorer - The MDL scorer. Must not be nil.
//	budget - Maximum visible clusters. Values below 1 are treated as 1.
//
// Outputs:
//
//	*Cut - The default cut. Never nil.
func NewDefault(d *dendrogram.Dendrogram, scorer *mdl.Scorer, budget int) *Cut {
	c := NewRoot(d, budget)

	q := dendrogram.NewHeightQueue(true)
	if root := d.Root(); !root.IsLeaf() {
		q.Push(root)
	}

	for q.Len() > 0 && len(c.visible) < c.budget {
		n := q.Pop()
		left, right := d.Children(n)
		if !scorer.ShouldSplit(n, left, right) {
			continue
		}
		c.replace(n, left, right)
		for _, child := range []*dendrogram.Node{left, right} {
			if !child.IsLeaf() {
				q.Push(child)
			}
		}
	}
	return c
}

// Dendrogram returns the underlying tree.
func (c *Cut) Dendrogram() *dendrogram.Dendrogram {
	return c.d
}

// Budget returns the maximum number of visible clusters.
func (c *Cut) Budget() int {
	return c.budget
}

// Len returns the number of visible clusters.
func (c *Cut) Len() int {
	return len(c.visible)
}

// Remaining returns how many more clusters the budget allows.
func (c *Cut) Remaining() int {
	return max(0, c.budget-len(c.visible))
}

// IsVisible reports whether n is in the visible set.
func (c *Cut) IsVisible(n *dendrogram.Node) bool {
	_, ok := c.visible[n.Index]
	return ok
}

// Clusters returns the visible nodes in leaf order.
func (c *Cut) Clusters() []*dendrogram.Node {
	out := make([]*dendrogram.Node, 0, len(c.visible))
	for idx := range c.visible {
		out = append(out, c.d.At(idx))
	}
	dendrogram.SortByLeafOrder(out)
	return out
}

// IDs returns the visible node ids in leaf order.
func (c *Cut) IDs() []string {
	nodes := c.Clusters()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// Clone returns an independent copy sharing the dendrogram.
func (c *Cut) Clone() *Cut {
	visible := make(map[int]struct{}, len(c.visible))
	for idx := range c.visible {
		visible[idx] = struct{}{}
	}
	return &Cut{d: c.d, budget: c.budget, visible: visible}
}

// lookup resolves an id or returns a NotFoundError.
func (c *Cut) lookup(id string) (*dendrogram.Node, error) {
	n, err := c.d.Node(id)
	if err != nil {
		return nil, &NotFoundError{ID: id}
	}
	return n, nil
}

// Expand replaces the visible node id by its two children.
//
// Description:
//
//	The expansion is all-or-nothing: if showing both children would
//	exceed the budget the cut is left unchanged.
//
// Outputs:
//
//	error - *NotFoundError for unknown ids, *InvalidOperationError with
//	        ReasonLeaf or ReasonNotVisible, *BudgetExceededError when the
//	        budget is exhausted. Nil on success.
func (c *Cut) Expand(id string) error {
	n, err := c.lookup(id)
	if err != nil {
		return err
	}
	return c.expand(n)
}

func (c *Cut) expand(n *dendrogram.Node) error {
	if n.IsLeaf() {
		return &InvalidOperationError{Op: CodeCannotExpand, ID: n.ID, Reason: ReasonLeaf}
	}
	if !c.IsVisible(n) {
		return &InvalidOperationError{Op: CodeCannotExpand, ID: n.ID, Reason: ReasonNotVisible}
	}
	if len(c.visible)+1 > c.budget {
		return &BudgetExceededError{ID: n.ID, Budget: c.budget, Visible: len(c.visible), Reason: ReasonBudgetExhausted}
	}
	left, right := c.d.Children(n)
	c.replace(n, left, right)
	return nil
}

// Collapse replaces a group of visible siblings by their parent.
//
// Description:
//
//	Every id in ids must be visible and share the same parent. All
//	visible clusters under that parent, including deeper descendants of
//	a sibling that was expanded further, are replaced by the parent.
//	Collapsing never increases the visible count, so it is not budget
//	checked. The group is checked in leaf order, so the node named by a
//	refusal does not depend on the order of ids.
//
// Outputs:
//
//	error - *NotFoundError for unknown ids, *InvalidOperationError with
//	        ReasonRoot, ReasonNotVisible, ReasonNotSiblings or
//	        ReasonEmptyGroup. Nil on success.
func (c *Cut) Collapse(ids []string) error {
	nodes := make([]*dendrogram.Node, len(ids))
	for i, id := range ids {
		n, err := c.lookup(id)
		if err != nil {
			return err
		}
		nodes[i] = n
	}
	return c.collapse(nodes)
}

// collapse applies a resolved collapse group. nodes is reordered.
func (c *Cut) collapse(nodes []*dendrogram.Node) error {
	if len(nodes) == 0 {
		return &InvalidOperationError{Op: CodeCannotCollapse, Reason: ReasonEmptyGroup}
	}
	dendrogram.SortByLeafOrder(nodes)

	parent, err := c.collapseTarget(nodes)
	if err != nil {
		return err
	}
	c.absorb(parent)
	return nil
}

// collapseTarget validates a collapse group and returns the common parent.
func (c *Cut) collapseTarget(nodes []*dendrogram.Node) (*dendrogram.Node, error) {
	for _, n := range nodes {
		if n.Parent == dendrogram.NoNode {
			return nil, &InvalidOperationError{Op: CodeCannotCollapse, ID: n.ID, Reason: ReasonRoot}
		}
	}
	for _, n := range nodes {
		if !c.IsVisible(n) {
			return nil, &InvalidOperationError{Op: CodeCannotCollapse, ID: n.ID, Reason: ReasonNotVisible}
		}
	}
	parent := nodes[0].Parent
	for _, n := range nodes[1:] {
		if n.Parent != parent {
			return nil, &InvalidOperationError{Op: CodeCannotCollapse, ID: n.ID, Reason: ReasonNotSiblings}
		}
	}
	return c.d.At(parent), nil
}

// replace swaps a visible node for its children.
func (c *Cut) replace(n, left, right *dendrogram.Node) {
	delete(c.visible, n.Index)
	c.visible[left.Index] = struct{}{}
	c.visible[right.Index] = struct{}{}
}

// absorb removes every visible node under p and makes p visible.
func (c *Cut) absorb(p *dendrogram.Node) {
	lo, hi := p.LeafRange()
	for idx := range c.visible {
		nlo, nhi := c.d.At(idx).LeafRange()
		if lo <= nlo && nhi <= hi {
			delete(c.visible, idx)
		}
	}
	c.visible[p.Index] = struct{}{}
}

// under returns the visible nodes covered by p, excluding p, in leaf order.
func (c *Cut) under(p *dendrogram.Node) []*dendrogram.Node {
	lo, hi := p.LeafRange()
	var out []*dendrogram.Node
	for idx := range c.visible {
		n := c.d.At(idx)
		nlo, nhi := n.LeafRange()
		if n.Index != p.Index && lo <= nlo && nhi <= hi {
			out = append(out, n)
		}
	}
	dendrogram.SortByLeafOrder(out)
	return out
}

// Verify checks that the visible set partitions the leaves.
//
// Description:
//
//	Leaves are validated disjoint at load and every node covers a
//	contiguous leaf-order range, so the visible set is a partition exactly
//	when the visible ranges, sorted by start, tile [0, LeafCount) with no
//	gap or overlap. A violation is a bookkeeping defect. It is counted and
//	returned, never repaired; the caller logs it.
//
// Outputs:
//
//	error - *InvariantViolationError on violation, nil otherwise.
func (c *Cut) Verify() error {
	nodes := c.Clusters()
	next := 0
	members := 0
	var detail string
	for _, n := range nodes {
		lo, hi := n.LeafRange()
		switch {
		case lo < next:
			detail = fmt.Sprintf("%s overlaps leaf positions [%d, %d)", n.ID, lo, next)
		case lo > next:
			detail = fmt.Sprintf("leaf positions [%d, %d) uncovered before %s", next, lo, n.ID)
		}
		if detail != "" {
			break
		}
		next = hi
		members += n.Size
	}
	if detail == "" && next != c.d.LeafCount() {
		detail = fmt.Sprintf("leaf positions [%d, %d) uncovered", next, c.d.LeafCount())
	}
	if detail == "" && members != c.d.MemberCount() {
		detail = fmt.Sprintf("visible clusters cover %d of %d members", members, c.d.MemberCount())
	}
	if detail == "" {
		return nil
	}

	invariantViolations.Inc()
	return &InvariantViolationError{Detail: detail, Visible: c.IDs()}
}

// sortTopDown orders nodes parents first: by depth, then leaf order.
func sortTopDown(nodes []*dendrogram.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		ilo, _ := nodes[i].LeafRange()
		jlo, _ := nodes[j].LeafRange()
		return ilo < jlo
	})
}
