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

import "container/heap"

// HeightQueue is a priority queue of nodes keyed by merge height.
//
// Description:
//
//	Ascending queues pop the lowest merge first, descending queues the
//	highest. Ties break on linkage index (lower first) so pop order is
//	fully deterministic.
//
// Thread Safety: Not safe for concurrent use.
type HeightQueue struct {
	h heightHeap
}

// NewHeightQueue creates an empty queue.
func NewHeightQueue(ascending bool) *HeightQueue {
	q := &HeightQueue{h: heightHeap{ascending: ascending}}
	heap.Init(&q.h)
	return q
}

// Push adds a node.
func (q *HeightQueue) Push(n *Node) {
	heap.Push(&q.h, n)
}

// Pop removes and returns the highest-priority node. It panics when empty.
func (q *HeightQueue) Pop() *Node {
	return heap.Pop(&q.h).(*Node)
}

// Len returns the number of queued nodes.
func (q *HeightQueue) Len() int {
	return q.h.Len()
}

// Drain empties the queue and returns its nodes in no particular order.
func (q *HeightQueue) Drain() []*Node {
	out := q.h.items
	q.h.items = nil
	return out
}

// heightHeap implements heap.Interface.
type heightHeap struct {
	items     []*Node
	ascending bool
}

func (h heightHeap) Len() int { return len(h.items) }

func (h heightHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Height != b.Height {
		if h.ascending {
			return a.Height < b.Height
		}
		return a.Height > b.Height
	}
	return a.Index < b.Index
}

func (h heightHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *heightHeap) Push(x any) { h.items = append(h.items, x.(*Node)) }

func (h *heightHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return x
}
