// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dendrogram provides the immutable merge tree over micro-clusters.
//
// The dendrogram is built once from the upstream embedding service's linkage
// output (scipy convention: leaves are 0..n-1, merge i creates node n+i) and
// never mutated afterwards. Sizes, centroids and pooled variances are
// aggregated bottom-up at load time so the visible-cut engine only ever holds
// references into a read-only structure.
//
// # Thread Safety
//
// A *Dendrogram is safe for concurrent reads from any number of goroutines.
// Nodes returned by lookups MUST NOT be mutated.
package dendrogram

import "errors"

// Sentinel errors for dendrogram construction and lookup.
var (
	// ErrNodeNotFound is returned when an id is absent from the dendrogram.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEmptyDendrogram is returned when no micro-clusters are supplied.
	ErrEmptyDendrogram = errors.New("dendrogram has no leaves")

	// ErrInvalidLinkage is returned when the merge list does not describe a
	// single binary tree over the supplied leaves.
	ErrInvalidLinkage = errors.New("invalid linkage")

	// ErrDimensionMismatch is returned when leaf centroids (or variances) do
	// not share one dimensionality.
	ErrDimensionMismatch = errors.New("centroid dimension mismatch")

	// ErrEmptyCluster is returned when a micro-cluster has no members.
	ErrEmptyCluster = errors.New("micro-cluster has no members")

	// ErrOverlappingMembers is returned when a member id appears in more than
	// one micro-cluster.
	ErrOverlappingMembers = errors.New("member assigned to multiple micro-clusters")

	// ErrDuplicateID is returned when two dendrogram nodes share an id.
	ErrDuplicateID = errors.New("duplicate node id")

	// ErrArtifactTooLarge is returned when an artifact file exceeds MaxArtifactSize.
	ErrArtifactTooLarge = errors.New("artifact exceeds size limit")
)
