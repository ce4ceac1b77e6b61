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
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// MaxArtifactSize bounds the artifact file read at startup (1 GiB).
const MaxArtifactSize = 1 << 30

// Artifact is the hand-off document written by the embedding service.
//
// Linkage rows are [left, right, height] or [left, right, height, count]
// in scipy numbering. InternalIDs, when present, names the node created by
// each merge and must have one entry per linkage row.
type Artifact struct {
	Leaves      []MicroCluster `json:"leaves"`
	Linkage     [][]float64    `json:"linkage"`
	InternalIDs []string       `json:"internal_ids,omitempty"`
}

// Merges converts the linkage rows to typed merges.
func (a *Artifact) Merges() ([]Merge, error) {
	if a.InternalIDs != nil && len(a.InternalIDs) != len(a.Linkage) {
		return nil, fmt.Errorf("%w: %d internal ids for %d linkage rows", ErrInvalidLinkage, len(a.InternalIDs), len(a.Linkage))
	}

	merges := make([]Merge, len(a.Linkage))
	for i, row := range a.Linkage {
		if len(row) != 3 && len(row) != 4 {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrInvalidLinkage, i, len(row))
		}
		left, err := indexValue(row[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d left: %v", ErrInvalidLinkage, i, err)
		}
		right, err := indexValue(row[1])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d right: %v", ErrInvalidLinkage, i, err)
		}
		m := Merge{Left: left, Right: right, Height: row[2]}
		if len(row) == 4 {
			if m.Count, err = indexValue(row[3]); err != nil {
				return nil, fmt.Errorf("%w: row %d count: %v", ErrInvalidLinkage, i, err)
			}
		}
		if a.InternalIDs != nil {
			m.ID = a.InternalIDs[i]
		}
		merges[i] = m
	}
	return merges, nil
}

// Build validates the artifact and constructs the dendrogram.
func (a *Artifact) Build() (*Dendrogram, error) {
	merges, err := a.Merges()
	if err != nil {
		return nil, err
	}
	return New(a.Leaves, merges)
}

// ParseArtifact decodes an artifact from r and builds the dendrogram.
func ParseArtifact(r io.Reader) (*Dendrogram, error) {
	var a Artifact
	dec := json.NewDecoder(io.LimitReader(r, MaxArtifactSize))
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return a.Build()
}

// LoadArtifact reads the artifact file at path and builds the dendrogram.
//
// Description:
//
//	Called once at process start. The returned dendrogram is shared
//	read-only by every request for the lifetime of the process.
//
// Inputs:
//
//	path - Path to the JSON artifact.
//
// Outputs:
//
//	*Dendrogram - The loaded tree.
//	error - Non-nil if the file is missing, too large, or invalid.
func LoadArtifact(path string) (*Dendrogram, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size() > MaxArtifactSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrArtifactTooLarge, path, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	d, err := ParseArtifact(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

// indexValue converts a float linkage cell to a non-negative integer.
func indexValue(v float64) (int, error) {
	if math.IsNaN(v) || v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("not a node index: %v", v)
	}
	return int(v), nil
}
