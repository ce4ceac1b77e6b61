// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"slices"
	"strconv"
)

// Key is a canonical view cache key: the hex SHA-256 of the canonical
// parameter encoding.
type Key string

// KeyParams are the query parameters that affect a computed view.
//
// Description:
//
//	ExpandedIDs and CollapseGroup are sets: their order and repeats do
//	not change the key. Budget is the resolved count rather than the raw
//	preference, so preferences that resolve to the same budget share an
//	entry.
type KeyParams struct {
	Budget         int
	ExpandedIDs    []string
	CollapseGroup  []string
	Affinity       float64
	IncludeMembers bool
}

// canonicalParams is the encoded form. Field order is fixed by the struct.
type canonicalParams struct {
	Budget         int      `json:"b"`
	ExpandedIDs    []string `json:"e"`
	CollapseGroup  []string `json:"c"`
	Affinity       string   `json:"a"`
	IncludeMembers bool     `json:"m"`
}

// Canonical returns the order-independent encoding of p.
//
// Description:
//
//	Sets are sorted and deduplicated, and the affinity is formatted with
//	the shortest exact representation so equal floats always encode the
//	same. NaN and -0 affinity encode as 0.
func (p KeyParams) Canonical() []byte {
	aff := p.Affinity
	if math.IsNaN(aff) || aff == 0 {
		aff = 0 // also folds -0
	}
	// json.Marshal cannot fail for this struct.
	b, _ := json.Marshal(canonicalParams{
		Budget:         p.Budget,
		ExpandedIDs:    normalizeSet(p.ExpandedIDs),
		CollapseGroup:  normalizeSet(p.CollapseGroup),
		Affinity:       strconv.FormatFloat(aff, 'g', -1, 64),
		IncludeMembers: p.IncludeMembers,
	})
	return b
}

// Key hashes the canonical encoding.
func (p KeyParams) Key() Key {
	h := sha256.Sum256(p.Canonical())
	return Key(hex.EncodeToString(h[:]))
}

// normalizeSet returns a sorted copy of ids without duplicates. Nil and
// empty inputs both encode as an empty list.
func normalizeSet(ids []string) []string {
	out := slices.Clone(ids)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
