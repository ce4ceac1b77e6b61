// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache memoizes computed views by their canonical query key.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// Options configures a ViewCache.
type Options struct {
	// Name labels metrics and spans. Default: "view".
	Name string

	// MaxEntries bounds the LRU. Default: DefaultCapacity.
	MaxEntries int
}

// DefaultOptions returns the standard cache options.
func DefaultOptions() Options {
	return Options{Name: "view", MaxEntries: DefaultCapacity}
}

// Option is a functional option for configuring a ViewCache.
type Option func(*Options)

// WithMaxEntries sets the LRU capacity.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithName sets the metric and span label.
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// ViewCache is an LRU of immutable computed values with per-key
// compute-once semantics.
//
// Description:
//
//	A hit returns the stored value itself, so callers must treat values as
//	read-only. Concurrent misses on the same key share one computation
//	through singleflight. Failed computations are not cached.
//
// Thread Safety: Safe for concurrent use.
type ViewCache[V any] struct {
	lru     *LRU[Key, V]
	flight  singleflight.Group
	options Options

	computes atomic.Int64
	errors   atomic.Int64
	shared   atomic.Int64
}

// New creates a ViewCache.
func New[V any](opts ...Option) *ViewCache[V] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	c := &ViewCache[V]{options: options}
	c.lru = NewLRU[Key, V](options.MaxEntries, func(Key) { recordEviction(options.Name) })
	return c
}

// Get returns the cached value for key.
func (c *ViewCache[V]) Get(ctx context.Context, key Key) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		recordHit(ctx, c.options.Name)
	}
	return v, ok
}

// GetOrCompute returns the cached value for key or computes and stores it.
//
// Description:
//
//	The fast path is a plain LRU lookup. On a miss, callers for the same
//	key are funnelled through singleflight; the leader re-checks the LRU,
//	then computes and stores. If another value was stored for the key in
//	the meantime, the stored value wins so every caller observes the
//	same value.
//
// Inputs:
//
//	ctx - Context passed to compute and used for tracing.
//	key - Canonical key, usually KeyParams.Key().
//	compute - Produces the value on a miss. Must be deterministic for key.
//
// Outputs:
//
//	V - The cached or computed value.
//	bool - True if the value came from the cache.
//	error - The compute error, if any. Errors are not cached.
func (c *ViewCache[V]) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc[V]) (V, bool, error) {
	ctx, span := startCacheSpan(ctx, c.options.Name, "GetOrCompute", key)
	defer span.End()

	if v, ok := c.lru.Get(key); ok {
		recordHit(ctx, c.options.Name)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, true, nil
	}
	recordMiss(ctx, c.options.Name)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.flight.Do(string(key), func() (any, error) {
		if v, ok := c.lru.Peek(key); ok {
			return v, nil
		}

		start := time.Now()
		v, err := compute(ctx)
		recordComputeLatency(ctx, c.options.Name, time.Since(start), err != nil)
		if err != nil {
			c.errors.Add(1)
			return nil, err
		}
		c.computes.Add(1)

		stored, _ := c.lru.Add(key, v)
		return stored, nil
	})
	if shared {
		c.shared.Add(1)
		recordShared(ctx, c.options.Name)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		var zero V
		return zero, false, err
	}
	return result.(V), false, nil
}

// Purge drops every entry and resets the statistics.
func (c *ViewCache[V]) Purge() {
	c.lru.Purge()
	c.computes.Store(0)
	c.errors.Store(0)
	c.shared.Store(0)
}

// Len returns the number of cached values.
func (c *ViewCache[V]) Len() int {
	return c.lru.Len()
}

// Stats contains cache statistics.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Computes   int64 `json:"computes"`
	Errors     int64 `json:"errors"`
	Shared     int64 `json:"shared"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Stats returns current cache statistics.
func (c *ViewCache[V]) Stats() Stats {
	hits, misses, evictions := c.lru.Stats()
	return Stats{
		Entries:    c.lru.Len(),
		MaxEntries: c.lru.Capacity(),
		Hits:       hits,
		Misses:     misses,
		Evictions:  evictions,
		Computes:   c.computes.Load(),
		Errors:     c.errors.Load(),
		Shared:     c.shared.Load(),
	}
}
