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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("clusterview.cache")
	meter  = otel.Meter("clusterview.cache")
)

var (
	viewCacheHits      metric.Int64Counter
	viewCacheMisses    metric.Int64Counter
	viewCacheEvictions metric.Int64Counter
	viewCacheShared    metric.Int64Counter
	viewComputeLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics registers the instruments once. Later calls return the
// first registration error, if any.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if viewCacheHits, err = meter.Int64Counter(
			"view_cache_hits_total",
			metric.WithDescription("View cache lookups served from cache"),
		); err != nil {
			metricsErr = err
			return
		}

		if viewCacheMisses, err = meter.Int64Counter(
			"view_cache_misses_total",
			metric.WithDescription("View cache lookups that required a computation"),
		); err != nil {
			metricsErr = err
			return
		}

		if viewCacheEvictions, err = meter.Int64Counter(
			"view_cache_evictions_total",
			metric.WithDescription("Views evicted by the LRU policy"),
		); err != nil {
			metricsErr = err
			return
		}

		if viewCacheShared, err = meter.Int64Counter(
			"view_cache_shared_total",
			metric.WithDescription("Lookups that joined an in-flight computation"),
		); err != nil {
			metricsErr = err
			return
		}

		if viewComputeLatency, err = meter.Float64Histogram(
			"view_compute_duration_seconds",
			metric.WithDescription("Duration of view computations on cache miss"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context, name string) {
	if initMetrics() != nil {
		return
	}
	viewCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", name)))
}

func recordMiss(ctx context.Context, name string) {
	if initMetrics() != nil {
		return
	}
	viewCacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", name)))
}

func recordEviction(name string) {
	if initMetrics() != nil {
		return
	}
	viewCacheEvictions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache", name)))
}

func recordShared(ctx context.Context, name string) {
	if initMetrics() != nil {
		return
	}
	viewCacheShared.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", name)))
}

func recordComputeLatency(ctx context.Context, name string, d time.Duration, failed bool) {
	if initMetrics() != nil {
		return
	}
	viewComputeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("cache", name),
		attribute.Bool("error", failed),
	))
}

// startCacheSpan creates a span for a cache operation.
func startCacheSpan(ctx context.Context, name, operation string, key Key) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ViewCache."+operation,
		trace.WithAttributes(
			attribute.String("cache.name", name),
			attribute.String("cache.operation", operation),
			attribute.String("cache.key", string(key)),
		),
	)
}
