// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clusterview serves interactive hierarchical cluster views over
// HTTP.
//
// The service loads a dendrogram artifact once at startup and answers view
// and preview requests against it through the view engine. All state other
// than the view cache is read-only after Open returns.
package clusterview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/clusterview/pkg/validation"
	"github.com/AleutianAI/clusterview/services/clusterview/cache"
	"github.com/AleutianAI/clusterview/services/clusterview/config"
	"github.com/AleutianAI/clusterview/services/clusterview/cut"
	"github.com/AleutianAI/clusterview/services/clusterview/dendrogram"
	"github.com/AleutianAI/clusterview/services/clusterview/telemetry"
	"github.com/AleutianAI/clusterview/services/clusterview/view"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ServiceVersion is the cluster view service version.
const ServiceVersion = "0.1.0"

const tracerName = "clusterview.service"

var requestValidate = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	if err := validation.RegisterClusterID(v); err != nil {
		panic(fmt.Sprintf("register cluster_id validation: %v", err))
	}
	return v
}

// Service answers cluster view requests.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	engine   *view.Engine
	logger   *slog.Logger
	artifact string
	loadedAt time.Time
}

// NewService wraps an engine.
//
// Inputs:
//
//	engine - The view engine. Must not be nil.
//	logger - Service logger. Nil uses slog.Default().
func NewService(engine *view.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger, loadedAt: time.Now()}
}

// Open loads the artifact named by cfg and builds the service.
//
// Outputs:
//
//	*Service - The service.
//	error - Non-nil if the artifact cannot be loaded or the model config is
//	        invalid.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Service.Open",
		trace.WithAttributes(attribute.String("artifact", cfg.Artifact.Path)))
	defer span.End()

	start := time.Now()
	d, err := dendrogram.LoadArtifact(cfg.Artifact.Path)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load artifact: %w", err)
	}

	model, err := view.NewModel(d, cfg.Model())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("build model: %w", err)
	}

	vc := cache.New[*view.View](cache.WithMaxEntries(cfg.Cache.MaxEntries), cache.WithName("view"))
	engine := view.NewEngine(model, view.WithCache(vc), view.WithLogger(logger))

	svc := NewService(engine, logger)
	svc.artifact = cfg.Artifact.Path

	logger.Info("Dendrogram loaded",
		slog.String("artifact", cfg.Artifact.Path),
		slog.Int("nodes", d.Len()),
		slog.Int("leaves", d.LeafCount()),
		slog.Int("members", d.MemberCount()),
		slog.Float64("entropy", model.Entropy()),
		slog.Duration("duration", time.Since(start)))
	telemetry.SetSpanOK(span)
	return svc, nil
}

// Engine returns the underlying view engine.
func (s *Service) Engine() *view.Engine {
	return s.engine
}

// View computes the view for req.
//
// Outputs:
//
//	*view.View - The view. Shared with the cache; do not modify.
//	bool - True if served from the cache.
//	error - ErrInvalidRequest, cut.ErrNotFound or an internal failure.
func (s *Service) View(ctx context.Context, req ViewRequest) (*view.View, bool, error) {
	if err := requestValidate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.View",
		trace.WithAttributes(
			attribute.Int("expanded", len(req.ExpandedIDs)),
			attribute.Int("collapse", len(req.CollapseGroup)),
		))
	defer span.End()

	v, hit, err := s.engine.View(ctx, req.Query())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit), attribute.Int("clusters", len(v.Clusters)))
	telemetry.SetSpanOK(span)
	return v, hit, nil
}

// ExpandPreview evaluates expanding req.ID in the view described by req.
func (s *Service) ExpandPreview(ctx context.Context, req PreviewRequest) (cut.ExpandPreview, error) {
	if err := requestValidate.Struct(req); err != nil {
		return cut.ExpandPreview{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.ExpandPreview",
		trace.WithAttributes(attribute.String("id", req.ID)))
	defer span.End()

	p, err := s.engine.ExpandPreview(ctx, req.Query(), req.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return cut.ExpandPreview{}, err
	}
	return p, nil
}

// CollapsePreview evaluates collapsing req.ID in the view described by req.
func (s *Service) CollapsePreview(ctx context.Context, req PreviewRequest) (cut.CollapsePreview, error) {
	if err := requestValidate.Struct(req); err != nil {
		return cut.CollapsePreview{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.CollapsePreview",
		trace.WithAttributes(attribute.String("id", req.ID)))
	defer span.End()

	p, err := s.engine.CollapsePreview(ctx, req.Query(), req.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return cut.CollapsePreview{}, err
	}
	return p, nil
}

// Node describes one dendrogram node.
func (s *Service) Node(id string) (view.NodeInfo, error) {
	if err := validation.ValidateClusterID(id); err != nil {
		return view.NodeInfo{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.engine.Node(id)
}

// Ready reports the loaded tree and cache state.
func (s *Service) Ready() ReadyResponse {
	m := s.engine.Model()
	d := m.Dendrogram()
	return ReadyResponse{
		Ready:    true,
		Artifact: s.artifact,
		Nodes:    d.Len(),
		Leaves:   d.LeafCount(),
		Members:  d.MemberCount(),
		Entropy:  m.Entropy(),
		Cache:    s.engine.CacheStats(),
	}
}
