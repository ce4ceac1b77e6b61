// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clusterview

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/clusterview/services/clusterview/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cache status header values.
const (
	headerCache = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

// Handlers contains the HTTP handlers for the cluster view service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleView handles POST /v1/clusterview/view.
//
// Description:
//
//	Returns the visible clusters, sibling edges and layout for the
//	requested state. Refused expand or collapse operations are reported in
//	meta.rejections and do not fail the request. The X-Cache header says
//	whether the view was served from the cache.
//
// Request Body:
//
//	ViewRequest
//
// Response:
//
//	200 OK: view.View
//	400 Bad Request: Validation error
//	404 Not Found: Unknown node id
//	500 Internal Server Error: Invariant violation or layout failure
func (h *Handlers) HandleView(c *gin.Context) {
	logger := h.requestLogger(c, "HandleView")
	if !h.ready(c, logger) {
		return
	}

	var req ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	v, hit, err := h.svc.View(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "View failed", err)
		return
	}

	if hit {
		c.Header(headerCache, cacheHit)
	} else {
		c.Header(headerCache, cacheMiss)
	}
	logger.Debug("View served",
		"clusters", len(v.Clusters),
		"budget", v.Meta.Budget,
		"rejections", len(v.Meta.Rejections),
		"cache_hit", hit)
	c.JSON(http.StatusOK, v)
}

// HandleExpandPreview handles POST /v1/clusterview/preview/expand.
//
// Request Body:
//
//	PreviewRequest
//
// Response:
//
//	200 OK: cut.ExpandPreview
//	400 Bad Request: Validation error
//	404 Not Found: Unknown node id
func (h *Handlers) HandleExpandPreview(c *gin.Context) {
	logger := h.requestLogger(c, "HandleExpandPreview")
	if !h.ready(c, logger) {
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: CodeInvalidRequest})
		return
	}

	p, err := h.svc.ExpandPreview(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "Expand preview failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// HandleCollapsePreview handles POST /v1/clusterview/preview/collapse.
//
// Request Body:
//
//	PreviewRequest
//
// Response:
//
//	200 OK: cut.CollapsePreview
//	400 Bad Request: Validation error
//	404 Not Found: Unknown node id
func (h *Handlers) HandleCollapsePreview(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCollapsePreview")
	if !h.ready(c, logger) {
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: CodeInvalidRequest})
		return
	}

	p, err := h.svc.CollapsePreview(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "Collapse preview failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// HandleNode handles GET /v1/clusterview/node/:id.
//
// Response:
//
//	200 OK: view.NodeInfo
//	404 Not Found: Unknown node id
func (h *Handlers) HandleNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleNode")
	if !h.ready(c, logger) {
		return
	}

	info, err := h.svc.Node(c.Param("id"))
	if err != nil {
		h.fail(c, logger, "Node lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleHealth handles GET /v1/clusterview/health. Always 200 if running.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/clusterview/ready.
//
// Response:
//
//	200 OK: ReadyResponse with tree size and cache statistics
//	503 Service Unavailable: No service attached
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.svc == nil {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false})
		return
	}
	c.JSON(http.StatusOK, h.svc.Ready())
}

// ready writes a 503 and returns false when no service is attached.
func (h *Handlers) ready(c *gin.Context, logger *slog.Logger) bool {
	if h.svc != nil {
		return true
	}
	c.Header("Retry-After", "5")
	h.fail(c, logger, "Service not ready", ErrNotReady)
	return false
}

// fail writes the ErrorResponse for err. Client errors log at Warn, server
// errors at Error.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err, "code", code)
	} else {
		logger.Warn(msg, "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	base := slog.Default()
	if h.svc != nil {
		base = h.svc.logger
	}
	logger := base.With("request_id", getOrCreateRequestID(c), "handler", handler)
	return telemetry.LoggerWithTrace(c.Request.Context(), logger)
}

// getOrCreateRequestID returns the X-Request-ID header or a new UUID, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
