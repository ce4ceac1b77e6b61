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
	"github.com/AleutianAI/clusterview/services/clusterview/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /v1/clusterview/* endpoints.
//
// Inputs:
//
//	rg - Gin router group (typically /v1).
//	handlers - The handlers instance.
//
// Endpoints:
//
//	POST /v1/clusterview/view - Compute a view
//	POST /v1/clusterview/preview/expand - Preview an expand
//	POST /v1/clusterview/preview/collapse - Preview a collapse
//	GET  /v1/clusterview/node/:id - Describe a node
//	GET  /v1/clusterview/health - Health check
//	GET  /v1/clusterview/ready - Readiness check with cache statistics
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cv := rg.Group("/clusterview")
	{
		cv.POST("/view", handlers.HandleView)

		cv.POST("/preview/expand", handlers.HandleExpandPreview)
		cv.POST("/preview/collapse", handlers.HandleCollapsePreview)

		cv.GET("/node/:id", handlers.HandleNode)

		cv.GET("/health", handlers.HandleHealth)
		cv.GET("/ready", handlers.HandleReady)
	}
}

// NewRouter builds the gin engine: recovery, OpenTelemetry middleware, the
// /v1 routes and the Prometheus /metrics endpoint.
func NewRouter(serviceName string, handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	return router
}
