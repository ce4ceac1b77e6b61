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
	"errors"
	"net/http"

	"github.com/AleutianAI/clusterview/services/clusterview/cut"
	"github.com/AleutianAI/clusterview/services/clusterview/layout"
)

// Sentinel errors for the cluster view service.
var (
	// ErrInvalidRequest indicates a request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotReady indicates the service has not finished loading its model.
	ErrNotReady = errors.New("service not ready")
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeNotReady           = "NOT_READY"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeLayoutFailed       = "LAYOUT_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// errorStatus maps an error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, cut.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable, CodeNotReady
	case errors.Is(err, cut.ErrInvariantViolation):
		return http.StatusInternalServerError, CodeInvariantViolation
	case errors.Is(err, layout.ErrDimensionMismatch),
		errors.Is(err, layout.ErrInvalidDissimilarity),
		errors.Is(err, layout.ErrInitShape):
		return http.StatusInternalServerError, CodeLayoutFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
