// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers received from
// clients.
//
// Cluster ids arrive in request bodies and URL paths and are echoed back in
// responses, logs and span attributes. These validators keep them bounded and
// printable.
package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxClusterIDLength bounds a cluster id in bytes.
const MaxClusterIDLength = 256

// ClusterIDTag is the struct tag registered by RegisterClusterID.
const ClusterIDTag = "cluster_id"

// ValidateClusterID checks a client-supplied cluster id.
//
// Valid ids:
//   - 1 to MaxClusterIDLength bytes
//   - Valid UTF-8
//   - No control characters (newlines, NUL, escape sequences)
//
// Whether the id exists in the dendrogram is not checked here.
//
// Example:
//
//	if err := validation.ValidateClusterID(id); err != nil {
//	    return fmt.Errorf("invalid id: %w", err)
//	}
func ValidateClusterID(id string) error {
	if id == "" {
		return fmt.Errorf("cluster id cannot be empty")
	}
	if len(id) > MaxClusterIDLength {
		return fmt.Errorf("cluster id too long: %d bytes (max %d)", len(id), MaxClusterIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("cluster id is not valid UTF-8: %q", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("cluster id contains control character %U: %q", r, id)
		}
	}
	return nil
}

// ValidateClusterIDs validates multiple ids.
// Returns an error listing all invalid ids if any fail validation.
func ValidateClusterIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateClusterID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid cluster ids: %q", invalid)
	}
	return nil
}

// RegisterClusterID registers the "cluster_id" tag on v so request structs
// can declare `validate:"dive,cluster_id"`.
func RegisterClusterID(v *validator.Validate) error {
	return v.RegisterValidation(ClusterIDTag, func(fl validator.FieldLevel) bool {
		return ValidateClusterID(fl.Field().String()) == nil
	})
}
