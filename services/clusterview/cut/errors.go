// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cut

import (
	"errors"
	"strconv"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNotFound indicates a referenced cluster id is not in the dendrogram.
	ErrNotFound = errors.New("cluster not found")

	// ErrInvalidOperation indicates an expand or collapse that the current
	// tree shape does not allow.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrBudgetExceeded indicates an expansion would exceed the budget.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvariantViolation indicates the visible set no longer partitions
	// the leaves. This is a bookkeeping defect.
	ErrInvariantViolation = errors.New("partition invariant violated")
)

// Rejection codes reported to callers.
const (
	CodeNotFound        = "not_found"
	CodeCannotExpand    = "cannot_expand"
	CodeCannotCollapse  = "cannot_collapse"
	CodeBudgetExhausted = "budget_exhausted"
)

// Rejection reasons.
const (
	ReasonLeaf            = "leaf node"
	ReasonRoot            = "already at root"
	ReasonNotVisible      = "not visible"
	ReasonNotSiblings     = "not siblings"
	ReasonEmptyGroup      = "empty collapse group"
	ReasonBudgetExhausted = "budget_exhausted"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// NotFoundError reports a cluster id absent from the dendrogram.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return "cluster " + strconv.Quote(e.ID) + " not found"
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidOperationError reports an expand or collapse the tree does not
// allow, with a structured reason.
type InvalidOperationError struct {
	// Op is CodeCannotExpand or CodeCannotCollapse.
	Op string

	// ID is the cluster the operation targeted.
	ID string

	// Reason is one of the Reason* constants.
	Reason string
}

// Error implements the error interface.
func (e *InvalidOperationError) Error() string {
	return e.Op + " " + strconv.Quote(e.ID) + ": " + e.Reason
}

// Unwrap returns ErrInvalidOperation.
func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// BudgetExceededError reports an expansion that would exceed the budget.
type BudgetExceededError struct {
	// ID is the cluster whose expansion was rejected.
	ID string

	// Budget is the resolved budget.
	Budget int

	// Visible is the visible count before the rejected expansion.
	Visible int

	// Reason is always ReasonBudgetExhausted.
	Reason string
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return "expand " + strconv.Quote(e.ID) + ": " + e.Reason +
		" (" + strconv.Itoa(e.Visible) + " of " + strconv.Itoa(e.Budget) + " visible)"
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// InvariantViolationError reports a broken partition.
type InvariantViolationError struct {
	// Detail describes the first inconsistency found.
	Detail string

	// Visible lists the visible ids at the time of the check.
	Visible []string
}

// Error implements the error interface.
func (e *InvariantViolationError) Error() string {
	return "partition invariant violated: " + e.Detail + " [" + strings.Join(e.Visible, ",") + "]"
}

// Unwrap returns ErrInvariantViolation.
func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}
