package models

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// Sentinel errors for ledger lookups.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionNotFound  = errors.New("version not found")
	ErrContentNotFound  = errors.New("content not found")
)

// Sentinel errors for content integrity and storage availability.
var (
	ErrHashMismatch       = errors.New("content hash mismatch")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrGraphSync wraps a failed attempt to project a ledger event into the graph.
var ErrGraphSync = errors.New("graph sync failure")

// Sentinel errors for graph lookups.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
	ErrPathNotFound = errors.New("path not found")
)

// ErrTraversalLimit indicates a graph query touched more edges than one
// request may load. The answer is unknown, not empty.
var ErrTraversalLimit = errors.New("graph traversal limit exceeded")

// ErrTooLarge indicates an upload over the configured size limit.
var ErrTooLarge = errors.New("payload too large")

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409 Conflict).
var ErrDuplicateKey = errors.New("duplicate key")

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}

	return e.Field + ": " + e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a *ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrFieldRequired returns a validation error for a missing field.
func ErrFieldRequired(field string) error {
	return Invalid(field, "is required")
}

// ErrFieldTooLong returns a validation error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return Invalid(field, fmt.Sprintf("exceeds maximum length of %d", maxLen))
}
