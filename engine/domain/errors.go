package domain

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the ingestion and query pipelines.
// Callers classify failures with errors.Is.
var (
	ErrInvalidConfiguration     = errors.New("invalid configuration")
	ErrExtraction               = errors.New("extraction failed")
	ErrDecoding                 = errors.New("invalid UTF-8 input")
	ErrEmbeddingService         = errors.New("embedding service error")
	ErrGenerationService        = errors.New("generation service error")
	ErrRetrievalService         = errors.New("retrieval service error")
	ErrCollectionNotInitialized = errors.New("collection not initialized")
	ErrEmptyQuery               = errors.New("empty query")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsServiceError reports whether err came from one of the external services.
func IsServiceError(err error) bool {
	return errors.Is(err, ErrEmbeddingService) ||
		errors.Is(err, ErrGenerationService) ||
		errors.Is(err, ErrRetrievalService)
}
