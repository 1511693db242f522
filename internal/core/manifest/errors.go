// Package manifest contains pure functions for parsing migration manifests.
// This is part of the Functional Core - all functions are pure with no I/O.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidManifest is matched by every ParseError.
	ErrInvalidManifest = errors.New("invalid manifest")

	// Input validation errors
	ErrEmptyInput = errors.New("manifest is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoSteps          = errors.New("manifest must define layout or steps")
	ErrLayoutAndSteps   = errors.New("manifest defines both layout and steps")
	ErrAmbiguousStep    = errors.New("step must have exactly one action")
	ErrMissingField     = errors.New("required field missing")
	ErrUnsupportedField = errors.New("field not supported for this action")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "steps[3].link.into"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap exposes both ErrInvalidManifest and the specific cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidManifest}
	}
	return []error{ErrInvalidManifest, e.Err}
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
