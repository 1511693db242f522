// Package artifact contains pure functions for compiled contract artifacts:
// parsing, library linking and ABI argument packing.
// This is part of the Functional Core - all functions are pure with no I/O.
package artifact

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyInput         = errors.New("artifact is empty")
	ErrInvalidJSON        = errors.New("invalid artifact JSON")
	ErrInvalidABI         = errors.New("invalid contract ABI")
	ErrNoBytecode         = errors.New("artifact has no creation bytecode")
	ErrInvalidBytecode    = errors.New("invalid bytecode")
	ErrUnlinkedBytecode   = errors.New("bytecode has unresolved library placeholders")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrMethodNotFound     = errors.New("method not found in ABI")
	ErrArgumentCount      = errors.New("wrong number of arguments")
	ErrInvalidArgument    = errors.New("invalid argument value")
	ErrUnsupportedArgType = errors.New("unsupported argument type")
)

// ArtifactError wraps errors with the artifact and field they concern.
type ArtifactError struct {
	Name    string // artifact name, e.g. "TuneTrader"
	Field   string // e.g. "abi", "bytecode", "constructor[0]"
	Message string
	Err     error
}

func (e *ArtifactError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %s: %s", e.Name, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// NewArtifactError creates a new ArtifactError.
func NewArtifactError(name, field, message string, err error) *ArtifactError {
	return &ArtifactError{
		Name:    name,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
