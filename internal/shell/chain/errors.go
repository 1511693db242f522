package chain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Transaction errors
	ErrTxReverted = errors.New("transaction reverted")
	ErrNoContract = errors.New("receipt has no contract address")
	ErrEmptyCode  = errors.New("creation code is empty")

	// Target errors
	ErrNoCode = errors.New("no code at address")

	// Connection errors
	ErrConnectionFailed = errors.New("chain connection failed")
	ErrInvalidKey       = errors.New("invalid private key")
	ErrTimeout          = errors.New("operation timed out")
)

// ChainError wraps errors with additional context.
type ChainError struct {
	Op      string // Operation that failed (publish, call, dial)
	Target  string // Unit name or address, if applicable
	Message string
	Err     error
}

func (e *ChainError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Target, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// NewChainError creates a new ChainError.
func NewChainError(op, target, message string, err error) *ChainError {
	return &ChainError{
		Op:      op,
		Target:  target,
		Message: message,
		Err:     err,
	}
}
