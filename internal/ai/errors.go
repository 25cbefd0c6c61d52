package ai

import (
	"context"
	"errors"
	"fmt"
)

// ProviderError classifies a provider failure for the caller's retry policy.
// Retryable covers server errors, connection problems and timeouts; everything
// else (refusals, empty output, client errors) should abort without consuming
// retry budget.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err represents a transient provider failure.
// Context deadline errors count as connection-class failures and are retryable;
// an unclassified error is treated as unexpected and therefore retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func retryableErr(op string, err error) error {
	return &ProviderError{Op: op, Retryable: true, Err: err}
}

func permanentErr(op string, err error) error {
	return &ProviderError{Op: op, Retryable: false, Err: err}
}
