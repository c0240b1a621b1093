package confirm

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoSelection             = errors.New("no pending transaction selected")
	ErrInvalidTransition       = errors.New("operation not allowed in current state")
	ErrEditUnsupported         = errors.New("edit not supported for this transaction")
	ErrQueueTooShort           = errors.New("queue holds fewer than two transactions")
	ErrInsufficientFundsForGas = errors.New("insufficient funds for gas")
	ErrMissingGasLimit         = errors.New("missing gas limit")
)

// BackendError is a failed backend call. The item it concerns stays
// actionable and the call can be retried.
type BackendError struct {
	Op  string
	ID  string
	Err error
}

func (e *BackendError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Retryable is false only when the caller cancelled the call.
func (e *BackendError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

func transitionError(op string, s EditState) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, s)
}
