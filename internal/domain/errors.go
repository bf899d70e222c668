package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrWorkflowBusy = errors.New("workflow already in progress")
	ErrLockHeld     = errors.New("lock already held")
	ErrNoSnapshot   = errors.New("no snapshot available")
)

// ValidationError reports missing or malformed user input. It is recovered
// locally: the workflow stays in (or returns to) Idle and no write is
// submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ReadError reports a failed view call for a single market. Read failures
// are isolated per market and never abort a snapshot fetch.
type ReadError struct {
	MarketID int64
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read market %d: %v", e.MarketID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SubmissionError reports that a write transaction never made it onto the
// ledger: signing declined, insufficient balance, malformed arguments, or an
// unreachable RPC endpoint.
type SubmissionError struct {
	Op  string // contract function, e.g. "approve"
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationError reports that a submitted transaction did not reach a
// successful terminal state: it reverted on-chain, was dropped, or the
// confirmation wait timed out.
type ConfirmationError struct {
	TxHash string
	Reason string
	Err    error
}

func (e *ConfirmationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("confirm %s: %s: %v", e.TxHash, e.Reason, e.Err)
	}
	return fmt.Sprintf("confirm %s: %s", e.TxHash, e.Reason)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
