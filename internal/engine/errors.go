package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure that halts the run. Per-future outcomes
// (reverts, simulation errors, timeouts) are not RuntimeErrors; they are
// recorded in the journal and reported in the Result.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FutureID identifies the affected future, if any.
	FutureID string

	// InteractionID identifies the network interaction, if any.
	InteractionID int

	// Err is the underlying provider or storage error.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInitialize indicates a future could not be initialized.
	ErrCodeInitialize RuntimeErrorCode = "INITIALIZE_FAILED"

	// ErrCodeSend indicates a transaction could not be broadcast.
	ErrCodeSend RuntimeErrorCode = "SEND_FAILED"

	// ErrCodePoll indicates the chain could not be queried for progress.
	ErrCodePoll RuntimeErrorCode = "POLL_FAILED"

	// ErrCodeStrategy indicates a strategy returned an error instead of a step.
	ErrCodeStrategy RuntimeErrorCode = "STRATEGY_FAILED"

	// ErrCodeJournal indicates a message could not be recorded or applied.
	ErrCodeJournal RuntimeErrorCode = "JOURNAL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.FutureID != "" && e.InteractionID != 0 {
		return fmt.Sprintf("%s: %s (future=%s, interaction=%d)", e.Code, msg, e.FutureID, e.InteractionID)
	}
	if e.FutureID != "" {
		return fmt.Sprintf("%s: %s (future=%s)", e.Code, msg, e.FutureID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError reports whether err is a RuntimeError with the given code.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func runtimeErr(code RuntimeErrorCode, futureID string, interactionID int, msg string, err error) *RuntimeError {
	return &RuntimeError{Code: code, Message: msg, FutureID: futureID, InteractionID: interactionID, Err: err}
}
