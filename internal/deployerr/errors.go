// Package deployerr defines the fatal, user-actionable errors surfaced by
// deploy, wipe and track-tx. None of them are retried automatically.
package deployerr

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	// CodeDeploymentDirNotFound: the deployment directory does not exist.
	CodeDeploymentDirNotFound Code = "DEPLOYMENT_DIR_NOT_FOUND"

	// CodeUninitializedDeployment: no journal has been recorded yet.
	CodeUninitializedDeployment Code = "UNINITIALIZED_DEPLOYMENT"

	CodeTransactionNotFound       Code = "TRANSACTION_NOT_FOUND"
	CodeKnownTransaction          Code = "KNOWN_TRANSACTION"
	CodeMatchingNonceNotFound     Code = "MATCHING_NONCE_NOT_FOUND"
	CodeInsufficientConfirmations Code = "INSUFFICIENT_CONFIRMATIONS"

	// CodeWipeNotFound: the future has no recorded execution.
	CodeWipeNotFound Code = "WIPE_NOT_FOUND"

	// CodeWipeHasDependents: other recorded futures depend on the one being wiped.
	CodeWipeHasDependents Code = "WIPE_HAS_DEPENDENTS"

	CodeChainIDMismatch Code = "CHAIN_ID_MISMATCH"

	// CodeNonceConsumed: a nonce reserved by the journal was used by a
	// transaction the journal does not know about.
	CodeNonceConsumed Code = "NONCE_CONSUMED"

	// CodePendingUserTransaction: the sender has pending transactions the
	// deployment did not send.
	CodePendingUserTransaction Code = "PENDING_USER_TRANSACTION"

	CodeInvalidModule    Code = "INVALID_MODULE"
	CodeMissingParameter Code = "MISSING_PARAMETER"
	CodeAccountNotFound  Code = "ACCOUNT_NOT_FOUND"
)

// Error is a deployment error with a stable code.
type Error struct {
	Code    Code
	Message string

	// FutureID is the affected future, if any.
	FutureID string

	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.FutureID != "" {
		return fmt.Sprintf("%s: %s (future=%s)", e.Code, e.Message, e.FutureID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New returns an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ForFuture returns an Error attributed to a future.
func ForFuture(code Code, futureID string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), FutureID: futureID}
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Is reports whether err wraps an *Error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
