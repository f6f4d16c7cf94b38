package state

import (
	"errors"
	"fmt"
)

// InvariantError reports a message that cannot apply to the current state.
// It always indicates a bug or a corrupted journal, never a user mistake.
type InvariantError struct {
	FutureID string
	Message  string
}

func (e *InvariantError) Error() string {
	if e.FutureID == "" {
		return "invariant violation: " + e.Message
	}
	return fmt.Sprintf("invariant violation: %s: %s", e.FutureID, e.Message)
}

func invariantf(futureID, format string, args ...any) error {
	return &InvariantError{FutureID: futureID, Message: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err wraps an InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
