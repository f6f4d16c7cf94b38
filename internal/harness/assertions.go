package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the journal trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nJournal:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Type, event.FutureID)
		}
	}
	return buf.String()
}

// assertJournalContains checks that a message of the given type was
// recorded for the future.
func assertJournalContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == assertion.Message && event.FutureID == assertion.Future {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertJournalContains,
		Expected: fmt.Sprintf("%s for %s", assertion.Message, assertion.Future),
		Actual:   "not found in journal",
		Trace:    trace,
	}
}

// assertJournalOrder checks that the first message of the given type for
// each future appears in the listed order. Other messages may come between.
func assertJournalOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != assertion.Message {
			continue
		}
		if _, seen := positions[event.FutureID]; !seen {
			positions[event.FutureID] = i + 1
		}
	}

	for _, future := range assertion.Futures {
		if positions[future] == 0 {
			return &AssertionError{
				Type:     AssertJournalOrder,
				Expected: fmt.Sprintf("%s for all of %v", assertion.Message, assertion.Futures),
				Actual:   fmt.Sprintf("missing for %s", future),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Futures); i++ {
		prev := assertion.Futures[i-1]
		curr := assertion.Futures[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertJournalOrder,
				Expected: fmt.Sprintf("%s in order: %v", assertion.Message, assertion.Futures),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertJournalCount checks that the message appears exactly Count times,
// counting only the assertion's future when one is given.
func assertJournalCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != assertion.Message {
			continue
		}
		if assertion.Future != "" && event.FutureID != assertion.Future {
			continue
		}
		count++
	}

	if count != assertion.Count {
		subject := assertion.Message
		if assertion.Future != "" {
			subject += " for " + assertion.Future
		}
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalStatus checks a future's status in the replayed state.
func assertFinalStatus(statuses map[string]string, assertion Assertion) error {
	actual, ok := statuses[assertion.Future]
	if !ok {
		actual = StatusNone
	}
	if actual != assertion.Status {
		return &AssertionError{
			Type:     AssertFinalStatus,
			Expected: fmt.Sprintf("%s is %s", assertion.Future, assertion.Status),
			Actual:   fmt.Sprintf("%s is %s", assertion.Future, actual),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertJournalContains:
			err = assertJournalContains(result.Trace, assertion)
		case AssertJournalOrder:
			err = assertJournalOrder(result.Trace, assertion)
		case AssertJournalCount:
			err = assertJournalCount(result.Trace, assertion)
		case AssertFinalStatus:
			err = assertFinalStatus(result.Statuses, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
