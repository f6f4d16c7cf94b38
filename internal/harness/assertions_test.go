package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: "RUN_START"},
		{Seq: 2, Type: "DEPLOYMENT_EXECUTION_STATE_INITIALIZE", FutureID: "M:Lib"},
		{Seq: 3, Type: "TRANSACTION_SEND", FutureID: "M:Lib"},
		{Seq: 4, Type: "DEPLOYMENT_EXECUTION_STATE_INITIALIZE", FutureID: "M:Token"},
		{Seq: 5, Type: "TRANSACTION_SEND", FutureID: "M:Token"},
		{Seq: 6, Type: "TRANSACTION_SEND", FutureID: "M:Lib"},
		{Seq: 7, Type: "RUN_START"},
	}
}

func TestAssertJournalContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertJournalContains(trace, Assertion{Message: "TRANSACTION_SEND", Future: "M:Token"}))

	err := assertJournalContains(trace, Assertion{Message: "WIPE_APPLY", Future: "M:Token"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertJournalContains, ae.Type)
	assert.Equal(t, "WIPE_APPLY for M:Token", ae.Expected)
	assert.Len(t, ae.Trace, len(trace))
}

func TestAssertJournalContains_WrongFuture(t *testing.T) {
	err := assertJournalContains(sampleTrace(), Assertion{Message: "TRANSACTION_SEND", Future: "M:Other"})
	assert.Error(t, err)
}

func TestAssertJournalOrder(t *testing.T) {
	tests := []struct {
		name    string
		futures []string
		wantErr string
	}{
		{name: "in order", futures: []string{"M:Lib", "M:Token"}},
		{name: "wrong order", futures: []string{"M:Token", "M:Lib"}, wantErr: "M:Token (pos 5) should be before M:Lib (pos 3)"},
		{name: "missing", futures: []string{"M:Lib", "M:Vault"}, wantErr: "missing for M:Vault"},
		{name: "single", futures: []string{"M:Token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertJournalOrder(sampleTrace(), Assertion{Message: "TRANSACTION_SEND", Futures: tt.futures})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantErr, ae.Actual)
		})
	}
}

func TestAssertJournalCount(t *testing.T) {
	tests := []struct {
		name    string
		message string
		future  string
		count   int
		wantErr bool
	}{
		{name: "all futures", message: "TRANSACTION_SEND", count: 3},
		{name: "one future", message: "TRANSACTION_SEND", future: "M:Lib", count: 2},
		{name: "run starts", message: "RUN_START", count: 2},
		{name: "zero", message: "WIPE_APPLY", count: 0},
		{name: "too few", message: "TRANSACTION_SEND", count: 4, wantErr: true},
		{name: "too many", message: "TRANSACTION_SEND", future: "M:Token", count: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertJournalCount(sampleTrace(), Assertion{Message: tt.message, Future: tt.future, Count: tt.count})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertFinalStatus(t *testing.T) {
	statuses := map[string]string{"M:Lib": "SUCCESS", "M:Token": "FAILED"}

	assert.NoError(t, assertFinalStatus(statuses, Assertion{Future: "M:Lib", Status: "SUCCESS"}))
	assert.NoError(t, assertFinalStatus(statuses, Assertion{Future: "M:Vault", Status: StatusNone}))

	err := assertFinalStatus(statuses, Assertion{Future: "M:Token", Status: "SUCCESS"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "M:Token is FAILED", ae.Actual)

	err = assertFinalStatus(statuses, Assertion{Future: "M:Vault", Status: "SUCCESS"})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "M:Vault is NONE", ae.Actual)
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Statuses["M:Lib"] = "SUCCESS"

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertJournalContains, Message: "RUN_START"},
		{Type: AssertJournalOrder, Message: "DEPLOYMENT_EXECUTION_STATE_INITIALIZE", Futures: []string{"M:Lib", "M:Token"}},
		{Type: AssertJournalCount, Message: "RUN_START", Count: 2},
		{Type: AssertFinalStatus, Future: "M:Lib", Status: "SUCCESS"},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertJournalCount, Message: "RUN_START", Count: 2},
		{Type: AssertJournalCount, Message: "RUN_START", Count: 1},
		{Type: AssertFinalStatus, Future: "M:Lib", Status: "SUCCESS"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "journal_count")
	assert.Contains(t, errs[1], "final_status")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "final_state"}})
	require.Len(t, errs, 1)
	assert.Equal(t, `assertion[0]: unknown assertion type "final_state"`, errs[0])
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertJournalContains,
		Expected: "WIPE_APPLY for M:C",
		Actual:   "not found in journal",
		Trace: []TraceEvent{
			{Seq: 1, Type: "RUN_START"},
			{Seq: 2, Type: "DEPLOYMENT_EXECUTION_STATE_INITIALIZE", FutureID: "M:C"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: journal_contains")
	assert.Contains(t, msg, "Expected: WIPE_APPLY for M:C")
	assert.Contains(t, msg, "Actual: not found in journal")
	assert.Contains(t, msg, "[2] DEPLOYMENT_EXECUTION_STATE_INITIALIZE M:C")
}
