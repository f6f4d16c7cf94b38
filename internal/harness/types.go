package harness

// TraceEvent is one journal message, reduced to what is stable across runs.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	FutureID string `json:"future,omitempty"`
}

// StepOutcome is what one step of a scenario produced: a deployment status,
// "WIPED", or the code of the error it returned.
type StepOutcome struct {
	Step    int    `json:"step"`
	Outcome string `json:"outcome"`
}

// OutcomeWiped is the outcome of a successful wipe.
const OutcomeWiped = "WIPED"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is the deployment's journal after the last step.
	Trace []TraceEvent `json:"trace"`

	Steps []StepOutcome `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Statuses maps every recorded future to its final status.
	Statuses map[string]string `json:"statuses,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Steps:    []StepOutcome{},
		Errors:   []string{},
		Statuses: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
