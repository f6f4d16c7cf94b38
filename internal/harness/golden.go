package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/deployer/internal/ir"
)

// TraceSnapshot captures what a scenario did: the outcome of every step and
// the journal it left behind.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario"`
	Steps        []StepOutcome `json:"steps"`
	Trace        []TraceEvent  `json:"trace"`
}

// toIR converts the snapshot for canonical JSON serialization.
func (s *TraceSnapshot) toIR() ir.IRObject {
	steps := make(ir.IRArray, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = ir.IRString(step.Outcome)
	}
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		e := ir.IRObject{
			"seq":  ir.IRInt(event.Seq),
			"type": ir.IRString(event.Type),
		}
		if event.FutureID != "" {
			e["future"] = ir.IRString(event.FutureID)
		}
		trace[i] = e
	}
	return ir.IRObject{
		"scenario": ir.IRString(s.ScenarioName),
		"steps":    steps,
		"trace":    trace,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against the golden file
// named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// Snapshot serializes the step outcomes and trace of result as canonical
// JSON, the format of the golden files.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toIR())
}
