package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/loader"
)

const counterModule = `modules: Counter: futures: {
	Counter: {kind: "contract", args: [{param: "start", default: 1}]}
	inc: {kind: "call", contract: "Counter", function: "inc", args: [2]}
}
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
module: |
  modules: M: futures: C: {kind: "contract", artifact: "Counter", args: [1]}
parameters:
  M:
    start: 3
backend: sqlite
chainId: 1337
steps:
  - expect:
      status: SUCCESSFUL_DEPLOYMENT
      successful: ["M:C"]
  - wipe: "M:C"
assertions:
  - type: journal_contains
    message: WIPE_APPLY
    future: "M:C"
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Contains(t, scenario.Module, `modules: M: futures: C:`)
	assert.Equal(t, loader.BackendSQLite, scenario.Backend)
	assert.Equal(t, uint64(1337), scenario.ChainID)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, "SUCCESSFUL_DEPLOYMENT", scenario.Steps[0].Expect.Status)
	assert.Equal(t, []string{"M:C"}, scenario.Steps[0].Expect.Successful)
	assert.Equal(t, "M:C", scenario.Steps[1].Wipe)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_ModuleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.cue"), []byte(counterModule), 0644))
	scenarioPath := filepath.Join(dir, "test.yaml")
	content := `
name: from_file
description: "Module read from a sibling file"
moduleFile: counter.cue
steps:
  - {}
assertions:
  - type: journal_count
    message: RUN_START
    count: 1
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)
	assert.Equal(t, counterModule, scenario.Module)
}

func TestLoadScenario_MissingModuleFile(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "test.yaml")
	content := `
name: from_file
description: "Module file does not exist"
moduleFile: missing.cue
steps:
  - {}
assertions:
  - type: journal_count
    message: RUN_START
    count: 1
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	_, err := LoadScenario(scenarioPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module file")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/path/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	content := `
name: test
description: "x"
module: "modules: M: futures: L: kind: \"library\""
flow: []
steps:
  - {}
assertions:
  - type: journal_count
    message: RUN_START
    count: 1
`
	_, err := ParseScenario([]byte(content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	const assertions = `
assertions:
  - type: journal_count
    message: RUN_START
    count: 1
`
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: x\nmodule: m\nsteps: [{}]\n" + assertions,
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nmodule: m\nsteps: [{}]\n" + assertions,
			wantErr: "description is required",
		},
		{
			name:    "no module",
			content: "name: x\ndescription: x\nsteps: [{}]\n" + assertions,
			wantErr: "exactly one of module and moduleFile is required",
		},
		{
			name:    "both module sources",
			content: "name: x\ndescription: x\nmodule: m\nmoduleFile: m.cue\nsteps: [{}]\n" + assertions,
			wantErr: "exactly one of module and moduleFile is required",
		},
		{
			name:    "unknown backend",
			content: "name: x\ndescription: x\nmodule: m\nbackend: csv\nsteps: [{}]\n" + assertions,
			wantErr: `unknown backend "csv"`,
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: x\nmodule: m\n" + assertions,
			wantErr: "steps list is required and must be non-empty",
		},
		{
			name:    "no assertions",
			content: "name: x\ndescription: x\nmodule: m\nsteps: [{}]\n",
			wantErr: "assertions list is required and must be non-empty",
		},
		{
			name:    "unknown revert mode",
			content: "name: x\ndescription: x\nmodule: m\nsteps: [{revert: always}]\n" + assertions,
			wantErr: `steps[0]: unknown revert mode "always"`,
		},
		{
			name:    "revert on wipe",
			content: "name: x\ndescription: x\nmodule: m\nsteps: [{}, {wipe: \"M:C\", revert: simulation}]\n" + assertions,
			wantErr: "steps[1]: revert does not apply to a wipe",
		},
		{
			name:    "status on wipe",
			content: "name: x\ndescription: x\nmodule: m\nsteps: [{wipe: \"M:C\", expect: {status: SUCCESSFUL_DEPLOYMENT}}]\n" + assertions,
			wantErr: "steps[0]: a wipe has no deployment status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{name: "missing type", assertion: Assertion{}, wantErr: "type is required"},
		{name: "unknown type", assertion: Assertion{Type: "trace_contains"}, wantErr: `unknown assertion type "trace_contains"`},
		{name: "contains without future", assertion: Assertion{Type: AssertJournalContains, Message: "RUN_START"}, wantErr: "message and future are required"},
		{name: "order without futures", assertion: Assertion{Type: AssertJournalOrder, Message: "TRANSACTION_SEND"}, wantErr: "message and futures are required"},
		{name: "count without message", assertion: Assertion{Type: AssertJournalCount, Count: 1}, wantErr: "message is required"},
		{name: "negative count", assertion: Assertion{Type: AssertJournalCount, Message: "RUN_START", Count: -1}, wantErr: "count must be non-negative"},
		{name: "status without future", assertion: Assertion{Type: AssertFinalStatus, Status: "SUCCESS"}, wantErr: "future and status are required"},
		{name: "valid count", assertion: Assertion{Type: AssertJournalCount, Message: "RUN_START"}},
		{name: "valid status", assertion: Assertion{Type: AssertFinalStatus, Future: "M:C", Status: StatusNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(2, &tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "assertions[2]")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
