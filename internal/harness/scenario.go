package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deployer/internal/loader"
)

// Scenario defines a deployment scenario: a module, the runs made against a
// fake chain, and assertions on the resulting journal.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Module is CUE source defining the modules, inline.
	Module string `yaml:"module,omitempty"`

	// ModuleFile is a CUE file to read the modules from, relative to the
	// scenario file. Exactly one of Module and ModuleFile is set.
	ModuleFile string `yaml:"moduleFile,omitempty"`

	// ModuleName selects the module to deploy when the source defines
	// several.
	ModuleName string `yaml:"moduleName,omitempty"`

	// Parameters maps module ids to module parameters.
	Parameters yaml.Node `yaml:"parameters,omitempty"`

	// ChainID of the fake chain. Defaults to 31337.
	ChainID uint64 `yaml:"chainId,omitempty"`

	// Backend is the journal backend of the deployment directory.
	Backend loader.Backend `yaml:"backend,omitempty"`

	// Steps run in order against the same deployment directory.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final journal and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one deploy or wipe. A step with Wipe set wipes that future;
// any other step deploys the module.
type Step struct {
	Wipe string `yaml:"wipe,omitempty"`

	// Revert makes transactions of this run revert: "simulation" fails
	// them at gas estimation, "execution" after they were mined.
	Revert string `yaml:"revert,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Revert modes.
const (
	RevertSimulation = "simulation"
	RevertExecution  = "execution"
)

// Expect checks the outcome of a step.
type Expect struct {
	// Status is the expected deployment status.
	Status string `yaml:"status,omitempty"`

	// Error is the expected error code when the step fails with an error.
	Error string `yaml:"error,omitempty"`

	// Successful and Failed must be contained in the result's lists.
	Successful []string `yaml:"successful,omitempty"`
	Failed     []string `yaml:"failed,omitempty"`
}

// Assertion validates the journal or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "journal_contains": a message of Message type for Future exists
	// - "journal_order": the first Message of each of Futures appear in order
	// - "journal_count": Message appears exactly Count times (for Future, if set)
	// - "final_status": Future has Status after replaying the journal
	Type string `yaml:"type"`

	Message string   `yaml:"message,omitempty"`
	Future  string   `yaml:"future,omitempty"`
	Futures []string `yaml:"futures,omitempty"`
	Count   int      `yaml:"count,omitempty"`

	// Status is the expected status for final_status. "NONE" means the
	// future has no recorded execution.
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertJournalContains = "journal_contains"
	AssertJournalOrder    = "journal_order"
	AssertJournalCount    = "journal_count"
	AssertFinalStatus     = "final_status"
)

// StatusNone is the final_status of a future without a recorded execution.
const StatusNone = "NONE"

// LoadScenario reads and parses a scenario YAML file. A module file is
// resolved relative to the scenario.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// the module file relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.ModuleFile != "" {
		modulePath := scenario.ModuleFile
		if !filepath.IsAbs(modulePath) && basePath != "" {
			modulePath = filepath.Join(basePath, modulePath)
		}
		src, err := os.ReadFile(modulePath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: module file: %w", err)
		}
		scenario.Module = string(src)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Module == "") == (s.ModuleFile == "") {
		return fmt.Errorf("exactly one of module and moduleFile is required")
	}
	switch s.Backend {
	case "", loader.BackendJSONL, loader.BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Revert {
		case "", RevertSimulation, RevertExecution:
		default:
			return fmt.Errorf("steps[%d]: unknown revert mode %q", i, step.Revert)
		}
		if step.Wipe != "" && step.Revert != "" {
			return fmt.Errorf("steps[%d]: revert does not apply to a wipe", i)
		}
		if step.Wipe != "" && step.Expect != nil && step.Expect.Status != "" {
			return fmt.Errorf("steps[%d]: a wipe has no deployment status", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertJournalContains:
		if a.Message == "" || a.Future == "" {
			return fmt.Errorf("assertions[%d]: message and future are required for journal_contains", index)
		}
	case AssertJournalOrder:
		if a.Message == "" || len(a.Futures) == 0 {
			return fmt.Errorf("assertions[%d]: message and futures are required for journal_order", index)
		}
	case AssertJournalCount:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for journal_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal_count", index)
		}
	case AssertFinalStatus:
		if a.Future == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: future and status are required for final_status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
