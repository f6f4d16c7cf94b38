package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/deployer/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrModuleID          = "E101" // module id empty or contains ':'
	ErrModuleEmpty       = "E102" // module declares no futures
	ErrFunctionName      = "E103" // empty or malformed function name
	ErrContractName      = "E104" // malformed contract name
	ErrEventIndex        = "E105" // negative event index
	ErrSendData          = "E106" // send data is not hex
	ErrGraph             = "E107" // unknown dependency, cycle or wrong reference kind
	ErrEventArgumentName = "E108" // empty event or argument name
)

var (
	contractNamePattern = regexp.MustCompile(`^([A-Za-z0-9_./-]+:)?[A-Za-z_$][A-Za-z0-9_$]*$`)
	functionNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\([A-Za-z0-9_,\[\]() ]*\))?$`)
	hexPattern          = regexp.MustCompile(`^(0x)?([0-9a-fA-F]{2})*$`)
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateModule checks m and its submodules. All errors are returned, not
// just the first.
func ValidateModule(m *ir.Module) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	var walk func(*ir.Module)
	walk = func(mod *ir.Module) {
		if seen[mod.ID] {
			return
		}
		seen[mod.ID] = true
		for _, sub := range mod.Submodules {
			walk(sub)
		}
		errs = append(errs, validateModule(mod)...)
	}
	walk(m)

	if _, err := ir.NewGraph(m); err != nil {
		errs = append(errs, ValidationError{Field: m.ID, Message: err.Error(), Code: ErrGraph})
	}
	return errs
}

func validateModule(m *ir.Module) []ValidationError {
	var errs []ValidationError
	if m.ID == "" || strings.Contains(m.ID, ":") {
		errs = append(errs, ValidationError{
			Field:   "module",
			Message: fmt.Sprintf("module id %q must be non-empty and must not contain ':'", m.ID),
			Code:    ErrModuleID,
		})
	}
	if len(m.Futures) == 0 && len(m.Submodules) == 0 {
		errs = append(errs, ValidationError{
			Field:   m.ID,
			Message: "module declares no futures",
			Code:    ErrModuleEmpty,
		})
	}
	for _, f := range m.Futures {
		errs = append(errs, validateFuture(f)...)
	}
	return errs
}

func validateFuture(f ir.Future) []ValidationError {
	var errs []ValidationError
	add := func(code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: f.ID(), Message: fmt.Sprintf(format, args...), Code: code})
	}
	checkContract := func(name string) {
		if !contractNamePattern.MatchString(name) {
			add(ErrContractName, "invalid contract name %q", name)
		}
	}
	checkFunction := func(name string) {
		if !functionNamePattern.MatchString(name) {
			add(ErrFunctionName, "invalid function name %q", name)
		}
	}

	switch v := f.(type) {
	case *ir.ContractDeploymentFuture:
		if v.Artifact == nil {
			checkContract(v.ContractName)
		}
	case *ir.LibraryDeploymentFuture:
		if v.Artifact == nil {
			checkContract(v.ContractName)
		}
	case *ir.ContractAtFuture:
		if v.Artifact == nil {
			checkContract(v.ContractName)
		}
	case *ir.ContractCallFuture:
		checkFunction(v.FunctionName)
	case *ir.StaticCallFuture:
		checkFunction(v.FunctionName)
	case *ir.EncodeFunctionCallFuture:
		checkFunction(v.FunctionName)
	case *ir.ReadEventArgumentFuture:
		if v.EventName == "" || v.NameOrIndex == "" {
			add(ErrEventArgumentName, "event and argument names are required")
		}
		if v.EventIndex < 0 {
			add(ErrEventIndex, "event index %d must not be negative", v.EventIndex)
		}
	case *ir.SendDataFuture:
		if !hexPattern.MatchString(v.Data) {
			add(ErrSendData, "data %q is not hex", v.Data)
		}
	}
	return errs
}
