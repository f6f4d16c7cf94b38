package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/compiler"
	"github.com/roach88/deployer/internal/config"
	"github.com/roach88/deployer/internal/deploy"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/resolve"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ArtifactsDir string
	Parameters   string
	Module       string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Modules []string                   `json:"modules,omitempty"`
	Futures int                        `json:"futures"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <module-dir>",
		Short: "Validate a module without touching the chain",
		Long: `Validate the CUE module definitions in a directory.

Compiles the modules, checks their schema and future graph, resolves every
named artifact, and reports module parameters that have no value. Nothing is
sent to a node.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ArtifactsDir, "artifacts", "", "artifacts directory (default <module-dir>/artifacts)")
	cmd.Flags().StringVar(&opts.Parameters, "parameters", "", "module parameters file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module to check when the directory defines several")

	return cmd
}

func runValidate(opts *ValidateOptions, moduleDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, err := compiler.LoadDir(moduleDir)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, moduleDir)

	var validationErrors []compiler.ValidationError
	result := ValidationResult{}
	for _, m := range loadResult.Modules {
		formatter.VerboseLog("Validating module: %s", m.ID)
		result.Modules = append(result.Modules, m.ID)
		result.Futures += len(m.Futures)
		validationErrors = append(validationErrors, compiler.ValidateModule(m)...)
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	m, err := compiler.Select(loadResult.Modules, opts.Module)
	if err != nil {
		return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error(), nil)
	}
	var params resolve.Parameters
	if opts.Parameters != "" {
		if params, err = config.LoadParameters(opts.Parameters); err != nil {
			return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error(), nil)
		}
	}

	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = filepath.Join(moduleDir, "artifacts")
	}
	formatter.VerboseLog("Resolving artifacts in %s", artifactsDir)
	_, errs := deploy.Validate(cmd.Context(), m, artifactsResolver(artifactsDir), params)
	for _, e := range errs {
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "module." + m.ID,
			Message: e,
			Code:    string(deployerr.CodeInvalidModule),
		})
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

func artifactsResolver(dir string) artifacts.Resolver {
	return artifacts.NewFSResolver(dir)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%s All modules valid (%d module(s), %d future(s))\n", markOK, len(result.Modules), result.Futures)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("%s: %s", code, message), Reported: true}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("validation failed with %d error(s)", len(errs)), Reported: true}
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", markFail)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("validation failed with %d error(s)", len(errs)), Reported: true}
}
