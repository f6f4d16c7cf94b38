package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/chain"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Dial connects to a JSON-RPC endpoint.
	Dial func(ctx context.Context, url string) (chain.Provider, error)

	// Confirm asks a yes/no question before a destructive or live action.
	Confirm func(label string) (bool, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the deployer CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{
		Dial:    dialRPC,
		Confirm: promptConfirm,
	})
}

// NewRootCommandWithOptions creates the root command around opts. Tests use
// it to put a fake chain behind Dial.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployer",
		Short: "Resumable smart contract deployments",
		Long: `Deploy modules of contracts, calls and reads to an EVM chain.

Every step is recorded in a journal inside the deployment directory, so an
interrupted or failed deployment resumes where it stopped.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewWipeCommand(opts))
	cmd.AddCommand(NewTrackTxCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func dialRPC(ctx context.Context, url string) (chain.Provider, error) {
	p, err := chain.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// closeProvider closes providers that hold a connection.
func closeProvider(p chain.Provider) {
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
}

// promptConfirm asks on the terminal. Declining, Ctrl+C and EOF all mean no.
func promptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return false, nil
	}
	return false, err
}

// confirm runs opts.Confirm unless yes is set.
func confirm(opts *RootOptions, yes bool, label string) (bool, error) {
	if yes || opts.Confirm == nil {
		return true, nil
	}
	return opts.Confirm(label)
}
