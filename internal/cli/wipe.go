package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/deploy"
)

// WipeOptions holds flags for the wipe command.
type WipeOptions struct {
	*RootOptions
	Yes bool
}

// WipeOutput is the JSON payload of the wipe command.
type WipeOutput struct {
	FutureID string `json:"futureId"`
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WipeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wipe <deployment-dir> <future-id>",
		Short: "Forget the recorded execution of a future",
		Long: `Record that a future's previous execution should be discarded, so the
next deploy runs it again from the start.

Futures that depend on it and were already recorded have to be wiped first.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			dir, futureID := args[0], args[1]

			ok, err := confirm(opts.RootOptions, opts.Yes, fmt.Sprintf("Wipe %s", futureID))
			if err != nil {
				return f.Fail(err)
			}
			if !ok {
				return f.Fail(NewExitError(ExitFailure, "wipe cancelled"))
			}
			if err := deploy.Wipe(cmd.Context(), dir, futureID); err != nil {
				return f.Fail(err)
			}
			if opts.Format == "json" {
				return f.Success(WipeOutput{FutureID: futureID})
			}
			return f.Success(fmt.Sprintf("%s wiped %s", markOK, futureID))
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}
