package cli

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/state"
)

// ReplayResult holds the replay result of a deployment.
type ReplayResult struct {
	ChainID       uint64         `json:"chain_id"`
	Messages      int            `json:"messages"`
	Runs          int            `json:"runs"`
	Wipes         int            `json:"wipes"`
	Futures       int            `json:"futures"`
	Statuses      map[string]int `json:"statuses"`
	Deterministic bool           `json:"deterministic"`
	Error         string         `json:"error,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <deployment-dir>",
		Short: "Replay the journal and verify determinism",
		Long: `Replay the journal of a deployment to verify it folds into a valid state.

This command reads the journal twice, folds each copy through the
reducers, and checks that both produce the same messages and the same
deployment state.

Exit codes:
  0 - The journal replays deterministically
  1 - Replay failed (invariant violation or differing states)
  2 - Command error (deployment directory not found, etc.)

Examples:
  deployer replay ./deployments/chain-31337
  deployer replay ./deployments/chain-31337 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	l, err := loader.OpenFileLoader(dir)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to open deployment", err))
	}
	defer l.Close()

	first, err := l.ReadFromJournal(ctx)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to read journal", err))
	}
	second, err := l.ReadFromJournal(ctx)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to read journal", err))
	}

	if len(first) == 0 {
		if opts.Format == "json" {
			return outputReplay(cmd, opts, ReplayResult{Statuses: map[string]int{}, Deterministic: true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No messages found in journal.")
		return nil
	}

	return outputReplay(cmd, opts, replayAndVerify(first, second))
}

// replayAndVerify folds both copies of the journal and compares them.
func replayAndVerify(first, second []journal.Message) ReplayResult {
	result := ReplayResult{Messages: len(first), Statuses: map[string]int{}}
	for _, m := range first {
		switch m.(type) {
		case journal.RunStart:
			result.Runs++
		case journal.WipeApply:
			result.Wipes++
		}
	}

	st1, err := state.Replay(first)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	st2, err := state.Replay(second)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Deterministic = reflect.DeepEqual(first, second) && reflect.DeepEqual(st1, st2)
	result.ChainID = st1.ChainID
	result.Futures = len(st1.ExecutionStates)
	for _, es := range st1.ExecutionStates {
		result.Statuses[string(es.Meta().Status)]++
	}
	return result
}

func outputReplay(cmd *cobra.Command, opts *RootOptions, result ReplayResult) error {
	failed := !result.Deterministic

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if failed {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_DETERMINISM", Message: "replay verification failed"}
		}
		if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
			return err
		}
		if failed {
			return &ExitError{Code: ExitFailure, Message: "replay verification failed", Reported: true}
		}
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Replay Summary: %d message(s), %d run(s), %d wipe(s)\n", result.Messages, result.Runs, result.Wipes)
	if result.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", result.Error)
	} else {
		fmt.Fprintf(w, "  Chain: %d\n", result.ChainID)
		fmt.Fprintf(w, "  Futures: %d\n", result.Futures)
		if opts.Verbose {
			for _, s := range []state.Status{state.StatusSuccess, state.StatusStarted, state.StatusFailed, state.StatusTimeout, state.StatusHeld} {
				if n := result.Statuses[string(s)]; n > 0 {
					fmt.Fprintf(w, "    %s: %d\n", s, n)
				}
			}
		}
	}
	fmt.Fprintln(w)

	if !failed {
		fmt.Fprintf(w, "%s Journal replays deterministically\n", markOK)
		return nil
	}
	fmt.Fprintf(w, "%s Replay verification failed\n", markFail)
	return &ExitError{Code: ExitFailure, Message: "replay verification failed", Reported: true}
}
