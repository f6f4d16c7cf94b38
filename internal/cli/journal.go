package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Future string // optional - filter to one future
	Type   string // optional - filter to one message type
}

// JournalEntry is one message in the journal timeline.
type JournalEntry struct {
	Seq      int             `json:"seq"`
	Type     string          `json:"type"`
	FutureID string          `json:"future_id,omitempty"`
	Message  json.RawMessage `json:"message"`
}

// JournalResult holds the journal output.
type JournalResult struct {
	Entries []JournalEntry `json:"entries"`
	Stats   JournalStats   `json:"stats"`
}

// JournalStats holds summary statistics for the journal.
type JournalStats struct {
	TotalMessages int `json:"total_messages"`
	Runs          int `json:"runs"`
	Transactions  int `json:"transactions"`
	Shown         int `json:"shown"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <deployment-dir>",
		Short: "Show the journal of a deployment",
		Long: `Show the messages recorded in a deployment's journal, in order.

Examples:
  deployer journal ./deployments/chain-31337
  deployer journal ./deployments/chain-31337 --future Token:Token
  deployer journal ./deployments/chain-31337 --type TRANSACTION_SEND --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Future, "future", "", "filter to messages of one future")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one message type")

	return cmd
}

func runJournal(ctx context.Context, opts *JournalOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	l, err := loader.OpenFileLoader(dir)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to open deployment", err))
	}
	defer l.Close()

	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "failed to read journal", err))
	}

	result, err := buildJournal(msgs, opts.Future, opts.Type)
	if err != nil {
		return f.Fail(err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	outputJournalText(cmd, result, opts.Verbose)
	return nil
}

// buildJournal converts journal messages to entries, keeping those that
// match the filters. Stats always count the whole journal.
func buildJournal(msgs []journal.Message, future, msgType string) (JournalResult, error) {
	result := JournalResult{Entries: []JournalEntry{}}
	result.Stats.TotalMessages = len(msgs)

	for i, m := range msgs {
		switch m.(type) {
		case journal.RunStart:
			result.Stats.Runs++
		case journal.TransactionSend:
			result.Stats.Transactions++
		}

		id := journal.FutureID(m)
		if future != "" && id != future {
			continue
		}
		if msgType != "" && string(m.Type()) != msgType {
			continue
		}
		data, err := journal.Marshal(m)
		if err != nil {
			return JournalResult{}, fmt.Errorf("encode message %d: %w", i+1, err)
		}
		result.Entries = append(result.Entries, JournalEntry{
			Seq:      i + 1,
			Type:     string(m.Type()),
			FutureID: id,
			Message:  json.RawMessage(data),
		})
	}
	result.Stats.Shown = len(result.Entries)
	return result, nil
}

func outputJournalText(cmd *cobra.Command, result JournalResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Journal: %d message(s), %d run(s), %d transaction(s)\n\n",
		result.Stats.TotalMessages, result.Stats.Runs, result.Stats.Transactions)

	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no messages)")
		return
	}
	for _, e := range result.Entries {
		if e.FutureID != "" {
			fmt.Fprintf(w, "[%d] %s %s\n", e.Seq, e.Type, e.FutureID)
		} else {
			fmt.Fprintf(w, "[%d] %s\n", e.Seq, e.Type)
		}
		if verbose {
			fmt.Fprintf(w, "    %s\n", e.Message)
		}
	}
}
