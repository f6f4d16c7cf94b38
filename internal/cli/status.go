package cli

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/deploy"
	"github.com/roach88/deployer/internal/state"
)

// FutureStatus is one recorded future in the status output.
type FutureStatus struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Status  string          `json:"status"`
	Address *common.Address `json:"address,omitempty"`
}

// StatusOutput is the JSON payload of the status command.
type StatusOutput struct {
	ChainID uint64         `json:"chainId"`
	Futures []FutureStatus `json:"futures"`
	Counts  map[string]int `json:"counts"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status <deployment-dir>",
		Short:         "Show the recorded state of a deployment",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, addrs, err := deploy.Status(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(err)
			}
			out := buildStatus(st, addrs)
			if rootOpts.Format == "json" {
				return f.Success(out)
			}
			renderStatus(cmd, out)
			return nil
		},
	}
	return cmd
}

func buildStatus(st *state.DeploymentState, addrs map[string]common.Address) StatusOutput {
	out := StatusOutput{ChainID: st.ChainID, Futures: []FutureStatus{}, Counts: map[string]int{}}
	for id, es := range st.ExecutionStates {
		fs := FutureStatus{ID: id, Kind: string(es.Kind()), Status: string(es.Meta().Status)}
		if addr, ok := addrs[id]; ok {
			fs.Address = &addr
		}
		out.Futures = append(out.Futures, fs)
		out.Counts[fs.Status]++
	}
	sort.Slice(out.Futures, func(i, j int) bool { return out.Futures[i].ID < out.Futures[j].ID })
	return out
}

func renderStatus(cmd *cobra.Command, out StatusOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Chain: %d\n\n", out.ChainID)
	for _, fs := range out.Futures {
		line := futureLine(fs.ID, state.Status(fs.Status))
		if fs.Address != nil {
			line += " " + fs.Address.Hex()
		}
		fmt.Fprintf(w, "  %s\n", line)
	}

	statuses := make([]string, 0, len(out.Counts))
	for s := range out.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	fmt.Fprintln(w)
	for _, s := range statuses {
		fmt.Fprintf(w, "%s: %d\n", s, out.Counts[s])
	}
}
