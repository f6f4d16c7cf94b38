package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/telemetry"
)

const (
	markOK   = "\u2714"
	markFail = "\u2718"
)

// newEventRenderer prints execution progress as it happens.
func newEventRenderer(w io.Writer) engine.Listener {
	batches := 0
	return engine.ListenerFunc(func(e engine.Event) {
		switch e.Type {
		case engine.EventRunStart:
			if m, ok := e.Message.(journal.RunStart); ok {
				fmt.Fprintf(w, "Run %s on chain %d\n", m.RunID, m.ChainID)
			}
		case engine.EventBatch:
			batches++
			fmt.Fprintf(w, "%s %s\n", color.CyanString("Batch #%d", batches), strings.Join(e.Batch, ", "))
		case engine.EventTransactionSend:
			if m, ok := e.Message.(journal.TransactionSend); ok {
				fmt.Fprintf(w, "  %s sent %s (nonce %d)\n", e.FutureID, m.Hash.Hex(), m.Nonce)
			}
		case engine.EventBumpFees:
			fmt.Fprintf(w, "  %s %s\n", e.FutureID, color.YellowString("fees bumped"))
		case engine.EventDropped:
			fmt.Fprintf(w, "  %s %s\n", e.FutureID, color.YellowString("transaction dropped, resending"))
		case engine.EventReplacedByUser:
			fmt.Fprintf(w, "  %s %s\n", e.FutureID, color.YellowString("transaction replaced by user"))
		case engine.EventTimeout:
			fmt.Fprintf(w, "  %s %s\n", e.FutureID, color.RedString("timed out"))
		case engine.EventFutureComplete:
			fmt.Fprintf(w, "  %s\n", futureLine(e.FutureID, e.Status))
		}
	})
}

func futureLine(id string, status state.Status) string {
	switch status {
	case state.StatusSuccess:
		return color.GreenString("%s %s", markOK, id)
	case state.StatusHeld:
		return color.YellowString("%s %s held", markFail, id)
	default:
		return color.RedString("%s %s %s", markFail, id, strings.ToLower(string(status)))
	}
}

// renderResult prints the outcome of a deploy.
func renderResult(w io.Writer, res *engine.Result, dir string) {
	fmt.Fprintln(w)
	if res.Succeeded() {
		fmt.Fprintln(w, color.GreenString("%s Deployment complete", markOK))
	} else {
		fmt.Fprintln(w, color.RedString("%s %s", markFail, res.Status))
	}

	if len(res.Contracts) > 0 {
		fmt.Fprintln(w, "\nDeployed addresses:")
		ids := make([]string, 0, len(res.Contracts))
		for id := range res.Contracts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c := res.Contracts[id]
			fmt.Fprintf(w, "  %s (%s) %s\n", id, c.ContractName, c.Address.Hex())
		}
	}

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, l := range lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
	section("Validation errors", res.ValidationErrors)
	section("Reconciliation failures", messageLines(res.ReconciliationFailures))
	section("Previous run errors", messageLines(res.PreviousRunErrors))

	var failed []string
	for _, f := range res.Failed {
		failed = append(failed, f.ID+": "+f.Error)
	}
	section("Failed", failed)

	var timedOut []string
	for _, t := range res.Timeout {
		timedOut = append(timedOut, fmt.Sprintf("%s (network interaction %d)", t.ID, t.InteractionID))
	}
	section("Timed out", timedOut)

	var held []string
	for _, h := range res.Held {
		held = append(held, fmt.Sprintf("%s (hold %d): %s", h.ID, h.HeldID, h.Reason))
	}
	section("Held", held)
	section("Started", res.Started)
	section("Warnings", res.Warnings)

	if len(res.PreviousRunErrors) > 0 || len(res.Timeout) > 0 {
		fmt.Fprintln(w, "\nWipe the affected futures with `deployer wipe` to retry them.")
	}
	if dir != "" {
		fmt.Fprintf(w, "\nDeployment directory: %s\n", dir)
	}
}

func messageLines(msgs []engine.FutureMessage) []string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.FutureID + ": " + m.Message
	}
	return lines
}

func renderMetrics(w io.Writer, samples []telemetry.Sample) {
	if len(samples) == 0 {
		return
	}
	fmt.Fprintln(w, "\nMetrics:")
	for _, s := range samples {
		name := s.Name
		if s.Status != "" {
			name += "{status=" + s.Status + "}"
		}
		fmt.Fprintf(w, "  %s %d\n", name, s.Value)
	}
}
