// Package wipe discards the recorded execution of a future so the next run
// executes it again.
package wipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/state"
)

// Check reports why futureID cannot be wiped from st, or nil if it can.
// Recorded futures that depend on it have to be wiped first.
func Check(st *state.DeploymentState, futureID string) error {
	if st == nil {
		return deployerr.New(deployerr.CodeUninitializedDeployment, "deployment has not been initialized")
	}
	if _, ok := st.Get(futureID); !ok {
		return deployerr.ForFuture(deployerr.CodeWipeNotFound, futureID,
			"cannot wipe %s: no previous execution recorded", futureID)
	}
	if deps := st.DependentsOf(futureID); len(deps) > 0 {
		return deployerr.ForFuture(deployerr.CodeWipeHasDependents, futureID,
			"cannot wipe %s: futures with recorded executions depend on it, wipe these first: %s",
			futureID, strings.Join(deps, ", ")).With("dependents", strings.Join(deps, ","))
	}
	return nil
}

// Wipe replays the journal of l, checks that futureID can be wiped, and
// records WIPE_APPLY. It returns the state after the wipe.
func Wipe(ctx context.Context, l loader.Loader, futureID string) (*state.DeploymentState, error) {
	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if len(msgs) == 0 {
		return nil, deployerr.New(deployerr.CodeUninitializedDeployment, "deployment has not been initialized")
	}
	st, err := state.Replay(msgs)
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	if err := Check(st, futureID); err != nil {
		return nil, err
	}

	m := journal.WipeApply{FutureID: futureID}
	next, err := state.Apply(st, m)
	if err != nil {
		return nil, fmt.Errorf("apply wipe: %w", err)
	}
	if err := l.RecordToJournal(ctx, m); err != nil {
		return nil, fmt.Errorf("record wipe: %w", err)
	}
	return next, nil
}
