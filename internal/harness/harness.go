package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/compiler"
	"github.com/roach88/deployer/internal/config"
	"github.com/roach88/deployer/internal/deploy"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/testutil"
)

// Account is the node-managed account of the harness chain.
var Account = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// RunID is stamped on every run the harness makes.
const RunID = "harness-run"

// Harness runs the steps of one scenario against a fake chain and a
// temporary deployment directory.
type Harness struct {
	chain   *chaintest.Chain
	dir     string
	module  *ir.Module
	params  resolve.Parameters
	backend loader.Backend
	clock   *testutil.FakeClock
	logger  *slog.Logger
}

type stepResult struct {
	outcome string
	result  *engine.Result
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh chain and deployment directory. Futures run
// one at a time with a fake clock and a fixed run id, so the journal of a
// scenario is identical on every execution.
//
// Execution flow:
// 1. Compile the module and parse parameters
// 2. Run each step, checking its expect clause
// 3. Read the journal back and replay it
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	mods, err := compiler.CompileString(scenario.Module)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}
	m, err := compiler.Select(mods, scenario.ModuleName)
	if err != nil {
		return nil, fmt.Errorf("failed to select module: %w", err)
	}
	params, err := config.ParametersFromNode(&scenario.Parameters)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "deployer-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment directory: %w", err)
	}
	defer os.RemoveAll(dir)

	chainOpts := []chaintest.Option{chaintest.WithAccounts(Account)}
	if scenario.ChainID != 0 {
		chainOpts = append(chainOpts, chaintest.WithChainID(scenario.ChainID))
	}

	h := &Harness{
		chain:   chaintest.New(chainOpts...),
		dir:     dir,
		module:  m,
		params:  params,
		backend: scenario.Backend,
		clock:   testutil.NewFakeClock(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, StepOutcome{Step: i, Outcome: sr.outcome})
		for _, msg := range checkExpect(i, step.Expect, sr) {
			result.AddError(msg)
		}
		h.logger.Info("step completed", "step", i, "outcome", sr.outcome)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, step Step) (stepResult, error) {
	if step.Wipe != "" {
		if err := deploy.Wipe(ctx, h.dir, step.Wipe); err != nil {
			return errorOutcome(err)
		}
		return stepResult{outcome: OutcomeWiped}, nil
	}

	revertAll := func(chaintest.Tx) ([]byte, bool) { return nil, true }
	switch step.Revert {
	case RevertSimulation:
		h.chain.SetRevert(revertAll)
	case RevertExecution:
		h.chain.SetExecutionRevert(revertAll)
	}
	defer func() {
		h.chain.SetRevert(nil)
		h.chain.SetExecutionRevert(nil)
	}()

	cfg := engine.DefaultConfig()
	cfg.RequiredConfirmations = 1
	cfg.MaxConcurrency = 1

	res, err := deploy.Deploy(ctx, deploy.Options{
		Module:        h.module,
		DeploymentDir: h.dir,
		Backend:       h.backend,
		Provider:      h.chain,
		Artifacts:     testutil.Resolver(),
		Parameters:    h.params,
		Config:        cfg,
		Logger:        h.logger,
		EngineOptions: []engine.Option{
			engine.WithWallClock(h.clock),
			engine.WithRunIDGenerator(testutil.NewFixedRunID(RunID)),
		},
	})
	if err != nil {
		return errorOutcome(err)
	}
	return stepResult{outcome: string(res.Status), result: res}, nil
}

// errorOutcome turns a deployment error into an outcome. Errors without a
// code abort the scenario.
func errorOutcome(err error) (stepResult, error) {
	if code := deployerr.CodeOf(err); code != "" {
		return stepResult{outcome: string(code)}, nil
	}
	return stepResult{}, err
}

func checkExpect(index int, expect *Expect, sr stepResult) []string {
	if expect == nil {
		return nil
	}
	var errs []string
	want := expect.Status
	if expect.Error != "" {
		want = expect.Error
	}
	if want != "" && sr.outcome != want {
		errs = append(errs, fmt.Sprintf("steps[%d]: expected %s, got %s", index, want, sr.outcome))
	}
	if sr.result == nil {
		return errs
	}
	for _, id := range expect.Successful {
		if !slices.Contains(sr.result.Successful, id) {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected %s to succeed", index, id))
		}
	}
	var failed []string
	for _, f := range sr.result.Failed {
		failed = append(failed, f.ID)
	}
	for _, id := range expect.Failed {
		if !slices.Contains(failed, id) {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected %s to fail", index, id))
		}
	}
	return errs
}

// collect reads the journal into the trace and records the final status of
// every future.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	l, err := loader.OpenFileLoader(h.dir)
	if deployerr.Is(err, deployerr.CodeDeploymentDirNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open deployment: %w", err)
	}
	defer l.Close()

	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for i, m := range msgs {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:      int64(i + 1),
			Type:     string(m.Type()),
			FutureID: journal.FutureID(m),
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	st, err := state.Replay(msgs)
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	for id, es := range st.ExecutionStates {
		result.Statuses[id] = string(es.Meta().Status)
	}
	return nil
}
