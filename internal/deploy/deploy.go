// Package deploy is the public surface of the deployer: Deploy runs a module
// against a chain, resuming from the deployment's journal; Wipe and
// TrackTransaction repair a deployment between runs.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/reconcile"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/strategy"
	"github.com/roach88/deployer/internal/tracker"
	"github.com/roach88/deployer/internal/wipe"
)

// Options configures Deploy.
type Options struct {
	Module *ir.Module

	// DeploymentDir is where the journal, artifacts and deployed addresses
	// live. Empty runs an ephemeral deployment that is not persisted.
	DeploymentDir string
	Backend       loader.Backend

	Provider  chain.Provider
	Sender    chain.Sender // defaults to the node's own accounts
	Artifacts artifacts.Resolver

	Parameters    resolve.Parameters
	Config        engine.Config
	Strategy      strategy.Strategy // defaults to basic
	DefaultSender common.Address

	Listener engine.Listener
	Logger   *slog.Logger

	// EngineOptions are appended last, for tests.
	EngineOptions []engine.Option
}

// Deploy validates the module, reconciles it with the deployment's previous
// runs and executes it. A Result is returned for every run that got as far
// as validation; its Status says whether the deployment succeeded. The
// error is reserved for conditions the user has to fix outside the module.
func Deploy(ctx context.Context, opts Options) (*engine.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	strat := opts.Strategy
	if strat == nil {
		strat = strategy.Basic{}
	}

	g, verrs := Validate(ctx, opts.Module, opts.Artifacts, opts.Parameters)
	if len(verrs) > 0 {
		return &engine.Result{Status: engine.StatusValidationError, ValidationErrors: verrs}, nil
	}

	l, err := openLoader(opts)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var st *state.DeploymentState
	if len(msgs) > 0 {
		if st, err = state.Replay(msgs); err != nil {
			return nil, fmt.Errorf("replay journal: %w", err)
		}
	}

	client := chain.NewClient(opts.Provider)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if st != nil && st.ChainID != 0 && st.ChainID != chainID {
		return nil, deployerr.New(deployerr.CodeChainIDMismatch,
			"deployment was run on chain %d, the provider is connected to chain %d", st.ChainID, chainID)
	}

	if failures := reconcile.CheckPreviousRun(st); len(failures) > 0 {
		return &engine.Result{Status: engine.StatusPreviousRunError, PreviousRunErrors: futureMessages(failures)}, nil
	}

	sender := opts.Sender
	if sender == nil {
		sender = chain.NewNodeSender(client)
	}
	accounts, err := sender.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	rec, err := reconcile.Reconcile(ctx, reconcile.Input{
		Graph: g,
		State: st,
		Resolve: resolve.Context{
			Parameters:    opts.Parameters,
			Accounts:      accounts,
			DefaultSender: opts.DefaultSender,
		},
		StrategyName:   strat.Name(),
		StrategyConfig: strat.Config(),
		Stored:         l,
		Current:        opts.Artifacts,
	})
	if err != nil {
		return nil, err
	}
	for _, w := range rec.Warnings {
		logger.Warn("reconciliation", "warning", w)
	}
	if !rec.OK() {
		return &engine.Result{
			Status:                 engine.StatusReconciliationError,
			ReconciliationFailures: futureMessages(rec.Failures),
			Warnings:               rec.Warnings,
		}, nil
	}

	cfg := opts.Config
	if cfg.RequiredConfirmations == 0 {
		cfg.RequiredConfirmations = engine.DefaultRequiredConfirmations
		if engine.IsLocalChain(chainID) {
			cfg.RequiredConfirmations = 1
		}
	}

	engOpts := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithStrategy(strat),
		engine.WithParameters(opts.Parameters),
		engine.WithDefaultSender(opts.DefaultSender),
		engine.WithLogger(logger),
	}
	if opts.Artifacts != nil {
		engOpts = append(engOpts, engine.WithArtifacts(opts.Artifacts))
	}
	if opts.Listener != nil {
		engOpts = append(engOpts, engine.WithListener(opts.Listener))
	}
	engOpts = append(engOpts, opts.EngineOptions...)

	res, err := engine.New(l, client, sender, engOpts...).Execute(ctx, g, st)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, rec.Warnings...)
	return res, nil
}

func openLoader(opts Options) (loader.Loader, error) {
	if opts.DeploymentDir == "" {
		return loader.NewEphemeralLoader(opts.Artifacts), nil
	}
	var lopts []loader.Option
	if opts.Backend != "" {
		lopts = append(lopts, loader.WithBackend(opts.Backend))
	}
	return loader.NewFileLoader(opts.DeploymentDir, lopts...)
}

func futureMessages(fs []reconcile.Failure) []engine.FutureMessage {
	out := make([]engine.FutureMessage, len(fs))
	for i, f := range fs {
		out[i] = engine.FutureMessage{FutureID: f.FutureID, Message: f.Message}
	}
	return out
}

// Wipe removes the recorded execution of futureID from the deployment in
// deploymentDir.
func Wipe(ctx context.Context, deploymentDir, futureID string) error {
	l, err := loader.OpenFileLoader(deploymentDir)
	if err != nil {
		return err
	}
	defer l.Close()
	_, err = wipe.Wipe(ctx, l, futureID)
	return err
}

// TrackTransaction records a transaction the user sent for the deployment in
// deploymentDir.
func TrackTransaction(ctx context.Context, deploymentDir string, txHash common.Hash, provider chain.Provider, requiredConfirmations uint64) (string, error) {
	return tracker.TrackTransaction(ctx, deploymentDir, txHash, provider, requiredConfirmations)
}

// Status replays the deployment in deploymentDir. It also returns the
// recorded contract addresses.
func Status(ctx context.Context, deploymentDir string) (*state.DeploymentState, map[string]common.Address, error) {
	l, err := loader.OpenFileLoader(deploymentDir)
	if err != nil {
		return nil, nil, err
	}
	defer l.Close()
	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read journal: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil, deployerr.New(deployerr.CodeUninitializedDeployment, "deployment has not been initialized")
	}
	st, err := state.Replay(msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("replay journal: %w", err)
	}
	addrs, err := l.DeployedAddresses(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read deployed addresses: %w", err)
	}
	return st, addrs, nil
}
