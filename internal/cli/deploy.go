package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/compiler"
	"github.com/roach88/deployer/internal/config"
	"github.com/roach88/deployer/internal/deploy"
	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/telemetry"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	DeploymentDir string
	Parameters    string
	ConfigFile    string
	RPCURL        string
	Strategy      string
	Module        string
	ArtifactsDir  string
	Ephemeral     bool
	Yes           bool
	Metrics       bool
}

// DeployOutput is the JSON payload of the deploy command.
type DeployOutput struct {
	ChainID       uint64             `json:"chainId"`
	DeploymentDir string             `json:"deploymentDir,omitempty"`
	Result        *engine.Result     `json:"result"`
	Metrics       []telemetry.Sample `json:"metrics,omitempty"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <module-dir>",
		Short: "Deploy a module, resuming a previous deployment",
		Long: `Deploy the module defined by the CUE files in a directory.

The journal in the deployment directory is replayed first: futures that
completed in an earlier run are skipped, and transactions still in flight
are followed up instead of being sent again.

Exit codes:
  0 - Deployment succeeded
  1 - Deployment failed, or needs attention (wipe, previous run errors)
  2 - Command error (invalid module, unreachable node, etc.)

Examples:
  deployer deploy ./ignition
  deployer deploy ./ignition --parameters params.yaml --rpc http://localhost:8545
  deployer deploy ./ignition --deployment-dir ./deployments/sepolia --yes
  deployer deploy ./ignition --ephemeral --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runDeploy(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DeploymentDir, "deployment-dir", "", "deployment directory (default <module-dir>/deployments/chain-<id>)")
	cmd.Flags().StringVar(&opts.Parameters, "parameters", "", "module parameters file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&opts.RPCURL, "rpc", "", "JSON-RPC endpoint, overrides the config")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "execution strategy, overrides the config")
	cmd.Flags().StringVar(&opts.Module, "module", "", "module to deploy when the directory defines several")
	cmd.Flags().StringVar(&opts.ArtifactsDir, "artifacts", "", "artifacts directory (default <module-dir>/artifacts)")
	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "keep the journal in memory only")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print transaction counters after the run")

	return cmd
}

func runDeploy(ctx context.Context, opts *DeployOptions, moduleDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return f.Fail(err)
	}
	if opts.RPCURL != "" {
		cfg.RPCURL = opts.RPCURL
	}
	if opts.Strategy != "" {
		cfg.Strategy = opts.Strategy
		if err := cfg.Validate(); err != nil {
			return f.Fail(err)
		}
	}
	strat, err := cfg.NewStrategy()
	if err != nil {
		return f.Fail(err)
	}
	var defaultSender common.Address
	if cfg.DefaultSender != "" {
		if !common.IsHexAddress(cfg.DefaultSender) {
			return f.Fail(fmt.Errorf("defaultSender %q is not an address", cfg.DefaultSender))
		}
		defaultSender = common.HexToAddress(cfg.DefaultSender)
	}

	m, err := loadModule(f, moduleDir, opts.Module)
	if err != nil {
		return err
	}
	f.VerboseLog("Loaded module %s with %d future(s)", m.ID, len(m.Futures))

	var params resolve.Parameters
	if opts.Parameters != "" {
		if params, err = config.LoadParameters(opts.Parameters); err != nil {
			return f.Fail(err)
		}
	}

	provider, err := opts.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return f.Fail(fmt.Errorf("connect to %s: %w", cfg.RPCURL, err))
	}
	defer closeProvider(provider)
	client := chain.NewClient(provider)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return f.Fail(fmt.Errorf("chain id: %w", err))
	}

	var sender chain.Sender
	if len(cfg.Accounts) > 0 {
		ks, err := chain.NewKeySender(client, cfg.Accounts...)
		if err != nil {
			return f.Fail(err)
		}
		sender = ks
	}

	dir := deploymentDir(opts, moduleDir, chainID)
	if !engine.IsLocalChain(chainID) {
		ok, err := confirm(opts.RootOptions, opts.Yes, fmt.Sprintf("Deploy %s to chain %d", m.ID, chainID))
		if err != nil {
			return f.Fail(err)
		}
		if !ok {
			return f.Fail(NewExitError(ExitFailure, "deployment cancelled"))
		}
	}

	var listeners engine.Listeners
	if opts.Format != "json" {
		listeners = append(listeners, newEventRenderer(cmd.OutOrStdout()))
	}
	var recorder *telemetry.Recorder
	if opts.Metrics {
		if recorder, err = telemetry.NewRecorder(); err != nil {
			return f.Fail(err)
		}
		defer recorder.Shutdown(context.Background())
		listeners = append(listeners, recorder)
	}

	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = filepath.Join(moduleDir, "artifacts")
	}

	res, err := deploy.Deploy(ctx, deploy.Options{
		Module:        m,
		DeploymentDir: dir,
		Backend:       cfg.JournalBackend,
		Provider:      provider,
		Sender:        sender,
		Artifacts:     artifactsResolver(artifactsDir),
		Parameters:    params,
		Config:        cfg.Engine(),
		Strategy:      strat,
		DefaultSender: defaultSender,
		Listener:      listeners,
	})
	if err != nil {
		return f.Fail(err)
	}

	var samples []telemetry.Sample
	if recorder != nil {
		if samples, err = recorder.Collect(ctx); err != nil {
			return f.Fail(err)
		}
	}

	if opts.Format == "json" {
		resp := CLIResponse{
			Status: "ok",
			Data:   DeployOutput{ChainID: chainID, DeploymentDir: dir, Result: res, Metrics: samples},
			RunID:  res.RunID,
		}
		if !res.Succeeded() {
			resp.Status = "error"
			resp.Error = &CLIError{Code: string(res.Status), Message: "deployment did not complete"}
		}
		if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		renderResult(cmd.OutOrStdout(), res, dir)
		renderMetrics(cmd.OutOrStdout(), samples)
	}

	if !res.Succeeded() {
		return &ExitError{Code: ExitFailure, Message: string(res.Status), Reported: true}
	}
	return nil
}

// loadConfig reads the --config file, or deployer.yaml in the working
// directory when it exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOptional(config.DefaultFile)
}

// loadModule compiles the CUE package in dir and selects the module to
// deploy. Failures are reported through f.
func loadModule(f *OutputFormatter, dir, name string) (*ir.Module, error) {
	res, err := compiler.LoadDir(dir)
	if err != nil {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			_ = f.Error(loadErr.Code, loadErr.Error(), nil)
			return nil, &ExitError{Code: ExitCommandError, Message: loadErr.Message, Err: err, Reported: true}
		}
		return nil, f.Fail(err)
	}
	var verrs []compiler.ValidationError
	for _, m := range res.Modules {
		verrs = append(verrs, compiler.ValidateModule(m)...)
	}
	if len(verrs) > 0 {
		_ = f.Error(verrs[0].Code, verrs[0].Error(), verrs)
		return nil, &ExitError{Code: ExitCommandError, Message: "invalid module", Reported: true}
	}
	m, err := compiler.Select(res.Modules, name)
	if err != nil {
		return nil, f.Fail(err)
	}
	return m, nil
}

func deploymentDir(opts *DeployOptions, moduleDir string, chainID uint64) string {
	switch {
	case opts.Ephemeral:
		return ""
	case opts.DeploymentDir != "":
		return opts.DeploymentDir
	default:
		return filepath.Join(moduleDir, "deployments", fmt.Sprintf("chain-%d", chainID))
	}
}
