package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/deploy"
	"github.com/roach88/deployer/internal/engine"
)

// TrackTxOptions holds flags for the track-tx command.
type TrackTxOptions struct {
	*RootOptions
	ConfigFile    string
	RPCURL        string
	Confirmations uint64
}

// TrackTxOutput is the JSON payload of the track-tx command.
type TrackTxOutput struct {
	Hash    common.Hash `json:"hash"`
	Message string      `json:"message"`
}

// NewTrackTxCommand creates the track-tx command.
func NewTrackTxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackTxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "track-tx <deployment-dir> <tx-hash>",
		Short: "Record a transaction sent outside the deployer",
		Long: `Attach a transaction to the deployment when a run was interrupted between
sending it and recording it, or when it was sent by hand with the nonce the
deployment reserved.

Examples:
  deployer track-tx ./deployments/chain-11155111 0xabc... --rpc https://rpc.sepolia.org`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			ctx := cmd.Context()

			raw, err := hexutil.Decode(args[1])
			if err != nil || len(raw) != common.HashLength {
				return f.Fail(fmt.Errorf("invalid transaction hash %q", args[1]))
			}
			hash := common.BytesToHash(raw)

			cfg, err := loadConfig(opts.ConfigFile)
			if err != nil {
				return f.Fail(err)
			}
			url := cfg.RPCURL
			if opts.RPCURL != "" {
				url = opts.RPCURL
			}
			confirmations := cfg.RequiredConfirmations
			if opts.Confirmations != 0 {
				confirmations = opts.Confirmations
			}

			provider, err := opts.Dial(ctx, url)
			if err != nil {
				return f.Fail(fmt.Errorf("connect to %s: %w", url, err))
			}
			defer closeProvider(provider)
			if confirmations == 0 {
				chainID, err := chain.NewClient(provider).ChainID(ctx)
				if err != nil {
					return f.Fail(fmt.Errorf("chain id: %w", err))
				}
				confirmations = engine.DefaultRequiredConfirmations
				if engine.IsLocalChain(chainID) {
					confirmations = 1
				}
			}

			msg, err := deploy.TrackTransaction(ctx, args[0], hash, provider, confirmations)
			if err != nil {
				return f.Fail(err)
			}
			if opts.Format == "json" {
				return f.Success(TrackTxOutput{Hash: hash, Message: msg})
			}
			return f.Success(fmt.Sprintf("%s %s", markOK, msg))
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "config file")
	cmd.Flags().StringVar(&opts.RPCURL, "rpc", "", "JSON-RPC endpoint, overrides the config")
	cmd.Flags().Uint64Var(&opts.Confirmations, "confirmations", 0, "required confirmations (default from config)")

	return cmd
}
