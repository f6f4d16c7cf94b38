package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/journal"
)

// DefaultPriorityFee is used when the node cannot suggest a priority fee.
var DefaultPriorityFee = big.NewInt(1_000_000_000)

// FeePolicy computes fees for new transactions and replacements.
type FeePolicy struct {
	client *chain.Client
	cfg    Config
	logger *slog.Logger
}

// NewFeePolicy returns a policy reading suggestions from client.
func NewFeePolicy(client *chain.Client, cfg Config, logger *slog.Logger) *FeePolicy {
	return &FeePolicy{client: client, cfg: cfg, logger: logger}
}

// Suggest returns fees for a new transaction: EIP-1559 when the latest block
// has a base fee (maxFee = 2*baseFee + priority), legacy eth_gasPrice
// otherwise. Config overrides win.
func (p *FeePolicy) Suggest(ctx context.Context) (journal.Fees, error) {
	if p.cfg.GasPrice != nil {
		return journal.Fees{GasPrice: new(big.Int).Set(p.cfg.GasPrice)}, nil
	}
	block, err := p.client.LatestBlock(ctx)
	if err != nil {
		return journal.Fees{}, fmt.Errorf("suggest fees: %w", err)
	}
	if block.BaseFee == nil {
		price, err := p.client.GasPrice(ctx)
		if err != nil {
			return journal.Fees{}, fmt.Errorf("suggest fees: %w", err)
		}
		return journal.Fees{GasPrice: p.capped(price)}, nil
	}

	priority := p.cfg.MaxPriorityFeePerGas
	if priority == nil {
		priority, err = p.client.MaxPriorityFeePerGas(ctx)
		if err != nil {
			p.logger.Debug("priority fee suggestion unavailable", "error", err)
			priority = DefaultPriorityFee
		}
	}
	maxFee := new(big.Int).Mul(block.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, priority)
	maxFee = p.capped(maxFee)
	if priority.Cmp(maxFee) > 0 {
		priority = maxFee
	}
	return journal.Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: new(big.Int).Set(priority)}, nil
}

// capped clamps a suggestion to MaxFeePerGasLimit. Bumps are not clamped;
// they time out instead.
func (p *FeePolicy) capped(v *big.Int) *big.Int {
	if p.cfg.MaxFeePerGasLimit != nil && v.Cmp(p.cfg.MaxFeePerGasLimit) > 0 {
		return new(big.Int).Set(p.cfg.MaxFeePerGasLimit)
	}
	return v
}

// Bump returns replacement fees: every field is the larger of the current
// suggestion and 110% of the previous attempt plus one wei, so replacements
// strictly increase.
func Bump(prev, suggested journal.Fees) journal.Fees {
	if prev.IsEIP1559() {
		if !suggested.IsEIP1559() {
			suggested = journal.Fees{MaxFeePerGas: suggested.GasPrice, MaxPriorityFeePerGas: suggested.GasPrice}
		}
		return journal.Fees{
			MaxFeePerGas:         bumpField(prev.MaxFeePerGas, suggested.MaxFeePerGas),
			MaxPriorityFeePerGas: bumpField(prev.MaxPriorityFeePerGas, suggested.MaxPriorityFeePerGas),
		}
	}
	s := suggested.GasPrice
	if suggested.IsEIP1559() {
		s = suggested.MaxFeePerGas
	}
	return journal.Fees{GasPrice: bumpField(prev.GasPrice, s)}
}

func bumpField(prev, suggested *big.Int) *big.Int {
	floor := new(big.Int).Mul(prev, big.NewInt(110))
	floor.Div(floor, big.NewInt(100))
	floor.Add(floor, big.NewInt(1))
	if suggested != nil && suggested.Cmp(floor) > 0 {
		return new(big.Int).Set(suggested)
	}
	return floor
}
