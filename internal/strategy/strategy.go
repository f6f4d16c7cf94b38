// Package strategy decides what a network future does next. The engine asks
// a Strategy for the next step of a future after every completed network
// interaction; the strategy answers with another interaction or with the
// future's result.
//
// Strategies only see successful interactions. Simulation errors, reverted
// transactions and failed static calls are turned into results by the engine
// before the strategy is consulted.
package strategy

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// Step is what a strategy asks for: *OnchainRequest, *StaticCallRequest or
// *Done.
type Step interface {
	step()
}

// OnchainRequest asks for a transaction. To is nil for contract creation.
type OnchainRequest struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
}

// StaticCallRequest asks for an eth_call.
type StaticCallRequest struct {
	To   common.Address
	Data []byte
}

// Done completes the future.
type Done struct {
	Result journal.ExecutionResult
}

func (*OnchainRequest) step()    {}
func (*StaticCallRequest) step() {}
func (*Done) step()              {}

// Helper is what strategies may read besides the execution state.
type Helper interface {
	LoadArtifact(ctx context.Context, artifactID string) (*artifacts.Artifact, error)
	Code(ctx context.Context, addr common.Address) ([]byte, error)
}

// Strategy drives network futures.
type Strategy interface {
	Name() string
	Config() ir.IRObject
	Next(ctx context.Context, es state.NetworkExecutionState, h Helper) (Step, error)
}

// Factory builds a strategy from its config.
type Factory func(config ir.IRObject) (Strategy, error)

var registry = map[string]Factory{
	BasicName:   func(ir.IRObject) (Strategy, error) { return Basic{}, nil },
	Create2Name: NewCreate2,
}

// New builds the named strategy.
func New(name string, config ir.IRObject) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, Names())
	}
	return f(config)
}

// Names lists the registered strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Strategy errors are results, not Go errors.
func strategyError(format string, args ...any) *Done {
	return &Done{Result: journal.ExecutionResult{
		Type:  journal.ResultStrategyError,
		Error: fmt.Sprintf(format, args...),
	}}
}

// Held stops a future without failing it.
func Held(id int, reason string) *Done {
	return &Done{Result: journal.ExecutionResult{
		Type:   journal.ResultStrategyHeld,
		HeldID: id,
		Reason: reason,
	}}
}
