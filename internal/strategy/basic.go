package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/roach88/deployer/internal/abicodec"
	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// BasicName is the default strategy.
const BasicName = "basic"

// Basic deploys with plain CREATE transactions and sends calls as they are.
type Basic struct{}

// Name implements Strategy.
func (Basic) Name() string { return BasicName }

// Config implements Strategy.
func (Basic) Config() ir.IRObject { return ir.IRObject{} }

// Next implements Strategy.
func (Basic) Next(ctx context.Context, es state.NetworkExecutionState, h Helper) (Step, error) {
	switch v := es.(type) {
	case *state.DeploymentExecutionState:
		if len(v.NetworkInteractions) == 0 {
			initCode, err := deploymentInitCode(ctx, v, h)
			if err != nil {
				return strategyError("%v", err), nil
			}
			return &OnchainRequest{Data: initCode, Value: v.Value}, nil
		}
		tx, err := confirmedLast(v)
		if err != nil {
			return nil, err
		}
		if tx.Receipt.ContractAddress == nil {
			return strategyError("transaction %s did not create a contract", tx.Hash.Hex()), nil
		}
		addr := *tx.Receipt.ContractAddress
		return &Done{Result: journal.ExecutionResult{Type: journal.ResultSuccess, Address: &addr, TxHash: &tx.Hash}}, nil
	default:
		return nextCommon(ctx, es, h)
	}
}

// nextCommon drives calls, static calls and send data, which every
// strategy handles the same way.
func nextCommon(ctx context.Context, es state.NetworkExecutionState, h Helper) (Step, error) {
	switch v := es.(type) {
	case *state.CallExecutionState:
		if len(v.NetworkInteractions) == 0 {
			a, err := loadABI(ctx, h, v.ArtifactID)
			if err != nil {
				return strategyError("%v", err), nil
			}
			data, err := abicodec.EncodeCall(a, v.FunctionName, v.Args)
			if err != nil {
				return strategyError("%v", err), nil
			}
			to := v.ContractAddress
			return &OnchainRequest{To: &to, Data: data, Value: v.Value}, nil
		}
		tx, err := confirmedLast(v)
		if err != nil {
			return nil, err
		}
		return &Done{Result: journal.ExecutionResult{Type: journal.ResultSuccess, TxHash: &tx.Hash}}, nil

	case *state.SendDataExecutionState:
		if len(v.NetworkInteractions) == 0 {
			to := v.To
			return &OnchainRequest{To: &to, Data: v.Data, Value: v.Value}, nil
		}
		tx, err := confirmedLast(v)
		if err != nil {
			return nil, err
		}
		return &Done{Result: journal.ExecutionResult{Type: journal.ResultSuccess, TxHash: &tx.Hash}}, nil

	case *state.StaticCallExecutionState:
		a, err := loadABI(ctx, h, v.ArtifactID)
		if err != nil {
			return strategyError("%v", err), nil
		}
		if len(v.NetworkInteractions) == 0 {
			data, err := abicodec.EncodeCall(a, v.FunctionName, v.Args)
			if err != nil {
				return strategyError("%v", err), nil
			}
			return &StaticCallRequest{To: v.ContractAddress, Data: data}, nil
		}
		sc, ok := state.LastInteraction(v).(*state.StaticCallInteraction)
		if !ok || sc.Result == nil {
			return nil, &state.InvariantError{FutureID: v.ID, Message: "static call has no result"}
		}
		value, err := abicodec.DecodeResult(a, v.FunctionName, sc.Result.ReturnData, v.NameOrIndex)
		if err != nil {
			return strategyError("%v", err), nil
		}
		return &Done{Result: journal.ExecutionResult{Type: journal.ResultSuccess, Value: ir.Any{Value: value}}}, nil

	default:
		return nil, fmt.Errorf("strategy cannot drive %s", es.Kind())
	}
}

func loadABI(ctx context.Context, h Helper, artifactID string) (abi.ABI, error) {
	art, err := h.LoadArtifact(ctx, artifactID)
	if err != nil {
		return abi.ABI{}, err
	}
	return art.ParseABI()
}

// deploymentInitCode links the artifact and appends the encoded constructor
// arguments.
func deploymentInitCode(ctx context.Context, es *state.DeploymentExecutionState, h Helper) ([]byte, error) {
	art, err := h.LoadArtifact(ctx, es.ArtifactID)
	if err != nil {
		return nil, err
	}
	bytecode, err := artifacts.LinkBytecode(art, es.Libraries)
	if err != nil {
		return nil, err
	}
	a, err := art.ParseABI()
	if err != nil {
		return nil, err
	}
	return abicodec.EncodeConstructor(a, bytecode, es.ConstructorArgs)
}

// confirmedLast returns the confirmed transaction of the last onchain
// interaction. The engine only consults a strategy once it exists.
func confirmedLast(es state.NetworkExecutionState) (*state.Transaction, error) {
	oi, ok := state.LastInteraction(es).(*state.OnchainInteraction)
	if !ok {
		return nil, &state.InvariantError{FutureID: es.Meta().ID, Message: "last interaction is not onchain"}
	}
	tx := oi.ConfirmedTransaction()
	if tx == nil || !tx.Receipt.Succeeded() {
		return nil, &state.InvariantError{FutureID: es.Meta().ID, Message: fmt.Sprintf("interaction %d has no successful transaction", oi.ID)}
	}
	return tx, nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
