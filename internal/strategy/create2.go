package strategy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// Create2Name deploys through a CREATE2 factory.
const Create2Name = "create2"

// Create2 deploys contracts at addresses derived from a salt and the init
// code, through a factory that takes salt ++ initCode as calldata. Calls,
// static calls and send data behave as in Basic.
type Create2 struct {
	Salt    common.Hash
	Factory common.Address
}

// NewCreate2 reads {salt, factory} from config. salt is required and must be
// 32 bytes of hex; factory defaults to the deterministic deployment proxy.
func NewCreate2(config ir.IRObject) (Strategy, error) {
	raw, ok := config["salt"].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("create2: salt is required")
	}
	salt, err := hexutil.Decode(string(raw))
	if err != nil || len(salt) != common.HashLength {
		return nil, fmt.Errorf("create2: salt must be 32 bytes of 0x-prefixed hex, got %q", raw)
	}
	s := &Create2{Salt: common.BytesToHash(salt), Factory: chain.DeterministicDeployer}
	if f, ok := config["factory"]; ok {
		fs, isString := f.(ir.IRString)
		if !isString || !common.IsHexAddress(string(fs)) {
			return nil, fmt.Errorf("create2: invalid factory %v", f)
		}
		s.Factory = common.HexToAddress(string(fs))
	}
	return s, nil
}

// Name implements Strategy.
func (*Create2) Name() string { return Create2Name }

// Config implements Strategy.
func (s *Create2) Config() ir.IRObject {
	cfg := ir.IRObject{"salt": ir.IRString(s.Salt.Hex())}
	if s.Factory != chain.DeterministicDeployer {
		cfg["factory"] = ir.IRString(s.Factory.Hex())
	}
	return cfg
}

// Address returns where initCode lands.
func (s *Create2) Address(initCode []byte) common.Address {
	return crypto.CreateAddress2(s.Factory, s.Salt, crypto.Keccak256(initCode))
}

// Next implements Strategy.
func (s *Create2) Next(ctx context.Context, es state.NetworkExecutionState, h Helper) (Step, error) {
	dep, ok := es.(*state.DeploymentExecutionState)
	if !ok {
		return nextCommon(ctx, es, h)
	}
	initCode, err := deploymentInitCode(ctx, dep, h)
	if err != nil {
		return strategyError("%v", err), nil
	}
	addr := s.Address(initCode)

	if len(dep.NetworkInteractions) > 0 {
		tx, err := confirmedLast(dep)
		if err != nil {
			return nil, err
		}
		return &Done{Result: journal.ExecutionResult{Type: journal.ResultSuccess, Address: &addr, TxHash: &tx.Hash}}, nil
	}

	code, err := h.Code(ctx, s.Factory)
	if err != nil {
		return nil, fmt.Errorf("get factory code: %w", err)
	}
	if len(code) == 0 {
		return strategyError("CREATE2 factory %s is not deployed on this network", s.Factory.Hex()), nil
	}
	if existing, err := h.Code(ctx, addr); err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	} else if len(existing) > 0 {
		return strategyError("a contract is already deployed at %s for this salt", addr.Hex()), nil
	}

	data := make([]byte, 0, common.HashLength+len(initCode))
	data = append(data, s.Salt.Bytes()...)
	data = append(data, initCode...)
	factory := s.Factory
	return &OnchainRequest{To: &factory, Data: data, Value: zeroIfNil(dep.Value)}, nil
}
