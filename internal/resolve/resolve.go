// Package resolve turns future arguments into concrete values using the
// current deployment state, the module parameters and the account list.
package resolve

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/state"
)

// Parameters holds module parameters keyed by module id, then by name.
type Parameters map[string]ir.IRObject

// Context carries everything argument resolution reads. The zero value
// resolves literals only.
type Context struct {
	State         *state.DeploymentState
	Parameters    Parameters
	Accounts      []common.Address
	DefaultSender common.Address
}

// Value resolves a to an IRValue. Future references resolve to the
// referenced future's result: a contract address, a static call value,
// encoded call data or an event argument.
func (c Context) Value(a ir.Argument) (ir.IRValue, error) {
	switch v := a.(type) {
	case nil:
		return ir.IRNull{}, nil
	case ir.Literal:
		if v.Value == nil {
			return ir.IRNull{}, nil
		}
		return v.Value, nil
	case ir.FutureRef:
		es, ok := c.State.Get(v.ID)
		if !ok {
			return nil, fmt.Errorf("future %s has not been executed", v.ID)
		}
		return FutureResult(es)
	case ir.ParamRef:
		return c.param(v)
	case ir.AccountRef:
		addr, err := c.account(v.Index)
		if err != nil {
			return nil, err
		}
		return ir.IRString(addr.Hex()), nil
	case ir.ArrayArg:
		out := make(ir.IRArray, len(v.Items))
		for i, item := range v.Items {
			val, err := c.Value(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = val
		}
		return out, nil
	case ir.ObjectArg:
		out := make(ir.IRObject, len(v.Fields))
		for k, f := range v.Fields {
			val, err := c.Value(f)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown argument %T", a)
	}
}

// Args resolves a positional argument list.
func (c Context) Args(args []ir.Argument) (ir.IRArray, error) {
	out := make(ir.IRArray, len(args))
	for i, a := range args {
		v, err := c.Value(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Address resolves a to a contract or account address.
func (c Context) Address(a ir.Argument) (common.Address, error) {
	v, err := c.Value(a)
	if err != nil {
		return common.Address{}, err
	}
	return ToAddress(v)
}

// Wei resolves a transaction value. A nil argument is zero.
func (c Context) Wei(a ir.Argument) (*big.Int, error) {
	if a == nil {
		return new(big.Int), nil
	}
	v, err := c.Value(a)
	if err != nil {
		return nil, err
	}
	n, err := ir.ToBigInt(v)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("value: negative amount %s", n)
	}
	return n, nil
}

// Sender resolves the from argument. A nil argument is the default sender,
// which falls back to the first account.
func (c Context) Sender(a ir.Argument) (common.Address, error) {
	var addr common.Address
	if a == nil {
		addr = c.DefaultSender
		if addr == (common.Address{}) {
			return c.account(0)
		}
	} else {
		var err error
		if addr, err = c.Address(a); err != nil {
			return common.Address{}, fmt.Errorf("from: %w", err)
		}
	}
	if len(c.Accounts) > 0 && !slices.Contains(c.Accounts, addr) {
		return common.Address{}, deployerr.New(deployerr.CodeAccountNotFound, "sender %s is not an available account", addr.Hex())
	}
	return addr, nil
}

// Libraries resolves a library map to addresses.
func (c Context) Libraries(libs map[string]ir.Argument) (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(libs))
	for name, a := range libs {
		addr, err := c.Address(a)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", name, err)
		}
		out[name] = addr
	}
	return out, nil
}

func (c Context) account(i int) (common.Address, error) {
	if i < 0 || i >= len(c.Accounts) {
		return common.Address{}, deployerr.New(deployerr.CodeAccountNotFound, "account index %d out of range (%d accounts)", i, len(c.Accounts))
	}
	return c.Accounts[i], nil
}

func (c Context) param(p ir.ParamRef) (ir.IRValue, error) {
	if v, ok := c.Parameters[p.Module][p.Name]; ok {
		return v, nil
	}
	if p.Default != nil {
		return p.Default, nil
	}
	return nil, deployerr.New(deployerr.CodeMissingParameter, "module %s requires parameter %q", p.Module, p.Name)
}

// FutureResult returns the value other futures see when they reference es.
func FutureResult(es state.ExecutionState) (ir.IRValue, error) {
	id := es.Meta().ID
	if st := es.Meta().Status; st != state.StatusSuccess {
		return nil, fmt.Errorf("future %s is %s", id, st)
	}
	switch v := es.(type) {
	case *state.DeploymentExecutionState, *state.ContractAtExecutionState:
		addr, _ := state.ContractAddress(es)
		return ir.IRString(addr.Hex()), nil
	case *state.StaticCallExecutionState:
		if v.Result == nil || v.Result.Value.Value == nil {
			return ir.IRNull{}, nil
		}
		return v.Result.Value.Value, nil
	case *state.EncodeFunctionCallExecutionState:
		return ir.IRString(hexutil.Encode(v.Result)), nil
	case *state.ReadEventArgumentExecutionState:
		return v.Result, nil
	default:
		return nil, fmt.Errorf("future %s (%s) has no result value", id, es.Kind())
	}
}

// ToAddress parses a hex address value.
func ToAddress(v ir.IRValue) (common.Address, error) {
	s, ok := v.(ir.IRString)
	if !ok || !common.IsHexAddress(string(s)) || !strings.HasPrefix(string(s), "0x") {
		return common.Address{}, fmt.Errorf("expected address, got %v", v)
	}
	return common.HexToAddress(string(s)), nil
}
