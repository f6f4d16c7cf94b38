package abicodec

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/ir"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// EncodeConstructor appends the ABI-encoded constructor arguments to linked
// bytecode.
func EncodeConstructor(a abi.ABI, bytecode []byte, args ir.IRArray) ([]byte, error) {
	values, err := ToGoArgs(a.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("constructor: %w", err)
	}
	packed, err := a.Constructor.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("constructor: %w", err)
	}
	out := make([]byte, 0, len(bytecode)+len(packed))
	out = append(out, bytecode...)
	return append(out, packed...), nil
}

// EncodeCall returns selector-prefixed call data for function.
func EncodeCall(a abi.ABI, function string, args ir.IRArray) ([]byte, error) {
	m, err := FindMethod(a, function)
	if err != nil {
		return nil, err
	}
	values, err := ToGoArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Sig, err)
	}
	packed, err := m.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Sig, err)
	}
	return append(append([]byte{}, m.ID...), packed...), nil
}

// ToGoArgs converts IR values into the Go types the abi package packs.
func ToGoArgs(inputs abi.Arguments, args ir.IRArray) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, in := range inputs {
		rv, err := toGo(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out[i] = rv.Interface()
	}
	return out, nil
}

func toGo(t abi.Type, v ir.IRValue) (reflect.Value, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		return toGoInt(t, v)
	case abi.BoolTy:
		b, ok := v.(ir.IRBool)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected bool, got %T", v)
		}
		return reflect.ValueOf(bool(b)), nil
	case abi.StringTy:
		s, ok := v.(ir.IRString)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected string, got %T", v)
		}
		return reflect.ValueOf(string(s)), nil
	case abi.AddressTy:
		s, ok := v.(ir.IRString)
		if !ok || !common.IsHexAddress(string(s)) {
			return reflect.Value{}, fmt.Errorf("expected address, got %v", v)
		}
		return reflect.ValueOf(common.HexToAddress(string(s))), nil
	case abi.BytesTy:
		b, err := hexArg(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.FixedBytesTy, abi.FunctionTy, abi.HashTy:
		b, err := hexArg(v)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.GetType()).Elem()
		if len(b) != out.Len() {
			return reflect.Value{}, fmt.Errorf("expected %d bytes, got %d", out.Len(), len(b))
		}
		reflect.Copy(out, reflect.ValueOf(b))
		return out, nil
	case abi.SliceTy, abi.ArrayTy:
		arr, ok := v.(ir.IRArray)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected array, got %T", v)
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(arr), len(arr))
		} else {
			if len(arr) != t.Size {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(arr))
			}
			out = reflect.New(t.GetType()).Elem()
		}
		for i, elem := range arr {
			ev, err := toGo(*t.Elem, elem)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case abi.TupleTy:
		return toGoTuple(t, v)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

func toGoInt(t abi.Type, v ir.IRValue) (reflect.Value, error) {
	n, err := ir.ToBigInt(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return reflect.Value{}, fmt.Errorf("negative value %s for %s", n, t.String())
	}
	if !fitsType(t, n) {
		return reflect.Value{}, fmt.Errorf("value %s overflows %s", n, t.String())
	}
	gt := t.GetType()
	if gt == bigIntType {
		return reflect.ValueOf(n), nil
	}
	out := reflect.New(gt).Elem()
	if t.T == abi.IntTy {
		if !n.IsInt64() || out.OverflowInt(n.Int64()) {
			return reflect.Value{}, fmt.Errorf("value %s overflows %s", n, t.String())
		}
		out.SetInt(n.Int64())
		return out, nil
	}
	if !n.IsUint64() || out.OverflowUint(n.Uint64()) {
		return reflect.Value{}, fmt.Errorf("value %s overflows %s", n, t.String())
	}
	out.SetUint(n.Uint64())
	return out, nil
}

func fitsType(t abi.Type, n *big.Int) bool {
	if t.T == abi.UintTy {
		return n.BitLen() <= t.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	return n.Cmp(limit) < 0 && n.Cmp(new(big.Int).Neg(limit)) >= 0
}

// toGoTuple accepts either positional (IRArray) or named (IRObject) fields.
func toGoTuple(t abi.Type, v ir.IRValue) (reflect.Value, error) {
	out := reflect.New(t.GetType()).Elem()
	for i, elem := range t.TupleElems {
		var field ir.IRValue
		switch val := v.(type) {
		case ir.IRArray:
			if len(val) != len(t.TupleElems) {
				return reflect.Value{}, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(val))
			}
			field = val[i]
		case ir.IRObject:
			f, ok := val[t.TupleRawNames[i]]
			if !ok {
				return reflect.Value{}, fmt.Errorf("missing tuple field %q", t.TupleRawNames[i])
			}
			field = f
		default:
			return reflect.Value{}, fmt.Errorf("expected tuple, got %T", v)
		}
		fv, err := toGo(*elem, field)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %w", t.TupleRawNames[i], err)
		}
		out.Field(i).Set(fv)
	}
	return out, nil
}

func hexArg(v ir.IRValue) ([]byte, error) {
	s, ok := v.(ir.IRString)
	if !ok || !strings.HasPrefix(string(s), "0x") {
		return nil, fmt.Errorf("expected 0x-prefixed hex, got %v", v)
	}
	b, err := hexutil.Decode(string(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}
