package abicodec

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/ir"
)

// DecodeResult unpacks the return data of function and selects one output by
// name or index. An empty nameOrIndex selects the first output.
func DecodeResult(a abi.ABI, function string, data []byte, nameOrIndex string) (ir.IRValue, error) {
	m, err := FindMethod(a, function)
	if err != nil {
		return nil, err
	}
	if len(m.Outputs) == 0 {
		return nil, fmt.Errorf("%s has no outputs", m.Sig)
	}
	values, err := m.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", m.Sig, err)
	}
	i, err := selectArgument(m.Outputs, nameOrIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Sig, err)
	}
	return FromGo(m.Outputs[i].Type, values[i])
}

func selectArgument(args abi.Arguments, nameOrIndex string) (int, error) {
	if nameOrIndex == "" {
		return 0, nil
	}
	if i, err := strconv.Atoi(nameOrIndex); err == nil {
		if i < 0 || i >= len(args) {
			return 0, fmt.Errorf("index %d out of range, %d values available", i, len(args))
		}
		return i, nil
	}
	for i, arg := range args {
		if arg.Name == nameOrIndex {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no value named %q", nameOrIndex)
}

// FindEventLogs returns the data of every log emitted by emitter that matches
// event's topic, in receipt order.
func FindEventLogs(ev abi.Event, emitter common.Address, logs []Log) []Log {
	var out []Log
	for _, l := range logs {
		if l.Address != emitter || len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Log is the subset of an event log needed for decoding.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// DecodeEventArgument decodes one argument of an event log. Indexed dynamic
// arguments only carry their hash, which is returned as hex.
func DecodeEventArgument(ev abi.Event, l Log, nameOrIndex string) (ir.IRValue, error) {
	i, err := selectArgument(ev.Inputs, nameOrIndex)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", ev.Sig, err)
	}
	arg := ev.Inputs[i]
	if arg.Indexed {
		topic := 1
		for _, in := range ev.Inputs[:i] {
			if in.Indexed {
				topic++
			}
		}
		if topic >= len(l.Topics) {
			return nil, fmt.Errorf("event %s: log has %d topics", ev.Sig, len(l.Topics))
		}
		if isDynamic(arg.Type) {
			return ir.IRString(l.Topics[topic].Hex()), nil
		}
		out := make(map[string]any)
		if err := abi.ParseTopicsIntoMap(out, abi.Arguments{arg}, []common.Hash{l.Topics[topic]}); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Sig, err)
		}
		return FromGo(arg.Type, out[arg.Name])
	}
	nonIndexed := ev.Inputs.NonIndexed()
	values, err := nonIndexed.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("event %s: decode data: %w", ev.Sig, err)
	}
	pos := 0
	for _, in := range ev.Inputs[:i] {
		if !in.Indexed {
			pos++
		}
	}
	return FromGo(arg.Type, values[pos])
}

func isDynamic(t abi.Type) bool {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return true
	default:
		return false
	}
}

// FromGo converts a value produced by the abi package into an IR value.
// Integers become decimal strings, addresses checksummed hex and byte values
// 0x-prefixed hex. Tuples become arrays in field order.
func FromGo(t abi.Type, v any) (ir.IRValue, error) {
	rv := reflect.ValueOf(v)
	switch t.T {
	case abi.IntTy, abi.UintTy:
		if n, ok := v.(*big.Int); ok {
			return ir.BigIntValue(n), nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return ir.BigIntValue(big.NewInt(rv.Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return ir.BigIntValue(new(big.Int).SetUint64(rv.Uint())), nil
		}
	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return ir.IRBool(b), nil
		}
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return ir.IRString(s), nil
		}
	case abi.AddressTy:
		if addr, ok := v.(common.Address); ok {
			return ir.IRString(addr.Hex()), nil
		}
	case abi.BytesTy:
		if b, ok := v.([]byte); ok {
			return ir.IRString(hexutil.Encode(b)), nil
		}
	case abi.FixedBytesTy, abi.FunctionTy, abi.HashTy:
		if rv.Kind() == reflect.Array {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return ir.IRString(hexutil.Encode(b)), nil
		}
	case abi.SliceTy, abi.ArrayTy:
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make(ir.IRArray, rv.Len())
			for i := range rv.Len() {
				elem, err := FromGo(*t.Elem, rv.Index(i).Interface())
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", i, err)
				}
				out[i] = elem
			}
			return out, nil
		}
	case abi.TupleTy:
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() == reflect.Struct {
			out := make(ir.IRArray, len(t.TupleElems))
			for i, elem := range t.TupleElems {
				fv, err := FromGo(*elem, rv.Field(i).Interface())
				if err != nil {
					return nil, fmt.Errorf("%s: %w", t.TupleRawNames[i], err)
				}
				out[i] = fv
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t.String())
}

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71}
)

// DecodeRevert renders revert data as a human readable reason. Error(string)
// and Panic(uint256) are always understood; custom errors need the
// contract's ABI, which may be nil.
func DecodeRevert(a *abi.ABI, data []byte) string {
	if len(data) == 0 {
		return "reverted without a reason"
	}
	if len(data) < 4 {
		return "reverted with invalid data " + hexutil.Encode(data)
	}
	selector := data[:4]
	if bytes.Equal(selector, errorSelector) || bytes.Equal(selector, panicSelector) {
		if reason, err := abi.UnpackRevert(data); err == nil {
			if bytes.Equal(selector, panicSelector) {
				return "panic: " + reason
			}
			return "reverted with reason: " + reason
		}
	}
	if a != nil {
		for _, e := range a.Errors {
			if !bytes.Equal(e.ID[:4], selector) {
				continue
			}
			values, err := e.Inputs.Unpack(data[4:])
			if err != nil {
				break
			}
			parts := make([]string, len(values))
			for i, v := range values {
				irv, err := FromGo(e.Inputs[i].Type, v)
				if err != nil {
					parts[i] = fmt.Sprint(v)
					continue
				}
				parts[i] = ir.CanonicalString(irv)
			}
			return fmt.Sprintf("reverted with custom error %s(%s)", e.Name, strings.Join(parts, ", "))
		}
	}
	return "reverted with unknown data " + hexutil.Encode(data)
}
