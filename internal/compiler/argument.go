package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/deployer/internal/ir"
)

// compileArgument converts a CUE value into an argument. Structs with a
// "future", "param" or "account" field are references; any other struct is
// an object argument.
func compileArgument(module string, v cue.Value) (ir.Argument, error) {
	if v.IncompleteKind() == cue.StructKind {
		if ref := v.LookupPath(cue.ParsePath("future")); ref.Exists() {
			label, err := ref.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if !strings.Contains(label, ":") {
				label = module + ":" + label
			}
			return ir.FutureRef{ID: label}, nil
		}
		if ref := v.LookupPath(cue.ParsePath("param")); ref.Exists() {
			return compileParam(module, v, ref)
		}
		if ref := v.LookupPath(cue.ParsePath("account")); ref.Exists() {
			n, err := ref.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if n < 0 {
				return nil, &CompileError{Field: "account", Message: "account index must not be negative", Pos: ref.Pos()}
			}
			return ir.AccountRef{Index: int(n)}, nil
		}

		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		fields := make(map[string]ir.Argument)
		for iter.Next() {
			arg, err := compileArgument(module, iter.Value())
			if err != nil {
				return nil, err
			}
			fields[iter.Label()] = arg
		}
		return ir.ObjectArg{Fields: fields}, nil
	}

	if v.IncompleteKind() == cue.ListKind {
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		items := []ir.Argument{}
		for list.Next() {
			arg, err := compileArgument(module, list.Value())
			if err != nil {
				return nil, err
			}
			items = append(items, arg)
		}
		return ir.ArrayArg{Items: items}, nil
	}

	val, err := compileValue(v)
	if err != nil {
		return nil, err
	}
	return ir.Literal{Value: val}, nil
}

func compileParam(module string, v, ref cue.Value) (ir.Argument, error) {
	name, err := ref.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p := ir.ParamRef{Module: module, Name: name}
	if mv := v.LookupPath(cue.ParsePath("module")); mv.Exists() {
		if p.Module, err = mv.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		if p.Default, err = compileValue(dv); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// compileValue converts a concrete CUE value into an IR value. Integers
// outside int64 become decimal strings; floats are rejected.
func compileValue(v cue.Value) (ir.IRValue, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int(nil)
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n.IsInt64() {
			return ir.IRInt(n.Int64()), nil
		}
		return ir.BigIntValue(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden - use an int or a decimal string",
			Pos:     v.Pos(),
		}
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for list.Next() {
			item, err := compileValue(list.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			item, err := compileValue(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = item
		}
		return obj, nil
	case cue.NullKind:
		return nil, &CompileError{Field: "value", Message: "null is not a valid value", Pos: v.Pos()}
	}
	return nil, &CompileError{
		Field:   "value",
		Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}
