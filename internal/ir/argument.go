package ir

import "slices"

// Argument is an unresolved future input. Resolution against the deployment
// state, the module parameters and the account list happens at execution
// time.
type Argument interface {
	argument()
}

// Literal is a fixed value.
type Literal struct {
	Value IRValue
}

// FutureRef is the result of another future: a contract address, a static
// call result, encoded call data or an event argument.
type FutureRef struct {
	ID string
}

// ParamRef reads a module parameter. A nil Default makes it required.
type ParamRef struct {
	Module  string
	Name    string
	Default IRValue
}

// AccountRef is the Index-th account exposed by the signer.
type AccountRef struct {
	Index int
}

// ArrayArg is a list of arguments.
type ArrayArg struct {
	Items []Argument
}

// ObjectArg is a struct-shaped argument.
type ObjectArg struct {
	Fields map[string]Argument
}

func (Literal) argument()    {}
func (FutureRef) argument()  {}
func (ParamRef) argument()   {}
func (AccountRef) argument() {}
func (ArrayArg) argument()   {}
func (ObjectArg) argument()  {}

// Lit wraps a Go value as a Literal. It panics on values FromGo rejects and
// is meant for module builders and tests.
func Lit(v any) Literal {
	val, err := FromGo(v)
	if err != nil {
		panic("ir.Lit: " + err.Error())
	}
	return Literal{Value: val}
}

// ReferencedFutures lists future ids reachable from a, in encounter order.
func ReferencedFutures(a Argument) []string {
	var out []string
	var walk func(Argument)
	walk = func(a Argument) {
		switch v := a.(type) {
		case FutureRef:
			out = append(out, v.ID)
		case ArrayArg:
			for _, item := range v.Items {
				walk(item)
			}
		case ObjectArg:
			keys := make([]string, 0, len(v.Fields))
			for k := range v.Fields {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				walk(v.Fields[k])
			}
		}
	}
	if a != nil {
		walk(a)
	}
	return out
}

// ReferencedParams lists the parameters a reads.
func ReferencedParams(a Argument) []ParamRef {
	var out []ParamRef
	var walk func(Argument)
	walk = func(a Argument) {
		switch v := a.(type) {
		case ParamRef:
			out = append(out, v)
		case ArrayArg:
			for _, item := range v.Items {
				walk(item)
			}
		case ObjectArg:
			for _, f := range v.Fields {
				walk(f)
			}
		}
	}
	if a != nil {
		walk(a)
	}
	return out
}
