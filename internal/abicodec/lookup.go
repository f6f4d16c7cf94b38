// Package abicodec converts between IR values and the Ethereum ABI encoding:
// constructor and function call data, static call results, event arguments
// and revert reasons.
package abicodec

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FindMethod resolves a function by bare name or full signature
// ("transfer(address,uint256)"). A bare name of an overloaded function is an
// error.
func FindMethod(a abi.ABI, name string) (abi.Method, error) {
	if strings.Contains(name, "(") {
		for _, m := range a.Methods {
			if m.Sig == name {
				return m, nil
			}
		}
		return abi.Method{}, fmt.Errorf("function %q not found", name)
	}
	var found []abi.Method
	for _, m := range a.Methods {
		if m.RawName == name {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return abi.Method{}, fmt.Errorf("function %q not found", name)
	case 1:
		return found[0], nil
	default:
		return abi.Method{}, fmt.Errorf("function %q is overloaded, use one of %s", name, strings.Join(methodSigs(found), ", "))
	}
}

func methodSigs(ms []abi.Method) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Sig
	}
	slices.Sort(out)
	return out
}

// FindEvent resolves an event by bare name or full signature.
func FindEvent(a abi.ABI, name string) (abi.Event, error) {
	var found []abi.Event
	for _, ev := range a.Events {
		if ev.Sig == name || ev.RawName == name {
			found = append(found, ev)
		}
	}
	switch len(found) {
	case 0:
		return abi.Event{}, fmt.Errorf("event %q not found", name)
	case 1:
		return found[0], nil
	default:
		sigs := make([]string, len(found))
		for i, ev := range found {
			sigs[i] = ev.Sig
		}
		slices.Sort(sigs)
		return abi.Event{}, fmt.Errorf("event %q is overloaded, use one of %s", name, strings.Join(sigs, ", "))
	}
}
