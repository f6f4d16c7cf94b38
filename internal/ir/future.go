package ir

import (
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/artifacts"
)

// FutureType identifies the kind of a future.
type FutureType string

const (
	NamedArtifactContractDeployment FutureType = "NAMED_ARTIFACT_CONTRACT_DEPLOYMENT"
	ContractDeployment              FutureType = "CONTRACT_DEPLOYMENT"
	NamedArtifactLibraryDeployment  FutureType = "NAMED_ARTIFACT_LIBRARY_DEPLOYMENT"
	LibraryDeployment               FutureType = "LIBRARY_DEPLOYMENT"
	ContractCall                    FutureType = "CONTRACT_CALL"
	StaticCall                      FutureType = "STATIC_CALL"
	EncodeFunctionCall              FutureType = "ENCODE_FUNCTION_CALL"
	NamedArtifactContractAt         FutureType = "NAMED_ARTIFACT_CONTRACT_AT"
	ContractAt                      FutureType = "CONTRACT_AT"
	ReadEventArgument               FutureType = "READ_EVENT_ARGUMENT"
	SendData                        FutureType = "SEND_DATA"
)

// Future is one node of the deployment graph. The set of implementations is
// closed; switch on the concrete type.
type Future interface {
	ID() string
	Type() FutureType
	ModuleID() string
	// Dependencies returns the ids this future must wait for: explicit
	// After entries plus every future referenced by its fields.
	Dependencies() []string
	future()
}

// FutureMeta holds the fields shared by all futures.
type FutureMeta struct {
	FutureID string
	Module   string
	After    []string
}

// ID implements Future.
func (m FutureMeta) ID() string { return m.FutureID }

// ModuleID implements Future.
func (m FutureMeta) ModuleID() string { return m.Module }

// ContractDeploymentFuture deploys a contract, either by artifact name
// (resolved through the artifact resolver) or from a literal artifact.
type ContractDeploymentFuture struct {
	FutureMeta
	ContractName string
	// Artifact is set for CONTRACT_DEPLOYMENT futures only.
	Artifact  *artifacts.Artifact
	Args      []Argument
	Libraries map[string]Argument
	Value     Argument
	From      Argument
}

func (*ContractDeploymentFuture) future() {}

// Type implements Future.
func (f *ContractDeploymentFuture) Type() FutureType {
	if f.Artifact != nil {
		return ContractDeployment
	}
	return NamedArtifactContractDeployment
}

// Dependencies implements Future.
func (f *ContractDeploymentFuture) Dependencies() []string {
	return collectDeps(f.After, nil, f.Args, mapArgs(f.Libraries), []Argument{f.Value, f.From})
}

// LibraryDeploymentFuture deploys a library.
type LibraryDeploymentFuture struct {
	FutureMeta
	ContractName string
	Artifact     *artifacts.Artifact
	Libraries    map[string]Argument
	From         Argument
}

func (*LibraryDeploymentFuture) future() {}

// Type implements Future.
func (f *LibraryDeploymentFuture) Type() FutureType {
	if f.Artifact != nil {
		return LibraryDeployment
	}
	return NamedArtifactLibraryDeployment
}

// Dependencies implements Future.
func (f *LibraryDeploymentFuture) Dependencies() []string {
	return collectDeps(f.After, nil, mapArgs(f.Libraries), []Argument{f.From})
}

// ContractCallFuture sends a transaction calling FunctionName on the contract
// produced by the Contract future.
type ContractCallFuture struct {
	FutureMeta
	Contract     string
	FunctionName string
	Args         []Argument
	Value        Argument
	From         Argument
}

func (*ContractCallFuture) future() {}

// Type implements Future.
func (*ContractCallFuture) Type() FutureType { return ContractCall }

// Dependencies implements Future.
func (f *ContractCallFuture) Dependencies() []string {
	return collectDeps(f.After, []string{f.Contract}, f.Args, []Argument{f.Value, f.From})
}

// StaticCallFuture reads a value with eth_call. NameOrIndex selects the
// output: a named output, or a decimal index. Empty means index 0.
type StaticCallFuture struct {
	FutureMeta
	Contract     string
	FunctionName string
	Args         []Argument
	NameOrIndex  string
	From         Argument
}

func (*StaticCallFuture) future() {}

// Type implements Future.
func (*StaticCallFuture) Type() FutureType { return StaticCall }

// Dependencies implements Future.
func (f *StaticCallFuture) Dependencies() []string {
	return collectDeps(f.After, []string{f.Contract}, f.Args, []Argument{f.From})
}

// EncodeFunctionCallFuture ABI-encodes a call without sending it.
type EncodeFunctionCallFuture struct {
	FutureMeta
	Contract     string
	FunctionName string
	Args         []Argument
}

func (*EncodeFunctionCallFuture) future() {}

// Type implements Future.
func (*EncodeFunctionCallFuture) Type() FutureType { return EncodeFunctionCall }

// Dependencies implements Future.
func (f *EncodeFunctionCallFuture) Dependencies() []string {
	return collectDeps(f.After, []string{f.Contract}, f.Args)
}

// ContractAtFuture binds an existing address to an artifact.
type ContractAtFuture struct {
	FutureMeta
	ContractName string
	Artifact     *artifacts.Artifact
	Address      Argument
}

func (*ContractAtFuture) future() {}

// Type implements Future.
func (f *ContractAtFuture) Type() FutureType {
	if f.Artifact != nil {
		return ContractAt
	}
	return NamedArtifactContractAt
}

// Dependencies implements Future.
func (f *ContractAtFuture) Dependencies() []string {
	return collectDeps(f.After, nil, []Argument{f.Address})
}

// ReadEventArgumentFuture decodes one argument of an event emitted by the
// transaction of FutureToReadFrom. Emitter defaults to FutureToReadFrom.
type ReadEventArgumentFuture struct {
	FutureMeta
	FutureToReadFrom string
	Emitter          string
	EventName        string
	EventIndex       int
	NameOrIndex      string
}

func (*ReadEventArgumentFuture) future() {}

// Type implements Future.
func (*ReadEventArgumentFuture) Type() FutureType { return ReadEventArgument }

// EmitterID returns the future whose artifact and address identify the event.
func (f *ReadEventArgumentFuture) EmitterID() string {
	if f.Emitter == "" {
		return f.FutureToReadFrom
	}
	return f.Emitter
}

// Dependencies implements Future.
func (f *ReadEventArgumentFuture) Dependencies() []string {
	return collectDeps(f.After, []string{f.FutureToReadFrom, f.EmitterID()})
}

// SendDataFuture sends raw data and value to an address.
type SendDataFuture struct {
	FutureMeta
	To    Argument
	Data  string
	Value Argument
	From  Argument
}

func (*SendDataFuture) future() {}

// Type implements Future.
func (*SendDataFuture) Type() FutureType { return SendData }

// Dependencies implements Future.
func (f *SendDataFuture) Dependencies() []string {
	return collectDeps(f.After, nil, []Argument{f.To, f.Value, f.From})
}

// DataBytes decodes Data. The 0x prefix is optional and empty data is valid.
func (f *SendDataFuture) DataBytes() ([]byte, error) {
	s := f.Data
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// IsDeployment reports whether futures of type t create a contract.
func (t FutureType) IsDeployment() bool {
	switch t {
	case NamedArtifactContractDeployment, ContractDeployment,
		NamedArtifactLibraryDeployment, LibraryDeployment:
		return true
	default:
		return false
	}
}

// ProducesContract reports whether a future of type t yields an address with
// an ABI that calls and event reads can target.
func (t FutureType) ProducesContract() bool {
	return t.IsDeployment() || t == NamedArtifactContractAt || t == ContractAt
}

// IsNetwork reports whether futures of type t talk to the chain as part of
// their execution.
func (t FutureType) IsNetwork() bool {
	switch t {
	case ContractCall, StaticCall, SendData:
		return true
	default:
		return t.IsDeployment()
	}
}

// Arguments returns every argument of f, library arguments in name order.
func Arguments(f Future) []Argument {
	var out []Argument
	switch v := f.(type) {
	case *ContractDeploymentFuture:
		out = append(append(append(out, v.Args...), mapArgs(v.Libraries)...), v.Value, v.From)
	case *LibraryDeploymentFuture:
		out = append(append(out, mapArgs(v.Libraries)...), v.From)
	case *ContractCallFuture:
		out = append(append(out, v.Args...), v.Value, v.From)
	case *StaticCallFuture:
		out = append(append(out, v.Args...), v.From)
	case *EncodeFunctionCallFuture:
		out = append(out, v.Args...)
	case *ContractAtFuture:
		out = append(out, v.Address)
	case *SendDataFuture:
		out = append(out, v.To, v.Value, v.From)
	}
	return slices.DeleteFunc(out, func(a Argument) bool { return a == nil })
}

func mapArgs(m map[string]Argument) []Argument {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Argument, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func collectDeps(after, direct []string, argLists ...[]Argument) []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		deps = append(deps, id)
	}
	for _, id := range after {
		add(id)
	}
	for _, id := range direct {
		add(id)
	}
	for _, args := range argLists {
		for _, a := range args {
			for _, id := range ReferencedFutures(a) {
				add(id)
			}
		}
	}
	slices.Sort(deps)
	return deps
}
