// Package reconcile compares a module against the journaled execution of a
// previous run. Differences are returned as data; nothing here mutates the
// deployment state.
package reconcile

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/state"
)

// Failure is a change that makes a future's previous execution unusable.
type Failure struct {
	FutureID string `json:"futureId"`
	Message  string `json:"failure"`
}

// Result lists the reconciliation failures and non-fatal warnings of a run.
type Result struct {
	Failures []Failure `json:"failures,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}

// OK reports whether the run may resume from the journaled state.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}

// ArtifactLoader returns the artifact a future was executed with.
type ArtifactLoader interface {
	LoadArtifact(ctx context.Context, artifactID string) (*artifacts.Artifact, error)
}

// Input is everything Reconcile compares.
type Input struct {
	Graph *ir.Graph
	State *state.DeploymentState

	// Resolve resolves the module's arguments as the engine would. Its
	// State is replaced by State.
	Resolve resolve.Context

	// StrategyName and StrategyConfig describe the strategy of this run.
	StrategyName   string
	StrategyConfig ir.IRObject

	// Stored loads the artifacts of previous runs, usually the deployment
	// loader. Current resolves named artifacts for this run and may be nil,
	// in which case named artifact bytecodes are not compared.
	Stored  ArtifactLoader
	Current artifacts.Resolver
}

// Reconcile compares every future of the module that has an execution state.
// The returned error is reserved for failures to load artifacts.
func Reconcile(ctx context.Context, in Input) (*Result, error) {
	res := &Result{}
	if in.State == nil {
		return res, nil
	}
	in.Resolve.State = in.State

	for _, f := range in.Graph.Futures() {
		es, ok := in.State.Get(f.ID())
		if !ok {
			continue
		}
		c := &checker{id: f.ID()}
		if err := in.future(ctx, c, f, es); err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", f.ID(), err)
		}
		res.Failures = append(res.Failures, c.failures...)
		res.Warnings = append(res.Warnings, c.warnings...)
	}

	for _, id := range in.State.SortedIDs() {
		if _, ok := in.Graph.Future(id); !ok {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Future %s was executed in a previous run but is no longer part of the module", id))
		}
	}
	return res, nil
}

// CheckPreviousRun lists the futures whose previous execution failed or timed
// out. They have to be wiped before the deployment can continue.
func CheckPreviousRun(st *state.DeploymentState) []Failure {
	var out []Failure
	for _, id := range st.SortedIDs() {
		es, _ := st.Get(id)
		switch es.Meta().Status {
		case state.StatusFailed:
			out = append(out, Failure{FutureID: id,
				Message: fmt.Sprintf("The previous run of the future %s failed, and will need wiped before running again", id)})
		case state.StatusTimeout:
			out = append(out, Failure{FutureID: id,
				Message: fmt.Sprintf("The previous run of the future %s timed out, and will need wiped before running again", id)})
		}
	}
	return out
}

type checker struct {
	id       string
	failures []Failure
	warnings []string

	// quiet suppresses resolution failures once a dependency was added.
	quiet bool
}

func (c *checker) failf(format string, args ...any) {
	c.failures = append(c.failures, Failure{FutureID: c.id, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) changed(what, from, to string) {
	if from != to {
		c.failf("%s has been changed from %s to %s", what, from, to)
	}
}

func (in Input) future(ctx context.Context, c *checker, f ir.Future, es state.ExecutionState) error {
	meta := es.Meta()
	if meta.FutureType != f.Type() {
		c.failf("Future with id %s has changed from type %s to %s", f.ID(), meta.FutureType, f.Type())
		return nil
	}

	before := len(c.failures)
	for _, dep := range f.Dependencies() {
		if !slices.Contains(meta.Dependencies, dep) {
			c.failf("A dependency from %s to %s has been added. The former has started executing before the latter started executing, so this change is incompatible.", f.ID(), dep)
		}
	}
	c.quiet = len(c.failures) > before

	in.strategy(c, meta)

	switch fu := f.(type) {
	case *ir.ContractDeploymentFuture:
		s, ok := es.(*state.DeploymentExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		c.changed("Contract name", s.ContractName, fu.ContractName)
		if args, err := in.Resolve.Args(fu.Args); err != nil {
			c.report(err)
		} else {
			c.args(s.ConstructorArgs, args)
		}
		if libs, err := in.Resolve.Libraries(fu.Libraries); err != nil {
			c.report(err)
		} else {
			c.libraries(s.Libraries, libs)
		}
		in.value(c, s.Value, fu.Value)
		in.from(c, meta.From, fu.From)
		return in.bytecode(ctx, c, s, fu.ContractName, fu.Artifact)

	case *ir.LibraryDeploymentFuture:
		s, ok := es.(*state.DeploymentExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		c.changed("Contract name", s.ContractName, fu.ContractName)
		if libs, err := in.Resolve.Libraries(fu.Libraries); err != nil {
			c.report(err)
		} else {
			c.libraries(s.Libraries, libs)
		}
		in.from(c, meta.From, fu.From)
		return in.bytecode(ctx, c, s, fu.ContractName, fu.Artifact)

	case *ir.ContractCallFuture:
		s, ok := es.(*state.CallExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		in.address(c, "Contract address", s.ContractAddress, ir.FutureRef{ID: fu.Contract})
		c.changed("Function name", s.FunctionName, fu.FunctionName)
		if args, err := in.Resolve.Args(fu.Args); err != nil {
			c.report(err)
		} else {
			c.args(s.Args, args)
		}
		in.value(c, s.Value, fu.Value)
		in.from(c, meta.From, fu.From)

	case *ir.StaticCallFuture:
		s, ok := es.(*state.StaticCallExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		in.address(c, "Contract address", s.ContractAddress, ir.FutureRef{ID: fu.Contract})
		c.changed("Function name", s.FunctionName, fu.FunctionName)
		if args, err := in.Resolve.Args(fu.Args); err != nil {
			c.report(err)
		} else {
			c.args(s.Args, args)
		}
		c.changed("Argument name or index", s.NameOrIndex, fu.NameOrIndex)
		in.from(c, meta.From, fu.From)

	case *ir.EncodeFunctionCallFuture:
		s, ok := es.(*state.EncodeFunctionCallExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		c.changed("Contract", s.ArtifactID, fu.Contract)
		c.changed("Function name", s.FunctionName, fu.FunctionName)
		if args, err := in.Resolve.Args(fu.Args); err != nil {
			c.report(err)
		} else {
			c.args(s.Args, args)
		}

	case *ir.ContractAtFuture:
		s, ok := es.(*state.ContractAtExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		c.changed("Contract name", s.ContractName, fu.ContractName)
		in.address(c, "Contract address", s.ContractAddress, fu.Address)

	case *ir.ReadEventArgumentFuture:
		s, ok := es.(*state.ReadEventArgumentExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		c.changed("Event name", s.EventName, fu.EventName)
		c.changed("Event index", fmt.Sprint(s.EventIndex), fmt.Sprint(fu.EventIndex))
		c.changed("Argument name or index", s.NameOrIndex, fu.NameOrIndex)
		in.address(c, "Emitter", s.EmitterAddress, ir.FutureRef{ID: fu.EmitterID()})

	case *ir.SendDataFuture:
		s, ok := es.(*state.SendDataExecutionState)
		if !ok {
			return kindMismatch(es)
		}
		in.address(c, "To", s.To, fu.To)
		if data, err := fu.DataBytes(); err != nil {
			c.report(fmt.Errorf("data: %w", err))
		} else {
			c.changed("Data", hexutil.Encode(s.Data), hexutil.Encode(data))
		}
		in.value(c, s.Value, fu.Value)
		in.from(c, meta.From, fu.From)

	default:
		return fmt.Errorf("unsupported future type %s", f.Type())
	}
	return nil
}

func kindMismatch(es state.ExecutionState) error {
	return &state.InvariantError{FutureID: es.Meta().ID,
		Message: fmt.Sprintf("execution state kind %s does not match future type %s", es.Kind(), es.Meta().FutureType)}
}

func (c *checker) report(err error) {
	if c.quiet {
		return
	}
	c.failf("Arguments could not be resolved: %v", err)
}

func (c *checker) args(prev, cur ir.IRArray) {
	if len(prev) != len(cur) {
		c.failf("The number of arguments changed from %d to %d", len(prev), len(cur))
		return
	}
	for i := range prev {
		if !ir.CanonicalEqual(prev[i], cur[i]) {
			c.failf("Argument at index %d has been changed", i)
		}
	}
}

func (c *checker) libraries(prev, cur map[string]common.Address) {
	names := slices.Sorted(maps.Keys(prev))
	for name := range cur {
		if _, ok := prev[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		p, hadPrev := prev[name]
		n, hasCur := cur[name]
		switch {
		case !hadPrev:
			c.failf("Library %s has been added", name)
		case !hasCur:
			c.failf("Library %s has been removed", name)
		case p != n:
			c.failf("Library %s's address has been changed from %s to %s", name, p.Hex(), n.Hex())
		}
	}
}

func (in Input) value(c *checker, prev *big.Int, a ir.Argument) {
	cur, err := in.Resolve.Wei(a)
	if err != nil {
		c.report(err)
		return
	}
	if prev == nil {
		prev = new(big.Int)
	}
	if prev.Cmp(cur) != 0 {
		c.failf("Value has been changed from %s to %s", prev, cur)
	}
}

func (in Input) from(c *checker, prev common.Address, a ir.Argument) {
	cur, err := in.Resolve.Sender(a)
	if err != nil {
		c.report(err)
		return
	}
	c.changed("From account", prev.Hex(), cur.Hex())
}

func (in Input) address(c *checker, what string, prev common.Address, a ir.Argument) {
	cur, err := in.Resolve.Address(a)
	if err != nil {
		c.report(err)
		return
	}
	c.changed(what, prev.Hex(), cur.Hex())
}

func (in Input) strategy(c *checker, meta state.Common) {
	if meta.Strategy != in.StrategyName {
		c.failf("Strategy has been changed from %s to %s", meta.Strategy, in.StrategyName)
		return
	}
	prev, cur := meta.StrategyConfig, in.StrategyConfig
	if prev == nil {
		prev = ir.IRObject{}
	}
	if cur == nil {
		cur = ir.IRObject{}
	}
	if ir.CanonicalEqual(prev, cur) {
		return
	}
	if len(prev) == 0 {
		c.warnings = append(c.warnings, fmt.Sprintf(
			"Future %s started with strategy %s and no config; the new config %s is ignored for it",
			meta.ID, meta.Strategy, ir.CanonicalString(cur)))
		return
	}
	c.failf("Strategy config has been changed from %s to %s", ir.CanonicalString(prev), ir.CanonicalString(cur))
}

// bytecode compares the artifact a deployment ran with against the current
// one. Deployments that already succeeded are on chain and are not compared.
func (in Input) bytecode(ctx context.Context, c *checker, s *state.DeploymentExecutionState, name string, provided *artifacts.Artifact) error {
	if s.Status == state.StatusSuccess {
		return nil
	}
	cur := provided
	if cur == nil {
		if in.Current == nil {
			return nil
		}
		var err error
		if cur, err = in.Current.LoadArtifact(ctx, name); err != nil {
			return fmt.Errorf("load current artifact %s: %w", name, err)
		}
	}
	prev, err := in.Stored.LoadArtifact(ctx, s.ArtifactID)
	if err != nil {
		return fmt.Errorf("load stored artifact: %w", err)
	}
	if prev.Bytecode != cur.Bytecode {
		c.failf("Artifact bytecodes have been changed")
	}
	return nil
}
