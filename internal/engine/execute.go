package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/abicodec"
	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/strategy"
)

// advance moves one future as far as it can go without waiting on the
// chain. It reports whether the future is waiting.
func (e *Engine) advance(ctx context.Context, f ir.Future) (bool, error) {
	es, ok := e.snapshot().Get(f.ID())
	if !ok {
		var err error
		if es, err = e.initialize(ctx, f); err != nil {
			return false, err
		}
	}
	if es.Meta().Status.IsTerminal() {
		return false, nil
	}
	ns, ok := es.(state.NetworkExecutionState)
	if !ok {
		return false, &state.InvariantError{FutureID: f.ID(), Message: fmt.Sprintf("%s is not terminal after initialization", es.Kind())}
	}
	waiting, err := e.drive(ctx, ns.Meta().ID)
	if err != nil {
		return false, err
	}
	if !waiting {
		cur, _ := e.snapshot().Get(f.ID())
		waiting = !cur.Meta().Status.IsTerminal()
	}
	return waiting, nil
}

// initialize resolves a future's arguments and journals its
// *_EXECUTION_STATE_INITIALIZE message. Local futures complete here.
func (e *Engine) initialize(ctx context.Context, f ir.Future) (state.ExecutionState, error) {
	st := e.snapshot()
	rc := e.resolveContext(st)
	init := journal.ExecutionInit{
		FutureID:       f.ID(),
		FutureType:     f.Type(),
		Strategy:       e.strategy.Name(),
		StrategyConfig: e.strategy.Config(),
		Dependencies:   f.Dependencies(),
	}
	fail := func(err error) (state.ExecutionState, error) {
		return nil, runtimeErr(ErrCodeInitialize, f.ID(), 0, "initialize", err)
	}

	var msg journal.Message
	switch fu := f.(type) {
	case *ir.ContractDeploymentFuture:
		args, err := rc.Args(fu.Args)
		if err != nil {
			return fail(err)
		}
		libs, err := rc.Libraries(fu.Libraries)
		if err != nil {
			return fail(err)
		}
		value, err := rc.Wei(fu.Value)
		if err != nil {
			return fail(err)
		}
		from, err := rc.Sender(fu.From)
		if err != nil {
			return fail(err)
		}
		if err := e.storeArtifact(ctx, fu.ID(), fu.ContractName, fu.Artifact); err != nil {
			return fail(err)
		}
		msg = journal.DeploymentInitialize{ExecutionInit: init, ArtifactID: fu.ID(), ContractName: fu.ContractName,
			ConstructorArgs: args, Libraries: libs, Value: value, From: from}

	case *ir.LibraryDeploymentFuture:
		libs, err := rc.Libraries(fu.Libraries)
		if err != nil {
			return fail(err)
		}
		from, err := rc.Sender(fu.From)
		if err != nil {
			return fail(err)
		}
		if err := e.storeArtifact(ctx, fu.ID(), fu.ContractName, fu.Artifact); err != nil {
			return fail(err)
		}
		msg = journal.DeploymentInitialize{ExecutionInit: init, ArtifactID: fu.ID(), ContractName: fu.ContractName,
			ConstructorArgs: ir.IRArray{}, Libraries: libs, Value: new(big.Int), From: from}

	case *ir.ContractCallFuture:
		addr, err := contractAddress(st, fu.Contract)
		if err != nil {
			return fail(err)
		}
		args, err := rc.Args(fu.Args)
		if err != nil {
			return fail(err)
		}
		value, err := rc.Wei(fu.Value)
		if err != nil {
			return fail(err)
		}
		from, err := rc.Sender(fu.From)
		if err != nil {
			return fail(err)
		}
		msg = journal.CallInitialize{ExecutionInit: init, ArtifactID: fu.Contract, ContractAddress: addr,
			FunctionName: fu.FunctionName, Args: args, Value: value, From: from}

	case *ir.StaticCallFuture:
		addr, err := contractAddress(st, fu.Contract)
		if err != nil {
			return fail(err)
		}
		args, err := rc.Args(fu.Args)
		if err != nil {
			return fail(err)
		}
		from, err := rc.Sender(fu.From)
		if err != nil {
			return fail(err)
		}
		msg = journal.StaticCallInitialize{ExecutionInit: init, ArtifactID: fu.Contract, ContractAddress: addr,
			FunctionName: fu.FunctionName, Args: args, NameOrIndex: fu.NameOrIndex, From: from}

	case *ir.SendDataFuture:
		to, err := rc.Address(fu.To)
		if err != nil {
			return fail(err)
		}
		data, err := fu.DataBytes()
		if err != nil {
			return fail(err)
		}
		value, err := rc.Wei(fu.Value)
		if err != nil {
			return fail(err)
		}
		from, err := rc.Sender(fu.From)
		if err != nil {
			return fail(err)
		}
		msg = journal.SendDataInitialize{ExecutionInit: init, To: to, Data: data, Value: value, From: from}

	case *ir.ContractAtFuture:
		addr, err := rc.Address(fu.Address)
		if err != nil {
			return fail(err)
		}
		if err := e.storeArtifact(ctx, fu.ID(), fu.ContractName, fu.Artifact); err != nil {
			return fail(err)
		}
		msg = journal.ContractAtInitialize{ExecutionInit: init, ArtifactID: fu.ID(), ContractName: fu.ContractName,
			ContractAddress: addr}

	case *ir.EncodeFunctionCallFuture:
		args, err := rc.Args(fu.Args)
		if err != nil {
			return fail(err)
		}
		a, err := e.contractABI(ctx, fu.Contract)
		if err != nil {
			return fail(err)
		}
		data, err := abicodec.EncodeCall(a, fu.FunctionName, args)
		if err != nil {
			return fail(err)
		}
		msg = journal.EncodeFunctionCallInitialize{ExecutionInit: init, ArtifactID: fu.Contract,
			FunctionName: fu.FunctionName, Args: args, Result: data}

	case *ir.ReadEventArgumentFuture:
		m, err := e.readEventArgument(ctx, st, init, fu)
		if err != nil {
			return fail(err)
		}
		msg = m

	default:
		return fail(fmt.Errorf("unsupported future type %s", f.Type()))
	}

	next, err := e.apply(ctx, msg)
	if err != nil {
		return nil, err
	}
	es, _ := next.Get(f.ID())
	if ca, ok := es.(*state.ContractAtExecutionState); ok {
		if err := e.loader.RecordDeployedAddress(ctx, ca.ID, ca.ContractAddress); err != nil {
			return nil, runtimeErr(ErrCodeJournal, ca.ID, 0, "record deployed address", err)
		}
	}
	return es, nil
}

// storeArtifact records the artifact a future executes with. Without a
// resolver only the contract name is stored and the loader resolves it.
func (e *Engine) storeArtifact(ctx context.Context, futureID, name string, provided *artifacts.Artifact) error {
	if provided != nil {
		return e.loader.StoreUserProvidedArtifact(ctx, futureID, provided)
	}
	if e.resolver == nil {
		return e.loader.StoreNamedArtifact(ctx, futureID, name, nil)
	}
	a, err := e.resolver.LoadArtifact(ctx, name)
	if err != nil {
		return err
	}
	if err := e.loader.StoreNamedArtifact(ctx, futureID, name, a); err != nil {
		return err
	}
	bi, err := e.resolver.GetBuildInfo(ctx, name)
	if err != nil || bi == nil {
		return nil
	}
	return e.loader.StoreBuildInfo(ctx, futureID, bi)
}

func (e *Engine) contractABI(ctx context.Context, artifactID string) (abi.ABI, error) {
	a, err := e.loader.LoadArtifact(ctx, artifactID)
	if err != nil {
		return abi.ABI{}, err
	}
	return a.ParseABI()
}

func (e *Engine) readEventArgument(ctx context.Context, st *state.DeploymentState, init journal.ExecutionInit, f *ir.ReadEventArgumentFuture) (journal.Message, error) {
	src, ok := st.Get(f.FutureToReadFrom)
	if !ok {
		return nil, fmt.Errorf("future %s has not run", f.FutureToReadFrom)
	}
	tx := confirmedTransaction(src)
	if tx == nil {
		return nil, fmt.Errorf("future %s has no confirmed transaction", f.FutureToReadFrom)
	}
	emitterID := f.EmitterID()
	emitter, err := contractAddress(st, emitterID)
	if err != nil {
		return nil, err
	}
	a, err := e.contractABI(ctx, emitterID)
	if err != nil {
		return nil, err
	}
	ev, err := abicodec.FindEvent(a, f.EventName)
	if err != nil {
		return nil, err
	}
	logs := make([]abicodec.Log, len(tx.Receipt.Logs))
	for i, l := range tx.Receipt.Logs {
		logs[i] = abicodec.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	matches := abicodec.FindEventLogs(ev, emitter, logs)
	if f.EventIndex < 0 || f.EventIndex >= len(matches) {
		return nil, fmt.Errorf("event %s index %d not found in transaction %s (%d matching logs)",
			f.EventName, f.EventIndex, tx.Hash.Hex(), len(matches))
	}
	v, err := abicodec.DecodeEventArgument(ev, matches[f.EventIndex], f.NameOrIndex)
	if err != nil {
		return nil, err
	}
	return journal.ReadEventArgumentInitialize{ExecutionInit: init, ArtifactID: emitterID, EventName: f.EventName,
		EventIndex: f.EventIndex, NameOrIndex: f.NameOrIndex, EmitterAddress: emitter, TxToReadFrom: tx.Hash,
		Result: ir.Any{Value: v}}, nil
}

func contractAddress(st *state.DeploymentState, futureID string) (common.Address, error) {
	es, ok := st.Get(futureID)
	if !ok {
		return common.Address{}, fmt.Errorf("future %s has not run", futureID)
	}
	addr, ok := state.ContractAddress(es)
	if !ok {
		return common.Address{}, fmt.Errorf("future %s has no contract address", futureID)
	}
	return addr, nil
}

func confirmedTransaction(es state.ExecutionState) *state.Transaction {
	ns, ok := es.(state.NetworkExecutionState)
	if !ok {
		return nil
	}
	nis := ns.Interactions()
	for i := len(nis) - 1; i >= 0; i-- {
		if oi, ok := nis[i].(*state.OnchainInteraction); ok {
			if tx := oi.ConfirmedTransaction(); tx != nil {
				return tx
			}
		}
	}
	return nil
}

// drive runs the network state machine of one future until it completes or
// has to wait for the chain.
func (e *Engine) drive(ctx context.Context, id string) (bool, error) {
	for {
		es, _ := e.snapshot().Get(id)
		if es.Meta().Status.IsTerminal() {
			return false, nil
		}
		ns := es.(state.NetworkExecutionState)

		switch ni := state.LastInteraction(ns).(type) {
		case *state.StaticCallInteraction:
			if ni.Result == nil {
				if err := e.staticCall(ctx, id, ni); err != nil {
					return false, err
				}
				continue
			}
			if !ni.Result.Success {
				reason := abicodec.DecodeRevert(e.revertABI(ctx, ns), ni.Result.ReturnData)
				return false, e.complete(ctx, ns, journal.ExecutionResult{Type: journal.ResultStaticCallError, Error: reason})
			}

		case *state.OnchainInteraction:
			if tx := ni.ConfirmedTransaction(); tx != nil {
				if !tx.Receipt.Succeeded() {
					hash := tx.Hash
					return false, e.complete(ctx, ns, journal.ExecutionResult{Type: journal.ResultRevertedTransaction, TxHash: &hash})
				}
				break
			}
			if ni.Nonce == nil || len(ni.Transactions) == 0 || ni.ShouldBeResent {
				if err := e.send(ctx, ns, ni); err != nil {
					return false, err
				}
				// A fresh broadcast is polled on the next tick.
				cur, _ := e.snapshot().Get(id)
				return !cur.Meta().Status.IsTerminal(), nil
			}
			next, err := e.monitor(ctx, id, ni)
			if err != nil {
				return false, err
			}
			if next == monitorWait {
				return true, nil
			}
			continue
		}

		if err := e.step(ctx, ns); err != nil {
			return false, err
		}
	}
}

// step asks the future's strategy what to do next and journals the answer.
func (e *Engine) step(ctx context.Context, ns state.NetworkExecutionState) error {
	meta := ns.Meta()
	s, err := e.strategyFor(meta)
	if err != nil {
		return runtimeErr(ErrCodeStrategy, meta.ID, 0, "load strategy", err)
	}
	next, err := s.Next(ctx, ns, helper{e})
	if err != nil {
		return runtimeErr(ErrCodeStrategy, meta.ID, 0, s.Name(), err)
	}
	id := len(ns.Interactions()) + 1
	switch st := next.(type) {
	case *strategy.Done:
		return e.complete(ctx, ns, st.Result)
	case *strategy.OnchainRequest:
		value := st.Value
		if value == nil {
			value = new(big.Int)
		}
		_, err := e.apply(ctx, journal.NetworkInteractionRequest{FutureID: meta.ID, Interaction: journal.InteractionRequest{
			Kind: journal.OnchainInteraction, ID: id, To: st.To, Data: st.Data, Value: value, From: meta.From,
		}})
		return err
	case *strategy.StaticCallRequest:
		to := st.To
		_, err := e.apply(ctx, journal.NetworkInteractionRequest{FutureID: meta.ID, Interaction: journal.InteractionRequest{
			Kind: journal.StaticCallInteraction, ID: id, To: &to, Data: st.Data, Value: new(big.Int), From: meta.From,
		}})
		return err
	default:
		return runtimeErr(ErrCodeStrategy, meta.ID, 0, fmt.Sprintf("unexpected step %T", next), nil)
	}
}

func (e *Engine) complete(ctx context.Context, ns state.NetworkExecutionState, r journal.ExecutionResult) error {
	meta := ns.Meta()
	kind, ok := journal.CompleteMessageType(meta.FutureType)
	if !ok {
		return &state.InvariantError{FutureID: meta.ID, Message: "future type has no completion message"}
	}
	if _, err := e.apply(ctx, journal.ExecutionComplete{Kind: kind, FutureID: meta.ID, Result: r}); err != nil {
		return err
	}
	if r.IsSuccess() && r.Address != nil && meta.FutureType.IsDeployment() {
		if err := e.loader.RecordDeployedAddress(ctx, meta.ID, *r.Address); err != nil {
			return runtimeErr(ErrCodeJournal, meta.ID, 0, "record deployed address", err)
		}
	}
	if !r.IsSuccess() {
		e.logger.Warn("future failed", "future", meta.ID, "result", r.Type, "error", r.Error)
	}
	return nil
}

func (e *Engine) staticCall(ctx context.Context, id string, sc *state.StaticCallInteraction) error {
	req := chain.CallRequest{From: sc.From, To: sc.To, Data: sc.Data}
	ref := journal.InteractionRef{FutureID: id, NetworkInteractionID: sc.ID}
	out, err := e.client.Call(ctx, req, chain.TagLatest)
	result := journal.RawStaticCallResult{ReturnData: out, Success: true}
	if err != nil {
		data, ok := chain.RevertData(err)
		if !ok && !isRevert(err) {
			return runtimeErr(ErrCodePoll, id, sc.ID, "eth_call", err)
		}
		result = journal.RawStaticCallResult{ReturnData: data, Success: false}
	}
	if result.ReturnData == nil {
		result.ReturnData = []byte{}
	}
	_, err = e.apply(ctx, journal.StaticCallComplete{InteractionRef: ref, Result: result})
	return err
}

// send simulates, reserves a nonce if needed, picks fees and broadcasts one
// transaction for oi.
func (e *Engine) send(ctx context.Context, ns state.NetworkExecutionState, oi *state.OnchainInteraction) error {
	id := ns.Meta().ID
	ref := journal.InteractionRef{FutureID: id, NetworkInteractionID: oi.ID}
	req := chain.TxRequest{ChainID: e.chainID, From: oi.From, To: oi.To, Data: oi.Data, Value: oi.Value}

	if len(oi.Transactions) > 0 {
		if err := e.quota.Check(id, oi); err != nil {
			return e.timeout(ctx, ref, err)
		}
	}

	sim := chain.ToCallRequest(req)
	sim.Nonce = nil
	gas, err := e.client.EstimateGas(ctx, sim)
	if err != nil {
		data, ok := chain.RevertData(err)
		if !ok && !isRevert(err) {
			return runtimeErr(ErrCodeSend, id, oi.ID, "estimate gas", err)
		}
		reason := abicodec.DecodeRevert(e.revertABI(ctx, ns), data)
		return e.complete(ctx, ns, journal.ExecutionResult{Type: journal.ResultSimulationError, Error: reason})
	}

	nonce := uint64(0)
	if oi.Nonce != nil {
		nonce = *oi.Nonce
	} else {
		nonce, err = e.nonces.Reserve(ctx, oi.From, func(n uint64) error {
			_, err := e.apply(ctx, journal.TransactionPrepareSend{InteractionRef: ref, Nonce: n})
			return err
		})
		if err != nil {
			return runtimeErr(ErrCodeSend, id, oi.ID, "reserve nonce", err)
		}
	}

	fees, err := e.fees.Suggest(ctx)
	if err != nil {
		return runtimeErr(ErrCodeSend, id, oi.ID, "fees", err)
	}
	if latest := oi.LatestTransaction(); latest != nil {
		fees = Bump(latest.Fees, fees)
		if err := e.quota.CheckFees(id, oi, fees); err != nil {
			return e.timeout(ctx, ref, err)
		}
	}

	req.Nonce = nonce
	req.Gas = gas
	req.Fees = fees
	hash, err := e.sender.Send(ctx, req)
	if err != nil {
		return runtimeErr(ErrCodeSend, id, oi.ID, "send transaction", err)
	}
	if _, err := e.apply(ctx, journal.TransactionSend{InteractionRef: ref, Hash: hash, Fees: fees, Nonce: nonce}); err != nil {
		return err
	}
	e.markSent(id, oi.ID)
	e.logger.Info("transaction sent", "future", id, "interaction", oi.ID, "hash", hash.Hex(), "nonce", nonce)
	return nil
}

type monitorOutcome int

const (
	monitorProgress monitorOutcome = iota
	monitorWait
)

// monitor checks the chain for oi's transactions. It journals a confirmation,
// a drop, a fee bump or a timeout when one is due, and reports monitorWait
// when nothing changed. Unknown hashes count as dropped only once the node
// has seen one of them, or after TimeBeforeBumpingFees without a sighting.
func (e *Engine) monitor(ctx context.Context, id string, oi *state.OnchainInteraction) (monitorOutcome, error) {
	ref := journal.InteractionRef{FutureID: id, NetworkInteractionID: oi.ID}
	block, err := e.client.LatestBlock(ctx)
	if err != nil {
		return 0, runtimeErr(ErrCodePoll, id, oi.ID, "latest block", err)
	}

	for i := len(oi.Transactions) - 1; i >= 0; i-- {
		tx := oi.Transactions[i]
		r, err := e.client.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			return 0, runtimeErr(ErrCodePoll, id, oi.ID, "receipt", err)
		}
		if r == nil {
			continue
		}
		if confirmations(block.Number, r.BlockNumber) < e.cfg.RequiredConfirmations {
			return monitorWait, nil
		}
		if _, err := e.apply(ctx, journal.TransactionConfirm{InteractionRef: ref, Hash: tx.Hash, Receipt: *r}); err != nil {
			return 0, err
		}
		return monitorProgress, nil
	}

	known, err := anyKnown(ctx, e.client, oi)
	if err != nil {
		return 0, runtimeErr(ErrCodePoll, id, oi.ID, "transaction lookup", err)
	}
	if known {
		e.markSeen(id, oi.ID)
	} else {
		if !e.wasSeen(id, oi.ID) && e.wall.Now().Sub(e.sentAt(id, oi.ID)) < e.cfg.TimeBeforeBumpingFees {
			return monitorWait, nil
		}
		if err := e.quota.Check(id, oi); err != nil {
			return monitorProgress, e.timeout(ctx, ref, err)
		}
		e.logger.Warn("transaction dropped", "future", id, "interaction", oi.ID)
		_, err := e.apply(ctx, journal.OnchainInteractionDropped{InteractionRef: ref})
		return monitorProgress, err
	}

	if e.cfg.DisableFeeBumping {
		return monitorWait, nil
	}
	if e.wall.Now().Sub(e.sentAt(id, oi.ID)) < e.cfg.TimeBeforeBumpingFees {
		return monitorWait, nil
	}
	if err := e.quota.Check(id, oi); err != nil {
		return monitorProgress, e.timeout(ctx, ref, err)
	}
	e.logger.Info("bumping fees", "future", id, "interaction", oi.ID, "attempt", len(oi.Transactions)+1)
	_, err = e.apply(ctx, journal.OnchainInteractionBumpFees{InteractionRef: ref})
	return monitorProgress, err
}

func (e *Engine) timeout(ctx context.Context, ref journal.InteractionRef, cause error) error {
	e.logger.Warn("interaction timed out", "future", ref.FutureID, "interaction", ref.NetworkInteractionID,
		"max_bumps", e.quota.MaxBumps(), "cause", cause)
	_, err := e.apply(ctx, journal.OnchainInteractionTimeout{InteractionRef: ref})
	return err
}

// confirmations counts the receipt's block as the first confirmation.
func confirmations(latest, mined uint64) uint64 {
	if mined > latest {
		return 0
	}
	return latest - mined + 1
}

// revertABI returns the ABI used to decode custom errors, if the future has
// an artifact.
func (e *Engine) revertABI(ctx context.Context, ns state.NetworkExecutionState) *abi.ABI {
	var artifactID string
	switch s := ns.(type) {
	case *state.DeploymentExecutionState:
		artifactID = s.ArtifactID
	case *state.CallExecutionState:
		artifactID = s.ArtifactID
	case *state.StaticCallExecutionState:
		artifactID = s.ArtifactID
	default:
		return nil
	}
	a, err := e.contractABI(ctx, artifactID)
	if err != nil {
		return nil
	}
	return &a
}

// isRevert recognizes reverts reported without data.
func isRevert(err error) bool {
	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Message), "revert")
}

// helper gives strategies read access to artifacts and code.
type helper struct{ e *Engine }

func (h helper) LoadArtifact(ctx context.Context, artifactID string) (*artifacts.Artifact, error) {
	return h.e.loader.LoadArtifact(ctx, artifactID)
}

func (h helper) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return h.e.client.Code(ctx, addr, chain.TagLatest)
}
