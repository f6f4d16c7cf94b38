package state

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/journal"
)

// Apply folds one message into s and returns the new state. s is never
// modified; unchanged execution states are shared between the two values.
// A nil s is the empty state.
func Apply(s *DeploymentState, m journal.Message) (*DeploymentState, error) {
	if s == nil {
		s = &DeploymentState{ExecutionStates: map[string]ExecutionState{}}
	}
	switch msg := m.(type) {
	case journal.RunStart:
		next := s.clone()
		next.ChainID = msg.ChainID
		return next, nil
	case journal.WipeApply:
		return wipe(s, msg)
	case journal.DeploymentInitialize, journal.CallInitialize, journal.StaticCallInitialize,
		journal.SendDataInitialize, journal.ContractAtInitialize,
		journal.ReadEventArgumentInitialize, journal.EncodeFunctionCallInitialize:
		return initialize(s, m)
	case journal.ExecutionComplete:
		return complete(s, msg)
	case journal.NetworkInteractionRequest:
		return appendNetworkInteraction(s, msg)
	case journal.TransactionPrepareSend:
		return prepareSend(s, msg)
	case journal.TransactionSend:
		return appendTransactionToOnchainInteraction(s, msg)
	case journal.TransactionConfirm:
		return confirmTransaction(s, msg)
	case journal.StaticCallComplete:
		return completeStaticCall(s, msg)
	case journal.OnchainInteractionBumpFees:
		return markForResend(s, msg.InteractionRef)
	case journal.OnchainInteractionDropped:
		return markForResend(s, msg.InteractionRef)
	case journal.OnchainInteractionReplacedByUser:
		return resetOnchainInteractionReplacedByUser(s, msg)
	case journal.OnchainInteractionTimeout:
		return onchainInteractionTimedOut(s, msg)
	default:
		return nil, invariantf(journal.FutureID(m), "unknown message %T", m)
	}
}

// Replay folds msgs over the empty state. It returns nil for an empty
// journal, which callers treat as an uninitialized deployment.
func Replay(msgs []journal.Message) (*DeploymentState, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	var s *DeploymentState
	for i, m := range msgs {
		next, err := Apply(s, m)
		if err != nil {
			return nil, fmt.Errorf("message %d (%s): %w", i+1, m.Type(), err)
		}
		s = next
	}
	return s, nil
}

func (s *DeploymentState) clone() *DeploymentState {
	return &DeploymentState{
		ChainID:         s.ChainID,
		ExecutionStates: maps.Clone(s.ExecutionStates),
	}
}

func (s *DeploymentState) with(es ExecutionState) *DeploymentState {
	next := s.clone()
	if next.ExecutionStates == nil {
		next.ExecutionStates = map[string]ExecutionState{}
	}
	next.ExecutionStates[es.Meta().ID] = es
	return next
}

func wipe(s *DeploymentState, msg journal.WipeApply) (*DeploymentState, error) {
	if _, ok := s.ExecutionStates[msg.FutureID]; !ok {
		return nil, invariantf(msg.FutureID, "wipe of a future with no execution state")
	}
	next := s.clone()
	delete(next.ExecutionStates, msg.FutureID)
	return next, nil
}

func initialize(s *DeploymentState, m journal.Message) (*DeploymentState, error) {
	id := journal.FutureID(m)
	if _, ok := s.ExecutionStates[id]; ok {
		return nil, invariantf(id, "execution state already initialized")
	}
	var es ExecutionState
	switch msg := m.(type) {
	case journal.DeploymentInitialize:
		es = &DeploymentExecutionState{
			Common:          commonFrom(msg.ExecutionInit, StatusStarted, msg.From),
			ArtifactID:      msg.ArtifactID,
			ContractName:    msg.ContractName,
			ConstructorArgs: msg.ConstructorArgs,
			Libraries:       msg.Libraries,
			Value:           msg.Value,
		}
	case journal.CallInitialize:
		es = &CallExecutionState{
			Common:          commonFrom(msg.ExecutionInit, StatusStarted, msg.From),
			ArtifactID:      msg.ArtifactID,
			ContractAddress: msg.ContractAddress,
			FunctionName:    msg.FunctionName,
			Args:            msg.Args,
			Value:           msg.Value,
		}
	case journal.StaticCallInitialize:
		es = &StaticCallExecutionState{
			Common:          commonFrom(msg.ExecutionInit, StatusStarted, msg.From),
			ArtifactID:      msg.ArtifactID,
			ContractAddress: msg.ContractAddress,
			FunctionName:    msg.FunctionName,
			Args:            msg.Args,
			NameOrIndex:     msg.NameOrIndex,
		}
	case journal.SendDataInitialize:
		es = &SendDataExecutionState{
			Common: commonFrom(msg.ExecutionInit, StatusStarted, msg.From),
			To:     msg.To,
			Data:   msg.Data,
			Value:  msg.Value,
		}
	case journal.ContractAtInitialize:
		es = &ContractAtExecutionState{
			Common:          commonFrom(msg.ExecutionInit, StatusSuccess, zeroAddress),
			ArtifactID:      msg.ArtifactID,
			ContractName:    msg.ContractName,
			ContractAddress: msg.ContractAddress,
		}
	case journal.ReadEventArgumentInitialize:
		es = &ReadEventArgumentExecutionState{
			Common:         commonFrom(msg.ExecutionInit, StatusSuccess, zeroAddress),
			ArtifactID:     msg.ArtifactID,
			EventName:      msg.EventName,
			EventIndex:     msg.EventIndex,
			NameOrIndex:    msg.NameOrIndex,
			EmitterAddress: msg.EmitterAddress,
			TxToReadFrom:   msg.TxToReadFrom,
			Result:         msg.Result.Value,
		}
	case journal.EncodeFunctionCallInitialize:
		es = &EncodeFunctionCallExecutionState{
			Common:       commonFrom(msg.ExecutionInit, StatusSuccess, zeroAddress),
			ArtifactID:   msg.ArtifactID,
			FunctionName: msg.FunctionName,
			Args:         msg.Args,
			Result:       msg.Result,
		}
	}
	return s.with(es), nil
}

func commonFrom(init journal.ExecutionInit, status Status, from common.Address) Common {
	return Common{
		ID:             init.FutureID,
		FutureType:     init.FutureType,
		Status:         status,
		Strategy:       init.Strategy,
		StrategyConfig: init.StrategyConfig,
		Dependencies:   init.Dependencies,
		From:           from,
	}
}

var zeroAddress common.Address

// networkState looks up a STARTED or terminal network execution state.
func networkState(s *DeploymentState, id string) (NetworkExecutionState, error) {
	es, ok := s.ExecutionStates[id]
	if !ok {
		return nil, invariantf(id, "no execution state")
	}
	ns, ok := es.(NetworkExecutionState)
	if !ok {
		return nil, invariantf(id, "%s has no network interactions", es.Kind())
	}
	return ns, nil
}

func complete(s *DeploymentState, msg journal.ExecutionComplete) (*DeploymentState, error) {
	ns, err := networkState(s, msg.FutureID)
	if err != nil {
		return nil, err
	}
	if want, _ := journal.CompleteMessageType(ns.Meta().FutureType); want != msg.Kind {
		return nil, invariantf(msg.FutureID, "%s cannot complete a %s", msg.Kind, ns.Kind())
	}
	if st := ns.Meta().Status; st.IsTerminal() {
		return nil, invariantf(msg.FutureID, "already %s", st)
	}
	status := StatusFailed
	switch msg.Result.Type {
	case journal.ResultSuccess:
		status = StatusSuccess
	case journal.ResultStrategyHeld:
		status = StatusHeld
	}
	return s.with(ns.withCompletion(status, msg.Result)), nil
}

func appendNetworkInteraction(s *DeploymentState, msg journal.NetworkInteractionRequest) (*DeploymentState, error) {
	ns, err := networkState(s, msg.FutureID)
	if err != nil {
		return nil, err
	}
	req := msg.Interaction
	for _, ni := range ns.Interactions() {
		if ni.InteractionID() == req.ID {
			return nil, invariantf(msg.FutureID, "network interaction %d already exists", req.ID)
		}
	}
	var ni NetworkInteraction
	switch req.Kind {
	case journal.OnchainInteraction:
		if ns.Kind() == KindStaticCall {
			return nil, invariantf(msg.FutureID, "static call execution cannot send transactions")
		}
		ni = &OnchainInteraction{
			ID:           req.ID,
			To:           req.To,
			Data:         req.Data,
			Value:        req.Value,
			From:         req.From,
			Transactions: []Transaction{},
		}
	case journal.StaticCallInteraction:
		ni = &StaticCallInteraction{
			ID:    req.ID,
			To:    req.To,
			Data:  req.Data,
			Value: req.Value,
			From:  req.From,
		}
	default:
		return nil, invariantf(msg.FutureID, "unknown interaction kind %q", req.Kind)
	}
	nis := append(slices.Clone(ns.Interactions()), ni)
	return s.with(ns.withInteractions(nis)), nil
}

// updateOnchain copies the addressed onchain interaction, lets fn modify the
// copy and stores it back.
func updateOnchain(s *DeploymentState, ref journal.InteractionRef, fn func(*OnchainInteraction) error) (*DeploymentState, error) {
	ns, err := networkState(s, ref.FutureID)
	if err != nil {
		return nil, err
	}
	nis := slices.Clone(ns.Interactions())
	for i, ni := range nis {
		if ni.InteractionID() != ref.NetworkInteractionID {
			continue
		}
		oi, ok := ni.(*OnchainInteraction)
		if !ok {
			return nil, invariantf(ref.FutureID, "network interaction %d is not onchain", ref.NetworkInteractionID)
		}
		cp := *oi
		cp.Transactions = slices.Clone(oi.Transactions)
		if err := fn(&cp); err != nil {
			return nil, err
		}
		nis[i] = &cp
		return s.with(ns.withInteractions(nis)), nil
	}
	return nil, invariantf(ref.FutureID, "network interaction %d not found", ref.NetworkInteractionID)
}

func prepareSend(s *DeploymentState, msg journal.TransactionPrepareSend) (*DeploymentState, error) {
	return updateOnchain(s, msg.InteractionRef, func(oi *OnchainInteraction) error {
		return assignNonce(msg.FutureID, oi, msg.Nonce)
	})
}

func assignNonce(futureID string, oi *OnchainInteraction, nonce uint64) error {
	if oi.Nonce == nil {
		oi.Nonce = &nonce
		return nil
	}
	if *oi.Nonce != nonce {
		return invariantf(futureID, "interaction %d uses nonce %d, got %d", oi.ID, *oi.Nonce, nonce)
	}
	return nil
}

func appendTransactionToOnchainInteraction(s *DeploymentState, msg journal.TransactionSend) (*DeploymentState, error) {
	return updateOnchain(s, msg.InteractionRef, func(oi *OnchainInteraction) error {
		if len(oi.Transactions) > 0 && oi.Nonce == nil {
			return invariantf(msg.FutureID, "interaction %d has transactions but no nonce", oi.ID)
		}
		if err := assignNonce(msg.FutureID, oi, msg.Nonce); err != nil {
			return err
		}
		for _, tx := range oi.Transactions {
			if tx.Hash == msg.Hash {
				return invariantf(msg.FutureID, "transaction %s already recorded", msg.Hash.Hex())
			}
		}
		oi.ShouldBeResent = false
		oi.Transactions = append(oi.Transactions, Transaction{Hash: msg.Hash, Fees: msg.Fees})
		return nil
	})
}

func confirmTransaction(s *DeploymentState, msg journal.TransactionConfirm) (*DeploymentState, error) {
	return updateOnchain(s, msg.InteractionRef, func(oi *OnchainInteraction) error {
		for _, tx := range oi.Transactions {
			if tx.Hash != msg.Hash {
				continue
			}
			receipt := msg.Receipt
			tx.Receipt = &receipt
			oi.Transactions = []Transaction{tx}
			return nil
		}
		return invariantf(msg.FutureID, "transaction %s not found in interaction %d", msg.Hash.Hex(), oi.ID)
	})
}

func completeStaticCall(s *DeploymentState, msg journal.StaticCallComplete) (*DeploymentState, error) {
	ns, err := networkState(s, msg.FutureID)
	if err != nil {
		return nil, err
	}
	nis := slices.Clone(ns.Interactions())
	for i, ni := range nis {
		if ni.InteractionID() != msg.NetworkInteractionID {
			continue
		}
		sc, ok := ni.(*StaticCallInteraction)
		if !ok {
			return nil, invariantf(msg.FutureID, "network interaction %d is not a static call", msg.NetworkInteractionID)
		}
		cp := *sc
		result := msg.Result
		cp.Result = &result
		nis[i] = &cp
		return s.with(ns.withInteractions(nis)), nil
	}
	return nil, invariantf(msg.FutureID, "network interaction %d not found", msg.NetworkInteractionID)
}

// markForResend backs both ONCHAIN_INTERACTION_BUMP_FEES and
// ONCHAIN_INTERACTION_DROPPED.
func markForResend(s *DeploymentState, ref journal.InteractionRef) (*DeploymentState, error) {
	return updateOnchain(s, ref, func(oi *OnchainInteraction) error {
		oi.ShouldBeResent = true
		return nil
	})
}

func resetOnchainInteractionReplacedByUser(s *DeploymentState, msg journal.OnchainInteractionReplacedByUser) (*DeploymentState, error) {
	return updateOnchain(s, msg.InteractionRef, func(oi *OnchainInteraction) error {
		oi.Transactions = []Transaction{}
		oi.Nonce = nil
		oi.ShouldBeResent = false
		return nil
	})
}

func onchainInteractionTimedOut(s *DeploymentState, msg journal.OnchainInteractionTimeout) (*DeploymentState, error) {
	ns, err := networkState(s, msg.FutureID)
	if err != nil {
		return nil, err
	}
	if st := ns.Meta().Status; st.IsTerminal() {
		return nil, invariantf(msg.FutureID, "already %s", st)
	}
	found := slices.ContainsFunc(ns.Interactions(), func(ni NetworkInteraction) bool {
		_, onchain := ni.(*OnchainInteraction)
		return onchain && ni.InteractionID() == msg.NetworkInteractionID
	})
	if !found {
		return nil, invariantf(msg.FutureID, "onchain interaction %d not found", msg.NetworkInteractionID)
	}
	return s.with(ns.withStatus(StatusTimeout)), nil
}
