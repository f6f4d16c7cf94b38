package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
)

// Status is the lifecycle status of a future. Everything except STARTED is
// terminal for a run.
type Status string

const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusTimeout Status = "TIMEOUT"
	StatusHeld    Status = "HELD"
)

// IsTerminal reports whether s ends the future's execution for this run.
func (s Status) IsTerminal() bool {
	return s != StatusStarted
}

// Kind identifies the execution state variant.
type Kind string

const (
	KindDeployment         Kind = "DEPLOYMENT_EXECUTION_STATE"
	KindCall               Kind = "CALL_EXECUTION_STATE"
	KindStaticCall         Kind = "STATIC_CALL_EXECUTION_STATE"
	KindSendData           Kind = "SEND_DATA_EXECUTION_STATE"
	KindContractAt         Kind = "CONTRACT_AT_EXECUTION_STATE"
	KindReadEventArgument  Kind = "READ_EVENT_ARGUMENT_EXECUTION_STATE"
	KindEncodeFunctionCall Kind = "ENCODE_FUNCTION_CALL_EXECUTION_STATE"
)

// Common holds the fields shared by every execution state.
type Common struct {
	ID             string
	FutureType     ir.FutureType
	Status         Status
	Strategy       string
	StrategyConfig ir.IRObject
	Dependencies   []string
	// From is the sender; zero for kinds that never send.
	From common.Address
}

// ExecutionState is the recorded execution of one future. Values are never
// modified after construction; reducers return new values.
type ExecutionState interface {
	Kind() Kind
	Meta() Common
	executionState()
}

// NetworkExecutionState is implemented by the kinds that perform network
// interactions: deployments, calls, static calls and send data.
type NetworkExecutionState interface {
	ExecutionState
	Interactions() []NetworkInteraction
	Outcome() *journal.ExecutionResult
	withInteractions([]NetworkInteraction) NetworkExecutionState
	withCompletion(Status, journal.ExecutionResult) NetworkExecutionState
	withStatus(Status) NetworkExecutionState
}

// DeploymentExecutionState tracks a contract or library deployment.
type DeploymentExecutionState struct {
	Common
	ArtifactID          string
	ContractName        string
	ConstructorArgs     ir.IRArray
	Libraries           map[string]common.Address
	Value               *big.Int
	NetworkInteractions []NetworkInteraction
	Result              *journal.ExecutionResult
}

// CallExecutionState tracks a contract call.
type CallExecutionState struct {
	Common
	ArtifactID          string
	ContractAddress     common.Address
	FunctionName        string
	Args                ir.IRArray
	Value               *big.Int
	NetworkInteractions []NetworkInteraction
	Result              *journal.ExecutionResult
}

// StaticCallExecutionState tracks a static call.
type StaticCallExecutionState struct {
	Common
	ArtifactID          string
	ContractAddress     common.Address
	FunctionName        string
	Args                ir.IRArray
	NameOrIndex         string
	NetworkInteractions []NetworkInteraction
	Result              *journal.ExecutionResult
}

// SendDataExecutionState tracks a raw transaction.
type SendDataExecutionState struct {
	Common
	To                  common.Address
	Data                hexutil.Bytes
	Value               *big.Int
	NetworkInteractions []NetworkInteraction
	Result              *journal.ExecutionResult
}

// ContractAtExecutionState records an existing contract.
type ContractAtExecutionState struct {
	Common
	ArtifactID      string
	ContractName    string
	ContractAddress common.Address
}

// ReadEventArgumentExecutionState records a decoded event argument.
type ReadEventArgumentExecutionState struct {
	Common
	ArtifactID     string
	EventName      string
	EventIndex     int
	NameOrIndex    string
	EmitterAddress common.Address
	TxToReadFrom   common.Hash
	Result         ir.IRValue
}

// EncodeFunctionCallExecutionState records encoded call data.
type EncodeFunctionCallExecutionState struct {
	Common
	ArtifactID   string
	FunctionName string
	Args         ir.IRArray
	Result       hexutil.Bytes
}

func (*DeploymentExecutionState) Kind() Kind         { return KindDeployment }
func (*CallExecutionState) Kind() Kind               { return KindCall }
func (*StaticCallExecutionState) Kind() Kind         { return KindStaticCall }
func (*SendDataExecutionState) Kind() Kind           { return KindSendData }
func (*ContractAtExecutionState) Kind() Kind         { return KindContractAt }
func (*ReadEventArgumentExecutionState) Kind() Kind  { return KindReadEventArgument }
func (*EncodeFunctionCallExecutionState) Kind() Kind { return KindEncodeFunctionCall }

func (s *DeploymentExecutionState) Meta() Common         { return s.Common }
func (s *CallExecutionState) Meta() Common               { return s.Common }
func (s *StaticCallExecutionState) Meta() Common         { return s.Common }
func (s *SendDataExecutionState) Meta() Common           { return s.Common }
func (s *ContractAtExecutionState) Meta() Common         { return s.Common }
func (s *ReadEventArgumentExecutionState) Meta() Common  { return s.Common }
func (s *EncodeFunctionCallExecutionState) Meta() Common { return s.Common }

func (*DeploymentExecutionState) executionState()         {}
func (*CallExecutionState) executionState()               {}
func (*StaticCallExecutionState) executionState()         {}
func (*SendDataExecutionState) executionState()           {}
func (*ContractAtExecutionState) executionState()         {}
func (*ReadEventArgumentExecutionState) executionState()  {}
func (*EncodeFunctionCallExecutionState) executionState() {}

func (s *DeploymentExecutionState) Interactions() []NetworkInteraction { return s.NetworkInteractions }
func (s *CallExecutionState) Interactions() []NetworkInteraction       { return s.NetworkInteractions }
func (s *StaticCallExecutionState) Interactions() []NetworkInteraction { return s.NetworkInteractions }
func (s *SendDataExecutionState) Interactions() []NetworkInteraction   { return s.NetworkInteractions }

func (s *DeploymentExecutionState) Outcome() *journal.ExecutionResult { return s.Result }
func (s *CallExecutionState) Outcome() *journal.ExecutionResult       { return s.Result }
func (s *StaticCallExecutionState) Outcome() *journal.ExecutionResult { return s.Result }
func (s *SendDataExecutionState) Outcome() *journal.ExecutionResult   { return s.Result }

func (s *DeploymentExecutionState) withInteractions(nis []NetworkInteraction) NetworkExecutionState {
	cp := *s
	cp.NetworkInteractions = nis
	return &cp
}

func (s *CallExecutionState) withInteractions(nis []NetworkInteraction) NetworkExecutionState {
	cp := *s
	cp.NetworkInteractions = nis
	return &cp
}

func (s *StaticCallExecutionState) withInteractions(nis []NetworkInteraction) NetworkExecutionState {
	cp := *s
	cp.NetworkInteractions = nis
	return &cp
}

func (s *SendDataExecutionState) withInteractions(nis []NetworkInteraction) NetworkExecutionState {
	cp := *s
	cp.NetworkInteractions = nis
	return &cp
}

func (s *DeploymentExecutionState) withCompletion(st Status, r journal.ExecutionResult) NetworkExecutionState {
	cp := *s
	cp.Status = st
	cp.Result = &r
	return &cp
}

func (s *CallExecutionState) withCompletion(st Status, r journal.ExecutionResult) NetworkExecutionState {
	cp := *s
	cp.Status = st
	cp.Result = &r
	return &cp
}

func (s *StaticCallExecutionState) withCompletion(st Status, r journal.ExecutionResult) NetworkExecutionState {
	cp := *s
	cp.Status = st
	cp.Result = &r
	return &cp
}

func (s *SendDataExecutionState) withCompletion(st Status, r journal.ExecutionResult) NetworkExecutionState {
	cp := *s
	cp.Status = st
	cp.Result = &r
	return &cp
}

func (s *DeploymentExecutionState) withStatus(st Status) NetworkExecutionState {
	cp := *s
	cp.Status = st
	return &cp
}

func (s *CallExecutionState) withStatus(st Status) NetworkExecutionState {
	cp := *s
	cp.Status = st
	return &cp
}

func (s *StaticCallExecutionState) withStatus(st Status) NetworkExecutionState {
	cp := *s
	cp.Status = st
	return &cp
}

func (s *SendDataExecutionState) withStatus(st Status) NetworkExecutionState {
	cp := *s
	cp.Status = st
	return &cp
}

// NetworkInteraction is one interaction of a network execution state. The
// set of implementations is closed: *OnchainInteraction and
// *StaticCallInteraction.
type NetworkInteraction interface {
	InteractionID() int
	networkInteraction()
}

// Transaction is one broadcast attempt of an onchain interaction.
type Transaction struct {
	Hash    common.Hash
	Fees    journal.Fees
	Receipt *journal.Receipt
}

// OnchainInteraction is a logical transaction, possibly attempted several
// times at the same nonce.
type OnchainInteraction struct {
	ID             int
	To             *common.Address
	Data           hexutil.Bytes
	Value          *big.Int
	From           common.Address
	Transactions   []Transaction
	Nonce          *uint64
	ShouldBeResent bool
}

// StaticCallInteraction is one eth_call.
type StaticCallInteraction struct {
	ID     int
	To     *common.Address
	Data   hexutil.Bytes
	Value  *big.Int
	From   common.Address
	Result *journal.RawStaticCallResult
}

func (o *OnchainInteraction) InteractionID() int    { return o.ID }
func (o *StaticCallInteraction) InteractionID() int { return o.ID }
func (*OnchainInteraction) networkInteraction()     {}
func (*StaticCallInteraction) networkInteraction()  {}

// ConfirmedTransaction returns the transaction with a receipt, if any.
func (o *OnchainInteraction) ConfirmedTransaction() *Transaction {
	for i := range o.Transactions {
		if o.Transactions[i].Receipt != nil {
			return &o.Transactions[i]
		}
	}
	return nil
}

// LatestTransaction returns the most recent attempt, if any.
func (o *OnchainInteraction) LatestTransaction() *Transaction {
	if len(o.Transactions) == 0 {
		return nil
	}
	return &o.Transactions[len(o.Transactions)-1]
}

// DeploymentState is the fold of a journal.
type DeploymentState struct {
	ChainID         uint64
	ExecutionStates map[string]ExecutionState
}

// Get returns the execution state of a future.
func (s *DeploymentState) Get(id string) (ExecutionState, bool) {
	if s == nil {
		return nil, false
	}
	es, ok := s.ExecutionStates[id]
	return es, ok
}

// LastInteraction returns the most recent interaction of ns, or nil.
func LastInteraction(ns NetworkExecutionState) NetworkInteraction {
	nis := ns.Interactions()
	if len(nis) == 0 {
		return nil
	}
	return nis[len(nis)-1]
}

// PendingOnchainInteractions lists, for every network state, the onchain
// interactions that hold a nonce but have no confirmed transaction yet.
func (s *DeploymentState) PendingOnchainInteractions() []PendingInteraction {
	if s == nil {
		return nil
	}
	var out []PendingInteraction
	for _, id := range s.SortedIDs() {
		ns, ok := s.ExecutionStates[id].(NetworkExecutionState)
		if !ok {
			continue
		}
		for _, ni := range ns.Interactions() {
			oi, ok := ni.(*OnchainInteraction)
			if !ok || oi.Nonce == nil || oi.ConfirmedTransaction() != nil {
				continue
			}
			out = append(out, PendingInteraction{FutureID: id, Interaction: oi})
		}
	}
	return out
}

// PendingInteraction pairs an onchain interaction with its future.
type PendingInteraction struct {
	FutureID    string
	Interaction *OnchainInteraction
}
