package journal

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/ir"
)

// MessageType is the discriminator written as "type" on every journal line.
type MessageType string

const (
	TypeRunStart  MessageType = "RUN_START"
	TypeWipeApply MessageType = "WIPE_APPLY"

	TypeDeploymentInitialize         MessageType = "DEPLOYMENT_EXECUTION_STATE_INITIALIZE"
	TypeDeploymentComplete           MessageType = "DEPLOYMENT_EXECUTION_STATE_COMPLETE"
	TypeCallInitialize               MessageType = "CALL_EXECUTION_STATE_INITIALIZE"
	TypeCallComplete                 MessageType = "CALL_EXECUTION_STATE_COMPLETE"
	TypeStaticCallInitialize         MessageType = "STATIC_CALL_EXECUTION_STATE_INITIALIZE"
	TypeStaticCallExecutionComplete  MessageType = "STATIC_CALL_EXECUTION_STATE_COMPLETE"
	TypeSendDataInitialize           MessageType = "SEND_DATA_EXECUTION_STATE_INITIALIZE"
	TypeSendDataComplete             MessageType = "SEND_DATA_EXECUTION_STATE_COMPLETE"
	TypeContractAtInitialize         MessageType = "CONTRACT_AT_EXECUTION_STATE_INITIALIZE"
	TypeReadEventArgumentInitialize  MessageType = "READ_EVENT_ARGUMENT_EXECUTION_STATE_INITIALIZE"
	TypeEncodeFunctionCallInitialize MessageType = "ENCODE_FUNCTION_CALL_EXECUTION_STATE_INITIALIZE"

	TypeNetworkInteractionRequest MessageType = "NETWORK_INTERACTION_REQUEST"
	TypeTransactionPrepareSend    MessageType = "TRANSACTION_PREPARE_SEND"
	TypeTransactionSend           MessageType = "TRANSACTION_SEND"
	TypeTransactionConfirm        MessageType = "TRANSACTION_CONFIRM"
	TypeStaticCallComplete        MessageType = "STATIC_CALL_COMPLETE"

	TypeOnchainInteractionBumpFees       MessageType = "ONCHAIN_INTERACTION_BUMP_FEES"
	TypeOnchainInteractionDropped        MessageType = "ONCHAIN_INTERACTION_DROPPED"
	TypeOnchainInteractionReplacedByUser MessageType = "ONCHAIN_INTERACTION_REPLACED_BY_USER"
	TypeOnchainInteractionTimeout        MessageType = "ONCHAIN_INTERACTION_TIMEOUT"
)

// Message is one journal entry. The set of implementations is closed.
type Message interface {
	Type() MessageType
	message()
}

// ExecutionInit holds the fields every *_EXECUTION_STATE_INITIALIZE message
// carries.
type ExecutionInit struct {
	FutureID       string        `json:"futureId"`
	FutureType     ir.FutureType `json:"futureType"`
	Strategy       string        `json:"strategy"`
	StrategyConfig ir.IRObject   `json:"strategyConfig"`
	Dependencies   []string      `json:"dependencies"`
}

// InteractionRef addresses one network interaction of a future.
type InteractionRef struct {
	FutureID             string `json:"futureId"`
	NetworkInteractionID int    `json:"networkInteractionId"`
}

// RunStart opens a run against a chain.
type RunStart struct {
	RunID   string `json:"runId"`
	ChainID uint64 `json:"chainId"`
}

// WipeApply discards a future's execution state.
type WipeApply struct {
	FutureID string `json:"futureId"`
}

// DeploymentInitialize starts a contract or library deployment.
type DeploymentInitialize struct {
	ExecutionInit
	ArtifactID      string                    `json:"artifactId"`
	ContractName    string                    `json:"contractName"`
	ConstructorArgs ir.IRArray                `json:"constructorArgs"`
	Libraries       map[string]common.Address `json:"libraries"`
	Value           *big.Int                  `json:"value"`
	From            common.Address            `json:"from"`
}

// CallInitialize starts a contract call.
type CallInitialize struct {
	ExecutionInit
	ArtifactID      string         `json:"artifactId"`
	ContractAddress common.Address `json:"contractAddress"`
	FunctionName    string         `json:"functionName"`
	Args            ir.IRArray     `json:"args"`
	Value           *big.Int       `json:"value"`
	From            common.Address `json:"from"`
}

// StaticCallInitialize starts a static call.
type StaticCallInitialize struct {
	ExecutionInit
	ArtifactID      string         `json:"artifactId"`
	ContractAddress common.Address `json:"contractAddress"`
	FunctionName    string         `json:"functionName"`
	Args            ir.IRArray     `json:"args"`
	NameOrIndex     string         `json:"nameOrIndex"`
	From            common.Address `json:"from"`
}

// SendDataInitialize starts a raw transaction.
type SendDataInitialize struct {
	ExecutionInit
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *big.Int       `json:"value"`
	From  common.Address `json:"from"`
}

// ContractAtInitialize records an existing contract. It completes the future.
type ContractAtInitialize struct {
	ExecutionInit
	ArtifactID      string         `json:"artifactId"`
	ContractName    string         `json:"contractName"`
	ContractAddress common.Address `json:"contractAddress"`
}

// ReadEventArgumentInitialize records a decoded event argument. It completes
// the future.
type ReadEventArgumentInitialize struct {
	ExecutionInit
	ArtifactID     string         `json:"artifactId"`
	EventName      string         `json:"eventName"`
	EventIndex     int            `json:"eventIndex"`
	NameOrIndex    string         `json:"nameOrIndex"`
	EmitterAddress common.Address `json:"emitterAddress"`
	TxToReadFrom   common.Hash    `json:"txToReadFrom"`
	Result         ir.Any         `json:"result"`
}

// EncodeFunctionCallInitialize records encoded call data. It completes the
// future.
type EncodeFunctionCallInitialize struct {
	ExecutionInit
	ArtifactID   string        `json:"artifactId"`
	FunctionName string        `json:"functionName"`
	Args         ir.IRArray    `json:"args"`
	Result       hexutil.Bytes `json:"result"`
}

// ExecutionComplete ends a network future with a result. Kind selects which
// execution state it applies to.
type ExecutionComplete struct {
	Kind     MessageType     `json:"-"`
	FutureID string          `json:"futureId"`
	Result   ExecutionResult `json:"result"`
}

// NetworkInteractionRequest appends an interaction to a future.
type NetworkInteractionRequest struct {
	FutureID    string             `json:"futureId"`
	Interaction InteractionRequest `json:"networkInteraction"`
}

// TransactionPrepareSend reserves a nonce before the transaction is
// broadcast, so a crash after sending leaves a trace of the nonce.
type TransactionPrepareSend struct {
	InteractionRef
	Nonce uint64 `json:"nonce"`
}

// TransactionSend records a broadcast transaction.
type TransactionSend struct {
	InteractionRef
	Hash  common.Hash `json:"hash"`
	Fees  Fees        `json:"fees"`
	Nonce uint64      `json:"nonce"`
}

// TransactionConfirm attaches a receipt with enough confirmations.
type TransactionConfirm struct {
	InteractionRef
	Hash    common.Hash `json:"hash"`
	Receipt Receipt     `json:"receipt"`
}

// StaticCallComplete records the raw outcome of a static call interaction.
type StaticCallComplete struct {
	InteractionRef
	Result RawStaticCallResult `json:"result"`
}

// OnchainInteractionBumpFees asks for a replacement with higher fees.
type OnchainInteractionBumpFees struct {
	InteractionRef
}

// OnchainInteractionDropped asks for a resend after the mempool lost every
// candidate transaction.
type OnchainInteractionDropped struct {
	InteractionRef
}

// OnchainInteractionReplacedByUser resets an interaction whose nonce was used
// by a transaction sent outside the deployer.
type OnchainInteractionReplacedByUser struct {
	InteractionRef
}

// OnchainInteractionTimeout marks the owning future as TIMEOUT.
type OnchainInteractionTimeout struct {
	InteractionRef
}

func (RunStart) Type() MessageType                     { return TypeRunStart }
func (WipeApply) Type() MessageType                    { return TypeWipeApply }
func (DeploymentInitialize) Type() MessageType         { return TypeDeploymentInitialize }
func (CallInitialize) Type() MessageType               { return TypeCallInitialize }
func (StaticCallInitialize) Type() MessageType         { return TypeStaticCallInitialize }
func (SendDataInitialize) Type() MessageType           { return TypeSendDataInitialize }
func (ContractAtInitialize) Type() MessageType         { return TypeContractAtInitialize }
func (ReadEventArgumentInitialize) Type() MessageType  { return TypeReadEventArgumentInitialize }
func (EncodeFunctionCallInitialize) Type() MessageType { return TypeEncodeFunctionCallInitialize }
func (m ExecutionComplete) Type() MessageType          { return m.Kind }
func (NetworkInteractionRequest) Type() MessageType    { return TypeNetworkInteractionRequest }
func (TransactionPrepareSend) Type() MessageType       { return TypeTransactionPrepareSend }
func (TransactionSend) Type() MessageType              { return TypeTransactionSend }
func (TransactionConfirm) Type() MessageType           { return TypeTransactionConfirm }
func (StaticCallComplete) Type() MessageType           { return TypeStaticCallComplete }
func (OnchainInteractionBumpFees) Type() MessageType   { return TypeOnchainInteractionBumpFees }
func (OnchainInteractionDropped) Type() MessageType    { return TypeOnchainInteractionDropped }
func (OnchainInteractionReplacedByUser) Type() MessageType {
	return TypeOnchainInteractionReplacedByUser
}
func (OnchainInteractionTimeout) Type() MessageType { return TypeOnchainInteractionTimeout }

func (RunStart) message()                         {}
func (WipeApply) message()                        {}
func (DeploymentInitialize) message()             {}
func (CallInitialize) message()                   {}
func (StaticCallInitialize) message()             {}
func (SendDataInitialize) message()               {}
func (ContractAtInitialize) message()             {}
func (ReadEventArgumentInitialize) message()      {}
func (EncodeFunctionCallInitialize) message()     {}
func (ExecutionComplete) message()                {}
func (NetworkInteractionRequest) message()        {}
func (TransactionPrepareSend) message()           {}
func (TransactionSend) message()                  {}
func (TransactionConfirm) message()               {}
func (StaticCallComplete) message()               {}
func (OnchainInteractionBumpFees) message()       {}
func (OnchainInteractionDropped) message()        {}
func (OnchainInteractionReplacedByUser) message() {}
func (OnchainInteractionTimeout) message()        {}

// FutureID returns the future a message applies to, or "" for RUN_START.
func FutureID(m Message) string {
	switch v := m.(type) {
	case RunStart:
		return ""
	case WipeApply:
		return v.FutureID
	case DeploymentInitialize:
		return v.FutureID
	case CallInitialize:
		return v.FutureID
	case StaticCallInitialize:
		return v.FutureID
	case SendDataInitialize:
		return v.FutureID
	case ContractAtInitialize:
		return v.FutureID
	case ReadEventArgumentInitialize:
		return v.FutureID
	case EncodeFunctionCallInitialize:
		return v.FutureID
	case ExecutionComplete:
		return v.FutureID
	case NetworkInteractionRequest:
		return v.FutureID
	case TransactionPrepareSend:
		return v.FutureID
	case TransactionSend:
		return v.FutureID
	case TransactionConfirm:
		return v.FutureID
	case StaticCallComplete:
		return v.FutureID
	case OnchainInteractionBumpFees:
		return v.FutureID
	case OnchainInteractionDropped:
		return v.FutureID
	case OnchainInteractionReplacedByUser:
		return v.FutureID
	case OnchainInteractionTimeout:
		return v.FutureID
	default:
		return ""
	}
}

// CompleteMessageType returns the *_EXECUTION_STATE_COMPLETE type for a
// network future type.
func CompleteMessageType(t ir.FutureType) (MessageType, bool) {
	switch t {
	case ir.NamedArtifactContractDeployment, ir.ContractDeployment,
		ir.NamedArtifactLibraryDeployment, ir.LibraryDeployment:
		return TypeDeploymentComplete, true
	case ir.ContractCall:
		return TypeCallComplete, true
	case ir.StaticCall:
		return TypeStaticCallExecutionComplete, true
	case ir.SendData:
		return TypeSendDataComplete, true
	default:
		return "", false
	}
}
