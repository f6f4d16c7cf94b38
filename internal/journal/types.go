package journal

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/roach88/deployer/internal/ir"
)

// Fees is either legacy (GasPrice) or EIP-1559 (MaxFeePerGas and
// MaxPriorityFeePerGas).
type Fees struct {
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

// IsEIP1559 reports whether f carries dynamic fee fields.
func (f Fees) IsEIP1559() bool {
	return f.MaxFeePerGas != nil
}

// Exceeds reports whether f is a valid replacement for prev: every fee field
// strictly greater than the previous attempt's.
func (f Fees) Exceeds(prev Fees) bool {
	if f.IsEIP1559() != prev.IsEIP1559() {
		return false
	}
	if f.IsEIP1559() {
		return f.MaxFeePerGas.Cmp(prev.MaxFeePerGas) > 0 &&
			f.MaxPriorityFeePerGas.Cmp(prev.MaxPriorityFeePerGas) > 0
	}
	return f.GasPrice.Cmp(prev.GasPrice) > 0
}

// Log is an event log from a receipt.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// Receipt is the part of a transaction receipt the deployer keeps.
type Receipt struct {
	BlockNumber     uint64          `json:"blockNumber"`
	BlockHash       common.Hash     `json:"blockHash"`
	Status          uint64          `json:"status"`
	ContractAddress *common.Address `json:"contractAddress,omitempty"`
	Logs            []Log           `json:"logs"`
}

// Succeeded reports whether the transaction did not revert.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// InteractionKind distinguishes network interaction requests.
type InteractionKind string

const (
	OnchainInteraction    InteractionKind = "ONCHAIN_INTERACTION"
	StaticCallInteraction InteractionKind = "STATIC_CALL"
)

// InteractionRequest describes a network interaction a strategy asked for.
// To is nil for contract creation.
type InteractionRequest struct {
	Kind  InteractionKind `json:"kind"`
	ID    int             `json:"id"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data"`
	Value *big.Int        `json:"value"`
	From  common.Address  `json:"from"`
}

// RawStaticCallResult is the undecoded outcome of an eth_call.
type RawStaticCallResult struct {
	ReturnData hexutil.Bytes `json:"returnData"`
	Success    bool          `json:"success"`
}

// ResultType identifies the outcome of a future's execution.
type ResultType string

const (
	ResultSuccess             ResultType = "SUCCESS"
	ResultRevertedTransaction ResultType = "REVERTED_TRANSACTION"
	ResultStaticCallError     ResultType = "STATIC_CALL_ERROR"
	ResultSimulationError     ResultType = "SIMULATION_ERROR"
	ResultStrategyError       ResultType = "STRATEGY_ERROR"
	ResultStrategyHeld        ResultType = "STRATEGY_HELD"
)

// ExecutionResult is the terminal outcome recorded when a network future
// completes. Which fields are set depends on Type.
type ExecutionResult struct {
	Type ResultType `json:"type"`

	// Address is the deployed contract (SUCCESS of a deployment).
	Address *common.Address `json:"address,omitempty"`

	// Value is the decoded static call output (SUCCESS of a static call).
	Value ir.Any `json:"value,omitzero"`

	// TxHash is the confirmed or reverted transaction.
	TxHash *common.Hash `json:"txHash,omitempty"`

	// Error is the revert reason or strategy message for failures.
	Error string `json:"error,omitempty"`

	// HeldID and Reason are set for STRATEGY_HELD.
	HeldID int    `json:"heldId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// IsSuccess reports whether the result is SUCCESS.
func (r ExecutionResult) IsSuccess() bool {
	return r.Type == ResultSuccess
}
