package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/roach88/deployer/internal/journal"
)

// Block tags accepted by TransactionCount, Call and Code.
const (
	TagLatest  = "latest"
	TagPending = "pending"
)

// Client is a typed view of a Provider.
type Client struct {
	provider Provider
}

// NewClient wraps p.
func NewClient(p Provider) *Client {
	return &Client{provider: p}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// call performs method and decodes the result into out. A null result
// leaves out untouched and reports found=false.
func (c *Client) call(ctx context.Context, out any, method string, params ...any) (found bool, err error) {
	raw, err := c.provider.Request(ctx, RequestArguments{Method: method, Params: params})
	if err != nil {
		return false, fmt.Errorf("%s: %w", method, err)
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return true, nil
}

// Block is the part of a block header the deployer reads.
type Block struct {
	Number  uint64
	Hash    common.Hash
	BaseFee *big.Int
}

type rpcBlock struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
}

// Transaction is a transaction as returned by eth_getTransactionByHash.
// BlockNumber is nil while pending.
type Transaction struct {
	Hash                 common.Hash
	From                 common.Address
	To                   *common.Address
	Nonce                uint64
	Input                []byte
	Value                *big.Int
	BlockNumber          *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// RPCTransaction is the wire form of Transaction.
type RPCTransaction struct {
	Hash                 common.Hash     `json:"hash"`
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Input                hexutil.Bytes   `json:"input"`
	Value                *hexutil.Big    `json:"value"`
	BlockNumber          *hexutil.Uint64 `json:"blockNumber"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// RPCReceipt is the wire form of a receipt.
type RPCReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	BlockHash       common.Hash     `json:"blockHash"`
	Status          hexutil.Uint64  `json:"status"`
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []RPCLog        `json:"logs"`
}

// RPCLog is the wire form of a log.
type RPCLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// CallRequest is the argument of eth_call, eth_estimateGas and
// eth_sendTransaction.
type CallRequest struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

func bigOrNil(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToInt()
}

// ChainID returns eth_chainId.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if _, err := c.call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// LatestBlock returns the head block. BaseFee is nil before London.
func (c *Client) LatestBlock(ctx context.Context) (*Block, error) {
	var b rpcBlock
	found, err := c.call(ctx, &b, "eth_getBlockByNumber", TagLatest, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("eth_getBlockByNumber: latest block not found")
	}
	return &Block{Number: uint64(b.Number), Hash: b.Hash, BaseFee: bigOrNil(b.BaseFeePerGas)}, nil
}

// TransactionByHash returns nil when the node does not know the hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var tx RPCTransaction
	found, err := c.call(ctx, &tx, "eth_getTransactionByHash", hash)
	if err != nil || !found {
		return nil, err
	}
	out := &Transaction{
		Hash:                 tx.Hash,
		From:                 tx.From,
		To:                   tx.To,
		Nonce:                uint64(tx.Nonce),
		Input:                tx.Input,
		Value:                bigOrNil(tx.Value),
		GasPrice:             bigOrNil(tx.GasPrice),
		MaxFeePerGas:         bigOrNil(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOrNil(tx.MaxPriorityFeePerGas),
	}
	if out.Value == nil {
		out.Value = new(big.Int)
	}
	if tx.BlockNumber != nil {
		n := uint64(*tx.BlockNumber)
		out.BlockNumber = &n
	}
	return out, nil
}

// TransactionReceipt returns nil while the transaction is unmined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*journal.Receipt, error) {
	var r RPCReceipt
	found, err := c.call(ctx, &r, "eth_getTransactionReceipt", hash)
	if err != nil || !found {
		return nil, err
	}
	out := &journal.Receipt{
		BlockNumber:     uint64(r.BlockNumber),
		BlockHash:       r.BlockHash,
		Status:          uint64(r.Status),
		ContractAddress: r.ContractAddress,
		Logs:            make([]journal.Log, len(r.Logs)),
	}
	for i, l := range r.Logs {
		out.Logs[i] = journal.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}
	return out, nil
}

// TransactionCount returns the nonce of addr at tag ("latest" or "pending").
func (c *Client) TransactionCount(ctx context.Context, addr common.Address, tag string) (uint64, error) {
	var n hexutil.Uint64
	if _, err := c.call(ctx, &n, "eth_getTransactionCount", addr, tag); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// SendRawTransaction broadcasts a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var h common.Hash
	if _, err := c.call(ctx, &h, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

// SendTransaction asks the node to sign and broadcast with one of its own
// accounts.
func (c *Client) SendTransaction(ctx context.Context, req CallRequest) (common.Hash, error) {
	var h common.Hash
	if _, err := c.call(ctx, &h, "eth_sendTransaction", req); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

// EstimateGas simulates req against the pending state.
func (c *Client) EstimateGas(ctx context.Context, req CallRequest) (uint64, error) {
	var gas hexutil.Uint64
	if _, err := c.call(ctx, &gas, "eth_estimateGas", req); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// Call runs req without a transaction.
func (c *Client) Call(ctx context.Context, req CallRequest, tag string) ([]byte, error) {
	var out hexutil.Bytes
	if _, err := c.call(ctx, &out, "eth_call", req, tag); err != nil {
		return nil, err
	}
	return out, nil
}

// Code returns the runtime bytecode at addr.
func (c *Client) Code(ctx context.Context, addr common.Address, tag string) ([]byte, error) {
	var out hexutil.Bytes
	if _, err := c.call(ctx, &out, "eth_getCode", addr, tag); err != nil {
		return nil, err
	}
	return out, nil
}

// GasPrice returns eth_gasPrice.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var p hexutil.Big
	if _, err := c.call(ctx, &p, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

// MaxPriorityFeePerGas returns eth_maxPriorityFeePerGas.
func (c *Client) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	var p hexutil.Big
	if _, err := c.call(ctx, &p, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

// Accounts returns the node-managed accounts.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if _, err := c.call(ctx, &out, "eth_accounts"); err != nil {
		return nil, err
	}
	return out, nil
}

// RevertData extracts revert data from an eth_call or eth_estimateGas error.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	s, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil, false
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// DeterministicDeployer is the keyless CREATE2 factory present on most
// chains. Call data is a 32-byte salt followed by init code.
var DeterministicDeployer = common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C")
