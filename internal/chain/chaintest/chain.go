// Package chaintest is an in-memory Ethereum node for tests. It implements
// chain.Provider with nonces, a mempool with same-nonce replacement, manual
// or automatic mining, and hooks for reverts, call results and logs.
package chaintest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/deployer/internal/chain"
)

// Gwei is 10^9 wei.
var Gwei = big.NewInt(1_000_000_000)

// Tx is a transaction known to the chain.
type Tx struct {
	Hash                 common.Hash
	From                 common.Address
	To                   *common.Address
	Nonce                uint64
	Data                 []byte
	Value                *big.Int
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	block *uint64
}

// RevertFunc decides whether tx reverts, returning the revert data.
type RevertFunc func(tx Tx) (data []byte, reverted bool)

// CallFunc answers eth_call. Returning reverted=true makes the call fail
// with data as the revert payload.
type CallFunc func(req chain.CallRequest) (ret []byte, reverted bool)

// LogsFunc returns the logs a successful tx emits. contract is the created
// address for deployments.
type LogsFunc func(tx Tx, contract *common.Address) []chain.RPCLog

// Chain is a fake node. The zero value is not usable; call New.
type Chain struct {
	mu sync.Mutex

	chainID  uint64
	accounts []common.Address
	baseFee  *big.Int
	autoMine bool

	head     uint64
	nonces   map[common.Address]uint64
	pending  []*Tx
	txs      map[common.Hash]*Tx
	receipts map[common.Hash]*chain.RPCReceipt
	code     map[common.Address][]byte
	sent     int

	revert    RevertFunc
	execRev   RevertFunc
	call      CallFunc
	logs      LogsFunc
	onRequest func(method string)
	requests  map[string]int
}

// Option configures a Chain.
type Option func(*Chain)

// WithChainID sets eth_chainId. Default 31337.
func WithChainID(id uint64) Option {
	return func(c *Chain) { c.chainID = id }
}

// WithAccounts sets the node-managed accounts served by eth_accounts.
func WithAccounts(addrs ...common.Address) Option {
	return func(c *Chain) { c.accounts = addrs }
}

// WithManualMining leaves transactions pending until Mine is called.
func WithManualMining() Option {
	return func(c *Chain) { c.autoMine = false }
}

// WithLegacyFees removes the base fee, so the chain looks pre-London.
func WithLegacyFees() Option {
	return func(c *Chain) { c.baseFee = nil }
}

// New returns a chain at block 0 with a 1 gwei base fee and automining.
func New(opts ...Option) *Chain {
	c := &Chain{
		chainID:  31337,
		baseFee:  new(big.Int).Set(Gwei),
		autoMine: true,
		nonces:   make(map[common.Address]uint64),
		txs:      make(map[common.Hash]*Tx),
		receipts: make(map[common.Hash]*chain.RPCReceipt),
		code:     make(map[common.Address][]byte),
		requests: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRevert installs the revert hook used for execution and gas estimation.
func (c *Chain) SetRevert(f RevertFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revert = f
}

// SetExecutionRevert installs a revert hook consulted only when mining, so
// a transaction passes gas estimation and then reverts onchain.
func (c *Chain) SetExecutionRevert(f RevertFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execRev = f
}

// SetCall installs the eth_call hook.
func (c *Chain) SetCall(f CallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.call = f
}

// SetLogs installs the log hook.
func (c *Chain) SetLogs(f LogsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = f
}

// OnRequest registers a callback run, without the chain lock held, before
// each request is served.
func (c *Chain) OnRequest(f func(method string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRequest = f
}

// SetAutoMine switches automatic mining on or off.
func (c *Chain) SetAutoMine(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoMine = on
}

// RequestCount returns how often method was called.
func (c *Chain) RequestCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[method]
}

// BlockNumber returns the head block number.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Nonce returns the number of mined transactions from addr.
func (c *Chain) Nonce(addr common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[addr]
}

// Pending returns the mempool in arrival order.
func (c *Chain) Pending() []Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tx, len(c.pending))
	for i, tx := range c.pending {
		out[i] = *tx
	}
	return out
}

// Transaction returns a known transaction.
func (c *Chain) Transaction(hash common.Hash) (Tx, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[hash]
	if !ok {
		return Tx{}, false
	}
	return *tx, true
}

// CodeAt returns the code stored at addr.
func (c *Chain) CodeAt(addr common.Address) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[addr]
}

// SetCode installs code at addr.
func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

// Drop removes a pending transaction, as a node evicting it would.
func (c *Chain) Drop(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = slices.DeleteFunc(c.pending, func(tx *Tx) bool { return tx.Hash == hash })
	if tx, ok := c.txs[hash]; ok && tx.block == nil {
		delete(c.txs, hash)
	}
}

// SendExternal submits a transaction from outside the deployer, as a user
// with their own wallet would. Nonce is taken from tx.
func (c *Chain) SendExternal(tx Tx) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.Hash == (common.Hash{}) {
		tx.Hash = c.syntheticHash(tx)
	}
	if tx.Value == nil {
		tx.Value = new(big.Int)
	}
	if err := c.submit(&tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash, nil
}

// Mine mines one block with every executable pending transaction.
func (c *Chain) Mine() []common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mine()
}

// MineEmpty advances the head by n empty blocks.
func (c *Chain) MineEmpty(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head += uint64(n)
}

func (c *Chain) syntheticHash(tx Tx) common.Hash {
	c.sent++
	buf := make([]byte, 0, 20+8+8+len(tx.Data))
	buf = append(buf, tx.From.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.sent))
	buf = append(buf, tx.Data...)
	return crypto.Keccak256Hash(buf)
}

func blockHash(n uint64) common.Hash {
	return crypto.Keccak256Hash(binary.BigEndian.AppendUint64([]byte("block"), n))
}

// submit adds tx to the mempool, replacing a pending tx with the same
// sender and nonce when every fee field is higher.
func (c *Chain) submit(tx *Tx) error {
	if tx.Nonce < c.nonces[tx.From] {
		return &chain.RPCError{Code: -32000, Message: "nonce too low"}
	}
	if _, known := c.txs[tx.Hash]; known {
		return &chain.RPCError{Code: -32000, Message: "already known"}
	}
	for i, p := range c.pending {
		if p.From != tx.From || p.Nonce != tx.Nonce {
			continue
		}
		if !feesExceed(tx, p) {
			return &chain.RPCError{Code: -32000, Message: "replacement transaction underpriced"}
		}
		c.pending = slices.Delete(c.pending, i, i+1)
		delete(c.txs, p.Hash)
		break
	}
	c.pending = append(c.pending, tx)
	c.txs[tx.Hash] = tx
	if c.autoMine {
		c.mine()
	}
	return nil
}

func feesExceed(tx, prev *Tx) bool {
	if tx.MaxFeePerGas != nil && prev.MaxFeePerGas != nil {
		return tx.MaxFeePerGas.Cmp(prev.MaxFeePerGas) > 0 &&
			tx.MaxPriorityFeePerGas.Cmp(prev.MaxPriorityFeePerGas) > 0
	}
	if tx.GasPrice != nil && prev.GasPrice != nil {
		return tx.GasPrice.Cmp(prev.GasPrice) > 0
	}
	return false
}

func (c *Chain) mine() []common.Hash {
	var included []common.Hash
	number := c.head + 1
	for progress := true; progress; {
		progress = false
		for i, tx := range c.pending {
			if tx.Nonce != c.nonces[tx.From] {
				continue
			}
			c.execute(tx, number)
			included = append(included, tx.Hash)
			c.pending = slices.Delete(c.pending, i, i+1)
			progress = true
			break
		}
	}
	if len(included) > 0 {
		c.head = number
	}
	return included
}

func (c *Chain) execute(tx *Tx, number uint64) {
	c.nonces[tx.From]++
	n := number
	tx.block = &n

	receipt := &chain.RPCReceipt{
		TransactionHash: tx.Hash,
		BlockNumber:     hexUint(number),
		BlockHash:       blockHash(number),
		Status:          1,
		Logs:            []chain.RPCLog{},
	}
	c.receipts[tx.Hash] = receipt
	for _, rev := range []RevertFunc{c.revert, c.execRev} {
		if rev == nil {
			continue
		}
		if _, reverted := rev(*tx); reverted {
			receipt.Status = 0
			return
		}
	}
	var created *common.Address
	switch {
	case tx.To == nil:
		addr := crypto.CreateAddress(tx.From, tx.Nonce)
		c.code[addr] = slices.Clone(tx.Data)
		receipt.ContractAddress = &addr
		created = &addr
	case *tx.To == chain.DeterministicDeployer && len(tx.Data) >= 32:
		salt := [32]byte(tx.Data[:32])
		initCode := tx.Data[32:]
		addr := crypto.CreateAddress2(chain.DeterministicDeployer, salt, crypto.Keccak256(initCode))
		if _, exists := c.code[addr]; exists {
			receipt.Status = 0
			return
		}
		c.code[addr] = slices.Clone(initCode)
		created = &addr
	}
	if c.logs != nil {
		receipt.Logs = append(receipt.Logs, c.logs(*tx, created)...)
	}
}

// Request implements chain.Provider.
func (c *Chain) Request(ctx context.Context, args chain.RequestArguments) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	hook := c.onRequest
	c.requests[args.Method]++
	c.mu.Unlock()
	if hook != nil {
		hook(args.Method)
	}

	params, err := splitParams(args.Params)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := c.serve(args.Method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func splitParams(params []any) ([]json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return out, nil
}
