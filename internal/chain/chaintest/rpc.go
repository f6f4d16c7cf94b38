package chaintest

import (
	"encoding/json"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/roach88/deployer/internal/chain"
)

func hexUint(n uint64) hexutil.Uint64 { return hexutil.Uint64(n) }

func hexBig(n *big.Int) *hexutil.Big {
	if n == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(n))
}

func param[T any](params []json.RawMessage, i int) (T, error) {
	var v T
	if i >= len(params) {
		return v, &chain.RPCError{Code: -32602, Message: fmt.Sprintf("missing param %d", i)}
	}
	if err := json.Unmarshal(params[i], &v); err != nil {
		return v, &chain.RPCError{Code: -32602, Message: fmt.Sprintf("invalid param %d: %v", i, err)}
	}
	return v, nil
}

// serve runs with c.mu held.
func (c *Chain) serve(method string, params []json.RawMessage) (any, error) {
	switch method {
	case "eth_chainId":
		return hexUint(c.chainID), nil
	case "eth_blockNumber":
		return hexUint(c.head), nil
	case "eth_accounts":
		return slices.Clone(c.accounts), nil
	case "eth_gasPrice":
		if c.baseFee == nil {
			return hexBig(Gwei), nil
		}
		return hexBig(new(big.Int).Add(c.baseFee, Gwei)), nil
	case "eth_maxPriorityFeePerGas":
		if c.baseFee == nil {
			return nil, &chain.RPCError{Code: -32601, Message: "method not found"}
		}
		return hexBig(Gwei), nil
	case "eth_getBlockByNumber":
		return map[string]any{
			"number":        hexUint(c.head),
			"hash":          blockHash(c.head),
			"baseFeePerGas": hexBig(c.baseFee),
		}, nil
	case "eth_getTransactionCount":
		addr, err := param[common.Address](params, 0)
		if err != nil {
			return nil, err
		}
		tag, _ := param[string](params, 1)
		return hexUint(c.transactionCount(addr, tag)), nil
	case "eth_getCode":
		addr, err := param[common.Address](params, 0)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(c.code[addr]), nil
	case "eth_getTransactionByHash":
		hash, err := param[common.Hash](params, 0)
		if err != nil {
			return nil, err
		}
		tx, ok := c.txs[hash]
		if !ok {
			return nil, nil
		}
		return rpcTransaction(tx), nil
	case "eth_getTransactionReceipt":
		hash, err := param[common.Hash](params, 0)
		if err != nil {
			return nil, err
		}
		r, ok := c.receipts[hash]
		if !ok {
			return nil, nil
		}
		return r, nil
	case "eth_sendRawTransaction":
		raw, err := param[hexutil.Bytes](params, 0)
		if err != nil {
			return nil, err
		}
		return c.sendRaw(raw)
	case "eth_sendTransaction":
		req, err := param[chain.CallRequest](params, 0)
		if err != nil {
			return nil, err
		}
		return c.sendManaged(req)
	case "eth_estimateGas":
		req, err := param[chain.CallRequest](params, 0)
		if err != nil {
			return nil, err
		}
		if err := c.simulate(req); err != nil {
			return nil, err
		}
		return hexUint(21_000 + 16*uint64(len(req.Data))), nil
	case "eth_call":
		req, err := param[chain.CallRequest](params, 0)
		if err != nil {
			return nil, err
		}
		if c.call == nil {
			return hexutil.Bytes{}, nil
		}
		ret, reverted := c.call(req)
		if reverted {
			return nil, revertError(ret)
		}
		return hexutil.Bytes(ret), nil
	default:
		return nil, &chain.RPCError{Code: -32601, Message: "method " + method + " not found"}
	}
}

func (c *Chain) transactionCount(addr common.Address, tag string) uint64 {
	n := c.nonces[addr]
	if tag != chain.TagPending {
		return n
	}
	for {
		found := slices.ContainsFunc(c.pending, func(tx *Tx) bool {
			return tx.From == addr && tx.Nonce == n
		})
		if !found {
			return n
		}
		n++
	}
}

func revertError(data []byte) error {
	return &chain.RPCError{Code: 3, Message: "execution reverted", Data: hexutil.Encode(data)}
}

func (c *Chain) simulate(req chain.CallRequest) error {
	if c.revert == nil {
		return nil
	}
	tx := Tx{From: req.From, To: req.To, Data: req.Data, Value: new(big.Int)}
	if req.Value != nil {
		tx.Value = req.Value.ToInt()
	}
	if data, reverted := c.revert(tx); reverted {
		return revertError(data)
	}
	return nil
}

func (c *Chain) sendRaw(raw []byte) (any, error) {
	var stx types.Transaction
	if err := stx.UnmarshalBinary(raw); err != nil {
		return nil, &chain.RPCError{Code: -32000, Message: "invalid transaction: " + err.Error()}
	}
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(c.chainID))
	from, err := types.Sender(signer, &stx)
	if err != nil {
		return nil, &chain.RPCError{Code: -32000, Message: "invalid sender: " + err.Error()}
	}
	tx := &Tx{
		Hash:  stx.Hash(),
		From:  from,
		To:    stx.To(),
		Nonce: stx.Nonce(),
		Data:  stx.Data(),
		Value: stx.Value(),
	}
	if stx.Type() == types.DynamicFeeTxType {
		tx.MaxFeePerGas = stx.GasFeeCap()
		tx.MaxPriorityFeePerGas = stx.GasTipCap()
	} else {
		tx.GasPrice = stx.GasPrice()
	}
	if err := c.submit(tx); err != nil {
		return nil, err
	}
	return tx.Hash, nil
}

func (c *Chain) sendManaged(req chain.CallRequest) (any, error) {
	if !slices.Contains(c.accounts, req.From) {
		return nil, &chain.RPCError{Code: -32000, Message: "unknown account " + req.From.Hex()}
	}
	tx := &Tx{
		From:  req.From,
		To:    req.To,
		Data:  req.Data,
		Value: new(big.Int),
	}
	if req.Value != nil {
		tx.Value = req.Value.ToInt()
	}
	if req.Nonce != nil {
		tx.Nonce = uint64(*req.Nonce)
	} else {
		tx.Nonce = c.transactionCount(req.From, chain.TagPending)
	}
	if req.MaxFeePerGas != nil {
		tx.MaxFeePerGas = req.MaxFeePerGas.ToInt()
		tx.MaxPriorityFeePerGas = req.MaxPriorityFeePerGas.ToInt()
	} else if req.GasPrice != nil {
		tx.GasPrice = req.GasPrice.ToInt()
	}
	tx.Hash = c.syntheticHash(*tx)
	if err := c.submit(tx); err != nil {
		return nil, err
	}
	return tx.Hash, nil
}

func rpcTransaction(tx *Tx) chain.RPCTransaction {
	out := chain.RPCTransaction{
		Hash:                 tx.Hash,
		From:                 tx.From,
		To:                   tx.To,
		Nonce:                hexUint(tx.Nonce),
		Input:                tx.Data,
		Value:                hexBig(tx.Value),
		GasPrice:             hexBig(tx.GasPrice),
		MaxFeePerGas:         hexBig(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(tx.MaxPriorityFeePerGas),
	}
	if tx.block != nil {
		n := hexUint(*tx.block)
		out.BlockNumber = &n
	}
	return out
}
