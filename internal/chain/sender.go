package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/deployer/internal/journal"
)

// TxRequest is a fully specified transaction: the engine has already chosen
// nonce, gas and fees.
type TxRequest struct {
	ChainID uint64
	From    common.Address
	To      *common.Address
	Data    []byte
	Value   *big.Int
	Nonce   uint64
	Gas     uint64
	Fees    journal.Fees
}

// Sender signs and broadcasts transactions for a set of accounts.
type Sender interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	Send(ctx context.Context, req TxRequest) (common.Hash, error)
}

// KeySender signs locally with private keys and uses eth_sendRawTransaction.
type KeySender struct {
	client *Client
	keys   map[common.Address]*ecdsa.PrivateKey
	order  []common.Address
}

// NewKeySender parses hex private keys. Account order follows the keys.
func NewKeySender(client *Client, hexKeys ...string) (*KeySender, error) {
	s := &KeySender{client: client, keys: make(map[common.Address]*ecdsa.PrivateKey)}
	for i, hk := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hk, "0x"))
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := s.keys[addr]; dup {
			continue
		}
		s.keys[addr] = key
		s.order = append(s.order, addr)
	}
	return s, nil
}

// Accounts implements Sender.
func (s *KeySender) Accounts(context.Context) ([]common.Address, error) {
	return slices.Clone(s.order), nil
}

// SignTx builds and signs req.
func (s *KeySender) SignTx(req TxRequest) (*types.Transaction, error) {
	key, ok := s.keys[req.From]
	if !ok {
		return nil, fmt.Errorf("no private key for %s", req.From.Hex())
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	var inner types.TxData
	chainID := new(big.Int).SetUint64(req.ChainID)
	if req.Fees.IsEIP1559() {
		inner = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     req.Nonce,
			GasTipCap: req.Fees.MaxPriorityFeePerGas,
			GasFeeCap: req.Fees.MaxFeePerGas,
			Gas:       req.Gas,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		inner = &types.LegacyTx{
			Nonce:    req.Nonce,
			GasPrice: req.Fees.GasPrice,
			Gas:      req.Gas,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		}
	}
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(types.NewTx(inner), signer, key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// Send implements Sender.
func (s *KeySender) Send(ctx context.Context, req TxRequest) (common.Hash, error) {
	tx, err := s.SignTx(req)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	if _, err := s.client.SendRawTransaction(ctx, raw); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// NodeSender delegates signing to the node's unlocked accounts, as local dev
// nodes provide.
type NodeSender struct {
	client *Client
}

// NewNodeSender returns a sender using eth_sendTransaction.
func NewNodeSender(client *Client) *NodeSender {
	return &NodeSender{client: client}
}

// Accounts implements Sender.
func (s *NodeSender) Accounts(ctx context.Context) ([]common.Address, error) {
	return s.client.Accounts(ctx)
}

// Send implements Sender.
func (s *NodeSender) Send(ctx context.Context, req TxRequest) (common.Hash, error) {
	return s.client.SendTransaction(ctx, ToCallRequest(req))
}

// ToCallRequest converts req to its JSON-RPC form.
func ToCallRequest(req TxRequest) CallRequest {
	nonce := hexutil.Uint64(req.Nonce)
	out := CallRequest{
		From:  req.From,
		To:    req.To,
		Data:  req.Data,
		Nonce: &nonce,
	}
	if req.Value != nil {
		out.Value = (*hexutil.Big)(req.Value)
	}
	if req.Gas != 0 {
		gas := hexutil.Uint64(req.Gas)
		out.Gas = &gas
	}
	if req.Fees.IsEIP1559() {
		out.MaxFeePerGas = (*hexutil.Big)(req.Fees.MaxFeePerGas)
		out.MaxPriorityFeePerGas = (*hexutil.Big)(req.Fees.MaxPriorityFeePerGas)
	} else if req.Fees.GasPrice != nil {
		out.GasPrice = (*hexutil.Big)(req.Fees.GasPrice)
	}
	return out
}
