package chain_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/journal"
)

// Well-known development key (account #0 of Hardhat and Anvil).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var devAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestRPCProvider_Request(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": req["id"]}
		switch req["method"] {
		case "eth_chainId":
			resp["result"] = "0x7a69"
		case "eth_call":
			resp["error"] = map[string]any{"code": 3, "message": "execution reverted", "data": "0x08c379a0"}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	p, err := chain.Dial(context.Background(), server.URL)
	require.NoError(t, err)
	defer p.Close()
	c := chain.NewClient(p)

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), id)

	_, err = c.Call(context.Background(), chain.CallRequest{From: devAddr}, chain.TagLatest)
	require.Error(t, err)
	data, ok := chain.RevertData(err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, data)

	var rpcErr *chain.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 3, rpcErr.Code)
}

func TestKeySender_SendsSignedTransactions(t *testing.T) {
	ctx := context.Background()
	fake := chaintest.New(chaintest.WithManualMining())
	c := chain.NewClient(fake)

	s, err := chain.NewKeySender(c, devKey)
	require.NoError(t, err)
	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{devAddr}, accounts)

	hash, err := s.Send(ctx, chain.TxRequest{
		ChainID: 31337,
		From:    devAddr,
		Data:    []byte{0x60, 0x80},
		Nonce:   0,
		Gas:     100_000,
		Fees: journal.Fees{
			MaxFeePerGas:         big.NewInt(3_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		},
	})
	require.NoError(t, err)

	tx, err := c.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, devAddr, tx.From)
	assert.Nil(t, tx.BlockNumber)

	pending, err := c.TransactionCount(ctx, devAddr, chain.TagPending)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pending)
	latest, err := c.TransactionCount(ctx, devAddr, chain.TagLatest)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), latest)

	receipt, err := c.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, receipt)

	fake.Mine()

	receipt, err = c.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	require.NotNil(t, receipt.ContractAddress)
	assert.Equal(t, crypto.CreateAddress(devAddr, 0), *receipt.ContractAddress)

	block, err := c.LatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Number)
	assert.Equal(t, chaintest.Gwei, block.BaseFee)
}

func TestKeySender_UnknownAccount(t *testing.T) {
	s, err := chain.NewKeySender(chain.NewClient(chaintest.New()), devKey)
	require.NoError(t, err)
	_, err = s.Send(context.Background(), chain.TxRequest{From: common.HexToAddress("0x01")})
	assert.ErrorContains(t, err, "no private key")
}

func TestNodeSender_ReplacementNeedsHigherFees(t *testing.T) {
	ctx := context.Background()
	fake := chaintest.New(chaintest.WithManualMining(), chaintest.WithAccounts(devAddr), chaintest.WithLegacyFees())
	c := chain.NewClient(fake)
	s := chain.NewNodeSender(c)

	req := chain.TxRequest{From: devAddr, To: &devAddr, Nonce: 0, Fees: journal.Fees{GasPrice: big.NewInt(100)}}
	first, err := s.Send(ctx, req)
	require.NoError(t, err)

	_, err = s.Send(ctx, req)
	assert.ErrorContains(t, err, "replacement transaction underpriced")

	req.Fees.GasPrice = big.NewInt(111)
	second, err := s.Send(ctx, req)
	require.NoError(t, err)

	gone, err := c.TransactionByHash(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, gone)

	fake.Mine()
	receipt, err := c.TransactionReceipt(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	_, err = s.Send(ctx, req)
	assert.ErrorContains(t, err, "nonce too low")
}

func TestEstimateGas_Revert(t *testing.T) {
	fake := chaintest.New()
	fake.SetRevert(func(chaintest.Tx) ([]byte, bool) { return []byte{0xde, 0xad}, true })
	_, err := chain.NewClient(fake).EstimateGas(context.Background(), chain.CallRequest{From: devAddr})
	require.Error(t, err)
	data, ok := chain.RevertData(err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad}, data)
}
