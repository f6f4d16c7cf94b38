package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

func pendingDeployment(t *testing.T, nonce uint64, hashes ...common.Hash) *state.DeploymentState {
	t.Helper()
	ref := journal.InteractionRef{FutureID: "M:A", NetworkInteractionID: 1}
	msgs := []journal.Message{
		journal.RunStart{RunID: "r", ChainID: 31337},
		journal.DeploymentInitialize{
			ExecutionInit: journal.ExecutionInit{FutureID: "M:A", FutureType: ir.NamedArtifactContractDeployment, Strategy: "basic"},
			ArtifactID:    "M:A", ContractName: "Counter", Value: new(big.Int), From: deployer,
		},
		journal.NetworkInteractionRequest{FutureID: "M:A", Interaction: journal.InteractionRequest{
			Kind: journal.OnchainInteraction, ID: 1, Data: []byte{0x60}, Value: new(big.Int), From: deployer,
		}},
		journal.TransactionPrepareSend{InteractionRef: ref, Nonce: nonce},
	}
	for i, h := range hashes {
		msgs = append(msgs, journal.TransactionSend{
			InteractionRef: ref, Hash: h, Nonce: nonce,
			Fees: journal.Fees{GasPrice: big.NewInt(int64(10 + i*10))},
		})
	}
	st, err := state.Replay(msgs)
	require.NoError(t, err)
	return st
}

func TestNonceManager_SeedsFromJournal(t *testing.T) {
	c := chaintest.New()
	m := NewNonceManager(chain.NewClient(c), pendingDeployment(t, 4))

	n, err := m.Reserve(context.Background(), deployer, func(uint64) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestNonceManager_UsesPendingCount(t *testing.T) {
	c := chaintest.New(chaintest.WithManualMining())
	for i := range 3 {
		_, err := c.SendExternal(chaintest.Tx{From: deployer, Nonce: uint64(i), GasPrice: big.NewInt(1)})
		require.NoError(t, err)
	}
	m := NewNonceManager(chain.NewClient(c), nil)

	n, err := m.Reserve(context.Background(), deployer, func(uint64) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestNonceManager_FailedRecordDoesNotConsume(t *testing.T) {
	m := NewNonceManager(chain.NewClient(chaintest.New()), nil)
	ctx := context.Background()

	_, err := m.Reserve(ctx, deployer, func(uint64) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	n, err := m.Reserve(ctx, deployer, func(uint64) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestNonceManager_ConcurrentReservationsAreDistinct(t *testing.T) {
	m := NewNonceManager(chain.NewClient(chaintest.New()), nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uint64]bool{}
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.Reserve(context.Background(), deployer, func(uint64) error { return nil })
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestSyncNonces_Clean(t *testing.T) {
	c := chaintest.New()
	msgs, err := SyncNonces(context.Background(), chain.NewClient(c), pendingDeployment(t, 0), []common.Address{deployer})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSyncNonces_NonceConsumed(t *testing.T) {
	c := chaintest.New()
	_, err := c.SendExternal(chaintest.Tx{From: deployer, Nonce: 0, GasPrice: big.NewInt(1)})
	require.NoError(t, err)

	_, err = SyncNonces(context.Background(), chain.NewClient(c), pendingDeployment(t, 0), nil)
	require.Error(t, err)
	assert.True(t, deployerr.Is(err, deployerr.CodeNonceConsumed))
	assert.Contains(t, err.Error(), "track-tx")
}

func TestSyncNonces_ReplacedByUser(t *testing.T) {
	c := chaintest.New()
	_, err := c.SendExternal(chaintest.Tx{From: deployer, Nonce: 0, GasPrice: big.NewInt(1)})
	require.NoError(t, err)
	unknown := common.HexToHash("0xdead")

	msgs, err := SyncNonces(context.Background(), chain.NewClient(c), pendingDeployment(t, 0, unknown), []common.Address{deployer})
	require.NoError(t, err)
	assert.Equal(t, []journal.Message{journal.OnchainInteractionReplacedByUser{
		InteractionRef: journal.InteractionRef{FutureID: "M:A", NetworkInteractionID: 1},
	}}, msgs)
}

func TestSyncNonces_OwnPendingTransactionIsFine(t *testing.T) {
	c := chaintest.New(chaintest.WithManualMining())
	h, err := c.SendExternal(chaintest.Tx{From: deployer, Nonce: 0, GasPrice: big.NewInt(1)})
	require.NoError(t, err)

	msgs, err := SyncNonces(context.Background(), chain.NewClient(c), pendingDeployment(t, 0, h), []common.Address{deployer})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSyncNonces_PendingUserTransaction(t *testing.T) {
	c := chaintest.New(chaintest.WithManualMining())
	_, err := c.SendExternal(chaintest.Tx{From: deployer, Nonce: 0, GasPrice: big.NewInt(1)})
	require.NoError(t, err)

	_, err = SyncNonces(context.Background(), chain.NewClient(c), pendingDeployment(t, 1), []common.Address{deployer})
	require.Error(t, err)
	assert.True(t, deployerr.Is(err, deployerr.CodePendingUserTransaction))
}
