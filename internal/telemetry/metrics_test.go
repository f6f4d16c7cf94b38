package telemetry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/testutil"
)

func TestRecorder_CountsEvents(t *testing.T) {
	ctx := context.Background()
	r, err := NewRecorder()
	require.NoError(t, err)
	defer r.Shutdown(ctx)

	for _, e := range []engine.Event{
		{Type: engine.EventTransactionSend},
		{Type: engine.EventTransactionSend},
		{Type: engine.EventBumpFees},
		{Type: engine.EventTransactionConfirm},
		{Type: engine.EventFutureComplete, Status: state.StatusSuccess},
		{Type: engine.EventFutureComplete, Status: state.StatusSuccess},
		{Type: engine.EventFutureComplete, Status: state.StatusFailed},
		{Type: engine.EventRunStart},
	} {
		r.HandleEvent(e)
	}

	samples, err := r.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Sample{
		{Name: FuturesCompleted, Status: "FAILED", Value: 1},
		{Name: FuturesCompleted, Status: "SUCCESS", Value: 2},
		{Name: TransactionsConfirmed, Value: 1},
		{Name: TransactionsFeeBumps, Value: 1},
		{Name: TransactionsSent, Value: 2},
	}, samples)
}

func TestRecorder_AsEngineListener(t *testing.T) {
	ctx := context.Background()
	r, err := NewRecorder()
	require.NoError(t, err)
	defer r.Shutdown(ctx)

	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	c := chaintest.New(chaintest.WithAccounts(deployer))
	client := chain.NewClient(c)
	b := ir.NewModuleBuilder("M")
	counter := b.Contract("Counter", []ir.Argument{ir.Lit(1)})
	b.Call(counter, "inc", []ir.Argument{ir.Lit(2)})
	g, err := ir.NewGraph(b.Build())
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	cfg.RequiredConfirmations = 1
	e := engine.New(loader.NewEphemeralLoader(testutil.Resolver()), client, chain.NewNodeSender(client),
		engine.WithConfig(cfg),
		engine.WithArtifacts(testutil.Resolver()),
		engine.WithListener(r),
		engine.WithWallClock(testutil.NewFakeClock()))
	res, err := e.Execute(ctx, g, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	samples, err := r.Collect(ctx)
	require.NoError(t, err)
	assert.Contains(t, samples, Sample{Name: TransactionsSent, Value: 2})
	assert.Contains(t, samples, Sample{Name: TransactionsConfirmed, Value: 2})
	assert.Contains(t, samples, Sample{Name: FuturesCompleted, Status: "SUCCESS", Value: 2})
}
