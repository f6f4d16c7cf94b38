package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/testutil"
)

var deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func counterModule(start int) *ir.Module {
	b := ir.NewModuleBuilder("M")
	counter := b.Contract("Counter", []ir.Argument{ir.Lit(start)})
	b.Call(counter, "inc", []ir.Argument{ir.Lit(2)})
	return b.Build()
}

func options(c *chaintest.Chain, dir string, m *ir.Module) Options {
	return Options{
		Module:        m,
		DeploymentDir: dir,
		Provider:      c,
		Artifacts:     testutil.Resolver(),
		EngineOptions: []engine.Option{engine.WithWallClock(testutil.NewFakeClock())},
	}
}

func TestDeploy_DeploysAndResumes(t *testing.T) {
	ctx := context.Background()
	c := chaintest.New(chaintest.WithAccounts(deployer))
	dir := t.TempDir()

	res, err := Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)
	require.True(t, res.Succeeded(), "status %s: %+v", res.Status, res.Failed)
	assert.ElementsMatch(t, []string{"M:Counter", "M:Counter.inc"}, res.Successful)
	require.Contains(t, res.Contracts, "M:Counter")
	sent := c.RequestCount("eth_sendTransaction")
	assert.Equal(t, 2, sent)

	_, err = os.Stat(filepath.Join(dir, loader.DeployedAddressesFile))
	require.NoError(t, err)

	again, err := Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)
	assert.True(t, again.Succeeded())
	assert.Equal(t, res.Contracts, again.Contracts)
	assert.Equal(t, sent, c.RequestCount("eth_sendTransaction"), "a finished deployment sends nothing")
}

func TestDeploy_Ephemeral(t *testing.T) {
	c := chaintest.New(chaintest.WithAccounts(deployer))

	res, err := Deploy(context.Background(), options(c, "", counterModule(1)))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestDeploy_ValidationErrors(t *testing.T) {
	b := ir.NewModuleBuilder("M")
	b.Contract("Counter", []ir.Argument{ir.ParamRef{Module: "M", Name: "start"}})
	b.Contract("Missing", nil)
	c := chaintest.New(chaintest.WithAccounts(deployer))

	res, err := Deploy(context.Background(), options(c, t.TempDir(), b.Build()))
	require.NoError(t, err)
	assert.Equal(t, engine.StatusValidationError, res.Status)
	require.Len(t, res.ValidationErrors, 2)
	all := strings.Join(res.ValidationErrors, "\n")
	assert.Contains(t, all, "M:Counter: module parameter M.start requires a value")
	assert.Contains(t, all, "M:Missing: artifact Missing")
	assert.Zero(t, c.RequestCount("eth_chainId"), "validation happens before touching the chain")
}

func TestDeploy_Parameters(t *testing.T) {
	b := ir.NewModuleBuilder("M")
	b.Contract("Counter", []ir.Argument{ir.ParamRef{Module: "M", Name: "start"}})
	c := chaintest.New(chaintest.WithAccounts(deployer))
	opts := options(c, "", b.Build())
	opts.Parameters = resolve.Parameters{"M": {"start": ir.IRInt(7)}}

	res, err := Deploy(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestDeploy_ReconciliationError(t *testing.T) {
	ctx := context.Background()
	c := chaintest.New(chaintest.WithAccounts(deployer))
	dir := t.TempDir()

	_, err := Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)

	res, err := Deploy(ctx, options(c, dir, counterModule(5)))
	require.NoError(t, err)
	assert.Equal(t, engine.StatusReconciliationError, res.Status)
	assert.Equal(t, []engine.FutureMessage{{FutureID: "M:Counter", Message: "Argument at index 0 has been changed"}},
		res.ReconciliationFailures)
}

func TestDeploy_PreviousRunMustBeWiped(t *testing.T) {
	ctx := context.Background()
	c := chaintest.New(chaintest.WithAccounts(deployer))
	dir := t.TempDir()

	c.SetRevert(func(chaintest.Tx) ([]byte, bool) { return nil, true })
	res, err := Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)
	assert.Equal(t, engine.StatusExecutionError, res.Status)
	require.Len(t, res.Failed, 1)

	c.SetRevert(nil)
	res, err = Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPreviousRunError, res.Status)
	require.Len(t, res.PreviousRunErrors, 1)
	assert.Equal(t, "M:Counter", res.PreviousRunErrors[0].FutureID)

	require.NoError(t, Wipe(ctx, dir, "M:Counter"))
	res, err = Deploy(ctx, options(c, dir, counterModule(1)))
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestDeploy_ChainIDMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Deploy(ctx, options(chaintest.New(chaintest.WithAccounts(deployer)), dir, counterModule(1)))
	require.NoError(t, err)

	other := chaintest.New(chaintest.WithAccounts(deployer), chaintest.WithChainID(11155111))
	_, err = Deploy(ctx, options(other, dir, counterModule(1)))
	require.Error(t, err)
	assert.True(t, deployerr.Is(err, deployerr.CodeChainIDMismatch))
}

func TestDeploy_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	c := chaintest.New(chaintest.WithAccounts(deployer))
	dir := t.TempDir()
	opts := options(c, dir, counterModule(1))
	opts.Backend = loader.BackendSQLite

	res, err := Deploy(ctx, opts)
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	st, addrs, err := Status(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"M:Counter", "M:Counter.inc"}, st.WithStatus(state.StatusSuccess))
	assert.Equal(t, res.Contracts["M:Counter"].Address, addrs["M:Counter"])
}

func TestWipe_MissingDirectory(t *testing.T) {
	err := Wipe(context.Background(), filepath.Join(t.TempDir(), "nope"), "M:Counter")
	assert.True(t, deployerr.Is(err, deployerr.CodeDeploymentDirNotFound))
}

func TestStatus_Uninitialized(t *testing.T) {
	_, _, err := Status(context.Background(), t.TempDir())
	assert.True(t, deployerr.Is(err, deployerr.CodeUninitializedDeployment))
}
