package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/strategy"
)

const salt = "0x000000000000000000000000000000000000000000000000000000000000002a"

func TestDecode_Defaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""), "empty")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	ec := cfg.Engine()
	assert.Zero(t, ec.RequiredConfirmations, "zero leaves the choice to the chain")
	assert.Equal(t, engine.DefaultBlockPollingInterval, ec.BlockPollingInterval)
	assert.Equal(t, engine.DefaultTimeBeforeBumpingFees, ec.TimeBeforeBumpingFees)
	assert.Equal(t, engine.DefaultMaxFeeBumps, ec.MaxFeeBumps)
	assert.Nil(t, ec.GasPrice)
}

func TestDecode_Full(t *testing.T) {
	t.Setenv("DEPLOYER_TEST_KEY", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	doc := `
requiredConfirmations: 3
blockPollingInterval: 250ms
timeBeforeBumpingFees: 90s
maxFeeBumps: 2
maxConcurrency: 1
disableFeeBumping: true
maxFeePerGasLimit: "100000000000000000000000"
gasPrice: 1000000000
strategy: create2
strategyConfig:
  create2:
    salt: "` + salt + `"
accounts:
  - $DEPLOYER_TEST_KEY
rpcURL: https://rpc.example.org
journalBackend: sqlite
`
	cfg, err := Decode(strings.NewReader(doc), "test")
	require.NoError(t, err)

	ec := cfg.Engine()
	assert.Equal(t, uint64(3), ec.RequiredConfirmations)
	assert.Equal(t, 250*time.Millisecond, ec.BlockPollingInterval)
	assert.Equal(t, 90*time.Second, ec.TimeBeforeBumpingFees)
	assert.Equal(t, 2, ec.MaxFeeBumps)
	assert.Equal(t, 1, ec.MaxConcurrency)
	assert.True(t, ec.DisableFeeBumping)
	limit, _ := new(big.Int).SetString("100000000000000000000000", 10)
	assert.Equal(t, limit, ec.MaxFeePerGasLimit)
	assert.Equal(t, big.NewInt(1_000_000_000), ec.GasPrice)
	assert.Nil(t, ec.MaxPriorityFeePerGas)

	assert.Equal(t, []string{"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"}, cfg.Accounts)
	assert.Equal(t, loader.BackendSQLite, cfg.JournalBackend)

	s, err := cfg.NewStrategy()
	require.NoError(t, err)
	assert.Equal(t, strategy.Create2Name, s.Name())
	assert.Equal(t, ir.IRString(salt), s.Config()["salt"])
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "unknown field", doc: "confirmations: 2", want: "field confirmations not found"},
		{name: "negative bumps", doc: "maxFeeBumps: -1", want: "maxFeeBumps must not be negative"},
		{name: "unknown strategy", doc: "strategy: create3", want: `unknown strategy "create3"`},
		{name: "bad duration", doc: "blockPollingInterval: 5", want: "missing unit"},
		{name: "bad wei", doc: "gasPrice: lots", want: `"lots" is not a wei amount`},
		{name: "bad backend", doc: "journalBackend: postgres", want: `unknown journalBackend "postgres"`},
		{name: "unset env account", doc: "accounts: [$DEPLOYER_TEST_UNSET]", want: "accounts[0] is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), "test")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOptional(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("maxConcurrency: 2\n"), 0o644))
	cfg, err = LoadOptional(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxConcurrency)

	_, err = Load(filepath.Join(dir, "other.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewStrategy_MissingSalt(t *testing.T) {
	cfg := Default()
	cfg.Strategy = strategy.Create2Name
	_, err := cfg.NewStrategy()
	assert.ErrorContains(t, err, "salt is required")
}
