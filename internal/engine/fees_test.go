package engine

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/journal"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), chaintest.Gwei)
}

func TestFeePolicy_SuggestEIP1559(t *testing.T) {
	client := chain.NewClient(chaintest.New())
	p := NewFeePolicy(client, DefaultConfig(), slog.Default())

	fees, err := p.Suggest(context.Background())
	require.NoError(t, err)
	assert.True(t, fees.IsEIP1559())
	assert.Equal(t, gwei(3), fees.MaxFeePerGas, "2*baseFee + priority")
	assert.Equal(t, gwei(1), fees.MaxPriorityFeePerGas)
}

func TestFeePolicy_SuggestLegacy(t *testing.T) {
	client := chain.NewClient(chaintest.New(chaintest.WithLegacyFees()))
	p := NewFeePolicy(client, DefaultConfig(), slog.Default())

	fees, err := p.Suggest(context.Background())
	require.NoError(t, err)
	assert.False(t, fees.IsEIP1559())
	assert.Equal(t, gwei(1), fees.GasPrice)
}

func TestFeePolicy_Overrides(t *testing.T) {
	client := chain.NewClient(chaintest.New())

	cfg := DefaultConfig()
	cfg.MaxPriorityFeePerGas = gwei(2)
	fees, err := NewFeePolicy(client, cfg, slog.Default()).Suggest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gwei(4), fees.MaxFeePerGas)
	assert.Equal(t, gwei(2), fees.MaxPriorityFeePerGas)

	cfg = DefaultConfig()
	cfg.GasPrice = gwei(7)
	fees, err = NewFeePolicy(client, cfg, slog.Default()).Suggest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, journal.Fees{GasPrice: gwei(7)}, fees)
}

func TestFeePolicy_CapClampsSuggestion(t *testing.T) {
	client := chain.NewClient(chaintest.New())
	cfg := DefaultConfig()
	cfg.MaxFeePerGasLimit = big.NewInt(500)

	fees, err := NewFeePolicy(client, cfg, slog.Default()).Suggest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), fees.MaxFeePerGas)
	assert.Equal(t, big.NewInt(500), fees.MaxPriorityFeePerGas, "priority never exceeds the max fee")
}

func TestBump(t *testing.T) {
	tests := []struct {
		name      string
		prev      journal.Fees
		suggested journal.Fees
		want      journal.Fees
	}{
		{
			name:      "ten percent floor",
			prev:      journal.Fees{MaxFeePerGas: big.NewInt(1000), MaxPriorityFeePerGas: big.NewInt(100)},
			suggested: journal.Fees{MaxFeePerGas: big.NewInt(900), MaxPriorityFeePerGas: big.NewInt(50)},
			want:      journal.Fees{MaxFeePerGas: big.NewInt(1101), MaxPriorityFeePerGas: big.NewInt(111)},
		},
		{
			name:      "higher suggestion wins",
			prev:      journal.Fees{MaxFeePerGas: big.NewInt(1000), MaxPriorityFeePerGas: big.NewInt(100)},
			suggested: journal.Fees{MaxFeePerGas: big.NewInt(5000), MaxPriorityFeePerGas: big.NewInt(50)},
			want:      journal.Fees{MaxFeePerGas: big.NewInt(5000), MaxPriorityFeePerGas: big.NewInt(111)},
		},
		{
			name:      "legacy",
			prev:      journal.Fees{GasPrice: big.NewInt(10)},
			suggested: journal.Fees{GasPrice: big.NewInt(10)},
			want:      journal.Fees{GasPrice: big.NewInt(12)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bump(tt.prev, tt.suggested)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Exceeds(tt.prev))
		})
	}
}

func TestBump_StrictlyIncreasesFromOneWei(t *testing.T) {
	prev := journal.Fees{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(0)}
	for range 5 {
		next := Bump(prev, journal.Fees{MaxFeePerGas: big.NewInt(0), MaxPriorityFeePerGas: big.NewInt(0)})
		require.True(t, next.Exceeds(prev))
		prev = next
	}
}
