package engine

import (
	"math/big"
	"time"
)

// Defaults for Config.
const (
	DefaultRequiredConfirmations = 5
	DefaultBlockPollingInterval  = time.Second
	DefaultTimeBeforeBumpingFees = 3 * time.Minute
	DefaultMaxFeeBumps           = 4
	DefaultMaxConcurrency        = 8
)

// Config holds the execution knobs.
type Config struct {
	RequiredConfirmations uint64
	BlockPollingInterval  time.Duration
	TimeBeforeBumpingFees time.Duration
	MaxFeeBumps           int
	MaxConcurrency        int
	DisableFeeBumping     bool

	// Fee overrides. MaxFeePerGasLimit caps maxFeePerGas (or gasPrice on
	// legacy chains); a bump that would cross it times the interaction out.
	MaxFeePerGasLimit    *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		RequiredConfirmations: DefaultRequiredConfirmations,
		BlockPollingInterval:  DefaultBlockPollingInterval,
		TimeBeforeBumpingFees: DefaultTimeBeforeBumpingFees,
		MaxFeeBumps:           DefaultMaxFeeBumps,
		MaxConcurrency:        DefaultMaxConcurrency,
	}
}

// IsLocalChain reports whether id is a local development chain, where one
// confirmation is enough.
func IsLocalChain(id uint64) bool {
	return id == 31337 || id == 1337
}

func (c Config) withDefaults() Config {
	if c.RequiredConfirmations == 0 {
		c.RequiredConfirmations = 1
	}
	if c.BlockPollingInterval <= 0 {
		c.BlockPollingInterval = DefaultBlockPollingInterval
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxFeeBumps < 0 {
		c.MaxFeeBumps = 0
	}
	return c
}
