// Package config loads deployer.yaml and module parameter files.
//
// Defaults are applied first, then the file, then whatever flags the CLI
// sets on the result. Durations are YAML strings ("3m") and wei amounts are
// decimal strings, so values larger than 2^53 survive the round trip.
package config

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deployer/internal/engine"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/strategy"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "deployer.yaml"

// Config is the file form of the deployer settings.
type Config struct {
	// RequiredConfirmations of 0 means 5, or 1 on local chains.
	RequiredConfirmations uint64   `yaml:"requiredConfirmations"`
	BlockPollingInterval  Duration `yaml:"blockPollingInterval"`
	TimeBeforeBumpingFees Duration `yaml:"timeBeforeBumpingFees"`
	MaxFeeBumps           int      `yaml:"maxFeeBumps"`
	MaxConcurrency        int      `yaml:"maxConcurrency"`
	DisableFeeBumping     bool     `yaml:"disableFeeBumping"`

	MaxFeePerGasLimit    Wei `yaml:"maxFeePerGasLimit,omitempty"`
	MaxPriorityFeePerGas Wei `yaml:"maxPriorityFeePerGas,omitempty"`
	GasPrice             Wei `yaml:"gasPrice,omitempty"`

	Strategy       string                    `yaml:"strategy"`
	StrategyConfig map[string]map[string]any `yaml:"strategyConfig,omitempty"`

	DefaultSender string   `yaml:"defaultSender,omitempty"`
	Accounts      []string `yaml:"accounts,omitempty"`

	RPCURL         string         `yaml:"rpcURL,omitempty"`
	JournalBackend loader.Backend `yaml:"journalBackend,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		BlockPollingInterval:  Duration(engine.DefaultBlockPollingInterval),
		TimeBeforeBumpingFees: Duration(engine.DefaultTimeBeforeBumpingFees),
		MaxFeeBumps:           engine.DefaultMaxFeeBumps,
		MaxConcurrency:        engine.DefaultMaxConcurrency,
		Strategy:              "basic",
		RPCURL:                "http://127.0.0.1:8545",
		JournalBackend:        loader.BackendJSONL,
	}
}

// Load reads path over the defaults. A missing file is an error; callers
// that treat the file as optional check LoadOptional.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f, path)
}

// LoadOptional is Load, except a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Decode reads a config document from r. source names r in errors.
func Decode(r io.Reader, source string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	cfg.expandAccounts()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", source, err)
	}
	return cfg, nil
}

// expandAccounts replaces $VAR entries with the environment value.
func (c *Config) expandAccounts() {
	for i, a := range c.Accounts {
		if name, ok := strings.CutPrefix(a, "$"); ok {
			c.Accounts[i] = os.Getenv(name)
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BlockPollingInterval < 0 {
		errs = append(errs, fmt.Errorf("blockPollingInterval must not be negative"))
	}
	if c.TimeBeforeBumpingFees < 0 {
		errs = append(errs, fmt.Errorf("timeBeforeBumpingFees must not be negative"))
	}
	if c.MaxFeeBumps < 0 {
		errs = append(errs, fmt.Errorf("maxFeeBumps must not be negative"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("maxConcurrency must not be negative"))
	}
	if !slices.Contains(strategy.Names(), c.Strategy) {
		errs = append(errs, fmt.Errorf("unknown strategy %q, expected one of %s", c.Strategy, strings.Join(strategy.Names(), ", ")))
	}
	switch c.JournalBackend {
	case "", loader.BackendJSONL, loader.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown journalBackend %q", c.JournalBackend))
	}
	for i, a := range c.Accounts {
		if a == "" {
			errs = append(errs, fmt.Errorf("accounts[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Engine converts the execution knobs.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		RequiredConfirmations: c.RequiredConfirmations,
		BlockPollingInterval:  time.Duration(c.BlockPollingInterval),
		TimeBeforeBumpingFees: time.Duration(c.TimeBeforeBumpingFees),
		MaxFeeBumps:           c.MaxFeeBumps,
		MaxConcurrency:        c.MaxConcurrency,
		DisableFeeBumping:     c.DisableFeeBumping,
		MaxFeePerGasLimit:     c.MaxFeePerGasLimit.Int,
		MaxPriorityFeePerGas:  c.MaxPriorityFeePerGas.Int,
		GasPrice:              c.GasPrice.Int,
	}
}

// NewStrategy builds the configured strategy with its config section.
func (c *Config) NewStrategy() (strategy.Strategy, error) {
	raw := map[string]any{}
	for k, v := range c.StrategyConfig[c.Strategy] {
		raw[k] = v
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("strategyConfig.%s: %w", c.Strategy, err)
	}
	return strategy.New(c.Strategy, v.(ir.IRObject))
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Wei is an optional amount written as a decimal string.
type Wei struct {
	*big.Int
}

func (w *Wei) UnmarshalYAML(n *yaml.Node) error {
	n2, ok := new(big.Int).SetString(n.Value, 10)
	if !ok || n2.Sign() < 0 {
		return fmt.Errorf("line %d: %q is not a wei amount", n.Line, n.Value)
	}
	w.Int = n2
	return nil
}

func (w Wei) MarshalYAML() (any, error) {
	if w.Int == nil {
		return nil, nil
	}
	return w.String(), nil
}

func (w Wei) IsZero() bool { return w.Int == nil }
