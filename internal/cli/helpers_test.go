package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/chain/chaintest"
	"github.com/roach88/deployer/internal/testutil"
)

func init() {
	color.NoColor = true
}

var account = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

const counterCUE = `package deploy

modules: Counter: futures: {
	Counter: {kind: "contract", args: [{param: "start", default: 0}]}
	inc: {kind: "call", contract: "Counter", function: "inc", args: [1]}
}
`

const fastConfig = `requiredConfirmations: 1
blockPollingInterval: 10ms
`

// cliEnv runs commands against a fake chain.
type cliEnv struct {
	chain  *chaintest.Chain
	dialed []string
	asked  []string
	answer bool
}

func newEnv(opts ...chaintest.Option) *cliEnv {
	return &cliEnv{
		chain:  chaintest.New(append([]chaintest.Option{chaintest.WithAccounts(account)}, opts...)...),
		answer: true,
	}
}

// run executes the root command and returns what it wrote to stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommandWithOptions(&RootOptions{
		Dial: func(_ context.Context, url string) (chain.Provider, error) {
			e.dialed = append(e.dialed, url)
			return e.chain, nil
		},
		Confirm: func(label string) (bool, error) {
			e.asked = append(e.asked, label)
			return e.answer, nil
		},
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeModule creates a module directory holding the Counter module, its
// artifact and a config with fast polling. It returns the directory and the
// config path.
func writeModule(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.cue"), []byte(counterCUE), 0644))

	artifactsDir := filepath.Join(dir, "artifacts", "contracts", "Counter.sol")
	require.NoError(t, os.MkdirAll(artifactsDir, 0755))
	data, err := json.Marshal(testutil.CounterArtifact())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(artifactsDir, "Counter.json"), data, 0644))

	cfg := filepath.Join(dir, "deployer.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(fastConfig), 0644))
	return dir, cfg
}

// deployCounter deploys the Counter module and returns its deployment
// directory.
func deployCounter(t *testing.T, e *cliEnv) string {
	t.Helper()
	moduleDir, cfg := writeModule(t)
	_, err := e.run(t, "deploy", moduleDir, "--config", cfg)
	require.NoError(t, err)
	return filepath.Join(moduleDir, "deployments", "chain-31337")
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}
