package journal

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/ir"
)

var (
	sender   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	deployed = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func sampleMessages() []Message {
	ref := InteractionRef{FutureID: "Module1:Contract1", NetworkInteractionID: 1}
	return []Message{
		RunStart{RunID: "run-1", ChainID: 31337},
		DeploymentInitialize{
			ExecutionInit: ExecutionInit{
				FutureID:       "Module1:Contract1",
				FutureType:     ir.NamedArtifactContractDeployment,
				Strategy:       "basic",
				StrategyConfig: ir.IRObject{},
				Dependencies:   []string{},
			},
			ArtifactID:      "Module1:Contract1",
			ContractName:    "Contract1",
			ConstructorArgs: ir.IRArray{ir.IRString("hello"), ir.IRInt(42)},
			Libraries:       map[string]common.Address{},
			Value:           big.NewInt(0),
			From:            sender,
		},
		NetworkInteractionRequest{
			FutureID: "Module1:Contract1",
			Interaction: InteractionRequest{
				Kind:  OnchainInteraction,
				ID:    1,
				Data:  hexutil.Bytes{0x60, 0x80},
				Value: big.NewInt(0),
				From:  sender,
			},
		},
		TransactionPrepareSend{InteractionRef: ref, Nonce: 0},
		TransactionSend{
			InteractionRef: ref,
			Hash:           common.HexToHash("0x01"),
			Fees:           Fees{MaxFeePerGas: big.NewInt(2_000_000_000), MaxPriorityFeePerGas: big.NewInt(1_000_000_000)},
			Nonce:          0,
		},
		OnchainInteractionBumpFees{InteractionRef: ref},
		TransactionConfirm{
			InteractionRef: ref,
			Hash:           common.HexToHash("0x01"),
			Receipt: Receipt{
				BlockNumber:     3,
				BlockHash:       common.HexToHash("0x02"),
				Status:          1,
				ContractAddress: &deployed,
				Logs:            []Log{},
			},
		},
		ExecutionComplete{
			Kind:     TypeDeploymentComplete,
			FutureID: "Module1:Contract1",
			Result:   ExecutionResult{Type: ResultSuccess, Address: &deployed},
		},
		WipeApply{FutureID: "Module1:Contract1"},
	}
}

func TestMessageLineFormat(t *testing.T) {
	var buf bytes.Buffer
	for _, m := range sampleMessages() {
		line, err := Marshal(m)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "messages", buf.Bytes())
}

func TestMarshalUnmarshalPreservesMessages(t *testing.T) {
	for _, m := range sampleMessages() {
		t.Run(string(m.Type()), func(t *testing.T) {
			line, err := Marshal(m)
			require.NoError(t, err)

			back, err := Unmarshal(line)
			require.NoError(t, err)
			assert.Equal(t, m.Type(), back.Type())
			assert.Equal(t, encodeAll(t, m), encodeAll(t, back))
		})
	}
}

func TestUnmarshalRejectsUnknownAndMissingType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"SOMETHING_ELSE"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown type "SOMETHING_ELSE"`)

	_, err = Unmarshal([]byte(`{"futureId":"M:A"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

func TestFutureIDCoversMessages(t *testing.T) {
	for _, m := range sampleMessages()[1:] {
		assert.Equal(t, "Module1:Contract1", FutureID(m), m.Type())
	}
	assert.Equal(t, "", FutureID(RunStart{}))
}

func TestFeesExceeds(t *testing.T) {
	legacy := Fees{GasPrice: big.NewInt(100)}
	assert.True(t, Fees{GasPrice: big.NewInt(101)}.Exceeds(legacy))
	assert.False(t, Fees{GasPrice: big.NewInt(100)}.Exceeds(legacy))

	dynamic := Fees{MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(10)}
	assert.True(t, Fees{MaxFeePerGas: big.NewInt(111), MaxPriorityFeePerGas: big.NewInt(12)}.Exceeds(dynamic))
	assert.False(t, Fees{MaxFeePerGas: big.NewInt(111), MaxPriorityFeePerGas: big.NewInt(10)}.Exceeds(dynamic))
	assert.False(t, Fees{GasPrice: big.NewInt(1000)}.Exceeds(dynamic))
}

// encodeAll renders messages as journal lines. Comparing lines sidesteps
// big.Int's internal representation, which differs between constructors.
func encodeAll(t *testing.T, msgs ...Message) []string {
	t.Helper()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		line, err := Marshal(m)
		require.NoError(t, err)
		out[i] = string(line)
	}
	return out
}
