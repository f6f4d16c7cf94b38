package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
)

var (
	sender   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	deployed = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func deployInit(id string, deps ...string) journal.DeploymentInitialize {
	return journal.DeploymentInitialize{
		ExecutionInit: journal.ExecutionInit{
			FutureID:     id,
			FutureType:   ir.NamedArtifactContractDeployment,
			Strategy:     "basic",
			Dependencies: deps,
		},
		ArtifactID:      id,
		ContractName:    "Token",
		ConstructorArgs: ir.IRArray{ir.IRString("Gold")},
		Value:           big.NewInt(0),
		From:            sender,
	}
}

func onchainRequest(id string, n int) journal.NetworkInteractionRequest {
	return journal.NetworkInteractionRequest{
		FutureID: id,
		Interaction: journal.InteractionRequest{
			Kind:  journal.OnchainInteraction,
			ID:    n,
			Data:  []byte{0x60, 0x80},
			Value: big.NewInt(0),
			From:  sender,
		},
	}
}

func send(id string, n int, hash string, nonce uint64, gasPrice int64) journal.TransactionSend {
	return journal.TransactionSend{
		InteractionRef: journal.InteractionRef{FutureID: id, NetworkInteractionID: n},
		Hash:           common.HexToHash(hash),
		Fees:           journal.Fees{GasPrice: big.NewInt(gasPrice)},
		Nonce:          nonce,
	}
}

func ref(id string, n int) journal.InteractionRef {
	return journal.InteractionRef{FutureID: id, NetworkInteractionID: n}
}

func replay(t *testing.T, msgs ...journal.Message) *DeploymentState {
	t.Helper()
	s, err := Replay(msgs)
	require.NoError(t, err)
	return s
}

func onchain(t *testing.T, s *DeploymentState, id string) *OnchainInteraction {
	t.Helper()
	es, ok := s.Get(id)
	require.True(t, ok)
	ns, ok := es.(NetworkExecutionState)
	require.True(t, ok)
	oi, ok := LastInteraction(ns).(*OnchainInteraction)
	require.True(t, ok)
	return oi
}

func successfulDeployment() []journal.Message {
	return []journal.Message{
		journal.RunStart{RunID: "run-1", ChainID: 31337},
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		journal.TransactionPrepareSend{InteractionRef: ref("Mod:Token", 1), Nonce: 0},
		send("Mod:Token", 1, "0x01", 0, 100),
		journal.OnchainInteractionBumpFees{InteractionRef: ref("Mod:Token", 1)},
		send("Mod:Token", 1, "0x02", 0, 111),
		journal.TransactionConfirm{
			InteractionRef: ref("Mod:Token", 1),
			Hash:           common.HexToHash("0x02"),
			Receipt:        journal.Receipt{BlockNumber: 3, Status: 1, ContractAddress: &deployed},
		},
		journal.ExecutionComplete{
			Kind:     journal.TypeDeploymentComplete,
			FutureID: "Mod:Token",
			Result:   journal.ExecutionResult{Type: journal.ResultSuccess, Address: &deployed},
		},
	}
}

func TestReplay_Empty(t *testing.T) {
	s, err := Replay(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestReplay_Deterministic(t *testing.T) {
	msgs := successfulDeployment()
	assert.Equal(t, replay(t, msgs...), replay(t, msgs...))
}

func TestReplay_SuccessfulDeployment(t *testing.T) {
	s := replay(t, successfulDeployment()...)

	assert.Equal(t, uint64(31337), s.ChainID)
	es, ok := s.Get("Mod:Token")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, es.Meta().Status)
	assert.Equal(t, sender, es.Meta().From)

	addr, ok := ContractAddress(es)
	require.True(t, ok)
	assert.Equal(t, deployed, addr)
	assert.Equal(t, map[string]common.Address{"Mod:Token": deployed}, s.DeployedAddresses())
}

func TestApply_DoesNotModifyPreviousState(t *testing.T) {
	msgs := successfulDeployment()
	before := replay(t, msgs[:5]...)
	after, err := Apply(before, send("Mod:Token", 1, "0x03", 0, 200))
	require.NoError(t, err)

	assert.Len(t, onchain(t, before, "Mod:Token").Transactions, 1)
	assert.Len(t, onchain(t, after, "Mod:Token").Transactions, 2)
}

func TestAppendNetworkInteraction_InitialisesOnchain(t *testing.T) {
	s := replay(t, deployInit("Mod:Token"), onchainRequest("Mod:Token", 1))
	oi := onchain(t, s, "Mod:Token")

	assert.Empty(t, oi.Transactions)
	assert.Nil(t, oi.Nonce)
	assert.False(t, oi.ShouldBeResent)
}

func TestAppendNetworkInteraction_StaticCallRejectsOnchain(t *testing.T) {
	init := journal.StaticCallInitialize{
		ExecutionInit: journal.ExecutionInit{FutureID: "Mod:Token.name", FutureType: ir.StaticCall, Strategy: "basic"},
		FunctionName:  "name",
	}
	_, err := Replay([]journal.Message{init, onchainRequest("Mod:Token.name", 1)})
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
}

func TestAppendNetworkInteraction_DuplicateID(t *testing.T) {
	_, err := Replay([]journal.Message{deployInit("Mod:Token"), onchainRequest("Mod:Token", 1), onchainRequest("Mod:Token", 1)})
	assert.True(t, IsInvariantViolation(err))
}

func TestAppendTransaction_NonceInvariant(t *testing.T) {
	base := []journal.Message{
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 7, 100),
	}

	t.Run("first transaction sets nonce", func(t *testing.T) {
		oi := onchain(t, replay(t, base...), "Mod:Token")
		require.NotNil(t, oi.Nonce)
		assert.Equal(t, uint64(7), *oi.Nonce)
	})

	t.Run("same nonce appends", func(t *testing.T) {
		s := replay(t, append(base, send("Mod:Token", 1, "0x02", 7, 111))...)
		assert.Len(t, onchain(t, s, "Mod:Token").Transactions, 2)
	})

	t.Run("different nonce is an invariant violation", func(t *testing.T) {
		_, err := Replay(append(base, send("Mod:Token", 1, "0x02", 8, 111)))
		require.Error(t, err)
		assert.True(t, IsInvariantViolation(err))
		assert.Contains(t, err.Error(), "uses nonce 7, got 8")
	})

	t.Run("prepare send cannot change nonce", func(t *testing.T) {
		_, err := Replay(append(base, journal.TransactionPrepareSend{InteractionRef: ref("Mod:Token", 1), Nonce: 9}))
		assert.True(t, IsInvariantViolation(err))
	})
}

func TestAppendTransaction_ClearsResendFlag(t *testing.T) {
	s := replay(t,
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 0, 100),
		journal.OnchainInteractionDropped{InteractionRef: ref("Mod:Token", 1)},
	)
	assert.True(t, onchain(t, s, "Mod:Token").ShouldBeResent)

	s, err := Apply(s, send("Mod:Token", 1, "0x02", 0, 111))
	require.NoError(t, err)
	assert.False(t, onchain(t, s, "Mod:Token").ShouldBeResent)
}

func TestConfirmTransaction_DiscardsSiblings(t *testing.T) {
	base := []journal.Message{
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 0, 100),
		send("Mod:Token", 1, "0x02", 0, 111),
		send("Mod:Token", 1, "0x03", 0, 123),
	}
	for _, hash := range []string{"0x01", "0x02", "0x03"} {
		t.Run(hash, func(t *testing.T) {
			s := replay(t, append(base, journal.TransactionConfirm{
				InteractionRef: ref("Mod:Token", 1),
				Hash:           common.HexToHash(hash),
				Receipt:        journal.Receipt{BlockNumber: 1, Status: 1},
			})...)
			oi := onchain(t, s, "Mod:Token")
			require.Len(t, oi.Transactions, 1)
			assert.Equal(t, common.HexToHash(hash), oi.Transactions[0].Hash)
			assert.NotNil(t, oi.ConfirmedTransaction())
		})
	}
}

func TestConfirmTransaction_UnknownHash(t *testing.T) {
	_, err := Replay([]journal.Message{
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 0, 100),
		journal.TransactionConfirm{InteractionRef: ref("Mod:Token", 1), Hash: common.HexToHash("0x09")},
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestReplacedByUser_ResetsInteraction(t *testing.T) {
	s := replay(t,
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 4, 100),
		journal.OnchainInteractionReplacedByUser{InteractionRef: ref("Mod:Token", 1)},
	)
	oi := onchain(t, s, "Mod:Token")
	assert.Empty(t, oi.Transactions)
	assert.Nil(t, oi.Nonce)
	assert.False(t, oi.ShouldBeResent)

	// A fresh nonce is accepted after the reset.
	s, err := Apply(s, send("Mod:Token", 1, "0x02", 5, 100))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), *onchain(t, s, "Mod:Token").Nonce)
}

func TestTimeout_IsTerminal(t *testing.T) {
	s := replay(t,
		deployInit("Mod:Token"),
		onchainRequest("Mod:Token", 1),
		send("Mod:Token", 1, "0x01", 0, 100),
		journal.OnchainInteractionTimeout{InteractionRef: ref("Mod:Token", 1)},
	)
	es, _ := s.Get("Mod:Token")
	assert.Equal(t, StatusTimeout, es.Meta().Status)

	_, err := Apply(s, journal.ExecutionComplete{
		Kind:     journal.TypeDeploymentComplete,
		FutureID: "Mod:Token",
		Result:   journal.ExecutionResult{Type: journal.ResultSuccess, Address: &deployed},
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestComplete_StatusFromResult(t *testing.T) {
	tests := []struct {
		result journal.ResultType
		want   Status
	}{
		{journal.ResultSuccess, StatusSuccess},
		{journal.ResultStrategyHeld, StatusHeld},
		{journal.ResultRevertedTransaction, StatusFailed},
		{journal.ResultSimulationError, StatusFailed},
		{journal.ResultStrategyError, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.result), func(t *testing.T) {
			s := replay(t, deployInit("Mod:Token"), journal.ExecutionComplete{
				Kind:     journal.TypeDeploymentComplete,
				FutureID: "Mod:Token",
				Result:   journal.ExecutionResult{Type: tt.result},
			})
			es, _ := s.Get("Mod:Token")
			assert.Equal(t, tt.want, es.Meta().Status)
		})
	}
}

func TestComplete_WrongKind(t *testing.T) {
	_, err := Replay([]journal.Message{deployInit("Mod:Token"), journal.ExecutionComplete{
		Kind:     journal.TypeCallComplete,
		FutureID: "Mod:Token",
		Result:   journal.ExecutionResult{Type: journal.ResultSuccess},
	}})
	assert.True(t, IsInvariantViolation(err))
}

func TestStaticCallComplete(t *testing.T) {
	s := replay(t,
		journal.StaticCallInitialize{
			ExecutionInit: journal.ExecutionInit{FutureID: "Mod:Token.name", FutureType: ir.StaticCall, Strategy: "basic"},
			FunctionName:  "name",
		},
		journal.NetworkInteractionRequest{FutureID: "Mod:Token.name", Interaction: journal.InteractionRequest{
			Kind: journal.StaticCallInteraction, ID: 1, To: &deployed, From: sender,
		}},
		journal.StaticCallComplete{
			InteractionRef: ref("Mod:Token.name", 1),
			Result:         journal.RawStaticCallResult{ReturnData: []byte{1}, Success: true},
		},
	)
	es, _ := s.Get("Mod:Token.name")
	sc := LastInteraction(es.(NetworkExecutionState)).(*StaticCallInteraction)
	require.NotNil(t, sc.Result)
	assert.True(t, sc.Result.Success)
	assert.Equal(t, StatusStarted, es.Meta().Status)
}

func TestInitialize_CompletesLocalKinds(t *testing.T) {
	s := replay(t,
		journal.ContractAtInitialize{
			ExecutionInit:   journal.ExecutionInit{FutureID: "Mod:Existing", FutureType: ir.NamedArtifactContractAt, Strategy: "basic"},
			ContractName:    "Token",
			ContractAddress: deployed,
		},
		journal.EncodeFunctionCallInitialize{
			ExecutionInit: journal.ExecutionInit{FutureID: "Mod:encodeFunctionCall(Token.mint)", FutureType: ir.EncodeFunctionCall, Strategy: "basic"},
			FunctionName:  "mint",
			Result:        []byte{0xde, 0xad},
		},
	)
	assert.Equal(t, []string{"Mod:Existing", "Mod:encodeFunctionCall(Token.mint)"}, s.WithStatus(StatusSuccess))
	es, _ := s.Get("Mod:Existing")
	addr, ok := ContractAddress(es)
	require.True(t, ok)
	assert.Equal(t, deployed, addr)
}

func TestInitialize_Twice(t *testing.T) {
	_, err := Replay([]journal.Message{deployInit("Mod:Token"), deployInit("Mod:Token")})
	assert.True(t, IsInvariantViolation(err))
}

func TestWipeApply(t *testing.T) {
	s := replay(t, deployInit("Mod:Lib"), deployInit("Mod:Token", "Mod:Lib"))
	assert.Equal(t, []string{"Mod:Token"}, s.DependentsOf("Mod:Lib"))

	s, err := Apply(s, journal.WipeApply{FutureID: "Mod:Token"})
	require.NoError(t, err)
	_, ok := s.Get("Mod:Token")
	assert.False(t, ok)
	assert.Empty(t, s.DependentsOf("Mod:Lib"))

	_, err = Apply(s, journal.WipeApply{FutureID: "Mod:Token"})
	assert.True(t, IsInvariantViolation(err))
}

func TestPendingOnchainInteractions(t *testing.T) {
	s := replay(t,
		deployInit("Mod:A"),
		onchainRequest("Mod:A", 1),
		send("Mod:A", 1, "0x01", 0, 100),
		deployInit("Mod:B"),
		onchainRequest("Mod:B", 1),
	)
	pending := s.PendingOnchainInteractions()
	require.Len(t, pending, 1)
	assert.Equal(t, "Mod:A", pending[0].FutureID)
}
