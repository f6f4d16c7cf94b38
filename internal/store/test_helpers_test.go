package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestMessages returns a short journal touching two futures.
func createTestMessages() []journal.Message {
	sender := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	return []journal.Message{
		journal.RunStart{RunID: "run-1", ChainID: 31337},
		journal.DeploymentInitialize{
			ExecutionInit: journal.ExecutionInit{
				FutureID:   "Mod:Token",
				FutureType: ir.NamedArtifactContractDeployment,
				Strategy:   "basic",
			},
			ArtifactID:      "Mod:Token",
			ContractName:    "Token",
			ConstructorArgs: ir.IRArray{ir.IRString("Gold")},
			Value:           big.NewInt(0),
			From:            sender,
		},
		journal.SendDataInitialize{
			ExecutionInit: journal.ExecutionInit{
				FutureID:   "Mod:Fund",
				FutureType: ir.SendData,
				Strategy:   "basic",
			},
			To:    sender,
			Value: big.NewInt(5),
			From:  sender,
		},
		journal.NetworkInteractionRequest{
			FutureID: "Mod:Token",
			Interaction: journal.InteractionRequest{
				Kind:  journal.OnchainInteraction,
				ID:    1,
				Data:  []byte{0x60, 0x80},
				Value: big.NewInt(0),
				From:  sender,
			},
		},
		journal.TransactionPrepareSend{
			InteractionRef: journal.InteractionRef{FutureID: "Mod:Token", NetworkInteractionID: 1},
			Nonce:          0,
		},
	}
}

// encodeAll renders messages as journal lines for comparison.
func encodeAll(t *testing.T, msgs ...journal.Message) []string {
	t.Helper()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		b, err := journal.Marshal(m)
		if err != nil {
			t.Fatalf("Marshal(%T) failed: %v", m, err)
		}
		out[i] = string(b)
	}
	return out
}
