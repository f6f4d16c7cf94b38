// Package tracker adopts transactions a user sent by hand into a
// deployment's journal.
//
// A transaction is matched to an onchain interaction by sender and nonce:
//
//	interaction has no transaction yet, same to/data/value  -> TRANSACTION_SEND
//	interaction has no transaction yet, different details   -> replaced by user
//	interaction sent the same hash                          -> KNOWN_TRANSACTION
//	interaction sent a different hash                       -> replaced by user
//	no interaction with that sender and nonce               -> MATCHING_NONCE_NOT_FOUND
//
// A replacement is only accepted once it has the required confirmations.
package tracker

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/state"
)

// TrackTransaction opens the deployment in deploymentDir and tracks txHash.
// It returns a message for the user describing what was recorded.
func TrackTransaction(ctx context.Context, deploymentDir string, txHash common.Hash, provider chain.Provider, requiredConfirmations uint64) (string, error) {
	l, err := loader.OpenFileLoader(deploymentDir)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return Track(ctx, l, chain.NewClient(provider), txHash, requiredConfirmations)
}

// Track matches txHash against the journal of l and records the outcome.
func Track(ctx context.Context, l loader.Loader, client *chain.Client, txHash common.Hash, requiredConfirmations uint64) (string, error) {
	msgs, err := l.ReadFromJournal(ctx)
	if err != nil {
		return "", fmt.Errorf("read journal: %w", err)
	}
	if len(msgs) == 0 {
		return "", deployerr.New(deployerr.CodeUninitializedDeployment, "deployment has not been initialized")
	}
	st, err := state.Replay(msgs)
	if err != nil {
		return "", fmt.Errorf("replay journal: %w", err)
	}

	tx, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("get transaction %s: %w", txHash.Hex(), err)
	}
	if tx == nil {
		return "", deployerr.New(deployerr.CodeTransactionNotFound, "transaction %s not found", txHash.Hex())
	}

	match, ok := find(st, tx.From, tx.Nonce)
	if !ok {
		return "", deployerr.New(deployerr.CodeMatchingNonceNotFound,
			"matching nonce not found: no interaction of this deployment uses nonce %d of %s", tx.Nonce, tx.From.Hex())
	}
	oi := match.Interaction
	ref := journal.InteractionRef{FutureID: match.FutureID, NetworkInteractionID: oi.ID}

	for _, sent := range oi.Transactions {
		if sent.Hash == txHash {
			return "", deployerr.ForFuture(deployerr.CodeKnownTransaction, match.FutureID,
				"transaction %s was sent by this deployment already", txHash.Hex())
		}
	}

	if len(oi.Transactions) == 0 && sameRequest(oi, tx) {
		m := journal.TransactionSend{InteractionRef: ref, Hash: txHash, Fees: feesOf(tx), Nonce: tx.Nonce}
		if err := record(ctx, l, st, m); err != nil {
			return "", err
		}
		return fmt.Sprintf("Transaction %s is now tracked as the transaction of %s. Run the deployment again to continue.",
			txHash.Hex(), match.FutureID), nil
	}

	confirmations, err := confirmationsOf(ctx, client, tx)
	if err != nil {
		return "", err
	}
	if confirmations < requiredConfirmations {
		return "", deployerr.ForFuture(deployerr.CodeInsufficientConfirmations, match.FutureID,
			"transaction %s replaced the transaction of %s but has %d of %d required confirmations, try again later",
			txHash.Hex(), match.FutureID, confirmations, requiredConfirmations)
	}
	if err := record(ctx, l, st, journal.OnchainInteractionReplacedByUser{InteractionRef: ref}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Transaction %s replaced the transaction of %s. The deployment will send it again with a new nonce when it is run.",
		txHash.Hex(), match.FutureID), nil
}

// find returns the onchain interaction of st that holds nonce for from.
func find(st *state.DeploymentState, from common.Address, nonce uint64) (state.PendingInteraction, bool) {
	for _, id := range st.SortedIDs() {
		es, _ := st.Get(id)
		ns, ok := es.(state.NetworkExecutionState)
		if !ok {
			continue
		}
		for _, ni := range ns.Interactions() {
			oi, ok := ni.(*state.OnchainInteraction)
			if !ok || oi.Nonce == nil || *oi.Nonce != nonce || oi.From != from {
				continue
			}
			return state.PendingInteraction{FutureID: id, Interaction: oi}, true
		}
	}
	return state.PendingInteraction{}, false
}

func sameRequest(oi *state.OnchainInteraction, tx *chain.Transaction) bool {
	if (oi.To == nil) != (tx.To == nil) {
		return false
	}
	if oi.To != nil && *oi.To != *tx.To {
		return false
	}
	value := oi.Value
	if value == nil {
		value = new(big.Int)
	}
	return bytes.Equal(oi.Data, tx.Input) && value.Cmp(tx.Value) == 0
}

func feesOf(tx *chain.Transaction) journal.Fees {
	if tx.MaxFeePerGas != nil {
		return journal.Fees{MaxFeePerGas: tx.MaxFeePerGas, MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas}
	}
	return journal.Fees{GasPrice: tx.GasPrice}
}

func confirmationsOf(ctx context.Context, client *chain.Client, tx *chain.Transaction) (uint64, error) {
	if tx.BlockNumber == nil {
		return 0, nil
	}
	latest, err := client.LatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest.Number < *tx.BlockNumber {
		return 0, nil
	}
	return latest.Number - *tx.BlockNumber + 1, nil
}

func record(ctx context.Context, l loader.Loader, st *state.DeploymentState, m journal.Message) error {
	if _, err := state.Apply(st, m); err != nil {
		return fmt.Errorf("apply %s: %w", m.Type(), err)
	}
	if err := l.RecordToJournal(ctx, m); err != nil {
		return fmt.Errorf("record %s: %w", m.Type(), err)
	}
	return nil
}
