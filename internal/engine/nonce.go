package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// NonceManager hands out nonces. Allocation is serialized per sender and
// covers the TRANSACTION_PREPARE_SEND write, so journal order matches nonce
// order for every account.
type NonceManager struct {
	client *chain.Client

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
	next  map[common.Address]uint64
}

// NewNonceManager returns a manager seeded with the highest nonce each sender
// already used in st.
func NewNonceManager(client *chain.Client, st *state.DeploymentState) *NonceManager {
	m := &NonceManager{
		client: client,
		locks:  make(map[common.Address]*sync.Mutex),
		next:   make(map[common.Address]uint64),
	}
	if st == nil {
		return m
	}
	for _, id := range st.SortedIDs() {
		ns, ok := st.ExecutionStates[id].(state.NetworkExecutionState)
		if !ok {
			continue
		}
		for _, ni := range ns.Interactions() {
			oi, ok := ni.(*state.OnchainInteraction)
			if !ok || oi.Nonce == nil {
				continue
			}
			if n := *oi.Nonce + 1; n > m.next[oi.From] {
				m.next[oi.From] = n
			}
		}
	}
	return m
}

func (m *NonceManager) lock(from common.Address) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[from]
	if !ok {
		l = &sync.Mutex{}
		m.locks[from] = l
	}
	return l
}

// Reserve picks the next nonce for from and calls record with it while
// holding the sender's lock. The nonce counts as used only if record
// succeeds.
func (m *NonceManager) Reserve(ctx context.Context, from common.Address, record func(nonce uint64) error) (uint64, error) {
	l := m.lock(from)
	l.Lock()
	defer l.Unlock()

	pending, err := m.client.TransactionCount(ctx, from, chain.TagPending)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	n := max(pending, m.next[from])
	m.mu.Unlock()

	if err := record(n); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.next[from] = n + 1
	m.mu.Unlock()
	return n, nil
}

// SyncNonces compares the journal's in-flight nonces with the chain before a
// run continues. It returns ONCHAIN_INTERACTION_REPLACED_BY_USER messages
// for interactions whose nonce was taken by a foreign transaction, and an
// error when the run cannot safely continue: a reserved nonce was consumed
// by an unknown transaction, or a foreign transaction is still pending.
func SyncNonces(ctx context.Context, client *chain.Client, st *state.DeploymentState, senders []common.Address) ([]journal.Message, error) {
	type counts struct{ mined, pending uint64 }
	cache := make(map[common.Address]counts)
	countsFor := func(addr common.Address) (counts, error) {
		if c, ok := cache[addr]; ok {
			return c, nil
		}
		mined, err := client.TransactionCount(ctx, addr, chain.TagLatest)
		if err != nil {
			return counts{}, err
		}
		pending, err := client.TransactionCount(ctx, addr, chain.TagPending)
		if err != nil {
			return counts{}, err
		}
		c := counts{mined: mined, pending: pending}
		cache[addr] = c
		return c, nil
	}

	var msgs []journal.Message
	ours := make(map[common.Address][]uint64)
	for _, p := range st.PendingOnchainInteractions() {
		es, _ := st.Get(p.FutureID)
		if es.Meta().Status.IsTerminal() {
			continue
		}
		oi := p.Interaction
		nonce := *oi.Nonce
		c, err := countsFor(oi.From)
		if err != nil {
			return nil, err
		}

		if len(oi.Transactions) == 0 {
			if c.mined > nonce {
				return nil, deployerr.ForFuture(deployerr.CodeNonceConsumed, p.FutureID,
					"nonce %d of %s was used by a transaction the deployer did not send; run track-tx with its hash, or wipe the future",
					nonce, oi.From.Hex())
			}
			continue
		}

		known, err := anyKnown(ctx, client, oi)
		if err != nil {
			return nil, err
		}
		if known {
			ours[oi.From] = append(ours[oi.From], nonce)
			continue
		}
		if c.mined > nonce {
			msgs = append(msgs, journal.OnchainInteractionReplacedByUser{
				InteractionRef: journal.InteractionRef{FutureID: p.FutureID, NetworkInteractionID: oi.ID},
			})
		}
	}

	for _, addr := range senders {
		c, err := countsFor(addr)
		if err != nil {
			return nil, err
		}
		for n := c.mined; n < c.pending; n++ {
			if !slices.Contains(ours[addr], n) {
				return nil, deployerr.New(deployerr.CodePendingUserTransaction,
					"account %s has a pending transaction with nonce %d that the deployer did not send; wait for it to confirm",
					addr.Hex(), n)
			}
		}
	}
	return msgs, nil
}

func anyKnown(ctx context.Context, client *chain.Client, oi *state.OnchainInteraction) (bool, error) {
	for _, tx := range oi.Transactions {
		t, err := client.TransactionByHash(ctx, tx.Hash)
		if err != nil {
			return false, err
		}
		if t != nil {
			return true, nil
		}
	}
	return false, nil
}
