package engine

import (
	"fmt"
	"math/big"

	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// BumpQuota limits how often one onchain interaction is resent, whether
// because it was stuck (fee bump) or dropped from the mempool. It also
// enforces the maxFeePerGas cap.
//
// The count comes from the interaction itself (one transaction per attempt),
// so the quota survives restarts without extra bookkeeping.
//
// Together with the confirmation wait this guarantees every onchain
// interaction eventually confirms or times out.
type BumpQuota struct {
	maxBumps    int
	maxFeeLimit *big.Int
}

// NewBumpQuota creates a quota. A nil maxFeeLimit means no cap.
func NewBumpQuota(maxBumps int, maxFeeLimit *big.Int) *BumpQuota {
	return &BumpQuota{maxBumps: maxBumps, maxFeeLimit: maxFeeLimit}
}

// Check reports whether oi may be resent.
func (q *BumpQuota) Check(futureID string, oi *state.OnchainInteraction) error {
	if resends := len(oi.Transactions); resends > q.maxBumps {
		return &BumpsExceededError{
			FutureID:      futureID,
			InteractionID: oi.ID,
			Attempts:      resends,
			Limit:         q.maxBumps,
		}
	}
	return nil
}

// CheckFees reports whether fees stay under the maxFeePerGas cap.
func (q *BumpQuota) CheckFees(futureID string, oi *state.OnchainInteraction, fees journal.Fees) error {
	if q.maxFeeLimit == nil {
		return nil
	}
	price := fees.MaxFeePerGas
	if !fees.IsEIP1559() {
		price = fees.GasPrice
	}
	if price.Cmp(q.maxFeeLimit) > 0 {
		return &BumpsExceededError{
			FutureID:      futureID,
			InteractionID: oi.ID,
			Attempts:      len(oi.Transactions),
			Limit:         q.maxBumps,
			FeeCap:        q.maxFeeLimit,
		}
	}
	return nil
}

// MaxBumps returns the configured number of resends.
func (q *BumpQuota) MaxBumps() int {
	return q.maxBumps
}

// BumpsExceededError is returned when an interaction may not be resent. The
// engine turns it into ONCHAIN_INTERACTION_TIMEOUT.
type BumpsExceededError struct {
	FutureID      string
	InteractionID int
	Attempts      int
	Limit         int
	// FeeCap is set when the maxFeePerGas cap, not the count, was hit.
	FeeCap *big.Int
}

// Error implements the error interface.
func (e *BumpsExceededError) Error() string {
	if e.FeeCap != nil {
		return fmt.Sprintf("future %s interaction %d: fees would exceed the cap of %s wei",
			e.FutureID, e.InteractionID, e.FeeCap)
	}
	return fmt.Sprintf("future %s interaction %d: exceeded %d fee bumps (%d attempts)",
		e.FutureID, e.InteractionID, e.Limit, e.Attempts)
}
