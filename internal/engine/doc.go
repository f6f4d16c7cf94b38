// Package engine executes a module's future graph against a chain.
//
// ARCHITECTURE:
//
// Batches:
// A batch is every future that is not terminal and whose dependencies all
// succeeded, in topological order. Each future of a batch advances on a
// bounded ants worker pool until it completes or has to wait for the chain.
// When any future waits, the engine sleeps one polling interval and builds
// the next batch from the new state.
//
// Journal first:
// Every state change is a journal message. apply folds the message into the
// current state, records it, and only then makes the new state visible. A
// message the reducers reject never reaches the journal. Resuming a
// deployment is replaying its journal and calling Execute again.
//
// Network interactions:
//
//  1. The strategy asks for an onchain interaction or a static call.
//  2. Onchain: estimate gas (a revert completes the future with
//     SIMULATION_ERROR), reserve a nonce and journal
//     TRANSACTION_PREPARE_SEND, pick fees, broadcast, journal
//     TRANSACTION_SEND.
//  3. Poll: confirm once the receipt has RequiredConfirmations, resend when
//     every candidate left the mempool, bump fees after
//     TimeBeforeBumpingFees, time out when the bump quota or the fee cap is
//     exhausted.
//  4. Hand the confirmed interaction back to the strategy.
//
// Events:
// Listeners see one Event per journal message plus batch and completion
// events, in journal order, on a dedicated goroutine. Event.Seq comes from a
// logical clock and is strictly increasing within a run.
package engine
