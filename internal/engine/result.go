package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// ResultStatus summarizes a deployment attempt.
type ResultStatus string

const (
	StatusSuccessfulDeployment ResultStatus = "SUCCESSFUL_DEPLOYMENT"
	StatusExecutionError       ResultStatus = "EXECUTION_ERROR"
	StatusReconciliationError  ResultStatus = "RECONCILIATION_ERROR"
	StatusPreviousRunError     ResultStatus = "PREVIOUS_RUN_ERROR"
	StatusValidationError      ResultStatus = "VALIDATION_ERROR"
)

// Result is what a deployment reports back.
type Result struct {
	RunID  string       `json:"runId,omitempty"`
	Status ResultStatus `json:"status"`

	Successful []string            `json:"successful,omitempty"`
	Started    []string            `json:"started,omitempty"`
	Failed     []FailedFuture      `json:"failed,omitempty"`
	Timeout    []TimedOutFuture    `json:"timeout,omitempty"`
	Held       []HeldFuture        `json:"held,omitempty"`
	Contracts  map[string]Contract `json:"contracts,omitempty"`

	ReconciliationFailures []FutureMessage `json:"reconciliationFailures,omitempty"`
	PreviousRunErrors      []FutureMessage `json:"previousRunErrors,omitempty"`
	ValidationErrors       []string        `json:"validationErrors,omitempty"`
	Warnings               []string        `json:"warnings,omitempty"`
}

// FailedFuture is a future that ended in FAILED.
type FailedFuture struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// TimedOutFuture is a future whose onchain interaction timed out.
type TimedOutFuture struct {
	ID            string `json:"id"`
	InteractionID int    `json:"networkInteractionId"`
}

// HeldFuture is a future a strategy put on hold.
type HeldFuture struct {
	ID     string `json:"id"`
	HeldID int    `json:"heldId"`
	Reason string `json:"reason"`
}

// Contract is a deployed or referenced contract.
type Contract struct {
	ID           string         `json:"id"`
	ContractName string         `json:"contractName"`
	Address      common.Address `json:"address"`
}

// FutureMessage attaches a message to a future.
type FutureMessage struct {
	FutureID string `json:"futureId"`
	Message  string `json:"message"`
}

// Succeeded reports whether every future of the module succeeded.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccessfulDeployment
}

// BuildResult summarizes st for the futures of g.
func BuildResult(runID string, g *ir.Graph, st *state.DeploymentState) *Result {
	r := &Result{RunID: runID, Status: StatusSuccessfulDeployment, Contracts: make(map[string]Contract)}
	for _, f := range g.Futures() {
		id := f.ID()
		es, ok := st.Get(id)
		if !ok {
			r.Status = StatusExecutionError
			continue
		}
		meta := es.Meta()
		switch meta.Status {
		case state.StatusSuccess:
			r.Successful = append(r.Successful, id)
			if c, ok := contractOf(es); ok {
				r.Contracts[id] = c
			}
			continue
		case state.StatusStarted:
			r.Started = append(r.Started, id)
		case state.StatusFailed:
			r.Failed = append(r.Failed, FailedFuture{ID: id, Error: failureMessage(es)})
		case state.StatusTimeout:
			r.Timeout = append(r.Timeout, TimedOutFuture{ID: id, InteractionID: timedOutInteraction(es)})
		case state.StatusHeld:
			if ns, ok := es.(state.NetworkExecutionState); ok && ns.Outcome() != nil {
				out := ns.Outcome()
				r.Held = append(r.Held, HeldFuture{ID: id, HeldID: out.HeldID, Reason: out.Reason})
			}
		}
		r.Status = StatusExecutionError
	}
	return r
}

func contractOf(es state.ExecutionState) (Contract, bool) {
	switch s := es.(type) {
	case *state.DeploymentExecutionState:
		addr, ok := state.ContractAddress(s)
		return Contract{ID: s.ID, ContractName: s.ContractName, Address: addr}, ok
	case *state.ContractAtExecutionState:
		return Contract{ID: s.ID, ContractName: s.ContractName, Address: s.ContractAddress}, true
	}
	return Contract{}, false
}

func failureMessage(es state.ExecutionState) string {
	ns, ok := es.(state.NetworkExecutionState)
	if !ok || ns.Outcome() == nil {
		return "unknown failure"
	}
	out := ns.Outcome()
	switch out.Type {
	case journal.ResultRevertedTransaction:
		if out.Error != "" {
			return "transaction reverted: " + out.Error
		}
		return "transaction reverted"
	case journal.ResultSimulationError:
		return "simulation failed: " + out.Error
	case journal.ResultStaticCallError:
		return "static call failed: " + out.Error
	case journal.ResultStrategyError:
		return "strategy error: " + out.Error
	}
	return out.Error
}

func timedOutInteraction(es state.ExecutionState) int {
	ns, ok := es.(state.NetworkExecutionState)
	if !ok {
		return 0
	}
	if oi, ok := state.LastInteraction(ns).(*state.OnchainInteraction); ok {
		return oi.ID
	}
	return 0
}
