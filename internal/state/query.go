package state

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// SortedIDs returns the ids of all execution states in lexical order.
func (s *DeploymentState) SortedIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.ExecutionStates))
	for id := range s.ExecutionStates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DependentsOf returns the ids of recorded execution states that list id
// among their dependencies, sorted.
func (s *DeploymentState) DependentsOf(id string) []string {
	var out []string
	for _, other := range s.SortedIDs() {
		if other == id {
			continue
		}
		if slices.Contains(s.ExecutionStates[other].Meta().Dependencies, id) {
			out = append(out, other)
		}
	}
	return out
}

// WithStatus returns the sorted ids of states in any of the given statuses.
func (s *DeploymentState) WithStatus(statuses ...Status) []string {
	var out []string
	for _, id := range s.SortedIDs() {
		if slices.Contains(statuses, s.ExecutionStates[id].Meta().Status) {
			out = append(out, id)
		}
	}
	return out
}

// ContractAddress returns the address a successful contract-producing state
// resolved to.
func ContractAddress(es ExecutionState) (common.Address, bool) {
	if es.Meta().Status != StatusSuccess {
		return common.Address{}, false
	}
	switch v := es.(type) {
	case *DeploymentExecutionState:
		if v.Result == nil || v.Result.Address == nil {
			return common.Address{}, false
		}
		return *v.Result.Address, true
	case *ContractAtExecutionState:
		return v.ContractAddress, true
	default:
		return common.Address{}, false
	}
}

// DeployedAddresses maps every successful deployment and contractAt future to
// its address.
func (s *DeploymentState) DeployedAddresses() map[string]common.Address {
	out := make(map[string]common.Address)
	if s == nil {
		return out
	}
	for id, es := range s.ExecutionStates {
		if addr, ok := ContractAddress(es); ok {
			out[id] = addr
		}
	}
	return out
}
