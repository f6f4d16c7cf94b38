package testutil

import (
	"encoding/json"

	"github.com/roach88/deployer/internal/artifacts"
)

// CounterABI is the ABI of the Counter fixture:
//
//	constructor(uint256 start)
//	function inc(uint256 by)
//	function count() view returns (uint256 value)
//	function owner() view returns (address)
//	event Incremented(address indexed by, uint256 value)
//	error TooLarge(uint256 by)
const CounterABI = `[
	{"type":"constructor","inputs":[{"name":"start","type":"uint256"}]},
	{"type":"function","name":"inc","stateMutability":"nonpayable",
	 "inputs":[{"name":"by","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"count","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"value","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"Incremented","anonymous":false,"inputs":[
	 {"name":"by","type":"address","indexed":true},
	 {"name":"value","type":"uint256","indexed":false}]},
	{"type":"error","name":"TooLarge","inputs":[{"name":"by","type":"uint256"}]}
]`

// CounterArtifact returns a fresh Counter artifact.
func CounterArtifact() *artifacts.Artifact {
	return &artifacts.Artifact{
		Format:         "hh-sol-artifact-1",
		ContractName:   "Counter",
		SourceName:     "contracts/Counter.sol",
		ABI:            json.RawMessage(CounterABI),
		Bytecode:       "0x6080604052348015600f57600080fd5b50",
		LinkReferences: artifacts.LinkReferences{},
	}
}

// MathLibArtifact returns a library with no ABI entries.
func MathLibArtifact() *artifacts.Artifact {
	return &artifacts.Artifact{
		Format:         "hh-sol-artifact-1",
		ContractName:   "MathLib",
		SourceName:     "contracts/MathLib.sol",
		ABI:            json.RawMessage(`[]`),
		Bytecode:       "0x73000000000000000000000000000000000000000030",
		LinkReferences: artifacts.LinkReferences{},
	}
}

// VaultArtifact returns a contract that links MathLib.
func VaultArtifact() *artifacts.Artifact {
	return &artifacts.Artifact{
		Format:       "hh-sol-artifact-1",
		ContractName: "Vault",
		SourceName:   "contracts/Vault.sol",
		ABI: json.RawMessage(`[
			{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]}
		]`),
		Bytecode: "0x6080" + "__$5a8e0b2e1d3b3f4c6e7a9b0c1d2e3f4a5b$__" + "00",
		LinkReferences: artifacts.LinkReferences{
			"contracts/MathLib.sol": {"MathLib": {{Start: 2, Length: 20}}},
		},
	}
}

// Resolver returns a resolver serving every fixture artifact.
func Resolver() *artifacts.MapResolver {
	return artifacts.NewMapResolver(CounterArtifact(), MathLibArtifact(), VaultArtifact())
}
