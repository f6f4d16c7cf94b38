// Package artifacts holds the compiler outputs the deployer consumes:
// contract artifacts (ABI, bytecode, link references) and build info.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Artifact is the subset of a Hardhat-style artifact the deployer reads.
type Artifact struct {
	Format                 string          `json:"_format,omitempty"`
	ContractName           string          `json:"contractName"`
	SourceName             string          `json:"sourceName"`
	ABI                    json.RawMessage `json:"abi"`
	Bytecode               string          `json:"bytecode"`
	DeployedBytecode       string          `json:"deployedBytecode,omitempty"`
	LinkReferences         LinkReferences  `json:"linkReferences"`
	DeployedLinkReferences LinkReferences  `json:"deployedLinkReferences,omitempty"`
}

// LinkReferences maps source name to library name to placeholder offsets.
type LinkReferences map[string]map[string][]LinkReference

// LinkReference is one library placeholder, in bytes from the start of the
// bytecode.
type LinkReference struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// BuildInfo is the compiler input and output an artifact was produced from.
type BuildInfo struct {
	ID              string          `json:"id"`
	Format          string          `json:"_format,omitempty"`
	SolcVersion     string          `json:"solcVersion,omitempty"`
	SolcLongVersion string          `json:"solcLongVersion,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
}

// Resolver loads artifacts by contract name. It is implemented by the
// compilation toolchain.
type Resolver interface {
	LoadArtifact(ctx context.Context, contractName string) (*Artifact, error)
	GetBuildInfo(ctx context.Context, contractName string) (*BuildInfo, error)
}

// ParseABI decodes the artifact's ABI.
func (a *Artifact) ParseABI() (abi.ABI, error) {
	if len(a.ABI) == 0 {
		return abi.ABI{}, nil
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi of %s: %w", a.ContractName, err)
	}
	return parsed, nil
}

// Parse decodes an artifact from JSON and checks the fields the deployer
// relies on.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.ContractName == "" {
		return nil, fmt.Errorf("decode artifact: missing contractName")
	}
	if _, err := a.ParseABI(); err != nil {
		return nil, err
	}
	return &a, nil
}
