// Package loader persists everything a deployment needs besides chain
// state: the journal, the artifacts each future was executed with, build
// info and the addresses of deployed contracts.
package loader

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/journal"
)

// Loader is the storage behind one deployment.
type Loader interface {
	RecordToJournal(ctx context.Context, m journal.Message) error
	ReadFromJournal(ctx context.Context) ([]journal.Message, error)

	RecordDeployedAddress(ctx context.Context, futureID string, addr common.Address) error
	DeployedAddresses(ctx context.Context) (map[string]common.Address, error)

	// StoreNamedArtifact records that futureID was executed with the
	// artifact of contractName. a may be nil when only the name matters.
	StoreNamedArtifact(ctx context.Context, futureID, contractName string, a *artifacts.Artifact) error
	// StoreUserProvidedArtifact records a literal artifact for futureID.
	StoreUserProvidedArtifact(ctx context.Context, futureID string, a *artifacts.Artifact) error
	StoreBuildInfo(ctx context.Context, futureID string, bi *artifacts.BuildInfo) error
	LoadArtifact(ctx context.Context, artifactID string) (*artifacts.Artifact, error)

	Close() error
}
