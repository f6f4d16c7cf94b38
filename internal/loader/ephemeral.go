package loader

import (
	"context"
	"maps"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// EphemeralLoader keeps a deployment in memory. Named artifacts are looked
// up through the resolver on every load.
type EphemeralLoader struct {
	resolver artifacts.Resolver
	journal  *journal.MemoryJournal

	mu           sync.Mutex
	named        map[string]string
	userProvided map[string]*artifacts.Artifact
	buildInfos   map[string]*artifacts.BuildInfo
	deployed     map[string]common.Address
}

// NewEphemeralLoader returns an empty in-memory loader.
func NewEphemeralLoader(resolver artifacts.Resolver) *EphemeralLoader {
	return &EphemeralLoader{
		resolver:     resolver,
		journal:      journal.NewMemoryJournal(),
		named:        make(map[string]string),
		userProvided: make(map[string]*artifacts.Artifact),
		buildInfos:   make(map[string]*artifacts.BuildInfo),
		deployed:     make(map[string]common.Address),
	}
}

func (l *EphemeralLoader) RecordToJournal(ctx context.Context, m journal.Message) error {
	return l.journal.Record(ctx, m)
}

func (l *EphemeralLoader) ReadFromJournal(ctx context.Context) ([]journal.Message, error) {
	return l.journal.Read(ctx)
}

func (l *EphemeralLoader) RecordDeployedAddress(_ context.Context, futureID string, addr common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deployed[futureID] = addr
	return nil
}

func (l *EphemeralLoader) DeployedAddresses(context.Context) (map[string]common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.deployed), nil
}

func (l *EphemeralLoader) StoreNamedArtifact(_ context.Context, futureID, contractName string, _ *artifacts.Artifact) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.named[futureID] = contractName
	return nil
}

func (l *EphemeralLoader) StoreUserProvidedArtifact(_ context.Context, futureID string, a *artifacts.Artifact) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userProvided[futureID] = a
	return nil
}

func (l *EphemeralLoader) StoreBuildInfo(_ context.Context, futureID string, bi *artifacts.BuildInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buildInfos[futureID] = bi
	return nil
}

// LoadArtifact returns a stored literal artifact directly and resolves a
// stored contract name through the resolver.
func (l *EphemeralLoader) LoadArtifact(ctx context.Context, artifactID string) (*artifacts.Artifact, error) {
	l.mu.Lock()
	a, provided := l.userProvided[artifactID]
	name, named := l.named[artifactID]
	l.mu.Unlock()

	if provided {
		return a, nil
	}
	if !named {
		return nil, &state.InvariantError{FutureID: artifactID, Message: "no artifact stored for future"}
	}
	a, err := l.resolver.LoadArtifact(ctx, name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &state.InvariantError{FutureID: artifactID, Message: "resolver returned no artifact for contract " + name}
	}
	return a, nil
}

func (l *EphemeralLoader) Close() error { return nil }

var _ Loader = (*EphemeralLoader)(nil)
