package artifacts

import (
	"context"
	"fmt"
	"sync"
)

// MapResolver serves artifacts from memory. Tests and the scenario harness
// use it in place of a compilation toolchain.
type MapResolver struct {
	mu         sync.RWMutex
	artifacts  map[string]*Artifact
	buildInfos map[string]*BuildInfo
}

// NewMapResolver returns a resolver serving the given artifacts, keyed by
// their ContractName.
func NewMapResolver(list ...*Artifact) *MapResolver {
	r := &MapResolver{
		artifacts:  make(map[string]*Artifact),
		buildInfos: make(map[string]*BuildInfo),
	}
	for _, a := range list {
		r.Add(a, nil)
	}
	return r
}

// Add registers an artifact and its optional build info.
func (r *MapResolver) Add(a *Artifact, bi *BuildInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[a.ContractName] = a
	if bi != nil {
		r.buildInfos[a.ContractName] = bi
	}
}

// LoadArtifact implements Resolver.
func (r *MapResolver) LoadArtifact(_ context.Context, contractName string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[contractName]
	if !ok {
		return nil, fmt.Errorf("artifact for contract %s not found", contractName)
	}
	return a, nil
}

// GetBuildInfo implements Resolver. Artifacts registered without build info
// return nil.
func (r *MapResolver) GetBuildInfo(_ context.Context, contractName string) (*BuildInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.artifacts[contractName]; !ok {
		return nil, fmt.Errorf("artifact for contract %s not found", contractName)
	}
	return r.buildInfos[contractName], nil
}
