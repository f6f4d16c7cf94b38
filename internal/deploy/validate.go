package deploy

import (
	"context"
	"fmt"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/resolve"
)

// Validate builds the graph of m and checks what can be checked before
// touching the chain: graph structure, named artifacts and required
// parameters. All problems are reported, not just the first.
func Validate(ctx context.Context, m *ir.Module, resolver artifacts.Resolver, params resolve.Parameters) (*ir.Graph, []string) {
	if m == nil {
		return nil, []string{"no module given"}
	}
	g, err := ir.NewGraph(m)
	if err != nil {
		return nil, []string{err.Error()}
	}

	var errs []string
	for _, f := range g.Futures() {
		if name, ok := namedArtifact(f); ok {
			if resolver == nil {
				errs = append(errs, fmt.Sprintf("%s: artifact %s cannot be resolved without an artifacts directory", f.ID(), name))
			} else if _, err := resolver.LoadArtifact(ctx, name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: artifact %s: %v", f.ID(), name, err))
			}
		}
		for _, a := range ir.Arguments(f) {
			for _, p := range ir.ReferencedParams(a) {
				if _, ok := params[p.Module][p.Name]; ok || p.Default != nil {
					continue
				}
				errs = append(errs, fmt.Sprintf("%s: module parameter %s.%s requires a value but was given none", f.ID(), p.Module, p.Name))
			}
		}
	}
	return g, errs
}

// namedArtifact returns the contract name a future resolves its artifact by.
func namedArtifact(f ir.Future) (string, bool) {
	switch v := f.(type) {
	case *ir.ContractDeploymentFuture:
		return v.ContractName, v.Artifact == nil
	case *ir.LibraryDeploymentFuture:
		return v.ContractName, v.Artifact == nil
	case *ir.ContractAtFuture:
		return v.ContractName, v.Artifact == nil
	}
	return "", false
}
