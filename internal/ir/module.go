package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Module is a named collection of futures. Submodules are flattened into the
// parent's graph; their futures keep their own module prefix.
type Module struct {
	ID         string
	Futures    []Future
	Submodules []*Module
}

// AllFutures returns every future of m and its submodules, each once, in
// declaration order with submodules first.
func (m *Module) AllFutures() []Future {
	seen := make(map[string]bool)
	var out []Future
	var walk func(*Module)
	walk = func(mod *Module) {
		for _, sub := range mod.Submodules {
			walk(sub)
		}
		for _, f := range mod.Futures {
			if seen[f.ID()] {
				continue
			}
			seen[f.ID()] = true
			out = append(out, f)
		}
	}
	walk(m)
	return out
}

// Graph is the validated dependency graph of a module.
type Graph struct {
	futures map[string]Future
	order   []string
	// dependents maps a future id to the futures that depend on it.
	dependents map[string][]string
}

// GraphError reports a structural problem in a module.
type GraphError struct {
	FutureID string
	Message  string
}

func (e *GraphError) Error() string {
	if e.FutureID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.FutureID, e.Message)
}

// NewGraph validates m and builds its graph. Duplicate ids, dangling
// references, references to futures of the wrong kind and cycles are errors.
func NewGraph(m *Module) (*Graph, error) {
	g := &Graph{
		futures:    make(map[string]Future),
		dependents: make(map[string][]string),
	}
	var declared []string
	var walk func(*Module) error
	walk = func(mod *Module) error {
		for _, sub := range mod.Submodules {
			if err := walk(sub); err != nil {
				return err
			}
		}
		for _, f := range mod.Futures {
			if existing, ok := g.futures[f.ID()]; ok {
				if existing == f {
					continue
				}
				return &GraphError{FutureID: f.ID(), Message: "duplicate future id"}
			}
			g.futures[f.ID()] = f
			declared = append(declared, f.ID())
		}
		return nil
	}
	if err := walk(m); err != nil {
		return nil, err
	}

	for _, id := range declared {
		f := g.futures[id]
		for _, dep := range f.Dependencies() {
			if _, ok := g.futures[dep]; !ok {
				return nil, &GraphError{FutureID: id, Message: fmt.Sprintf("depends on unknown future %q", dep)}
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
		if err := checkReferenceKinds(f, g.futures); err != nil {
			return nil, err
		}
	}

	if cycles := findCycles(declared, g.futures); len(cycles) > 0 {
		parts := make([]string, len(cycles))
		for i, c := range cycles {
			parts[i] = strings.Join(c, " -> ")
		}
		return nil, &GraphError{Message: "dependency cycle: " + strings.Join(parts, "; ")}
	}

	g.order = topoOrder(declared, g.futures)
	return g, nil
}

func checkReferenceKinds(f Future, all map[string]Future) error {
	requireContract := func(id string) error {
		if !all[id].Type().ProducesContract() {
			return &GraphError{FutureID: f.ID(), Message: fmt.Sprintf("%q is not a contract future", id)}
		}
		return nil
	}
	switch v := f.(type) {
	case *ContractCallFuture:
		return requireContract(v.Contract)
	case *StaticCallFuture:
		return requireContract(v.Contract)
	case *EncodeFunctionCallFuture:
		return requireContract(v.Contract)
	case *ReadEventArgumentFuture:
		t := all[v.FutureToReadFrom].Type()
		if !t.IsDeployment() && t != ContractCall && t != SendData {
			return &GraphError{FutureID: f.ID(), Message: fmt.Sprintf("%q does not send a transaction", v.FutureToReadFrom)}
		}
		return requireContract(v.EmitterID())
	case *ContractDeploymentFuture:
		for name, lib := range v.Libraries {
			for _, id := range ReferencedFutures(lib) {
				if !all[id].Type().IsDeployment() {
					return &GraphError{FutureID: f.ID(), Message: fmt.Sprintf("library %s must reference a deployment", name)}
				}
			}
		}
	}
	return nil
}

// Future returns the future with the given id.
func (g *Graph) Future(id string) (Future, bool) {
	f, ok := g.futures[id]
	return f, ok
}

// Futures returns all futures in a deterministic topological order.
func (g *Graph) Futures() []Future {
	out := make([]Future, len(g.order))
	for i, id := range g.order {
		out[i] = g.futures[id]
	}
	return out
}

// Dependents returns the ids that directly depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	out := slices.Clone(g.dependents[id])
	slices.Sort(out)
	return out
}

// Len returns the number of futures.
func (g *Graph) Len() int { return len(g.order) }

// topoOrder is Kahn's algorithm with ties broken by declaration order.
func topoOrder(declared []string, futures map[string]Future) []string {
	pos := make(map[string]int, len(declared))
	for i, id := range declared {
		pos[id] = i
	}
	indegree := make(map[string]int, len(declared))
	dependents := make(map[string][]string)
	for _, id := range declared {
		deps := futures[id].Dependencies()
		indegree[id] = len(deps)
		for _, d := range deps {
			dependents[d] = append(dependents[d], id)
		}
	}
	var ready []string
	for _, id := range declared {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]string, 0, len(declared))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int { return pos[a] - pos[b] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}
