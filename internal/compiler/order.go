package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
)

// dependencyGraph maps a future label to the labels it needs compiled first.
type dependencyGraph map[string][]string

// orderFutures returns the labels of defs with every future after the
// futures it names. Only same-module names order compilation; qualified
// names refer to submodules, which are compiled already.
//
// Strongly connected components come out of Tarjan's algorithm in reverse
// topological order, so with edges pointing at dependencies they are
// emitted dependencies first. Any component larger than one node, or a
// node naming itself, is a cycle.
func orderFutures(defs map[string]*futureDef) ([]string, error) {
	graph := buildDependencyGraph(defs)

	var order []string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			slices.Sort(scc)
			path := reconstructCyclePath(scc, graph)
			return nil, &CompileError{
				Field:   "futures",
				Message: fmt.Sprintf("futures form a cycle: %s", strings.Join(path, " -> ")),
				Pos:     defs[scc[0]].value.Pos(),
			}
		}
		order = append(order, scc[0])
	}
	return order, nil
}

func buildDependencyGraph(defs map[string]*futureDef) dependencyGraph {
	graph := make(dependencyGraph, len(defs))
	for label, d := range defs {
		var deps []string
		for _, name := range []string{"contract", "future", "emitter"} {
			if s, err := d.value.LookupPath(cue.ParsePath(name)).String(); err == nil {
				deps = append(deps, s)
			}
		}
		if list, err := d.value.LookupPath(cue.ParsePath("after")).List(); err == nil {
			for list.Next() {
				if s, err := list.Value().String(); err == nil {
					deps = append(deps, s)
				}
			}
		}
		if iter, err := d.value.LookupPath(cue.ParsePath("libraries")).Fields(); err == nil {
			for iter.Next() {
				if s, err := iter.Value().String(); err == nil {
					deps = append(deps, s)
				}
			}
		}

		graph[label] = []string{}
		for _, dep := range deps {
			if _, local := defs[dep]; local {
				graph[label] = append(graph[label], dep)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath follows edges inside scc from its first node until
// it returns there.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
