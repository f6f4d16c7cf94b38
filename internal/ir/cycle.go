package ir

import "slices"

// findCycles returns every dependency cycle among the futures, each as a
// path that starts and ends at the same id. Nodes are visited in declaration
// order so the result is stable.
func findCycles(declared []string, futures map[string]Future) [][]string {
	edges := make(map[string][]string, len(declared))
	for _, id := range declared {
		edges[id] = futures[id].Dependencies()
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(declared, edges) {
		if len(scc) == 1 && !slices.Contains(edges[scc[0]], scc[0]) {
			continue
		}
		cycles = append(cycles, cyclePath(scc, edges))
	}
	return cycles
}

// tarjanSCC finds strongly connected components with Tarjan's algorithm.
func tarjanSCC(nodes []string, edges map[string][]string) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var visit func(string)
	visit = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := indices[w]; !seen {
				visit(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
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

	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			visit(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside one component until it returns to its
// smallest member.
func cyclePath(scc []string, edges map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range edges[current] {
			if members[w] && (w == start || !visited[w]) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
