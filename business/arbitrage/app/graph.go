package app

import (
	"sort"
	"strings"
)

// edge is a directed quote between two token nodes of one chain.
type edge struct {
	quote Quote
	from  int
	to    int
}

// graph is the price graph of one chain: nodes are tokens, edges DEX quotes.
type graph struct {
	chainID   uint64
	tokens    []string
	index     map[string]int
	adjacency map[int][]edge
}

func buildGraph(chainID uint64, quotes []Quote) *graph {
	g := &graph{
		chainID:   chainID,
		index:     make(map[string]int),
		adjacency: make(map[int][]edge),
	}
	for _, q := range quotes {
		from := g.node(q.Key.TokenIn)
		to := g.node(q.Key.TokenOut)
		g.adjacency[from] = append(g.adjacency[from], edge{quote: q, from: from, to: to})
	}
	return g
}

func (g *graph) node(token string) int {
	if idx, ok := g.index[token]; ok {
		return idx
	}
	idx := len(g.tokens)
	g.tokens = append(g.tokens, token)
	g.index[token] = idx
	return idx
}

// cycles enumerates simple cycles of 2..maxHops edges that start and end at a token
// accepted by startable. Only strongly connected components can hold cycles, so the
// search is confined to them.
func (g *graph) cycles(maxHops int, startable func(token string) bool) [][]edge {
	if maxHops < 2 {
		maxHops = 2
	}

	var out [][]edge
	for _, comp := range stronglyConnectedComponents(len(g.tokens), g.adjacency) {
		if len(comp) < 2 {
			continue
		}
		compSet := make(map[int]struct{}, len(comp))
		for _, idx := range comp {
			compSet[idx] = struct{}{}
		}
		sort.Ints(comp)

		for _, start := range comp {
			if !startable(g.tokens[start]) {
				continue
			}
			visited := map[int]struct{}{start: {}}
			g.dfsCycles(start, start, compSet, visited, nil, maxHops, &out)
		}
	}
	return out
}

func (g *graph) dfsCycles(start, current int, compSet, visited map[int]struct{}, path []edge, maxHops int, out *[][]edge) {
	if len(path) >= maxHops {
		return
	}

	for _, e := range g.adjacency[current] {
		if _, ok := compSet[e.to]; !ok {
			continue
		}

		path = append(path, e)

		if e.to == start && len(path) >= 2 {
			*out = append(*out, append([]edge(nil), path...))
			path = path[:len(path)-1]
			continue
		}

		if _, seen := visited[e.to]; seen {
			path = path[:len(path)-1]
			continue
		}

		visited[e.to] = struct{}{}
		g.dfsCycles(start, e.to, compSet, visited, path, maxHops, out)
		delete(visited, e.to)
		path = path[:len(path)-1]
	}
}

// cycleKey identifies a closed path by its set of pool legs, regardless of rotation.
// A two-leg spread started from either token shares one key.
func cycleKey(quotes ...Quote) string {
	items := make([]string, 0, len(quotes))
	for _, q := range quotes {
		items = append(items, q.Key.String())
	}
	sort.Strings(items)
	return strings.Join(items, "|")
}

// stronglyConnectedComponents is Tarjan's algorithm over the adjacency lists.
func stronglyConnectedComponents(n int, adjacency map[int][]edge) [][]int {
	index := 0
	stack := make([]int, 0, n)
	onStack := make([]bool, n)
	indices := make([]int, n)
	lowlink := make([]int, n)
	for i := range indices {
		indices[i] = -1
		lowlink[i] = -1
	}

	var result [][]int
	var strongConnect func(v int)

	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range adjacency[v] {
			w := e.to
			if indices[w] == -1 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var component []int
			for len(stack) > 0 {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			result = append(result, component)
		}
	}

	for v := 0; v < n; v++ {
		if indices[v] == -1 {
			strongConnect(v)
		}
	}
	return result
}
