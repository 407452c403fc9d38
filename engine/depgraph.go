package engine

import (
	"context"
	"sync"
)

// depGraph tracks dependency edges discovered during a single top-level
// request. Adding u→v is rejected when v can already reach u, because the
// new edge would close a cycle; the rejection carries the reaching path.
//
// One graph exists per top-level request, keyed off the request state in the
// context, so unrelated builds cannot falsely alias cycles. The engine is
// the only writer, but subrequests fan out across goroutines, hence the
// mutex.
type depGraph struct {
	mu    sync.Mutex
	edges map[string][]string
	seen  map[string]map[string]bool
	keys  map[string]Key
}

func newDepGraph() *depGraph {
	return &depGraph{
		edges: make(map[string][]string),
		seen:  make(map[string]map[string]bool),
		keys:  make(map[string]Key),
	}
}

// addEdge records the edge from→to. It returns a *CycleError when `to` can
// already reach `from`; the reported path is the full cycle in traversal
// order, starting and ending at `from`.
func (g *depGraph) addEdge(from, to string, fromKey, toKey Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.keys[from] = fromKey
	g.keys[to] = toKey

	if g.seen[from][to] {
		return nil
	}

	if path := g.findPath(to, from); path != nil {
		cycle := make([]Key, 0, len(path)+1)
		cycle = append(cycle, fromKey)
		for _, node := range path {
			cycle = append(cycle, g.keys[node])
		}
		return &CycleError{Path: cycle}
	}

	if g.seen[from] == nil {
		g.seen[from] = make(map[string]bool)
	}
	g.seen[from][to] = true
	g.edges[from] = append(g.edges[from], to)
	return nil
}

// findPath returns the node sequence from `from` to `to` over recorded
// edges, inclusive of both ends, or nil when unreachable. DFS in insertion
// order keeps the reported cycle deterministic.
func (g *depGraph) findPath(from, to string) []string {
	if from == to {
		return []string{from}
	}
	visited := map[string]bool{from: true}
	return g.dfs(from, to, visited, []string{from})
}

func (g *depGraph) dfs(node, target string, visited map[string]bool, path []string) []string {
	for _, next := range g.edges[node] {
		if next == target {
			return append(path, next)
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		if found := g.dfs(next, target, visited, append(path, next)); found != nil {
			return found
		}
	}
	return nil
}

// requestState is the per-top-level-request ambient state: the request
// token (for logging and tracing) and the dependency graph.
type requestState struct {
	token string
	graph *depGraph
}

type requestStateKey struct{}

func withRequestState(ctx context.Context, st *requestState) context.Context {
	return context.WithValue(ctx, requestStateKey{}, st)
}

func requestStateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(requestStateKey{}).(*requestState)
	return st
}
