package analysis

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// DependencyGraph records, per document, the documents it depends on and
// the reverse index of dependants. A document's entry is ready once its
// dependency list is known or its scan failed.
type DependencyGraph struct {
	mu         sync.Mutex
	deps       map[string][]string
	dependants map[string]map[string]struct{}
	ready      map[string]*future[[]string]
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		deps:       map[string][]string{},
		dependants: map[string]map[string]struct{}{},
		ready:      map[string]*future[[]string]{},
	}
}

func (g *DependencyGraph) readyFor(path string) *future[[]string] {
	f, ok := g.ready[path]
	if !ok {
		f = newFuture[[]string]()
		g.ready[path] = f
	}
	return f
}

// AddDocument records that path depends on deps.
func (g *DependencyGraph) AddDocument(path string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deps = slices.Clone(deps)
	g.deps[path] = deps
	for _, d := range deps {
		set, ok := g.dependants[d]
		if !ok {
			set = map[string]struct{}{}
			g.dependants[d] = set
		}
		set[path] = struct{}{}
	}
	g.readyFor(path).settle(deps, nil)
}

// RejectDocument records that path could not be scanned, so it has no
// known dependencies.
func (g *DependencyGraph) RejectDocument(path string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readyFor(path).settle(nil, err)
}

// Dependencies returns the direct dependencies recorded for path.
func (g *DependencyGraph) Dependencies(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.deps[path])
}

// Dependants returns the documents that directly depend on path, sorted.
func (g *DependencyGraph) Dependants(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.dependants[path])
}

// AllDependants returns every document that transitively depends on path,
// sorted. path itself is included only when it sits on a cycle.
func (g *DependencyGraph) AllDependants(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]struct{}{}
	queue := []string{path}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for d := range g.dependants[p] {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	return sortedKeys(seen)
}

// WhenReady blocks until path and every document it transitively depends
// on have been recorded, either with a dependency list or as rejected.
func (g *DependencyGraph) WhenReady(ctx context.Context, path string) error {
	seen := map[string]bool{}
	queue := []string{path}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p] {
			continue
		}
		seen[p] = true

		g.mu.Lock()
		f := g.readyFor(p)
		g.mu.Unlock()

		deps, err := f.wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			continue
		}
		queue = append(queue, deps...)
	}
	return nil
}

// Invalidate returns a new graph without the outgoing edges of paths.
// Edges into paths are kept so that a later invalidation still reaches
// their dependants. Only recorded entries are carried over.
func (g *DependencyGraph) Invalidate(paths []string) *DependencyGraph {
	g.mu.Lock()
	defer g.mu.Unlock()

	fork := NewDependencyGraph()
	for p, deps := range g.deps {
		if slices.Contains(paths, p) {
			continue
		}
		fork.deps[p] = deps
		for _, d := range deps {
			set, ok := fork.dependants[d]
			if !ok {
				set = map[string]struct{}{}
				fork.dependants[d] = set
			}
			set[p] = struct{}{}
		}
	}
	for p, f := range g.ready {
		if slices.Contains(paths, p) {
			continue
		}
		if deps, ok := f.value(); ok {
			fork.ready[p] = settledFuture(deps)
		}
	}
	return fork
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
