package analysis

import (
	"sync"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/group"
)

// depScan is one entry of a dependencies-scanned group. A dependency that
// failed to load or scan has a nil Doc and a non-nil Err; that is not a
// failure of the group.
type depScan struct {
	Path string
	Doc  *ScannedDocument
	Err  error
}

// Cache memoizes the parse, scan and analyze stages per document path.
// A cache is never changed by Invalidate; forks share only settled values.
type Cache struct {
	mu                  sync.Mutex
	parsed              map[string]*future[*document.Document]
	scanned             map[string]*future[*ScannedDocument]
	analyzed            map[string]*future[*AnalyzedDocument]
	dependenciesScanned map[string]*group.Group[depScan]
	graph               *DependencyGraph
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return newCache(NewDependencyGraph())
}

func newCache(g *DependencyGraph) *Cache {
	return &Cache{
		parsed:              map[string]*future[*document.Document]{},
		scanned:             map[string]*future[*ScannedDocument]{},
		analyzed:            map[string]*future[*AnalyzedDocument]{},
		dependenciesScanned: map[string]*group.Group[depScan]{},
		graph:               g,
	}
}

// Graph returns the dependency graph owned by this cache.
func (c *Cache) Graph() *DependencyGraph { return c.graph }

// lookupOrCreate returns the entry for path, creating it when missing. The
// bool is true when the caller created the entry and must settle it.
func lookupOrCreate[T any](mu *sync.Mutex, m map[string]*future[T], path string) (*future[T], bool) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := m[path]; ok {
		return f, false
	}
	f := newFuture[T]()
	m[path] = f
	return f, true
}

func (c *Cache) parsedEntry(path string) (*future[*document.Document], bool) {
	return lookupOrCreate(&c.mu, c.parsed, path)
}

func (c *Cache) scannedEntry(path string) (*future[*ScannedDocument], bool) {
	return lookupOrCreate(&c.mu, c.scanned, path)
}

func (c *Cache) analyzedDocument(path string) (*AnalyzedDocument, bool) {
	c.mu.Lock()
	f, ok := c.analyzed[path]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return f.value()
}

func (c *Cache) setAnalyzed(path string, a *AnalyzedDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzed[path] = settledFuture(a)
}

// dependencyGroup returns the group scanning path's dependencies, creating
// it with start when missing.
func (c *Cache) dependencyGroup(path string, start func() *group.Group[depScan]) *group.Group[depScan] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.dependenciesScanned[path]; ok {
		return g
	}
	g := start()
	c.dependenciesScanned[path] = g
	return g
}

// Stages reports which stages of a document hold a successfully settled
// result.
type Stages struct {
	Parsed              bool
	Scanned             bool
	Analyzed            bool
	DependenciesScanned bool
}

// Stages inspects path without starting any work.
func (c *Cache) Stages(path string) Stages {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stages
	if f, ok := c.parsed[path]; ok {
		_, s.Parsed = f.value()
	}
	if f, ok := c.scanned[path]; ok {
		_, s.Scanned = f.value()
	}
	if f, ok := c.analyzed[path]; ok {
		_, s.Analyzed = f.value()
	}
	if g, ok := c.dependenciesScanned[path]; ok {
		s.DependenciesScanned = g.State() == group.Fulfilled
	}
	return s
}

// Invalidate returns a fork of the cache reflecting changes to paths.
//
// In the fork, each path in paths has no cached stages. Every document that
// transitively depends on one of them keeps its parse and scan but loses
// its analysis and dependencies-scanned group. Every other document keeps
// only its successfully settled results, copied as new settled entries, so
// the fork never waits on work started by c.
func (c *Cache) Invalidate(paths []string) *Cache {
	canonical := make([]string, len(paths))
	invalid := map[string]bool{}
	for i, p := range paths {
		canonical[i] = document.CanonicalPath(p)
		invalid[canonical[i]] = true
	}
	dependant := map[string]bool{}
	for p := range invalid {
		for _, d := range c.graph.AllDependants(p) {
			if !invalid[d] {
				dependant[d] = true
			}
		}
	}

	fork := newCache(c.graph.Invalidate(canonical))

	c.mu.Lock()
	defer c.mu.Unlock()
	for p, f := range c.parsed {
		if invalid[p] {
			continue
		}
		if v, ok := f.value(); ok {
			fork.parsed[p] = settledFuture(v)
		}
	}
	for p, f := range c.scanned {
		if invalid[p] {
			continue
		}
		if v, ok := f.value(); ok {
			fork.scanned[p] = settledFuture(v)
		}
	}
	for p, f := range c.analyzed {
		if invalid[p] || dependant[p] {
			continue
		}
		if v, ok := f.value(); ok {
			fork.analyzed[p] = settledFuture(v)
		}
	}
	for p, g := range c.dependenciesScanned {
		if invalid[p] || dependant[p] || g.State() != group.Fulfilled {
			continue
		}
		if results, err := g.Result(); err == nil {
			fork.dependenciesScanned[p] = group.Of(results...)
		}
	}
	return fork
}
