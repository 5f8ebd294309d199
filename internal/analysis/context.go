// Package analysis runs documents through the parse, scan and analyze
// stages and memoizes the results in an incremental cache.
//
// A Context owns one Cache. Invalidate returns a new Context over a forked
// cache; the original stays valid for whoever still holds it, and work it
// has in flight finishes against its own cache without affecting the fork.
package analysis

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/group"
	"github.com/jward/trellis/internal/resolve"
	"github.com/jward/trellis/internal/scan"
)

// DefaultRootTypes are base types that contribute no members and are never
// looked up.
var DefaultRootTypes = []string{"HTMLElement", "Element", "Object"}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// WithLoader replaces the loader built over the analysis file system.
func WithLoader(l Loader) Option {
	return func(c *Context) {
		c.loader = l
	}
}

// WithRegistry replaces the default scanner registry.
func WithRegistry(r *scan.Registry) Option {
	return func(c *Context) {
		c.registry = r
	}
}

// WithRootTypes replaces DefaultRootTypes.
func WithRootTypes(names ...string) Option {
	return func(c *Context) {
		c.rootTypes = map[string]bool{}
		for _, n := range names {
			c.rootTypes[n] = true
		}
	}
}

// WithCache starts the context from an existing cache.
func WithCache(cache *Cache) Option {
	return func(c *Context) {
		c.cache = cache
	}
}

// Context drives documents through the analysis stages.
type Context struct {
	loader    Loader
	parser    *document.Parser
	registry  *scan.Registry
	rootTypes map[string]bool
	logger    *slog.Logger
	cache     *Cache

	// pass serializes resolution passes over this context's cache.
	pass chan struct{}
}

// NewContext creates a Context analyzing the documents in fsys.
func NewContext(fsys fs.FS, opts ...Option) *Context {
	c := &Context{
		loader:   FSLoader{FS: fsys},
		parser:   document.NewParser(),
		registry: scan.NewRegistry(resolve.New(fsys)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		pass:     make(chan struct{}, 1),
	}
	WithRootTypes(DefaultRootTypes...)(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	return c
}

// Cache returns the cache backing this context.
func (c *Context) Cache() *Cache { return c.cache }

// Invalidate returns a Context over a fork of the cache in which paths and
// their dependants must be recomputed. c itself is unchanged.
func (c *Context) Invalidate(paths []string) *Context {
	c.logger.Debug("invalidate", "paths", paths)
	return &Context{
		loader:    c.loader,
		parser:    c.parser,
		registry:  c.registry,
		rootTypes: c.rootTypes,
		logger:    c.logger,
		cache:     c.cache.Invalidate(paths),
		pass:      make(chan struct{}, 1),
	}
}

// Parse returns the parsed document at path, loading and parsing it on
// first use.
func (c *Context) Parse(ctx context.Context, path string) (*document.Document, error) {
	path = document.CanonicalPath(path)
	f, created := c.cache.parsedEntry(path)
	if created {
		work := context.WithoutCancel(ctx)
		go func() {
			f.settle(c.parse(work, path))
		}()
	}
	return f.wait(ctx)
}

func (c *Context) parse(ctx context.Context, path string) (*document.Document, error) {
	contents, err := c.loader.Load(ctx, path)
	if err != nil {
		c.logger.Warn("load failed", "path", path, "err", err)
		return nil, err
	}
	doc, err := c.parser.Parse(ctx, path, contents)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Scan returns the scanned document at path. Scanning records the
// document's dependencies in the graph and starts scanning them.
func (c *Context) Scan(ctx context.Context, path string) (*ScannedDocument, error) {
	path = document.CanonicalPath(path)
	f, created := c.cache.scannedEntry(path)
	if created {
		work := context.WithoutCancel(ctx)
		go func() {
			sd, err := c.scan(work, path)
			if err != nil {
				c.cache.graph.RejectDocument(path, err)
				f.settle(nil, err)
				return
			}
			c.cache.graph.AddDocument(path, sd.Dependencies())
			c.dependencyGroup(work, sd)
			f.settle(sd, nil)
		}()
	}
	return f.wait(ctx)
}

func (c *Context) scan(ctx context.Context, path string) (*ScannedDocument, error) {
	doc, err := c.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	features, warnings, err := c.registry.Scan(ctx, doc)
	if err != nil {
		c.logger.Warn("scan failed", "path", path, "err", err)
		return nil, err
	}
	c.logger.Debug("scanned", "path", path, "features", len(features), "warnings", len(warnings))
	return &ScannedDocument{Document: doc, Features: features, Warnings: warnings}, nil
}

// dependencyGroup returns the group joining the scans of sd's
// dependencies, starting them if this cache has none yet.
func (c *Context) dependencyGroup(ctx context.Context, sd *ScannedDocument) *group.Group[depScan] {
	return c.cache.dependencyGroup(sd.Path(), func() *group.Group[depScan] {
		g := group.New[depScan]()
		for _, dep := range sd.Dependencies() {
			g.Add(func() (depScan, error) {
				d, err := c.Scan(ctx, dep)
				return depScan{Path: dep, Doc: d, Err: err}, nil
			})
		}
		g.Close()
		return g
	})
}

// Analyze returns the fully resolved document at path. It waits for the
// scans of every document path transitively depends on, then runs one
// resolution pass over all of them that this cache has not analyzed yet.
func (c *Context) Analyze(ctx context.Context, path string) (*AnalyzedDocument, error) {
	path = document.CanonicalPath(path)
	if a, ok := c.cache.analyzedDocument(path); ok {
		return a, nil
	}
	order, scanned, err := c.closure(ctx, path)
	if err != nil {
		return nil, err
	}

	select {
	case c.pass <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.pass }()

	if a, ok := c.cache.analyzedDocument(path); ok {
		return a, nil
	}
	c.resolve(order, scanned)
	a, _ := c.cache.analyzedDocument(path)
	return a, nil
}

// closure walks the dependencies-scanned groups breadth-first from path.
// Documents that failed to scan map to nil.
func (c *Context) closure(ctx context.Context, path string) ([]string, map[string]*ScannedDocument, error) {
	root, err := c.Scan(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	order := []string{path}
	scanned := map[string]*ScannedDocument{path: root}
	for i := 0; i < len(order); i++ {
		sd := scanned[order[i]]
		if sd == nil {
			continue
		}
		results, err := c.dependencyGroup(context.WithoutCancel(ctx), sd).Wait(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range results {
			if _, seen := scanned[r.Path]; seen {
				continue
			}
			order = append(order, r.Path)
			scanned[r.Path] = r.Doc
		}
	}
	return order, scanned, nil
}

// resolve runs one resolution pass. Callers hold the pass lock.
func (c *Context) resolve(order []string, scanned map[string]*ScannedDocument) {
	pending := map[string]*AnalyzedDocument{}
	analyzed := func(p string) *AnalyzedDocument {
		if a, ok := pending[p]; ok {
			return a
		}
		a, _ := c.cache.analyzedDocument(p)
		return a
	}

	var batch []*AnalyzedDocument
	for _, p := range order {
		sd := scanned[p]
		if sd == nil {
			continue
		}
		if _, done := c.cache.analyzedDocument(p); done {
			continue
		}
		a := newAnalyzedDocument(sd, c.rootTypes)
		pending[p] = a
		batch = append(batch, a)
	}
	for _, a := range batch {
		var imports []*AnalyzedDocument
		for _, dep := range scanned[a.Path].Dependencies() {
			if d := analyzed(dep); d != nil {
				imports = append(imports, d)
			}
		}
		a.imports = imports
	}
	for _, a := range batch {
		a.link(a.imports)
	}
	for _, a := range batch {
		a.resolveAll()
	}
	for _, a := range batch {
		a.freeze()
		c.cache.setAnalyzed(a.Path, a)
	}
	c.logger.Debug("resolution pass", "documents", len(batch))
}

// Result is a snapshot of the cached stages of one document.
type Result struct {
	Path     string
	Parsed   *document.Document
	Scanned  *ScannedDocument
	Analyzed *AnalyzedDocument
}

// Get returns whatever stages of path are already cached without starting
// any work.
func (c *Context) Get(path string) Result {
	path = document.CanonicalPath(path)
	r := Result{Path: path}
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	if f, ok := c.cache.parsed[path]; ok {
		r.Parsed, _ = f.value()
	}
	if f, ok := c.cache.scanned[path]; ok {
		r.Scanned, _ = f.value()
	}
	if f, ok := c.cache.analyzed[path]; ok {
		r.Analyzed, _ = f.value()
	}
	return r
}
