package trellis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jward/trellis/internal/analysis"
	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/resolve"
	trellisrt "github.com/jward/trellis/internal/runtime"
	"github.com/jward/trellis/internal/scan"
	"github.com/jward/trellis/internal/store"
	"github.com/jward/trellis/scripts"
)

// ErrNoStore is returned by export operations on an Engine created without
// WithDB.
var ErrNoStore = errors.New("trellis: engine has no export database")

// Engine orchestrates the trellis pipeline over one project root: document
// discovery, change detection, analysis through a forkable cache, queries
// and SQLite export.
type Engine struct {
	root        string
	fsys        fs.FS
	logger      *slog.Logger
	rootTypes   []string
	extensions  []string
	exclude     []string
	scriptsDir  string
	scriptsFS   fs.FS
	concurrency int
	dbPath      string

	store    *store.Store
	runtime  *trellisrt.Runtime
	overlay  *analysis.OverlayLoader
	registry *scan.Registry

	mu    sync.RWMutex
	actx  *analysis.Context
	paths map[string]bool // known documents
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRootTypes replaces the base types that end inheritance chains
// without a lookup.
func WithRootTypes(names ...string) Option {
	return func(e *Engine) {
		e.rootTypes = names
	}
}

// WithExtensions replaces the extensions probed when resolving bare module
// specifiers.
func WithExtensions(exts ...string) Option {
	return func(e *Engine) {
		e.extensions = exts
	}
}

// WithExclude skips documents matching any of the given path.Match
// patterns. Patterns are matched against the root-relative path and
// against each directory name.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		e.exclude = patterns
	}
}

// WithScriptsDir loads scanner scripts from dir on disk instead of the
// embedded defaults.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
		e.scriptsFS = nil
	}
}

// WithScriptsFS loads scanner scripts from fsys instead of the embedded
// defaults. A nil fsys with no scripts dir disables script scanners.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
		e.scriptsDir = ""
	}
}

// WithConcurrency bounds how many documents Analyze works on at once.
// Defaults to the number of CPUs.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithDB enables Export to the SQLite database at dbPath.
func WithDB(dbPath string) Option {
	return func(e *Engine) {
		e.dbPath = dbPath
	}
}

// WithFS reads documents from fsys instead of the root directory on disk.
// Discovery then walks fsys; git is not consulted.
func WithFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.fsys = fsys
	}
}

// New creates an Engine analyzing the project at root.
//
// Scanner scripts are loaded in this order:
//  1. WithScriptsFS, if set
//  2. WithScriptsDir, if set
//  3. the embedded defaults
//
// For each document kind, scan/<kind>.risor is registered as an extra
// scanner when the script exists.
func New(root string, opts ...Option) (*Engine, error) {
	e := &Engine{
		root:        root,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		rootTypes:   analysis.DefaultRootTypes,
		scriptsFS:   scripts.FS,
		concurrency: runtime.NumCPU(),
		paths:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fsys == nil {
		if root == "" {
			return nil, fmt.Errorf("trellis: new: no root directory or file system")
		}
		e.fsys = os.DirFS(root)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}

	var resolveOpts []resolve.Option
	if len(e.extensions) > 0 {
		resolveOpts = append(resolveOpts, resolve.WithExtensions(e.extensions...))
	}
	resolver := resolve.New(e.fsys, resolveOpts...)

	rtOpts := []trellisrt.RuntimeOption{trellisrt.WithLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, trellisrt.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = trellisrt.NewRuntime(e.scriptsDir, rtOpts...)

	e.registry = scan.NewRegistry(resolver)
	for _, kind := range []document.Kind{document.KindScript, document.KindMarkup, document.KindStyle} {
		p := trellisrt.ScanScriptPath(kind)
		if !e.scriptExists(p) {
			continue
		}
		e.logger.Debug("script scanner", "kind", kind, "script", p)
		e.registry.Register(kind, trellisrt.NewScriptScanner(e.runtime, p, resolver))
	}

	e.overlay = analysis.NewOverlayLoader(analysis.FSLoader{FS: e.fsys})
	e.actx = analysis.NewContext(e.fsys,
		analysis.WithLogger(e.logger),
		analysis.WithLoader(e.overlay),
		analysis.WithRegistry(e.registry),
		analysis.WithRootTypes(e.rootTypes...),
	)

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("trellis: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("trellis: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the export database, or nil without WithDB.
func (e *Engine) Store() *Store {
	return e.store
}

// Snapshot returns the analysis context current at the time of the call.
// A later FilesChanged does not affect it.
func (e *Engine) Snapshot() *analysis.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actx
}

// Paths returns the known document paths in sorted order.
func (e *Engine) Paths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.paths))
	for p := range e.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) scriptExists(p string) bool {
	if e.scriptsFS != nil {
		_, err := fs.Stat(e.scriptsFS, filepath.ToSlash(p))
		return err == nil
	}
	if e.scriptsDir != "" {
		_, err := os.Stat(filepath.Join(e.scriptsDir, p))
		return err == nil
	}
	return false
}

// ScriptsHash is a SHA-256 over every scanner script the engine can load,
// in path order. It changes whenever a script is added, removed or edited.
func (e *Engine) ScriptsHash() string {
	var paths []string
	if e.scriptsFS != nil {
		fs.WalkDir(e.scriptsFS, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(p, ".risor") {
				paths = append(paths, p)
			}
			return nil
		})
	} else if e.scriptsDir != "" {
		filepath.WalkDir(e.scriptsDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(p, ".risor") {
				rel, _ := filepath.Rel(e.scriptsDir, p)
				paths = append(paths, rel)
			}
			return nil
		})
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		src, err := e.runtime.LoadScript(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Edit overlays unsaved contents for path and forks the analysis if they
// differ from what was last analyzed.
func (e *Engine) Edit(ctx context.Context, p string, contents []byte) (bool, error) {
	e.overlay.Set(p, contents)
	changed, err := e.FilesChanged(ctx, []string{p})
	return len(changed) > 0, err
}

// Revert drops the overlay for path, exposing the file system contents.
func (e *Engine) Revert(ctx context.Context, p string) (bool, error) {
	e.overlay.Remove(p)
	changed, err := e.FilesChanged(ctx, []string{p})
	return len(changed) > 0, err
}

// FilesChanged compares the current contents of paths with what the
// analysis cache last parsed and, if any differ, swaps in a forked
// analysis context in which they and their dependants are invalidated.
// Paths whose hash is unchanged do not cause a fork. The changed paths are
// returned in sorted order.
//
// A path that disappeared counts as changed and is forgotten; a path that
// newly appeared is remembered.
func (e *Engine) FilesChanged(ctx context.Context, paths []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var changed []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p = document.CanonicalPath(p)
		if _, ok := document.KindForFile(p); !ok || e.excluded(p) {
			continue
		}
		prev := e.actx.Get(p).Parsed
		contents, err := e.overlay.Load(ctx, p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			delete(e.paths, p)
			if prev != nil || len(e.actx.Cache().Graph().Dependants(p)) > 0 {
				changed = append(changed, p)
			}
		case err != nil:
			return nil, fmt.Errorf("trellis: files changed: %w", err)
		default:
			e.paths[p] = true
			if prev == nil || prev.Hash != document.Hash(contents) {
				changed = append(changed, p)
			}
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}
	sort.Strings(changed)
	e.logger.Info("documents changed", "paths", changed)
	e.actx = e.actx.Invalidate(changed)
	return changed, nil
}

// --- Discovery ---

// skipDirs are never descended into during discovery.
var skipDirs = map[string]bool{
	"node_modules":     true,
	"bower_components": true,
	"vendor":           true,
}

// SkipDir reports whether discovery never descends into a directory with
// this name: hidden directories and package install directories.
func SkipDir(name string) bool {
	return (strings.HasPrefix(name, ".") && name != "." && name != "..") || skipDirs[name]
}

// Discover lists the analyzable documents under the root and remembers
// them. Inside a git work tree it uses git ls-files so that .gitignore is
// respected; otherwise it walks the tree, skipping hidden and dependency
// directories.
func (e *Engine) Discover(ctx context.Context) ([]string, error) {
	var paths []string
	var err error
	if e.root != "" {
		paths, err = e.gitListFiles(ctx)
		if err != nil {
			e.logger.Debug("git ls-files unavailable, walking", "root", e.root, "err", err)
		}
	}
	if paths == nil {
		paths, err = e.walkListFiles()
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)

	e.mu.Lock()
	for _, p := range paths {
		e.paths[p] = true
	}
	e.mu.Unlock()
	return paths, nil
}

func (e *Engine) gitListFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = e.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	paths := []string{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p := document.CanonicalPath(line)
		if e.wanted(p) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (e *Engine) walkListFiles() ([]string, error) {
	paths := []string{}
	err := fs.WalkDir(e.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != "." && (SkipDir(name) || e.excluded(p)) {
				return fs.SkipDir
			}
			return nil
		}
		if e.wanted(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("trellis: walk: %w", err)
	}
	return paths, nil
}

func (e *Engine) wanted(p string) bool {
	if _, ok := document.KindForFile(p); !ok {
		return false
	}
	for _, dir := range strings.Split(path.Dir(p), "/") {
		if skipDirs[dir] {
			return false
		}
	}
	return !e.excluded(p)
}

func (e *Engine) excluded(p string) bool {
	for _, pattern := range e.exclude {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		for _, part := range strings.Split(p, "/") {
			if ok, _ := path.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// --- Queries and export ---

// Query returns a QueryBuilder over the analyzed documents of the current
// snapshot. Documents not yet analyzed are not visible to it.
func (e *Engine) Query() *QueryBuilder {
	actx := e.Snapshot()
	var docs []*AnalyzedDocument
	for _, p := range e.Paths() {
		if a := actx.Get(p).Analyzed; a != nil {
			docs = append(docs, a)
		}
	}
	return newQueryBuilder(docs)
}

// Export writes every analyzed document of the current snapshot to the
// export database, drops documents that no longer exist, and records the
// scripts hash. It reports which features changed signature.
func (e *Engine) Export(ctx context.Context) (Diff, error) {
	if e.store == nil {
		return Diff{}, ErrNoStore
	}
	q := e.Query()
	diff, err := e.store.Export(ctx, q.docs)
	if err != nil {
		return Diff{}, fmt.Errorf("trellis: export: %w", err)
	}
	known := e.Paths()
	staleKeys, err := e.staleFeatureKeys(known)
	if err != nil {
		return Diff{}, fmt.Errorf("trellis: export: %w", err)
	}
	removed, err := e.store.Prune(known)
	if err != nil {
		return Diff{}, fmt.Errorf("trellis: export: %w", err)
	}
	if len(removed) > 0 {
		e.logger.Info("pruned documents", "paths", removed)
		diff.Removed = append(diff.Removed, staleKeys...)
		sort.Strings(diff.Removed)
	}
	if err := e.store.SetMetadata("scripts_hash", e.ScriptsHash()); err != nil {
		return Diff{}, fmt.Errorf("trellis: export: %w", err)
	}
	e.logger.Info("exported", "documents", len(q.docs),
		"added", len(diff.Added), "changed", len(diff.Changed), "removed", len(diff.Removed))
	return diff, nil
}

// staleFeatureKeys lists the stored features of documents that are no
// longer known, so that pruning them shows up as removals.
func (e *Engine) staleFeatureKeys(known []string) ([]string, error) {
	docs, err := e.store.Documents()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, d := range docs {
		if _, ok := slices.BinarySearch(known, d.Path); ok {
			continue
		}
		features, err := e.store.FeaturesByDocument(d.Path)
		if err != nil {
			return nil, err
		}
		for _, f := range features {
			keys = append(keys, f.Key)
		}
	}
	return keys, nil
}

// ScriptsChanged reports whether the scanner scripts differ from those used
// for the last export. It is true when nothing was exported yet.
func (e *Engine) ScriptsChanged() bool {
	if e.store == nil {
		return true
	}
	stored, err := e.store.GetMetadata("scripts_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.ScriptsHash()
}
