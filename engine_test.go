package trellis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/analysis"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for p, src := range files {
		fsys[p] = &fstest.MapFile{Data: []byte(src)}
	}
	return fsys
}

// newTestEngine creates an Engine over an in-memory project.
func newTestEngine(t *testing.T, files map[string]string, opts ...Option) *Engine {
	t.Helper()
	e, err := New("", append([]Option{WithFS(mapFS(files))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeProject writes files under a fresh temp dir and returns it.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for p, src := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(src), 0o644))
	}
	return dir
}

var smallProject = map[string]string{
	"base.js": `export class Base extends HTMLElement {
  hello() {}
}
`,
	"leaf.js": `import {Base} from './base.js';
export class Leaf extends Base {}
`,
	"other.js": `export function other() {}
`,
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)

	assert.Nil(t, e.Store(), "no database without WithDB")
	assert.Equal(t, analysis.DefaultRootTypes, e.rootTypes)
	assert.Positive(t, e.concurrency)
	require.NotNil(t, e.Snapshot())
	assert.NotEmpty(t, e.registry.Scanners("script"), "built-in scanners registered")
}

func TestNew_RequiresRootOrFS(t *testing.T) {
	t.Parallel()
	_, err := New("")
	require.Error(t, err)
}

func TestNew_InvalidDBPath(t *testing.T) {
	t.Parallel()
	_, err := New("", WithFS(mapFS(smallProject)), WithDB("/nonexistent/dir/db.sqlite"))
	require.Error(t, err)
}

func TestNew_RegistersEmbeddedScriptScanner(t *testing.T) {
	t.Parallel()
	withScripts := newTestEngine(t, smallProject)
	without := newTestEngine(t, smallProject, WithScriptsFS(nil))

	assert.Len(t, withScripts.registry.Scanners("script"), len(without.registry.Scanners("script"))+1)
}

func TestNew_WithScriptsDir(t *testing.T) {
	t.Parallel()
	scriptsDir := writeProject(t, map[string]string{
		"scan/style.risor": `emit_import({"specifier": "./extra.css", "node": root})`,
	})
	e := newTestEngine(t, map[string]string{
		"a.css":     "a { color: red; }",
		"extra.css": "",
	}, WithScriptsDir(scriptsDir))

	docs, err := e.Analyze(testCtx(t), []string{"a.css"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"extra.css"}, docs[0].Imports)
}

func TestClose_WithoutStore(t *testing.T) {
	t.Parallel()
	e, err := New("", WithFS(mapFS(smallProject)))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

// =============================================================================
// Analyze
// =============================================================================

func TestAnalyze_ResolvesAcrossDocuments(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)

	docs, err := e.Analyze(testCtx(t), []string{"leaf.js", "other.js"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "leaf.js", docs[0].Path, "results follow the order of paths")
	assert.Equal(t, []string{"base.js"}, docs[0].Imports)

	leaf := docs[0].FeaturesOfKind(KindClass)
	require.Len(t, leaf, 1)
	assert.Equal(t, "Base", leaf[0].Class.Methods["hello"].InheritedFrom)

	assert.Equal(t, []string{"leaf.js", "other.js"}, e.Paths())
}

func TestAnalyze_CollectsPerDocumentErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)

	docs, err := e.Analyze(testCtx(t), []string{"missing.js", "other.js"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis had 1 error(s)")
	assert.Contains(t, err.Error(), "missing.js")
	require.Len(t, docs, 1, "the healthy document is still analyzed")
	assert.Equal(t, "other.js", docs[0].Path)
}

func TestAnalyze_CanceledContext(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Analyze(ctx, []string{"leaf.js"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_SingleWorker(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject, WithConcurrency(1))

	docs, err := e.Analyze(testCtx(t), []string{"leaf.js", "base.js", "other.js"})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestAnalyze_CustomRootTypes(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, map[string]string{
		"el.js": "export class El extends LitElement {}\n",
	}, WithRootTypes("LitElement"))

	docs, err := e.Analyze(testCtx(t), []string{"el.js"})
	require.NoError(t, err)
	assert.Empty(t, e.Query().Warnings(SeverityInfo), "root types are not looked up")
	assert.Len(t, docs, 1)
}

// =============================================================================
// Discovery
// =============================================================================

func TestDiscover_WalksSupportedDocuments(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, map[string]string{
		"index.html":                "<p></p>",
		"src/a.js":                  "",
		"src/b.mjs":                 "",
		"styles/c.css":              "",
		"README.md":                 "# readme",
		".hidden/d.js":              "",
		"node_modules/pkg/index.js": "",
		"build/out.js":              "",
	}, WithExclude("build"))

	paths, err := e.Discover(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "src/a.js", "src/b.mjs", "styles/c.css"}, paths)
	assert.Equal(t, paths, e.Paths())
}

func TestDiscover_ExcludeMatchesFiles(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, map[string]string{
		"src/a.js":      "",
		"src/a.test.js": "",
	}, WithExclude("*.test.js"))

	paths, err := e.Discover(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.js"}, paths)
}

func TestDiscover_OnDisk(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"a.js":                 "export function a() {}",
		"sub/b.css":            "",
		"node_modules/x/i.js": "",
	})
	e, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	paths, err := e.Discover(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "sub/b.css"}, paths)
}

// =============================================================================
// Change detection
// =============================================================================

func TestFilesChanged_UnchangedDoesNotFork(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)
	ctx := testCtx(t)
	_, err := e.Analyze(ctx, []string{"leaf.js"})
	require.NoError(t, err)
	before := e.Snapshot()

	changed, err := e.FilesChanged(ctx, []string{"leaf.js", "base.js"})
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Same(t, before, e.Snapshot())
}

func TestFilesChanged_EditForksAndReanalyzes(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)
	ctx := testCtx(t)
	_, err := e.Analyze(ctx, []string{"leaf.js", "other.js"})
	require.NoError(t, err)
	before := e.Snapshot()
	otherBefore := before.Get("other.js").Analyzed

	changed, err := e.Edit(ctx, "base.js", []byte(`export class Base extends HTMLElement {
  hello() {}
  goodbye() {}
}
`))
	require.NoError(t, err)
	assert.True(t, changed)
	after := e.Snapshot()
	assert.NotSame(t, before, after)

	assert.NotNil(t, before.Get("leaf.js").Analyzed, "the old snapshot is untouched")
	assert.Nil(t, after.Get("leaf.js").Analyzed, "dependants lose their analysis")
	assert.Same(t, otherBefore, after.Get("other.js").Analyzed, "unrelated documents carry over")

	docs, err := e.Reanalyze(ctx)
	require.NoError(t, err)
	var leaf *AnalyzedDocument
	for _, d := range docs {
		if d.Path == "leaf.js" {
			leaf = d
		}
	}
	require.NotNil(t, leaf)
	methods := leaf.FeaturesOfKind(KindClass)[0].Class.Methods
	assert.Equal(t, []string{"goodbye", "hello"}, methods.Names())

	reverted, err := e.Revert(ctx, "base.js")
	require.NoError(t, err)
	assert.True(t, reverted)
}

func TestFilesChanged_SameContentEditDoesNotFork(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)
	ctx := testCtx(t)
	_, err := e.Analyze(ctx, []string{"base.js"})
	require.NoError(t, err)
	before := e.Snapshot()

	changed, err := e.Edit(ctx, "base.js", []byte(smallProject["base.js"]))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, before, e.Snapshot())
}

func TestFilesChanged_OnDisk(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, smallProject)
	e, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	ctx := testCtx(t)

	_, err = e.Analyze(ctx, []string{"leaf.js"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.js"), []byte("export class Base {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.js"), []byte("export function fresh() {}\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "other.js")))

	changed, err := e.FilesChanged(ctx, []string{"base.js", "new.js", "other.js", "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base.js", "new.js"}, changed, "other.js was never parsed, notes.txt is not a document")
	assert.Contains(t, e.Paths(), "new.js")
	assert.NotContains(t, e.Paths(), "other.js")
}

// =============================================================================
// Scripts hash
// =============================================================================

func TestScriptsHash(t *testing.T) {
	t.Parallel()
	a := newTestEngine(t, smallProject)
	b := newTestEngine(t, smallProject)
	assert.Equal(t, a.ScriptsHash(), b.ScriptsHash())

	custom := newTestEngine(t, smallProject, WithScriptsFS(fstest.MapFS{
		"scan/script.risor": &fstest.MapFile{Data: []byte("x := 1")},
	}))
	assert.NotEqual(t, a.ScriptsHash(), custom.ScriptsHash())
}

func TestScriptsChanged(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "trellis.db")
	e := newTestEngine(t, smallProject, WithDB(dbPath))
	ctx := testCtx(t)

	assert.True(t, e.ScriptsChanged(), "nothing exported yet")
	_, err := e.Analyze(ctx, []string{"other.js"})
	require.NoError(t, err)
	_, err = e.Export(ctx)
	require.NoError(t, err)
	assert.False(t, e.ScriptsChanged())
}

func TestExport_RequiresStore(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, smallProject)
	_, err := e.Export(testCtx(t))
	require.ErrorIs(t, err, ErrNoStore)
}

func TestExport_DeletedDocumentsAreRemoved(t *testing.T) {
	t.Parallel()
	fsys := mapFS(smallProject)
	e := newTestEngine(t, nil, WithFS(fsys), WithDB(filepath.Join(t.TempDir(), "trellis.db")))
	ctx := testCtx(t)

	_, err := e.AnalyzeDirectory(ctx)
	require.NoError(t, err)
	diff, err := e.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"base.js#class:Base", "leaf.js#class:Leaf", "other.js#function:other"},
		filterImports(diff.Added))

	delete(fsys, "other.js")
	changed, err := e.FilesChanged(ctx, []string{"other.js"})
	require.NoError(t, err)
	assert.Equal(t, []string{"other.js"}, changed)
	_, err = e.Reanalyze(ctx)
	require.NoError(t, err)

	diff, err = e.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other.js#function:other"}, diff.Removed)
	assert.Empty(t, diff.Added)

	stored, err := e.Store().DocumentByPath("other.js")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// filterImports drops import feature keys.
func filterImports(keys []string) []string {
	var out []string
	for _, k := range keys {
		if !strings.Contains(k, "#import:") {
			out = append(out, k)
		}
	}
	return out
}
