package analysis

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/scan"
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

func newTestContext(t *testing.T, files map[string]string, opts ...Option) *Context {
	t.Helper()
	return NewContext(mapFS(files), opts...)
}

// chain is A -> B -> C plus an unrelated D.
var chain = map[string]string{
	"c.js": `
export class Base extends HTMLElement {
  /** @private */
  secret() {}
  foo() {}
  fromBase() {}
}
`,
	"b.js": `
import {Base} from './c.js';
export const M1 = (base) => class extends base {
  foo() {}
  bar() {}
};
`,
	"a.js": `
import {M1} from './b.js';
export class Leaf extends M1(Base) {
  foo() {}
  secret() {}
}
`,
	"d.js": `
export function standalone(x) { return x; }
`,
}

func featureNamed(t *testing.T, a *AnalyzedDocument, kind feature.Kind, name string) *feature.Feature {
	t.Helper()
	for _, f := range a.FeaturesOfKind(kind) {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("%s: no %s named %q", a.Path, kind, name)
	return nil
}

func TestAnalyze_CrossDocumentLinearization(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, chain)

	a, err := c.Analyze(testCtx(t), "a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js"}, a.Imports)
	assert.Equal(t, []string{"b.js", "c.js"}, a.Visible())

	leaf := featureNamed(t, a, feature.KindClass, "Leaf")
	methods := leaf.Class.Methods
	assert.Equal(t, []string{"bar", "foo", "fromBase", "secret"}, methods.Names())
	assert.Empty(t, methods["foo"].InheritedFrom, "own declaration wins")
	assert.Equal(t, "M1", methods["bar"].InheritedFrom)
	assert.Equal(t, "Base", methods["fromBase"].InheritedFrom)

	require.NotNil(t, leaf.Class.SuperClass.Target)
	assert.Equal(t, feature.ID{Path: "c.js", Index: 0}, *leaf.Class.SuperClass.Target)
	require.Len(t, leaf.Class.Mixins, 1)
	assert.Equal(t, "b.js", leaf.Class.Mixins[0].Target.Path)

	var overriding []feature.Warning
	for _, w := range leaf.Warnings {
		if w.Code == feature.CodeOverridingPrivate {
			overriding = append(overriding, w)
		}
	}
	require.Len(t, overriding, 1)
	assert.Equal(t, leaf.SourceRange, overriding[0].SourceRange)
}

func TestAnalyze_PublishesWholeClosure(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, chain)
	_, err := c.Analyze(testCtx(t), "a.js")
	require.NoError(t, err)

	for _, p := range []string{"a.js", "b.js", "c.js"} {
		assert.Equal(t, Stages{Parsed: true, Scanned: true, Analyzed: true, DependenciesScanned: true}, c.Cache().Stages(p), p)
	}
	assert.Equal(t, Stages{}, c.Cache().Stages("d.js"))
	assert.Equal(t, []string{"a.js"}, c.Cache().Graph().Dependants("b.js"))
	assert.Equal(t, []string{"a.js", "b.js"}, c.Cache().Graph().AllDependants("c.js"))
}

func TestInvalidate_PreservesUnrelatedEntries(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	c := newTestContext(t, chain)
	_, err := c.Analyze(ctx, "a.js")
	require.NoError(t, err)
	dBefore, err := c.Analyze(ctx, "d.js")
	require.NoError(t, err)

	before := map[string]Result{}
	for _, p := range []string{"a.js", "b.js", "c.js", "d.js"} {
		before[p] = c.Get(p)
	}

	fork := c.Invalidate([]string{"c.js"})

	assert.Equal(t, Stages{}, fork.Cache().Stages("c.js"))
	scannedOnly := Stages{Parsed: true, Scanned: true}
	assert.Equal(t, scannedOnly, fork.Cache().Stages("b.js"))
	assert.Equal(t, scannedOnly, fork.Cache().Stages("a.js"))
	full := Stages{Parsed: true, Scanned: true, Analyzed: true, DependenciesScanned: true}
	assert.Equal(t, full, fork.Cache().Stages("d.js"))
	assert.Same(t, dBefore, fork.Get("d.js").Analyzed)

	// The original cache is untouched.
	for p, r := range before {
		assert.Equal(t, r, c.Get(p), p)
		assert.Equal(t, full, c.Cache().Stages(p), p)
	}

	// Dependants are still reachable from the invalidated path in the fork.
	assert.Equal(t, []string{"a.js", "b.js"}, fork.Cache().Graph().AllDependants("c.js"))
	assert.Empty(t, fork.Cache().Graph().Dependencies("c.js"))
}

func TestInvalidate_ReanalyzesWithNewContents(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	overlay := NewOverlayLoader(FSLoader{FS: mapFS(chain)})
	c := newTestContext(t, chain, WithLoader(overlay))

	oldA, err := c.Analyze(ctx, "a.js")
	require.NoError(t, err)

	overlay.Set("c.js", []byte(`
export class Base extends HTMLElement {
  replaced() {}
}
`))
	fork := c.Invalidate([]string{"c.js"})
	newA, err := fork.Analyze(ctx, "a.js")
	require.NoError(t, err)

	assert.NotSame(t, oldA, newA)
	newLeaf := featureNamed(t, newA, feature.KindClass, "Leaf")
	assert.Contains(t, newLeaf.Class.Methods, "replaced")
	assert.NotContains(t, newLeaf.Class.Methods, "fromBase")

	// The old context still answers from its own point in time.
	again, err := c.Analyze(ctx, "a.js")
	require.NoError(t, err)
	assert.Same(t, oldA, again)
	oldLeaf := featureNamed(t, again, feature.KindClass, "Leaf")
	assert.Contains(t, oldLeaf.Class.Methods, "fromBase")

	// The unchanged middle document was re-resolved but not re-scanned.
	assert.Same(t, c.Get("b.js").Scanned, fork.Get("b.js").Scanned)
}

func TestAnalyze_MissingDependencyIsAWarning(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, map[string]string{
		"app.js": `
import './gone.js';
import './broken.js';
export class App extends Missing {}
`,
		"broken.js": "class {{{\n",
	})

	a, err := c.Analyze(testCtx(t), "app.js")
	require.NoError(t, err)
	assert.Empty(t, a.Imports)

	codes := map[string]int{}
	for _, f := range a.Features {
		for _, w := range f.Warnings {
			codes[w.Code]++
		}
	}
	assert.Equal(t, 2, codes[feature.CodeCouldNotLoad])
	assert.Equal(t, 1, codes[feature.CodeUnresolvedReference])

	_, err = c.Analyze(testCtx(t), "broken.js")
	require.ErrorIs(t, err, scan.ErrSyntax)
	assert.Equal(t, Stages{Parsed: true}, c.Cache().Stages("broken.js"))
}

func TestAnalyze_CyclicImports(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, map[string]string{
		"x.js": `
import './y.js';
export class X extends Y {}
export class Loop extends Loop {}
`,
		"y.js": `
import './x.js';
export class Y extends HTMLElement { y() {} }
`,
	})

	x, err := c.Analyze(testCtx(t), "x.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"y.js"}, x.Visible())

	cls := featureNamed(t, x, feature.KindClass, "X")
	assert.Equal(t, "Y", cls.Class.Methods["y"].InheritedFrom)

	var cyclic int
	for _, w := range x.Warnings {
		if w.Code == feature.CodeCyclicReference {
			cyclic++
		}
	}
	assert.Equal(t, 1, cyclic)

	y, err := c.Analyze(testCtx(t), "y.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.js"}, y.Visible())
}

func TestAnalyze_ResolutionIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	c := newTestContext(t, chain)
	a, err := c.Analyze(ctx, "a.js")
	require.NoError(t, err)

	sd := c.Get("a.js").Scanned
	require.NotNil(t, sd)
	for _, sf := range sd.Features {
		first := sf.Resolve(a)
		second := sf.Resolve(a)
		assert.Equal(t, first, second)
		assert.Equal(t, first.Kinds, sf.Kinds())
		assert.Equal(t, first.Identifiers, sf.Identifiers())
	}
}

func TestAnalyze_ConcurrentCallers(t *testing.T) {
	t.Parallel()
	ctx := testCtx(t)
	c := newTestContext(t, chain)

	paths := []string{"a.js", "b.js", "c.js", "d.js", "a.js", "c.js"}
	results := make([]*AnalyzedDocument, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := c.Analyze(ctx, p)
			assert.NoError(t, err)
			results[i] = a
		}()
	}
	wg.Wait()
	assert.Same(t, results[0], results[4])
	assert.Same(t, results[2], results[5])
}

func TestAnalyze_CustomRootTypes(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, map[string]string{
		"el.js": `export class Widget extends LitElement { render() {} }`,
	}, WithRootTypes("LitElement"))

	a, err := c.Analyze(testCtx(t), "el.js")
	require.NoError(t, err)
	w := featureNamed(t, a, feature.KindClass, "Widget")
	assert.Empty(t, w.Warnings)
	assert.Nil(t, w.Class.SuperClass.Target)
}

func TestAnalyze_HonorsContext(t *testing.T) {
	t.Parallel()
	c := newTestContext(t, chain)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Analyze(ctx, "a.js")
	require.ErrorIs(t, err, context.Canceled)
}
