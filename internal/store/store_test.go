package store

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/analysis"
	"github.com/jward/trellis/internal/feature"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

var project = map[string]string{
	"base.js": `export class Base extends HTMLElement {
  /** @private */
  secret() {}
  hello(name) {}
}
`,
	"app.js": `import {Base} from './base.js';

export function greet(name, greeting) {
  return greeting + name;
}

class FancyButton extends Base {
  static get properties() {
    return {label: String};
  }
  secret() {}
}
customElements.define('fancy-button', FancyButton);
`,
	"leaf.js": `import {greet} from './app.js';
`,
}

// analyze runs the analysis pipeline over files and returns the analyzed
// form of every path in order.
func analyze(t *testing.T, files map[string]string, paths ...string) []*analysis.AnalyzedDocument {
	t.Helper()
	fsys := fstest.MapFS{}
	for p, src := range files {
		fsys[p] = &fstest.MapFile{Data: []byte(src)}
	}
	actx := analysis.NewContext(fsys)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	docs := make([]*analysis.AnalyzedDocument, len(paths))
	for i, p := range paths {
		a, err := actx.Analyze(ctx, p)
		require.NoError(t, err)
		docs[i] = a
	}
	return docs
}

func exportProject(t *testing.T, s *Store, files map[string]string) Diff {
	t.Helper()
	diff, err := s.Export(context.Background(), analyze(t, files, "base.js", "app.js", "leaf.js"))
	require.NoError(t, err)
	return diff
}

func featureByName(t *testing.T, features []Feature, name string) Feature {
	t.Helper()
	for _, f := range features {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no feature named %q", name)
	return Feature{}
}

func withFile(files map[string]string, path, src string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	out[path] = src
	return out
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{
		"documents", "features", "feature_identifiers", "members", "params", "warnings", "dependencies", "metadata",
	} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_BadPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.Error(t, err)
}

// =============================================================================
// Export
// =============================================================================

func TestExport_Documents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	diff := exportProject(t, s, project)
	assert.NotEmpty(t, diff.Added)
	assert.Empty(t, diff.Changed)
	assert.Empty(t, diff.Removed)

	docs, err := s.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "app.js", docs[0].Path)
	assert.Equal(t, "script", docs[0].Kind)
	assert.NotEmpty(t, docs[0].Hash)
	assert.False(t, docs[0].LastAnalyzed.IsZero())

	doc, err := s.DocumentByPath("base.js")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Positive(t, doc.ID)

	missing, err := s.DocumentByPath("nope.js")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExport_FeaturesAndMembers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	features, err := s.FeaturesByDocument("app.js")
	require.NoError(t, err)
	for i, f := range features {
		assert.Equal(t, i, f.Ordinal, "features are in declaration order")
		assert.Equal(t, "app.js", f.Path)
		assert.NotEmpty(t, f.SignatureHash)
	}

	greet := featureByName(t, features, "greet")
	assert.Equal(t, []string{"function"}, greet.Kinds)
	assert.Equal(t, []string{"greet"}, greet.Identifiers)
	assert.Equal(t, "app.js#function:greet", greet.Key)
	assert.Equal(t, 2, greet.StartLine)

	params, err := s.ParamsByFeature(greet.ID, nil)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "name", params[0].Name)
	assert.Equal(t, "greeting", params[1].Name)
	assert.Nil(t, params[0].MemberID)

	button := featureByName(t, features, "FancyButton")
	assert.Equal(t, []string{"class", "element"}, button.Kinds)
	assert.Equal(t, []string{"FancyButton", "fancy-button"}, button.Identifiers)
	assert.Equal(t, "fancy-button", button.TagName)
	assert.Equal(t, "Base", button.SuperClass)

	members, err := s.MembersByFeature(button.ID)
	require.NoError(t, err)
	byName := make(map[string]Member)
	for _, m := range members {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "label")
	assert.Equal(t, "property", byName["label"].Kind)
	assert.Equal(t, "String", byName["label"].TypeExpr)
	require.Contains(t, byName, "hello")
	assert.Equal(t, "Base", byName["hello"].InheritedFrom)
	assert.Empty(t, byName["secret"].InheritedFrom, "own declaration wins")

	helloID := byName["hello"].ID
	helloParams, err := s.ParamsByFeature(button.ID, &helloID)
	require.NoError(t, err)
	require.Len(t, helloParams, 1)
	assert.Equal(t, "name", helloParams[0].Name)
}

func TestExport_Imports(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	imports, err := s.FeaturesByKind(feature.KindImport)
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, "app.js", imports[0].Path)
	assert.Equal(t, "base.js", imports[0].ImportURL)
	assert.Equal(t, "leaf.js", imports[1].Path)
	assert.Equal(t, "app.js", imports[1].ImportURL)
}

func TestFeaturesByIdentifier(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	byTag, err := s.FeaturesByIdentifier("fancy-button")
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "FancyButton", byTag[0].Name)

	none, err := s.FeaturesByIdentifier("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFeatureByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	f, err := s.FeatureByKey("app.js#class,element:FancyButton")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "app.js", f.Path)
	assert.Equal(t, "fancy-button", f.TagName)

	f, err = s.FeatureByKey("app.js#function:missing")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestFeaturesByKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	elements, err := s.FeaturesByKind(feature.KindElement)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "FancyButton", elements[0].Name)

	classes, err := s.FeaturesByKind(feature.KindClass)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "FancyButton", classes[0].Name, "app.js sorts before base.js")
	assert.Equal(t, "Base", classes[1].Name)
}

func TestWarnings_SeverityFilter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	all, err := s.Warnings(feature.SeverityInfo)
	require.NoError(t, err)
	var overriding *Warning
	for i := range all {
		if all[i].Code == feature.CodeOverridingPrivate {
			overriding = &all[i]
		}
	}
	require.NotNil(t, overriding)
	assert.Equal(t, "app.js", overriding.Path)
	assert.Equal(t, feature.SeverityWarning, overriding.Severity)
	require.NotNil(t, overriding.FeatureID, "feature warnings keep their owner")

	errs, err := s.Warnings(feature.SeverityError)
	require.NoError(t, err)
	for _, w := range errs {
		assert.Equal(t, feature.SeverityError, w.Severity)
	}

	docWarnings, err := s.WarningsByDocument("app.js")
	require.NoError(t, err)
	assert.NotEmpty(t, docWarnings)
	leafWarnings, err := s.WarningsByDocument("leaf.js")
	require.NoError(t, err)
	assert.Empty(t, leafWarnings)
}

func TestExport_DocumentWarnings(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	files := map[string]string{"broken.js": "import {x} from './missing.js';\n"}
	_, err := s.Export(context.Background(), analyze(t, files, "broken.js"))
	require.NoError(t, err)

	warnings, err := s.WarningsByDocument("broken.js")
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Equal(t, "broken.js", warnings[0].Path)
}

// =============================================================================
// Dependencies
// =============================================================================

func TestDependencies(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	deps, err := s.Dependencies("app.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"base.js"}, deps)

	dependants, err := s.Dependants("base.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js"}, dependants)

	transitive, err := s.TransitiveDependants("base.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js", "leaf.js"}, transitive)

	leaf, err := s.TransitiveDependants("leaf.js")
	require.NoError(t, err)
	assert.Empty(t, leaf)
}

func TestTransitiveDependants_Cycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	files := map[string]string{
		"a.js": "import {b} from './b.js';\nexport function a() {}\n",
		"b.js": "import {a} from './a.js';\nexport function b() {}\n",
	}
	_, err := s.Export(context.Background(), analyze(t, files, "a.js", "b.js"))
	require.NoError(t, err)

	got, err := s.TransitiveDependants("a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js"}, got)
}

// =============================================================================
// Re-export and deletion
// =============================================================================

func TestExport_ReexportIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)
	before, err := s.FeaturesByDocument("app.js")
	require.NoError(t, err)

	diff := exportProject(t, s, project)
	assert.True(t, diff.Empty(), "unchanged sources produce an empty diff: %+v", diff)

	after, err := s.FeaturesByDocument("app.js")
	require.NoError(t, err)
	assert.Len(t, after, len(before), "old rows are replaced, not duplicated")
}

func TestExport_DiffIgnoresMovedFeatures(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	moved := withFile(project, "base.js", "\n\n"+project["base.js"])
	diff := exportProject(t, s, moved)
	assert.True(t, diff.Empty(), "location changes do not alter signatures: %+v", diff)

	base, err := s.FeaturesByDocument("base.js")
	require.NoError(t, err)
	assert.Equal(t, 2, featureByName(t, base, "Base").StartLine)
}

func TestExport_DiffReportsChanges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	changed := withFile(project, "app.js", `import {Base} from './base.js';

export function greet(name) {
  return name;
}

export function wave() {}
`)
	diff := exportProject(t, s, changed)
	assert.Equal(t, []string{"app.js#function:greet"}, diff.Changed)
	assert.Equal(t, []string{"app.js#function:wave"}, diff.Added)
	assert.Equal(t, []string{"app.js#class,element:FancyButton"}, diff.Removed)
}

func TestDeleteDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	require.NoError(t, s.DeleteDocument("app.js"))
	doc, err := s.DocumentByPath("app.js")
	require.NoError(t, err)
	assert.Nil(t, doc)

	features, err := s.FeaturesByDocument("app.js")
	require.NoError(t, err)
	assert.Empty(t, features)

	dependants, err := s.Dependants("base.js")
	require.NoError(t, err)
	assert.Empty(t, dependants)

	// Unknown paths are not an error.
	require.NoError(t, s.DeleteDocument("app.js"))
}

func TestPrune(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	exportProject(t, s, project)

	removed, err := s.Prune([]string{"base.js", "app.js"})
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf.js"}, removed)

	docs, err := s.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	removed, err = s.Prune(nil)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
}

func TestExport_CanceledContext(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	docs := analyze(t, project, "base.js")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Export(ctx, docs)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := s.Documents()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("scripts_hash", "a"))
	require.NoError(t, s.SetMetadata("scripts_hash", "b"))
	v, err = s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}
