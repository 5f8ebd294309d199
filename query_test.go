package trellis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/feature"
)

var elementsProject = map[string]string{
	"src/clickable.js": `export const Clickable = (base) => class extends base {
  click() {}
  /** @private */
  _handle() {}
};
`,
	"src/button.js": `import {Clickable} from './clickable.js';

export class FancyButton extends Clickable(HTMLElement) {
  static get properties() {
    return {label: String};
  }
  _handle() {}
}
customElements.define('fancy-button', FancyButton);

export function makeButton(label) {}
`,
	"src/app.js": `import {FancyButton} from './button.js';
export function boot() {}
`,
	"lib/util.js": `/** @private */
export function helper() {}
`,
}

func newQueryEngine(t *testing.T) *QueryBuilder {
	t.Helper()
	e := newTestEngine(t, elementsProject)
	_, err := e.AnalyzeDirectory(testCtx(t))
	require.NoError(t, err)
	return e.Query()
}

func TestQuery_Documents(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)
	assert.Equal(t, []string{"lib/util.js", "src/app.js", "src/button.js", "src/clickable.js"}, q.Documents())
	require.NotNil(t, q.Document("src/app.js"))
	assert.Nil(t, q.Document("nope.js"))
}

func TestQuery_EmptySnapshot(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, elementsProject)
	q := e.Query()
	assert.Empty(t, q.Documents(), "nothing analyzed yet")
	assert.Empty(t, q.FeaturesByKind(KindClass))
}

func TestQuery_FeaturesByKind(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	mixins := q.FeaturesByKind(KindMixin)
	require.Len(t, mixins, 1)
	assert.Equal(t, "Clickable", mixins[0].Name)

	fns := q.FeaturesByKind(KindFunction)
	var names []string
	for _, f := range fns {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"helper", "boot", "makeButton", "Clickable"}, names,
		"path order, then declaration order; a mixin assigned to a variable is also a function")
}

func TestQuery_ElementAndMembers(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	button := q.Element("fancy-button")
	require.NotNil(t, button)
	assert.Equal(t, "FancyButton", button.Name)
	assert.Nil(t, q.Element("no-such-element"))

	members := q.Members(button)
	var names []string
	for _, m := range members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"label", "_handle", "click"}, names, "properties first, then methods")
	for _, m := range members {
		if m.Name == "click" {
			assert.Equal(t, "Clickable", m.InheritedFrom)
		}
	}
	assert.Nil(t, q.Members(nil))
}

func TestQuery_FeaturesByIdentifier(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	byName := q.FeaturesByIdentifier("FancyButton")
	byTag := q.FeaturesByIdentifier("fancy-button")
	require.Len(t, byName, 1)
	require.Len(t, byTag, 1)
	assert.Same(t, byName[0], byTag[0])

	assert.Same(t, byName[0], q.Feature(byName[0].ID))
	assert.Nil(t, q.Feature(FeatureID{Path: "src/app.js", Index: 99}))
}

func TestQuery_ResolveFromDocument(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	found := q.Resolve("src/app.js", KindClass, "FancyButton")
	require.NotNil(t, found)
	assert.Equal(t, "src/button.js", found.ID.Path)

	assert.Nil(t, q.Resolve("lib/util.js", KindClass, "FancyButton"), "not imported from there")
	assert.Nil(t, q.Resolve("missing.js", KindClass, "FancyButton"))
}

func TestQuery_Dependencies(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	assert.Equal(t, []string{"src/button.js"}, q.Dependencies("src/app.js"))
	assert.Equal(t, []string{"src/button.js"}, q.Dependants("src/clickable.js"))
	assert.Equal(t, []string{"src/app.js", "src/button.js"}, q.TransitiveDependants("src/clickable.js"))
	assert.Empty(t, q.TransitiveDependants("src/app.js"))
	assert.Nil(t, q.Dependencies("missing.js"))
}

func TestQuery_Warnings(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	all := q.Warnings(SeverityInfo)
	var codes []string
	for _, w := range all {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, feature.CodeOverridingPrivate)

	for _, w := range q.Warnings(SeverityError) {
		assert.Equal(t, SeverityError, w.Severity)
	}
}

func TestQuery_SearchFeatures(t *testing.T) {
	t.Parallel()
	q := newQueryEngine(t)

	tests := []struct {
		name   string
		filter FeatureFilter
		page   Pagination
		want   []string
		total  int
	}{
		{
			name:   "by kind",
			filter: FeatureFilter{Kinds: []Kind{KindClass, KindMixin}},
			want:   []string{"FancyButton", "Clickable"},
			total:  2,
		},
		{
			name:   "path prefix",
			filter: FeatureFilter{PathPrefix: "lib", Kinds: []Kind{KindFunction}},
			want:   []string{"helper"},
			total:  1,
		},
		{
			name:   "prefix is a directory",
			filter: FeatureFilter{PathPrefix: "sr"},
			want:   nil,
			total:  0,
		},
		{
			name:   "privacy",
			filter: FeatureFilter{Privacy: ptr(feature.Private), Kinds: []Kind{KindFunction}},
			want:   []string{"helper"},
			total:  1,
		},
		{
			name:   "name substring",
			filter: FeatureFilter{Name: "Button"},
			want:   []string{"FancyButton", "makeButton"},
			total:  2,
		},
		{
			name:   "paged",
			filter: FeatureFilter{Kinds: []Kind{KindFunction}},
			page:   Pagination{Offset: 1, Limit: 1},
			want:   []string{"boot"},
			total:  4,
		},
		{
			name:   "offset past end",
			filter: FeatureFilter{Kinds: []Kind{KindFunction}},
			page:   Pagination{Offset: 10},
			want:   nil,
			total:  4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := q.SearchFeatures(tt.filter, tt.page)
			var names []string
			for _, f := range res.Items {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, tt.total, res.TotalCount)
		})
	}
}

func TestPagination_Normalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Pagination{Offset: 0, Limit: defaultLimit}, Pagination{Offset: -3}.normalize())
	assert.Equal(t, Pagination{Offset: 2, Limit: maxLimit}, Pagination{Offset: 2, Limit: 10_000}.normalize())
}

func ptr[T any](v T) *T { return &v }
