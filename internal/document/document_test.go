package document

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, path, src string) *Document {
	t.Helper()
	doc, err := NewParser().Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return doc
}

func TestKindForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Kind
		ok   bool
	}{
		{"app.js", KindScript, true},
		{"lib/app.mjs", KindScript, true},
		{"index.html", KindMarkup, true},
		{"INDEX.HTM", KindMarkup, true},
		{"theme.css", KindStyle, true},
		{"README.md", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, ok := KindForFile(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_UnsupportedKind(t *testing.T) {
	t.Parallel()
	_, err := NewParser().Parse(context.Background(), "notes.txt", []byte("hi"))
	require.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestParse_ScriptDocument(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "./src/../src/app.js", "function greet(name) { return name; }\n")

	assert.Equal(t, "src/app.js", doc.Path)
	assert.Equal(t, KindScript, doc.Kind)
	assert.Equal(t, "javascript", doc.Language)
	assert.Equal(t, "program", doc.Root().Type())
	assert.Equal(t, Hash(doc.Contents), doc.Hash)
	assert.False(t, doc.HasSyntaxErrors())
	assert.Nil(t, doc.FirstSyntaxError())
}

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()
	src := "class A extends B {}\n"
	a := mustParse(t, "a.js", src)
	b := mustParse(t, "a.js", src)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Root().String(), b.Root().String())
}

func TestParse_SyntaxErrorRecovered(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "broken.js", "class {{{ \n")
	assert.True(t, doc.HasSyntaxErrors())
	require.NotNil(t, doc.FirstSyntaxError())
}

func TestSourceRangeForNode(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "a.js", "\n  function foo() {}\n")

	var fn *sitter.Node
	doc.Visit(Visitor{EnterFunction: func(n *sitter.Node) { fn = n }})
	require.NotNil(t, fn)

	r := doc.SourceRangeForNode(fn)
	assert.Equal(t, "a.js", r.Path)
	assert.Equal(t, Position{Line: 1, Column: 2}, r.Start)
	assert.Equal(t, Position{Line: 1, Column: 19}, r.End)
	assert.Equal(t, "a.js:2:3", r.String())
}

func TestMarkupAttributes(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "index.html", `<link rel="import" href="elements/x-foo.html">`+"\n")

	var link *sitter.Node
	doc.Visit(Visitor{EnterElement: func(n *sitter.Node) {
		if doc.TagName(n) == "link" {
			link = n
		}
	}})
	require.NotNil(t, link)

	rel, ok := doc.Attribute(link, "rel")
	require.True(t, ok)
	assert.Equal(t, "import", rel)

	href, ok := doc.Attribute(link, "HREF")
	require.True(t, ok)
	assert.Equal(t, "elements/x-foo.html", href)

	valueRange, ok := doc.SourceRangeForAttributeValue(link, "href")
	require.True(t, ok)
	assert.Equal(t, 25, valueRange.Start.Column)

	attrRange, ok := doc.SourceRangeForAttribute(link, "href")
	require.True(t, ok)
	assert.Equal(t, 19, attrRange.Start.Column)

	_, ok = doc.Attribute(link, "missing")
	assert.False(t, ok)
}

func TestVisit_EnterLeaveOrder(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, "a.js", `
function outer() {
  function inner() {}
}
class C {}
`)

	var events []string
	doc.Visit(Visitor{
		EnterFunction: func(n *sitter.Node) {
			events = append(events, "enter:"+doc.Text(n.ChildByFieldName("name")))
		},
		LeaveFunction: func(n *sitter.Node) {
			events = append(events, "leave:"+doc.Text(n.ChildByFieldName("name")))
		},
		EnterClass: func(n *sitter.Node) {
			events = append(events, "class:"+doc.Text(n.ChildByFieldName("name")))
		},
	})

	assert.Equal(t, []string{
		"enter:outer", "enter:inner", "leave:inner", "leave:outer", "class:C",
	}, events)
}

func TestClassify_DependsOnDocumentKind(t *testing.T) {
	t.Parallel()
	style := mustParse(t, "a.css", `@import "base.css";`+"\n")

	var imports int
	style.Visit(Visitor{
		EnterAtImport: func(*sitter.Node) { imports++ },
		EnterImport:   func(*sitter.Node) { t.Fatal("script import callback fired for a stylesheet") },
	})
	assert.Equal(t, 1, imports)
}

func TestCanonicalPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a/b.js", CanonicalPath("/a/./b.js"))
	assert.Equal(t, "a/b.js", CanonicalPath(`a\b.js`))
	assert.Equal(t, "b.js", CanonicalPath("a/../b.js"))
}

func TestNodeKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "class", NodeClass.String())
	assert.Equal(t, "unknown", NodeKind(99).String())
}
