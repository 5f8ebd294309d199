package scan

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/resolve"
)

// NewImport resolves a specifier found in doc into a ScannedImport. An
// unresolvable specifier yields an import with no URL and a warning.
func NewImport(r *resolve.Resolver, doc *document.Document, specifier, kind string, lazy bool, rng document.SourceRange) *ScannedImport {
	imp := &ScannedImport{
		Specifier:   specifier,
		ImportKind:  kind,
		Lazy:        lazy,
		SourceRange: rng,
	}
	if resolve.IsURL(specifier) {
		return imp
	}
	if url, ok := r.URL(specifier, doc.Path); ok {
		imp.URL = url
		return imp
	}
	imp.Warnings = append(imp.Warnings, feature.NewWarning(
		feature.CodeCantResolveSpecifier, feature.SeverityWarning, rng,
		"cannot resolve module specifier %q", specifier,
	))
	return imp
}

// urlSpecifier treats a markup or style reference as a relative URL, which
// is what a bare "foo.js" means in those languages.
func urlSpecifier(ref string) string {
	if resolve.IsURL(ref) || resolve.IsPathLike(ref) {
		return ref
	}
	return "./" + ref
}

// ScriptImportScanner extracts import declarations, export-from
// declarations and dynamic import() calls. Dynamic imports are lazy and do
// not make the imported document a dependency.
type ScriptImportScanner struct {
	Resolver *resolve.Resolver
}

func (s *ScriptImportScanner) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	var out []feature.ScannedFeature
	add := func(source *sitter.Node, kind string, lazy bool) {
		spec := stringValue(doc, source)
		if spec == "" {
			return
		}
		out = append(out, NewImport(s.Resolver, doc, spec, kind, lazy, doc.SourceRangeForNode(source)))
	}

	visit(document.Visitor{
		EnterImport: func(n *sitter.Node) {
			add(n.ChildByFieldName("source"), ImportJS, false)
		},
		EnterExport: func(n *sitter.Node) {
			if src := n.ChildByFieldName("source"); src != nil {
				add(src, ImportJSExport, false)
			}
		},
		EnterCall: func(n *sitter.Node) {
			fn := n.ChildByFieldName("function")
			if fn == nil || fn.Type() != "import" {
				return
			}
			args := n.ChildByFieldName("arguments")
			if args == nil || args.NamedChildCount() == 0 {
				return
			}
			add(args.NamedChild(0), ImportJSDynamic, true)
		},
	})
	return out, nil, nil
}

// MarkupImportScanner extracts HTML imports, external scripts and
// stylesheet links.
type MarkupImportScanner struct {
	Resolver *resolve.Resolver
}

func (s *MarkupImportScanner) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	var out []feature.ScannedFeature
	add := func(elem *sitter.Node, attr, kind string) {
		ref, ok := doc.Attribute(elem, attr)
		if !ok || strings.TrimSpace(ref) == "" {
			return
		}
		rng, _ := doc.SourceRangeForAttributeValue(elem, attr)
		out = append(out, NewImport(s.Resolver, doc, urlSpecifier(strings.TrimSpace(ref)), kind, false, rng))
	}

	visit(document.Visitor{
		EnterElement: func(n *sitter.Node) {
			switch doc.TagName(n) {
			case "link":
				rel, _ := doc.Attribute(n, "rel")
				for _, r := range strings.Fields(strings.ToLower(rel)) {
					switch r {
					case "import":
						add(n, "href", ImportHTML)
						return
					case "stylesheet":
						add(n, "href", ImportHTMLStyle)
						return
					}
				}
			case "script":
				kind := ImportHTMLScript
				if t, _ := doc.Attribute(n, "type"); strings.EqualFold(t, "module") {
					kind = ImportHTMLModule
				}
				add(n, "src", kind)
			}
		},
	})
	return out, nil, nil
}

// StyleImportScanner extracts @import rules, in both the string and url()
// forms.
type StyleImportScanner struct {
	Resolver *resolve.Resolver
}

func (s *StyleImportScanner) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	var out []feature.ScannedFeature
	visit(document.Visitor{
		EnterAtImport: func(n *sitter.Node) {
			target := cssImportTarget(n)
			if target == nil {
				return
			}
			ref := strings.Trim(strings.TrimSpace(doc.Text(target)), `"'`)
			if ref == "" {
				return
			}
			out = append(out, NewImport(s.Resolver, doc, urlSpecifier(ref), ImportCSS, false, doc.SourceRangeForNode(target)))
		},
	})
	return out, nil, nil
}

// cssImportTarget returns the node holding the imported location: a
// string_value, or the argument of url(...).
func cssImportTarget(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "string_value":
			return c
		case "call_expression":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				args := c.NamedChild(j)
				if args.Type() == "arguments" && args.NamedChildCount() > 0 {
					return args.NamedChild(0)
				}
			}
		}
	}
	return nil
}
