package scan

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
)

// FunctionScanner extracts top-level function declarations and top-level
// variables initialized with a function or arrow function.
type FunctionScanner struct{}

func (s *FunctionScanner) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	var out []feature.ScannedFeature

	visit(document.Visitor{
		EnterFunction: func(n *sitter.Node) {
			if !topLevel(n) {
				return
			}
			name := n.ChildByFieldName("name")
			if name == nil {
				return
			}
			out = append(out, s.function(doc, n, n, doc.Text(name)))
		},
		EnterVariable: func(n *sitter.Node) {
			if !topLevel(n) {
				return
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				decl := n.NamedChild(i)
				if decl.Type() != "variable_declarator" {
					continue
				}
				name, value := decl.ChildByFieldName("name"), decl.ChildByFieldName("value")
				if name == nil || value == nil || name.Type() != "identifier" || !isFunctionNode(value) {
					continue
				}
				out = append(out, s.function(doc, n, value, doc.Text(name)))
			}
		},
	})
	return out, nil, nil
}

// function builds a ScannedFunction. decl is the statement carrying the doc
// comment and export; fn holds the parameters.
func (s *FunctionScanner) function(doc *document.Document, decl, fn *sitter.Node, name string) *ScannedFunction {
	jsdoc := docComment(doc, decl)
	return &ScannedFunction{
		Name:        name,
		Description: jsdoc.Description,
		Privacy:     PrivacyForName(name, jsdoc),
		Params:      paramsOf(doc, fn, jsdoc),
		Return:      returnType(jsdoc),
		Exported:    exported(decl),
		SourceRange: doc.SourceRangeForNode(decl),
	}
}
