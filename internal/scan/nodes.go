package scan

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
)

// statementOf climbs from a declared value to the statement that a doc
// comment would precede.
func statementOf(n *sitter.Node) *sitter.Node {
	for {
		p := n.Parent()
		if p == nil {
			return n
		}
		switch p.Type() {
		case "variable_declarator", "lexical_declaration", "variable_declaration", "export_statement":
			n = p
		default:
			return n
		}
	}
}

// docComment returns the JSDoc block directly preceding n's statement.
func docComment(doc *document.Document, n *sitter.Node) JSDoc {
	prev := statementOf(n).PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return JSDoc{}
	}
	return ParseJSDoc(doc.Text(prev))
}

// topLevel reports whether a declaration sits directly in the program,
// optionally behind an export.
func topLevel(n *sitter.Node) bool {
	p := n.Parent()
	if p != nil && p.Type() == "export_statement" {
		p = p.Parent()
	}
	return p != nil && p.Type() == "program"
}

func exported(n *sitter.Node) bool {
	p := n.Parent()
	return p != nil && p.Type() == "export_statement"
}

// stringValue returns the contents of a string literal, or "" when n is not
// a plain string.
func stringValue(doc *document.Document, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "string", "string_value":
	case "template_string":
		if n.NamedChildCount() > 0 && n.NamedChild(0).Type() == "template_substitution" {
			return ""
		}
	default:
		return ""
	}
	text := doc.Text(n)
	if len(text) < 2 {
		return ""
	}
	return text[1 : len(text)-1]
}

func paramName(doc *document.Document, p *sitter.Node) string {
	if p == nil {
		return ""
	}
	switch p.Type() {
	case "identifier":
		return doc.Text(p)
	case "assignment_pattern":
		return paramName(doc, p.ChildByFieldName("left"))
	case "rest_pattern":
		if p.NamedChildCount() > 0 {
			return "..." + paramName(doc, p.NamedChild(0))
		}
		return ""
	case "comment":
		return ""
	}
	return doc.Text(p)
}

// paramsOf lists the parameters of a function-like node, filling in types
// and descriptions from its JSDoc.
func paramsOf(doc *document.Document, fn *sitter.Node, jsdoc JSDoc) []feature.Param {
	var nodes []*sitter.Node
	if single := fn.ChildByFieldName("parameter"); single != nil {
		nodes = append(nodes, single)
	} else if params := fn.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			nodes = append(nodes, params.NamedChild(i))
		}
	}

	var out []feature.Param
	for _, n := range nodes {
		name := paramName(doc, n)
		if name == "" {
			continue
		}
		p := feature.Param{Name: name}
		if tag, ok := jsdoc.Param(strings.TrimPrefix(name, "...")); ok {
			p.Type = tag.Type
			p.Description = tag.Description
		}
		out = append(out, p)
	}
	return out
}

func returnType(jsdoc JSDoc) string {
	if t, ok := jsdoc.Return(); ok {
		return t.Type
	}
	return ""
}

// returnedNode finds the expression of the first top-level return statement
// in a function body.
func returnedNode(body *sitter.Node) *sitter.Node {
	if body == nil {
		return nil
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		st := body.NamedChild(i)
		if st.Type() != "return_statement" || st.NamedChildCount() == 0 {
			continue
		}
		v := st.NamedChild(0)
		for v != nil && v.Type() == "parenthesized_expression" && v.NamedChildCount() > 0 {
			v = v.NamedChild(0)
		}
		return v
	}
	return nil
}

func isFunctionNode(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "function_declaration":
		return true
	}
	return false
}
