// Package document is the parser adapter: it turns raw script, markup and
// style text into an immutable Document backed by a tree-sitter syntax tree
// and answers source-range questions about its nodes.
package document

import (
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind classifies a document by the family of language it holds.
type Kind string

const (
	KindScript Kind = "script"
	KindMarkup Kind = "markup"
	KindStyle  Kind = "style"
)

// Position is a zero-based line and byte column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SourceRange locates a span of text inside a document.
type SourceRange struct {
	Path  string   `json:"path"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (r SourceRange) String() string {
	return fmt.Sprintf("%s:%d:%d", r.Path, r.Start.Line+1, r.Start.Column+1)
}

// Document is a parsed source file. It is never mutated after Parse returns,
// so it may be shared freely between cache forks and goroutines.
type Document struct {
	Path     string
	Kind     Kind
	Language string
	Contents []byte
	Hash     string

	tree *sitter.Tree
}

// Root returns the root node of the syntax tree.
func (d *Document) Root() *sitter.Node {
	return d.tree.RootNode()
}

// Text returns the source text covered by n.
func (d *Document) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(d.Contents)
}

// SourceRangeForNode returns the range covered by n.
func (d *Document) SourceRangeForNode(n *sitter.Node) SourceRange {
	if n == nil {
		return SourceRange{Path: d.Path}
	}
	start, end := n.StartPoint(), n.EndPoint()
	return SourceRange{
		Path:  d.Path,
		Start: Position{Line: int(start.Row), Column: int(start.Column)},
		End:   Position{Line: int(end.Row), Column: int(end.Column)},
	}
}

// SourceRangeForAttribute returns the range of the whole name="value"
// attribute on a markup element.
func (d *Document) SourceRangeForAttribute(elem *sitter.Node, name string) (SourceRange, bool) {
	attr := d.findAttribute(elem, name)
	if attr == nil {
		return SourceRange{}, false
	}
	return d.SourceRangeForNode(attr), true
}

// SourceRangeForAttributeValue returns the range of an attribute's value,
// excluding the surrounding quotes.
func (d *Document) SourceRangeForAttributeValue(elem *sitter.Node, name string) (SourceRange, bool) {
	attr := d.findAttribute(elem, name)
	if attr == nil {
		return SourceRange{}, false
	}
	v := attributeValueNode(attr)
	if v == nil {
		return SourceRange{}, false
	}
	return d.SourceRangeForNode(v), true
}

// Attribute returns the unquoted value of a markup element attribute.
func (d *Document) Attribute(elem *sitter.Node, name string) (string, bool) {
	attr := d.findAttribute(elem, name)
	if attr == nil {
		return "", false
	}
	v := attributeValueNode(attr)
	if v == nil {
		// Boolean attribute such as <script nomodule>.
		return "", true
	}
	return d.Text(v), true
}

// TagName returns the lower-cased tag name of a markup element.
func (d *Document) TagName(elem *sitter.Node) string {
	tag := startTag(elem)
	if tag == nil {
		return ""
	}
	for i := 0; i < int(tag.NamedChildCount()); i++ {
		c := tag.NamedChild(i)
		if c.Type() == "tag_name" {
			return strings.ToLower(d.Text(c))
		}
	}
	return ""
}

func (d *Document) findAttribute(elem *sitter.Node, name string) *sitter.Node {
	tag := startTag(elem)
	if tag == nil {
		return nil
	}
	for i := 0; i < int(tag.NamedChildCount()); i++ {
		attr := tag.NamedChild(i)
		if attr.Type() != "attribute" {
			continue
		}
		for j := 0; j < int(attr.NamedChildCount()); j++ {
			c := attr.NamedChild(j)
			if c.Type() == "attribute_name" && strings.EqualFold(d.Text(c), name) {
				return attr
			}
		}
	}
	return nil
}

func startTag(elem *sitter.Node) *sitter.Node {
	if elem == nil {
		return nil
	}
	switch elem.Type() {
	case "start_tag", "self_closing_tag":
		return elem
	}
	for i := 0; i < int(elem.NamedChildCount()); i++ {
		c := elem.NamedChild(i)
		if c.Type() == "start_tag" || c.Type() == "self_closing_tag" {
			return c
		}
	}
	return nil
}

func attributeValueNode(attr *sitter.Node) *sitter.Node {
	for i := 0; i < int(attr.NamedChildCount()); i++ {
		c := attr.NamedChild(i)
		switch c.Type() {
		case "attribute_value":
			return c
		case "quoted_attribute_value":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if v := c.NamedChild(j); v.Type() == "attribute_value" {
					return v
				}
			}
			// Empty quoted value: point at the quotes themselves.
			return c
		}
	}
	return nil
}

// HasSyntaxErrors reports whether the tree contains error or missing nodes.
func (d *Document) HasSyntaxErrors() bool {
	return d.Root().HasError()
}

// FirstSyntaxError returns the first error or missing node in document
// order, or nil when the tree is clean.
func (d *Document) FirstSyntaxError() *sitter.Node {
	if !d.HasSyntaxErrors() {
		return nil
	}
	return firstError(d.Root())
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			if found := firstError(c); found != nil {
				return found
			}
		}
	}
	return nil
}

// CanonicalPath normalizes p into the slash-separated, root-relative form
// used as the key throughout an analysis.
func CanonicalPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
