package document

import sitter "github.com/smacker/go-tree-sitter"

// NodeKind is the closed set of syntax shapes scanners dispatch on. Every
// tree-sitter node maps to exactly one NodeKind for a given document Kind.
type NodeKind int

const (
	NodeOther NodeKind = iota
	NodeFunction
	NodeClass
	NodeImport
	NodeExport
	NodeVariable
	NodeCall
	NodeElement
	NodeAtImport
	NodeComment
)

var nodeKindNames = [...]string{
	NodeOther:    "other",
	NodeFunction: "function",
	NodeClass:    "class",
	NodeImport:   "import",
	NodeExport:   "export",
	NodeVariable: "variable",
	NodeCall:     "call",
	NodeElement:  "element",
	NodeAtImport: "at-import",
	NodeComment:  "comment",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// Classify maps a tree-sitter node to its NodeKind within a document kind.
func Classify(kind Kind, n *sitter.Node) NodeKind {
	t := n.Type()
	if t == "comment" {
		return NodeComment
	}
	switch kind {
	case KindScript:
		switch t {
		case "function_declaration", "generator_function_declaration":
			return NodeFunction
		case "class_declaration", "class":
			return NodeClass
		case "import_statement":
			return NodeImport
		case "export_statement":
			return NodeExport
		case "lexical_declaration", "variable_declaration":
			return NodeVariable
		case "call_expression":
			return NodeCall
		}
	case KindMarkup:
		switch t {
		case "element", "script_element", "style_element":
			return NodeElement
		}
	case KindStyle:
		if t == "import_statement" {
			return NodeAtImport
		}
	}
	return NodeOther
}

// Visitor carries per-kind callbacks for a depth-first traversal. Nil
// callbacks are skipped. Leave callbacks run after a node's subtree.
type Visitor struct {
	EnterFunction func(n *sitter.Node)
	LeaveFunction func(n *sitter.Node)
	EnterClass    func(n *sitter.Node)
	LeaveClass    func(n *sitter.Node)
	EnterImport   func(n *sitter.Node)
	EnterExport   func(n *sitter.Node)
	EnterVariable func(n *sitter.Node)
	EnterCall     func(n *sitter.Node)
	EnterElement  func(n *sitter.Node)
	EnterAtImport func(n *sitter.Node)
	EnterComment  func(n *sitter.Node)
}

func call(fn func(*sitter.Node), n *sitter.Node) {
	if fn != nil {
		fn(n)
	}
}

func (v *Visitor) enter(k NodeKind, n *sitter.Node) {
	switch k {
	case NodeFunction:
		call(v.EnterFunction, n)
	case NodeClass:
		call(v.EnterClass, n)
	case NodeImport:
		call(v.EnterImport, n)
	case NodeExport:
		call(v.EnterExport, n)
	case NodeVariable:
		call(v.EnterVariable, n)
	case NodeCall:
		call(v.EnterCall, n)
	case NodeElement:
		call(v.EnterElement, n)
	case NodeAtImport:
		call(v.EnterAtImport, n)
	case NodeComment:
		call(v.EnterComment, n)
	case NodeOther:
	}
}

func (v *Visitor) leave(k NodeKind, n *sitter.Node) {
	switch k {
	case NodeFunction:
		call(v.LeaveFunction, n)
	case NodeClass:
		call(v.LeaveClass, n)
	case NodeOther, NodeImport, NodeExport, NodeVariable, NodeCall,
		NodeElement, NodeAtImport, NodeComment:
	}
}

// Visit walks the whole document depth-first, invoking v's callbacks.
func (d *Document) Visit(v Visitor) {
	d.walk(d.Root(), &v)
}

func (d *Document) walk(n *sitter.Node, v *Visitor) {
	if n == nil {
		return
	}
	k := Classify(d.Kind, n)
	v.enter(k, n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d.walk(n.NamedChild(i), v)
	}
	v.leave(k, n)
}
