package scan

import (
	"context"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
)

// ClassScanner extracts classes, custom elements and mixins.
//
// A mixin is a function, declared or assigned to a variable, whose body
// returns a class expression extending the function's first parameter,
// e.g. `const M = (base) => class extends base {}`. The assignment may wrap
// the function in one call such as dedupingMixin(...).
//
// Custom elements are classes registered with customElements.define or
// declaring a `static get is()` getter.
type ClassScanner struct{}

type define struct {
	tag       string
	className string
	rng       document.SourceRange
}

func (s *ClassScanner) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	var (
		classes  []*ScannedClass
		defines  []define
		warnings []feature.Warning
	)

	visit(document.Visitor{
		EnterClass: func(n *sitter.Node) {
			if c := s.class(doc, n); c != nil {
				classes = append(classes, c)
			}
		},
		EnterCall: func(n *sitter.Node) {
			tag, arg, ok := defineCall(doc, n)
			if !ok || arg.Type() == "class" {
				return
			}
			defines = append(defines, define{
				tag:       tag,
				className: doc.Text(arg),
				rng:       doc.SourceRangeForNode(arg),
			})
		},
	})

	for _, d := range defines {
		i := slices.IndexFunc(classes, func(c *ScannedClass) bool {
			return !c.Mixin && c.Name == d.className
		})
		if i < 0 {
			warnings = append(warnings, feature.NewWarning(
				feature.CodeUnknownElementClass, feature.SeverityWarning, d.rng,
				"element %q is defined with %s, which is not a class declared in this document",
				d.tag, d.className,
			))
			continue
		}
		c := classes[i]
		if c.TagName != "" && c.TagName != d.tag {
			c.Warnings = append(c.Warnings, feature.NewWarning(
				feature.CodeMalformedDeclaration, feature.SeverityWarning, d.rng,
				"class %s declares tag %q but is defined as %q", c.Name, c.TagName, d.tag,
			))
		}
		c.TagName = d.tag
	}

	out := make([]feature.ScannedFeature, len(classes))
	for i, c := range classes {
		out[i] = c
	}
	return out, warnings, nil
}

func (s *ClassScanner) class(doc *document.Document, n *sitter.Node) *ScannedClass {
	c := &ScannedClass{SourceRange: doc.SourceRangeForNode(n)}
	if name := n.ChildByFieldName("name"); name != nil {
		c.Name = doc.Text(name)
	}

	commentAt := n
	baseParam := ""
	if n.Type() == "class" {
		if m, ok := mixinFunction(doc, n); ok {
			c.Mixin = true
			c.Name = m.name
			c.SourceRange = doc.SourceRangeForNode(m.decl)
			baseParam = m.param
			commentAt = m.decl
		} else if p := n.Parent(); p != nil && p.Type() == "variable_declarator" {
			if name := p.ChildByFieldName("name"); name != nil {
				c.Name = doc.Text(name)
			}
		} else if p != nil && p.Type() == "arguments" && p.Parent() != nil {
			if tag, arg, ok := defineCall(doc, p.Parent()); ok && sameNode(arg, n) {
				c.TagName = tag
			}
		}
		if c.Name == "" && c.TagName == "" {
			return nil
		}
	}

	jsdoc := docComment(doc, commentAt)
	c.Description = jsdoc.Description
	c.Privacy = PrivacyForName(c.Name, jsdoc)

	s.heritage(doc, n, c, baseParam)
	s.members(doc, n, c)
	return c
}

type mixinDecl struct {
	name  string
	param string
	decl  *sitter.Node
}

// mixinFunction reports whether the class expression n is the value
// returned by a named mixin function.
func mixinFunction(doc *document.Document, n *sitter.Node) (mixinDecl, bool) {
	fn := n.Parent()
	for fn != nil && fn.Type() == "parenthesized_expression" {
		fn = fn.Parent()
	}
	if fn != nil && fn.Type() == "return_statement" {
		if block := fn.Parent(); block != nil && block.Type() == "statement_block" {
			fn = block.Parent()
		} else {
			return mixinDecl{}, false
		}
	}
	if fn == nil || !isFunctionNode(fn) {
		return mixinDecl{}, false
	}
	params := paramsOf(doc, fn, JSDoc{})
	if len(params) == 0 {
		return mixinDecl{}, false
	}
	param := params[0].Name

	if fn.Type() == "function_declaration" {
		name := fn.ChildByFieldName("name")
		if name == nil {
			return mixinDecl{}, false
		}
		return mixinDecl{name: doc.Text(name), param: param, decl: fn}, true
	}

	holder := fn.Parent()
	if holder != nil && holder.Type() == "arguments" {
		if call := holder.Parent(); call != nil && call.Type() == "call_expression" {
			holder = call.Parent()
		}
	}
	if holder == nil || holder.Type() != "variable_declarator" {
		return mixinDecl{}, false
	}
	name := holder.ChildByFieldName("name")
	if name == nil {
		return mixinDecl{}, false
	}
	return mixinDecl{name: doc.Text(name), param: param, decl: holder}, true
}

// defineCall matches customElements.define('tag', Class) and returns the
// tag and the class argument.
func defineCall(doc *document.Document, call *sitter.Node) (string, *sitter.Node, bool) {
	if call.Type() != "call_expression" {
		return "", nil, false
	}
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", nil, false
	}
	switch doc.Text(fn) {
	case "customElements.define", "window.customElements.define":
	default:
		return "", nil, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 2 {
		return "", nil, false
	}
	tag := stringValue(doc, args.NamedChild(0))
	if tag == "" {
		return "", nil, false
	}
	return tag, args.NamedChild(1), true
}

// heritage reads `extends A(B(S))` as mixins [B, A] applied over
// superclass S. A superclass equal to the mixin's base parameter is not a
// reference.
func (s *ClassScanner) heritage(doc *document.Document, n *sitter.Node, c *ScannedClass, baseParam string) {
	var expr *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if h := n.NamedChild(i); h.Type() == "class_heritage" && h.NamedChildCount() > 0 {
			expr = h.NamedChild(0)
		}
	}
	if expr == nil {
		return
	}

	malformed := func(node *sitter.Node) {
		c.Warnings = append(c.Warnings, feature.NewWarning(
			feature.CodeMalformedDeclaration, feature.SeverityWarning, doc.SourceRangeForNode(node),
			"unable to understand superclass expression %q", doc.Text(node),
		))
	}

	var mixins []feature.ScannedReference
	for expr.Type() == "call_expression" {
		fn := expr.ChildByFieldName("function")
		args := expr.ChildByFieldName("arguments")
		if fn == nil || args == nil || args.NamedChildCount() != 1 {
			malformed(expr)
			return
		}
		mixins = append(mixins, feature.ScannedReference{
			Kind:        feature.KindMixin,
			Identifier:  qualifiedName(doc.Text(fn)),
			SourceRange: doc.SourceRangeForNode(fn),
		})
		expr = args.NamedChild(0)
	}
	slices.Reverse(mixins)
	c.Mixins = mixins

	switch expr.Type() {
	case "identifier", "member_expression":
		name := qualifiedName(doc.Text(expr))
		if name == baseParam {
			return
		}
		c.SuperClass = &feature.ScannedReference{
			Kind:        feature.KindClass,
			Identifier:  name,
			SourceRange: doc.SourceRangeForNode(expr),
		}
	default:
		malformed(expr)
	}
}

func (s *ClassScanner) members(doc *document.Document, n *sitter.Node, c *ScannedClass) {
	c.Properties = feature.Members{}
	c.Methods = feature.Members{}
	c.StaticMethods = feature.Members{}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		switch m.Type() {
		case "method_definition":
			s.method(doc, m, c)
		case "field_definition", "public_field_definition":
			s.field(doc, m, c)
		}
	}
}

func modifiers(m *sitter.Node) (static, accessor bool) {
	for i := 0; i < int(m.ChildCount()); i++ {
		switch m.Child(i).Type() {
		case "static":
			static = true
		case "get", "set":
			accessor = true
		}
	}
	return static, accessor
}

func (s *ClassScanner) method(doc *document.Document, m *sitter.Node, c *ScannedClass) {
	nameNode := m.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := doc.Text(nameNode)
	static, accessor := modifiers(m)
	jsdoc := docComment(doc, m)
	body := m.ChildByFieldName("body")

	member := feature.Member{
		Name:        name,
		Privacy:     PrivacyForName(name, jsdoc),
		Static:      static,
		Description: jsdoc.Description,
		SourceRange: doc.SourceRangeForNode(m),
	}

	switch {
	case static && accessor && name == "is":
		tag := stringValue(doc, returnedNode(body))
		if tag == "" {
			c.Warnings = append(c.Warnings, feature.NewWarning(
				feature.CodeMalformedDeclaration, feature.SeverityWarning, member.SourceRange,
				"static get is() must return a string literal",
			))
			return
		}
		c.TagName = tag
	case static && accessor && name == "properties":
		s.declaredProperties(doc, returnedNode(body), c)
	case !static && name == "constructor":
		s.constructorProperties(doc, body, c)
	case accessor:
		member.Kind = feature.MemberProperty
		if t, ok := jsdoc.Tag("type"); ok {
			member.Type = t.Type
		} else {
			member.Type = returnType(jsdoc)
		}
		dst := c.Properties
		if static {
			dst = c.StaticMethods
		}
		if _, ok := dst[name]; !ok {
			dst[name] = member
		}
	default:
		member.Kind = feature.MemberMethod
		member.Params = paramsOf(doc, m, jsdoc)
		member.Type = returnType(jsdoc)
		if static {
			c.StaticMethods[name] = member
		} else {
			c.Methods[name] = member
		}
	}
}

func (s *ClassScanner) field(doc *document.Document, f *sitter.Node, c *ScannedClass) {
	prop := f.ChildByFieldName("property")
	if prop == nil {
		return
	}
	static, _ := modifiers(f)
	if static {
		return
	}
	name := doc.Text(prop)
	jsdoc := docComment(doc, f)
	member := feature.Member{
		Name:        name,
		Kind:        feature.MemberProperty,
		Privacy:     PrivacyForName(name, jsdoc),
		Description: jsdoc.Description,
		SourceRange: doc.SourceRangeForNode(f),
	}
	if t, ok := jsdoc.Tag("type"); ok {
		member.Type = t.Type
	}
	c.Properties[name] = member
}

// declaredProperties reads the object returned by `static get properties()`.
// Each key is a property; its value is either a type constructor or an
// options object with a type key.
func (s *ClassScanner) declaredProperties(doc *document.Document, obj *sitter.Node, c *ScannedClass) {
	if obj == nil || obj.Type() != "object" {
		return
	}
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key, value := pair.ChildByFieldName("key"), pair.ChildByFieldName("value")
		if key == nil {
			continue
		}
		name := doc.Text(key)
		if v := stringValue(doc, key); v != "" {
			name = v
		}
		jsdoc := docComment(doc, pair)
		member := feature.Member{
			Name:        name,
			Kind:        feature.MemberProperty,
			Privacy:     PrivacyForName(name, jsdoc),
			Description: jsdoc.Description,
			SourceRange: doc.SourceRangeForNode(pair),
		}
		member.Type = propertyType(doc, value)
		c.Properties[name] = member
	}
}

func propertyType(doc *document.Document, value *sitter.Node) string {
	if value == nil {
		return ""
	}
	switch value.Type() {
	case "identifier":
		return doc.Text(value)
	case "object":
		for i := 0; i < int(value.NamedChildCount()); i++ {
			p := value.NamedChild(i)
			if p.Type() != "pair" {
				continue
			}
			if k := p.ChildByFieldName("key"); k != nil && doc.Text(k) == "type" {
				return doc.Text(p.ChildByFieldName("value"))
			}
		}
	}
	return ""
}

// constructorProperties records `this.x = ...` assignments made directly in
// the constructor body. Earlier declarations of the same name win.
func (s *ClassScanner) constructorProperties(doc *document.Document, body *sitter.Node, c *ScannedClass) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		st := body.NamedChild(i)
		if st.Type() != "expression_statement" || st.NamedChildCount() == 0 {
			continue
		}
		assign := st.NamedChild(0)
		if assign.Type() != "assignment_expression" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "member_expression" {
			continue
		}
		obj, prop := left.ChildByFieldName("object"), left.ChildByFieldName("property")
		if obj == nil || prop == nil || obj.Type() != "this" {
			continue
		}
		name := doc.Text(prop)
		if _, ok := c.Properties[name]; ok {
			continue
		}
		jsdoc := docComment(doc, st)
		member := feature.Member{
			Name:        name,
			Kind:        feature.MemberProperty,
			Privacy:     PrivacyForName(name, jsdoc),
			Description: jsdoc.Description,
			SourceRange: doc.SourceRangeForNode(st),
		}
		if t, ok := jsdoc.Tag("type"); ok {
			member.Type = t.Type
		}
		c.Properties[name] = member
	}
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// qualifiedName trims a leading window. from global references.
func qualifiedName(name string) string {
	return strings.TrimPrefix(name, "window.")
}
