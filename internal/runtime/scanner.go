package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/resolve"
	"github.com/jward/trellis/internal/scan"
)

// ScriptScanner is a scan.Scanner implemented by a Risor script.
//
// The script sees the document through two globals, doc (a map with path,
// kind and language) and root (the syntax tree's root node), and reports
// what it finds by calling:
//
//	emit_function({"name": ..., "params": [...], "return": ..., "node": n})
//	emit_class({"name": ..., "superclass": ..., "mixins": [...], "methods": [...], "node": n})
//	emit_import({"specifier": ..., "kind": ..., "lazy": false, "node": n})
//	warn(node, message)
//
// Emitted values are checked Go-side. A call missing a required key is
// recorded as a script-scanner warning on the document and otherwise
// ignored; a script that fails to run fails the scan.
type ScriptScanner struct {
	rt       *Runtime
	script   string
	resolver *resolve.Resolver
}

var _ scan.Scanner = (*ScriptScanner)(nil)

// NewScriptScanner returns a scanner that runs the script at path, loaded
// through rt. Emitted import specifiers are resolved with r.
func NewScriptScanner(rt *Runtime, path string, r *resolve.Resolver) *ScriptScanner {
	return &ScriptScanner{rt: rt, script: path, resolver: r}
}

// Scan runs the script once over doc. The script walks the tree itself, so
// the visit callback is unused.
func (s *ScriptScanner) Scan(ctx context.Context, doc *document.Document, _ scan.VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	src, err := s.rt.LoadScript(s.script)
	if err != nil {
		return nil, nil, err
	}

	ss := newSourceStore()
	ss.storeDocument(doc)

	em := &emitter{doc: doc, resolver: s.resolver}
	extra := map[string]any{
		"doc": object.NewMap(map[string]object.Object{
			"path":     object.NewString(doc.Path),
			"kind":     object.NewString(string(doc.Kind)),
			"language": object.NewString(doc.Language),
		}),
		"root":          mustProxy(doc.Root()),
		"emit_function": em.functionFn(),
		"emit_class":    em.classFn(),
		"emit_import":   em.importFn(),
		"warn":          em.warnFn(),
	}
	if err := s.rt.eval(ctx, src, s.script, ss, extra); err != nil {
		return nil, nil, err
	}
	return em.features, em.warnings, nil
}

// emitter collects what one script run reports.
type emitter struct {
	doc      *document.Document
	resolver *resolve.Resolver

	features []feature.ScannedFeature
	warnings []feature.Warning
}

func (e *emitter) add(f feature.ScannedFeature) {
	e.features = append(e.features, f)
}

func (e *emitter) violation(rng document.SourceRange, format string, args ...any) {
	e.warnings = append(e.warnings, feature.NewWarning(
		feature.CodeScriptScannerViolation, feature.SeverityWarning, rng, format, args...,
	))
}

// rangeOf returns the range of the node stored under "node", or the whole
// document when the script gave none.
func (e *emitter) rangeOf(m map[string]object.Object) document.SourceRange {
	return e.rangeOr(m, e.doc.SourceRangeForNode(e.doc.Root()))
}

func (e *emitter) rangeOr(m map[string]object.Object, fallback document.SourceRange) document.SourceRange {
	if n, ok := nodeArg(m["node"]); ok {
		return e.doc.SourceRangeForNode(n)
	}
	return fallback
}

// emit_function(map)
func (e *emitter) functionFn() *object.Builtin {
	return object.NewBuiltin("emit_function", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("emit_function", args)
		if errObj != nil {
			return errObj
		}
		rng := e.rangeOf(m)
		name := getString(m, "name")
		if name == "" {
			e.violation(rng, "emit_function: missing name")
			return object.Nil
		}
		e.add(&scan.ScannedFunction{
			Name:        name,
			Description: getString(m, "description"),
			Privacy:     privacyOf(m, name),
			Params:      paramsOf(m["params"]),
			Return:      getString(m, "return"),
			Exported:    getBool(m, "exported"),
			SourceRange: rng,
		})
		return object.Nil
	})
}

// emit_class(map)
func (e *emitter) classFn() *object.Builtin {
	return object.NewBuiltin("emit_class", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("emit_class", args)
		if errObj != nil {
			return errObj
		}
		rng := e.rangeOf(m)
		name, tag := getString(m, "name"), getString(m, "tag")
		if name == "" && tag == "" {
			e.violation(rng, "emit_class: missing name and tag")
			return object.Nil
		}
		c := &scan.ScannedClass{
			Name:          name,
			TagName:       tag,
			Mixin:         getBool(m, "mixin"),
			Description:   getString(m, "description"),
			Privacy:       privacyOf(m, name),
			Properties:    e.membersOf(m["properties"], feature.MemberProperty, false, rng),
			Methods:       e.membersOf(m["methods"], feature.MemberMethod, false, rng),
			StaticMethods: e.membersOf(m["static_methods"], feature.MemberMethod, true, rng),
			SourceRange:   rng,
		}
		if super := getString(m, "superclass"); super != "" {
			c.SuperClass = &feature.ScannedReference{
				Kind:        feature.KindClass,
				Identifier:  super,
				SourceRange: rng,
			}
		}
		for _, mixin := range stringsOf(m["mixins"]) {
			c.Mixins = append(c.Mixins, feature.ScannedReference{
				Kind:        feature.KindMixin,
				Identifier:  mixin,
				SourceRange: rng,
			})
		}
		e.add(c)
		return object.Nil
	})
}

// emit_import(map)
func (e *emitter) importFn() *object.Builtin {
	return object.NewBuiltin("emit_import", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("emit_import", args)
		if errObj != nil {
			return errObj
		}
		rng := e.rangeOf(m)
		spec := getString(m, "specifier")
		if spec == "" {
			e.violation(rng, "emit_import: missing specifier")
			return object.Nil
		}
		kind := getString(m, "kind")
		if kind == "" {
			kind = defaultImportKind(e.doc.Kind)
		}
		e.add(scan.NewImport(e.resolver, e.doc, spec, kind, getBool(m, "lazy"), rng))
		return object.Nil
	})
}

// warn(node, message) attaches a document-level warning. node may be nil.
func (e *emitter) warnFn() *object.Builtin {
	return object.NewBuiltin("warn", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("warn", 2, len(args))
		}
		msg, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("warn: message must be a string, got %s", args[1].Type())
		}
		rng := e.doc.SourceRangeForNode(e.doc.Root())
		if n, ok := nodeArg(args[0]); ok {
			rng = e.doc.SourceRangeForNode(n)
		}
		e.violation(rng, "%s", msg.Value())
		return object.Nil
	})
}

func defaultImportKind(k document.Kind) string {
	switch k {
	case document.KindMarkup:
		return scan.ImportHTML
	case document.KindStyle:
		return scan.ImportCSS
	}
	return scan.ImportJS
}

// --- argument helpers ---

func mapArg(fn string, args []object.Object) (map[string]object.Object, object.Object) {
	if len(args) != 1 {
		return nil, object.NewArgsError(fn, 1, len(args))
	}
	m, ok := args[0].(*object.Map)
	if !ok {
		return nil, object.Errorf("%s: expected map, got %s", fn, args[0].Type())
	}
	return m.Value(), nil
}

func nodeArg(obj object.Object) (*sitter.Node, bool) {
	p, ok := obj.(*object.Proxy)
	if !ok {
		return nil, false
	}
	n, ok := p.Interface().(*sitter.Node)
	return n, ok && n != nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getBool(m map[string]object.Object, key string) bool {
	if b, ok := m[key].(*object.Bool); ok {
		return b.Value()
	}
	return false
}

func stringsOf(obj object.Object) []string {
	l, ok := obj.(*object.List)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range l.Value() {
		if s, ok := item.(*object.String); ok && s.Value() != "" {
			out = append(out, s.Value())
		}
	}
	return out
}

// entries normalizes a list whose items are either names or maps with a
// "name" key.
func entries(obj object.Object) []map[string]object.Object {
	l, ok := obj.(*object.List)
	if !ok {
		return nil
	}
	var out []map[string]object.Object
	for _, item := range l.Value() {
		switch v := item.(type) {
		case *object.String:
			out = append(out, map[string]object.Object{"name": v})
		case *object.Map:
			out = append(out, v.Value())
		}
	}
	return out
}

func privacyOf(m map[string]object.Object, name string) feature.Privacy {
	switch p := feature.Privacy(getString(m, "privacy")); p {
	case feature.Public, feature.Protected, feature.Private:
		return p
	}
	return scan.PrivacyForName(name, scan.JSDoc{})
}

func paramsOf(obj object.Object) []feature.Param {
	var out []feature.Param
	for _, e := range entries(obj) {
		name := getString(e, "name")
		if name == "" {
			continue
		}
		out = append(out, feature.Param{
			Name:        name,
			Type:        getString(e, "type"),
			Description: getString(e, "description"),
		})
	}
	return out
}

// membersOf reads a member list. Members without their own node take the
// class range.
func (e *emitter) membersOf(obj object.Object, kind feature.MemberKind, static bool, rng document.SourceRange) feature.Members {
	out := feature.Members{}
	for _, entry := range entries(obj) {
		name := getString(entry, "name")
		if name == "" {
			continue
		}
		out[name] = feature.Member{
			Name:        name,
			Kind:        kind,
			Privacy:     privacyOf(entry, name),
			Static:      static,
			Type:        getString(entry, "type"),
			Description: getString(entry, "description"),
			Params:      paramsOf(entry["params"]),
			SourceRange: e.rangeOr(entry, rng),
		}
	}
	return out
}

// String makes the scanner readable in registry dumps and logs.
func (s *ScriptScanner) String() string {
	return fmt.Sprintf("script(%s)", s.script)
}
