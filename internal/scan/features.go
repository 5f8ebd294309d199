package scan

import (
	"slices"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
)

// Import kinds recorded on import features.
const (
	ImportJS         = "js-import"
	ImportJSExport   = "js-export-from"
	ImportJSDynamic  = "js-dynamic-import"
	ImportHTML       = "html-import"
	ImportHTMLScript = "html-script"
	ImportHTMLModule = "html-script-module"
	ImportHTMLStyle  = "html-style"
	ImportCSS        = "css-import"
)

// ScannedFunction is a top-level function declaration.
type ScannedFunction struct {
	Name        string
	Description string
	Privacy     feature.Privacy
	Params      []feature.Param
	Return      string
	Exported    bool
	SourceRange document.SourceRange
	Warnings    []feature.Warning
}

func (s *ScannedFunction) Kinds() feature.Kinds { return feature.NewKinds(feature.KindFunction) }

func (s *ScannedFunction) Identifiers() []string { return []string{s.Name} }

func (s *ScannedFunction) Range() document.SourceRange { return s.SourceRange }

func (s *ScannedFunction) Resolve(feature.Scope) *feature.Feature {
	return &feature.Feature{
		Kinds:       s.Kinds(),
		Identifiers: s.Identifiers(),
		Name:        s.Name,
		Description: s.Description,
		Privacy:     s.Privacy,
		SourceRange: s.SourceRange,
		Warnings:    slices.Clone(s.Warnings),
		Function: &feature.Function{
			Params: slices.Clone(s.Params),
			Return: s.Return,
		},
	}
}

// ScannedClass is a class, custom element or mixin declaration. SuperClass
// and Mixins are lookup keys only; Mixins is in application order.
type ScannedClass struct {
	Name        string
	TagName     string
	Mixin       bool
	Description string
	Privacy     feature.Privacy
	SuperClass  *feature.ScannedReference
	Mixins      []feature.ScannedReference

	Properties    feature.Members
	Methods       feature.Members
	StaticMethods feature.Members

	SourceRange document.SourceRange
	Warnings    []feature.Warning
}

func (s *ScannedClass) Kinds() feature.Kinds {
	if s.Mixin {
		return feature.NewKinds(feature.KindMixin)
	}
	if s.TagName != "" {
		return feature.NewKinds(feature.KindClass, feature.KindElement)
	}
	return feature.NewKinds(feature.KindClass)
}

func (s *ScannedClass) Identifiers() []string {
	var ids []string
	if s.Name != "" {
		ids = append(ids, s.Name)
	}
	if s.TagName != "" {
		ids = append(ids, s.TagName)
	}
	return ids
}

func (s *ScannedClass) Range() document.SourceRange { return s.SourceRange }

// Resolve looks up the superclass and mixins in scope, flattens the mixins
// and linearizes the member tables. Unresolved references are reported and
// skipped.
func (s *ScannedClass) Resolve(scope feature.Scope) *feature.Feature {
	name := s.Name
	if name == "" {
		name = s.TagName
	}
	f := &feature.Feature{
		Kinds:       s.Kinds(),
		Identifiers: s.Identifiers(),
		Name:        name,
		Description: s.Description,
		Privacy:     s.Privacy,
		SourceRange: s.SourceRange,
		Warnings:    slices.Clone(s.Warnings),
	}
	cls := &feature.Class{TagName: s.TagName}

	lookup := func(r feature.ScannedReference) (feature.Ref, *feature.Feature) {
		if scope.RootType(r.Identifier) {
			return feature.Ref{Name: r.Identifier}, nil
		}
		ref := r.Resolve(scope)
		f.Warnings = append(f.Warnings, ref.Warnings...)
		if ref.Target == nil {
			f.Warnings = append(f.Warnings, feature.NewWarning(
				feature.CodeUnresolvedReference, feature.SeverityWarning, r.SourceRange,
				"unable to resolve %s %q", r.Kind, r.Identifier,
			))
		}
		return ref.AsRef(), ref.Target
	}

	var super *feature.Feature
	if s.SuperClass != nil {
		ref, target := lookup(*s.SuperClass)
		cls.SuperClass = &ref
		super = target
	}

	var declared []*feature.Feature
	for _, m := range s.Mixins {
		ref, target := lookup(m)
		cls.Mixins = append(cls.Mixins, ref)
		declared = append(declared, target)
	}

	composed, ws := feature.Linearize(feature.LinearizeInput{
		Name:          name,
		Range:         s.SourceRange,
		SuperClass:    super,
		Mixins:        feature.FlattenMixins(declared, scope.Feature),
		RootType:      scope.RootType,
		Properties:    s.Properties,
		Methods:       s.Methods,
		StaticMethods: s.StaticMethods,
	})
	f.Warnings = append(f.Warnings, ws...)
	cls.Properties = composed.Properties
	cls.Methods = composed.Methods
	cls.StaticMethods = composed.StaticMethods
	f.Class = cls
	return f
}

// ScannedImport is an import-like statement. URL is the root-relative path
// of the imported document, empty when the specifier names a network
// resource or could not be resolved.
type ScannedImport struct {
	Specifier   string
	URL         string
	ImportKind  string
	Lazy        bool
	SourceRange document.SourceRange
	Warnings    []feature.Warning
}

func (s *ScannedImport) Kinds() feature.Kinds { return feature.NewKinds(feature.KindImport) }

func (s *ScannedImport) Identifiers() []string {
	if s.URL != "" {
		return []string{s.URL}
	}
	return []string{s.Specifier}
}

func (s *ScannedImport) Range() document.SourceRange { return s.SourceRange }

// Resolve reports a could-not-load warning when the imported document is
// not available to the scope, which happens when it failed to load or scan.
func (s *ScannedImport) Resolve(scope feature.Scope) *feature.Feature {
	f := &feature.Feature{
		Kinds:       s.Kinds(),
		Identifiers: s.Identifiers(),
		Name:        s.Specifier,
		SourceRange: s.SourceRange,
		Warnings:    slices.Clone(s.Warnings),
		Import: &feature.Import{
			Specifier:  s.Specifier,
			URL:        s.URL,
			ImportKind: s.ImportKind,
			Lazy:       s.Lazy,
		},
	}
	if s.URL != "" && !s.Lazy && !scope.Loaded(s.URL) {
		f.Warnings = append(f.Warnings, feature.NewWarning(
			feature.CodeCouldNotLoad, feature.SeverityError, s.SourceRange,
			"unable to load import %q", s.URL,
		))
	}
	return f
}

// Dependencies returns the URLs of the eager imports among features, in
// order and without duplicates.
func Dependencies(features []feature.ScannedFeature) []string {
	var deps []string
	for _, f := range features {
		imp, ok := f.(*ScannedImport)
		if !ok || imp.Lazy || imp.URL == "" || slices.Contains(deps, imp.URL) {
			continue
		}
		deps = append(deps, imp.URL)
	}
	return deps
}
