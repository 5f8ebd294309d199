package feature

import "github.com/jward/trellis/internal/document"

// Scope is the view of an analyzed document that scanned features resolve
// against: its own features plus those of the documents it imports.
type Scope interface {
	// Lookup returns every feature visible from this document that has the
	// given kind and identifier, local declarations first, then imports in
	// import order.
	Lookup(kind Kind, identifier string) []*Feature

	// Feature returns the feature addressed by id if its document is
	// visible from this scope.
	Feature(id ID) (*Feature, bool)

	// Loaded reports whether the document at path was analyzed and is
	// available to this scope.
	Loaded(path string) bool

	// RootType reports whether name is a designated root base type that
	// composes nothing and is never looked up.
	RootType(name string) bool
}

// ScannedFeature is an unresolved, per-document extraction result. Resolve
// defers every cross-document question to the scope it is given and must
// not mutate the receiver, so resolving twice yields equal features.
type ScannedFeature interface {
	Kinds() Kinds
	Identifiers() []string
	Range() document.SourceRange
	Resolve(scope Scope) *Feature
}

// ScannedReference names another feature by identifier. It carries only
// the lookup key, never the referenced feature.
type ScannedReference struct {
	Kind        Kind
	Identifier  string
	SourceRange document.SourceRange
	Description string
}

// Reference is the outcome of resolving a ScannedReference.
type Reference struct {
	Identifier  string
	SourceRange document.SourceRange
	Target      *Feature
	Warnings    []Warning
}

// Resolve looks the identifier up in scope. A missing target is not an
// error here; the caller decides whether it matters.
func (r ScannedReference) Resolve(scope Scope) Reference {
	ref := Reference{Identifier: r.Identifier, SourceRange: r.SourceRange}
	found := scope.Lookup(r.Kind, r.Identifier)
	if len(found) == 0 {
		return ref
	}
	ref.Target = found[0]
	if len(found) > 1 {
		ref.Warnings = append(ref.Warnings, NewWarning(
			CodeMultipleFeatures, SeverityInfo, r.SourceRange,
			"%d features named %q are visible; using the one at %s",
			len(found), r.Identifier, found[0].SourceRange,
		))
	}
	return ref
}

// AsRef converts a resolved reference to its index-addressed form.
func (r Reference) AsRef() Ref {
	out := Ref{Name: r.Identifier}
	if r.Target != nil {
		id := r.Target.ID
		out.Target = &id
	}
	return out
}
