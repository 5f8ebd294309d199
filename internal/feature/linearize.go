package feature

import "github.com/jward/trellis/internal/document"

// LinearizeInput is everything Linearize needs to compose one class-like
// feature. SuperClass and Mixins are already resolved; Mixins is flattened
// and in application order.
type LinearizeInput struct {
	Name       string
	Range      document.SourceRange
	SuperClass *Feature
	Mixins     []*Feature

	// RootType marks base types that contribute nothing. May be nil.
	RootType func(name string) bool

	Properties    Members
	Methods       Members
	StaticMethods Members
}

// Composed is the final member table of a class-like feature.
type Composed struct {
	Properties    Members
	Methods       Members
	StaticMethods Members
}

// Linearize merges the superclass, then each mixin, then the feature's own
// members. Later application always wins a name conflict. Overwriting a
// private entry records one overriding-private warning.
func Linearize(in LinearizeInput) (Composed, []Warning) {
	out := Composed{
		Properties:    Members{},
		Methods:       Members{},
		StaticMethods: Members{},
	}
	var warnings []Warning

	put := func(dst Members, m Member, overrider string, r document.SourceRange) {
		if existing, ok := dst[m.Name]; ok && existing.Privacy == Private {
			from := existing.InheritedFrom
			if from == "" {
				from = in.Name
			}
			warnings = append(warnings, NewWarning(
				CodeOverridingPrivate, SeverityWarning, r,
				"%s overrides private member %q declared by %s",
				overrider, m.Name, from,
			))
		}
		dst[m.Name] = m
	}

	inherit := func(dst, src Members, contributor string) {
		for _, name := range src.Names() {
			m := src[name]
			if m.InheritedFrom == "" {
				m.InheritedFrom = contributor
			}
			put(dst, m, contributor, m.SourceRange)
		}
	}

	for _, c := range lineage(in) {
		inherit(out.Properties, c.Class.Properties, c.Name)
		inherit(out.Methods, c.Class.Methods, c.Name)
		inherit(out.StaticMethods, c.Class.StaticMethods, c.Name)
	}

	own := func(dst, src Members) {
		for _, name := range src.Names() {
			m := src[name]
			m.InheritedFrom = ""
			put(dst, m, in.Name, in.Range)
		}
	}
	own(out.Properties, in.Properties)
	own(out.Methods, in.Methods)
	own(out.StaticMethods, in.StaticMethods)

	return out, warnings
}

// lineage returns the contributing features in application order, dropping
// unresolved entries and root base types.
func lineage(in LinearizeInput) []*Feature {
	var chain []*Feature
	keep := func(f *Feature) {
		if f == nil || f.Class == nil {
			return
		}
		if in.RootType != nil && in.RootType(f.Name) {
			return
		}
		chain = append(chain, f)
	}
	keep(in.SuperClass)
	for _, m := range in.Mixins {
		keep(m)
	}
	return chain
}

// FlattenMixins expands each declared mixin into the mixins it composes
// followed by itself. A mixin reachable more than once keeps only its first
// occurrence. lookup maps an index-addressed reference back to a feature.
func FlattenMixins(declared []*Feature, lookup func(ID) (*Feature, bool)) []*Feature {
	var out []*Feature
	seen := map[ID]bool{}
	add := func(f *Feature) {
		if f == nil || seen[f.ID] {
			return
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	for _, m := range declared {
		if m == nil {
			continue
		}
		if m.Class != nil {
			for _, ref := range m.Class.Mixins {
				if ref.Target == nil {
					continue
				}
				if sub, ok := lookup(*ref.Target); ok {
					add(sub)
				}
			}
		}
		add(m)
	}
	return out
}
