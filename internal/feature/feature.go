// Package feature holds the resolved feature model, the scanned-feature
// contract that produces it, and the linearization algorithm that composes
// class-like features from superclasses and mixins.
package feature

import (
	"fmt"
	"slices"
	"sort"

	"github.com/jward/trellis/internal/document"
)

// Kind names one facet of a feature. A feature may carry several kinds at
// once, e.g. a class that is also a custom element.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindElement  Kind = "element"
	KindMixin    Kind = "mixin"
	KindImport   Kind = "import"
)

// Kinds is a small sorted set of Kind values.
type Kinds []Kind

// NewKinds builds a sorted, duplicate-free set.
func NewKinds(ks ...Kind) Kinds {
	out := make(Kinds, 0, len(ks))
	for _, k := range ks {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether k is in the set.
func (ks Kinds) Has(k Kind) bool {
	return slices.Contains(ks, k)
}

// ClassLike reports whether the set describes something with members.
func (ks Kinds) ClassLike() bool {
	return ks.Has(KindClass) || ks.Has(KindElement) || ks.Has(KindMixin)
}

// Privacy is a member or feature visibility level.
type Privacy string

const (
	Public    Privacy = "public"
	Protected Privacy = "protected"
	Private   Privacy = "private"
)

// ID addresses a feature by its owning document and position in that
// document's feature list.
type ID struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

func (id ID) String() string {
	return fmt.Sprintf("%s#%d", id.Path, id.Index)
}

// Ref is an index-addressed cross reference. Target is nil when the name
// could not be resolved.
type Ref struct {
	Name   string `json:"name"`
	Target *ID    `json:"target,omitempty"`
}

// Param describes one function or method parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// MemberKind distinguishes properties from methods.
type MemberKind string

const (
	MemberProperty MemberKind = "property"
	MemberMethod   MemberKind = "method"
)

// Member is a property or method entry of a class-like feature.
type Member struct {
	Name          string               `json:"name"`
	Kind          MemberKind           `json:"kind"`
	Privacy       Privacy              `json:"privacy"`
	Static        bool                 `json:"static,omitempty"`
	InheritedFrom string               `json:"inheritedFrom,omitempty"`
	Type          string               `json:"type,omitempty"`
	Description   string               `json:"description,omitempty"`
	Params        []Param              `json:"params,omitempty"`
	SourceRange   document.SourceRange `json:"sourceRange"`
}

// Members maps member names to entries.
type Members map[string]Member

// Names returns the member names in sorted order.
func (m Members) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Class is the payload of class-like features.
type Class struct {
	TagName       string  `json:"tagName,omitempty"`
	SuperClass    *Ref    `json:"superClass,omitempty"`
	Mixins        []Ref   `json:"mixins,omitempty"`
	Properties    Members `json:"properties"`
	Methods       Members `json:"methods"`
	StaticMethods Members `json:"staticMethods"`
}

// Function is the payload of function features.
type Function struct {
	Params []Param `json:"params,omitempty"`
	Return string  `json:"return,omitempty"`
}

// Import is the payload of import features.
type Import struct {
	Specifier  string `json:"specifier"`
	URL        string `json:"url,omitempty"`
	ImportKind string `json:"importKind"`
	Lazy       bool   `json:"lazy,omitempty"`
}

// Feature is the resolved, queryable form of a scanned feature. It never
// references a ScannedFeature and is not mutated once its document is
// published.
type Feature struct {
	ID          ID                   `json:"id"`
	Kinds       Kinds                `json:"kinds"`
	Identifiers []string             `json:"identifiers"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Privacy     Privacy              `json:"privacy,omitempty"`
	SourceRange document.SourceRange `json:"sourceRange"`
	Warnings    []Warning            `json:"warnings,omitempty"`

	Function *Function `json:"function,omitempty"`
	Class    *Class    `json:"class,omitempty"`
	Import   *Import   `json:"import,omitempty"`
}

// HasIdentifier reports whether the feature can be looked up by name.
func (f *Feature) HasIdentifier(name string) bool {
	return slices.Contains(f.Identifiers, name)
}
