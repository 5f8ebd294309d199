package analysis

import (
	"slices"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/scan"
)

// ScannedDocument is the output of the scan stage for one document.
type ScannedDocument struct {
	Document *document.Document
	Features []feature.ScannedFeature
	Warnings []feature.Warning
}

// Path is the canonical path of the scanned document.
func (s *ScannedDocument) Path() string { return s.Document.Path }

// Dependencies lists the documents eagerly imported by this one.
func (s *ScannedDocument) Dependencies() []string {
	return scan.Dependencies(s.Features)
}

type slotState int

const (
	slotPending slotState = iota
	slotResolving
	slotDone
)

type slot struct {
	scanned feature.ScannedFeature
	state   slotState
	feature *feature.Feature
}

// AnalyzedDocument is a fully resolved document. It implements
// feature.Scope: lookups see local features first, then features of the
// documents it transitively imports in breadth-first import order.
//
// While its resolution pass runs, features resolve lazily the first time a
// lookup reaches them. Once published it is frozen and safe for concurrent
// reads.
type AnalyzedDocument struct {
	Path     string
	Document *document.Document
	Features []*feature.Feature
	Warnings []feature.Warning

	// Imports are the paths of the successfully analyzed direct
	// dependencies, in import order.
	Imports []string

	rootTypes map[string]bool
	imports   []*AnalyzedDocument
	visible   []*AnalyzedDocument
	slots     []slot
}

var _ feature.Scope = (*AnalyzedDocument)(nil)

func newAnalyzedDocument(sd *ScannedDocument, rootTypes map[string]bool) *AnalyzedDocument {
	a := &AnalyzedDocument{
		Path:      sd.Path(),
		Document:  sd.Document,
		Warnings:  slices.Clone(sd.Warnings),
		rootTypes: rootTypes,
		slots:     make([]slot, len(sd.Features)),
	}
	for i, f := range sd.Features {
		a.slots[i] = slot{scanned: f}
	}
	return a
}

func (a *AnalyzedDocument) frozen() bool { return a.slots == nil }

// link sets the direct imports and computes the visible documents.
func (a *AnalyzedDocument) link(imports []*AnalyzedDocument) {
	a.imports = imports
	a.Imports = make([]string, len(imports))
	for i, d := range imports {
		a.Imports[i] = d.Path
	}

	seen := map[string]bool{a.Path: true}
	queue := slices.Clone(imports)
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if seen[d.Path] {
			continue
		}
		seen[d.Path] = true
		a.visible = append(a.visible, d)
		queue = append(queue, d.imports...)
	}
}

// resolveSlot resolves feature i on first use. Reentering a slot that is
// still resolving breaks the cycle: the lookup sees no feature and the
// document records a cyclic-reference warning.
func (a *AnalyzedDocument) resolveSlot(i int) *feature.Feature {
	s := &a.slots[i]
	switch s.state {
	case slotDone:
		return s.feature
	case slotResolving:
		a.Warnings = append(a.Warnings, feature.NewWarning(
			feature.CodeCyclicReference, feature.SeverityWarning, s.scanned.Range(),
			"cyclic reference while resolving %v", s.scanned.Identifiers(),
		))
		return nil
	}
	s.state = slotResolving
	f := s.scanned.Resolve(a)
	f.ID = feature.ID{Path: a.Path, Index: i}
	s.feature = f
	s.state = slotDone
	return f
}

// resolveAll resolves every slot not yet reached by a lookup.
func (a *AnalyzedDocument) resolveAll() {
	for i := range a.slots {
		a.resolveSlot(i)
	}
}

func (a *AnalyzedDocument) freeze() {
	a.Features = make([]*feature.Feature, len(a.slots))
	for i := range a.slots {
		a.Features[i] = a.slots[i].feature
	}
	a.slots = nil
}

func (a *AnalyzedDocument) lookupLocal(kind feature.Kind, identifier string, out []*feature.Feature) []*feature.Feature {
	if a.frozen() {
		for _, f := range a.Features {
			if f.Kinds.Has(kind) && f.HasIdentifier(identifier) {
				out = append(out, f)
			}
		}
		return out
	}
	for i, s := range a.slots {
		if !s.scanned.Kinds().Has(kind) || !slices.Contains(s.scanned.Identifiers(), identifier) {
			continue
		}
		if f := a.resolveSlot(i); f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (a *AnalyzedDocument) document(path string) *AnalyzedDocument {
	if path == a.Path {
		return a
	}
	for _, d := range a.visible {
		if d.Path == path {
			return d
		}
	}
	return nil
}

// Lookup implements feature.Scope.
func (a *AnalyzedDocument) Lookup(kind feature.Kind, identifier string) []*feature.Feature {
	out := a.lookupLocal(kind, identifier, nil)
	for _, d := range a.visible {
		out = d.lookupLocal(kind, identifier, out)
	}
	return out
}

// Feature implements feature.Scope.
func (a *AnalyzedDocument) Feature(id feature.ID) (*feature.Feature, bool) {
	d := a.document(id.Path)
	if d == nil || id.Index < 0 {
		return nil, false
	}
	if d.frozen() {
		if id.Index >= len(d.Features) {
			return nil, false
		}
		return d.Features[id.Index], true
	}
	if id.Index >= len(d.slots) {
		return nil, false
	}
	f := d.resolveSlot(id.Index)
	return f, f != nil
}

// Loaded implements feature.Scope.
func (a *AnalyzedDocument) Loaded(path string) bool {
	return a.document(path) != nil
}

// RootType implements feature.Scope.
func (a *AnalyzedDocument) RootType(name string) bool {
	return a.rootTypes[name]
}

// Visible returns the paths of every document whose features this one can
// see, excluding itself.
func (a *AnalyzedDocument) Visible() []string {
	out := make([]string, len(a.visible))
	for i, d := range a.visible {
		out[i] = d.Path
	}
	return out
}

// FeaturesOfKind returns the features carrying kind, in document order.
func (a *AnalyzedDocument) FeaturesOfKind(kind feature.Kind) []*feature.Feature {
	var out []*feature.Feature
	for _, f := range a.Features {
		if f.Kinds.Has(kind) {
			out = append(out, f)
		}
	}
	return out
}
