package trellis

import (
	"slices"
	"sort"
	"strings"

	"github.com/jward/trellis/internal/feature"
)

// QueryBuilder answers questions about a fixed set of analyzed documents.
// It never starts analysis; it sees exactly the documents that were
// analyzed in the snapshot it was built from.
type QueryBuilder struct {
	docs   []*AnalyzedDocument // sorted by path
	byPath map[string]*AnalyzedDocument
}

func newQueryBuilder(docs []*AnalyzedDocument) *QueryBuilder {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	q := &QueryBuilder{docs: docs, byPath: make(map[string]*AnalyzedDocument, len(docs))}
	for _, d := range docs {
		q.byPath[d.Path] = d
	}
	return q
}

// --- Common Types ---

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

func page[T any](items []T, p Pagination) PagedResult[T] {
	p = p.normalize()
	total := len(items)
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	return PagedResult[T]{Items: items[start:end], TotalCount: total}
}

// FeatureFilter specifies which features to include. Zero values match
// everything.
type FeatureFilter struct {
	Kinds      []Kind           // match any of these kinds
	Privacy    *feature.Privacy // exact match
	PathPrefix string           // restrict to documents under this directory
	Name       string           // substring of the feature name
}

// normalizePathPrefix ensures a path prefix ends with "/" for correct
// prefix matching: "src/el" must not match "src/elements/".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

func (f FeatureFilter) matches(feat *Feature) bool {
	if len(f.Kinds) > 0 && !slices.ContainsFunc(f.Kinds, feat.Kinds.Has) {
		return false
	}
	if f.Privacy != nil && feat.Privacy != *f.Privacy {
		return false
	}
	if f.Name != "" && !strings.Contains(feat.Name, f.Name) {
		return false
	}
	return true
}

// --- Documents ---

// Documents returns the paths of every document visible to the query.
func (q *QueryBuilder) Documents() []string {
	out := make([]string, len(q.docs))
	for i, d := range q.docs {
		out[i] = d.Path
	}
	return out
}

// Document returns the analyzed document at path, or nil.
func (q *QueryBuilder) Document(path string) *AnalyzedDocument {
	return q.byPath[path]
}

// --- Features ---

// Feature returns the feature addressed by id, or nil.
func (q *QueryBuilder) Feature(id FeatureID) *Feature {
	d := q.byPath[id.Path]
	if d == nil || id.Index < 0 || id.Index >= len(d.Features) {
		return nil
	}
	return d.Features[id.Index]
}

// SearchFeatures returns the features matching filter in path, then
// declaration order.
func (q *QueryBuilder) SearchFeatures(filter FeatureFilter, p Pagination) PagedResult[*Feature] {
	prefix := normalizePathPrefix(filter.PathPrefix)
	var out []*Feature
	for _, d := range q.docs {
		if prefix != "" && !strings.HasPrefix(d.Path, prefix) {
			continue
		}
		for _, f := range d.Features {
			if filter.matches(f) {
				out = append(out, f)
			}
		}
	}
	return page(out, p)
}

// FeaturesByKind returns every feature carrying kind.
func (q *QueryBuilder) FeaturesByKind(kind Kind) []*Feature {
	var out []*Feature
	for _, d := range q.docs {
		out = append(out, d.FeaturesOfKind(kind)...)
	}
	return out
}

// FeaturesByIdentifier returns every feature addressable by identifier,
// such as a class name or a custom element tag.
func (q *QueryBuilder) FeaturesByIdentifier(identifier string) []*Feature {
	var out []*Feature
	for _, d := range q.docs {
		for _, f := range d.Features {
			if f.HasIdentifier(identifier) {
				out = append(out, f)
			}
		}
	}
	return out
}

// Resolve looks a kind and identifier up from the point of view of the
// document at path: its own features first, then those of the documents it
// imports. The first match wins.
func (q *QueryBuilder) Resolve(path string, kind Kind, identifier string) *Feature {
	d := q.byPath[path]
	if d == nil {
		return nil
	}
	if found := d.Lookup(kind, identifier); len(found) > 0 {
		return found[0]
	}
	return nil
}

// Element returns the class registered for a custom element tag, or nil.
func (q *QueryBuilder) Element(tag string) *Feature {
	for _, f := range q.FeaturesByIdentifier(tag) {
		if f.Class != nil && f.Class.TagName == tag {
			return f
		}
	}
	return nil
}

// Members returns the properties, then methods, then static methods of a
// class-like feature, each group in name order.
func (q *QueryBuilder) Members(f *Feature) []Member {
	if f == nil || f.Class == nil {
		return nil
	}
	var out []Member
	for _, group := range []feature.Members{f.Class.Properties, f.Class.Methods, f.Class.StaticMethods} {
		for _, name := range group.Names() {
			out = append(out, group[name])
		}
	}
	return out
}

// --- Dependencies ---

// Dependencies returns the documents the document at path imports.
func (q *QueryBuilder) Dependencies(path string) []string {
	d := q.byPath[path]
	if d == nil {
		return nil
	}
	return slices.Clone(d.Imports)
}

// Dependants returns the documents that directly import path.
func (q *QueryBuilder) Dependants(path string) []string {
	var out []string
	for _, d := range q.docs {
		if slices.Contains(d.Imports, path) {
			out = append(out, d.Path)
		}
	}
	return out
}

// TransitiveDependants returns every document that imports path directly
// or through other documents, excluding path itself.
func (q *QueryBuilder) TransitiveDependants(path string) []string {
	seen := map[string]bool{path: true}
	queue := []string{path}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range q.Dependants(cur) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	sort.Strings(out)
	return out
}

// --- Warnings ---

// Warnings returns every document and feature warning at or above
// minSeverity, ordered by document then position.
func (q *QueryBuilder) Warnings(minSeverity Severity) []Warning {
	var out []Warning
	for _, d := range q.docs {
		var ws []Warning
		for _, w := range d.Warnings {
			if w.Severity >= minSeverity {
				ws = append(ws, w)
			}
		}
		for _, f := range d.Features {
			for _, w := range f.Warnings {
				if w.Severity >= minSeverity {
					ws = append(ws, w)
				}
			}
		}
		sort.SliceStable(ws, func(i, j int) bool {
			a, b := ws[i].SourceRange.Start, ws[j].SourceRange.Start
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Column < b.Column
		})
		out = append(out, ws...)
	}
	return out
}
