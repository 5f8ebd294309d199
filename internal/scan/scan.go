// Package scan extracts unresolved features from parsed documents.
//
// Each Scanner walks a document through the visit callback it is handed and
// returns the scanned features and warnings it found. Scanners are
// independent of each other; a Registry groups them by document kind and
// merges their output into one position-ordered list.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/resolve"
)

// ErrSyntax classifies scan failures caused by malformed source text.
var ErrSyntax = errors.New("syntax error")

// SyntaxError reports the first malformed span of a document.
type SyntaxError struct {
	Range document.SourceRange
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %v", e.Range, ErrSyntax)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// VisitFunc drives a depth-first traversal of the document being scanned.
type VisitFunc func(v document.Visitor)

// Scanner extracts scanned features from one document.
type Scanner interface {
	Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error)
}

// ScannerFunc adapts a plain function to the Scanner interface.
type ScannerFunc func(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error)

func (f ScannerFunc) Scan(ctx context.Context, doc *document.Document, visit VisitFunc) ([]feature.ScannedFeature, []feature.Warning, error) {
	return f(ctx, doc, visit)
}

// Registry holds the scanners run for each document kind.
type Registry struct {
	byKind map[document.Kind][]Scanner
}

// NewRegistry returns a registry preloaded with the built-in scanners.
// Import scanners resolve module specifiers with r.
func NewRegistry(r *resolve.Resolver) *Registry {
	reg := &Registry{byKind: map[document.Kind][]Scanner{}}
	reg.Register(document.KindScript, &FunctionScanner{})
	reg.Register(document.KindScript, &ClassScanner{})
	reg.Register(document.KindScript, &ScriptImportScanner{Resolver: r})
	reg.Register(document.KindMarkup, &MarkupImportScanner{Resolver: r})
	reg.Register(document.KindStyle, &StyleImportScanner{Resolver: r})
	return reg
}

// Register appends s to the scanners run for documents of kind.
func (r *Registry) Register(kind document.Kind, s Scanner) {
	r.byKind[kind] = append(r.byKind[kind], s)
}

// Scanners returns the scanners registered for kind.
func (r *Registry) Scanners(kind document.Kind) []Scanner {
	return r.byKind[kind]
}

// Scan runs every scanner registered for doc's kind. A document with syntax
// errors fails with a *SyntaxError before any scanner runs. Features come
// back ordered by source position so that feature indices are stable.
func (r *Registry) Scan(ctx context.Context, doc *document.Document) ([]feature.ScannedFeature, []feature.Warning, error) {
	if n := doc.FirstSyntaxError(); n != nil {
		return nil, nil, &SyntaxError{Range: doc.SourceRangeForNode(n)}
	}

	visit := func(v document.Visitor) { doc.Visit(v) }

	var (
		features []feature.ScannedFeature
		warnings []feature.Warning
	)
	for _, s := range r.byKind[doc.Kind] {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		fs, ws, err := s.Scan(ctx, doc, visit)
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", doc.Path, err)
		}
		features = append(features, fs...)
		warnings = append(warnings, ws...)
	}

	sort.SliceStable(features, func(i, j int) bool {
		return before(features[i].Range().Start, features[j].Range().Start)
	})
	return features, warnings, nil
}

func before(a, b document.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}
