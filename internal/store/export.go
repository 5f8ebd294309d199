package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/trellis/internal/analysis"
	"github.com/jward/trellis/internal/document"
	"github.com/jward/trellis/internal/feature"
)

// exportConcurrency bounds how many documents are staged at once.
const exportConcurrency = 8

// Export writes the given analyzed documents, replacing whatever was
// stored for them before, and reports which features changed signature.
// Documents are staged concurrently into a BatchedStore and committed in
// one transaction, so a failed export leaves the database untouched.
func (s *Store) Export(ctx context.Context, docs []*analysis.AnalyzedDocument) (Diff, error) {
	batch := NewBatchedStore()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for _, a := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return StageDocument(batch, a)
		})
	}
	if err := g.Wait(); err != nil {
		return Diff{}, fmt.Errorf("export: %w", err)
	}
	return s.CommitBatch(batch)
}

// StageDocument writes one analyzed document and everything it owns to ds.
func StageDocument(ds DataStore, a *analysis.AnalyzedDocument) error {
	doc := &Document{
		Path:         a.Path,
		Kind:         string(a.Document.Kind),
		Hash:         a.Document.Hash,
		LastAnalyzed: time.Now().UTC(),
	}
	if _, err := ds.InsertDocument(doc); err != nil {
		return fmt.Errorf("stage %s: %w", a.Path, err)
	}

	for _, w := range a.Warnings {
		if _, err := ds.InsertWarning(warningRow(doc, nil, w)); err != nil {
			return fmt.Errorf("stage %s: %w", a.Path, err)
		}
	}

	keys := make(map[string]int)
	for _, f := range a.Features {
		row := featureRow(doc, f)
		row.Key = uniqueKey(keys, row.Key)
		featureID, err := ds.InsertFeature(row)
		if err != nil {
			return fmt.Errorf("stage %s: %w", a.Path, err)
		}
		if err := stageFeatureChildren(ds, doc, featureID, f); err != nil {
			return fmt.Errorf("stage %s: %w", a.Path, err)
		}
	}

	for _, dep := range a.Imports {
		if err := ds.InsertDependency(&Dependency{Path: a.Path, TargetPath: dep}); err != nil {
			return fmt.Errorf("stage %s: %w", a.Path, err)
		}
	}
	return nil
}

func stageFeatureChildren(ds DataStore, doc *Document, featureID int64, f *feature.Feature) error {
	if fn := f.Function; fn != nil {
		if err := stageParams(ds, featureID, nil, fn.Params); err != nil {
			return err
		}
	}
	if c := f.Class; c != nil {
		for _, group := range []feature.Members{c.Properties, c.Methods, c.StaticMethods} {
			for _, name := range group.Names() {
				m := group[name]
				row := &Member{
					FeatureID:     featureID,
					Name:          m.Name,
					Kind:          string(m.Kind),
					Privacy:       string(m.Privacy),
					Static:        m.Static,
					InheritedFrom: m.InheritedFrom,
					TypeExpr:      m.Type,
					Description:   m.Description,
				}
				setRange(&row.StartLine, &row.StartCol, &row.EndLine, &row.EndCol, m.SourceRange)
				memberID, err := ds.InsertMember(row)
				if err != nil {
					return err
				}
				if err := stageParams(ds, featureID, &memberID, m.Params); err != nil {
					return err
				}
			}
		}
	}
	for _, w := range f.Warnings {
		id := featureID
		if _, err := ds.InsertWarning(warningRow(doc, &id, w)); err != nil {
			return err
		}
	}
	return nil
}

func stageParams(ds DataStore, featureID int64, memberID *int64, params []feature.Param) error {
	for i, p := range params {
		if _, err := ds.InsertParam(&Param{
			FeatureID:   featureID,
			MemberID:    memberID,
			Ordinal:     i,
			Name:        p.Name,
			TypeExpr:    p.Type,
			Description: p.Description,
		}); err != nil {
			return err
		}
	}
	return nil
}

func featureRow(doc *Document, f *feature.Feature) *Feature {
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}
	row := &Feature{
		DocumentID:    doc.ID,
		Path:          doc.Path,
		Ordinal:       f.ID.Index,
		Key:           FeatureKey(doc.Path, f),
		Name:          f.Name,
		Kinds:         kinds,
		Identifiers:   f.Identifiers,
		Privacy:       string(f.Privacy),
		Description:   f.Description,
		SignatureHash: ComputeSignatureHash(f),
	}
	setRange(&row.StartLine, &row.StartCol, &row.EndLine, &row.EndCol, f.SourceRange)
	if c := f.Class; c != nil {
		row.TagName = c.TagName
		if c.SuperClass != nil {
			row.SuperClass = c.SuperClass.Name
		}
		for _, m := range c.Mixins {
			row.Mixins = append(row.Mixins, m.Name)
		}
	}
	if fn := f.Function; fn != nil {
		row.ReturnType = fn.Return
	}
	if imp := f.Import; imp != nil {
		row.ImportURL = imp.URL
	}
	return row
}

func warningRow(doc *Document, featureID *int64, w feature.Warning) *Warning {
	row := &Warning{
		DocumentID: doc.ID,
		Path:       doc.Path,
		FeatureID:  featureID,
		Code:       w.Code,
		Severity:   w.Severity,
		Message:    w.Message,
	}
	setRange(&row.StartLine, &row.StartCol, &row.EndLine, &row.EndCol, w.SourceRange)
	return row
}

func setRange(startLine, startCol, endLine, endCol *int, r document.SourceRange) {
	*startLine, *startCol = r.Start.Line, r.Start.Column
	*endLine, *endCol = r.End.Line, r.End.Column
}

// FeatureKey identifies a feature across exports independently of its
// position: path, kinds and name.
func FeatureKey(path string, f *feature.Feature) string {
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}
	return path + "#" + strings.Join(kinds, ",") + ":" + f.Name
}

// uniqueKey disambiguates repeated keys within one document by occurrence.
func uniqueKey(seen map[string]int, key string) string {
	n := seen[key]
	seen[key] = n + 1
	if n == 0 {
		return key
	}
	return fmt.Sprintf("%s~%d", key, n)
}
