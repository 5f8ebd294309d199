package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/trellis/internal/feature"
)

// --- Documents ---

// DocumentByPath returns the document stored at path, or nil if none is.
func (s *Store) DocumentByPath(path string) (*Document, error) {
	var d Document
	var hash sql.NullString
	var analyzed sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, kind, hash, last_analyzed FROM documents WHERE path = ?", path,
	).Scan(&d.ID, &d.Path, &d.Kind, &hash, &analyzed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document by path: %w", err)
	}
	d.Hash = hash.String
	d.LastAnalyzed = analyzed.Time
	return &d, nil
}

// Documents returns every stored document ordered by path.
func (s *Store) Documents() ([]Document, error) {
	rows, err := s.db.Query("SELECT id, path, kind, hash, last_analyzed FROM documents ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		var hash sql.NullString
		var analyzed sql.NullTime
		if err := rows.Scan(&d.ID, &d.Path, &d.Kind, &hash, &analyzed); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Hash = hash.String
		d.LastAnalyzed = analyzed.Time
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Prune deletes every stored document whose path is not in keep.
func (s *Store) Prune(keep []string) ([]string, error) {
	query := "SELECT path FROM documents"
	if len(keep) > 0 {
		query += " WHERE path NOT IN (" + placeholderList(len(keep)) + ")"
	}
	rows, err := s.db.Query(query+" ORDER BY path", stringsToArgs(keep)...)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return nil, fmt.Errorf("prune: scan path: %w", err)
		}
		stale = append(stale, path)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	for _, path := range stale {
		if err := s.DeleteDocument(path); err != nil {
			return nil, fmt.Errorf("prune %s: %w", path, err)
		}
	}
	return stale, nil
}

// --- Features ---

const featureColumns = `f.id, f.document_id, d.path, f.ordinal, f.feature_key, f.name, f.kinds,
	f.privacy, f.description, f.tag_name, f.super_class, f.mixins, f.import_url, f.return_type,
	f.signature_hash, f.start_line, f.start_col, f.end_line, f.end_col`

const featureFrom = ` FROM features f JOIN documents d ON d.id = f.document_id`

// FeaturesByDocument returns the features of the document at path in
// declaration order.
func (s *Store) FeaturesByDocument(path string) ([]Feature, error) {
	return s.queryFeatures("SELECT "+featureColumns+featureFrom+
		" WHERE d.path = ? ORDER BY f.ordinal", path)
}

// FeaturesByIdentifier returns every feature addressable by identifier.
func (s *Store) FeaturesByIdentifier(identifier string) ([]Feature, error) {
	return s.queryFeatures("SELECT DISTINCT "+featureColumns+featureFrom+
		" JOIN feature_identifiers fi ON fi.feature_id = f.id"+
		" WHERE fi.identifier = ? ORDER BY d.path, f.ordinal", identifier)
}

// FeatureByKey returns the feature with the given export key, or nil.
func (s *Store) FeatureByKey(key string) (*Feature, error) {
	fs, err := s.queryFeatures("SELECT "+featureColumns+featureFrom+" WHERE f.feature_key = ?", key)
	if err != nil || len(fs) == 0 {
		return nil, err
	}
	return &fs[0], nil
}

// FeaturesByKind returns every feature carrying kind.
func (s *Store) FeaturesByKind(kind feature.Kind) ([]Feature, error) {
	return s.queryFeatures("SELECT "+featureColumns+featureFrom+
		" WHERE EXISTS (SELECT 1 FROM json_each(f.kinds) k WHERE k.value = ?)"+
		" ORDER BY d.path, f.ordinal", string(kind))
}

func (s *Store) queryFeatures(query string, args ...any) ([]Feature, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()
	var features []Feature
	for rows.Next() {
		var f Feature
		var kinds, mixins string
		var privacy, description, tag, super, importURL, ret, hash sql.NullString
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Path, &f.Ordinal, &f.Key, &f.Name, &kinds,
			&privacy, &description, &tag, &super, &mixins, &importURL, &ret,
			&hash, &f.StartLine, &f.StartCol, &f.EndLine, &f.EndCol); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.Kinds = unmarshalStrings(kinds)
		f.Mixins = unmarshalStrings(mixins)
		f.Privacy = privacy.String
		f.Description = description.String
		f.TagName = tag.String
		f.SuperClass = super.String
		f.ImportURL = importURL.String
		f.ReturnType = ret.String
		f.SignatureHash = hash.String
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range features {
		idents, err := s.identifiers(features[i].ID)
		if err != nil {
			return nil, err
		}
		features[i].Identifiers = idents
	}
	return features, nil
}

func (s *Store) identifiers(featureID int64) ([]string, error) {
	rows, err := s.db.Query("SELECT identifier FROM feature_identifiers WHERE feature_id = ? ORDER BY rowid", featureID)
	if err != nil {
		return nil, fmt.Errorf("identifiers: %w", err)
	}
	defer rows.Close()
	var idents []string
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

// --- Members and parameters ---

// MembersByFeature returns the members of a class-like feature ordered by
// static-ness, kind, then name.
func (s *Store) MembersByFeature(featureID int64) ([]Member, error) {
	rows, err := s.db.Query(
		`SELECT id, feature_id, name, kind, privacy, is_static, inherited_from, type_expr, description,
			start_line, start_col, end_line, end_col
		 FROM members WHERE feature_id = ? ORDER BY is_static, kind DESC, name`, featureID)
	if err != nil {
		return nil, fmt.Errorf("members by feature: %w", err)
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		var privacy, inherited, typ, description sql.NullString
		if err := rows.Scan(&m.ID, &m.FeatureID, &m.Name, &m.Kind, &privacy, &m.Static, &inherited,
			&typ, &description, &m.StartLine, &m.StartCol, &m.EndLine, &m.EndCol); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Privacy = privacy.String
		m.InheritedFrom = inherited.String
		m.TypeExpr = typ.String
		m.Description = description.String
		members = append(members, m)
	}
	return members, rows.Err()
}

// ParamsByFeature returns the parameters of a function feature, or of one
// of its members when memberID is non-nil.
func (s *Store) ParamsByFeature(featureID int64, memberID *int64) ([]Param, error) {
	query := "SELECT id, feature_id, member_id, ordinal, name, type_expr, description FROM params WHERE feature_id = ?"
	args := []any{featureID}
	if memberID == nil {
		query += " AND member_id IS NULL"
	} else {
		query += " AND member_id = ?"
		args = append(args, *memberID)
	}
	rows, err := s.db.Query(query+" ORDER BY ordinal", args...)
	if err != nil {
		return nil, fmt.Errorf("params by feature: %w", err)
	}
	defer rows.Close()
	var params []Param
	for rows.Next() {
		var p Param
		var member sql.NullInt64
		var name, typ, description sql.NullString
		if err := rows.Scan(&p.ID, &p.FeatureID, &member, &p.Ordinal, &name, &typ, &description); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		if member.Valid {
			id := member.Int64
			p.MemberID = &id
		}
		p.Name = name.String
		p.TypeExpr = typ.String
		p.Description = description.String
		params = append(params, p)
	}
	return params, rows.Err()
}

// --- Warnings ---

// Warnings returns every warning at or above minSeverity.
func (s *Store) Warnings(minSeverity feature.Severity) ([]Warning, error) {
	return s.queryWarnings("WHERE w.severity >= ?", int(minSeverity))
}

// WarningsByDocument returns the warnings owned by the document at path.
func (s *Store) WarningsByDocument(path string) ([]Warning, error) {
	return s.queryWarnings("WHERE d.path = ?", path)
}

func (s *Store) queryWarnings(where string, args ...any) ([]Warning, error) {
	rows, err := s.db.Query(
		`SELECT w.id, w.document_id, d.path, w.feature_id, w.code, w.severity, w.message,
			w.start_line, w.start_col, w.end_line, w.end_col
		 FROM warnings w JOIN documents d ON d.id = w.document_id `+where+
			` ORDER BY d.path, w.start_line, w.start_col, w.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()
	var warnings []Warning
	for rows.Next() {
		var w Warning
		var featureID sql.NullInt64
		var severity int
		var message sql.NullString
		if err := rows.Scan(&w.ID, &w.DocumentID, &w.Path, &featureID, &w.Code, &severity, &message,
			&w.StartLine, &w.StartCol, &w.EndLine, &w.EndCol); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		if featureID.Valid {
			id := featureID.Int64
			w.FeatureID = &id
		}
		w.Severity = feature.Severity(severity)
		w.Message = message.String
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// --- Dependencies ---

// Dependencies returns the paths eagerly imported by the document at path.
func (s *Store) Dependencies(path string) ([]string, error) {
	return s.queryPaths(
		`SELECT DISTINCT dep.target_path FROM dependencies dep
		 JOIN documents d ON d.id = dep.document_id
		 WHERE d.path = ? ORDER BY dep.target_path`, path)
}

// Dependants returns the paths of documents that directly import path.
func (s *Store) Dependants(path string) ([]string, error) {
	return s.queryPaths(
		`SELECT DISTINCT d.path FROM dependencies dep
		 JOIN documents d ON d.id = dep.document_id
		 WHERE dep.target_path = ? ORDER BY d.path`, path)
}

// TransitiveDependants returns every document whose analysis can observe
// path: its direct importers, their importers, and so on. path itself is
// excluded even when it participates in a cycle.
func (s *Store) TransitiveDependants(path string) ([]string, error) {
	return s.queryPaths(
		`WITH RECURSIVE dependants(path) AS (
			SELECT d.path FROM dependencies dep
			JOIN documents d ON d.id = dep.document_id
			WHERE dep.target_path = ?
			UNION
			SELECT d.path FROM dependencies dep
			JOIN documents d ON d.id = dep.document_id
			JOIN dependants ON dep.target_path = dependants.path
		)
		SELECT path FROM dependants WHERE path != ? ORDER BY path`, path, path)
}

func (s *Store) queryPaths(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// --- Metadata ---

// GetMetadata returns the value stored under key, or "" if unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	if _, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	); err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
