package store

import (
	"database/sql"
	"fmt"
)

// --- Document operations ---

// InsertDocument creates the document row or updates the existing row with
// the same path, returning its ID.
func (s *Store) InsertDocument(d *Document) (int64, error) {
	return insertDocumentTx(s.db, d)
}

func insertDocumentTx(tx execer, d *Document) (int64, error) {
	_, err := tx.Exec(
		`INSERT INTO documents (path, kind, hash, last_analyzed) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, hash = excluded.hash,
			last_analyzed = excluded.last_analyzed`,
		d.Path, d.Kind, d.Hash, d.LastAnalyzed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	if err := tx.QueryRow("SELECT id FROM documents WHERE path = ?", d.Path).Scan(&d.ID); err != nil {
		return 0, fmt.Errorf("document id: %w", err)
	}
	return d.ID, nil
}

// documentID returns the ID of the document at path.
func documentID(tx execer, path string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM documents WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no document %q", path)
	}
	if err != nil {
		return 0, fmt.Errorf("document id: %w", err)
	}
	return id, nil
}

// --- Feature operations ---

func (s *Store) InsertFeature(f *Feature) (int64, error) {
	if f.DocumentID == 0 {
		id, err := documentID(s.db, f.Path)
		if err != nil {
			return 0, fmt.Errorf("insert feature: %w", err)
		}
		f.DocumentID = id
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := insertFeatureTx(tx, f); err != nil {
		return 0, err
	}
	return f.ID, tx.Commit()
}

// insertFeatureTx writes the feature row and its identifiers.
func insertFeatureTx(tx execer, f *Feature) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO features (document_id, ordinal, feature_key, name, kinds, privacy,
			description, tag_name, super_class, mixins, import_url, return_type,
			signature_hash, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.DocumentID, f.Ordinal, f.Key, f.Name, marshalStrings(f.Kinds), f.Privacy,
		f.Description, f.TagName, f.SuperClass, marshalStrings(f.Mixins), f.ImportURL, f.ReturnType,
		f.SignatureHash, f.StartLine, f.StartCol, f.EndLine, f.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert feature %q: %w", f.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	for _, ident := range f.Identifiers {
		if _, err := tx.Exec("INSERT INTO feature_identifiers (feature_id, identifier) VALUES (?, ?)", id, ident); err != nil {
			return 0, fmt.Errorf("insert identifier %q: %w", ident, err)
		}
	}
	return id, nil
}

// --- Member and parameter operations ---

func (s *Store) InsertMember(m *Member) (int64, error) {
	return insertMemberTx(s.db, m)
}

func insertMemberTx(tx execer, m *Member) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO members (feature_id, name, kind, privacy, is_static, inherited_from,
			type_expr, description, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.FeatureID, m.Name, m.Kind, m.Privacy, m.Static, m.InheritedFrom,
		m.TypeExpr, m.Description, m.StartLine, m.StartCol, m.EndLine, m.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert member %q: %w", m.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return id, nil
}

func (s *Store) InsertParam(p *Param) (int64, error) {
	return insertParamTx(s.db, p)
}

func insertParamTx(tx execer, p *Param) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO params (feature_id, member_id, ordinal, name, type_expr, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.FeatureID, p.MemberID, p.Ordinal, p.Name, p.TypeExpr, p.Description,
	)
	if err != nil {
		return 0, fmt.Errorf("insert param %q: %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return id, nil
}

// --- Warning and dependency operations ---

func (s *Store) InsertWarning(w *Warning) (int64, error) {
	if w.DocumentID == 0 {
		id, err := documentID(s.db, w.Path)
		if err != nil {
			return 0, fmt.Errorf("insert warning: %w", err)
		}
		w.DocumentID = id
	}
	return insertWarningTx(s.db, w)
}

func insertWarningTx(tx execer, w *Warning) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO warnings (document_id, feature_id, code, severity, message,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.DocumentID, w.FeatureID, w.Code, int(w.Severity), w.Message,
		w.StartLine, w.StartCol, w.EndLine, w.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert warning %q: %w", w.Code, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	w.ID = id
	return id, nil
}

func (s *Store) InsertDependency(d *Dependency) error {
	id, err := documentID(s.db, d.Path)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", err)
	}
	return insertDependencyTx(s.db, id, d)
}

func insertDependencyTx(tx execer, documentID int64, d *Dependency) error {
	if _, err := tx.Exec(
		"INSERT INTO dependencies (document_id, target_path) VALUES (?, ?)", documentID, d.TargetPath,
	); err != nil {
		return fmt.Errorf("insert dependency %s -> %s: %w", d.Path, d.TargetPath, err)
	}
	return nil
}
