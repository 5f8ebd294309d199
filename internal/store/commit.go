package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// CommitBatch replaces the stored data of every document in batch with the
// buffered rows, within a single transaction. Fake (negative) IDs are
// remapped to real IDs and all references within the batch are rewritten
// using the fakeToReal mapping. Documents not in batch are untouched.
//
// The returned Diff compares feature signature hashes, keyed by feature
// key, against what was stored for the same documents before the commit.
//
// Insert order respects FK dependencies:
//  1. Documents (upserted by path, old rows cleared)
//  2. Features (depend on document_id)
//  3. Members (depend on feature_id)
//  4. Params (depend on feature_id, member_id)
//  5. Warnings (depend on document_id, feature_id)
//  6. Dependencies (depend on document_id)
func (s *Store) CommitBatch(batch *BatchedStore) (Diff, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Diff{}, fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	docIDs := make(map[string]int64)
	before := make(map[string]string)

	// 1. Documents
	for _, d := range batch.Documents {
		var id int64
		err := tx.QueryRow("SELECT id FROM documents WHERE path = ?", d.Path).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return Diff{}, fmt.Errorf("commit batch: document %q: %w", d.Path, err)
		default:
			if err := signatureHashes(tx, id, before); err != nil {
				return Diff{}, fmt.Errorf("commit batch: %w", err)
			}
			if err := deleteDocumentData(tx, id); err != nil {
				return Diff{}, fmt.Errorf("commit batch: %w", err)
			}
		}
		fakeID := d.ID
		realID, err := insertDocumentTx(tx, &d)
		if err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
		fakeToReal[fakeID] = realID
		docIDs[d.Path] = realID
	}

	remapDocument := func(path string, id int64) (int64, error) {
		if id > 0 {
			return id, nil
		}
		if real, ok := docIDs[path]; ok {
			return real, nil
		}
		return 0, fmt.Errorf("document %q is not part of the batch", path)
	}

	// 2. Features
	after := make(map[string]string, len(batch.Features))
	for _, f := range batch.Features {
		fakeID := f.ID
		if f.DocumentID, err = remapDocument(f.Path, f.DocumentID); err != nil {
			return Diff{}, fmt.Errorf("commit batch: feature %q: %w", f.Name, err)
		}
		realID, err := insertFeatureTx(tx, &f)
		if err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
		fakeToReal[fakeID] = realID
		after[f.Key] = f.SignatureHash
	}

	// 3. Members
	for _, m := range batch.Members {
		fakeID := m.ID
		if m.FeatureID < 0 {
			m.FeatureID = fakeToReal[m.FeatureID]
		}
		realID, err := insertMemberTx(tx, &m)
		if err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
		fakeToReal[fakeID] = realID
	}

	// 4. Params
	for _, p := range batch.Params {
		if p.FeatureID < 0 {
			p.FeatureID = fakeToReal[p.FeatureID]
		}
		if p.MemberID != nil && *p.MemberID < 0 {
			realID := fakeToReal[*p.MemberID]
			p.MemberID = &realID
		}
		if _, err := insertParamTx(tx, &p); err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
	}

	// 5. Warnings
	for _, w := range batch.Warnings {
		if w.DocumentID, err = remapDocument(w.Path, w.DocumentID); err != nil {
			return Diff{}, fmt.Errorf("commit batch: warning %q: %w", w.Code, err)
		}
		if w.FeatureID != nil && *w.FeatureID < 0 {
			realID := fakeToReal[*w.FeatureID]
			w.FeatureID = &realID
		}
		if _, err := insertWarningTx(tx, &w); err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
	}

	// 6. Dependencies
	for _, d := range batch.Dependencies {
		id, err := remapDocument(d.Path, 0)
		if err != nil {
			return Diff{}, fmt.Errorf("commit batch: dependency: %w", err)
		}
		if err := insertDependencyTx(tx, id, &d); err != nil {
			return Diff{}, fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Diff{}, fmt.Errorf("commit batch: %w", err)
	}
	return diffHashes(before, after), nil
}

// signatureHashes adds the stored feature key → signature hash pairs of a
// document to out.
func signatureHashes(tx execer, documentID int64, out map[string]string) error {
	rows, err := tx.Query("SELECT feature_key, signature_hash FROM features WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("signature hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			return fmt.Errorf("scan signature hash: %w", err)
		}
		out[key] = hash
	}
	return rows.Err()
}

func diffHashes(before, after map[string]string) Diff {
	var d Diff
	for key, hash := range after {
		old, ok := before[key]
		switch {
		case !ok:
			d.Added = append(d.Added, key)
		case old != hash:
			d.Changed = append(d.Changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			d.Removed = append(d.Removed, key)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}
