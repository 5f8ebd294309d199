package store

// DataStore is the write side of an export. Both Store (direct SQLite) and
// BatchedStore (in-memory buffering for parallel staging) implement it.
type DataStore interface {
	// Each insert returns the assigned ID.
	InsertDocument(d *Document) (int64, error)
	InsertFeature(f *Feature) (int64, error)
	InsertMember(m *Member) (int64, error)
	InsertParam(p *Param) (int64, error)
	InsertWarning(w *Warning) (int64, error)
	InsertDependency(d *Dependency) error
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
