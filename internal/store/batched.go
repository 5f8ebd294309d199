package store

import "sync"

// BatchedStore buffers export rows in memory using fake (negative) IDs so
// that documents can be staged concurrently and written in one transaction
// by CommitBatch.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	mu sync.Mutex

	Documents    []Document
	Features     []Feature
	Members      []Member
	Params       []Param
	Warnings     []Warning
	Dependencies []Dependency

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{nextFakeID: -1}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertDocument(d *Document) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Documents = append(b.Documents, *d)
	return fakeID, nil
}

func (b *BatchedStore) InsertFeature(f *Feature) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	f.ID = fakeID
	b.Features = append(b.Features, *f)
	return fakeID, nil
}

func (b *BatchedStore) InsertMember(m *Member) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	m.ID = fakeID
	b.Members = append(b.Members, *m)
	return fakeID, nil
}

func (b *BatchedStore) InsertParam(p *Param) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	p.ID = fakeID
	b.Params = append(b.Params, *p)
	return fakeID, nil
}

func (b *BatchedStore) InsertWarning(w *Warning) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	w.ID = fakeID
	b.Warnings = append(b.Warnings, *w)
	return fakeID, nil
}

func (b *BatchedStore) InsertDependency(d *Dependency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Dependencies = append(b.Dependencies, *d)
	return nil
}
