package store

import "sync"

// BatchedStore buffers the lines and labels of one file in memory using fake
// (negative) IDs. It implements DataStore so scan workers can write to it
// without touching SQLite; CommitBatch later writes the buffer in one
// transaction.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Lines  []Line
	Defs   []LabelDef
	Usages []LabelUsage

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertLine(l *Line) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	l.ID = fakeID
	b.Lines = append(b.Lines, *l)
	return fakeID, nil
}

func (b *BatchedStore) InsertLabelDef(d *LabelDef) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Defs = append(b.Defs, *d)
	return fakeID, nil
}

func (b *BatchedStore) InsertLabelUsage(u *LabelUsage) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	u.ID = fakeID
	b.Usages = append(b.Usages, *u)
	return fakeID, nil
}

// LinesByFile returns a file's lines, merging any buffered (not yet
// committed) lines with those already in the database.
func (b *BatchedStore) LinesByFile(fileID int64) ([]*Line, error) {
	dbLines, err := b.store.LinesByFile(fileID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Lines {
		if b.Lines[i].FileID == fileID {
			dbLines = append(dbLines, &b.Lines[i])
		}
	}
	return dbLines, nil
}

// DefinedNames returns the qualified names buffered as definitions.
func (b *BatchedStore) DefinedNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.Defs))
	for i, d := range b.Defs {
		names[i] = d.Name
	}
	return names
}
