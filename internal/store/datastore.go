package store

// DataStore is the interface for index-phase writes. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel scanning)
// implement this interface.
type DataStore interface {
	// Inserts; each returns the assigned ID.
	InsertLine(l *Line) (int64, error)
	InsertLabelDef(d *LabelDef) (int64, error)
	InsertLabelUsage(u *LabelUsage) (int64, error)

	LinesByFile(fileID int64) ([]*Line, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
