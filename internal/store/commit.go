package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) line IDs are remapped to real
// (positive) IDs and the definitions and usages pointing at them are
// rewritten using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Lines (depend on file_id only, which is already real)
//  2. LabelDefs (depend on line_id)
//  3. LabelUsages (depend on line_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64, len(batch.Lines))

	// 1. Lines
	for _, l := range batch.Lines {
		realID, err := insertLineTx(tx, &l)
		if err != nil {
			return fmt.Errorf("commit batch: line %d: %w", l.LineNumber, err)
		}
		fakeToReal[l.ID] = realID
	}

	remap := func(lineID int64) (int64, error) {
		if lineID >= 0 {
			return lineID, nil
		}
		realID, ok := fakeToReal[lineID]
		if !ok {
			return 0, fmt.Errorf("line_id=%d not in fakeToReal map (have %d lines)", lineID, len(batch.Lines))
		}
		return realID, nil
	}

	// 2. LabelDefs
	for _, d := range batch.Defs {
		lineID, err := remap(d.LineID)
		if err != nil {
			return fmt.Errorf("commit batch: label def %q: %w", d.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO label_defs (line_id, name) VALUES (?, ?)", lineID, d.Name); err != nil {
			return fmt.Errorf("commit batch: label def %q: %w", d.Name, err)
		}
	}

	// 3. LabelUsages
	for _, u := range batch.Usages {
		lineID, err := remap(u.LineID)
		if err != nil {
			return fmt.Errorf("commit batch: label usage %q: %w", u.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO label_usages (line_id, name, bare) VALUES (?, ?, ?)", lineID, u.Name, u.Bare); err != nil {
			return fmt.Errorf("commit batch: label usage %q: %w", u.Name, err)
		}
	}

	return tx.Commit()
}

func insertLineTx(tx *sql.Tx, l *Line) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO lines (file_id, line_number, is_main) VALUES (?, ?, ?)",
		l.FileID, l.LineNumber, l.IsMain,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
