package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

// FileCols is the column list for file queries.
const FileCols = "id, path, hash, def_hash, is_main, line_count, last_indexed"

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, hash, def_hash, is_main, line_count, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Hash, f.DefHash, f.IsMain, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

// UpdateFileHashes records the content and definition hashes of a file
// once its labels are committed. Until then the row keeps an empty content
// hash, so an interrupted run reindexes the file next time.
func (s *Store) UpdateFileHashes(fileID int64, hash, defHash string) error {
	if _, err := s.db.Exec("UPDATE files SET hash = ?, def_hash = ? WHERE id = ?", hash, defHash, fileID); err != nil {
		return fmt.Errorf("update file hashes: %w", err)
	}
	return nil
}

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash, defHash sql.NullString
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &hash, &defHash, &f.IsMain, &f.LineCount, &indexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.DefHash = defHash.String
	f.LastIndexed = indexed.Time
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+FileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+FileCols+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + FileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Line operations ---

func (s *Store) InsertLine(l *Line) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO lines (file_id, line_number, is_main) VALUES (?, ?, ?)",
		l.FileID, l.LineNumber, l.IsMain,
	)
	if err != nil {
		return 0, fmt.Errorf("insert line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	l.ID = id
	return id, nil
}

func (s *Store) LinesByFile(fileID int64) ([]*Line, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, line_number, is_main FROM lines WHERE file_id = ? ORDER BY line_number", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("lines by file: %w", err)
	}
	defer rows.Close()
	var lines []*Line
	for rows.Next() {
		l := &Line{}
		if err := rows.Scan(&l.ID, &l.FileID, &l.LineNumber, &l.IsMain); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// --- Label operations ---

func (s *Store) InsertLabelDef(d *LabelDef) (int64, error) {
	res, err := s.db.Exec("INSERT INTO label_defs (line_id, name) VALUES (?, ?)", d.LineID, d.Name)
	if err != nil {
		return 0, fmt.Errorf("insert label def: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

func (s *Store) InsertLabelUsage(u *LabelUsage) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO label_usages (line_id, name, bare) VALUES (?, ?, ?)", u.LineID, u.Name, u.Bare,
	)
	if err != nil {
		return 0, fmt.Errorf("insert label usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	return id, nil
}

// LabelDefsByFile returns the definitions recorded on a file's lines.
func (s *Store) LabelDefsByFile(fileID int64) ([]*LabelDef, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.line_id, d.name FROM label_defs d
		 JOIN lines l ON l.id = d.line_id
		 WHERE l.file_id = ? ORDER BY d.id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("label defs by file: %w", err)
	}
	defer rows.Close()
	var defs []*LabelDef
	for rows.Next() {
		d := &LabelDef{}
		if err := rows.Scan(&d.ID, &d.LineID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan label def: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// LabelUsagesByFile returns the usages recorded on a file's lines.
func (s *Store) LabelUsagesByFile(fileID int64) ([]*LabelUsage, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.line_id, u.name, u.bare FROM label_usages u
		 JOIN lines l ON l.id = u.line_id
		 WHERE l.file_id = ? ORDER BY u.id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("label usages by file: %w", err)
	}
	defer rows.Close()
	var uses []*LabelUsage
	for rows.Next() {
		u := &LabelUsage{}
		if err := rows.Scan(&u.ID, &u.LineID, &u.Name, &u.Bare); err != nil {
			return nil, fmt.Errorf("scan label usage: %w", err)
		}
		uses = append(uses, u)
	}
	return uses, rows.Err()
}

// LineLocation returns the location of a stored line, or nil when no line
// has that id. Label is left empty.
func (s *Store) LineLocation(lineID int64) (*Location, error) {
	loc := &Location{LineID: lineID}
	err := s.db.QueryRow(
		`SELECT f.path, l.line_number, l.is_main FROM lines l
		 JOIN files f ON f.id = l.file_id WHERE l.id = ?`, lineID,
	).Scan(&loc.File, &loc.Line, &loc.IsMain)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("line location: %w", err)
	}
	return loc, nil
}

// LabelsOnLine returns the definitions and usages recorded at a file's line.
func (s *Store) LabelsOnLine(fileID int64, lineNumber int) ([]*LabelDef, []*LabelUsage, error) {
	var lineID int64
	err := s.db.QueryRow(
		"SELECT id FROM lines WHERE file_id = ? AND line_number = ?", fileID, lineNumber,
	).Scan(&lineID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("labels on line: %w", err)
	}

	var defs []*LabelDef
	rows, err := s.db.Query("SELECT id, line_id, name FROM label_defs WHERE line_id = ? ORDER BY id", lineID)
	if err != nil {
		return nil, nil, fmt.Errorf("labels on line: defs: %w", err)
	}
	for rows.Next() {
		d := &LabelDef{}
		if err := rows.Scan(&d.ID, &d.LineID, &d.Name); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan label def: %w", err)
		}
		defs = append(defs, d)
	}
	rows.Close()

	var uses []*LabelUsage
	rows, err = s.db.Query("SELECT id, line_id, name, bare FROM label_usages WHERE line_id = ? ORDER BY id", lineID)
	if err != nil {
		return nil, nil, fmt.Errorf("labels on line: usages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u := &LabelUsage{}
		if err := rows.Scan(&u.ID, &u.LineID, &u.Name, &u.Bare); err != nil {
			return nil, nil, fmt.Errorf("scan label usage: %w", err)
		}
		uses = append(uses, u)
	}
	return defs, uses, rows.Err()
}
