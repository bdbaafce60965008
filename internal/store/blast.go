package store

import "fmt"

// FilesUsingLabels returns the IDs of files with a usage of any of names,
// matching either the qualified or the bare form.
func (s *Store) FilesUsingLabels(names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(names))
	args := stringsToArgs(names)
	q := `SELECT DISTINCT l.file_id FROM label_usages u
	      JOIN lines l ON l.id = u.line_id
	      WHERE u.name IN (` + placeholders + `) OR u.bare IN (` + placeholders + `)
	      ORDER BY l.file_id`
	rows, err := s.db.Query(q, repeatArgs(args, countSubstring(q, "("+placeholders+")"))...)
	if err != nil {
		return nil, fmt.Errorf("files using labels: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DefinedNames returns the distinct qualified names a file defines, sorted.
func (s *Store) DefinedNames(fileID int64) ([]string, error) {
	names, err := s.queryNames(
		`SELECT DISTINCT d.name FROM label_defs d
		 JOIN lines l ON l.id = d.line_id
		 WHERE l.file_id = ? ORDER BY d.name`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("defined names: %w", err)
	}
	return names, nil
}

// FilePaths maps file IDs to paths. Unknown IDs are omitted.
func (s *Store) FilePaths(ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(
		"SELECT id, path FROM files WHERE id IN ("+placeholderList(len(ids))+")", int64sToArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("file paths: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		out[id] = path
	}
	return out, rows.Err()
}
