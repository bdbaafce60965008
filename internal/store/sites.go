package store

import "fmt"

const siteCols = "f.path, l.line_number, l.id, l.is_main"

func (s *Store) querySites(query string, args ...any) ([]Location, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locs []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.File, &loc.Line, &loc.LineID, &loc.IsMain, &loc.Label); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// DefinitionSites returns every line defining the qualified name, ordered by
// line id.
func (s *Store) DefinitionSites(name string) ([]Location, error) {
	locs, err := s.querySites(
		`SELECT DISTINCT `+siteCols+`, d.name FROM label_defs d
		 JOIN lines l ON l.id = d.line_id
		 JOIN files f ON f.id = l.file_id
		 WHERE d.name = ? ORDER BY l.id`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("definition sites: %w", err)
	}
	return locs, nil
}

// UsageSites returns every line using the qualified name. When there is
// none it answers with the lines using bare instead, and fallback is true.
func (s *Store) UsageSites(name, bare string) (locs []Location, fallback bool, err error) {
	locs, err = s.querySites(
		`SELECT DISTINCT `+siteCols+`, u.name FROM label_usages u
		 JOIN lines l ON l.id = u.line_id
		 JOIN files f ON f.id = l.file_id
		 WHERE u.name = ? ORDER BY l.id`, name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("usage sites: %w", err)
	}
	if len(locs) > 0 || bare == "" {
		return locs, false, nil
	}
	locs, err = s.querySites(
		`SELECT DISTINCT `+siteCols+`, u.name FROM label_usages u
		 JOIN lines l ON l.id = u.line_id
		 JOIN files f ON f.id = l.file_id
		 WHERE u.bare = ? ORDER BY l.id`, bare,
	)
	if err != nil {
		return nil, false, fmt.Errorf("bare usage sites: %w", err)
	}
	return locs, len(locs) > 0, nil
}

func (s *Store) queryNames(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LabelNames returns every defined label, sorted. A non-empty prefix keeps
// only names starting with it.
func (s *Store) LabelNames(prefix string) ([]string, error) {
	names, err := s.queryNames(
		"SELECT DISTINCT name FROM label_defs WHERE substr(name, 1, ?) = ? ORDER BY name",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("label names: %w", err)
	}
	return names, nil
}

// Redefinitions returns the labels defined on more than one line.
func (s *Store) Redefinitions() ([]LabelSites, error) {
	names, err := s.queryNames(
		"SELECT name FROM label_defs GROUP BY name HAVING COUNT(DISTINCT line_id) > 1 ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("redefinitions: %w", err)
	}
	out := make([]LabelSites, 0, len(names))
	for _, name := range names {
		locs, err := s.DefinitionSites(name)
		if err != nil {
			return nil, err
		}
		out = append(out, LabelSites{Name: name, Locations: locs})
	}
	return out, nil
}

// UndefinedUsages returns the used names that have no definition under
// either their qualified or their bare form.
func (s *Store) UndefinedUsages() ([]string, error) {
	names, err := s.queryNames(
		`SELECT DISTINCT u.name FROM label_usages u
		 WHERE NOT EXISTS (SELECT 1 FROM label_defs d WHERE d.name = u.name OR d.name = u.bare)
		 ORDER BY u.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("undefined usages: %w", err)
	}
	return names, nil
}
