package labelgraph

import (
	"fmt"

	"github.com/jward/labelgraph/internal/store"
)

// QueryBuilder provides read access to a persisted label index.
type QueryBuilder struct {
	store *store.Store
}

// Definitions returns the sites defining the qualified label, ordered by
// line id.
func (q *QueryBuilder) Definitions(qualified string) ([]Location, error) {
	locs, err := q.store.DefinitionSites(qualified)
	if err != nil {
		return nil, fmt.Errorf("definitions: %w", err)
	}
	return locs, nil
}

// Usages returns the sites using the qualified label. When none exist it
// falls back to usages of bare and reports fallback=true.
func (q *QueryBuilder) Usages(qualified, bare string) (locs []Location, fallback bool, err error) {
	locs, fallback, err = q.store.UsageSites(qualified, bare)
	if err != nil {
		return nil, false, fmt.Errorf("usages: %w", err)
	}
	return locs, fallback, nil
}

// Labels returns every defined label starting with prefix, sorted.
func (q *QueryBuilder) Labels(prefix string) ([]string, error) {
	names, err := q.store.LabelNames(prefix)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	return names, nil
}

// Redefinitions returns every label defined on more than one line.
func (q *QueryBuilder) Redefinitions() ([]LabelSites, error) {
	sites, err := q.store.Redefinitions()
	if err != nil {
		return nil, fmt.Errorf("redefinitions: %w", err)
	}
	return sites, nil
}

// Undefined returns the used labels that have no definition.
func (q *QueryBuilder) Undefined() ([]string, error) {
	names, err := q.store.UndefinedUsages()
	if err != nil {
		return nil, fmt.Errorf("undefined: %w", err)
	}
	return names, nil
}

// Files returns every indexed file ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// LabelsAt returns the qualified definitions and the usages on a file's
// 0-based line.
func (q *QueryBuilder) LabelsAt(file string, line int) (defs []string, uses []LabelRef, err error) {
	f, err := q.store.FileByPath(file)
	if err != nil {
		return nil, nil, fmt.Errorf("labels at: lookup file: %w", err)
	}
	if f == nil {
		return nil, nil, nil
	}
	d, u, err := q.store.LabelsOnLine(f.ID, line)
	if err != nil {
		return nil, nil, fmt.Errorf("labels at: %w", err)
	}
	for _, x := range d {
		defs = append(defs, x.Name)
	}
	for _, x := range u {
		uses = append(uses, LabelRef{Qualified: x.Name, Bare: x.Bare})
	}
	return defs, uses, nil
}

// DefinitionAt finds the definitions of the labels used on a file's 0-based
// line. A usage with no definition under its qualified name is retried
// under its bare name.
func (q *QueryBuilder) DefinitionAt(file string, line int) ([]Location, error) {
	_, uses, err := q.LabelsAt(file, line)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	var locations []Location
	for _, ref := range uses {
		locs, err := q.store.DefinitionSites(ref.Qualified)
		if err != nil {
			return nil, fmt.Errorf("definition at: %w", err)
		}
		if len(locs) == 0 && ref.Bare != ref.Qualified {
			locs, err = q.store.DefinitionSites(ref.Bare)
			if err != nil {
				return nil, fmt.Errorf("definition at: %w", err)
			}
		}
		locations = append(locations, locs...)
	}
	return locations, nil
}
