package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/labelgraph/internal/store"
)

// --- Label query bridge functions ---

// defs(qualified) → list of location maps
func makeDefsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("defs", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("defs", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("defs: %v", err)
		}
		locs, err := s.DefinitionSites(name)
		if err != nil {
			return object.Errorf("defs: %v", err)
		}
		return locationsToList(locs)
	})
}

// usages(qualified, bare?) → list of location maps. Without bare there is no
// fallback lookup.
func makeUsagesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("usages", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("usages: expected 1 or 2 arguments, got %d", len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("usages: %v", err)
		}
		bare := ""
		if len(args) == 2 {
			if bare, err = toString(args[1]); err != nil {
				return object.Errorf("usages: %v", err)
			}
		}
		locs, _, err := s.UsageSites(name, bare)
		if err != nil {
			return object.Errorf("usages: %v", err)
		}
		return locationsToList(locs)
	})
}

// line(id) → location map, or nil for unknown ids
func makeLineFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("line", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("line", 1, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("line: %v", err)
		}
		loc, err := s.LineLocation(id)
		if err != nil {
			return object.Errorf("line: %v", err)
		}
		if loc == nil {
			return object.Nil
		}
		return locationToMap(*loc)
	})
}

// labels(prefix?) → sorted list of names
func makeLabelsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("labels", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("labels: expected 0 or 1 arguments, got %d", len(args))
		}
		prefix := ""
		if len(args) == 1 {
			var err error
			if prefix, err = toString(args[0]); err != nil {
				return object.Errorf("labels: %v", err)
			}
		}
		names, err := s.LabelNames(prefix)
		if err != nil {
			return object.Errorf("labels: %v", err)
		}
		return stringsToList(names)
	})
}

// redefinitions() → list of {name, sites}
func makeRedefinitionsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("redefinitions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("redefinitions", 0, len(args))
		}
		redefs, err := s.Redefinitions()
		if err != nil {
			return object.Errorf("redefinitions: %v", err)
		}
		results := make([]object.Object, 0, len(redefs))
		for _, r := range redefs {
			results = append(results, object.NewMap(map[string]object.Object{
				"name":  object.NewString(r.Name),
				"sites": locationsToList(r.Locations),
			}))
		}
		return object.NewList(results)
	})
}

// undefined() → sorted list of used names without a definition
func makeUndefinedFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("undefined", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("undefined", 0, len(args))
		}
		names, err := s.UndefinedUsages()
		if err != nil {
			return object.Errorf("undefined: %v", err)
		}
		return stringsToList(names)
	})
}

// files() → list of {id, path, main, lines}
func makeFilesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		files, err := s.Files()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":    object.NewInt(f.ID),
				"path":  object.NewString(f.Path),
				"main":  object.NewBool(f.IsMain),
				"lines": object.NewInt(int64(f.LineCount)),
			}))
		}
		return object.NewList(results)
	})
}

// makeDBQueryFn creates a db_query bridge that executes arbitrary read-only SQL.
// Returns a list of maps (column name → value).
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		// Convert remaining args to query parameters.
		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		var results []object.Object
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

// --- Conversion helpers ---

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// locationToMap converts a store.Location to a Risor map. Line numbers are
// 1-based, as shown to users.
func locationToMap(loc store.Location) object.Object {
	return object.NewMap(map[string]object.Object{
		"id":    object.NewInt(loc.LineID),
		"file":  object.NewString(loc.File),
		"line":  object.NewInt(int64(loc.Line + 1)),
		"main":  object.NewBool(loc.IsMain),
		"label": object.NewString(loc.Label),
	})
}

func locationsToList(locs []store.Location) object.Object {
	results := make([]object.Object, 0, len(locs))
	for _, loc := range locs {
		results = append(results, locationToMap(loc))
	}
	return object.NewList(results)
}

func stringsToList(ss []string) object.Object {
	results := make([]object.Object, 0, len(ss))
	for _, s := range ss {
		results = append(results, object.NewString(s))
	}
	return object.NewList(results)
}
