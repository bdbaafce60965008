package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile is a helper that inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path string) *File {
	t.Helper()
	f := &File{Path: path, Hash: "abc123", IsMain: true, LastIndexed: time.Now().Truncate(time.Second)}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

// insertTestLine inserts a line carrying the given definitions and usages.
// Usages are given as qualified names whose bare form is the text after the
// last dot.
func insertTestLine(t *testing.T, s *Store, fileID int64, lineNumber int, defs []string, uses []string) int64 {
	t.Helper()
	lineID, err := s.InsertLine(&Line{FileID: fileID, LineNumber: lineNumber, IsMain: true})
	require.NoError(t, err)
	for _, d := range defs {
		_, err := s.InsertLabelDef(&LabelDef{LineID: lineID, Name: d})
		require.NoError(t, err)
	}
	for _, u := range uses {
		bare := u
		if i := strings.LastIndex(u, "."); i >= 0 {
			bare = u[i+1:]
		}
		_, err := s.InsertLabelUsage(&LabelUsage{LineID: lineID, Name: u, Bare: bare})
		require.NoError(t, err)
	}
	return lineID
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "lines", "label_defs", "label_usages", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("dialect")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("dialect", "masm"))
	require.NoError(t, s.SetMetadata("dialect", "nasm"))
	v, err = s.GetMetadata("dialect")
	require.NoError(t, err)
	assert.Equal(t, "nasm", v)
}

// =============================================================================
// Files and lines
// =============================================================================

func TestFiles_InsertAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/src/main.asm")

	got, err := s.FileByPath("/src/main.asm")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "abc123", got.Hash)
	assert.True(t, got.IsMain)

	byID, err := s.FileByID(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "/src/main.asm", byID.Path)

	missing, err := s.FileByPath("/nope.asm")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.UpdateFileHashes(f.ID, "feed", "deadbeef"))
	got, err = s.FileByPath("/src/main.asm")
	require.NoError(t, err)
	assert.Equal(t, "feed", got.Hash)
	assert.Equal(t, "deadbeef", got.DefHash)
}

func TestFiles_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/b.asm")
	insertTestFile(t, s, "/a.asm")

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/a.asm", files[0].Path)
	assert.Equal(t, "/b.asm", files[1].Path)
}

func TestLines_UniquePerFileAndNumber(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")

	_, err := s.InsertLine(&Line{FileID: f.ID, LineNumber: 3})
	require.NoError(t, err)
	_, err = s.InsertLine(&Line{FileID: f.ID, LineNumber: 3})
	assert.Error(t, err)
}

func TestDeleteFileData_RemovesLinesAndLabels(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestFile(t, s, "/a.asm")
	b := insertTestFile(t, s, "/b.asm")
	insertTestLine(t, s, a.ID, 0, []string{"start"}, nil)
	insertTestLine(t, s, b.ID, 4, nil, []string{"start"})

	require.NoError(t, s.DeleteFileData(a.ID))

	lines, err := s.LinesByFile(a.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
	defs, err := s.LabelDefsByFile(a.ID)
	require.NoError(t, err)
	assert.Empty(t, defs)

	// The file row and other files survive.
	f, err := s.FileByID(a.ID)
	require.NoError(t, err)
	assert.NotNil(t, f)
	uses, err := s.LabelUsagesByFile(b.ID)
	require.NoError(t, err)
	assert.Len(t, uses, 1)

	require.NoError(t, s.DeleteFile(b.ID))
	f, err = s.FileByID(b.ID)
	require.NoError(t, err)
	assert.Nil(t, f)
}

// =============================================================================
// Site queries
// =============================================================================

func TestDefinitionSites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	id1 := insertTestLine(t, s, f.ID, 9, []string{"myLabel"}, nil)
	insertTestLine(t, s, f.ID, 24, nil, []string{"myLabel"})

	locs, err := s.DefinitionSites("myLabel")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, Location{File: "/main.asm", Line: 9, LineID: id1, Label: "myLabel", IsMain: true}, locs[0])

	locs, err = s.DefinitionSites("unknown")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestUsageSites_FallsBackToBare(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	insertTestLine(t, s, f.ID, 2, nil, []string{"main.loop"})

	locs, fallback, err := s.UsageSites("main.loop", "loop")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Len(t, locs, 1)

	locs, fallback, err = s.UsageSites("other.loop", "loop")
	require.NoError(t, err)
	assert.True(t, fallback)
	require.Len(t, locs, 1)
	assert.Equal(t, "main.loop", locs[0].Label)

	locs, fallback, err = s.UsageSites("nothing", "nothing")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Empty(t, locs)
}

func TestUsageSites_SameQualifiedAndBare(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	id := insertTestLine(t, s, f.ID, 4, nil, []string{"main.helper"})

	// A global called from inside a proc is stored under the proc's scope.
	locs, fallback, err := s.UsageSites("helper", "helper")
	require.NoError(t, err)
	assert.True(t, fallback)
	require.Len(t, locs, 1)
	assert.Equal(t, id, locs[0].LineID)
	assert.Equal(t, "main.helper", locs[0].Label)

	locs, fallback, err = s.UsageSites("nothing", "nothing")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Empty(t, locs)
}

func TestLabelNames_Prefix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	insertTestLine(t, s, f.ID, 0, []string{"main"}, nil)
	insertTestLine(t, s, f.ID, 1, []string{"main.L1"}, nil)
	insertTestLine(t, s, f.ID, 2, []string{"helper"}, nil)

	all, err := s.LabelNames("")
	require.NoError(t, err)
	assert.Equal(t, []string{"helper", "main", "main.L1"}, all)

	scoped, err := s.LabelNames("main.")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.L1"}, scoped)
}

func TestRedefinitions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestFile(t, s, "/a.asm")
	b := insertTestFile(t, s, "/b.inc")
	insertTestLine(t, s, a.ID, 3, []string{"start"}, nil)
	insertTestLine(t, s, b.ID, 7, []string{"start"}, nil)
	insertTestLine(t, s, a.ID, 5, []string{"once"}, nil)

	redefs, err := s.Redefinitions()
	require.NoError(t, err)
	require.Len(t, redefs, 1)
	assert.Equal(t, "start", redefs[0].Name)
	require.Len(t, redefs[0].Locations, 2)
	assert.Equal(t, "/a.asm", redefs[0].Locations[0].File)
	assert.Equal(t, "/b.inc", redefs[0].Locations[1].File)
}

func TestUndefinedUsages(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	insertTestLine(t, s, f.ID, 0, []string{"helper"}, nil)
	insertTestLine(t, s, f.ID, 1, nil, []string{"main.helper", "main.missing"})

	names, err := s.UndefinedUsages()
	require.NoError(t, err)
	assert.Equal(t, []string{"main.missing"}, names)
}

// =============================================================================
// Change tracking
// =============================================================================

func TestFilesUsingLabels(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestFile(t, s, "/a.asm")
	b := insertTestFile(t, s, "/b.asm")
	c := insertTestFile(t, s, "/c.asm")
	insertTestLine(t, s, a.ID, 0, []string{"start"}, nil)
	insertTestLine(t, s, b.ID, 0, nil, []string{"start"})
	insertTestLine(t, s, c.ID, 0, nil, []string{"proc.start"})

	ids, err := s.FilesUsingLabels([]string{"start"})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID}, ids)

	ids, err = s.FilesUsingLabels(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	paths, err := s.FilePaths([]int64{a.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{a.ID: "/a.asm"}, paths)
}

func TestComputeDefinitionHash(t *testing.T) {
	t.Parallel()
	h1 := ComputeDefinitionHash([]string{"b", "a", "a"})
	h2 := ComputeDefinitionHash([]string{"a", "b"})
	h3 := ComputeDefinitionHash([]string{"a", "c"})
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestChangedNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "d"}, ChangedNames([]string{"a", "b", "c"}, []string{"b", "c", "d"}))
	assert.Empty(t, ChangedNames([]string{"x"}, []string{"x"}))
}

func TestLineLocationAndLabelsOnLine(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	id := insertTestLine(t, s, f.ID, 6, []string{"main.L1"}, []string{"main.L2"})

	loc, err := s.LineLocation(id)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "/main.asm", loc.File)
	assert.Equal(t, 6, loc.Line)

	loc, err = s.LineLocation(id + 100)
	require.NoError(t, err)
	assert.Nil(t, loc)

	defs, uses, err := s.LabelsOnLine(f.ID, 6)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Len(t, uses, 1)
	assert.Equal(t, "main.L1", defs[0].Name)
	assert.Equal(t, "L2", uses[0].Bare)

	defs, uses, err = s.LabelsOnLine(f.ID, 7)
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.Empty(t, uses)
}
