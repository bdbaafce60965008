package labelgraph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/labelgraph/internal/store"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// testFileHash computes the same SHA256 hex hash the engine uses.
func testFileHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func writeSource(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

// masmProgram is a small two-procedure MASM program.
var masmProgram = []string{
	"main PROC",       // 0
	"L1:",             // 1
	"    dec ecx",     // 2
	"    jnz L1",      // 3
	"    call helper", // 4
	"    ret",         // 5
	"main ENDP",       // 6
	"helper PROC",     // 7
	"    jmp missing", // 8
	"    ret",         // 9
	"helper ENDP",     // 10
}

func TestNew_CreatesStore(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Store())
	assert.Equal(t, MASM, e.Dialect())

	// Verify the DB is usable (migration ran).
	_, err := e.Store().InsertFile(&store.File{Path: "/tmp/test.asm", Hash: "abc", LastIndexed: time.Now()})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestWithExtensions(t *testing.T) {
	e := newTestEngine(t, WithExtensions(map[string]bool{".ASM": true, ".h": false}))

	main, ok := e.isSource("x.asm")
	assert.True(t, ok)
	assert.True(t, main)
	main, ok = e.isSource("x.h")
	assert.True(t, ok)
	assert.False(t, main)
	_, ok = e.isSource("x.inc")
	assert.False(t, ok)
}

func TestIndexFiles_SkipsUnsupportedExtensions(t *testing.T) {
	e := newTestEngine(t)

	tmp := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(tmp, []byte("start:"), 0644))
	require.NoError(t, e.IndexFiles(context.Background(), []string{tmp}))

	f, err := e.Store().FileByPath(tmp)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_StoresLabelLines(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	f, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.IsMain)
	assert.Equal(t, len(masmProgram)+1, f.LineCount)
	assert.NotEmpty(t, f.DefHash)

	lines, err := e.Store().LinesByFile(f.ID)
	require.NoError(t, err)
	var numbers []int
	for _, l := range lines {
		numbers = append(numbers, l.LineNumber)
	}
	// Lines without labels are not stored.
	assert.Equal(t, []int{0, 1, 3, 4, 7, 8}, numbers)

	names, err := e.Store().DefinedNames(f.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"helper", "main", "main.L1"}, names)
}

func TestIndexFiles_IncludeFileIsNotMain(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "macros.inc")
	writeSource(t, path, "shared:")

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	locs, err := e.Query().Definitions("shared")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.False(t, locs[0].IsMain)
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	e := newTestEngine(t)

	tmp := filepath.Join(t.TempDir(), "main.asm")
	content := []byte("start:\n")
	require.NoError(t, os.WriteFile(tmp, content, 0644))

	// Pre-insert with the correct hash and no lines.
	_, err := e.Store().InsertFile(&store.File{Path: tmp, Hash: testFileHash(content), IsMain: true, LastIndexed: time.Now()})
	require.NoError(t, err)

	require.NoError(t, e.IndexFiles(context.Background(), []string{tmp}))

	locs, err := e.Query().Definitions("start")
	require.NoError(t, err)
	assert.Empty(t, locs, "unchanged file should not be rescanned")
}

func TestIndexFiles_ReindexesChangedFiles(t *testing.T) {
	e := newTestEngine(t)
	tmp := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, tmp, "first:")
	require.NoError(t, e.IndexFiles(context.Background(), []string{tmp}))

	writeSource(t, tmp, "second:")
	require.NoError(t, e.IndexFiles(context.Background(), []string{tmp}))

	labels, err := e.Query().Labels("")
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, labels)

	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIndexFiles_SerialAndParallelAgree(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, fmt.Sprintf("f%d.asm", i))
		writeSource(t, p,
			fmt.Sprintf("entry%d PROC", i),
			"    call shared",
			fmt.Sprintf("entry%d ENDP", i),
			"shared::",
		)
		paths = append(paths, p)
	}

	snapshot := func(parallel bool) ([]string, []Location) {
		e := newTestEngine(t, WithParallel(parallel))
		require.NoError(t, e.IndexFiles(context.Background(), paths))
		labels, err := e.Query().Labels("")
		require.NoError(t, err)
		locs, _, err := e.Query().Usages("entry3.shared", "shared")
		require.NoError(t, err)
		for i := range locs {
			locs[i].LineID = 0
		}
		return labels, locs
	}

	serialLabels, serialUses := snapshot(false)
	parallelLabels, parallelUses := snapshot(true)
	assert.Equal(t, serialLabels, parallelLabels)
	assert.Equal(t, serialUses, parallelUses)
	assert.Len(t, serialUses, 1)
}

func TestIndexFiles_ReadErrorIsReported(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	dir := t.TempDir()
	good := filepath.Join(dir, "good.asm")
	writeSource(t, good, "ok:")

	err := e.IndexFiles(context.Background(), []string{filepath.Join(dir, "gone.asm"), good})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.asm")

	// The serial path keeps going after a failed file.
	locs, err := e.Query().Definitions("ok")
	require.NoError(t, err)
	assert.Len(t, locs, 1)
}

func TestIndexFiles_CanceledContext(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, "start:")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.IndexFiles(ctx, []string{path}), context.Canceled)
}

func TestIndexFiles_InterruptedRunIsRedone(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			e := newTestEngine(t, WithParallel(parallel))
			path := filepath.Join(t.TempDir(), "main.asm")
			writeSource(t, path, masmProgram...)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.ErrorIs(t, e.IndexFiles(ctx, []string{path}), context.Canceled)

			require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
			locs, err := e.Query().Definitions("main")
			require.NoError(t, err)
			assert.Len(t, locs, 1)
		})
	}
}

func TestIndexFiles_HashStoredAfterCommit(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)

	// A prepared file that never got scanned must not look up to date.
	_, skip, err := e.prepareFile(path)
	require.NoError(t, err)
	require.False(t, skip)
	f, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Empty(t, f.Hash)

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	locs, err := e.Query().Definitions("main")
	require.NoError(t, err)
	assert.Len(t, locs, 1)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err = e.Store().FileByPath(path)
	require.NoError(t, err)
	assert.Equal(t, testFileHash(content), f.Hash)
}

func TestQueryUsages_AgreesWithGraph(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	g, err := e.Graph(context.Background())
	require.NoError(t, err)
	ids, err := g.GetLabelUsages("helper", "helper")
	require.NoError(t, err)

	locs, fallback, err := e.Query().Usages("helper", "helper")
	require.NoError(t, err)
	assert.True(t, fallback)
	require.Len(t, locs, len(ids))
	require.Len(t, locs, 1)
	assert.Equal(t, 4, locs[0].Line)
	assert.Equal(t, "main.helper", locs[0].Label)
}

// =============================================================================
// Dialect tracking
// =============================================================================

func TestIndexFiles_DialectChangeReindexes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	path := filepath.Join(t.TempDir(), "boot.asm")
	writeSource(t, path, "start:", ".loop:", "    jmp .loop")

	e, err := New(dbPath, WithIndexDialect(MASM))
	require.NoError(t, err)
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	require.NoError(t, e.Close())

	var buf bytes.Buffer
	e, err = New(dbPath, WithIndexDialect(NASM), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.DialectChanged())
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	assert.False(t, e.DialectChanged())
	assert.Contains(t, buf.String(), "reindexing for nasm")

	// The unchanged file was rescanned with NASM rules.
	locs, err := e.Query().Definitions("start.loop")
	require.NoError(t, err)
	assert.Len(t, locs, 1)
}

func TestDialectChanged_FreshDatabase(t *testing.T) {
	e := newTestEngine(t, WithIndexDialect(GAS))
	assert.False(t, e.DialectChanged())
}

// =============================================================================
// Affected files
// =============================================================================

func TestAffected_TracksUsersOfChangedDefinitions(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.asm")
	user := filepath.Join(dir, "user.asm")
	other := filepath.Join(dir, "other.asm")
	writeSource(t, lib, "helper::", "    ret")
	writeSource(t, user, "    call helper")
	writeSource(t, other, "    call unrelated")
	require.NoError(t, e.IndexFiles(context.Background(), []string{lib, user, other}))

	first, err := e.Affected()
	require.NoError(t, err)
	assert.Equal(t, []string{lib, other, user}, first)

	// A comment-only edit keeps the definition set.
	writeSource(t, lib, "helper::", "    ret ; done")
	require.NoError(t, e.IndexFiles(context.Background(), []string{lib}))
	got, err := e.Affected()
	require.NoError(t, err)
	assert.Equal(t, []string{lib}, got)

	// Renaming the label affects its users.
	writeSource(t, lib, "helper2::", "    ret")
	require.NoError(t, e.IndexFiles(context.Background(), []string{lib}))
	got, err = e.Affected()
	require.NoError(t, err)
	assert.Equal(t, []string{lib, user}, got)

	got, err = e.Affected()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemoveFiles(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.asm")
	user := filepath.Join(dir, "user.asm")
	writeSource(t, lib, "helper::")
	writeSource(t, user, "    call helper")
	require.NoError(t, e.IndexFiles(context.Background(), []string{lib, user}))
	_, err := e.Affected()
	require.NoError(t, err)

	require.NoError(t, e.RemoveFiles([]string{lib, filepath.Join(dir, "never.asm")}))

	f, err := e.Store().FileByPath(lib)
	require.NoError(t, err)
	assert.Nil(t, f)

	got, err := e.Affected()
	require.NoError(t, err)
	assert.Equal(t, []string{user}, got)

	undefined, err := e.Query().Undefined()
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, undefined)
}

// =============================================================================
// Directory indexing
// =============================================================================

func TestIndexDirectory_DiscoversSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeSource(t, filepath.Join(root, "main.asm"), "start:")
	writeSource(t, filepath.Join(root, "lib", "util.inc"), "util:")
	writeSource(t, filepath.Join(root, "readme.txt"), "notes:")

	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))

	labels, err := e.Query().Labels("")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "util"}, labels)
}

func TestIndexDirectory_SkipsHiddenAndExcludedDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".cache", "vendor", "node_modules", "build"} {
		writeSource(t, filepath.Join(root, dir, "lib.asm"), "hidden:")
	}
	writeSource(t, filepath.Join(root, "src", "main.asm"), "visible:")

	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))

	labels, err := e.Query().Labels("")
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, labels)
}

func TestIndexDirectory_HonoursGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("generated/\n*.gen.asm\n"), 0644))
	writeSource(t, filepath.Join(root, "main.asm"), "kept:")
	writeSource(t, filepath.Join(root, "tables.gen.asm"), "ignored_file:")
	writeSource(t, filepath.Join(root, "generated", "x.asm"), "ignored_dir:")

	e := newTestEngine(t)
	paths, err := e.walkListFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "main.asm")}, paths)
}

func TestIndexDirectory_PrunesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.asm")
	gone := filepath.Join(root, "gone.asm")
	writeSource(t, keep, "kept:")
	writeSource(t, gone, "removed:")

	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))
	require.NoError(t, os.Remove(gone))
	require.NoError(t, e.IndexDirectory(context.Background(), root))

	labels, err := e.Query().Labels("")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, labels)
}

// =============================================================================
// In-memory views
// =============================================================================

func TestGraph_IDsMatchStore(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	g, err := e.Graph(context.Background())
	require.NoError(t, err)

	ids, err := g.GetLabelDefLinenumbers("main.L1")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	locs, err := e.Query().Definitions("main.L1")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, LineID(locs[0].LineID), ids[0])
	assert.Equal(t, 1, g.GetLineNumber(ids[0]))
	assert.Equal(t, path, g.GetFilename(ids[0]))

	uses, err := g.GetLabelUsages("main.helper", "helper")
	require.NoError(t, err)
	assert.Len(t, uses, 1)
}

func TestDescriber_ReadsLineTextFromDisk(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	d, err := e.Describer(context.Background())
	require.NoError(t, err)

	text, err := d.DescribeDefinitions(context.Background(), "helper")
	require.NoError(t, err)
	assert.Equal(t, "Defined at LINE 8 (main.asm) :helper PROC", text)
}

func TestRunScript(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.asm")
	writeSource(t, path, masmProgram...)
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	got, err := e.RunScript(context.Background(), `undefined()`)
	require.NoError(t, err)
	assert.Equal(t, []any{"helper.missing"}, got)

	got, err = e.RunScript(context.Background(), `describe_defs("main")`)
	require.NoError(t, err)
	assert.Equal(t, "Defined at LINE 1 (main.asm) :main PROC", got)

	_, err = e.RunNamedScript(context.Background(), "redefs")
	require.Error(t, err, "no scripts FS configured")
}
