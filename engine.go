package labelgraph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/labelgraph/internal/runtime"
	"github.com/jward/labelgraph/internal/scanner"
	"github.com/jward/labelgraph/internal/store"
)

// Engine maintains a persistent label index for a source tree: file
// discovery, change detection, scanning and query access.
type Engine struct {
	store   *store.Store
	dialect Dialect
	sc      *scanner.Scanner
	logger  *log.Logger
	files   *CachedFileService

	scanOpts   []scanner.Option
	extensions map[string]bool // extension -> counts as a main file

	// affected accumulates the IDs of files whose usages may point at
	// definitions that changed during indexing.
	affected map[int64]bool

	// scriptsFS holds named query scripts under queries/.
	scriptsFS fs.FS

	// useParallel enables the parallel scanning pipeline.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndexDialect sets the assembler dialect the index is built for.
// Changing it for an existing database forces a full reindex.
func WithIndexDialect(d Dialect) Option {
	return func(e *Engine) {
		e.dialect = d
	}
}

// WithParallel controls parallel scanning. When true (default), IndexFiles
// uses a worker pool for reading and scanning, with a single writer
// committing batches to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIndexKeywords adds user-defined keywords to the scanner, the same way
// WithUserKeywords does for a Workspace.
func WithIndexKeywords(group int, words ...string) Option {
	return func(e *Engine) {
		e.scanOpts = append(e.scanOpts, scanner.WithUserKeywords(group, words...))
	}
}

// WithExtensions replaces the set of indexed file extensions. The value says
// whether files with that extension are main files; include-only files
// (false) are indexed without line text in descriptions.
func WithExtensions(exts map[string]bool) Option {
	return func(e *Engine) {
		e.extensions = make(map[string]bool, len(exts))
		for ext, main := range exts {
			e.extensions[strings.ToLower(ext)] = main
		}
	}
}

// WithScriptsFS configures where RunNamedScript finds query scripts. This
// enables embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// DefaultExtensions are the file extensions indexed unless WithExtensions
// says otherwise.
var DefaultExtensions = map[string]bool{
	".asm":  true,
	".s":    true,
	".nasm": true,
	".inc":  false,
	".mac":  false,
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("labelgraph: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("labelgraph: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		dialect:     MASM,
		useParallel: true, // default to parallel scanning
		extensions:  DefaultExtensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = discardLogger()
	}
	e.sc = scanner.New(e.dialect, e.scanOpts...)
	e.files = NewCachedFileService(e.logger)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Dialect returns the dialect the Engine scans with.
func (e *Engine) Dialect() Dialect { return e.dialect }

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

const dialectKey = "dialect"

// DialectChanged reports whether the database was built for a different
// dialect than the Engine's. A database without a stored dialect has not
// been indexed yet and reports false.
func (e *Engine) DialectChanged() bool {
	stored, err := e.store.GetMetadata(dialectKey)
	if err != nil || stored == "" {
		return false
	}
	return stored != e.dialect.String()
}

// Reset deletes every indexed file.
func (e *Engine) Reset() error {
	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("labelgraph: reset: %w", err)
	}
	for _, f := range files {
		if err := e.store.DeleteFile(f.ID); err != nil {
			return fmt.Errorf("labelgraph: reset %s: %w", f.Path, err)
		}
	}
	e.affected = nil
	return nil
}

// checkDialect wipes the index when it was built for another dialect and
// records the Engine's dialect.
func (e *Engine) checkDialect() error {
	if e.DialectChanged() {
		stored, _ := e.store.GetMetadata(dialectKey)
		e.logger.Printf("warning: index was built for %s, reindexing for %s", stored, e.dialect)
		if err := e.Reset(); err != nil {
			return err
		}
	}
	return e.store.SetMetadata(dialectKey, e.dialect.String())
}

// isSource reports whether path has an indexed extension, and whether it is
// a main file.
func (e *Engine) isSource(path string) (main, ok bool) {
	main, ok = e.extensions[strings.ToLower(filepath.Ext(path))]
	return main, ok
}

// IndexFiles indexes the given file paths. When WithParallel is enabled,
// uses a worker pool for concurrent scanning with batched SQLite writes.
// Otherwise falls back to the serial path.
//
// For each file:
// 1. Skip unsupported extensions
// 2. Skip unchanged files (same content hash)
// 3. Capture the labels the old version defined
// 4. Delete stale data, insert the file record
// 5. Scan every line and store the lines carrying labels
// 6. Compare defined labels and record affected files
//
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	if err := e.checkDialect(); err != nil {
		return err
	}
	if e.affected == nil {
		e.affected = make(map[int64]bool)
	}
	if e.useParallel {
		return e.IndexFilesParallel(ctx, paths)
	}
	return e.indexFilesSerial(ctx, paths)
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(path); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFile(path string) error {
	item, skip, err := e.prepareFile(path)
	if err != nil || skip {
		return err
	}
	if err := e.scanFile(e.store, item); err != nil {
		return err
	}
	names, err := e.store.DefinedNames(item.fileID)
	if err != nil {
		return err
	}
	return e.finishFile(item, names)
}

// scanFile scans item's content top to bottom and writes every line that
// defines or uses a label to ds.
func (e *Engine) scanFile(ds store.DataStore, item workItem) error {
	tracker := scanner.NewTracker(e.sc)
	tracker.Reset(SplitLines(string(item.content)))
	for i := 0; i < tracker.Len(); i++ {
		defs, uses := qualifyTokens(tracker.Result(i).Tokens, e.dialect)
		if len(defs) == 0 && len(uses) == 0 {
			continue
		}
		lineID, err := ds.InsertLine(&store.Line{FileID: item.fileID, LineNumber: i, IsMain: item.isMain})
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		for _, name := range defs {
			if _, err := ds.InsertLabelDef(&store.LabelDef{LineID: lineID, Name: name}); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		for _, ref := range uses {
			if _, err := ds.InsertLabelUsage(&store.LabelUsage{LineID: lineID, Name: ref.Qualified, Bare: ref.Bare}); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
	}
	return nil
}

// finishFile stores the hashes of a committed file and, when its
// definitions changed, marks the files using the changed labels as affected.
func (e *Engine) finishFile(item workItem, names []string) error {
	hash := store.ComputeDefinitionHash(names)
	if err := e.store.UpdateFileHashes(item.fileID, item.hash, hash); err != nil {
		return err
	}
	e.affected[item.fileID] = true
	if hash == item.oldDefHash {
		return nil
	}
	changed := store.ChangedNames(item.oldDefs, names)
	ids, err := e.store.FilesUsingLabels(changed)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.affected[id] = true
	}
	return nil
}

// prepareFile does the serial work for a single file: hash check, cleanup,
// file record. Returns (item, skip, error). skip=true means the file is
// unchanged or unsupported.
func (e *Engine) prepareFile(path string) (workItem, bool, error) {
	isMain, ok := e.isSource(path)
	if !ok {
		return workItem{}, true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return workItem{}, true, nil // unchanged
	}

	item := workItem{path: path, isMain: isMain, content: content, hash: hash}

	// Capture old definitions before deletion and clean up.
	if existing != nil {
		item.oldDefHash = existing.DefHash
		item.oldDefs, err = e.store.DefinedNames(existing.ID)
		if err != nil {
			return workItem{}, false, fmt.Errorf("capture old labels: %w", err)
		}
		if err := e.store.DeleteFile(existing.ID); err != nil {
			return workItem{}, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	lineCount := bytes.Count(content, []byte{'\n'}) + 1
	// The content hash is stored by finishFile.
	item.fileID, err = e.store.InsertFile(&store.File{
		Path:        path,
		IsMain:      isMain,
		LineCount:   lineCount,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return workItem{}, false, fmt.Errorf("insert file: %w", err)
	}
	e.files.Invalidate(path)
	return item, false, nil
}

// RemoveFiles drops the given paths from the index. Paths that were never
// indexed are ignored. Files using labels the removed files defined are
// marked affected.
func (e *Engine) RemoveFiles(paths []string) error {
	if e.affected == nil {
		e.affected = make(map[int64]bool)
	}
	for _, path := range paths {
		f, err := e.store.FileByPath(path)
		if err != nil {
			return fmt.Errorf("labelgraph: remove %s: %w", path, err)
		}
		if f == nil {
			continue
		}
		names, err := e.store.DefinedNames(f.ID)
		if err != nil {
			return fmt.Errorf("labelgraph: remove %s: %w", path, err)
		}
		if err := e.store.DeleteFile(f.ID); err != nil {
			return fmt.Errorf("labelgraph: remove %s: %w", path, err)
		}
		e.files.Invalidate(path)
		ids, err := e.store.FilesUsingLabels(names)
		if err != nil {
			return fmt.Errorf("labelgraph: remove %s: %w", path, err)
		}
		for _, id := range ids {
			e.affected[id] = true
		}
	}
	return nil
}

// Affected returns the paths of files touched by indexing since the last
// call, including files that use labels whose definitions changed, and
// resets the set.
func (e *Engine) Affected() ([]string, error) {
	ids := make([]int64, 0, len(e.affected))
	for id := range e.affected {
		ids = append(ids, id)
	}
	e.affected = nil
	paths, err := e.store.FilePaths(ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// skipDirs are directories excluded from the filesystem walk.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
}

// IndexDirectory indexes every source file under root and forgets indexed
// files under root that no longer exist. Inside a git repository it uses
// git ls-files; otherwise it walks the filesystem honouring root/.gitignore.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	paths, err := e.ListFiles(root)
	if err != nil {
		return err
	}
	if err := e.IndexFiles(ctx, paths); err != nil {
		return err
	}
	return e.prune(root, paths)
}

// ListFiles returns the source files IndexDirectory would index under root.
func (e *Engine) ListFiles(root string) ([]string, error) {
	paths, err := e.gitListFiles(root)
	if err != nil {
		// Not a git repo or git not available; fall back to walk.
		return e.walkListFiles(root)
	}
	return paths, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root, filtered to source extensions.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := e.isSource(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a fallback
// when git is not available. Skips hidden directories, skipDirs and anything
// matched by root/.gitignore.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	ign, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		ign = ignore.CompileIgnoreLines()
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name] || ign.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if ign.MatchesPath(rel) {
			return nil
		}
		if _, ok := e.isSource(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// prune removes indexed files under root that are not in present.
func (e *Engine) prune(root string, present []string) error {
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		keep[p] = true
	}
	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("labelgraph: prune: %w", err)
	}
	var gone []string
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if !keep[f.Path] {
			gone = append(gone, f.Path)
		}
	}
	return e.RemoveFiles(gone)
}

// =============================================================================
// In-memory views
// =============================================================================

// Graph loads the whole index into a new in-memory Graph. Line and file ids
// are the database ids, so they match the LineID values of Location results.
func (e *Engine) Graph(ctx context.Context) (*Graph, error) {
	g := NewGraph(WithDialect(e.dialect), WithLineScanner(dialectScanner{sc: e.sc}), WithGraphLogger(e.logger))
	files, err := e.store.Files()
	if err != nil {
		return nil, fmt.Errorf("labelgraph: load graph: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.loadFile(g, f); err != nil {
			return nil, fmt.Errorf("labelgraph: load %s: %w", f.Path, err)
		}
	}
	return g, nil
}

func (e *Engine) loadFile(g *Graph, f *store.File) error {
	fileID := FileID(f.ID)
	g.RestoreFile(fileID, f.Path)

	lines, err := e.store.LinesByFile(f.ID)
	if err != nil {
		return err
	}
	defs, err := e.store.LabelDefsByFile(f.ID)
	if err != nil {
		return err
	}
	uses, err := e.store.LabelUsagesByFile(f.ID)
	if err != nil {
		return err
	}
	defsByLine := make(map[int64][]string, len(lines))
	for _, d := range defs {
		defsByLine[d.LineID] = append(defsByLine[d.LineID], d.Name)
	}
	usesByLine := make(map[int64][]LabelRef, len(lines))
	for _, u := range uses {
		usesByLine[u.LineID] = append(usesByLine[u.LineID], LabelRef{Qualified: u.Name, Bare: u.Bare})
	}
	for _, l := range lines {
		g.RestoreLine(LineEntry{
			ID:             LineID(l.ID),
			FileID:         fileID,
			LineNumber:     l.LineNumber,
			IsFromMainFile: l.IsMain,
		}, defsByLine[l.ID], usesByLine[l.ID])
	}
	return nil
}

// diskSource reads description line text from the indexed files on disk.
type diskSource struct {
	graph *Graph
	files FileService
}

func (s diskSource) LineText(entry LineEntry) (string, bool) {
	path, ok := s.graph.Filename(entry.FileID)
	if !ok {
		return "", false
	}
	lines, err := s.files.ReadLines(path)
	if err != nil || entry.LineNumber >= len(lines) {
		return "", false
	}
	return lines[entry.LineNumber], true
}

// Describer loads the index and returns a Describer over it that reads line
// text from disk.
func (e *Engine) Describer(ctx context.Context) (*Describer, error) {
	g, err := e.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return NewDescriber(g, diskSource{graph: g, files: e.files}, e.logger), nil
}

// RunScript evaluates a Risor query script against the index and returns the
// script's result value. Scripts may import modules from the scripts FS.
func (e *Engine) RunScript(ctx context.Context, source string) (any, error) {
	rt, err := e.newRuntime(ctx)
	if err != nil {
		return nil, err
	}
	return rt.EvalSource(ctx, source, nil)
}

// RunNamedScript runs queries/<name>.risor from the scripts FS.
func (e *Engine) RunNamedScript(ctx context.Context, name string) (any, error) {
	if e.scriptsFS == nil {
		return nil, fmt.Errorf("labelgraph: no scripts configured")
	}
	rt, err := e.newRuntime(ctx)
	if err != nil {
		return nil, err
	}
	src, err := rt.LoadScript(runtime.QueryScriptPath(name))
	if err != nil {
		return nil, fmt.Errorf("labelgraph: %w", err)
	}
	return rt.EvalSource(ctx, src, nil)
}

// ScriptSource returns the source of the named script.
func (e *Engine) ScriptSource(name string) (string, error) {
	if e.scriptsFS == nil {
		return "", fmt.Errorf("labelgraph: no scripts configured")
	}
	b, err := fs.ReadFile(e.scriptsFS, filepath.ToSlash(runtime.QueryScriptPath(name)))
	if err != nil {
		return "", fmt.Errorf("labelgraph: %w", err)
	}
	return string(b), nil
}

// ScriptNames lists the named scripts available to RunNamedScript, sorted.
func (e *Engine) ScriptNames() ([]string, error) {
	if e.scriptsFS == nil {
		return nil, nil
	}
	matches, err := fs.Glob(e.scriptsFS, "queries/*.risor")
	if err != nil {
		return nil, fmt.Errorf("labelgraph: list scripts: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".risor"))
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) newRuntime(ctx context.Context) (*runtime.Runtime, error) {
	d, err := e.Describer(ctx)
	if err != nil {
		return nil, err
	}
	opts := []runtime.RuntimeOption{runtime.WithDescriber(d), runtime.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		opts = append(opts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	return runtime.NewRuntime(e.store, "", opts...), nil
}
