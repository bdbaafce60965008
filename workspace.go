package labelgraph

import (
	"log"
	"slices"
	"sync"

	"github.com/jward/labelgraph/internal/scanner"
)

// DefaultMaxLines is the combined document and include size above which
// label analysis is switched off.
const DefaultMaxLines = 20000

// Workspace holds the open documents of an editing session. Every document
// owns its own Graph; closing the document discards it.
type Workspace struct {
	mu       sync.Mutex
	dialect  Dialect
	maxLines int
	enabled  bool
	files    FileService
	logger   *log.Logger
	scanOpts []scanner.Option
	docs     map[string]*Document
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithWorkspaceDialect sets the dialect of every document. The default is
// MASM.
func WithWorkspaceDialect(d Dialect) WorkspaceOption {
	return func(w *Workspace) { w.dialect = d }
}

// WithMaxLines sets the line limit above which analysis is disabled. Zero
// means no limit.
func WithMaxLines(n int) WorkspaceOption {
	return func(w *Workspace) { w.maxLines = n }
}

// WithAnalysis sets whether label analysis starts enabled.
func WithAnalysis(enabled bool) WorkspaceOption {
	return func(w *Workspace) { w.enabled = enabled }
}

// WithFileService sets how included files are read. The default reads
// from disk through a CachedFileService.
func WithFileService(fs FileService) WorkspaceOption {
	return func(w *Workspace) { w.files = fs }
}

// WithWorkspaceLogger sets the logger for warnings.
func WithWorkspaceLogger(l *log.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = l }
}

// WithUserKeywords registers words tagged as user keyword group 1..3.
func WithUserKeywords(group int, words ...string) WorkspaceOption {
	return func(w *Workspace) {
		w.scanOpts = append(w.scanOpts, scanner.WithUserKeywords(group, words...))
	}
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		dialect:  MASM,
		maxLines: DefaultMaxLines,
		enabled:  true,
		docs:     make(map[string]*Document),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = discardLogger()
	}
	if w.files == nil {
		w.files = NewCachedFileService(w.logger)
	}
	return w
}

// Dialect returns the dialect documents are scanned with.
func (w *Workspace) Dialect() Dialect { return w.dialect }

// OpenDocument indexes text as the main file path and its includes. An
// already open document with the same path is replaced.
func (w *Workspace) OpenDocument(path, text string) *Document {
	d := newDocument(w, path, text)
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.docs[path]; ok {
		old.close()
	}
	w.docs[path] = d
	return d
}

// Document returns the open document for path.
func (w *Workspace) Document(path string) (*Document, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[path]
	return d, ok
}

// CloseDocument discards the document and its graph.
func (w *Workspace) CloseDocument(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[path]
	if !ok {
		return ErrNotFound
	}
	d.close()
	delete(w.docs, path)
	return nil
}

// Paths returns the paths of all open documents, sorted.
func (w *Workspace) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.docs))
	for p := range w.docs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
