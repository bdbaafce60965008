package labelgraph

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/jward/labelgraph/internal/scanner"
)

// Position is a 0-based line and UTF-16 character offset.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span of text between two positions.
type Range struct {
	Start Position
	End   Position
}

type docFile struct {
	id      FileID
	path    string
	isMain  bool
	tracker *scanner.Tracker
}

// Document is an open source file together with the files it includes. It
// owns the Graph indexing them and keeps it current as the editor reports
// changes through OnLineChanged, OnLinesInserted, OnLinesRemoved and
// ApplyChange.
//
// Edits must come from one goroutine at a time. Queries may run
// concurrently with edits.
type Document struct {
	mu        sync.RWMutex
	path      string
	graph     *Graph
	describer *Describer
	sc        *scanner.Scanner
	files     FileService
	logger    *log.Logger
	maxLines  int
	analysis  bool
	oversized bool

	main     *docFile
	includes map[string]*docFile
}

func newDocument(w *Workspace, path, text string) *Document {
	sc := scanner.New(w.dialect, w.scanOpts...)
	d := &Document{
		path:     path,
		sc:       sc,
		files:    w.files,
		logger:   w.logger,
		maxLines: w.maxLines,
		analysis: w.enabled,
		includes: make(map[string]*docFile),
	}
	d.graph = NewGraph(
		WithDialect(w.dialect),
		WithLineScanner(dialectScanner{sc: sc}),
		WithGraphLogger(w.logger),
		WithEnabled(w.enabled),
	)
	d.describer = NewDescriber(d.graph, d, w.logger)
	d.main = &docFile{
		id:      d.graph.RegisterFile(path),
		path:    path,
		isMain:  true,
		tracker: scanner.NewTracker(sc),
	}
	d.main.tracker.Reset(SplitLines(text))
	d.reindex()
	return d
}

// Path returns the path of the main file.
func (d *Document) Path() string { return d.path }

// Graph returns the label graph owned by the document.
func (d *Document) Graph() *Graph { return d.graph }

// Describer returns a Describer reading line text from the document.
func (d *Document) Describer() *Describer { return d.describer }

// MainFile returns the FileID of the main file.
func (d *Document) MainFile() FileID { return d.main.id }

// Text returns the current text of the main file.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.Join(d.main.tracker.Lines(), "\n")
}

// LineCount returns the number of lines of the main file.
func (d *Document) LineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.main.tracker.Len()
}

// Includes returns the paths of all included files, sorted.
func (d *Document) Includes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.includes))
	for p := range d.includes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// LineText returns the current text of a tracked line.
func (d *Document) LineText(entry LineEntry) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f := d.fileByID(entry.FileID)
	if f == nil || entry.LineNumber < 0 || entry.LineNumber >= f.tracker.Len() {
		return "", false
	}
	return f.tracker.Line(entry.LineNumber), true
}

// SetEnabled turns label analysis on or off for this document. A document
// over the line limit stays disabled.
func (d *Document) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analysis = enabled
	if !d.oversized {
		d.graph.SetEnabled(enabled)
	}
}

// =============================================================================
// Edits
// =============================================================================

// SetText replaces the whole main file.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.main.tracker.Reset(SplitLines(text))
	d.reindex()
}

// OnLineChanged replaces the text of one line.
func (d *Document) OnLineChanged(line int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if line < 0 || line >= d.main.tracker.Len() {
		return d.rangeError(line)
	}
	d.changeLine(line, text)
	return nil
}

// OnLinesInserted inserts lines before line at. at may equal the line count
// to append.
func (d *Document) OnLinesInserted(at int, lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if at < 0 || at > d.main.tracker.Len() {
		return d.rangeError(at)
	}
	d.insertLines(at, lines)
	return nil
}

// OnLinesRemoved deletes count lines starting at line at.
func (d *Document) OnLinesRemoved(at, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if at < 0 || count < 0 || at+count > d.main.tracker.Len() {
		return d.rangeError(at + count)
	}
	d.removeLines(at, count)
	return nil
}

// ApplyChange replaces the text in r with text, as sent by an editor for
// incremental synchronization.
func (d *Document) ApplyChange(r Range, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tr := d.main.tracker
	if r.Start.Line < 0 || r.Start.Line >= tr.Len() {
		return d.rangeError(r.Start.Line)
	}
	if r.End.Line >= tr.Len() {
		r.End = Position{Line: tr.Len() - 1, Character: utf16Len(tr.Line(tr.Len() - 1))}
	}
	if r.End.Line < r.Start.Line {
		return fmt.Errorf("labelgraph: change range ends before it starts (%d < %d)", r.End.Line, r.Start.Line)
	}

	first, last := tr.Line(r.Start.Line), tr.Line(r.End.Line)
	merged := first[:byteOffset(first, r.Start.Character)] + text + last[byteOffset(last, r.End.Character):]
	newLines := SplitLines(merged)
	count := r.End.Line - r.Start.Line + 1

	common := min(count, len(newLines))
	for i := 0; i < common; i++ {
		if tr.Line(r.Start.Line+i) != newLines[i] {
			d.changeLine(r.Start.Line+i, newLines[i])
		}
	}
	switch {
	case len(newLines) > count:
		d.insertLines(r.Start.Line+count, newLines[count:])
	case len(newLines) < count:
		d.removeLines(r.Start.Line+common, count-common)
	}
	return nil
}

func (d *Document) changeLine(line int, text string) {
	tr := d.main.tracker
	touched := hasInclude(tr.Result(line))
	changed := tr.SetLine(line, text)
	touched = touched || hasInclude(tr.Result(line))
	d.afterEdit(changed, touched)
}

func (d *Document) insertLines(at int, lines []string) {
	if len(lines) == 0 {
		return
	}
	d.graph.ShiftLines(d.main.id, at, len(lines))
	changed := d.main.tracker.Insert(at, lines)
	touched := false
	for i := at; i < at+len(lines); i++ {
		touched = touched || hasInclude(d.main.tracker.Result(i))
	}
	d.afterEdit(changed, touched)
}

func (d *Document) removeLines(at, count int) {
	if count == 0 {
		return
	}
	touched := false
	for i := at; i < at+count; i++ {
		touched = touched || hasInclude(d.main.tracker.Result(i))
		if id, ok := d.graph.LineAt(d.main.id, i); ok {
			d.graph.RemoveLine(id)
		}
	}
	d.graph.ShiftLines(d.main.id, at+count, -count)
	changed := d.main.tracker.Remove(at, count)
	d.afterEdit(changed, touched)
}

// afterEdit reindexes the changed lines of the main file. Edits that touch
// include directives also reload the include set.
func (d *Document) afterEdit(changed []int, includesTouched bool) {
	wasOversized := d.oversized
	var added []*docFile
	if includesTouched {
		added = d.syncIncludes()
	}
	if d.applySizeLimit() {
		return
	}
	if wasOversized {
		d.indexAll()
		return
	}
	for _, i := range changed {
		d.graph.UpdateTokens(d.main.id, i, true, d.main.tracker.Result(i).Tokens)
	}
	for _, f := range added {
		d.indexFile(f)
	}
}

func (d *Document) reindex() {
	d.graph.Clear()
	d.syncIncludes()
	if d.applySizeLimit() {
		return
	}
	d.indexAll()
}

func (d *Document) indexAll() {
	d.indexFile(d.main)
	for _, f := range d.includes {
		d.indexFile(f)
	}
}

func (d *Document) indexFile(f *docFile) {
	for i := 0; i < f.tracker.Len(); i++ {
		d.graph.UpdateTokens(f.id, i, f.isMain, f.tracker.Result(i).Tokens)
	}
}

// applySizeLimit disables the graph while the document and its includes
// hold more than maxLines lines. It reports whether the document is over
// the limit.
func (d *Document) applySizeLimit() bool {
	total := d.main.tracker.Len()
	for _, f := range d.includes {
		total += f.tracker.Len()
	}
	over := d.maxLines > 0 && total > d.maxLines
	if over == d.oversized {
		return over
	}
	d.oversized = over
	if over {
		d.logger.Printf("warning: %s has %d lines including includes (limit %d); label analysis disabled", d.path, total, d.maxLines)
		d.graph.Clear()
		d.graph.SetEnabled(false)
	} else {
		d.graph.SetEnabled(d.analysis)
	}
	return over
}

// syncIncludes loads every file reachable through include directives and
// forgets files no longer reachable. It returns the newly loaded files.
func (d *Document) syncIncludes() []*docFile {
	var added []*docFile
	reachable := map[string]bool{}
	var visit func(f *docFile)
	visit = func(f *docFile) {
		for i := 0; i < f.tracker.Len(); i++ {
			for _, tok := range f.tracker.Result(i).Tokens {
				if tok.Kind != Include {
					continue
				}
				path := resolveInclude(f.path, tok.Text)
				if path == d.main.path || reachable[path] {
					continue
				}
				reachable[path] = true
				inc, ok := d.includes[path]
				if !ok {
					lines, err := d.files.ReadLines(path)
					if err != nil {
						d.logger.Printf("warning: %s:%d: %v", f.path, i+1, err)
						continue
					}
					inc = &docFile{
						id:      d.graph.RegisterFile(path),
						path:    path,
						tracker: scanner.NewTracker(d.sc),
					}
					inc.tracker.Reset(lines)
					d.includes[path] = inc
					added = append(added, inc)
				}
				visit(inc)
			}
		}
	}
	visit(d.main)
	for path, f := range d.includes {
		if !reachable[path] {
			d.graph.RemoveFile(f.id)
			delete(d.includes, path)
		}
	}
	return added
}

func (d *Document) close() {
	for _, f := range d.includes {
		d.graph.RemoveFile(f.id)
	}
	d.graph.RemoveFile(d.main.id)
}

func (d *Document) fileByID(id FileID) *docFile {
	if id == d.main.id {
		return d.main
	}
	for _, f := range d.includes {
		if f.id == id {
			return f
		}
	}
	return nil
}

func (d *Document) rangeError(line int) error {
	return fmt.Errorf("labelgraph: line %d out of range for %s (%d lines)", line, d.path, d.main.tracker.Len())
}

func resolveInclude(from, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(filepath.Dir(from), name)
}

func hasInclude(r scanner.Result) bool {
	for _, t := range r.Tokens {
		if t.Kind == Include {
			return true
		}
	}
	return false
}

// =============================================================================
// Queries
// =============================================================================

// ScanResult returns the scan result of a main-file line.
func (d *Document) ScanResult(line int) (scanner.Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if line < 0 || line >= d.main.tracker.Len() {
		return scanner.Result{}, false
	}
	return d.main.tracker.Result(line), true
}

// TagAt returns the classified word under pos.
func (d *Document) TagAt(pos Position) (scanner.Tag, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tr := d.main.tracker
	if pos.Line < 0 || pos.Line >= tr.Len() {
		return scanner.Tag{}, false
	}
	col := byteOffset(tr.Line(pos.Line), pos.Character)
	return tr.Result(pos.Line).TagAt(col)
}

// LabelAt returns the label under pos, qualified with the scope it was
// found in.
func (d *Document) LabelAt(pos Position) (LabelRef, scanner.TagKind, bool) {
	tag, ok := d.TagAt(pos)
	if !ok || (tag.Kind != scanner.Label && tag.Kind != scanner.LabelDef) {
		return LabelRef{}, tag.Kind, false
	}
	return LabelRef{Qualified: QualifyLabel(tag.Prefix, tag.Label, d.graph.Dialect()), Bare: tag.Label}, tag.Kind, true
}

// Definitions returns the lines defining the label under pos. A label with
// no qualified definition is retried under its bare name.
func (d *Document) Definitions(ctx context.Context, pos Position) ([]LineEntry, error) {
	ref, _, ok := d.LabelAt(pos)
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := d.graph.GetLabelDefLinenumbers(ref.Qualified)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 && ref.Bare != ref.Qualified {
		if ids, err = d.graph.GetLabelDefLinenumbers(ref.Bare); err != nil {
			return nil, err
		}
	}
	return d.entries(ids), nil
}

// References returns the lines using the label under pos.
func (d *Document) References(ctx context.Context, pos Position) ([]LineEntry, error) {
	ref, _, ok := d.LabelAt(pos)
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := d.graph.GetLabelUsages(ref.Qualified, ref.Bare)
	if err != nil {
		return nil, err
	}
	return d.entries(ids), nil
}

func (d *Document) entries(ids []LineID) []LineEntry {
	out := make([]LineEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := d.graph.Line(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// byteOffset converts a UTF-16 character offset into a byte offset in s,
// clamped to len(s).
func byteOffset(s string, char int) int {
	units := 0
	for i, r := range s {
		if units >= char {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(s)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
