package labelgraph

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/jward/labelgraph/internal/scanner"
)

// LineScanner turns one line of source text into label tokens.
type LineScanner interface {
	ScanLine(fileID FileID, lineNumber int, text string) []Token
}

// dialectScanner scans each line on its own, with no enclosing scope.
// Documents carry scope across lines and call UpdateTokens instead.
type dialectScanner struct {
	sc *scanner.Scanner
}

func (d dialectScanner) ScanLine(_ FileID, _ int, text string) []Token {
	return d.sc.ScanLine(text, "").Tokens
}

type lineRecord struct {
	entry LineEntry
	defs  []string
	uses  []LabelRef
}

type lineKey struct {
	file FileID
	line int
}

type idSet map[LineID]struct{}

func (s idSet) sorted() []LineID {
	ids := make([]LineID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Graph is the label cross-reference index of one document and the files it
// includes. It maps qualified label names to the lines defining and using
// them.
//
// A Graph supports one writer and any number of concurrent readers. Every
// write retracts and reinserts a line's records under one lock, so readers
// never observe a partially updated line.
type Graph struct {
	mu          sync.RWMutex
	dialect     Dialect
	lineScanner LineScanner
	logger      *log.Logger
	enabled     bool

	nextLine LineID
	nextFile FileID

	lines      map[LineID]*lineRecord
	byLoc      map[lineKey]LineID
	fileLines  map[FileID]idSet
	files      map[FileID]string
	fileByPath map[string]FileID

	defs       map[string]idSet
	usages     map[string]idSet
	bareUsages map[string]idSet
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithDialect sets the assembler dialect used for qualification and for the
// default line scanner. The default is MASM.
func WithDialect(d Dialect) GraphOption {
	return func(g *Graph) { g.dialect = d }
}

// WithLineScanner replaces the scanner used by AddOrUpdateLine.
func WithLineScanner(ls LineScanner) GraphOption {
	return func(g *Graph) { g.lineScanner = ls }
}

// WithGraphLogger sets the logger for warnings. The default discards output.
func WithGraphLogger(l *log.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// WithEnabled sets the initial analysis state. Graphs start enabled.
func WithEnabled(enabled bool) GraphOption {
	return func(g *Graph) { g.enabled = enabled }
}

// NewGraph returns an empty, enabled Graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		dialect: MASM,
		enabled: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.lineScanner == nil {
		g.lineScanner = dialectScanner{sc: scanner.New(g.dialect)}
	}
	if g.logger == nil {
		g.logger = discardLogger()
	}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.lines = make(map[LineID]*lineRecord)
	g.byLoc = make(map[lineKey]LineID)
	g.fileLines = make(map[FileID]idSet)
	g.defs = make(map[string]idSet)
	g.usages = make(map[string]idSet)
	g.bareUsages = make(map[string]idSet)
	if g.files == nil {
		g.files = make(map[FileID]string)
		g.fileByPath = make(map[string]FileID)
	}
}

// Dialect returns the dialect the graph qualifies names with.
func (g *Graph) Dialect() Dialect { return g.dialect }

// Enabled reports whether label analysis is on.
func (g *Graph) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// SetEnabled switches label analysis on or off. Indexed data is kept; while
// disabled every query returns ErrDisabled.
func (g *Graph) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Clear drops every tracked line. Registered files and the id counters are
// kept so ids are never reissued.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Len returns the number of tracked lines.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.lines)
}

// =============================================================================
// Files
// =============================================================================

// RegisterFile returns the FileID for path, allocating one on first use.
func (g *Graph) RegisterFile(path string) FileID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.fileByPath[path]; ok {
		return id
	}
	g.nextFile++
	id := g.nextFile
	g.files[id] = path
	g.fileByPath[path] = id
	return id
}

// RestoreFile registers path under a known id, as read back from storage.
func (g *Graph) RestoreFile(id FileID, path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[id] = path
	g.fileByPath[path] = id
	if id > g.nextFile {
		g.nextFile = id
	}
}

// FileByPath returns the id registered for path.
func (g *Graph) FileByPath(path string) (FileID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.fileByPath[path]
	return id, ok
}

// Filename returns the path registered for fileID.
func (g *Graph) Filename(fileID FileID) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	path, ok := g.files[fileID]
	return path, ok
}

// =============================================================================
// Updates
// =============================================================================

// AddOrUpdateLine scans text and replaces the records of the line at
// (fileID, lineNumber). It returns the line's id, or NoLine when the line no
// longer defines or uses any label. Rescanning an unchanged line keeps its
// id and leaves the index as it was.
func (g *Graph) AddOrUpdateLine(text string, fileID FileID, lineNumber int, isFromMainFile bool) LineID {
	tokens := g.lineScanner.ScanLine(fileID, lineNumber, text)
	return g.UpdateTokens(fileID, lineNumber, isFromMainFile, tokens)
}

// UpdateTokens is AddOrUpdateLine for tokens that were scanned elsewhere.
func (g *Graph) UpdateTokens(fileID FileID, lineNumber int, isFromMainFile bool, tokens []Token) LineID {
	defs, uses := qualifyTokens(tokens, g.dialect)

	g.mu.Lock()
	defer g.mu.Unlock()

	key := lineKey{file: fileID, line: lineNumber}
	id, exists := g.byLoc[key]
	if len(defs) == 0 && len(uses) == 0 {
		if exists {
			g.dropLine(id)
		}
		return NoLine
	}

	var rec *lineRecord
	if exists {
		rec = g.lines[id]
		g.retract(rec)
	} else {
		g.nextLine++
		id = g.nextLine
		rec = &lineRecord{entry: LineEntry{ID: id, FileID: fileID, LineNumber: lineNumber}}
		g.lines[id] = rec
		g.byLoc[key] = id
		g.fileSet(fileID)[id] = struct{}{}
	}
	rec.entry.IsFromMainFile = isFromMainFile
	rec.defs = defs
	rec.uses = uses
	g.insert(rec)
	return id
}

// RestoreLine inserts a line with a known id and qualified names, as read
// back from storage. An existing line at the same location is replaced.
func (g *Graph) RestoreLine(entry LineEntry, defs []string, uses []LabelRef) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := lineKey{file: entry.FileID, line: entry.LineNumber}
	if old, ok := g.byLoc[key]; ok {
		g.dropLine(old)
	}
	if old, ok := g.lines[entry.ID]; ok {
		g.dropLine(old.entry.ID)
	}
	rec := &lineRecord{entry: entry, defs: slices.Clone(defs), uses: slices.Clone(uses)}
	g.lines[entry.ID] = rec
	g.byLoc[key] = entry.ID
	g.fileSet(entry.FileID)[entry.ID] = struct{}{}
	g.insert(rec)
	if entry.ID > g.nextLine {
		g.nextLine = entry.ID
	}
}

// RemoveLine retracts every record of line id. Unknown ids are ignored.
func (g *Graph) RemoveLine(id LineID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.lines[id]; ok {
		g.dropLine(id)
	}
}

// RemoveFile retracts every line of fileID and forgets the file.
func (g *Graph) RemoveFile(fileID FileID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.fileLines[fileID] {
		g.dropLine(id)
	}
	delete(g.fileLines, fileID)
	if path, ok := g.files[fileID]; ok {
		delete(g.fileByPath, path)
		delete(g.files, fileID)
	}
}

// ShiftLines moves every line of fileID at or after from by delta, keeping
// ids. Callers remove deleted lines before shifting up; a stale line found
// at a destination is dropped.
func (g *Graph) ShiftLines(fileID FileID, from, delta int) {
	if delta == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var moved []*lineRecord
	for id := range g.fileLines[fileID] {
		rec := g.lines[id]
		if rec.entry.LineNumber >= from {
			moved = append(moved, rec)
			delete(g.byLoc, lineKey{file: fileID, line: rec.entry.LineNumber})
		}
	}
	for _, rec := range moved {
		rec.entry.LineNumber += delta
		key := lineKey{file: fileID, line: rec.entry.LineNumber}
		if other, ok := g.byLoc[key]; ok {
			g.logger.Printf("warning: shift of file %d onto tracked line %d; dropping line id %d", fileID, key.line, other)
			g.dropLine(other)
		}
		g.byLoc[key] = rec.entry.ID
	}
}

func (g *Graph) fileSet(fileID FileID) idSet {
	set, ok := g.fileLines[fileID]
	if !ok {
		set = make(idSet)
		g.fileLines[fileID] = set
	}
	return set
}

func (g *Graph) insert(rec *lineRecord) {
	id := rec.entry.ID
	for _, name := range rec.defs {
		addID(g.defs, name, id)
	}
	for _, u := range rec.uses {
		addID(g.usages, u.Qualified, id)
		addID(g.bareUsages, u.Bare, id)
	}
}

func (g *Graph) retract(rec *lineRecord) {
	id := rec.entry.ID
	for _, name := range rec.defs {
		removeID(g.defs, name, id)
	}
	for _, u := range rec.uses {
		removeID(g.usages, u.Qualified, id)
		removeID(g.bareUsages, u.Bare, id)
	}
}

// dropLine retracts and forgets a line. The caller holds the write lock.
func (g *Graph) dropLine(id LineID) {
	rec := g.lines[id]
	g.retract(rec)
	delete(g.lines, id)
	key := lineKey{file: rec.entry.FileID, line: rec.entry.LineNumber}
	if g.byLoc[key] == id {
		delete(g.byLoc, key)
	}
	if set, ok := g.fileLines[rec.entry.FileID]; ok {
		delete(set, id)
	}
}

func addID(index map[string]idSet, name string, id LineID) {
	set, ok := index[name]
	if !ok {
		set = make(idSet)
		index[name] = set
	}
	set[id] = struct{}{}
}

func removeID(index map[string]idSet, name string, id LineID) {
	set, ok := index[name]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, name)
	}
}

// =============================================================================
// Queries
// =============================================================================

// GetLabelDefLinenumbers returns the ids of every line defining qualified,
// in ascending id order.
func (g *Graph) GetLabelDefLinenumbers(qualified string) ([]LineID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return nil, ErrDisabled
	}
	return g.defs[qualified].sorted(), nil
}

// UsageResult is the answer to a usage query. Fallback is set when no usage
// matched the qualified name and the ids come from a bare-name match, a
// lower-confidence answer.
type UsageResult struct {
	IDs      []LineID
	Fallback bool
}

// LabelUsagesDetailed returns the usages of qualified. When there are none
// it falls back to usages written as bare.
func (g *Graph) LabelUsagesDetailed(qualified, bare string) (UsageResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return UsageResult{}, ErrDisabled
	}
	if set := g.usages[qualified]; len(set) > 0 {
		return UsageResult{IDs: set.sorted()}, nil
	}
	if set := g.bareUsages[bare]; len(set) > 0 {
		return UsageResult{IDs: set.sorted(), Fallback: true}, nil
	}
	return UsageResult{IDs: []LineID{}}, nil
}

// GetLabelUsages returns the ids of lines using qualified, in ascending id
// order, falling back to the bare name. See LabelUsagesDetailed.
func (g *Graph) GetLabelUsages(qualified, bare string) ([]LineID, error) {
	res, err := g.LabelUsagesDetailed(qualified, bare)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// Line returns the entry for id.
func (g *Graph) Line(id LineID) (LineEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.lines[id]
	if !ok {
		return LineEntry{}, false
	}
	return rec.entry, true
}

// LineAt returns the id tracked at (fileID, lineNumber).
func (g *Graph) LineAt(fileID FileID, lineNumber int) (LineID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byLoc[lineKey{file: fileID, line: lineNumber}]
	return id, ok
}

// LineLabels returns the qualified definitions and usages recorded for id.
func (g *Graph) LineLabels(id LineID) (defs []string, uses []LabelRef, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.lines[id]
	if !ok {
		return nil, nil, false
	}
	return slices.Clone(rec.defs), slices.Clone(rec.uses), true
}

func (g *Graph) mustLine(id LineID) *lineRecord {
	rec, ok := g.lines[id]
	if !ok {
		panic(fmt.Sprintf("labelgraph: unknown line id %d", id))
	}
	return rec
}

// GetLineNumber returns the 0-based line number of id. It panics if id was
// never returned by this graph or has been removed.
func (g *Graph) GetLineNumber(id LineID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mustLine(id).entry.LineNumber
}

// GetFilename returns the path of the file holding id. It panics on unknown
// ids.
func (g *Graph) GetFilename(id LineID) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.files[g.mustLine(id).entry.FileID]
}

// IsFromMainFile reports whether id belongs to the main document. It panics
// on unknown ids.
func (g *Graph) IsFromMainFile(id LineID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mustLine(id).entry.IsFromMainFile
}

// Labels returns every defined qualified name, sorted.
func (g *Graph) Labels(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return nil, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(g.defs))
	for name := range g.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Redefinition is a label defined on more than one line.
type Redefinition struct {
	Name  string
	Lines []LineID
}

// Redefinitions returns every label defined on more than one line, sorted
// by name.
func (g *Graph) Redefinitions(ctx context.Context) ([]Redefinition, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return nil, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Redefinition
	for name, set := range g.defs {
		if len(set) < 2 {
			continue
		}
		out = append(out, Redefinition{Name: name, Lines: set.sorted()})
	}
	slices.SortFunc(out, func(a, b Redefinition) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Undefined returns the qualified names that are used but have no
// definition under either the qualified or the bare name, sorted.
func (g *Graph) Undefined(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return nil, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, rec := range g.lines {
		for _, u := range rec.uses {
			if seen[u.Qualified] {
				continue
			}
			seen[u.Qualified] = true
			if len(g.defs[u.Qualified]) == 0 && len(g.defs[u.Bare]) == 0 {
				out = append(out, u.Qualified)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}
