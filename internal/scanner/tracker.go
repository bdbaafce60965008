package scanner

import "slices"

// Tracker holds the text and scan results of one file so that label scope
// can be carried from line to line. Edits return the indices of lines whose
// tokens must be re-indexed.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	sc      *Scanner
	lines   []string
	results []Result
}

// NewTracker returns an empty tracker scanning with sc.
func NewTracker(sc *Scanner) *Tracker {
	return &Tracker{sc: sc}
}

// Reset replaces the whole file and rescans it.
func (t *Tracker) Reset(lines []string) {
	t.lines = slices.Clone(lines)
	t.results = make([]Result, len(lines))
	scope := ""
	for i, text := range t.lines {
		t.results[i] = t.sc.ScanLine(text, scope)
		scope = t.results[i].Scope
	}
}

// Len returns the number of lines.
func (t *Tracker) Len() int { return len(t.lines) }

// Line returns the text of line i.
func (t *Tracker) Line(i int) string { return t.lines[i] }

// Lines returns a copy of all lines.
func (t *Tracker) Lines() []string { return slices.Clone(t.lines) }

// Result returns the last scan result of line i.
func (t *Tracker) Result(i int) Result { return t.results[i] }

// ScopeAt returns the scope in force at the start of line i.
func (t *Tracker) ScopeAt(i int) string {
	if i <= 0 || i > len(t.results) {
		return ""
	}
	return t.results[i-1].Scope
}

// SetLine replaces the text of line i.
func (t *Tracker) SetLine(i int, text string) []int {
	if i < 0 || i >= len(t.lines) {
		return nil
	}
	t.lines[i] = text
	return t.rescan(i, i+1)
}

// Insert inserts lines before index at.
func (t *Tracker) Insert(at int, lines []string) []int {
	at = min(max(at, 0), len(t.lines))
	t.lines = slices.Insert(t.lines, at, lines...)
	t.results = slices.Insert(t.results, at, make([]Result, len(lines))...)
	return t.rescan(at, at+len(lines))
}

// Remove deletes count lines starting at index at.
func (t *Tracker) Remove(at, count int) []int {
	if at < 0 || count <= 0 || at >= len(t.lines) {
		return nil
	}
	end := min(at+count, len(t.lines))
	t.lines = slices.Delete(t.lines, at, end)
	t.results = slices.Delete(t.results, at, end)
	return t.rescan(at, at)
}

// rescan scans lines from index from onwards. Lines in [from, to) are always
// reported; later lines are rescanned until their result stops changing and
// reported only when their tokens changed.
func (t *Tracker) rescan(from, to int) []int {
	var changed []int
	for i := from; i < len(t.lines); i++ {
		prev := t.results[i]
		next := t.sc.ScanLine(t.lines[i], t.ScopeAt(i))
		t.results[i] = next
		same := slices.Equal(prev.Tokens, next.Tokens)
		if i < to || !same {
			changed = append(changed, i)
		}
		if i >= to && same && prev.Scope == next.Scope {
			break
		}
	}
	return changed
}
