// Package scanner tokenizes assembly source lines into label definitions,
// label usages and include directives for MASM, NASM and GAS syntax.
//
// The scanner works one line at a time. Label scope (the enclosing PROC in
// MASM, the last non-local label in NASM) is passed in by the caller and the
// scope in force after the line is returned with the result; [Tracker]
// carries it across a whole file.
package scanner

import (
	"strings"
)

// TokenKind classifies a label-related token.
type TokenKind int

const (
	Definition TokenKind = iota
	Usage
	Include
)

var tokenKindNames = map[TokenKind]string{
	Definition: "definition",
	Usage:      "usage",
	Include:    "include",
}

func (k TokenKind) String() string { return tokenKindNames[k] }

// Token is one label definition or usage found on a line. Text is the bare
// label (or the include path). Prefix is the scope the label was found in,
// ProtoSentinel for prototypes, or empty for global labels.
type Token struct {
	Kind   TokenKind
	Text   string
	Prefix string
	Column int
}

// TagKind classifies every word of a line for hover and highlighting.
type TagKind int

const (
	Misc TagKind = iota
	Directive
	Register
	Mnemonic
	Jump
	Label
	LabelDef
	Constant
	UserDefined1
	UserDefined2
	UserDefined3
)

var tagKindNames = map[TagKind]string{
	Misc:         "misc",
	Directive:    "directive",
	Register:     "register",
	Mnemonic:     "mnemonic",
	Jump:         "jump",
	Label:        "label",
	LabelDef:     "labeldef",
	Constant:     "constant",
	UserDefined1: "userdefined1",
	UserDefined2: "userdefined2",
	UserDefined3: "userdefined3",
}

func (k TagKind) String() string { return tagKindNames[k] }

// Tag is a classified word. Label and Prefix are only set for Label and
// LabelDef tags; Label is the bare name, which can differ from Text
// ("$msg" in GAS, "point.x" in MASM).
type Tag struct {
	Kind   TagKind
	Text   string
	Column int
	Label  string
	Prefix string
}

// Result is the outcome of scanning one line.
type Result struct {
	Tags   []Tag
	Tokens []Token
	// Scope is the label scope in force after this line.
	Scope string
}

// TagAt returns the tag covering column col. A cursor directly after the
// last character of a word still selects it.
func (r Result) TagAt(col int) (Tag, bool) {
	for _, t := range r.Tags {
		if col >= t.Column && col <= t.Column+len(t.Text) {
			return t, true
		}
	}
	return Tag{}, false
}

// Scanner scans lines of one dialect. It holds no per-file state and is safe
// for concurrent use.
type Scanner struct {
	dialect Dialect
	user    map[string]TagKind
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithUserKeywords registers words that are tagged UserDefined1..3 (group
// 1..3) and never treated as labels.
func WithUserKeywords(group int, words ...string) Option {
	return func(s *Scanner) {
		if group < 1 || group > 3 {
			return
		}
		kind := UserDefined1 + TagKind(group-1)
		for _, w := range words {
			s.user[strings.ToLower(w)] = kind
		}
	}
}

// New returns a Scanner for dialect d.
func New(d Dialect, opts ...Option) *Scanner {
	s := &Scanner{dialect: d, user: map[string]TagKind{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dialect returns the dialect this scanner was built for.
func (s *Scanner) Dialect() Dialect { return s.dialect }

// ScanLine tokenizes text given the scope in force before it.
func (s *Scanner) ScanLine(text, scope string) Result {
	ls := &lineScan{Scanner: s, text: text, lx: lex(s.dialect, text)}
	if s.dialect.Scoped() {
		ls.res.Scope = scope
	}
	ls.run()
	return ls.res
}

type lineScan struct {
	*Scanner
	text string
	lx   []lexeme
	res  Result
}

func (ls *lineScan) run() {
	pos, ok := ls.labelDef()
	if !ok {
		return
	}
	for pos < len(ls.lx) && instructionPrefixes[strings.ToLower(ls.lx[pos].text)] {
		ls.tag(Misc, ls.lx[pos])
		pos++
	}
	if pos >= len(ls.lx) {
		return
	}
	switch ls.dialect {
	case MASM:
		ls.masm(pos)
	case NASM:
		ls.nasm(pos)
	default:
		ls.gas(pos)
	}
}

// labelDef handles a leading "name:" or "name::". It returns the position of
// the statement that follows, and false when the line holds a malformed label
// and must not be indexed at all.
func (ls *lineScan) labelDef() (int, bool) {
	lx := ls.lx
	colon := -1
	for i, l := range lx {
		if l.is(":") || l.is("::") {
			colon = i
			break
		}
		if l.kind == lexString {
			break
		}
	}
	if colon < 1 {
		return 0, true
	}
	for i := 0; i < colon; i++ {
		if lx[i].end() != lx[i+1].col {
			return 0, true
		}
	}
	if colon > 1 {
		return 0, false
	}
	head := lx[0]
	switch {
	case head.kind == lexNumber:
		if ls.dialect == GAS {
			ls.tag(Misc, head)
			return 2, true
		}
		return 0, false
	case head.kind != lexIdent:
		return 0, false
	case IsRegister(head.text):
		return 0, true
	case !ValidLabel(head.text) || ls.keyword(head.text):
		return 0, false
	}

	switch ls.dialect {
	case MASM:
		prefix := ls.res.Scope
		if lx[1].is("::") {
			prefix = ""
		}
		ls.def(head, head.text, prefix)
	case NASM:
		ls.nasmLabel(head)
	default:
		ls.def(head, head.text, "")
	}
	return 2, true
}

// nasmLabel defines a NASM label. Dot-prefixed labels are local to the last
// global label, which becomes the new scope.
func (ls *lineScan) nasmLabel(l lexeme) {
	if isLocal(l.text) {
		ls.def(l, l.text, ls.res.Scope)
		return
	}
	ls.def(l, l.text, "")
	if !strings.HasPrefix(l.text, "..") {
		ls.res.Scope = l.text
	}
}

func isLocal(name string) bool {
	return strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "..")
}

func (ls *lineScan) masm(pos int) {
	lx := ls.lx
	head := lx[pos]
	lower := strings.ToLower(head.text)
	_, headIsDirective := masmDirectives[lower]

	if pos+1 < len(lx) && head.kind == lexIdent && !headIsDirective &&
		ValidLabel(head.text) && !IsRegister(head.text) {
		next := lx[pos+1]
		nl := strings.ToLower(next.text)
		if d, ok := masmDirectives[nl]; ok && !sizePtr(lx, pos+1) {
			ls.tag(Directive, next)
			switch nl {
			case "endp":
				ls.tag(Misc, head)
				ls.res.Scope = ""
				return
			case "ends", "endm":
				ls.tag(Misc, head)
				return
			case "proc":
				ls.def(head, head.text, "")
				ls.res.Scope = head.text
				return
			case "proto":
				ls.def(head, head.text, ProtoSentinel)
				return
			}
			if d.defines {
				ls.def(head, head.text, "")
				if d.operands {
					ls.operands(pos + 2)
				}
				return
			}
		}
	}

	if headIsDirective {
		ls.tag(Directive, head)
		switch lower {
		case "extern", "extrn", "externdef":
			ls.names(pos+1, func(l lexeme) { ls.def(l, l.text, ProtoSentinel) })
		case "include":
			ls.include(pos + 1)
		default:
			if masmDirectives[lower].operands {
				ls.operands(pos + 1)
			}
		}
		return
	}
	ls.instruction(pos)
}

func (ls *lineScan) nasm(pos int) {
	lx := ls.lx
	head := lx[pos]
	if head.is("[") {
		return
	}
	lower := strings.ToLower(head.text)

	if pos+1 < len(lx) && head.kind == lexIdent && ValidLabel(head.text) &&
		!IsRegister(head.text) && lx[pos+1].kind == lexIdent {
		if _, isDirective := nasmDirectives[lower]; !isDirective {
			if d, ok := nasmDirectives[strings.ToLower(lx[pos+1].text)]; ok && d.defines {
				ls.tag(Directive, lx[pos+1])
				ls.nasmLabel(head)
				if d.operands {
					ls.operands(pos + 2)
				}
				return
			}
			next := strings.ToLower(lx[pos+1].text)
			if !IsMnemonic(head.text) && !ls.keyword(head.text) && !strings.HasPrefix(lower, "%") &&
				(IsMnemonic(next) || instructionPrefixes[next]) {
				ls.nasmLabel(head)
				ls.statement(pos + 1)
				return
			}
		}
	}

	switch lower {
	case "%include":
		ls.tag(Directive, head)
		ls.include(pos + 1)
		return
	case "%define", "%xdefine", "%assign":
		ls.tag(Directive, head)
		if pos+1 < len(lx) && lx[pos+1].kind == lexIdent && ValidLabel(lx[pos+1].text) {
			ls.def(lx[pos+1], lx[pos+1].text, "")
			ls.operands(pos + 2)
		}
		return
	case "extern":
		ls.tag(Directive, head)
		ls.names(pos+1, func(l lexeme) { ls.def(l, l.text, ProtoSentinel) })
		return
	case "global", "common", "static":
		ls.tag(Directive, head)
		ls.names(pos+1, func(l lexeme) { ls.operand(l) })
		return
	}
	if strings.HasPrefix(lower, "%") {
		ls.tag(Directive, head)
		return
	}
	if d, ok := nasmDirectives[lower]; ok {
		ls.tag(Directive, head)
		if d.operands {
			ls.operands(pos + 1)
		}
		return
	}
	ls.instruction(pos)
}

func (ls *lineScan) gas(pos int) {
	lx := ls.lx
	head := lx[pos]
	lower := strings.ToLower(head.text)

	if head.kind == lexIdent && pos+1 < len(lx) && lx[pos+1].is("=") && ValidLabel(head.text) {
		ls.def(head, head.text, "")
		ls.operands(pos + 2)
		return
	}

	switch {
	case lower == ".include":
		ls.tag(Directive, head)
		ls.include(pos + 1)
	case gasDefiningDirectives[lower]:
		ls.tag(Directive, head)
		if pos+1 < len(lx) && lx[pos+1].kind == lexIdent && ValidLabel(lx[pos+1].text) {
			ls.def(lx[pos+1], lx[pos+1].text, "")
			ls.operands(pos + 2)
		}
	case gasOperandDirectives[lower]:
		ls.tag(Directive, head)
		ls.operands(pos + 1)
	case strings.HasPrefix(lower, "."):
		ls.tag(Directive, head)
	default:
		ls.instruction(pos)
	}
}

// statement scans an instruction with optional prefixes starting at pos.
func (ls *lineScan) statement(pos int) {
	for pos < len(ls.lx) && instructionPrefixes[strings.ToLower(ls.lx[pos].text)] {
		ls.tag(Misc, ls.lx[pos])
		pos++
	}
	if pos < len(ls.lx) {
		ls.instruction(pos)
	}
}

func (ls *lineScan) instruction(pos int) {
	head := ls.lx[pos]
	if head.kind != lexIdent {
		return
	}
	if kind, ok := ls.user[strings.ToLower(head.text)]; ok {
		ls.tag(kind, head)
	} else if isJump(head.text) {
		ls.tag(Jump, head)
	} else {
		ls.tag(Mnemonic, head)
	}
	ls.operands(pos + 1)
}

// operands scans everything from pos for label usages.
func (ls *lineScan) operands(pos int) {
	lx := ls.lx
	for i := pos; i < len(lx); i++ {
		l := lx[i]
		switch l.kind {
		case lexNumber:
			ls.tag(Constant, l)
			continue
		case lexString, lexPunct:
			continue
		}
		ls.operand(l)
	}
}

func (ls *lineScan) operand(l lexeme) {
	name := l.text
	if ls.dialect == GAS {
		name = strings.TrimPrefix(name, "$")
		if name == "" {
			return
		}
		if isDigit(name[0]) {
			ls.tag(Constant, l)
			return
		}
		if strings.HasPrefix(name, "@") {
			ls.tag(Misc, l)
			return
		}
		if i := strings.IndexByte(name, '@'); i > 0 {
			name = name[:i]
		}
	}
	if kind, ok := ls.classify(name); ok {
		ls.tag(kind, l)
		return
	}
	switch ls.dialect {
	case MASM:
		if strings.HasPrefix(name, ".") {
			ls.tag(Misc, l)
			return
		}
		if i := strings.IndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		if ValidLabel(name) {
			ls.use(l, name, ls.res.Scope)
		}
	case NASM:
		if !ValidLabel(name) {
			return
		}
		prefix := ""
		if isLocal(name) {
			prefix = ls.res.Scope
		}
		ls.use(l, name, prefix)
	default:
		if ValidLabel(name) {
			ls.use(l, name, "")
		}
	}
}

// names handles comma separated name lists ("EXTERN a:PROC, b:DWORD").
// Only the first identifier of each element is passed to fn.
func (ls *lineScan) names(pos int, fn func(lexeme)) {
	expect := true
	for _, l := range ls.lx[pos:] {
		switch {
		case l.is(","):
			expect = true
		case l.kind == lexIdent && callingConventions[strings.ToLower(l.text)]:
			ls.tag(Misc, l)
		case l.kind == lexIdent && expect && ValidLabel(l.text) && !ls.keyword(l.text):
			fn(l)
			expect = false
		case l.kind == lexIdent:
			ls.tag(Misc, l)
			expect = false
		default:
			expect = false
		}
	}
}

// include emits the raw remainder of the line as an include path, with
// surrounding quotes or angle brackets removed.
func (ls *lineScan) include(pos int) {
	if pos >= len(ls.lx) {
		return
	}
	start := ls.lx[pos].col
	end := len(ls.text)
	if last := ls.lx[len(ls.lx)-1]; last.end() < end {
		end = last.end()
	}
	path := strings.TrimSpace(ls.text[start:end])
	if len(path) >= 2 {
		first, last := path[0], path[len(path)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '<' && last == '>') {
			path = path[1 : len(path)-1]
		}
	}
	if path == "" {
		return
	}
	ls.res.Tokens = append(ls.res.Tokens, Token{Kind: Include, Text: path, Column: start})
}

func (ls *lineScan) classify(name string) (TagKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case IsRegister(name):
		return Register, true
	case operators[lower]:
		return Misc, true
	}
	if kind, ok := ls.user[lower]; ok {
		return kind, true
	}
	if ls.directive(lower) {
		return Directive, true
	}
	return Misc, false
}

// keyword reports whether name is reserved and cannot name a label.
func (ls *lineScan) keyword(name string) bool {
	lower := strings.ToLower(name)
	if IsRegister(name) || ls.directive(lower) {
		return true
	}
	_, ok := ls.user[lower]
	return ok
}

func (ls *lineScan) directive(lower string) bool {
	switch ls.dialect {
	case MASM:
		_, ok := masmDirectives[lower]
		return ok
	case NASM:
		_, ok := nasmDirectives[lower]
		return ok
	default:
		return gasOperandDirectives[lower] || gasDefiningDirectives[lower]
	}
}

func (ls *lineScan) def(l lexeme, name, prefix string) {
	ls.res.Tokens = append(ls.res.Tokens, Token{Kind: Definition, Text: name, Prefix: prefix, Column: l.col})
	ls.res.Tags = append(ls.res.Tags, Tag{Kind: LabelDef, Text: l.text, Column: l.col, Label: name, Prefix: prefix})
}

func (ls *lineScan) use(l lexeme, name, prefix string) {
	ls.res.Tokens = append(ls.res.Tokens, Token{Kind: Usage, Text: name, Prefix: prefix, Column: l.col})
	ls.res.Tags = append(ls.res.Tags, Tag{Kind: Label, Text: l.text, Column: l.col, Label: name, Prefix: prefix})
}

func (ls *lineScan) tag(kind TagKind, l lexeme) {
	ls.res.Tags = append(ls.res.Tags, Tag{Kind: kind, Text: l.text, Column: l.col})
}

// sizePtr reports whether lx[i] is a size keyword used as "DWORD PTR".
func sizePtr(lx []lexeme, i int) bool {
	return i+1 < len(lx) && strings.EqualFold(lx[i+1].text, "ptr")
}
