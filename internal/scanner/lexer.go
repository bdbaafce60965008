package scanner

type lexKind int

const (
	lexIdent lexKind = iota
	lexNumber
	lexString
	lexPunct
)

type lexeme struct {
	kind lexKind
	text string
	col  int
}

func (l lexeme) end() int { return l.col + len(l.text) }

func (l lexeme) is(s string) bool { return l.kind == lexPunct && l.text == s }

// lex splits one line into lexemes, stopping at the first comment character
// outside a string literal.
func lex(d Dialect, text string) []lexeme {
	var out []lexeme
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
			i++
		case d.isComment(c):
			return out
		case c == '\'' || c == '"' || (c == '`' && d == NASM):
			j := i + 1
			for j < len(text) && text[j] != c {
				if text[j] == '\\' && c == '`' {
					j++
				}
				j++
			}
			if j < len(text) {
				j++
			}
			out = append(out, lexeme{kind: lexString, text: text[i:j], col: i})
			i = j
		case isDigit(c):
			j := i + 1
			for j < len(text) && isIdentChar(text[j]) && text[j] != '.' {
				j++
			}
			out = append(out, lexeme{kind: lexNumber, text: text[i:j], col: i})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			out = append(out, lexeme{kind: lexIdent, text: text[i:j], col: i})
			i = j
		case c == ':' && i+1 < len(text) && text[i+1] == ':':
			out = append(out, lexeme{kind: lexPunct, text: "::", col: i})
			i += 2
		default:
			out = append(out, lexeme{kind: lexPunct, text: text[i : i+1], col: i})
			i++
		}
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isIdentStart(c byte) bool {
	return isLetter(c) || c == '_' || c == '.' || c == '@' || c == '?' || c == '$' || c == '%'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c == '.' || c == '@' || c == '?' || c == '$'
}

// ValidLabel reports whether name can be indexed as a label.
func ValidLabel(name string) bool {
	if name == "" || name == "@@" || name == "." || name == "$" || name == "$$" {
		return false
	}
	c := name[0]
	if !(isLetter(c) || c == '_' || c == '.' || c == '@' || c == '?' || c == '$') {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentChar(name[i]) {
			return false
		}
	}
	return true
}
