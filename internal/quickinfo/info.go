// Package quickinfo renders hover text for the word under a cursor.
package quickinfo

import "github.com/jward/labelgraph/internal/scanner"

// Info is the classified word under a cursor. The concrete types are
// Keyword, Directive, Register, Mnemonic, Label, LabelDef, Constant and
// UserDefined.
type Info interface {
	info()
}

// Keyword is a word with no more specific classification.
type Keyword struct{ Word string }

// Directive is an assembler directive.
type Directive struct{ Word string }

// Register is a machine register.
type Register struct{ Word string }

// Mnemonic is an instruction mnemonic. Jump marks branch instructions.
type Mnemonic struct {
	Word string
	Jump bool
}

// Label is a label usage.
type Label struct{ Qualified, Bare string }

// LabelDef is a label definition.
type LabelDef struct{ Qualified, Bare string }

// Constant is a numeric literal as written.
type Constant struct{ Text string }

// UserDefined is a word from a user keyword group (1..3).
type UserDefined struct {
	Group int
	Word  string
}

func (Keyword) info()     {}
func (Directive) info()   {}
func (Register) info()    {}
func (Mnemonic) info()    {}
func (Label) info()       {}
func (LabelDef) info()    {}
func (Constant) info()    {}
func (UserDefined) info() {}

// Qualifier builds a qualified label name from a scope prefix and a bare
// label.
type Qualifier func(prefix, bare string) string

// FromTag converts a scanner tag to an Info.
func FromTag(tag scanner.Tag, qualify Qualifier) Info {
	switch tag.Kind {
	case scanner.Directive:
		return Directive{Word: tag.Text}
	case scanner.Register:
		return Register{Word: tag.Text}
	case scanner.Mnemonic:
		return Mnemonic{Word: tag.Text}
	case scanner.Jump:
		return Mnemonic{Word: tag.Text, Jump: true}
	case scanner.Label:
		return Label{Qualified: qualify(tag.Prefix, tag.Label), Bare: tag.Label}
	case scanner.LabelDef:
		return LabelDef{Qualified: qualify(tag.Prefix, tag.Label), Bare: tag.Label}
	case scanner.Constant:
		return Constant{Text: tag.Text}
	case scanner.UserDefined1, scanner.UserDefined2, scanner.UserDefined3:
		return UserDefined{Group: int(tag.Kind-scanner.UserDefined1) + 1, Word: tag.Text}
	}
	return Keyword{Word: tag.Text}
}

// TokenAt classifies the word at byte column col of a scanned line.
func TokenAt(res scanner.Result, col int, qualify Qualifier) (Info, bool) {
	tag, ok := res.TagAt(col)
	if !ok {
		return nil, false
	}
	return FromTag(tag, qualify), true
}
