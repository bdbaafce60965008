package labelgraph

import (
	"github.com/jward/labelgraph/internal/scanner"
	"github.com/jward/labelgraph/internal/store"
)

// Public aliases for internal types used in the Graph and QueryBuilder APIs.

type Dialect = scanner.Dialect
type Token = scanner.Token
type TokenKind = scanner.TokenKind

type File = store.File
type Location = store.Location
type LabelSites = store.LabelSites

const (
	MASM = scanner.MASM
	NASM = scanner.NASM
	GAS  = scanner.GAS
)

const (
	Definition = scanner.Definition
	Usage      = scanner.Usage
	Include    = scanner.Include
)

// ProtoSentinel marks prototype and forward-declared labels; their bare name
// is their qualified name.
const ProtoSentinel = scanner.ProtoSentinel

// ParseDialect maps "masm", "nasm" or "gas" to a Dialect.
func ParseDialect(s string) (Dialect, error) { return scanner.ParseDialect(s) }

// LineID identifies a tracked line for the lifetime of a Graph. Ids are
// allocated in increasing order and never reused.
type LineID uint32

// NoLine is returned for lines that carry no label tokens.
const NoLine LineID = 0

// FileID identifies a file registered with a Graph.
type FileID uint32

// LineEntry is one source line that defines or uses at least one label.
type LineEntry struct {
	ID             LineID
	FileID         FileID
	LineNumber     int // 0-based
	IsFromMainFile bool
}

// LabelRef is a label usage: the qualified name it resolves to and the bare
// name as written.
type LabelRef struct {
	Qualified string
	Bare      string
}
