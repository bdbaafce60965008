package scanner

import (
	"fmt"
	"strings"
)

// Dialect selects the assembler syntax rules used for comments, directives and
// label scoping. It is configuration; nothing in this package infers it.
type Dialect int

const (
	MASM Dialect = iota
	NASM
	GAS
)

// ProtoSentinel is the prefix attached to prototype and forward-declared
// label definitions. Such labels are never qualified.
const ProtoSentinel = "<proto>"

var dialectNames = map[Dialect]string{
	MASM: "masm",
	NASM: "nasm",
	GAS:  "gas",
}

func (d Dialect) String() string {
	if name, ok := dialectNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ParseDialect maps a configuration value ("masm", "nasm", "gas") to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "masm", "ml", "ml64":
		return MASM, nil
	case "nasm", "yasm":
		return NASM, nil
	case "gas", "att", "as":
		return GAS, nil
	}
	return MASM, fmt.Errorf("unknown assembler dialect %q: must be masm, nasm or gas", s)
}

// Separator is placed between a scope prefix and a bare label when building
// a qualified name. NASM local labels carry their own leading dot.
func (d Dialect) Separator() string {
	if d == MASM {
		return "."
	}
	return ""
}

// Scoped reports whether the dialect has label scopes at all.
func (d Dialect) Scoped() bool {
	return d != GAS
}

func (d Dialect) isComment(c byte) bool {
	if d == GAS {
		return c == '#'
	}
	return c == ';'
}
