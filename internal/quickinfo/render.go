package quickinfo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// MaxTooltipChars is the width tooltips are wrapped at.
const MaxTooltipChars = 150

// LabelDescriber lists label sites as text. An empty string means there are
// none.
type LabelDescriber interface {
	DescribeDefinitions(ctx context.Context, qualified string) (string, error)
	DescribeUsages(ctx context.Context, qualified, bare string) (string, error)
}

// Renderer turns an Info into hover text.
type Renderer struct {
	dict   Dictionary
	labels LabelDescriber
}

// NewRenderer returns a Renderer. Either argument may be nil: keywords are
// then shown without descriptions, labels without sites.
func NewRenderer(dict Dictionary, labels LabelDescriber) *Renderer {
	return &Renderer{dict: dict, labels: labels}
}

// Describe renders info as "<Kind> <word>: <description>". The description
// part is left out when there is nothing to say.
func (r *Renderer) Describe(ctx context.Context, info Info) (string, error) {
	switch v := info.(type) {
	case Keyword:
		return withDescription("Keyword "+v.Word, v.Word, r.dict.Get(v.Word)), nil
	case Directive:
		return withDescription("Directive "+v.Word, v.Word, r.dict.Get(v.Word)), nil
	case Register:
		return withDescription("Register "+v.Word, v.Word, r.dict.Get(strings.TrimPrefix(v.Word, "%"))), nil
	case Mnemonic:
		return withDescription("Mnemonic "+v.Word, v.Word, r.dict.Get(v.Word)), nil
	case UserDefined:
		return withDescription(fmt.Sprintf("User defined %d: %s", v.Group, v.Word), v.Word, r.dict.Get(v.Word)), nil
	case Constant:
		return "Constant " + describeConstant(v.Text), nil
	case Label:
		descr, err := r.labelDefinitions(ctx, v)
		if err != nil {
			return "", err
		}
		return withDescription("Label "+v.Qualified, v.Bare, descr), nil
	case LabelDef:
		descr, err := r.labelUsages(ctx, v)
		if err != nil {
			return "", err
		}
		return withDescription("Label "+v.Qualified, v.Bare, descr), nil
	}
	return "", fmt.Errorf("quickinfo: unknown info %T", info)
}

// labelDefinitions describes where a used label is defined, retrying under
// the bare name.
func (r *Renderer) labelDefinitions(ctx context.Context, l Label) (string, error) {
	if r.labels == nil {
		return "", nil
	}
	descr, err := r.labels.DescribeDefinitions(ctx, l.Qualified)
	if err != nil || descr != "" || l.Bare == l.Qualified {
		return descr, err
	}
	return r.labels.DescribeDefinitions(ctx, l.Bare)
}

func (r *Renderer) labelUsages(ctx context.Context, l LabelDef) (string, error) {
	if r.labels == nil {
		return "", nil
	}
	return r.labels.DescribeUsages(ctx, l.Qualified, l.Bare)
}

// withDescription appends ": descr" wrapped at MaxTooltipChars. A long
// keyword pushes the description onto its own line.
func withDescription(head, keyword, descr string) string {
	if descr == "" {
		return head
	}
	if len(keyword) > MaxTooltipChars/2 {
		descr = "\n" + descr
	}
	return head + Linewrap(": "+descr, MaxTooltipChars)
}

// Linewrap breaks text into lines of at most width characters at spaces.
// Existing line breaks are kept; words longer than width are not split.
func Linewrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, width int) string {
	if len(line) <= width {
		return line
	}
	var sb strings.Builder
	n := 0
	for i, word := range strings.Split(line, " ") {
		switch {
		case i == 0:
		case n+1+len(word) > width:
			sb.WriteByte('\n')
			n = 0
		default:
			sb.WriteByte(' ')
			n++
		}
		sb.WriteString(word)
		n += len(word)
	}
	return sb.String()
}

// describeConstant renders a numeric literal as "<v>d = <HEX>h = <bin>b",
// or returns it unchanged when it cannot be evaluated.
func describeConstant(text string) string {
	v, bits, ok := EvaluateConstant(text)
	if !ok {
		return text
	}
	bin := strconv.FormatUint(v, 2)
	if len(bin) < bits {
		bin = strings.Repeat("0", bits-len(bin)) + bin
	}
	return fmt.Sprintf("%dd = %Xh = %sb", v, v, bin)
}

// EvaluateConstant parses an assembler numeric literal: decimal, 0x/0b/0o
// prefixed, or h/b/o/q/d suffixed. A GAS immediate "$" is ignored. bits is the smallest of 8, 16, 32 and 64
// that holds the value.
func EvaluateConstant(text string) (value uint64, bits int, ok bool) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(text), "_", ""))
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, 0, false
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b") && len(s) > 2 && !strings.HasSuffix(s, "h"):
		base, s = 2, s[2:]
	case strings.HasPrefix(s, "0o"):
		base, s = 8, s[2:]
	case strings.HasSuffix(s, "h"):
		base, s = 16, s[:len(s)-1]
	case strings.HasSuffix(s, "b"):
		base, s = 2, s[:len(s)-1]
	case strings.HasSuffix(s, "o"), strings.HasSuffix(s, "q"):
		base, s = 8, s[:len(s)-1]
	case strings.HasSuffix(s, "d"):
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, 0, false
	}
	switch {
	case v <= 0xFF:
		bits = 8
	case v <= 0xFFFF:
		bits = 16
	case v <= 0xFFFFFFFF:
		bits = 32
	default:
		bits = 64
	}
	return v, bits, true
}
