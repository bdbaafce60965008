package labelgraph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DisabledMessage is reported instead of label sites while analysis is off.
	DisabledMessage = "Label analysis is disabled"
	// NotUsedMessage is reported for labels without usages.
	NotUsedMessage = "Not used"
)

// LineSource supplies the current text of a tracked line. Lookups may be
// slow; the Describer times them.
type LineSource interface {
	LineText(entry LineEntry) (string, bool)
}

// Describer renders label definition and usage sites as text for tooltips.
type Describer struct {
	graph  *Graph
	src    LineSource
	logger *log.Logger
}

// NewDescriber returns a Describer over g. src may be nil, in which case
// line text is never included. A nil logger discards slow-path warnings.
func NewDescriber(g *Graph, src LineSource, logger *log.Logger) *Describer {
	if logger == nil {
		logger = discardLogger()
	}
	return &Describer{graph: g, src: src, logger: logger}
}

// DescribeDefinitions lists the lines defining qualified, one per line as
// "Defined at LINE <n> (<file>)". Main-file lines also show their text.
// It returns an empty string when the label has no definition.
func (d *Describer) DescribeDefinitions(ctx context.Context, qualified string) (string, error) {
	ids, err := d.graph.GetLabelDefLinenumbers(qualified)
	if errors.Is(err, ErrDisabled) {
		return DisabledMessage, nil
	}
	if err != nil {
		return "", err
	}
	return d.describe(ctx, "Defined at", ids)
}

// DescribeUsages lists the lines using qualified (or bare, see
// Graph.LabelUsagesDetailed) as "Used at LINE <n> (<file>)".
func (d *Describer) DescribeUsages(ctx context.Context, qualified, bare string) (string, error) {
	ids, err := d.graph.GetLabelUsages(qualified, bare)
	if errors.Is(err, ErrDisabled) {
		return DisabledMessage, nil
	}
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return NotUsedMessage, nil
	}
	return d.describe(ctx, "Used at", ids)
}

// describe renders one line per id. More than one entry starts with a blank
// line.
func (d *Describer) describe(ctx context.Context, verb string, ids []LineID) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		entry, ok := d.graph.Line(id)
		if !ok {
			continue
		}
		path, _ := d.graph.Filename(entry.FileID)
		line := fmt.Sprintf("%s LINE %d (%s)", verb, entry.LineNumber+1, filepath.Base(path))
		if entry.IsFromMainFile && d.src != nil {
			start := time.Now()
			text, ok := d.src.LineText(entry)
			SlowWarning(d.logger, start, fmt.Sprintf("reading line %d of %s", entry.LineNumber+1, path))
			if ok {
				line += " :" + text
			}
		}
		if len(ids) > 1 {
			sb.WriteByte('\n')
		}
		sb.WriteString(Cleanup(line))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Cleanup turns tabs into spaces, collapses runs of whitespace and trims the
// result.
func Cleanup(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
