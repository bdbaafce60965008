package runtime

import (
	"context"
	"log"

	"github.com/risor-io/risor/object"
)

// makeDescribeDefsFn creates the "describe_defs" host function.
//
// describe_defs(qualified) → string
func makeDescribeDefsFn(d Describer) *object.Builtin {
	return object.NewBuiltin("describe_defs", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("describe_defs", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("describe_defs: %v", err)
		}
		text, err := d.DescribeDefinitions(ctx, name)
		if err != nil {
			return object.Errorf("describe_defs: %v", err)
		}
		return object.NewString(text)
	})
}

// makeDescribeUsagesFn creates the "describe_usages" host function.
//
// describe_usages(qualified, bare?) → string
func makeDescribeUsagesFn(d Describer) *object.Builtin {
	return object.NewBuiltin("describe_usages", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("describe_usages: expected 1 or 2 arguments, got %d", len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("describe_usages: %v", err)
		}
		bare := name
		if len(args) == 2 {
			if bare, err = toString(args[1]); err != nil {
				return object.Errorf("describe_usages: %v", err)
			}
		}
		text, err := d.DescribeUsages(ctx, name, bare)
		if err != nil {
			return object.Errorf("describe_usages: %v", err)
		}
		return object.NewString(text)
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *log.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Printf("INFO: %s", msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Printf("warning: %s", msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Printf("ERROR: %s", msg)
}
