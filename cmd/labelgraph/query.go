package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/labelgraph"
)

var (
	flagLimit  int
	flagOffset int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the label index",
	Long:  "Run queries against an indexed source tree. Line numbers are 0-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")

	queryCmd.AddCommand(definitionsCmd)
	queryCmd.AddCommand(usagesCmd)
	queryCmd.AddCommand(labelsCmd)
	queryCmd.AddCommand(redefinitionsCmd)
	queryCmd.AddCommand(undefinedCmd)
	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(labelsAtCmd)
	queryCmd.AddCommand(definitionAtCmd)
	queryCmd.AddCommand(describeCmd)
	queryCmd.AddCommand(scriptCmd)
}

// --- Helpers ---

// maxLimit caps --limit.
const maxLimit = 500

// openQueryEngine opens the existing database of the repository containing
// the working directory.
func openQueryEngine() (*labelgraph.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'labelgraph index' first)", dbPath)
	}
	return openEngine(repoRoot, dbPath)
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// paginate applies --limit and --offset to items and returns the page with
// the total count.
func paginate[T any](items []T) ([]T, *int) {
	total := len(items)
	limit := flagLimit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	start := min(max(flagOffset, 0), total)
	end := min(start+limit, total)
	return items[start:end], &total
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// withEngine opens the query engine, runs fn and writes its result or error
// under command.
func withEngine(command string, fn func(e *labelgraph.Engine) (any, *int, error)) error {
	e, err := openQueryEngine()
	if err != nil {
		return outputError(command, err)
	}
	defer e.Close()
	res, total, err := fn(e)
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(CLIResult{Command: command, Results: res, TotalCount: total})
}

// locationToCLI converts a labelgraph.Location to a CLILocation.
func locationToCLI(loc labelgraph.Location) CLILocation {
	return CLILocation{
		File:   loc.File,
		Line:   loc.Line,
		Label:  loc.Label,
		LineID: loc.LineID,
		IsMain: loc.IsMain,
	}
}

func locationsToCLI(locs []labelgraph.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationToCLI(l))
	}
	return out
}

// --- Label commands ---

var definitionsCmd = &cobra.Command{
	Use:   "definitions <label>",
	Short: "List the lines defining a qualified label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("definitions", func(e *labelgraph.Engine) (any, *int, error) {
			locs, err := e.Query().Definitions(args[0])
			if err != nil {
				return nil, nil, err
			}
			page, total := paginate(locationsToCLI(locs))
			return page, total, nil
		})
	},
}

var flagBare string

var usagesCmd = &cobra.Command{
	Use:   "usages <label>",
	Short: "List the lines using a qualified label",
	Long:  "Lists the lines using a qualified label. With --bare, falls back to usages of the unscoped name when the qualified name has none.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("usages", func(e *labelgraph.Engine) (any, *int, error) {
			locs, fallback, err := e.Query().Usages(args[0], flagBare)
			if err != nil {
				return nil, nil, err
			}
			page, total := paginate(locationsToCLI(locs))
			return CLIUsages{Usages: page, Fallback: fallback}, total, nil
		})
	},
}

var flagPrefix string

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List defined labels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("labels", func(e *labelgraph.Engine) (any, *int, error) {
			names, err := e.Query().Labels(flagPrefix)
			if err != nil {
				return nil, nil, err
			}
			page, total := paginate(names)
			return page, total, nil
		})
	},
}

func init() {
	usagesCmd.Flags().StringVar(&flagBare, "bare", "", "unscoped name to fall back to")
	labelsCmd.Flags().StringVar(&flagPrefix, "prefix", "", "only list labels starting with prefix")
}

var redefinitionsCmd = &cobra.Command{
	Use:   "redefinitions",
	Short: "List labels defined on more than one line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("redefinitions", func(e *labelgraph.Engine) (any, *int, error) {
			redefs, err := e.Query().Redefinitions()
			if err != nil {
				return nil, nil, err
			}
			out := make([]CLIRedefinition, 0, len(redefs))
			for _, r := range redefs {
				out = append(out, CLIRedefinition{Name: r.Name, Locations: locationsToCLI(r.Locations)})
			}
			page, total := paginate(out)
			return page, total, nil
		})
	},
}

var undefinedCmd = &cobra.Command{
	Use:   "undefined",
	Short: "List labels that are used but never defined",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("undefined", func(e *labelgraph.Engine) (any, *int, error) {
			names, err := e.Query().Undefined()
			if err != nil {
				return nil, nil, err
			}
			page, total := paginate(names)
			return page, total, nil
		})
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("files", func(e *labelgraph.Engine) (any, *int, error) {
			files, err := e.Query().Files()
			if err != nil {
				return nil, nil, err
			}
			out := make([]CLIFile, 0, len(files))
			for _, f := range files {
				out = append(out, CLIFile{ID: f.ID, Path: f.Path, IsMain: f.IsMain, LineCount: f.LineCount})
			}
			page, total := paginate(out)
			return page, total, nil
		})
	},
}

// --- Position commands ---

// fileLineArgs parses <file> <line>.
func fileLineArgs(args []string) (string, int, error) {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, err
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return "", 0, err
	}
	return file, line, nil
}

var labelsAtCmd = &cobra.Command{
	Use:   "labels-at <file> <line>",
	Short: "List the labels defined and used on a line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("labels-at", func(e *labelgraph.Engine) (any, *int, error) {
			file, line, err := fileLineArgs(args)
			if err != nil {
				return nil, nil, err
			}
			defs, uses, err := e.Query().LabelsAt(file, line)
			if err != nil {
				return nil, nil, err
			}
			res := CLILineLabels{File: file, Line: line, Definitions: defs, Usages: make([]CLILabelRef, 0, len(uses))}
			if res.Definitions == nil {
				res.Definitions = []string{}
			}
			for _, u := range uses {
				res.Usages = append(res.Usages, CLILabelRef{Qualified: u.Qualified, Bare: u.Bare})
			}
			return res, nil, nil
		})
	},
}

var definitionAtCmd = &cobra.Command{
	Use:   "definition-at <file> <line>",
	Short: "Find the definitions of the labels used on a line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("definition-at", func(e *labelgraph.Engine) (any, *int, error) {
			file, line, err := fileLineArgs(args)
			if err != nil {
				return nil, nil, err
			}
			locs, err := e.Query().DefinitionAt(file, line)
			if err != nil {
				return nil, nil, err
			}
			return locationsToCLI(locs), nil, nil
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <label> [bare]",
	Short: "Print the tooltip text for a label",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("describe", func(e *labelgraph.Engine) (any, *int, error) {
			ctx := context.Background()
			d, err := e.Describer(ctx)
			if err != nil {
				return nil, nil, err
			}
			res := CLIDescription{Label: args[0]}
			if res.Definitions, err = d.DescribeDefinitions(ctx, args[0]); err != nil {
				return nil, nil, err
			}
			bare := args[0]
			if len(args) > 1 {
				bare = args[1]
			}
			if res.Usages, err = d.DescribeUsages(ctx, args[0], bare); err != nil {
				return nil, nil, err
			}
			return res, nil, nil
		})
	},
}

// --- Scripts ---

var (
	flagScriptFile string
	flagScriptEval string
	flagScriptList bool
)

var scriptCmd = &cobra.Command{
	Use:   "script [name]",
	Short: "Run a Risor query script against the index",
	Long:  "Runs a built-in query script by name, a script file (--file) or inline source (-e). --list prints the built-in script names.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScript,
}

func init() {
	scriptCmd.Flags().StringVarP(&flagScriptFile, "file", "f", "", "run the script in this file")
	scriptCmd.Flags().StringVarP(&flagScriptEval, "eval", "e", "", "run this script source")
	scriptCmd.Flags().BoolVar(&flagScriptList, "list", false, "list built-in scripts")
}

func runScript(cmd *cobra.Command, args []string) error {
	return withEngine("script", func(e *labelgraph.Engine) (any, *int, error) {
		ctx := context.Background()
		switch {
		case flagScriptList:
			names, err := e.ScriptNames()
			return names, nil, err
		case len(args) == 1:
			v, err := e.RunNamedScript(ctx, args[0])
			return CLIScriptResult{Script: args[0], Value: v}, nil, err
		case flagScriptFile != "":
			src, err := os.ReadFile(flagScriptFile)
			if err != nil {
				return nil, nil, fmt.Errorf("reading script: %w", err)
			}
			v, err := e.RunScript(ctx, string(src))
			return CLIScriptResult{Script: flagScriptFile, Value: v}, nil, err
		case flagScriptEval != "":
			v, err := e.RunScript(ctx, flagScriptEval)
			return CLIScriptResult{Script: "-e", Value: v}, nil, err
		}
		return nil, nil, fmt.Errorf("requires a script name, --file, --eval or --list")
	})
}
