package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatLocationsText formats CLILocation results as "file:line label"
// lines with 0-based line numbers.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, loc := range locs {
		fmt.Fprintf(tw, "%s:%d\t%s\n", loc.File, loc.Line, loc.Label)
	}
	tw.Flush()
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tMAIN\tLINES")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%d\n", f.ID, f.Path, f.IsMain, f.LineCount)
	}
	tw.Flush()
}

// formatRedefinitionsText lists each redefined label with its sites
// indented below it.
func formatRedefinitionsText(w io.Writer, redefs []CLIRedefinition) {
	for _, r := range redefs {
		fmt.Fprintln(w, r.Name)
		for _, loc := range r.Locations {
			fmt.Fprintf(w, "  %s:%d\n", loc.File, loc.Line)
		}
	}
}

// formatLineLabelsText prints one "def" or "use" line per label.
func formatLineLabelsText(w io.Writer, ll CLILineLabels) {
	for _, d := range ll.Definitions {
		fmt.Fprintf(w, "def %s\n", d)
	}
	for _, u := range ll.Usages {
		if u.Bare != u.Qualified {
			fmt.Fprintf(w, "use %s (%s)\n", u.Qualified, u.Bare)
		} else {
			fmt.Fprintf(w, "use %s\n", u.Qualified)
		}
	}
}

// formatScriptText prints string results as they are and everything else
// as indented JSON.
func formatScriptText(w io.Writer, v any) error {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		fmt.Fprintln(w, r)
		return nil
	case []any:
		for _, item := range r {
			if err := formatScriptText(w, item); err != nil {
				return err
			}
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case CLIUsages:
		formatLocationsText(w, v.Usages)
		if v.Fallback && len(v.Usages) > 0 {
			fmt.Fprintln(w, "(matched by unscoped name)")
		}
	case []CLIFile:
		formatFilesText(w, v)
	case []CLIRedefinition:
		formatRedefinitionsText(w, v)
	case CLILineLabels:
		formatLineLabelsText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case CLIDescription:
		fmt.Fprintln(w, strings.TrimSpace(v.Definitions+"\n"+v.Usages))
	case CLIScriptResult:
		if err := formatScriptText(w, v.Value); err != nil {
			return err
		}
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILocation:
		return len(r)
	case []CLIFile:
		return len(r)
	case []CLIRedefinition:
		return len(r)
	case []string:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
