package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLILocation is a JSON-friendly label site. Line is 0-based.
type CLILocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Label  string `json:"label"`
	LineID int64  `json:"line_id"`
	IsMain bool   `json:"is_main"`
}

// CLIUsages is the result of the usages command. Fallback is set when the
// sites were matched by the bare name because the qualified name had none.
type CLIUsages struct {
	Usages   []CLILocation `json:"usages"`
	Fallback bool          `json:"fallback"`
}

// CLIRedefinition is a label defined on more than one line.
type CLIRedefinition struct {
	Name      string        `json:"name"`
	Locations []CLILocation `json:"locations"`
}

// CLIFile is a JSON-friendly file representation.
type CLIFile struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	IsMain    bool   `json:"is_main"`
	LineCount int    `json:"line_count"`
}

// CLILabelRef is a label usage with its unscoped name.
type CLILabelRef struct {
	Qualified string `json:"qualified"`
	Bare      string `json:"bare"`
}

// CLILineLabels lists the labels defined and used on one line.
type CLILineLabels struct {
	File        string        `json:"file"`
	Line        int           `json:"line"`
	Definitions []string      `json:"definitions"`
	Usages      []CLILabelRef `json:"usages"`
}

// CLIDescription is the tooltip text for a label.
type CLIDescription struct {
	Label       string `json:"label"`
	Definitions string `json:"definitions"`
	Usages      string `json:"usages"`
}

// CLIScriptResult wraps the value a query script returned.
type CLIScriptResult struct {
	Script string `json:"script"`
	Value  any    `json:"value"`
}
