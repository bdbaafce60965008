package store

import "time"

// Index domain types

type File struct {
	ID          int64
	Path        string
	Hash        string
	DefHash     string // hash of the labels the file defines
	IsMain      bool
	LineCount   int
	LastIndexed time.Time
}

// Line is a source line that defines or uses at least one label.
type Line struct {
	ID         int64
	FileID     int64
	LineNumber int // 0-based
	IsMain     bool
}

type LabelDef struct {
	ID     int64
	LineID int64
	Name   string // qualified
}

type LabelUsage struct {
	ID     int64
	LineID int64
	Name   string // qualified
	Bare   string
}

// Query result types

// Location is one definition or usage site of a label.
type Location struct {
	File   string
	Line   int // 0-based
	LineID int64
	Label  string
	IsMain bool
}

// LabelSites groups the sites of one label, used for redefinition reports.
type LabelSites struct {
	Name      string
	Locations []Location
}
