// Package scripts holds the bundled Risor query scripts.
package scripts

import "embed"

// FS contains queries/*.risor. Pass it to runtime.WithRuntimeFS.
//
//go:embed queries/*.risor
var FS embed.FS
