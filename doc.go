// Package labelgraph cross-references assembly labels: where each label is
// defined and where it is used, for MASM, NASM and GAS sources.
//
// # In-memory analysis
//
// A [Graph] indexes lines by the qualified labels they define and use.
// Labels local to a MASM procedure or a NASM global label are qualified by
// their scope ("main.L1", "_start.loop"). Usage lookups fall back to the bare
// name when the qualified name has no usages.
//
// Editors keep one [Document] per open file inside a [Workspace]. The
// Document keeps its Graph current as lines change, follows include
// directives, and answers definition and reference requests at a position.
//
//	w := labelgraph.NewWorkspace(labelgraph.WithWorkspaceDialect(labelgraph.NASM))
//	doc := w.OpenDocument("boot.nasm", text)
//	defs, err := doc.Definitions(ctx, labelgraph.Position{Line: 4, Character: 9})
//
// A [Describer] renders label sites as hover text:
//
//	Defined at LINE 6 (boot.nasm) :.loop:
//
// # Persistent index
//
// An [Engine] keeps a SQLite index of a whole source tree:
//
//	e, err := labelgraph.New("labels.db", labelgraph.WithIndexDialect(labelgraph.MASM))
//	if err != nil { ... }
//	defer e.Close()
//
//	err = e.IndexDirectory(ctx, "path/to/project")
//	locs, err := e.Query().Definitions("main.L1")
//
// Unchanged files (same content hash) are skipped. When a file's set of
// defined labels changes, the files using those labels are reported by
// [Engine.Affected]. Changing the dialect of an existing index reindexes
// everything.
//
// The [QueryBuilder] returned by [Engine.Query] lists definitions, usages,
// labels, redefinitions and undefined labels. [Engine.RunScript] evaluates a
// Risor script with the same queries exposed as globals.
package labelgraph
