package labelgraph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, opts ...GraphOption) (*Graph, FileID) {
	t.Helper()
	g := NewGraph(opts...)
	return g, g.RegisterFile("/src/a.asm")
}

func defsOf(t *testing.T, g *Graph, qualified string) []LineID {
	t.Helper()
	ids, err := g.GetLabelDefLinenumbers(qualified)
	require.NoError(t, err)
	return ids
}

func usesOf(t *testing.T, g *Graph, qualified, bare string) []LineID {
	t.Helper()
	ids, err := g.GetLabelUsages(qualified, bare)
	require.NoError(t, err)
	return ids
}

// =============================================================================
// Qualification
// =============================================================================

func TestQualifyLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		prefix, bare string
		dialect      Dialect
		want         string
	}{
		{"", "foo", MASM, "foo"},
		{"bar", "foo", MASM, "bar.foo"},
		{"main", ".loop", NASM, "main.loop"},
		{"", ".loop", NASM, ".loop"},
		{ProtoSentinel, "ExitProcess", MASM, "ExitProcess"},
		{"x", "y", GAS, "xy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualifyLabel(tt.prefix, tt.bare, tt.dialect), "%q %q", tt.prefix, tt.bare)
	}
}

// =============================================================================
// Definitions and usages
// =============================================================================

func TestGraph_DefinitionAndUsage(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	def := g.AddOrUpdateLine("myLabel: nop", f, 10, true)
	use := g.AddOrUpdateLine("  jmp myLabel", f, 25, true)
	require.NotEqual(t, NoLine, def)
	require.NotEqual(t, NoLine, use)

	assert.Equal(t, []LineID{def}, defsOf(t, g, "myLabel"))
	assert.Equal(t, []LineID{use}, usesOf(t, g, "myLabel", "myLabel"))
	assert.Equal(t, 10, g.GetLineNumber(def))
	assert.Equal(t, "/src/a.asm", g.GetFilename(use))
	assert.True(t, g.IsFromMainFile(def))
}

func TestGraph_RemoveLineRetractsDefinition(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	id := g.AddOrUpdateLine("start:", f, 0, true)
	other := g.AddOrUpdateLine("start:", f, 4, true)
	require.Equal(t, []LineID{id, other}, defsOf(t, g, "start"))

	g.RemoveLine(id)
	assert.Equal(t, []LineID{other}, defsOf(t, g, "start"))
	_, ok := g.Line(id)
	assert.False(t, ok)

	g.RemoveLine(id)
	g.RemoveLine(12345)
	assert.Equal(t, 1, g.Len())
}

func TestGraph_AddOrUpdateLineIsIdempotent(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	first := g.AddOrUpdateLine("loop1: jmp done", f, 3, true)
	labels, err := g.Labels(context.Background())
	require.NoError(t, err)

	second := g.AddOrUpdateLine("loop1: jmp done", f, 3, true)
	assert.Equal(t, first, second)
	again, err := g.Labels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, labels, again)
	assert.Equal(t, []LineID{first}, defsOf(t, g, "loop1"))
	assert.Equal(t, []LineID{first}, usesOf(t, g, "done", "done"))
	assert.Equal(t, 1, g.Len())
}

func TestGraph_RescanReplacesRecords(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	id := g.AddOrUpdateLine("x: nop", f, 1, true)
	assert.Equal(t, id, g.AddOrUpdateLine("y: nop", f, 1, true))
	assert.Empty(t, defsOf(t, g, "x"))
	assert.Equal(t, []LineID{id}, defsOf(t, g, "y"))

	assert.Equal(t, NoLine, g.AddOrUpdateLine("nop", f, 1, true))
	assert.Empty(t, defsOf(t, g, "y"))
	assert.Equal(t, 0, g.Len())
}

func TestGraph_MalformedLabelIsNotIndexed(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	assert.Equal(t, NoLine, g.AddOrUpdateLine("bad-label: jmp somewhere", f, 0, true))
	assert.Empty(t, usesOf(t, g, "somewhere", "somewhere"))
}

func TestGraph_ScopedLabelResolvesWithinScope(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	def := g.UpdateTokens(f, 1, true, []Token{{Kind: Definition, Text: "foo", Prefix: "bar"}})
	use := g.UpdateTokens(f, 2, true, []Token{{Kind: Usage, Text: "foo", Prefix: "bar", Column: 4}})

	assert.Equal(t, []LineID{def}, defsOf(t, g, "bar.foo"))
	assert.Empty(t, defsOf(t, g, "foo"))

	res, err := g.LabelUsagesDetailed("bar.foo", "foo")
	require.NoError(t, err)
	assert.Equal(t, []LineID{use}, res.IDs)
	assert.False(t, res.Fallback)
}

func TestGraph_PrototypeBypassesQualification(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	id := g.UpdateTokens(f, 0, true, []Token{{Kind: Definition, Text: "proto", Prefix: ProtoSentinel}})
	assert.Equal(t, []LineID{id}, defsOf(t, g, "proto"))

	scanned := g.AddOrUpdateLine("ExitProcess PROTO :DWORD", f, 1, true)
	assert.Equal(t, []LineID{scanned}, defsOf(t, g, "ExitProcess"))
}

func TestGraph_TwoFilesDefineSameLabel(t *testing.T) {
	t.Parallel()
	g, a := newTestGraph(t)
	b := g.RegisterFile("/src/b.asm")
	assert.Equal(t, a, g.RegisterFile("/src/a.asm"))

	idA := g.AddOrUpdateLine("start:", a, 0, true)
	idB := g.AddOrUpdateLine("start:", b, 0, false)

	assert.Equal(t, []LineID{idA, idB}, defsOf(t, g, "start"))

	redefs, err := g.Redefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, redefs, 1)
	assert.Equal(t, Redefinition{Name: "start", Lines: []LineID{idA, idB}}, redefs[0])
}

func TestGraph_UsageFallsBackToBareName(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	inProc := g.UpdateTokens(f, 3, true, []Token{{Kind: Usage, Text: "helper", Prefix: "main"}})

	res, err := g.LabelUsagesDetailed("helper", "helper")
	require.NoError(t, err)
	assert.Equal(t, []LineID{inProc}, res.IDs)
	assert.True(t, res.Fallback)

	global := g.AddOrUpdateLine("call helper", f, 9, true)
	res, err = g.LabelUsagesDetailed("helper", "helper")
	require.NoError(t, err)
	assert.Equal(t, []LineID{global}, res.IDs)
	assert.False(t, res.Fallback)

	assert.Empty(t, usesOf(t, g, "nothing", "nothing"))
}

// =============================================================================
// Shifting and files
// =============================================================================

func TestGraph_ShiftLinesRoundTrip(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)
	other := g.RegisterFile("/src/other.asm")

	var ids []LineID
	for i := 0; i < 6; i++ {
		ids = append(ids, g.AddOrUpdateLine(fmt.Sprintf("lbl%d:", i), f, i, true))
	}
	otherID := g.AddOrUpdateLine("z:", other, 3, false)

	g.ShiftLines(f, 2, 1)
	for i, id := range ids {
		want := i
		if i >= 2 {
			want = i + 1
		}
		assert.Equal(t, want, g.GetLineNumber(id))
	}
	assert.Equal(t, 3, g.GetLineNumber(otherID))

	g.ShiftLines(f, 2, -1)
	for i, id := range ids {
		assert.Equal(t, i, g.GetLineNumber(id))
	}

	id, ok := g.LineAt(f, 4)
	require.True(t, ok)
	assert.Equal(t, ids[4], id)
}

func TestGraph_ShiftOntoTrackedLineDropsIt(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	stale := g.AddOrUpdateLine("old:", f, 1, true)
	moved := g.AddOrUpdateLine("new:", f, 2, true)

	g.ShiftLines(f, 2, -1)
	_, ok := g.Line(stale)
	assert.False(t, ok)
	assert.Empty(t, defsOf(t, g, "old"))
	assert.Equal(t, 1, g.GetLineNumber(moved))
}

func TestGraph_RemoveFile(t *testing.T) {
	t.Parallel()
	g, a := newTestGraph(t)
	b := g.RegisterFile("/src/inc.inc")

	g.AddOrUpdateLine("x:", a, 0, true)
	g.AddOrUpdateLine("x:", b, 0, false)
	g.AddOrUpdateLine("jmp x", b, 1, false)

	g.RemoveFile(b)
	assert.Len(t, defsOf(t, g, "x"), 1)
	assert.Empty(t, usesOf(t, g, "x", "x"))
	_, ok := g.Filename(b)
	assert.False(t, ok)
	_, ok = g.FileByPath("/src/inc.inc")
	assert.False(t, ok)
}

// =============================================================================
// Enabled state
// =============================================================================

func TestGraph_DisabledQueriesReportDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, f := newTestGraph(t)
	g.AddOrUpdateLine("x: jmp y", f, 0, true)

	g.SetEnabled(false)
	assert.False(t, g.Enabled())

	_, err := g.GetLabelDefLinenumbers("x")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = g.GetLabelUsages("y", "y")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = g.LabelUsagesDetailed("y", "y")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = g.Labels(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = g.Redefinitions(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = g.Undefined(ctx)
	assert.ErrorIs(t, err, ErrDisabled)

	g.SetEnabled(true)
	ids, err := g.GetLabelDefLinenumbers("missing")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestGraph_StartsDisabledWithOption(t *testing.T) {
	t.Parallel()
	g := NewGraph(WithEnabled(false), WithDialect(NASM))
	assert.False(t, g.Enabled())
	assert.Equal(t, NASM, g.Dialect())
}

// =============================================================================
// Accessors and listings
// =============================================================================

func TestGraph_AccessorsPanicOnUnknownID(t *testing.T) {
	t.Parallel()
	g, _ := newTestGraph(t)

	assert.PanicsWithValue(t, "labelgraph: unknown line id 99", func() { g.GetLineNumber(99) })
	assert.Panics(t, func() { g.GetFilename(99) })
	assert.Panics(t, func() { g.IsFromMainFile(99) })
}

func TestGraph_LabelsAndUndefined(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g, f := newTestGraph(t)

	g.AddOrUpdateLine("beta:", f, 0, true)
	g.AddOrUpdateLine("alpha: jmp gamma", f, 1, true)
	g.AddOrUpdateLine("jmp beta", f, 2, true)
	g.UpdateTokens(f, 3, true, []Token{{Kind: Usage, Text: "alpha", Prefix: "proc1"}})

	labels, err := g.Labels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, labels)

	undefined, err := g.Undefined(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, undefined)

	redefs, err := g.Redefinitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, redefs)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Labels(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGraph_RestoreLineAdvancesCounter(t *testing.T) {
	t.Parallel()
	g := NewGraph()
	g.RestoreFile(7, "/src/lib.asm")

	g.RestoreLine(LineEntry{ID: 41, FileID: 7, LineNumber: 3}, []string{"lib.entry"}, []LabelRef{{Qualified: "x", Bare: "x"}})
	assert.Equal(t, []LineID{41}, defsOf(t, g, "lib.entry"))
	assert.Equal(t, []LineID{41}, usesOf(t, g, "x", "x"))

	newFile := g.RegisterFile("/src/new.asm")
	assert.Equal(t, FileID(8), newFile)
	assert.Equal(t, LineID(42), g.AddOrUpdateLine("fresh:", newFile, 0, true))

	defs, uses, ok := g.LineLabels(41)
	require.True(t, ok)
	assert.Equal(t, []string{"lib.entry"}, defs)
	assert.Equal(t, []LabelRef{{Qualified: "x", Bare: "x"}}, uses)
}

func TestGraph_ConcurrentReadersDuringWrites(t *testing.T) {
	t.Parallel()
	g, f := newTestGraph(t)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				ids, err := g.GetLabelDefLinenumbers("spin")
				if err == nil {
					for _, id := range ids {
						g.Line(id)
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		g.AddOrUpdateLine("spin:", f, i%10, true)
		if i%3 == 0 {
			g.ShiftLines(f, 5, 1)
			g.ShiftLines(f, 6, -1)
		}
	}
	close(done)
	wg.Wait()

	assert.NotEmpty(t, defsOf(t, g, "spin"))
}
