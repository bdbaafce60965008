package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_LinesByFile_ReturnsBufferedLines(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// Insert a real file into the database (simulates Phase A of parallel indexing).
	f := insertTestFile(t, s, "/main.asm")
	batch := NewBatchedStore(s)

	id1, err := batch.InsertLine(&Line{FileID: f.ID, LineNumber: 0})
	require.NoError(t, err)
	assert.Negative(t, id1, "batched IDs should be negative")
	id2, err := batch.InsertLine(&Line{FileID: f.ID, LineNumber: 5})
	require.NoError(t, err)
	assert.Negative(t, id2)
	assert.NotEqual(t, id1, id2)

	lines, err := batch.LinesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Negative(t, l.ID, "buffered lines should have negative IDs")
	}

	// Nothing reached SQLite yet.
	dbLines, err := s.LinesByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, dbLines)
}

func TestCommitBatch_RemapsLineIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.asm")
	batch := NewBatchedStore(s)

	defLine, err := batch.InsertLine(&Line{FileID: f.ID, LineNumber: 0, IsMain: true})
	require.NoError(t, err)
	_, err = batch.InsertLabelDef(&LabelDef{LineID: defLine, Name: "start"})
	require.NoError(t, err)
	useLine, err := batch.InsertLine(&Line{FileID: f.ID, LineNumber: 3, IsMain: true})
	require.NoError(t, err)
	_, err = batch.InsertLabelUsage(&LabelUsage{LineID: useLine, Name: "start", Bare: "start"})
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, batch.DefinedNames())

	require.NoError(t, s.CommitBatch(batch))

	defs, err := s.DefinitionSites("start")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Positive(t, defs[0].LineID)
	assert.Equal(t, 0, defs[0].Line)

	uses, _, err := s.UsageSites("start", "start")
	require.NoError(t, err)
	require.Len(t, uses, 1)
	assert.Equal(t, 3, uses[0].Line)
	assert.NotEqual(t, defs[0].LineID, uses[0].LineID)
}

func TestCommitBatch_UnknownFakeID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/main.asm")
	batch := NewBatchedStore(s)
	batch.Defs = append(batch.Defs, LabelDef{ID: -1, LineID: -42, Name: "ghost"})

	err := s.CommitBatch(batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	// The failed transaction left nothing behind.
	defs, err := s.DefinitionSites("ghost")
	require.NoError(t, err)
	assert.Empty(t, defs)
}
