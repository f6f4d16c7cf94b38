package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileJournalRecordAndRead(t *testing.T) {
	ctx := context.Background()
	j := NewFileJournal(filepath.Join(t.TempDir(), FileName))

	empty, err := j.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, m := range sampleMessages() {
		require.NoError(t, j.Record(ctx, m))
	}

	got, err := j.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, encodeAll(t, sampleMessages()...), encodeAll(t, got...))
}

func TestFileJournalSyncsDirectoryOnFirstRecord(t *testing.T) {
	ctx := context.Background()
	j := NewFileJournal(filepath.Join(t.TempDir(), FileName))
	assert.False(t, j.dirSynced)

	require.NoError(t, j.Record(ctx, sampleMessages()[0]))
	assert.True(t, j.dirSynced)
	assert.FileExists(t, j.Path())
}

func TestFileJournalRecordFailsWithoutDirectory(t *testing.T) {
	j := NewFileJournal(filepath.Join(t.TempDir(), "missing", FileName))
	assert.Error(t, j.Record(context.Background(), sampleMessages()[0]))
	assert.False(t, j.dirSynced)
}

func TestSyncDir(t *testing.T) {
	assert.NoError(t, SyncDir(t.TempDir()))
	assert.Error(t, SyncDir(filepath.Join(t.TempDir(), "missing")))
}

func TestFileJournalSkipsTornFinalLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)
	j := NewFileJournal(path)
	require.NoError(t, j.Record(ctx, RunStart{RunID: "run-1", ChainID: 1}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"WIPE_APPLY","futu`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := j.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Message{RunStart{RunID: "run-1", ChainID: 1}}, got)

	// The next record replaces the torn tail instead of extending it.
	require.NoError(t, j.Record(ctx, WipeApply{FutureID: "M:A"}))
	got, err = j.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Message{RunStart{RunID: "run-1", ChainID: 1}, WipeApply{FutureID: "M:A"}}, got)
}

func TestFileJournalRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{\"type\":\"RUN_START\",\"chainId\":1}\nnot json\n"), 0o644))

	_, err := NewFileJournal(path).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal line 2")
}

func TestMemoryJournalReturnsCopies(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	require.NoError(t, j.Record(ctx, RunStart{ChainID: 1}))

	first, err := j.Read(ctx)
	require.NoError(t, err)
	first[0] = WipeApply{FutureID: "x"}

	second, err := j.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Message{RunStart{ChainID: 1}}, second)
}
