package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/journal"
)

func TestReplay_Text(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "replay", dir, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary:")
	assert.Contains(t, out, "1 run(s), 0 wipe(s)")
	assert.Contains(t, out, "Futures: 2")
	assert.Contains(t, out, "SUCCESS: 2")
	assert.Contains(t, out, markOK+" Journal replays deterministically")
}

func TestReplay_JSON(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "replay", dir, "--format", "json")
	require.NoError(t, err)

	var data ReplayResult
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, data.Deterministic)
	assert.Equal(t, uint64(31337), data.ChainID)
	assert.Equal(t, 1, data.Runs)
	assert.Equal(t, 2, data.Futures)
	assert.Equal(t, 2, data.Statuses["SUCCESS"])
	assert.Greater(t, data.Messages, 2)
}

func TestReplay_MissingDirectory(t *testing.T) {
	e := newEnv()
	_, err := e.run(t, "replay", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayAndVerify(t *testing.T) {
	msgs := []journal.Message{
		journal.RunStart{RunID: "r1", ChainID: 31337},
	}
	result := replayAndVerify(msgs, msgs)
	assert.True(t, result.Deterministic)
	assert.Equal(t, 1, result.Runs)
	assert.Equal(t, uint64(31337), result.ChainID)
	assert.Empty(t, result.Error)

	diverged := replayAndVerify(msgs, []journal.Message{journal.RunStart{RunID: "r2", ChainID: 31337}})
	assert.False(t, diverged.Deterministic)
}
