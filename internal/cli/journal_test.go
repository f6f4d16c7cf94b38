package cli

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/journal"
)

func TestJournal_Text(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "journal", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s), 2 transaction(s)")
	assert.Contains(t, out, "[1] RUN_START\n")
	assert.Contains(t, out, "DEPLOYMENT_EXECUTION_STATE_INITIALIZE Counter:Counter")
	assert.Contains(t, out, "CALL_EXECUTION_STATE_COMPLETE Counter:inc")
	assert.NotContains(t, out, `"runId"`)

	verbose, err := e.run(t, "journal", dir, "-v")
	require.NoError(t, err)
	assert.Contains(t, verbose, `"runId"`)
}

func TestJournal_Filters(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "journal", dir, "--future", "Counter:inc", "--format", "json")
	require.NoError(t, err)
	var data JournalResult
	decodeResponse(t, out, &data)
	require.NotEmpty(t, data.Entries)
	for _, entry := range data.Entries {
		assert.Equal(t, "Counter:inc", entry.FutureID)
	}
	assert.Equal(t, len(data.Entries), data.Stats.Shown)
	assert.Greater(t, data.Stats.TotalMessages, data.Stats.Shown)

	out, err = e.run(t, "journal", dir, "--type", "TRANSACTION_SEND", "--format", "json")
	require.NoError(t, err)
	data = JournalResult{}
	decodeResponse(t, out, &data)
	require.Len(t, data.Entries, 2)
	var sent struct {
		Hash common.Hash `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(data.Entries[0].Message, &sent))
	assert.NotEqual(t, common.Hash{}, sent.Hash)
}

func TestJournal_NoMatches(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "journal", dir, "--future", "Other:Thing")
	require.NoError(t, err)
	assert.Contains(t, out, "(no messages)")
}

func TestBuildJournal(t *testing.T) {
	msgs := []journal.Message{
		journal.RunStart{RunID: "r1", ChainID: 31337},
		journal.WipeApply{FutureID: "M:C"},
		journal.RunStart{RunID: "r2", ChainID: 31337},
	}

	result, err := buildJournal(msgs, "", "RUN_START")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.TotalMessages)
	assert.Equal(t, 2, result.Stats.Runs)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, 1, result.Entries[0].Seq)
	assert.Equal(t, 3, result.Entries[1].Seq)

	result, err = buildJournal(msgs, "M:C", "")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "WIPE_APPLY", result.Entries[0].Type)
	assert.JSONEq(t, `{"type":"WIPE_APPLY","futureId":"M:C"}`, string(result.Entries[0].Message))
}
