package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Text(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "status", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Chain: 31337")
	assert.Contains(t, out, markOK+" Counter:Counter 0x")
	assert.Contains(t, out, markOK+" Counter:inc\n")
	assert.Contains(t, out, "SUCCESS: 2")
}

func TestStatus_JSON(t *testing.T) {
	e := newEnv()
	dir := deployCounter(t, e)

	out, err := e.run(t, "status", dir, "--format", "json")
	require.NoError(t, err)

	var data StatusOutput
	decodeResponse(t, out, &data)
	assert.Equal(t, uint64(31337), data.ChainID)
	require.Len(t, data.Futures, 2)
	assert.Equal(t, "Counter:Counter", data.Futures[0].ID)
	assert.Equal(t, "SUCCESS", data.Futures[0].Status)
	assert.NotNil(t, data.Futures[0].Address)
	assert.Equal(t, "Counter:inc", data.Futures[1].ID)
	assert.Nil(t, data.Futures[1].Address)
	assert.Equal(t, map[string]int{"SUCCESS": 2}, data.Counts)
}

func TestStatus_Uninitialized(t *testing.T) {
	e := newEnv()
	out, err := e.run(t, "status", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "UNINITIALIZED_DEPLOYMENT")
}
