package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/journal"
)

func TestRecordRead_PreservesOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	msgs := createTestMessages()

	for _, m := range msgs {
		require.NoError(t, s.Record(ctx, m))
	}

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, encodeAll(t, msgs...), encodeAll(t, got...))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(msgs), n)
}

func TestRead_Empty(t *testing.T) {
	got, err := createTestStore(t).Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMessagesForFuture(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	msgs := createTestMessages()
	for _, m := range msgs {
		require.NoError(t, s.Record(ctx, m))
	}

	got, err := s.MessagesForFuture(ctx, "Mod:Token")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, journal.TypeDeploymentInitialize, got[0].Type())
	assert.Equal(t, journal.TypeNetworkInteractionRequest, got[1].Type())
	assert.Equal(t, journal.TypeTransactionPrepareSend, got[2].Type())
}

func TestRecord_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	ctx := context.Background()
	msgs := createTestMessages()

	s, err := Open(path)
	require.NoError(t, err)
	for _, m := range msgs[:2] {
		require.NoError(t, s.Record(ctx, m))
	}
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, m := range msgs[2:] {
		require.NoError(t, s.Record(ctx, m))
	}

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, encodeAll(t, msgs...), encodeAll(t, got...))
}

func TestRead_CorruptPayload(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO journal_messages (type, payload) VALUES ('RUN_START', '{"type":')`)
	require.NoError(t, err)

	_, err = s.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal seq 1")
}
