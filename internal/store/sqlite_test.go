package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRecordAndCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordEvent(ctx, EventChartGenerated))
	require.NoError(t, repo.RecordEvent(ctx, EventChartGenerated))
	require.NoError(t, repo.RecordEvent(ctx, EventSessionExpired))

	n, err := repo.CountSince(ctx, EventChartGenerated, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = repo.CountSince(ctx, EventSessionExpired, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestCountSince_ExcludesOlderEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordEvent(ctx, EventConversationStarted))

	n, err := repo.CountSince(ctx, EventConversationStarted, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Ping(context.Background()))
}
