package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) *RunsRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	repo, err := NewRunsRepository(db)
	require.NoError(t, err)
	return repo
}

func TestRunsRepository_CreateAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &SyncRun{
		Channel:    "@course_channel",
		ChannelID:  100,
		StartedAt:  time.Now().Add(-2 * time.Hour),
		FinishedAt: time.Now().Add(-1 * time.Hour),
		Eligible:   10,
		Downloaded: 8,
		Skipped:    1,
		Failed:     1,
	}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEqual(t, first.ID.String(), "00000000-0000-0000-0000-000000000000", "id should be assigned")

	second := &SyncRun{
		Channel:   "@course_channel",
		ChannelID: 100,
		StartedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, second))

	runs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest run first")
}

func TestRunsRepository_ByChannel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &SyncRun{Channel: "@a", StartedAt: time.Now()}))
	require.NoError(t, repo.Create(ctx, &SyncRun{Channel: "@b", StartedAt: time.Now()}))
	require.NoError(t, repo.Create(ctx, &SyncRun{Channel: "@a", StartedAt: time.Now()}))

	runs, err := repo.ByChannel(ctx, "@a", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "@a", r.Channel)
	}
}
