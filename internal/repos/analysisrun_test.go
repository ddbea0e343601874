package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/types"
)

func seedAnalysisRun(t *testing.T, gdb *gorm.DB, status string, createdAt time.Time, mutate func(*types.AnalysisRun)) *types.AnalysisRun {
	t.Helper()
	run := &types.AnalysisRun{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		MediaItemID: uuid.New(),
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if mutate != nil {
		mutate(run)
	}
	require.NoError(t, gdb.Create(run).Error)
	return run
}

func reloadRun(t *testing.T, gdb *gorm.DB, id uuid.UUID) *types.AnalysisRun {
	t.Helper()
	var run types.AnalysisRun
	require.NoError(t, gdb.First(&run, "id = ?", id).Error)
	return &run
}

func TestClaimNextRunnableClaimsOldestQueuedFirst(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewAnalysisRunRepo(gdb, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	older := seedAnalysisRun(t, gdb, "queued", now.Add(-2*time.Hour), nil)
	newer := seedAnalysisRun(t, gdb, "queued", now.Add(-1*time.Hour), nil)

	first, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, older.ID, first.ID)

	claimed := reloadRun(t, gdb, older.ID)
	require.Equal(t, "running", claimed.Status)
	require.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LockedAt)
	require.NotNil(t, claimed.HeartbeatAt)

	second, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, newer.ID, second.ID)

	third, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.Nil(t, third, "both claimed runs now have fresh heartbeats")
}

func TestClaimNextRunnableNeverReclaimsTerminalRuns(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewAnalysisRunRepo(gdb, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	seedAnalysisRun(t, gdb, "failed", now.Add(-2*time.Hour), func(r *types.AnalysisRun) {
		errAt := now.Add(-2 * time.Hour)
		r.Attempts = 1
		r.Error = "stage failed"
		r.LastErrorAt = &errAt
	})
	seedAnalysisRun(t, gdb, "succeeded", now.Add(-1*time.Hour), nil)

	run, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.Nil(t, run, "failed and succeeded runs wait for an explicit re-trigger")
}

func TestClaimNextRunnableReclaimsStaleRunning(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewAnalysisRunRepo(gdb, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	seedAnalysisRun(t, gdb, "running", now.Add(-30*time.Minute), func(r *types.AnalysisRun) {
		hb := now.Add(-1 * time.Minute)
		r.Attempts = 1
		r.HeartbeatAt = &hb
	})
	stale := seedAnalysisRun(t, gdb, "running", now.Add(-20*time.Minute), func(r *types.AnalysisRun) {
		hb := now.Add(-10 * time.Minute)
		r.Attempts = 1
		r.HeartbeatAt = &hb
	})

	run, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, stale.ID, run.ID, "only the run with a stale heartbeat is reclaimable")

	reclaimed := reloadRun(t, gdb, stale.ID)
	require.Equal(t, "running", reclaimed.Status)
	require.Equal(t, 2, reclaimed.Attempts)
	require.True(t, reclaimed.HeartbeatAt.After(now.Add(-time.Minute)))
}

func TestClaimNextRunnableHonorsAttemptsCap(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewAnalysisRunRepo(gdb, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	seedAnalysisRun(t, gdb, "queued", now.Add(-1*time.Hour), func(r *types.AnalysisRun) {
		r.Attempts = 3
	})

	run, err := repo.ClaimNextRunnable(ctx, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.Nil(t, run, "a run at the attempts cap is no longer runnable")
}

func TestHeartbeatTouchesOnlyRunningRuns(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewAnalysisRunRepo(gdb, newTestLogger(t))
	ctx := context.Background()
	now := time.Now()

	queued := seedAnalysisRun(t, gdb, "queued", now.Add(-1*time.Hour), nil)
	running := seedAnalysisRun(t, gdb, "running", now.Add(-1*time.Hour), func(r *types.AnalysisRun) {
		hb := now.Add(-1 * time.Hour)
		r.HeartbeatAt = &hb
	})

	require.NoError(t, repo.Heartbeat(ctx, nil, queued.ID))
	require.NoError(t, repo.Heartbeat(ctx, nil, running.ID))

	require.Nil(t, reloadRun(t, gdb, queued.ID).HeartbeatAt)
	require.True(t, reloadRun(t, gdb, running.ID).HeartbeatAt.After(now.Add(-time.Minute)))
}
