package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

func TestJobRetentionRunOnceUsesTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := NewMemoryJobStore()
	require.NoError(t, store.Create(ctx, models.GradingJob{ID: "expired", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Create(ctx, models.GradingJob{ID: "recent", CreatedAt: now.Add(-10 * time.Minute)}))

	retention := NewJobRetention(store, time.Hour, "", zerolog.Nop())
	retention.now = func() time.Time { return now }

	removed, err := retention.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Get(ctx, "recent")
	require.NoError(t, err)
}

func TestJobRetentionRejectsInvalidSchedule(t *testing.T) {
	retention := NewJobRetention(NewMemoryJobStore(), time.Hour, "not a schedule", zerolog.Nop())
	require.Error(t, retention.Start())
}

func TestJobRetentionStartStop(t *testing.T) {
	retention := NewJobRetention(NewMemoryJobStore(), time.Hour, "@every 1h", zerolog.Nop())
	require.NoError(t, retention.Start())
	retention.Stop()
}
