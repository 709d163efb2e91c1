package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robowatch/crawler/internal/crawl"
)

func TestTargetStoreLifecycle(t *testing.T) {
	s := NewTargetStore()
	ctx := context.Background()

	created, err := s.CreateTarget(ctx, crawl.Target{
		ID:             "t1",
		Domain:         "robotics.example.com",
		CronExpression: "* * * * *",
		Enabled:        true,
		CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := s.GetTarget(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "robotics.example.com", got.Domain)

	require.NoError(t, s.SetEnabled(ctx, created.ID, false))
	got, err = s.GetTarget(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)

	stamp := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchLastCrawled(ctx, created.ID, stamp))
	got, err = s.GetTarget(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastCrawled)
	require.Equal(t, stamp, *got.LastCrawled)

	require.NoError(t, s.DeleteTarget(ctx, created.ID))
	_, err = s.GetTarget(ctx, created.ID)
	require.ErrorIs(t, err, crawl.ErrTargetNotFound)
}

func TestTargetStoreNotFound(t *testing.T) {
	s := NewTargetStore()
	ctx := context.Background()

	require.ErrorIs(t, s.SetEnabled(ctx, "ghost", true), crawl.ErrTargetNotFound)
	require.ErrorIs(t, s.DeleteTarget(ctx, "ghost"), crawl.ErrTargetNotFound)
	_, err := s.UpdateTarget(ctx, crawl.Target{ID: "ghost"})
	require.ErrorIs(t, err, crawl.ErrTargetNotFound)
}

func TestTargetStoreListDue(t *testing.T) {
	s := NewTargetStore()
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mustCreate := func(id, cronExpr string, enabled bool) {
		_, err := s.CreateTarget(ctx, crawl.Target{
			ID:             id,
			Domain:         "robotics.example.com",
			CronExpression: cronExpr,
			Enabled:        enabled,
			CreatedAt:      created,
		})
		require.NoError(t, err)
	}
	mustCreate("minutely", "* * * * *", true)
	mustCreate("weekly", "0 0 * * 0", true)
	mustCreate("off", "* * * * *", false)

	due, err := s.ListDue(ctx, created.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "minutely", due[0].ID)
}

func TestJobStorePagination(t *testing.T) {
	s := NewJobStore()
	ctx := context.Background()

	for _, id := range []string{"j1", "j2", "j3", "j4"} {
		require.NoError(t, s.CreateJob(ctx, crawl.Job{ID: id, Status: crawl.JobStatusCompleted}))
	}
	require.NoError(t, s.CreateJob(ctx, crawl.Job{ID: "j5", Status: crawl.JobStatusFailed}))

	rows, total, err := s.ListJobs(ctx, crawl.JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, rows, 2)
	require.Equal(t, "j5", rows[0].ID, "newest first")

	rows, total, err = s.ListJobs(ctx, crawl.JobFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, rows, 1)
	require.Equal(t, "j1", rows[0].ID)

	rows, total, err = s.ListJobs(ctx, crawl.JobFilter{Status: crawl.JobStatusFailed})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "j5", rows[0].ID)
}

func TestJobStoreUpdateUnknownJob(t *testing.T) {
	s := NewJobStore()
	err := s.UpdateJob(context.Background(), crawl.Job{ID: "ghost"})
	require.ErrorIs(t, err, crawl.ErrJobNotFound)
}

func TestErrorStoreFilterAndStats(t *testing.T) {
	s := NewErrorStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := func(id, jobID string, kind crawl.ErrorKind, at time.Time) {
		require.NoError(t, s.RecordError(ctx, crawl.JobError{
			ID: id, JobID: jobID, Kind: kind, URL: "https://robotics.example.com/x", OccurredAt: at,
		}))
	}
	record("e1", "j1", crawl.ErrorKindNetwork, base.Add(-48*time.Hour))
	record("e2", "j1", crawl.ErrorKindTimeout, base.Add(-time.Hour))
	record("e3", "j2", crawl.ErrorKindNetwork, base)

	rows, total, err := s.ListErrors(ctx, crawl.ErrorFilter{JobID: "j1"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, rows, 2)

	rows, total, err = s.ListErrors(ctx, crawl.ErrorFilter{Kind: crawl.ErrorKindNetwork})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, rows, 2)

	stats, err := s.Stats(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.ByKind[crawl.ErrorKindNetwork])
	require.Equal(t, 1, stats.ByKind[crawl.ErrorKindTimeout])
	require.Equal(t, 2, stats.Recent)
}

func TestItemStoreDuplicateDetection(t *testing.T) {
	s := NewItemStore()
	ctx := context.Background()

	id, err := s.InsertItem(ctx, crawl.Item{URL: "https://a.example.com/x", ContentHash: "abc123"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.InsertItem(ctx, crawl.Item{URL: "https://b.example.com/x", ContentHash: "abc123"})
	var dup *crawl.DuplicateError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, id, dup.ExistingID)

	found, err := s.FindIDByHash(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, id, found)

	missing, err := s.FindIDByHash(ctx, "nope")
	require.NoError(t, err)
	require.Empty(t, missing)
}
