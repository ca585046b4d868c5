package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michalmalinowski87/photo-sub008/internal/scheduler"
)

const (
	testTarget     = "account-deletion"
	testDeadLetter = "account-deletion-dlq"
)

func TestInMemoryScheduler_CreateReplacesExisting(t *testing.T) {
	s := scheduler.NewInMemoryScheduler()
	ctx := context.Background()
	fireAt := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)

	first, err := s.CreateJob(ctx, "acc_1", fireAt, testTarget, testDeadLetter)
	require.NoError(t, err)
	second, err := s.CreateJob(ctx, "acc_1", fireAt.Add(time.Hour), testTarget, testDeadLetter)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, s.Len())

	job, ok := s.Get("acc_1")
	require.True(t, ok)
	assert.Equal(t, second, job.ID)
	assert.Equal(t, fireAt.Add(time.Hour), job.FireAt)
	assert.Equal(t, testDeadLetter, job.DeadLetterTarget)
}

func TestInMemoryScheduler_CreateValidates(t *testing.T) {
	s := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "", time.Now(), testTarget, "")
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)

	_, err = s.CreateJob(ctx, "acc_1", time.Time{}, testTarget, "")
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)

	_, err = s.CreateJob(ctx, "acc_1", time.Now(), "", "")
	assert.ErrorIs(t, err, scheduler.ErrInvalidJob)
}

func TestInMemoryScheduler_Cancel(t *testing.T) {
	s := scheduler.NewInMemoryScheduler()
	ctx := context.Background()

	assert.ErrorIs(t, s.CancelJob(ctx, "acc_1"), scheduler.ErrJobNotFound)

	_, err := s.CreateJob(ctx, "acc_1", time.Now().Add(time.Hour), testTarget, testDeadLetter)
	require.NoError(t, err)

	require.NoError(t, s.CancelJob(ctx, "acc_1"))
	assert.ErrorIs(t, s.CancelJob(ctx, "acc_1"), scheduler.ErrJobNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestInMemoryScheduler_ClaimDue(t *testing.T) {
	s := scheduler.NewInMemoryScheduler()
	ctx := context.Background()
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateJob(ctx, "acc_late", now.Add(-time.Minute), testTarget, testDeadLetter)
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, "acc_early", now.Add(-time.Hour), testTarget, testDeadLetter)
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, "acc_exact", now, testTarget, testDeadLetter)
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, "acc_future", now.Add(time.Second), testTarget, testDeadLetter)
	require.NoError(t, err)

	jobs, err := s.ClaimDue(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "acc_early", jobs[0].AccountID)
	assert.Equal(t, "acc_late", jobs[1].AccountID)

	jobs, err = s.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "acc_exact", jobs[0].AccountID)

	// Claimed jobs are gone, the future one stays
	jobs, err = s.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Get("acc_future")
	assert.True(t, ok)
}

func TestInMemoryScheduler_RequeueKeepsNewerJob(t *testing.T) {
	s := scheduler.NewInMemoryScheduler()
	ctx := context.Background()
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateJob(ctx, "acc_1", now, testTarget, testDeadLetter)
	require.NoError(t, err)
	claimed, err := s.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	stored, err := s.Requeue(ctx, claimed[0])
	require.NoError(t, err)
	assert.True(t, stored)
	job, ok := s.Get("acc_1")
	require.True(t, ok)
	assert.Equal(t, claimed[0].ID, job.ID)

	claimed, err = s.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	newer, err := s.CreateJob(ctx, "acc_1", now.Add(72*time.Hour), testTarget, testDeadLetter)
	require.NoError(t, err)

	stored, err = s.Requeue(ctx, claimed[0])
	require.NoError(t, err)
	assert.False(t, stored)
	job, _ = s.Get("acc_1")
	assert.Equal(t, newer, job.ID)
}
