package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
)

func TestRetention_DeletesPastAge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	day := 24 * time.Hour

	h.clock.Set(t0)
	h.enroll(t, "old", "old@example.com", enrollment.PaymentPending)
	h.clock.Set(t0.Add(2 * day))
	h.enroll(t, "fresh", "fresh@example.com", enrollment.PaymentPaid)

	_, err := h.repo.AddCompletion(ctx, enrollment.CompletionRecord{EnrollmentID: "old", UnitID: "week-1", CompletedAt: t0})
	require.NoError(t, err)

	job, err := NewRetentionJob(h.repo, 60*day, h.clock, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "retention-cleanup", job.Name())

	h.clock.Set(t0.Add(61 * day))
	require.NoError(t, job.Run(ctx))

	assert.Equal(t, 1, job.LastRunStats().Removed)
	_, err = h.repo.GetByID(ctx, "old")
	assert.True(t, shared.IsNotFound(err))
	assert.Zero(t, h.repo.CompletionCount("old"))

	_, err = h.repo.GetByID(ctx, "fresh")
	assert.NoError(t, err, "created 59 days ago is retained")
}

func TestRetention_Validation(t *testing.T) {
	_, err := NewRetentionJob(nil, time.Hour, nil, nil)
	assert.ErrorIs(t, err, shared.ErrMisconfigured)

	h := newHarness(t)
	_, err = NewRetentionJob(h.repo, 0, nil, nil)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}
