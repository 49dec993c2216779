// Package storetest holds the behaviour every enrollment.Repository must share.
// Each store package runs it against its own backend.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

// Factory returns a fresh, empty repository.
type Factory func(t *testing.T) enrollment.Repository

// T0 is the reference registration time used by the contract.
var T0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewEnrollment builds a valid enrollment for the contract.
func NewEnrollment(t *testing.T, id, contact string, payment enrollment.PaymentState, at time.Time) *enrollment.Enrollment {
	t.Helper()
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:            id,
		Name:          "Student " + id,
		Contact:       contact,
		ProgramID:     "web-development",
		Payment:       payment,
		DurationUnits: 1,
		TotalStages:   4,
		TotalUnits:    3,
		Now:           at,
	})
	require.NoError(t, err)
	return e
}

// Run executes the repository contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateRejectsDuplicateIdentity", func(t *testing.T) { testCreateDuplicate(t, factory(t)) })
	t.Run("FindDueDetailsThenMarkSent", func(t *testing.T) { testDetailsLifecycle(t, factory(t)) })
	t.Run("FindDueOrdersByInsertion", func(t *testing.T) { testOrdering(t, factory(t)) })
	t.Run("MarkSentIsCompareAndSet", func(t *testing.T) { testConcurrentMark(t, factory(t)) })
	t.Run("WeeklyStageAdvances", func(t *testing.T) { testWeekly(t, factory(t)) })
	t.Run("CompletionGate", func(t *testing.T) { testCompletion(t, factory(t)) })
	t.Run("PaymentTransitions", func(t *testing.T) { testPayment(t, factory(t)) })
	t.Run("CompletionRecordsAndProgress", func(t *testing.T) { testProgress(t, factory(t)) })
	t.Run("PurgeOlderThan", func(t *testing.T) { testPurge(t, factory(t)) })
}

func testCreateDuplicate(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)))

	err := repo.Create(ctx, NewEnrollment(t, "e-2", "A@Example.com", enrollment.PaymentPending, T0))
	assert.ErrorIs(t, err, shared.ErrEnrollmentAlreadyExists)
	assert.True(t, shared.IsAlreadyExists(err))

	got, err := repo.GetByIdentity(ctx, "a@example.com", "web-development")
	require.NoError(t, err)
	assert.Equal(t, "e-1", got.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func testDetailsLifecycle(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	policy := enrollment.DefaultDuePolicy()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)))
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-2", "b@example.com", enrollment.PaymentPending, T0)))

	due, err := repo.FindDue(ctx, enrollment.KindDetails, T0.Add(9*time.Hour), policy)
	require.NoError(t, err)
	assert.Empty(t, due)

	now := T0.Add(11 * time.Hour)
	due, err = repo.FindDue(ctx, enrollment.KindDetails, now, policy)
	require.NoError(t, err)
	require.Len(t, due, 1, "pending payment is never due")
	assert.Equal(t, "e-1", due[0].ID)

	require.NoError(t, repo.MarkSent(ctx, enrollment.MarkFor(due[0], enrollment.KindDetails, now)))
	assert.ErrorIs(t, repo.MarkSent(ctx, enrollment.MarkFor(due[0], enrollment.KindDetails, now)), shared.ErrAlreadyMarked)

	due, err = repo.FindDue(ctx, enrollment.KindDetails, now.Add(time.Hour), policy)
	require.NoError(t, err)
	assert.Empty(t, due)

	got, err := repo.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, got.Status.DetailsSent)
	assert.False(t, got.Status.OfferLetterSent)
}

func testOrdering(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	ids := []string{"e-c", "e-a", "e-b"}
	for i, id := range ids {
		require.NoError(t, repo.Create(ctx, NewEnrollment(t, id, id+"@example.com", enrollment.PaymentPaid, T0.Add(time.Duration(i)*time.Second))))
	}

	due, err := repo.FindDue(ctx, enrollment.KindOfferLetter, T0.Add(24*time.Hour), enrollment.DefaultDuePolicy())
	require.NoError(t, err)
	require.Len(t, due, 3)
	for i, e := range due {
		assert.Equal(t, ids[i], e.ID)
	}
}

func testConcurrentMark(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)))
	mark := enrollment.SentMark{EnrollmentID: "e-1", Kind: enrollment.KindOfferLetter, SentAt: T0.Add(11 * time.Hour)}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.MarkSent(ctx, mark); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, shared.ErrAlreadyMarked)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testWeekly(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	policy := enrollment.DefaultDuePolicy()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)))

	now := T0.Add(policy.StageGap)
	for stage := 1; stage <= 4; stage++ {
		due, err := repo.FindDue(ctx, enrollment.KindWeeklyStage, now.Add(-time.Second), policy)
		require.NoError(t, err)
		assert.Empty(t, due, "stage %d not yet due", stage)

		due, err = repo.FindDue(ctx, enrollment.KindWeeklyStage, now, policy)
		require.NoError(t, err)
		require.Len(t, due, 1, "stage %d", stage)
		assert.Equal(t, stage, due[0].Status.StageCounter)

		require.NoError(t, repo.MarkSent(ctx, enrollment.MarkFor(due[0], enrollment.KindWeeklyStage, now)))
		assert.ErrorIs(t, repo.MarkSent(ctx, enrollment.MarkFor(due[0], enrollment.KindWeeklyStage, now)), shared.ErrAlreadyMarked)
		now = now.Add(policy.StageGap)
	}

	due, err := repo.FindDue(ctx, enrollment.KindWeeklyStage, now.Add(52*7*24*time.Hour), policy)
	require.NoError(t, err)
	assert.Empty(t, due, "terminal after the last stage")

	got, err := repo.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Status.StageCounter)
	require.NotNil(t, got.Status.LastStageSentAt)
	assert.True(t, got.Status.LastStageSentAt.Equal(T0.Add(4*policy.StageGap)))
}

func testCompletion(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	policy := enrollment.DefaultDuePolicy()
	e := NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)
	e.DurationUnits = 2
	require.NoError(t, repo.Create(ctx, e))

	due, err := repo.FindDue(ctx, enrollment.KindCompletion, T0.Add(2*policy.UnitLength-time.Minute), policy)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.FindDue(ctx, enrollment.KindCompletion, T0.Add(2*policy.UnitLength), policy)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func testPayment(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPending, T0)))

	paidAt := T0.Add(3 * time.Hour)
	got, err := repo.UpdatePayment(ctx, "e-1", enrollment.PaymentPaid, paidAt)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentPaid, got.Payment)
	assert.True(t, got.EnrolledAt.Equal(paidAt))

	_, err = repo.UpdatePayment(ctx, "e-1", enrollment.PaymentFailed, paidAt)
	assert.ErrorIs(t, err, shared.ErrInvalidPaymentTransition)

	_, err = repo.UpdatePayment(ctx, "missing", enrollment.PaymentPaid, paidAt)
	assert.True(t, shared.IsNotFound(err))
}

func testProgress(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "e-1", "a@example.com", enrollment.PaymentPaid, T0)))
	rec := enrollment.CompletionRecord{EnrollmentID: "e-1", UnitID: "week-1", CompletedAt: T0}

	created, err := repo.AddCompletion(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	progress, err := repo.RecomputeProgress(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 33, progress)

	created, err = repo.AddCompletion(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created, "re-marking is a no-op")
	progress, err = repo.RecomputeProgress(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 33, progress)

	_, err = repo.AddCompletion(ctx, enrollment.CompletionRecord{EnrollmentID: "e-1", UnitID: "week-2", CompletedAt: T0})
	require.NoError(t, err)
	progress, err = repo.RecomputeProgress(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 66, progress)

	removed, err := repo.RemoveCompletion(ctx, "e-1", "week-2")
	require.NoError(t, err)
	assert.True(t, removed)
	progress, err = repo.RecomputeProgress(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 33, progress)

	removed, err = repo.RemoveCompletion(ctx, "e-1", "week-2")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := repo.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, 33, got.Progress)
}

func testPurge(t *testing.T, repo enrollment.Repository) {
	ctx := context.Background()
	policy := enrollment.DefaultDuePolicy()
	now := T0.Add(90 * 24 * time.Hour)

	old := NewEnrollment(t, "old", "old@example.com", enrollment.PaymentPaid, now.Add(-61*24*time.Hour))
	fresh := NewEnrollment(t, "fresh", "fresh@example.com", enrollment.PaymentPaid, now.Add(-59*24*time.Hour))
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))
	_, err := repo.AddCompletion(ctx, enrollment.CompletionRecord{EnrollmentID: "old", UnitID: "week-1", CompletedAt: now})
	require.NoError(t, err)

	due, err := repo.FindDue(ctx, enrollment.KindRetention, now, policy)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "old", due[0].ID)

	n, err := repo.PurgeOlderThan(ctx, now.Add(-policy.RetentionAge))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.GetByID(ctx, "old")
	assert.True(t, shared.IsNotFound(err))
	_, err = repo.GetByID(ctx, "fresh")
	assert.NoError(t, err)

	require.NoError(t, repo.Create(ctx, NewEnrollment(t, "again", "old@example.com", enrollment.PaymentPending, now)),
		"identity is free again after purge")
}
