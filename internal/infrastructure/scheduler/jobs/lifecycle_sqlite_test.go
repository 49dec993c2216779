package jobs

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/sqlite"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// cancellingSender cancels the tick right after the relay accepted the message.
type cancellingSender struct {
	cancel context.CancelFunc
	sends  atomic.Int32
}

func (s *cancellingSender) Send(context.Context, notification.Message) (notification.DeliveryResult, error) {
	s.sends.Add(1)
	s.cancel()
	return notification.DeliveryResult{Success: true, Attempts: 1}, nil
}

func TestCancelledTick_StillMarksAcceptedMessage(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "lifecycle.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })
	repo := sqlite.NewEnrollmentRepository(db)

	cat, err := program.NewCatalog(program.Builtin()...)
	require.NoError(t, err)
	p, err := cat.Get("web-development")
	require.NoError(t, err)

	clock := timeutil.NewFakeClock(t0)
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:            "e-1",
		Name:          "Asha",
		Contact:       "asha@example.com",
		ProgramID:     p.ID,
		Payment:       enrollment.PaymentPaid,
		DurationUnits: p.DurationUnits,
		TotalStages:   p.TotalStages(4),
		TotalUnits:    p.TotalUnits(),
		Now:           clock.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), e))

	sender := &cancellingSender{}
	job, err := NewLifecycleJob(enrollment.KindDetails, Dependencies{
		Repo:    repo,
		Sender:  sender,
		Catalog: cat,
		Brand:   notification.DefaultBrand(),
		Clock:   clock,
		Logger:  logger.Discard(),
	}, DefaultConfig())
	require.NoError(t, err)

	clock.Set(t0.Add(11 * time.Hour))
	for tick := 0; tick < 2; tick++ {
		ctx, cancel := context.WithCancel(context.Background())
		sender.cancel = cancel
		_ = job.Run(ctx)
		cancel()
	}

	assert.Equal(t, int32(1), sender.sends.Load(), "accepted message is not sent again")
	got, err := repo.GetByID(context.Background(), "e-1")
	require.NoError(t, err)
	assert.True(t, got.Status.DetailsSent)
}
