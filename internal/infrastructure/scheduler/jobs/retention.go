package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RETENTION CLEANUP JOB
// ══════════════════════════════════════════════════════════════════════════════

// RetentionStats summarizes one cleanup run.
type RetentionStats struct {
	StartedAt time.Time
	Cutoff    time.Time
	Removed   int
	Duration  time.Duration
}

// RetentionJob deletes enrollments older than the retention age, regardless of payment.
type RetentionJob struct {
	repo   enrollment.Repository
	age    time.Duration
	clock  timeutil.Clock
	logger *slog.Logger

	lastRunStats atomic.Pointer[RetentionStats]
}

// NewRetentionJob creates the cleanup job.
func NewRetentionJob(repo enrollment.Repository, age time.Duration, clock timeutil.Clock, l *slog.Logger) (*RetentionJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: retention job needs a repository", shared.ErrMisconfigured)
	}
	if age <= 0 {
		return nil, fmt.Errorf("%w: retention age must be positive", shared.ErrValueOutOfRange)
	}
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	return &RetentionJob{
		repo:   repo,
		age:    age,
		clock:  clock,
		logger: logger.OrDefault(l).With(logger.Job(string(enrollment.KindRetention))),
	}, nil
}

// Name returns the job name.
func (j *RetentionJob) Name() string {
	return string(enrollment.KindRetention)
}

// Description returns a human-readable description.
func (j *RetentionJob) Description() string {
	return "Deletes enrollments and their completion records past the retention age"
}

// Run purges enrollments created at or before now minus the retention age.
func (j *RetentionJob) Run(ctx context.Context) error {
	now := j.clock.Now()
	stats := &RetentionStats{StartedAt: now, Cutoff: now.Add(-j.age)}

	removed, err := j.repo.PurgeOlderThan(ctx, stats.Cutoff)
	if err != nil {
		j.logger.Error("retention cleanup failed", logger.Err(err))
		return fmt.Errorf("purge enrollments: %w", err)
	}
	stats.Removed = removed
	stats.Duration = j.clock.Now().Sub(now)
	j.lastRunStats.Store(stats)

	j.logger.Info("old enrollments cleaned up",
		slog.Int("removed", removed),
		slog.Time("cutoff", stats.Cutoff),
	)
	return nil
}

// LastRunStats returns statistics from the last successful run.
func (j *RetentionJob) LastRunStats() *RetentionStats {
	return j.lastRunStats.Load()
}
