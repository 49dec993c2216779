// Package jobs contains the scheduled lifecycle jobs.
// Each job handles one notification kind: it queries the due enrollments,
// renders and sends their message, then flips the sent marker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies are the handles shared by every lifecycle job.
type Dependencies struct {
	Repo     enrollment.Repository
	Sender   notification.Sender
	Renderer notification.Renderer
	Catalog  *program.Catalog
	Brand    notification.Brand
	Clock    timeutil.Clock
	Logger   *slog.Logger
}

// Config tunes a lifecycle job.
type Config struct {
	Policy enrollment.DuePolicy

	// Concurrency bounds the per-record sends inside one tick.
	Concurrency int
}

// DefaultConfig returns the default policy with four concurrent sends.
func DefaultConfig() Config {
	return Config{Policy: enrollment.DefaultDuePolicy(), Concurrency: 4}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// TickStats summarizes one run of a lifecycle job.
type TickStats struct {
	Kind        enrollment.Kind
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	Due        int
	Sent       int
	Failed     int
	Duplicates int
}

type tickCounters struct {
	sent       atomic.Int32
	failed     atomic.Int32
	duplicates atomic.Int32
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE JOB
// ══════════════════════════════════════════════════════════════════════════════

// composeFunc builds the message for one due enrollment.
type composeFunc func(ctx context.Context, e *enrollment.Enrollment, p program.Program) (notification.Message, error)

// LifecycleJob runs one message kind.
type LifecycleJob struct {
	kind    enrollment.Kind
	deps    Dependencies
	config  Config
	compose composeFunc
	logger  *slog.Logger

	lastRunStats atomic.Pointer[TickStats]
}

// NewLifecycleJob creates the job for a message-sending kind.
func NewLifecycleJob(kind enrollment.Kind, deps Dependencies, cfg Config) (*LifecycleJob, error) {
	if deps.Repo == nil || deps.Sender == nil {
		return nil, fmt.Errorf("%w: lifecycle job %s needs a repository and a sender", shared.ErrMisconfigured, kind)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(nil)
	}
	if deps.Catalog == nil {
		cat, err := program.NewCatalog(program.Builtin()...)
		if err != nil {
			return nil, err
		}
		deps.Catalog = cat
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	j := &LifecycleJob{
		kind:   kind,
		deps:   deps,
		config: cfg,
		logger: logger.OrDefault(deps.Logger).With(logger.Job(string(kind))),
	}

	switch kind {
	case enrollment.KindDetails:
		j.compose = j.composeDetails
	case enrollment.KindOfferLetter:
		j.compose = j.composeOfferLetter
	case enrollment.KindWeeklyStage:
		j.compose = j.composeWeekly
	case enrollment.KindCompletion:
		j.compose = j.composeCompletion
	default:
		return nil, fmt.Errorf("%w: %q is not a scheduled message kind", shared.ErrInvalidInput, kind)
	}

	if j.needsRenderer() && deps.Renderer == nil {
		return nil, fmt.Errorf("%w: %s needs a renderer", shared.ErrMisconfigured, kind)
	}
	return j, nil
}

func (j *LifecycleJob) needsRenderer() bool {
	return j.kind == enrollment.KindOfferLetter || j.kind == enrollment.KindCompletion
}

// Name returns the job name, which is the kind.
func (j *LifecycleJob) Name() string {
	return string(j.kind)
}

// Description returns a human-readable description.
func (j *LifecycleJob) Description() string {
	switch j.kind {
	case enrollment.KindDetails:
		return "Sends program details with the project brochure after the details delay"
	case enrollment.KindOfferLetter:
		return "Renders and sends the offer letter after the offer delay"
	case enrollment.KindWeeklyStage:
		return "Sends the next weekly assignment once the stage gap has elapsed"
	case enrollment.KindCompletion:
		return "Renders and sends the completion certificate when the program ends"
	default:
		return string(j.kind)
	}
}

// Run executes one tick. Per-record failures are logged and never returned.
func (j *LifecycleJob) Run(ctx context.Context) error {
	startedAt := j.deps.Clock.Now()
	stats := &TickStats{Kind: j.kind, StartedAt: startedAt}
	defer func() { j.lastRunStats.Store(stats) }()

	due, err := j.deps.Repo.FindDue(ctx, j.kind, startedAt, j.config.Policy)
	if err != nil {
		return fmt.Errorf("find due %s: %w", j.kind, err)
	}
	stats.Due = len(due)

	var counters tickCounters
	var g errgroup.Group
	g.SetLimit(j.config.Concurrency)
	for _, e := range due {
		g.Go(func() error {
			j.process(ctx, e, &counters)
			return nil
		})
	}
	_ = g.Wait()

	stats.Sent = int(counters.sent.Load())
	stats.Failed = int(counters.failed.Load())
	stats.Duplicates = int(counters.duplicates.Load())
	stats.CompletedAt = j.deps.Clock.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)

	j.logger.Info("tick completed",
		slog.Int("due", stats.Due),
		slog.Int("sent", stats.Sent),
		slog.Int("failed", stats.Failed),
		slog.Int("duplicates", stats.Duplicates),
		logger.Latency(stats.Duration),
	)
	return ctx.Err()
}

// process handles one enrollment: compose, send, then mark.
func (j *LifecycleJob) process(ctx context.Context, e *enrollment.Enrollment, c *tickCounters) {
	log := j.logger.With(logger.EnrollmentID(e.ID), logger.Kind(string(j.kind)))

	if err := ctx.Err(); err != nil {
		c.failed.Add(1)
		return
	}

	p := j.program(e, log)
	msg, err := j.compose(ctx, e, p)
	if err != nil {
		c.failed.Add(1)
		log.Error("failed to prepare message", logger.Err(err))
		return
	}

	res, err := j.deps.Sender.Send(ctx, msg)
	if err != nil || !res.Success {
		c.failed.Add(1)
		log.Error("delivery failed, will retry next tick", logger.Attempt(res.Attempts), logger.Err(err))
		return
	}

	sentAt := res.DeliveredAt
	if sentAt.IsZero() {
		sentAt = j.deps.Clock.Now()
	}
	if err := enrollment.MarkDelivered(ctx, j.deps.Repo, enrollment.MarkFor(e, j.kind, sentAt)); err != nil {
		if errors.Is(err, shared.ErrAlreadyMarked) {
			c.duplicates.Add(1)
			log.Warn("message sent but marker was already set")
			return
		}
		c.failed.Add(1)
		log.Error("message sent but marker update failed", logger.Err(err))
		return
	}

	c.sent.Add(1)
	log.Info("notification sent", logger.Program(e.ProgramID), logger.Attempt(res.Attempts))
}

// program resolves the enrollment's program, degrading to a bare entry if it left the catalog.
func (j *LifecycleJob) program(e *enrollment.Enrollment, log *slog.Logger) program.Program {
	p, err := j.deps.Catalog.Get(e.ProgramID)
	if err != nil {
		log.Warn("program not in catalog, using defaults", logger.Program(e.ProgramID))
		return program.Program{ID: e.ProgramID, Title: e.ProgramID, DurationUnits: e.DurationUnits}
	}
	return p
}

// LastRunStats returns statistics from the last run, or nil before the first.
func (j *LifecycleJob) LastRunStats() *TickStats {
	return j.lastRunStats.Load()
}

// ─────────────────────────────────────────────────────────────────────────────
// Composers
// ─────────────────────────────────────────────────────────────────────────────

func (j *LifecycleJob) composeDetails(_ context.Context, e *enrollment.Enrollment, p program.Program) (notification.Message, error) {
	return j.deps.Brand.Details(e.Contact, e.Name, p.Title, e.TotalStages, p.DetailsAttachment), nil
}

func (j *LifecycleJob) composeOfferLetter(ctx context.Context, e *enrollment.Enrollment, p program.Program) (notification.Message, error) {
	path, err := j.deps.Renderer.Render(ctx, notification.ArtifactOfferLetter, e.Name, p.Title)
	if err != nil {
		return notification.Message{}, err
	}
	return j.deps.Brand.OfferLetter(e.Contact, e.Name, p.Title, path), nil
}

func (j *LifecycleJob) composeWeekly(_ context.Context, e *enrollment.Enrollment, p program.Program) (notification.Message, error) {
	stage := e.Status.StageCounter
	return j.deps.Brand.WeeklyStage(e.Contact, e.Name, stage, p.TaskFor(stage)), nil
}

func (j *LifecycleJob) composeCompletion(ctx context.Context, e *enrollment.Enrollment, p program.Program) (notification.Message, error) {
	path, err := j.deps.Renderer.Render(ctx, notification.ArtifactCertificate, e.Name, p.Title)
	if err != nil {
		return notification.Message{}, err
	}
	return j.deps.Brand.Completion(e.Contact, e.Name, p.Title, path), nil
}
