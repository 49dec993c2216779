// Package scheduler drives the lifecycle jobs on a shared clock.
// Each registered job has its own cadence and runs coalesced: a tick that
// comes due while the previous run of the same job is still in flight is
// skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one recurring unit of work.
type Job interface {
	Name() string

	// Run executes one tick. ctx is cancelled on job timeout or when Stop's
	// deadline passes.
	Run(ctx context.Context) error

	Description() string
}

// Schedule yields activation times.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig configures a Scheduler. Zero fields take defaults.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Clock supplies "now" for due checks (system clock).
	Clock timeutil.Clock

	// Timezone for cadence evaluation (UTC).
	Timezone *time.Location

	// PollInterval is how often due jobs are checked (1s).
	PollInterval time.Duration

	// JobTimeout bounds a single run; zero means no timeout.
	JobTimeout time.Duration

	// MaxHistorySize caps the retained run results (1000).
	MaxHistorySize int
}

// DefaultSchedulerConfig returns the production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Clock:          timeutil.NewSystemClock(time.UTC),
		Timezone:       time.UTC,
		PollInterval:   time.Second,
		JobTimeout:     10 * time.Minute,
		MaxHistorySize: 1000,
	}
}

// Scheduler fires registered jobs when their schedule comes due.
type Scheduler struct {
	cfg    SchedulerConfig
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	history   history
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	inflight  sync.WaitGroup
	startedAt time.Time
}

type entry struct {
	job      Job
	schedule Schedule
	enabled  bool
	busy     bool
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	skipped  int64
	last     *JobResult
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Timezone == nil {
		cfg.Timezone = def.Timezone
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewSystemClock(cfg.Timezone)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = def.MaxHistorySize
	}

	return &Scheduler{
		cfg:     cfg,
		logger:  logger.OrDefault(cfg.Logger).With(logger.Component("scheduler")),
		entries: make(map[string]*entry),
		history: history{limit: cfg.MaxHistorySize},
	}
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Clock.Now().In(s.cfg.Timezone)
}

// Register adds job with its schedule. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: schedule, enabled: true, nextRun: schedule.Next(s.now())}
	s.entries[name] = e

	s.logger.Info("job registered",
		logger.Job(name),
		slog.String("schedule", schedule.String()),
		slog.String("next_run", e.nextRun.Format(time.RFC3339)),
	)
	return nil
}

// SetEnabled turns scheduled ticks of a job on or off.
// A run already in flight is not interrupted; manual runs stay possible.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	e.enabled = enabled
	if enabled {
		e.nextRun = e.schedule.Next(s.now())
	}
	s.logger.Info("job toggled", logger.Job(name), slog.Bool("enabled", enabled))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start launches the poll loop. Cancelling ctx stops new ticks only; runs in
// flight keep their context until Stop's deadline expires.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.startedAt = s.cfg.Clock.Now()
	s.loopDone = make(chan struct{})

	s.logger.Info("scheduler started",
		slog.Int("jobs", len(s.entries)),
		slog.String("poll_interval", s.cfg.PollInterval.String()),
	)

	go s.loop(ctx, s.loopDone)
	return nil
}

// Stop stops firing new ticks and waits for in-flight runs to finish or for
// ctx to expire. In-flight runs see their context cancelled only when ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight jobs: %w", ctx.Err())
		s.logger.Warn("shutdown deadline reached, cancelling in-flight jobs")
	}
	s.cancel()
	<-drained

	s.logger.Info("scheduler stopped", slog.String("uptime", s.cfg.Clock.Now().Sub(s.startedAt).String()))
	return err
}

// IsRunning reports whether the poll loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.fireDue() {
				return
			}
		}
	}
}

// fireDue launches every due job and reports whether the scheduler is still running.
func (s *Scheduler) fireDue() bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}

	for name, e := range s.entries {
		if !e.enabled || e.nextRun.IsZero() || now.Before(e.nextRun) {
			continue
		}
		e.nextRun = e.schedule.Next(now)

		if e.busy {
			e.skipped++
			s.logger.Warn("tick skipped, previous run still in flight",
				logger.Job(name),
				slog.String("next_run", e.nextRun.Format(time.RFC3339)),
			)
			continue
		}

		s.claimLocked(e, now)
		go s.execute(s.ctx, e, false)
	}
	return true
}

func (s *Scheduler) claimLocked(e *entry, now time.Time) {
	e.busy = true
	e.lastRun = now
	e.runs++
	s.inflight.Add(1)
}

// execute runs a claimed entry and records the result.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	defer s.inflight.Done()

	name := e.job.Name()
	log := s.logger.With(logger.Job(name), slog.Bool("manual", manual))
	log.Info("job started")

	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	started := s.cfg.Clock.Now()
	err := runSafely(ctx, e.job)
	completed := s.cfg.Clock.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	e.busy = false
	if err != nil {
		e.failures++
	}
	e.last = &result
	s.history.add(result)
	s.mu.Unlock()

	if err != nil {
		log.Error("job failed", logger.Latency(result.Duration), logger.Err(err))
	} else {
		log.Info("job completed", logger.Latency(result.Duration))
	}
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// RunNow executes a job immediately, ignoring its schedule. It obeys the same
// coalescing rule as scheduled ticks and returns ErrJobRunning when the job is
// already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if e.busy {
		e.skipped++
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	s.claimLocked(e, s.now())
	s.mu.Unlock()

	result := s.execute(ctx, e, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a point-in-time view of one registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	SkipCount   int64      `json:"skip_count"`
	LastResult  *JobResult `json:"-"`
}

func (e *entry) info(name string) JobInfo {
	return JobInfo{
		Name:        name,
		Description: e.job.Description(),
		Enabled:     e.enabled,
		Running:     e.busy,
		Schedule:    e.schedule.String(),
		LastRun:     e.lastRun,
		NextRun:     e.nextRun,
		RunCount:    e.runs,
		FailCount:   e.failures,
		SkipCount:   e.skipped,
		LastResult:  e.last,
	}
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		infos = append(infos, e.info(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Info returns one job's view.
func (s *Scheduler) Info(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e.info(name), nil
}

// Totals sums the per-job counters.
type Totals struct {
	Runs     int64 `json:"runs"`
	Failures int64 `json:"failures"`
	Skipped  int64 `json:"skipped"`
}

// Totals returns counters summed over all jobs.
func (s *Scheduler) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	for _, e := range s.entries {
		t.Runs += e.runs
		t.Failures += e.failures
		t.Skipped += e.skipped
	}
	return t
}

// History returns up to limit most recent results, oldest first.
// A non-positive limit returns everything retained.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.last(limit)
}

type history struct {
	limit   int
	results []JobResult
}

func (h *history) add(r JobResult) {
	h.results = append(h.results, r)
	if over := len(h.results) - h.limit; over > 0 {
		h.results = append(h.results[:0:0], h.results[over:]...)
	}
}

func (h *history) last(n int) []JobResult {
	if n <= 0 || n > len(h.results) {
		n = len(h.results)
	}
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob           = errors.New("job cannot be nil")
	ErrNilSchedule      = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists = errors.New("job already exists")
	ErrJobNotFound      = errors.New("job not found")

	// ErrJobRunning is returned by RunNow when the job is already in flight.
	ErrJobRunning = errors.New("job is already running")

	// ErrJobPanicked wraps a panic recovered from a job.
	ErrJobPanicked = errors.New("job panicked")

	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
