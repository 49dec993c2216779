package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/memory"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/scheduler"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeSender records delivered messages and can fail or block on demand.
type fakeSender struct {
	mu      sync.Mutex
	sent    []notification.Message
	failFor map[string]bool
	gate    chan struct{}
	entered chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: map[string]bool{}}
}

func (s *fakeSender) Send(ctx context.Context, msg notification.Message) (notification.DeliveryResult, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[msg.To] {
		err := errors.New("relay unavailable")
		return notification.DeliveryResult{Attempts: 3, Error: err}, err
	}
	s.sent = append(s.sent, msg)
	return notification.DeliveryResult{Success: true, Attempts: 1}, nil
}

func (s *fakeSender) messages() []notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Message(nil), s.sent...)
}

type harness struct {
	repo     *memory.EnrollmentRepository
	sender   *fakeSender
	clock    *timeutil.FakeClock
	catalog  *program.Catalog
	renders  []string
	renderMu sync.Mutex
	failName string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := program.NewCatalog(program.Builtin()...)
	require.NoError(t, err)
	return &harness{
		repo:    memory.NewEnrollmentRepository(),
		sender:  newFakeSender(),
		clock:   timeutil.NewFakeClock(t0),
		catalog: cat,
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Repo:   h.repo,
		Sender: h.sender,
		Renderer: notification.RendererFunc(func(_ context.Context, kind notification.ArtifactKind, name, prog string) (string, error) {
			if name == h.failName {
				return "", shared.ErrRenderFailed
			}
			h.renderMu.Lock()
			defer h.renderMu.Unlock()
			path := "/tmp/" + string(kind) + "-" + name + ".png"
			h.renders = append(h.renders, path)
			return path, nil
		}),
		Catalog: h.catalog,
		Brand:   notification.DefaultBrand(),
		Clock:   h.clock,
		Logger:  logger.Discard(),
	}
}

func (h *harness) job(t *testing.T, kind enrollment.Kind) *LifecycleJob {
	t.Helper()
	j, err := NewLifecycleJob(kind, h.deps(), DefaultConfig())
	require.NoError(t, err)
	return j
}

func (h *harness) enroll(t *testing.T, id, contact string, payment enrollment.PaymentState) {
	t.Helper()
	p, err := h.catalog.Get("web-development")
	require.NoError(t, err)
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:            id,
		Name:          "Student " + id,
		Contact:       contact,
		ProgramID:     p.ID,
		Payment:       payment,
		DurationUnits: p.DurationUnits,
		TotalStages:   p.TotalStages(4),
		TotalUnits:    p.TotalUnits(),
		Now:           h.clock.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, h.repo.Create(context.Background(), e))
}

func (h *harness) get(t *testing.T, id string) *enrollment.Enrollment {
	t.Helper()
	e, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestDetailsAndOffer_SentOnceAfterDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enroll(t, "e-1", "asha@example.com", enrollment.PaymentPaid)

	details := h.job(t, enrollment.KindDetails)
	offer := h.job(t, enrollment.KindOfferLetter)

	h.clock.Set(t0.Add(9 * time.Hour))
	require.NoError(t, details.Run(ctx))
	require.NoError(t, offer.Run(ctx))
	assert.Empty(t, h.sender.messages())

	h.clock.Set(t0.Add(11 * time.Hour))
	require.NoError(t, details.Run(ctx))
	require.NoError(t, offer.Run(ctx))

	msgs := h.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "SkillNova Virtual Internship - Detailed Instructions", msgs[0].Subject)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "web-dev.pdf", msgs[0].Attachments[0].Path)
	assert.True(t, msgs[0].Attachments[0].Optional)
	assert.Equal(t, "SkillNova Virtual Internship - Offer Letter", msgs[1].Subject)
	assert.Equal(t, "/tmp/offer-letter-Student e-1.png", msgs[1].Attachments[0].Path)

	e := h.get(t, "e-1")
	assert.True(t, e.Status.DetailsSent)
	assert.True(t, e.Status.OfferLetterSent)
	assert.Equal(t, 1, details.LastRunStats().Sent)

	h.clock.Set(t0.Add(12 * time.Hour))
	require.NoError(t, details.Run(ctx))
	require.NoError(t, offer.Run(ctx))
	assert.Len(t, h.sender.messages(), 2, "no resend once flagged")
	assert.Zero(t, details.LastRunStats().Due)
}

func TestUnpaidEnrollmentsAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "e-1", "pending@example.com", enrollment.PaymentPending)
	h.enroll(t, "e-2", "failed@example.com", enrollment.PaymentFailed)

	h.clock.Set(t0.Add(40 * 24 * time.Hour))
	for _, kind := range []enrollment.Kind{enrollment.KindDetails, enrollment.KindOfferLetter, enrollment.KindWeeklyStage, enrollment.KindCompletion} {
		require.NoError(t, h.job(t, kind).Run(context.Background()))
	}
	assert.Empty(t, h.sender.messages())
}

func TestWeeklyStages_AdvanceThenStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enroll(t, "e-1", "asha@example.com", enrollment.PaymentPaid)
	weekly := h.job(t, enrollment.KindWeeklyStage)

	h.clock.Set(t0.Add(6*24*time.Hour - time.Minute))
	require.NoError(t, weekly.Run(ctx))
	assert.Empty(t, h.sender.messages())

	gap := 6 * 24 * time.Hour
	for stage := 1; stage <= 4; stage++ {
		h.clock.Set(t0.Add(time.Duration(stage) * gap))
		require.NoError(t, weekly.Run(ctx))
		require.NoError(t, weekly.Run(ctx), "second run inside the same gap")
		require.Len(t, h.sender.messages(), stage)
	}

	msgs := h.sender.messages()
	assert.Contains(t, msgs[0].Body, "week 1")
	assert.Contains(t, msgs[0].Body, "https://docs.google.com/forms/")
	assert.Contains(t, msgs[1].Body, "Week 2 assignment")
	assert.Equal(t, "Weekly Internship Update", msgs[3].Subject)

	e := h.get(t, "e-1")
	assert.Equal(t, 5, e.Status.StageCounter)
	assert.True(t, e.StagesExhausted())

	h.clock.Set(t0.Add(10 * gap))
	require.NoError(t, weekly.Run(ctx))
	assert.Len(t, h.sender.messages(), 4, "terminal once stages are exhausted")
}

func TestCompletion_RendersCertificate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enroll(t, "e-1", "asha@example.com", enrollment.PaymentPaid)
	completion := h.job(t, enrollment.KindCompletion)

	h.clock.Set(t0.Add(28*24*time.Hour - time.Second))
	require.NoError(t, completion.Run(ctx))
	assert.Empty(t, h.sender.messages())

	h.clock.Set(t0.Add(28 * 24 * time.Hour))
	require.NoError(t, completion.Run(ctx))
	msgs := h.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Internship Completion Certificate", msgs[0].Subject)
	assert.Equal(t, "/tmp/certificate-Student e-1.png", msgs[0].Attachments[0].Path)
	assert.True(t, h.get(t, "e-1").Status.CompletionSent)
}

func TestDeliveryFailure_LeavesRecordForNextTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enroll(t, "e-1", "down@example.com", enrollment.PaymentPaid)
	h.enroll(t, "e-2", "up@example.com", enrollment.PaymentPaid)
	h.sender.failFor["down@example.com"] = true
	details := h.job(t, enrollment.KindDetails)

	h.clock.Set(t0.Add(11 * time.Hour))
	require.NoError(t, details.Run(ctx))

	stats := details.LastRunStats()
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, h.get(t, "e-1").Status.DetailsSent)
	assert.True(t, h.get(t, "e-2").Status.DetailsSent)

	h.sender.failFor["down@example.com"] = false
	require.NoError(t, details.Run(ctx))
	assert.True(t, h.get(t, "e-1").Status.DetailsSent)
	assert.Len(t, h.sender.messages(), 2)
}

func TestRenderFailure_AbortsOnlyThatRecord(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "e-1", "a@example.com", enrollment.PaymentPaid)
	h.enroll(t, "e-2", "b@example.com", enrollment.PaymentPaid)
	h.failName = "Student e-1"

	h.clock.Set(t0.Add(11 * time.Hour))
	offer := h.job(t, enrollment.KindOfferLetter)
	require.NoError(t, offer.Run(context.Background()))

	assert.False(t, h.get(t, "e-1").Status.OfferLetterSent)
	assert.True(t, h.get(t, "e-2").Status.OfferLetterSent)
	assert.Equal(t, 1, offer.LastRunStats().Failed)
}

func TestConcurrentTick_SendsNothingExtra(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "e-1", "asha@example.com", enrollment.PaymentPaid)
	h.clock.Set(t0.Add(11 * time.Hour))
	h.sender.gate = make(chan struct{})
	h.sender.entered = make(chan struct{}, 4)

	s := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: logger.Discard(), Clock: h.clock})
	details := h.job(t, enrollment.KindDetails)
	require.NoError(t, s.Register(details, scheduler.NewIntervalSchedule(time.Minute)))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), details.Name())
		done <- err
	}()
	<-h.sender.entered

	_, err := s.RunNow(context.Background(), details.Name())
	assert.ErrorIs(t, err, scheduler.ErrJobRunning)

	close(h.sender.gate)
	require.NoError(t, <-done)
	assert.Len(t, h.sender.messages(), 1)
	assert.True(t, h.get(t, "e-1").Status.DetailsSent)
}

func TestParallelRuns_MarkExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "e-1", "asha@example.com", enrollment.PaymentPaid)
	h.clock.Set(t0.Add(11 * time.Hour))

	a := h.job(t, enrollment.KindDetails)
	b := h.job(t, enrollment.KindDetails)

	var wg sync.WaitGroup
	for _, j := range []*LifecycleJob{a, b} {
		wg.Add(1)
		go func(j *LifecycleJob) {
			defer wg.Done()
			_ = j.Run(context.Background())
		}(j)
	}
	wg.Wait()

	marked := a.LastRunStats().Sent + b.LastRunStats().Sent
	assert.Equal(t, 1, marked, "the marker flips exactly once")
	assert.True(t, h.get(t, "e-1").Status.DetailsSent)
}

func TestNewLifecycleJob_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := NewLifecycleJob(enrollment.KindConfirmation, h.deps(), DefaultConfig())
	assert.Error(t, err)

	_, err = NewLifecycleJob(enrollment.KindRetention, h.deps(), DefaultConfig())
	assert.Error(t, err)

	deps := h.deps()
	deps.Renderer = nil
	_, err = NewLifecycleJob(enrollment.KindCompletion, deps, DefaultConfig())
	assert.ErrorIs(t, err, shared.ErrMisconfigured)

	j, err := NewLifecycleJob(enrollment.KindDetails, deps, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "details-email", j.Name())
	assert.True(t, strings.Contains(j.Description(), "details"))
}

func TestUnknownProgramFallsBack(t *testing.T) {
	h := newHarness(t)
	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID: "e-1", Name: "Asha", Contact: "asha@example.com", ProgramID: "retired-program",
		Payment: enrollment.PaymentPaid, DurationUnits: 1, TotalStages: 2, TotalUnits: 1, Now: t0,
	})
	require.NoError(t, err)
	require.NoError(t, h.repo.Create(context.Background(), e))

	h.clock.Set(t0.Add(6 * 24 * time.Hour))
	require.NoError(t, h.job(t, enrollment.KindWeeklyStage).Run(context.Background()))

	msgs := h.sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "Week 1 assignment")
}
