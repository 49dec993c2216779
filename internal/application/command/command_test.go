package command

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notification.Message) (notification.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return notification.DeliveryResult{Attempts: 3, Error: s.err}, s.err
	}
	s.sent = append(s.sent, msg)
	return notification.DeliveryResult{Success: true, Attempts: 1, DeliveredAt: t0}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type seqIDs struct{ n int }

func (g *seqIDs) GenerateID() string {
	g.n++
	return fmt.Sprintf("enr-%d", g.n)
}

type fixture struct {
	repo    *memory.EnrollmentRepository
	catalog *program.Catalog
	sender  *recordingSender
	clock   *timeutil.FakeClock

	register   *RegisterEnrollmentHandler
	payment    *ConfirmPaymentHandler
	completion *CompletionHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := program.NewCatalog(program.Builtin()...)
	require.NoError(t, err)

	f := &fixture{
		repo:    memory.NewEnrollmentRepository(),
		catalog: cat,
		sender:  &recordingSender{},
		clock:   timeutil.NewFakeClock(t0),
	}
	brand := notification.DefaultBrand()
	f.register = NewRegisterEnrollmentHandler(f.repo, cat, f.sender, brand, &seqIDs{}, f.clock,
		DefaultRegisterEnrollmentConfig(), logger.Discard())
	f.payment = NewConfirmPaymentHandler(f.repo, cat, f.sender, brand, f.clock, logger.Discard())
	f.completion = NewCompletionHandler(f.repo, cat, f.clock, logger.Discard())
	return f
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER
// ══════════════════════════════════════════════════════════════════════════════

func TestRegister_PaidSendsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.register.Handle(ctx, RegisterEnrollmentCommand{
		Name:      "Asha Rao",
		Contact:   "Asha@Example.com",
		ProgramID: "web-development",
		Payment:   enrollment.PaymentPaid,
	})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationSent)
	assert.NoError(t, res.ConfirmationError)

	e, err := f.repo.GetByID(ctx, res.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", e.Contact)
	assert.Equal(t, 4, e.TotalStages)
	assert.Equal(t, 4, e.TotalUnits)
	assert.Equal(t, 1, e.DurationUnits)
	assert.True(t, e.Status.ConfirmationSent)
	assert.Equal(t, t0, e.EnrolledAt)

	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, "Internship Registration Successful.", f.sender.sent[0].Subject)
	assert.Equal(t, "asha@example.com", f.sender.sent[0].To)
}

func TestRegister_PendingSendsNothing(t *testing.T) {
	f := newFixture(t)

	res, err := f.register.Handle(context.Background(), RegisterEnrollmentCommand{
		Name: "Ravi", Contact: "ravi@example.com", ProgramID: "data-science",
	})
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentPending, res.Enrollment.Payment)
	assert.False(t, res.ConfirmationSent)
	assert.Zero(t, f.sender.count())
}

func TestRegister_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := RegisterEnrollmentCommand{Name: "Ravi", Contact: "ravi@example.com", ProgramID: "data-science"}

	_, err := f.register.Handle(ctx, cmd)
	require.NoError(t, err)

	cmd.Contact = "RAVI@example.com"
	_, err = f.register.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrEnrollmentAlreadyExists)

	cmd.ProgramID = "python-programming"
	_, err = f.register.Handle(ctx, cmd)
	assert.NoError(t, err, "same person on another program is a new enrollment")
}

func TestRegister_ConfirmationFailureKeepsEnrollment(t *testing.T) {
	f := newFixture(t)
	f.sender.err = shared.ErrDeliveryFailed

	res, err := f.register.Handle(context.Background(), RegisterEnrollmentCommand{
		Name: "Meera", Contact: "meera@example.com", ProgramID: "web-development", Payment: enrollment.PaymentPaid,
	})
	require.NoError(t, err)
	assert.False(t, res.ConfirmationSent)
	assert.ErrorIs(t, res.ConfirmationError, shared.ErrDeliveryFailed)

	e, err := f.repo.GetByID(context.Background(), res.Enrollment.ID)
	require.NoError(t, err)
	assert.False(t, e.Status.ConfirmationSent)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  RegisterEnrollmentCommand
		want error
	}{
		{"missing name", RegisterEnrollmentCommand{Contact: "a@example.com", ProgramID: "web-development"}, shared.ErrEmptyValue},
		{"bad contact", RegisterEnrollmentCommand{Name: "A", Contact: "not-an-address", ProgramID: "web-development"}, shared.ErrInvalidContact},
		{"missing program", RegisterEnrollmentCommand{Name: "A", Contact: "a@example.com"}, shared.ErrEmptyValue},
		{"unknown program", RegisterEnrollmentCommand{Name: "A", Contact: "a@example.com", ProgramID: "cooking"}, shared.ErrUnknownProgram},
		{"bad payment", RegisterEnrollmentCommand{Name: "A", Contact: "a@example.com", ProgramID: "web-development", Payment: "refunded"}, shared.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.register.Handle(ctx, tt.cmd)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT
// ══════════════════════════════════════════════════════════════════════════════

func TestConfirmPayment_PaidStartsInternship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.register.Handle(ctx, RegisterEnrollmentCommand{
		Name: "Kiran", Contact: "kiran@example.com", ProgramID: "cpp-programming",
	})
	require.NoError(t, err)

	paidAt := t0.Add(3 * time.Hour)
	f.clock.Set(paidAt)

	res, err := f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: reg.Enrollment.ID, State: enrollment.PaymentPaid})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationSent)
	assert.Equal(t, paidAt, res.Enrollment.EnrolledAt)
	assert.Equal(t, 1, f.sender.count())

	_, err = f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: reg.Enrollment.ID, State: enrollment.PaymentFailed})
	assert.ErrorIs(t, err, shared.ErrInvalidPaymentTransition)
	assert.Equal(t, 1, f.sender.count())
}

func TestConfirmPayment_FailedThenPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.register.Handle(ctx, RegisterEnrollmentCommand{
		Name: "Kiran", Contact: "kiran@example.com", ProgramID: "cpp-programming",
	})
	require.NoError(t, err)

	res, err := f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: reg.Enrollment.ID, State: enrollment.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentFailed, res.Enrollment.Payment)
	assert.Zero(t, f.sender.count())

	res, err = f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: reg.Enrollment.ID, State: enrollment.PaymentPaid})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationSent)
}

func TestConfirmPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payment.Handle(ctx, ConfirmPaymentCommand{State: enrollment.PaymentPaid})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: "x", State: enrollment.PaymentPending})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.payment.Handle(ctx, ConfirmPaymentCommand{EnrollmentID: "missing", State: enrollment.PaymentPaid})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

func registerPaid(t *testing.T, f *fixture) *enrollment.Enrollment {
	t.Helper()
	res, err := f.register.Handle(context.Background(), RegisterEnrollmentCommand{
		Name: "Dev", Contact: "dev@example.com", ProgramID: "web-development", Payment: enrollment.PaymentPaid,
	})
	require.NoError(t, err)
	return res.Enrollment
}

func TestCompletion_IdempotentAndMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := registerPaid(t, f)

	res, err := f.completion.Record(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: "week-1"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 25, res.Progress)

	res, err = f.completion.Record(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: "week-1"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 25, res.Progress, "second record of the same unit keeps progress")
	assert.Equal(t, 1, f.repo.CompletionCount(e.ID))

	prev := res.Progress
	for k, unit := range []string{"week-2", "week-3", "week-4"} {
		res, err = f.completion.Record(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: unit})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Progress, prev)
		assert.Equal(t, enrollment.ComputeProgress(k+2, 4), res.Progress)
		prev = res.Progress
	}
	assert.Equal(t, 100, prev)
}

func TestCompletion_UnknownUnit(t *testing.T) {
	f := newFixture(t)
	e := registerPaid(t, f)

	_, err := f.completion.Record(context.Background(), CompletionCommand{EnrollmentID: e.ID, UnitID: "week-9"})
	assert.ErrorIs(t, err, shared.ErrUnknownUnit)
	assert.Zero(t, f.repo.CompletionCount(e.ID))
}

func TestCompletion_Retract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := registerPaid(t, f)

	for _, unit := range []string{"week-1", "week-2"} {
		_, err := f.completion.Record(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: unit})
		require.NoError(t, err)
	}

	res, err := f.completion.Retract(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: "week-2"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 25, res.Progress)

	res, err = f.completion.Retract(ctx, CompletionCommand{EnrollmentID: e.ID, UnitID: "week-2"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 25, res.Progress)
}

func TestCompletion_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.completion.Record(ctx, CompletionCommand{UnitID: "week-1"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = f.completion.Record(ctx, CompletionCommand{EnrollmentID: "x"})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = f.completion.Record(ctx, CompletionCommand{EnrollmentID: "missing", UnitID: "week-1"})
	assert.True(t, shared.IsNotFound(err))
}
