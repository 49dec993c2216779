package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRM PAYMENT COMMAND
// Applies a payment gateway outcome. Becoming paid starts the internship:
// enrolledAt moves to the payment time and the confirmation goes out.
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmPaymentCommand carries the gateway outcome for one enrollment.
type ConfirmPaymentCommand struct {
	EnrollmentID string
	State        enrollment.PaymentState
}

// Validate validates the command.
func (c ConfirmPaymentCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return shared.NewDomainError("enrollment", "ConfirmPayment", shared.ErrInvalidID, "enrollment id is required")
	}
	if c.State != enrollment.PaymentPaid && c.State != enrollment.PaymentFailed {
		return shared.NewDomainError("enrollment", "ConfirmPayment", shared.ErrInvalidInput,
			fmt.Sprintf("payment outcome must be paid or failed, got %q", c.State))
	}
	return nil
}

// ConfirmPaymentResult contains the result of a payment update.
type ConfirmPaymentResult struct {
	Enrollment        *enrollment.Enrollment
	ConfirmationSent  bool
	ConfirmationError error
}

// ConfirmPaymentHandler handles ConfirmPaymentCommand.
type ConfirmPaymentHandler struct {
	repo    enrollment.Repository
	confirm *confirmer
	clock   timeutil.Clock
	logger  *slog.Logger
}

// NewConfirmPaymentHandler creates a new ConfirmPaymentHandler.
func NewConfirmPaymentHandler(
	repo enrollment.Repository,
	catalog *program.Catalog,
	sender notification.Sender,
	brand notification.Brand,
	clock timeutil.Clock,
	l *slog.Logger,
) *ConfirmPaymentHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	log := logger.OrDefault(l).With(logger.Component("confirm_payment"))
	return &ConfirmPaymentHandler{
		repo:    repo,
		confirm: &confirmer{repo: repo, catalog: catalog, sender: sender, brand: brand, clock: clock, logger: log},
		clock:   clock,
		logger:  log,
	}
}

// Handle executes the payment update.
func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := h.repo.UpdatePayment(ctx, cmd.EnrollmentID, cmd.State, h.clock.Now())
	if err != nil {
		return nil, err
	}

	h.logger.Info("payment updated",
		logger.EnrollmentID(e.ID),
		slog.String("payment", string(e.Payment)),
	)

	result := &ConfirmPaymentResult{Enrollment: e}
	if e.IsPaid() {
		result.ConfirmationSent, result.ConfirmationError = h.confirm.send(ctx, e)
		if result.ConfirmationSent {
			e.Status.ConfirmationSent = true
		}
	}
	return result, nil
}
