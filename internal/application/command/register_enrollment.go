// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
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
// REGISTER ENROLLMENT COMMAND
// Creates an enrollment for one person on one program. A paid registration
// gets its confirmation email right away; everything else is left to the
// scheduled lifecycle jobs.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator generates enrollment IDs.
type IDGenerator interface {
	GenerateID() string
}

// RegisterEnrollmentCommand contains the registration form data.
type RegisterEnrollmentCommand struct {
	Name      string
	Contact   string
	ProgramID string

	// Payment is the gateway state at registration time (pending if empty).
	Payment enrollment.PaymentState

	// DurationUnits overrides the program duration when positive.
	DurationUnits int
}

// Validate validates the command.
func (c RegisterEnrollmentCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("enrollment", "Register", shared.ErrEmptyValue, "name is required")
	}
	if strings.TrimSpace(c.Contact) == "" {
		return shared.NewDomainError("enrollment", "Register", shared.ErrEmptyValue, "contact is required")
	}
	if _, err := enrollment.NormalizeContact(c.Contact); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrInvalidContact, c.Contact)
	}
	if strings.TrimSpace(c.ProgramID) == "" {
		return shared.NewDomainError("enrollment", "Register", shared.ErrEmptyValue, "program is required")
	}
	if c.Payment != "" && !c.Payment.IsValid() {
		return shared.NewDomainError("enrollment", "Register", shared.ErrInvalidInput,
			fmt.Sprintf("unknown payment state %q", c.Payment))
	}
	if c.DurationUnits < 0 {
		return shared.NewDomainError("enrollment", "Register", shared.ErrValueOutOfRange, "duration cannot be negative")
	}
	return nil
}

// RegisterEnrollmentResult contains the result of a registration.
type RegisterEnrollmentResult struct {
	Enrollment *enrollment.Enrollment

	// ConfirmationSent is true when the confirmation email went out and was marked.
	ConfirmationSent bool

	// ConfirmationError holds the delivery error when the confirmation failed.
	// The enrollment is kept either way.
	ConfirmationError error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterEnrollmentConfig contains configuration for the handler.
type RegisterEnrollmentConfig struct {
	// DefaultTotalStages is used for programs without a task list.
	DefaultTotalStages int
}

// DefaultRegisterEnrollmentConfig returns four weekly stages by default.
func DefaultRegisterEnrollmentConfig() RegisterEnrollmentConfig {
	return RegisterEnrollmentConfig{DefaultTotalStages: 4}
}

// RegisterEnrollmentHandler handles RegisterEnrollmentCommand.
type RegisterEnrollmentHandler struct {
	repo    enrollment.Repository
	catalog *program.Catalog
	confirm *confirmer
	ids     IDGenerator
	clock   timeutil.Clock
	config  RegisterEnrollmentConfig
	logger  *slog.Logger
}

// NewRegisterEnrollmentHandler creates a new RegisterEnrollmentHandler.
func NewRegisterEnrollmentHandler(
	repo enrollment.Repository,
	catalog *program.Catalog,
	sender notification.Sender,
	brand notification.Brand,
	ids IDGenerator,
	clock timeutil.Clock,
	config RegisterEnrollmentConfig,
	l *slog.Logger,
) *RegisterEnrollmentHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	if config.DefaultTotalStages <= 0 {
		config = DefaultRegisterEnrollmentConfig()
	}
	log := logger.OrDefault(l).With(logger.Component("register_enrollment"))
	return &RegisterEnrollmentHandler{
		repo:    repo,
		catalog: catalog,
		confirm: &confirmer{repo: repo, catalog: catalog, sender: sender, brand: brand, clock: clock, logger: log},
		ids:     ids,
		clock:   clock,
		config:  config,
		logger:  log,
	}
}

// Handle executes the registration.
func (h *RegisterEnrollmentHandler) Handle(ctx context.Context, cmd RegisterEnrollmentCommand) (*RegisterEnrollmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	prog, err := h.catalog.Get(strings.TrimSpace(cmd.ProgramID))
	if err != nil {
		return nil, err
	}

	contact, _ := enrollment.NormalizeContact(cmd.Contact)
	if _, err := h.repo.GetByIdentity(ctx, contact, prog.ID); err == nil {
		return nil, shared.ErrEnrollmentAlreadyExists
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("register_enrollment: lookup identity: %w", err)
	}

	duration := prog.DurationUnits
	if cmd.DurationUnits > 0 {
		duration = cmd.DurationUnits
	}

	e, err := enrollment.NewEnrollment(enrollment.NewEnrollmentParams{
		ID:            h.ids.GenerateID(),
		Name:          cmd.Name,
		Contact:       contact,
		ProgramID:     prog.ID,
		Payment:       cmd.Payment,
		DurationUnits: duration,
		TotalStages:   prog.TotalStages(h.config.DefaultTotalStages),
		TotalUnits:    prog.TotalUnits(),
		Now:           h.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, e); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, shared.ErrEnrollmentAlreadyExists
		}
		return nil, fmt.Errorf("register_enrollment: create: %w", err)
	}

	h.logger.Info("enrollment registered",
		logger.EnrollmentID(e.ID),
		logger.Program(e.ProgramID),
		slog.String("payment", string(e.Payment)),
	)

	result := &RegisterEnrollmentResult{Enrollment: e}
	if e.IsPaid() {
		result.ConfirmationSent, result.ConfirmationError = h.confirm.send(ctx, e)
		if result.ConfirmationSent {
			e.Status.ConfirmationSent = true
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRMATION
// ══════════════════════════════════════════════════════════════════════════════

// confirmer sends the registration confirmation and flips its marker.
type confirmer struct {
	repo    enrollment.Repository
	catalog *program.Catalog
	sender  notification.Sender
	brand   notification.Brand
	clock   timeutil.Clock
	logger  *slog.Logger
}

// send reports whether the confirmation went out and was marked.
// Failures are logged and returned but never abort the caller.
func (c *confirmer) send(ctx context.Context, e *enrollment.Enrollment) (bool, error) {
	log := c.logger.With(logger.EnrollmentID(e.ID), logger.Kind(string(enrollment.KindConfirmation)))

	if e.Status.ConfirmationSent {
		return false, nil
	}
	if c.sender == nil {
		log.Warn("no sender configured, confirmation skipped")
		return false, shared.ErrMisconfigured
	}

	msg := c.brand.Confirmation(e.Contact, e.Name, c.catalog.Title(e.ProgramID))
	res, err := c.sender.Send(ctx, msg)
	if err == nil && !res.Success {
		err = shared.ErrDeliveryFailed
	}
	if err != nil {
		log.Error("confirmation delivery failed", logger.Attempt(res.Attempts), logger.Err(err))
		return false, err
	}

	sentAt := res.DeliveredAt
	if sentAt.IsZero() {
		sentAt = c.clock.Now()
	}
	if err := enrollment.MarkDelivered(ctx, c.repo, enrollment.MarkFor(e, enrollment.KindConfirmation, sentAt)); err != nil {
		if errors.Is(err, shared.ErrAlreadyMarked) {
			log.Warn("confirmation sent but marker was already set")
			return false, nil
		}
		log.Error("confirmation sent but marker update failed", logger.Err(err))
		return false, err
	}

	log.Info("confirmation sent", logger.Recipient(e.Contact), logger.Attempt(res.Attempts))
	return true, nil
}
