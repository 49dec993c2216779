package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Marks one project of the program as done and recomputes progress
// synchronously. Repeating the same (enrollment, unit) is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// CompletionCommand identifies one unit of one enrollment.
type CompletionCommand struct {
	EnrollmentID string
	UnitID       string
}

// Validate validates the command.
func (c CompletionCommand) Validate() error {
	if strings.TrimSpace(c.EnrollmentID) == "" {
		return shared.NewDomainError("enrollment", "RecordCompletion", shared.ErrInvalidID, "enrollment id is required")
	}
	if strings.TrimSpace(c.UnitID) == "" {
		return shared.NewDomainError("enrollment", "RecordCompletion", shared.ErrEmptyValue, "unit id is required")
	}
	return nil
}

// CompletionResult contains the progress after the change.
type CompletionResult struct {
	EnrollmentID string
	UnitID       string

	// Changed is false when the record already existed (or was already absent).
	Changed  bool
	Progress int
}

// CompletionHandler handles recording and retracting completions.
type CompletionHandler struct {
	repo    enrollment.Repository
	catalog *program.Catalog
	clock   timeutil.Clock
	logger  *slog.Logger
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(repo enrollment.Repository, catalog *program.Catalog, clock timeutil.Clock, l *slog.Logger) *CompletionHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	return &CompletionHandler{
		repo:    repo,
		catalog: catalog,
		clock:   clock,
		logger:  logger.OrDefault(l).With(logger.Component("completion")),
	}
}

// Record creates the completion record once and recomputes progress.
func (h *CompletionHandler) Record(ctx context.Context, cmd CompletionCommand) (*CompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := h.repo.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if err := h.checkUnit(e, cmd.UnitID); err != nil {
		return nil, err
	}

	created, err := h.repo.AddCompletion(ctx, enrollment.CompletionRecord{
		EnrollmentID: e.ID,
		UnitID:       cmd.UnitID,
		CompletedAt:  h.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record_completion: add: %w", err)
	}

	progress := e.Progress
	if created {
		if progress, err = h.repo.RecomputeProgress(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("record_completion: recompute: %w", err)
		}
	}

	h.logger.Info("completion recorded",
		logger.EnrollmentID(e.ID),
		slog.String("unit", cmd.UnitID),
		slog.Bool("created", created),
		slog.Int("progress", progress),
	)
	return &CompletionResult{EnrollmentID: e.ID, UnitID: cmd.UnitID, Changed: created, Progress: progress}, nil
}

// Retract deletes the completion record and recomputes progress.
// This is the only path that lowers progress.
func (h *CompletionHandler) Retract(ctx context.Context, cmd CompletionCommand) (*CompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := h.repo.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}

	removed, err := h.repo.RemoveCompletion(ctx, e.ID, cmd.UnitID)
	if err != nil {
		return nil, fmt.Errorf("retract_completion: remove: %w", err)
	}

	progress := e.Progress
	if removed {
		if progress, err = h.repo.RecomputeProgress(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("retract_completion: recompute: %w", err)
		}
	}

	h.logger.Info("completion retracted",
		logger.EnrollmentID(e.ID),
		slog.String("unit", cmd.UnitID),
		slog.Bool("removed", removed),
		slog.Int("progress", progress),
	)
	return &CompletionResult{EnrollmentID: e.ID, UnitID: cmd.UnitID, Changed: removed, Progress: progress}, nil
}

func (h *CompletionHandler) checkUnit(e *enrollment.Enrollment, unitID string) error {
	p, err := h.catalog.Get(e.ProgramID)
	if err != nil {
		return err
	}
	if !p.HasUnit(unitID) {
		return fmt.Errorf("%w: %s in %s", shared.ErrUnknownUnit, unitID, p.ID)
	}
	return nil
}
