package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `
	id, name, contact, program_id, payment, enrolled_at, duration_units,
	total_stages, total_units, confirmation_sent, details_sent, offer_letter_sent,
	completion_sent, stage_counter, last_stage_sent_at, progress, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	q, err := r.conn.Q()
	if err != nil {
		return err
	}

	query := `INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = q.Exec(ctx, query,
		e.ID,
		e.Name,
		e.Contact,
		e.ProgramID,
		string(e.Payment),
		e.EnrolledAt,
		e.DurationUnits,
		e.TotalStages,
		e.TotalUnits,
		e.Status.ConfirmationSent,
		e.Status.DetailsSent,
		e.Status.OfferLetterSent,
		e.Status.CompletionSent,
		e.Status.StageCounter,
		e.Status.LastStageSentAt,
		e.Progress,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrEnrollmentAlreadyExists
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// GetByID returns an enrollment by ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	q, err := r.conn.Q()
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)
	return scanEnrollment(row)
}

// GetByIdentity returns the enrollment for (contact, program).
func (r *EnrollmentRepository) GetByIdentity(ctx context.Context, contact, programID string) (*enrollment.Enrollment, error) {
	q, err := r.conn.Q()
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE contact = $1 AND program_id = $2`,
		strings.ToLower(contact), programID)
	return scanEnrollment(row)
}

// ─────────────────────────────────────────────────────────────────────────────
// Due queries
// ─────────────────────────────────────────────────────────────────────────────

// dueQuery returns the WHERE clause and args selecting enrollments due for kind at now.
func dueQuery(kind enrollment.Kind, now time.Time, p enrollment.DuePolicy) (string, []any, error) {
	switch kind {
	case enrollment.KindDetails:
		return `payment = 'paid' AND NOT details_sent AND enrolled_at <= $1`,
			[]any{now.Add(-p.DetailsDelay)}, nil
	case enrollment.KindOfferLetter:
		return `payment = 'paid' AND NOT offer_letter_sent AND enrolled_at <= $1`,
			[]any{now.Add(-p.OfferDelay)}, nil
	case enrollment.KindWeeklyStage:
		return `payment = 'paid' AND stage_counter <= total_stages
			AND GREATEST(enrolled_at, COALESCE(last_stage_sent_at, enrolled_at)) <= $1`,
			[]any{now.Add(-p.StageGap)}, nil
	case enrollment.KindCompletion:
		return `payment = 'paid' AND NOT completion_sent
			AND enrolled_at + make_interval(secs => duration_units * $2::float8) <= $1`,
			[]any{now, p.UnitLength.Seconds()}, nil
	case enrollment.KindRetention:
		return `created_at <= $1`, []any{now.Add(-p.RetentionAge)}, nil
	default:
		return "", nil, fmt.Errorf("%w: kind %q is not scheduled", shared.ErrInvalidInput, kind)
	}
}

// FindDue returns enrollments due for kind in insertion order.
func (r *EnrollmentRepository) FindDue(ctx context.Context, kind enrollment.Kind, now time.Time, policy enrollment.DuePolicy) ([]*enrollment.Enrollment, error) {
	where, args, err := dueQuery(kind, now, policy)
	if err != nil {
		return nil, err
	}
	q, err := r.conn.Q()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find due %s: %w", kind, err)
	}
	defer rows.Close()

	out := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Markers
// ─────────────────────────────────────────────────────────────────────────────

var flagColumns = map[enrollment.Kind]string{
	enrollment.KindConfirmation: "confirmation_sent",
	enrollment.KindDetails:      "details_sent",
	enrollment.KindOfferLetter:  "offer_letter_sent",
	enrollment.KindCompletion:   "completion_sent",
}

// MarkSent flips the marker only if it still has the value the caller observed.
func (r *EnrollmentRepository) MarkSent(ctx context.Context, mark enrollment.SentMark) error {
	q, err := r.conn.Q()
	if err != nil {
		return err
	}

	var (
		query string
		args  []any
	)
	if col, ok := flagColumns[mark.Kind]; ok {
		query = fmt.Sprintf(`UPDATE enrollments SET %[1]s = TRUE, updated_at = $2 WHERE id = $1 AND NOT %[1]s`, col)
		args = []any{mark.EnrollmentID, mark.SentAt}
	} else if mark.Kind == enrollment.KindWeeklyStage {
		query = `UPDATE enrollments
			SET stage_counter = stage_counter + 1, last_stage_sent_at = $2, updated_at = $2
			WHERE id = $1 AND stage_counter = $3 AND stage_counter <= total_stages`
		args = []any{mark.EnrollmentID, mark.SentAt, mark.Stage}
	} else {
		return fmt.Errorf("%w: kind %q has no sent marker", shared.ErrInvalidInput, mark.Kind)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark %s sent: %w", mark.Kind, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyMarked
	}
	return nil
}

// UpdatePayment moves the payment state if the transition is allowed.
func (r *EnrollmentRepository) UpdatePayment(ctx context.Context, id string, to enrollment.PaymentState, at time.Time) (*enrollment.Enrollment, error) {
	var out *enrollment.Enrollment
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, `SELECT payment FROM enrollments WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if IsNoRows(err) {
				return shared.ErrEnrollmentNotFound
			}
			return err
		}

		from := enrollment.PaymentState(current)
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidPaymentTransition, from, to)
		}

		row := tx.QueryRow(ctx, `UPDATE enrollments
			SET payment = $2,
				enrolled_at = CASE WHEN $4 THEN $3 ELSE enrolled_at END,
				updated_at = $3
			WHERE id = $1
			RETURNING `+enrollmentColumns, id, string(to), at.UTC(), to == enrollment.PaymentPaid)
		e, err := scanEnrollment(row)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion records
// ─────────────────────────────────────────────────────────────────────────────

// AddCompletion inserts the record unless it already exists.
func (r *EnrollmentRepository) AddCompletion(ctx context.Context, c enrollment.CompletionRecord) (bool, error) {
	created := false
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEnrollment(ctx, tx, c.EnrollmentID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `INSERT INTO completion_records (enrollment_id, unit_id, completed_at)
			VALUES ($1, $2, $3) ON CONFLICT (enrollment_id, unit_id) DO NOTHING`,
			c.EnrollmentID, c.UnitID, c.CompletedAt.UTC())
		if err != nil {
			return err
		}
		created = tag.RowsAffected() > 0
		return nil
	})
	return created, err
}

// RemoveCompletion deletes a completion record.
func (r *EnrollmentRepository) RemoveCompletion(ctx context.Context, enrollmentID, unitID string) (bool, error) {
	removed := false
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockEnrollment(ctx, tx, enrollmentID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM completion_records WHERE enrollment_id = $1 AND unit_id = $2`, enrollmentID, unitID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	return removed, err
}

// RecomputeProgress recounts completion records and stores the percentage.
func (r *EnrollmentRepository) RecomputeProgress(ctx context.Context, id string) (int, error) {
	progress := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var totalUnits, completed int
		err := tx.QueryRow(ctx, `SELECT e.total_units,
				(SELECT count(*) FROM completion_records c WHERE c.enrollment_id = e.id)
			FROM enrollments e WHERE e.id = $1 FOR UPDATE`, id).Scan(&totalUnits, &completed)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrEnrollmentNotFound
			}
			return err
		}

		progress = enrollment.ComputeProgress(completed, totalUnits)
		_, err = tx.Exec(ctx, `UPDATE enrollments SET progress = $2 WHERE id = $1`, id, progress)
		return err
	})
	return progress, err
}

// PurgeOlderThan deletes enrollments created at or before cutoff.
// Completion records go with them through the cascade.
func (r *EnrollmentRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	q, err := r.conn.Q()
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, `DELETE FROM enrollments WHERE created_at <= $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge enrollments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks the connection.
func (r *EnrollmentRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func lockEnrollment(ctx context.Context, tx pgx.Tx, id string) error {
	var found string
	if err := tx.QueryRow(ctx, `SELECT id FROM enrollments WHERE id = $1 FOR UPDATE`, id).Scan(&found); err != nil {
		if IsNoRows(err) {
			return shared.ErrEnrollmentNotFound
		}
		return err
	}
	return nil
}

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var (
		e       enrollment.Enrollment
		payment string
	)
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Contact,
		&e.ProgramID,
		&payment,
		&e.EnrolledAt,
		&e.DurationUnits,
		&e.TotalStages,
		&e.TotalUnits,
		&e.Status.ConfirmationSent,
		&e.Status.DetailsSent,
		&e.Status.OfferLetterSent,
		&e.Status.CompletionSent,
		&e.Status.StageCounter,
		&e.Status.LastStageSentAt,
		&e.Progress,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	e.Payment = enrollment.PaymentState(payment)
	e.EnrolledAt = e.EnrolledAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if e.Status.LastStageSentAt != nil {
		t := e.Status.LastStageSentAt.UTC()
		e.Status.LastStageSentAt = &t
	}
	return &e, nil
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)
