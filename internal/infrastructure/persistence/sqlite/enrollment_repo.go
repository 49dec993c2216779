// Package sqlite is the file-backed EnrollmentStore used for local runs.
// It is built on gorm with the sqlite driver. Flag flips are compare-and-set
// UPDATEs; time gates are evaluated in Go on rows that already satisfy the
// kind's precondition, because sqlite stores timestamps as text.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODELS
// ══════════════════════════════════════════════════════════════════════════════

type enrollmentModel struct {
	Seq              int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	ID               string `gorm:"column:id;size:36;not null;uniqueIndex"`
	Name             string `gorm:"column:name;not null"`
	Contact          string `gorm:"column:contact;not null;uniqueIndex:idx_enrollments_identity"`
	ProgramID        string `gorm:"column:program_id;not null;uniqueIndex:idx_enrollments_identity"`
	Payment          string `gorm:"column:payment;not null;index"`
	EnrolledAt       time.Time
	DurationUnits    int
	TotalStages      int
	TotalUnits       int
	ConfirmationSent bool
	DetailsSent      bool
	OfferLetterSent  bool
	CompletionSent   bool
	StageCounter     int
	LastStageSentAt  *time.Time
	Progress         int
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (enrollmentModel) TableName() string { return "enrollments" }

type completionModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	EnrollmentID string    `gorm:"column:enrollment_id;not null;uniqueIndex:idx_completions_unit"`
	UnitID       string    `gorm:"column:unit_id;not null;uniqueIndex:idx_completions_unit"`
	CompletedAt  time.Time `gorm:"column:completed_at"`
}

func (completionModel) TableName() string { return "completion_records" }

func toModel(e *enrollment.Enrollment) *enrollmentModel {
	m := &enrollmentModel{
		ID:               e.ID,
		Name:             e.Name,
		Contact:          e.Contact,
		ProgramID:        e.ProgramID,
		Payment:          string(e.Payment),
		EnrolledAt:       e.EnrolledAt.UTC(),
		DurationUnits:    e.DurationUnits,
		TotalStages:      e.TotalStages,
		TotalUnits:       e.TotalUnits,
		ConfirmationSent: e.Status.ConfirmationSent,
		DetailsSent:      e.Status.DetailsSent,
		OfferLetterSent:  e.Status.OfferLetterSent,
		CompletionSent:   e.Status.CompletionSent,
		StageCounter:     e.Status.StageCounter,
		Progress:         e.Progress,
		CreatedAt:        e.CreatedAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
	if e.Status.LastStageSentAt != nil {
		t := e.Status.LastStageSentAt.UTC()
		m.LastStageSentAt = &t
	}
	return m
}

func (m *enrollmentModel) toDomain() *enrollment.Enrollment {
	e := &enrollment.Enrollment{
		ID:            m.ID,
		Name:          m.Name,
		Contact:       m.Contact,
		ProgramID:     m.ProgramID,
		Payment:       enrollment.PaymentState(m.Payment),
		EnrolledAt:    m.EnrolledAt.UTC(),
		DurationUnits: m.DurationUnits,
		TotalStages:   m.TotalStages,
		TotalUnits:    m.TotalUnits,
		Status: enrollment.NotificationStatus{
			ConfirmationSent: m.ConfirmationSent,
			DetailsSent:      m.DetailsSent,
			OfferLetterSent:  m.OfferLetterSent,
			CompletionSent:   m.CompletionSent,
			StageCounter:     m.StageCounter,
		},
		Progress:  m.Progress,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.LastStageSentAt != nil {
		t := m.LastStageSentAt.UTC()
		e.Status.LastStageSentAt = &t
	}
	return e
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Open opens (creating if needed) the database file at path and migrates the schema.
func Open(path string, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// Single writer; concurrent CAS updates queue behind it.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&enrollmentModel{}, &completionModel{}); err != nil {
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	logger.Info("sqlite store ready", "path", path)
	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository on gorm.
type EnrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository wraps an opened database.
func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if err := r.db.WithContext(ctx).Create(toModel(e)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrEnrollmentAlreadyExists
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// GetByID loads one enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	var m enrollmentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return m.toDomain(), nil
}

// GetByIdentity loads the enrollment for (contact, program).
func (r *EnrollmentRepository) GetByIdentity(ctx context.Context, contact, programID string) (*enrollment.Enrollment, error) {
	var m enrollmentModel
	err := r.db.WithContext(ctx).
		Where("contact = ? AND program_id = ?", strings.ToLower(contact), programID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment by identity: %w", err)
	}
	return m.toDomain(), nil
}

// precondition narrows rows in SQL to those that can possibly be due for kind.
func precondition(q *gorm.DB, kind enrollment.Kind) (*gorm.DB, error) {
	paid := string(enrollment.PaymentPaid)
	switch kind {
	case enrollment.KindDetails:
		return q.Where("payment = ? AND details_sent = ?", paid, false), nil
	case enrollment.KindOfferLetter:
		return q.Where("payment = ? AND offer_letter_sent = ?", paid, false), nil
	case enrollment.KindWeeklyStage:
		return q.Where("payment = ? AND stage_counter <= total_stages", paid), nil
	case enrollment.KindCompletion:
		return q.Where("payment = ? AND completion_sent = ?", paid, false), nil
	case enrollment.KindRetention:
		return q, nil
	default:
		return nil, fmt.Errorf("%w: kind %q is not scheduled", shared.ErrInvalidInput, kind)
	}
}

// FindDue returns due enrollments in insertion order.
func (r *EnrollmentRepository) FindDue(ctx context.Context, kind enrollment.Kind, now time.Time, policy enrollment.DuePolicy) ([]*enrollment.Enrollment, error) {
	q, err := precondition(r.db.WithContext(ctx).Model(&enrollmentModel{}), kind)
	if err != nil {
		return nil, err
	}

	var rows []enrollmentModel
	if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find due %s: %w", kind, err)
	}

	out := make([]*enrollment.Enrollment, 0, len(rows))
	for i := range rows {
		e := rows[i].toDomain()
		if enrollment.IsDue(e, kind, now, policy) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkSent flips the flag only if it is still unset (or the stage still matches).
func (r *EnrollmentRepository) MarkSent(ctx context.Context, mark enrollment.SentMark) error {
	at := mark.SentAt.UTC()
	q := r.db.WithContext(ctx).Model(&enrollmentModel{}).Where("id = ?", mark.EnrollmentID)

	var res *gorm.DB
	switch mark.Kind {
	case enrollment.KindConfirmation:
		res = q.Where("confirmation_sent = ?", false).Updates(map[string]any{"confirmation_sent": true, "updated_at": at})
	case enrollment.KindDetails:
		res = q.Where("details_sent = ?", false).Updates(map[string]any{"details_sent": true, "updated_at": at})
	case enrollment.KindOfferLetter:
		res = q.Where("offer_letter_sent = ?", false).Updates(map[string]any{"offer_letter_sent": true, "updated_at": at})
	case enrollment.KindCompletion:
		res = q.Where("completion_sent = ?", false).Updates(map[string]any{"completion_sent": true, "updated_at": at})
	case enrollment.KindWeeklyStage:
		res = q.Where("stage_counter = ? AND stage_counter <= total_stages", mark.Stage).Updates(map[string]any{
			"stage_counter":      gorm.Expr("stage_counter + 1"),
			"last_stage_sent_at": at,
			"updated_at":         at,
		})
	default:
		return fmt.Errorf("%w: kind %q has no sent marker", shared.ErrInvalidInput, mark.Kind)
	}

	if res.Error != nil {
		return fmt.Errorf("mark %s sent: %w", mark.Kind, res.Error)
	}
	if res.RowsAffected == 0 {
		return shared.ErrAlreadyMarked
	}
	return nil
}

// UpdatePayment moves the payment state if the transition is allowed.
func (r *EnrollmentRepository) UpdatePayment(ctx context.Context, id string, to enrollment.PaymentState, at time.Time) (*enrollment.Enrollment, error) {
	var out *enrollment.Enrollment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m enrollmentModel
		if err := tx.Where("id = ?", id).Take(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrEnrollmentNotFound
			}
			return err
		}

		from := enrollment.PaymentState(m.Payment)
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidPaymentTransition, from, to)
		}

		updates := map[string]any{"payment": string(to), "updated_at": at.UTC()}
		if to == enrollment.PaymentPaid {
			updates["enrolled_at"] = at.UTC()
		}
		res := tx.Model(&enrollmentModel{}).Where("id = ? AND payment = ?", id, m.Payment).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: payment changed concurrently", shared.ErrInvalidPaymentTransition)
		}

		if err := tx.Where("id = ?", id).Take(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EnrollmentRepository) exists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&enrollmentModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return shared.ErrEnrollmentNotFound
	}
	return nil
}

// AddCompletion inserts the completion record unless it already exists.
func (r *EnrollmentRepository) AddCompletion(ctx context.Context, c enrollment.CompletionRecord) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.exists(tx, c.EnrollmentID); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completionModel{
			EnrollmentID: c.EnrollmentID,
			UnitID:       c.UnitID,
			CompletedAt:  c.CompletedAt.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	return created, err
}

// RemoveCompletion deletes a completion record.
func (r *EnrollmentRepository) RemoveCompletion(ctx context.Context, enrollmentID, unitID string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.exists(tx, enrollmentID); err != nil {
			return err
		}
		res := tx.Where("enrollment_id = ? AND unit_id = ?", enrollmentID, unitID).Delete(&completionModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	return removed, err
}

// RecomputeProgress recounts completion records and stores the percentage.
func (r *EnrollmentRepository) RecomputeProgress(ctx context.Context, id string) (int, error) {
	progress := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m enrollmentModel
		if err := tx.Select("id", "total_units").Where("id = ?", id).Take(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrEnrollmentNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&completionModel{}).Where("enrollment_id = ?", id).Count(&count).Error; err != nil {
			return err
		}

		progress = enrollment.ComputeProgress(int(count), m.TotalUnits)
		return tx.Model(&enrollmentModel{}).Where("id = ?", id).Update("progress", progress).Error
	})
	return progress, err
}

// PurgeOlderThan deletes enrollments created at or before cutoff with their completions.
func (r *EnrollmentRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []enrollmentModel
		if err := tx.Select("id", "created_at").Find(&rows).Error; err != nil {
			return err
		}

		ids := make([]string, 0)
		for _, m := range rows {
			if !m.CreatedAt.After(cutoff) {
				ids = append(ids, m.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("enrollment_id IN ?", ids).Delete(&completionModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&enrollmentModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge enrollments: %w", err)
	}
	return removed, nil
}

// Ping checks the database handle.
func (r *EnrollmentRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)
