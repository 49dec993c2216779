package enrollment

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentState определяет состояние оплаты стажировки.
type PaymentState string

const (
	// PaymentPending - оплата ещё не подтверждена.
	PaymentPending PaymentState = "pending"
	// PaymentPaid - оплата подтверждена шлюзом.
	PaymentPaid PaymentState = "paid"
	// PaymentFailed - оплата отклонена.
	PaymentFailed PaymentState = "failed"
)

// IsValid проверяет, что состояние корректно.
func (p PaymentState) IsValid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода.
// Из paid выхода нет, failed можно повторно оплатить.
func (p PaymentState) CanTransitionTo(next PaymentState) bool {
	switch p {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentFailed
	case PaymentFailed:
		return next == PaymentPaid
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION STATUS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationStatus - набор независимых однонаправленных флагов и счётчик этапов.
type NotificationStatus struct {
	ConfirmationSent bool
	DetailsSent      bool
	OfferLetterSent  bool
	CompletionSent   bool

	// StageCounter - номер текущего этапа, начиная с 1.
	// Значение TotalStages+1 означает, что все еженедельные письма отправлены.
	StageCounter int

	// LastStageSentAt - время последнего еженедельного письма (nil, если не было).
	LastStageSentAt *time.Time
}

// Flag возвращает значение флага для вида уведомления.
// Для еженедельных писем флага нет, возвращается false.
func (s NotificationStatus) Flag(kind Kind) bool {
	switch kind {
	case KindConfirmation:
		return s.ConfirmationSent
	case KindDetails:
		return s.DetailsSent
	case KindOfferLetter:
		return s.OfferLetterSent
	case KindCompletion:
		return s.CompletionSent
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment - запись одного человека на одну программу.
type Enrollment struct {
	ID        string
	Name      string
	Contact   string // email, хранится в нижнем регистре
	ProgramID string
	Payment   PaymentState

	// EnrolledAt - начало стажировки (момент подтверждения оплаты).
	EnrolledAt time.Time

	// DurationUnits - длительность программы в условных месяцах (по 28 дней).
	DurationUnits int

	// TotalStages - число еженедельных этапов, снимок на момент регистрации.
	TotalStages int

	// TotalUnits - число проектов для расчёта прогресса.
	TotalUnits int

	Status   NotificationStatus
	Progress int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEnrollmentParams содержит параметры для создания записи.
type NewEnrollmentParams struct {
	ID            string
	Name          string
	Contact       string
	ProgramID     string
	Payment       PaymentState
	DurationUnits int
	TotalStages   int
	TotalUnits    int
	Now           time.Time
}

// NewEnrollment создаёт новую запись с валидацией.
func NewEnrollment(p NewEnrollmentParams) (*Enrollment, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrInvalidID, "id is required")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrEmptyValue, "name is required")
	}
	contact, err := NormalizeContact(p.Contact)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ProgramID) == "" {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrEmptyValue, "program is required")
	}
	if p.Payment == "" {
		p.Payment = PaymentPending
	}
	if !p.Payment.IsValid() {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrInvalidInput,
			fmt.Sprintf("unknown payment state %q", p.Payment))
	}
	if p.DurationUnits <= 0 {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrValueOutOfRange, "duration must be positive")
	}
	if p.TotalStages < 0 {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrValueOutOfRange, "total stages cannot be negative")
	}
	if p.TotalUnits <= 0 {
		return nil, shared.NewDomainError("enrollment", "Create", shared.ErrValueOutOfRange, "total units must be positive")
	}

	now := p.Now.UTC()
	return &Enrollment{
		ID:            p.ID,
		Name:          name,
		Contact:       contact,
		ProgramID:     p.ProgramID,
		Payment:       p.Payment,
		EnrolledAt:    now,
		DurationUnits: p.DurationUnits,
		TotalStages:   p.TotalStages,
		TotalUnits:    p.TotalUnits,
		Status:        NotificationStatus{StageCounter: 1},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NormalizeContact проверяет и нормализует адрес почты.
func NormalizeContact(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", shared.WrapError("enrollment", "Validate", shared.ErrInvalidInput, "invalid contact address", err)
	}
	return strings.ToLower(addr.Address), nil
}

// IsPaid возвращает true, если оплата подтверждена.
func (e *Enrollment) IsPaid() bool {
	return e.Payment == PaymentPaid
}

// StagesExhausted возвращает true, если все еженедельные этапы пройдены.
func (e *Enrollment) StagesExhausted() bool {
	return e.Status.StageCounter > e.TotalStages
}

// CompletionDueAt возвращает момент, когда положен сертификат.
func (e *Enrollment) CompletionDueAt(unitLength time.Duration) time.Time {
	return e.EnrolledAt.Add(time.Duration(e.DurationUnits) * unitLength)
}

// ApplyMark применяет отметку об отправке к записи в памяти.
// Возвращает ErrAlreadyMarked, если отметка уже была применена.
func (e *Enrollment) ApplyMark(m SentMark) error {
	switch m.Kind {
	case KindConfirmation:
		if e.Status.ConfirmationSent {
			return shared.ErrAlreadyMarked
		}
		e.Status.ConfirmationSent = true
	case KindDetails:
		if e.Status.DetailsSent {
			return shared.ErrAlreadyMarked
		}
		e.Status.DetailsSent = true
	case KindOfferLetter:
		if e.Status.OfferLetterSent {
			return shared.ErrAlreadyMarked
		}
		e.Status.OfferLetterSent = true
	case KindCompletion:
		if e.Status.CompletionSent {
			return shared.ErrAlreadyMarked
		}
		e.Status.CompletionSent = true
	case KindWeeklyStage:
		if e.Status.StageCounter != m.Stage || e.StagesExhausted() {
			return shared.ErrAlreadyMarked
		}
		at := m.SentAt.UTC()
		e.Status.StageCounter++
		e.Status.LastStageSentAt = &at
	default:
		return shared.NewDomainError("enrollment", "MarkSent", shared.ErrInvalidInput,
			fmt.Sprintf("kind %q has no sent marker", m.Kind))
	}
	e.UpdatedAt = m.SentAt.UTC()
	return nil
}

// Clone возвращает глубокую копию записи.
func (e *Enrollment) Clone() *Enrollment {
	c := *e
	if e.Status.LastStageSentAt != nil {
		t := *e.Status.LastStageSentAt
		c.Status.LastStageSentAt = &t
	}
	return &c
}
