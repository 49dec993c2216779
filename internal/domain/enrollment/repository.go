package enrollment

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт хранилища записей. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над записями и отметками о выполнении.
type Repository interface {
	// Create создаёт новую запись.
	// Возвращает ErrEnrollmentAlreadyExists при совпадении (Contact, ProgramID).
	Create(ctx context.Context, e *Enrollment) error

	// GetByID возвращает запись по ID.
	// Возвращает ErrEnrollmentNotFound, если запись не найдена.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// GetByIdentity возвращает запись по паре (контакт, программа).
	GetByIdentity(ctx context.Context, contact, programID string) (*Enrollment, error)

	// FindDue возвращает записи, для которых уведомление kind положено в момент now,
	// в порядке вставки.
	FindDue(ctx context.Context, kind Kind, now time.Time, policy DuePolicy) ([]*Enrollment, error)

	// MarkSent атомарно выставляет флаг (или сдвигает этап) только если
	// предыдущее значение совпадает. Возвращает ErrAlreadyMarked, если
	// обновление затронуло ноль строк.
	MarkSent(ctx context.Context, mark SentMark) error

	// UpdatePayment переводит оплату в состояние to.
	// Если to == PaymentPaid, EnrolledAt выставляется в at.
	// Возвращает ErrInvalidPaymentTransition для недопустимого перехода.
	UpdatePayment(ctx context.Context, id string, to PaymentState, at time.Time) (*Enrollment, error)

	// AddCompletion создаёт отметку о выполнении; повторная отметка - no-op (created=false).
	AddCompletion(ctx context.Context, rec CompletionRecord) (created bool, err error)

	// RemoveCompletion удаляет отметку; removed=false, если её не было.
	RemoveCompletion(ctx context.Context, enrollmentID, unitID string) (removed bool, err error)

	// RecomputeProgress пересчитывает прогресс из числа отметок и сохраняет его.
	RecomputeProgress(ctx context.Context, id string) (int, error)

	// PurgeOlderThan удаляет записи с CreatedAt <= cutoff вместе с их отметками.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// MarkTimeout ограничивает MarkSent после подтверждённой доставки.
const MarkTimeout = 5 * time.Second

// MarkDelivered выставляет отметку о письме, которое ретранслятор уже принял.
// Отмена ctx (таймаут тика, остановка) не мешает записи, иначе то же письмо
// ушло бы повторно на следующем тике.
func MarkDelivered(ctx context.Context, repo Repository, mark SentMark) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), MarkTimeout)
	defer cancel()
	return repo.MarkSent(markCtx, mark)
}
