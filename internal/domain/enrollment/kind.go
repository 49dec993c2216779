package enrollment

import "time"

// Kind - вид уведомления жизненного цикла.
type Kind string

const (
	// KindConfirmation - подтверждение регистрации, отправляется синхронно.
	KindConfirmation Kind = "confirmation"
	// KindDetails - письмо с деталями программы и PDF.
	KindDetails Kind = "details-email"
	// KindOfferLetter - offer letter с отрендеренным изображением.
	KindOfferLetter Kind = "offer-letter"
	// KindWeeklyStage - еженедельное задание текущего этапа.
	KindWeeklyStage Kind = "weekly-stage-update"
	// KindCompletion - сертификат о завершении.
	KindCompletion Kind = "completion-certificate"
	// KindRetention - удаление устаревших записей (без письма).
	KindRetention Kind = "retention-cleanup"
)

// ScheduledKinds возвращает виды, которые обрабатывает планировщик.
func ScheduledKinds() []Kind {
	return []Kind{KindDetails, KindOfferLetter, KindWeeklyStage, KindCompletion, KindRetention}
}

// IsValid проверяет, что вид известен.
func (k Kind) IsValid() bool {
	switch k {
	case KindConfirmation, KindDetails, KindOfferLetter, KindWeeklyStage, KindCompletion, KindRetention:
		return true
	default:
		return false
	}
}

// SendsMessage возвращает true, если вид связан с отправкой письма.
func (k Kind) SendsMessage() bool {
	return k.IsValid() && k != KindRetention
}

// String возвращает строковое представление.
func (k Kind) String() string {
	return string(k)
}

// SentMark - отметка об успешной отправке для compare-and-set обновления.
type SentMark struct {
	EnrollmentID string
	Kind         Kind
	SentAt       time.Time

	// Stage - значение счётчика этапов, наблюдавшееся при отправке.
	// Используется только для KindWeeklyStage.
	Stage int
}

// MarkFor строит отметку для записи, которую только что обработали.
func MarkFor(e *Enrollment, kind Kind, at time.Time) SentMark {
	return SentMark{
		EnrollmentID: e.ID,
		Kind:         kind,
		SentAt:       at,
		Stage:        e.Status.StageCounter,
	}
}
