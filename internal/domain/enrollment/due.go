package enrollment

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// DUE POLICY
// ══════════════════════════════════════════════════════════════════════════════

// DuePolicy - пороги времени для каждого вида уведомлений.
type DuePolicy struct {
	DetailsDelay time.Duration
	OfferDelay   time.Duration
	StageGap     time.Duration
	UnitLength   time.Duration
	RetentionAge time.Duration
}

// DefaultDuePolicy возвращает значения по умолчанию.
func DefaultDuePolicy() DuePolicy {
	return DuePolicy{
		DetailsDelay: 10 * time.Hour,
		OfferDelay:   10 * time.Hour,
		StageGap:     6 * 24 * time.Hour,
		UnitLength:   28 * 24 * time.Hour,
		RetentionAge: 60 * 24 * time.Hour,
	}
}

// StageBaseline возвращает точку отсчёта для еженедельного письма:
// max(EnrolledAt, LastStageSentAt).
func StageBaseline(e *Enrollment) time.Time {
	base := e.EnrolledAt
	if last := e.Status.LastStageSentAt; last != nil && last.After(base) {
		base = *last
	}
	return base
}

// IsDue проверяет, положено ли отправить уведомление вида kind в момент now.
// Граница включительная: now >= порог.
func IsDue(e *Enrollment, kind Kind, now time.Time, p DuePolicy) bool {
	if kind == KindRetention {
		return !now.Before(e.CreatedAt.Add(p.RetentionAge))
	}
	if !e.IsPaid() {
		return false
	}

	switch kind {
	case KindDetails:
		return !e.Status.DetailsSent && !now.Before(e.EnrolledAt.Add(p.DetailsDelay))
	case KindOfferLetter:
		return !e.Status.OfferLetterSent && !now.Before(e.EnrolledAt.Add(p.OfferDelay))
	case KindWeeklyStage:
		if e.StagesExhausted() {
			return false
		}
		return !now.Before(StageBaseline(e).Add(p.StageGap))
	case KindCompletion:
		return !e.Status.CompletionSent && !now.Before(e.CompletionDueAt(p.UnitLength))
	default:
		return false
	}
}
