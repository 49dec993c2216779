package enrollment

import "time"

// CompletionRecord - отметка о выполнении одного проекта (unit) в рамках записи.
// Уникальна по паре (EnrollmentID, UnitID).
type CompletionRecord struct {
	EnrollmentID string
	UnitID       string
	CompletedAt  time.Time
}

// ComputeProgress возвращает floor(100*completed/total), ограниченный 0..100.
func ComputeProgress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return (100 * completed) / total
}
