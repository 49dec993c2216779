package notification

import "github.com/skillnova/lifecycle-hub/internal/domain/shared"

var (
	// ErrEmptyRecipient возвращается для письма без получателя.
	ErrEmptyRecipient = shared.NewDomainError("notification", "Validate", shared.ErrEmptyValue, "recipient is required")
	// ErrEmptySubject возвращается для письма без темы.
	ErrEmptySubject = shared.NewDomainError("notification", "Validate", shared.ErrEmptyValue, "subject is required")
)
