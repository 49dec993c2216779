// Package shared содержит общие доменные ошибки.
// Пакет не зависит ни от чего, кроме стандартной библиотеки.
package shared

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// БАЗОВЫЕ ВИДЫ ОШИБОК
// Проверяются через errors.Is; по ним HTTP-слой выбирает статус ответа.
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMisconfigured      = errors.New("misconfigured")
)

// DomainError - ошибка с контекстом: где произошла и к какому виду относится.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap отдаёт причину, а если её нет - вид ошибки.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is совпадает с той же доменной ошибкой, с её видом и с причиной.
// Обёрнутая через fmt.Errorf("%w") ErrEnrollmentNotFound остаётся
// и ErrEnrollmentNotFound, и ErrNotFound.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Kind == t.Kind && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError создаёт доменную ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError добавляет доменный контекст к err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// ЗАПИСИ О СТАЖИРОВКЕ
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEnrollmentNotFound       = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrEnrollmentAlreadyExists  = NewDomainError("enrollment", "Create", ErrAlreadyExists, "enrollment already exists for this person and program")
	ErrAlreadyMarked            = NewDomainError("enrollment", "MarkSent", ErrAlreadyProcessed, "notification already marked as sent")
	ErrInvalidPaymentTransition = NewDomainError("enrollment", "UpdatePayment", ErrStateTransition, "invalid payment state transition")
	ErrUnknownProgram           = NewDomainError("enrollment", "Validate", ErrInvalidInput, "unknown program")
	ErrUnknownUnit              = NewDomainError("enrollment", "RecordCompletion", ErrInvalidInput, "unit does not belong to the program")
	ErrInvalidContact           = NewDomainError("enrollment", "Validate", ErrInvalidInput, "invalid contact address")
)

// ══════════════════════════════════════════════════════════════════════════════
// УВЕДОМЛЕНИЯ
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrMissingCredentials = NewDomainError("notification", "Send", ErrMisconfigured, "mail credentials are not configured")
	ErrInvalidRecipient   = NewDomainError("notification", "Send", ErrInvalidInput, "invalid recipient address")
	ErrDeliveryFailed     = NewDomainError("notification", "Send", ErrExternalService, "failed to deliver message")
	ErrRenderFailed       = NewDomainError("render", "Render", ErrExternalService, "failed to render artifact")
)

// ══════════════════════════════════════════════════════════════════════════════
// КЛАССИФИКАЦИЯ
// ══════════════════════════════════════════════════════════════════════════════

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation - ошибка во входных данных; HTTP отвечает 422.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsStateTransition - недопустимый переход состояния оплаты.
func IsStateTransition(err error) bool { return errors.Is(err, ErrStateTransition) }
