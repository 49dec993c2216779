// Package notification содержит доменную модель писем жизненного цикла.
package notification

import (
	"context"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Attachment - файл, прикладываемый к письму.
type Attachment struct {
	// Path - путь к файлу на диске.
	Path string

	// Optional - отсутствующий файл пропускается вместо ошибки.
	Optional bool
}

// Message - одно письмо получателю.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Validate проверяет обязательные поля.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrEmptyRecipient
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrEmptySubject
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY RESULT
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryResult представляет результат доставки письма.
type DeliveryResult struct {
	// Success - подтверждена ли доставка транспортом.
	Success bool

	// Attempts - сколько попыток было сделано.
	Attempts int

	// DeliveredAt - время подтверждения (нулевое при неудаче).
	DeliveredAt time.Time

	// Error - ошибка последней попытки.
	Error error
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Transport - одна попытка доставки через почтовый релей.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Sender доставляет письмо с повторными попытками.
// Sender никогда не изменяет хранилище записей.
type Sender interface {
	Send(ctx context.Context, msg Message) (DeliveryResult, error)
}

// ArtifactKind - вид изображения для рендеринга.
type ArtifactKind string

const (
	// ArtifactCertificate - сертификат о завершении.
	ArtifactCertificate ArtifactKind = "certificate"
	// ArtifactOfferLetter - offer letter.
	ArtifactOfferLetter ArtifactKind = "offer-letter"
)

// ArtifactRef определяет содержимое готового изображения: всё, что на нём напечатано.
// Имя сравнивается как есть, без смены регистра.
type ArtifactRef struct {
	Kind      ArtifactKind
	Name      string
	Program   string
	IssueDate string
}

// Renderer рисует изображение для пары (имя, программа) и возвращает путь к файлу.
type Renderer interface {
	Render(ctx context.Context, kind ArtifactKind, name, program string) (string, error)
}

// RendererFunc адаптирует функцию к интерфейсу Renderer.
type RendererFunc func(ctx context.Context, kind ArtifactKind, name, program string) (string, error)

// Render вызывает f.
func (f RendererFunc) Render(ctx context.Context, kind ArtifactKind, name, program string) (string, error) {
	return f(ctx, kind, name, program)
}
