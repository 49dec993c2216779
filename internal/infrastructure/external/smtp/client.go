// Package smtp delivers lifecycle messages through an SMTP relay using go-mail.
// One Deliver call is one attempt: it dials, upgrades with STARTTLS,
// authenticates and sends. Retries belong to the caller.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From defaults to Username.
	From string

	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the Gmail relay settings.
func DefaultConfig() Config {
	return Config{
		Host:    "smtp.gmail.com",
		Port:    587,
		Timeout: 30 * time.Second,
	}
}

// sendFunc performs the network part of one attempt.
type sendFunc func(ctx context.Context, cfg Config, msg *mail.Msg) error

// Client implements notification.Transport.
type Client struct {
	cfg    Config
	logger *slog.Logger
	send   sendFunc
}

// NewClient creates a relay client. Missing credentials are reported per send.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Client{
		cfg:    cfg,
		logger: logger.OrDefault(cfg.Logger).With(logger.Component("smtp")),
		send:   dialAndSend,
	}
}

// Deliver performs a single delivery attempt.
// Errors that another attempt cannot fix are wrapped with retry.Permanent.
func (c *Client) Deliver(ctx context.Context, msg notification.Message) error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return retry.Permanent(shared.ErrMissingCredentials)
	}
	if err := msg.Validate(); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrInvalidRecipient, err))
	}

	m, attached, err := c.buildMsg(msg)
	if err != nil {
		return err
	}

	if err := c.send(ctx, c.cfg, m); err != nil {
		if isPermanentReply(err) {
			return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrDeliveryFailed, err))
		}
		return fmt.Errorf("%w: %v", shared.ErrDeliveryFailed, err)
	}

	c.logger.Debug("message relayed",
		logger.Recipient(msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("attachments", attached),
	)
	return nil
}

// buildMsg assembles the MIME message and returns how many files were attached.
func (c *Client) buildMsg(msg notification.Message) (*mail.Msg, int, error) {
	m := mail.NewMsg()
	if err := m.From(c.cfg.From); err != nil {
		return nil, 0, retry.Permanent(fmt.Errorf("%w: sender %q: %v", shared.ErrMisconfigured, c.cfg.From, err))
	}
	if err := m.To(msg.To); err != nil {
		return nil, 0, retry.Permanent(fmt.Errorf("%w: %v", shared.ErrInvalidRecipient, err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	attached := 0
	for _, a := range msg.Attachments {
		if a.Path == "" {
			continue
		}
		info, err := os.Stat(a.Path)
		if err != nil || info.IsDir() {
			if a.Optional {
				c.logger.Warn("optional attachment missing, skipping", slog.String("path", a.Path))
				continue
			}
			return nil, 0, retry.Permanent(fmt.Errorf("%w: attachment %s not readable", shared.ErrDeliveryFailed, a.Path))
		}
		m.AttachFile(a.Path, mail.WithFileName(filepath.Base(a.Path)))
		attached++
	}
	return m, attached, nil
}

func dialAndSend(ctx context.Context, cfg Config, msg *mail.Msg) error {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// isPermanentReply reports whether the relay answered with a 5xx reply.
func isPermanentReply(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	return false
}

var _ notification.Transport = (*Client)(nil)
