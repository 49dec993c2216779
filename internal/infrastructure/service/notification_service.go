package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
	"github.com/skillnova/lifecycle-hub/pkg/circuitbreaker"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/retry"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// IDGeneratorImpl generates enrollment IDs.
type IDGeneratorImpl struct{}

func NewIDGenerator() *IDGeneratorImpl {
	return &IDGeneratorImpl{}
}

func (g *IDGeneratorImpl) GenerateID() string {
	return uuid.New().String()
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION SENDER
// ══════════════════════════════════════════════════════════════════════════════

// SenderConfig configures NotificationSender.
type SenderConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	Clock  timeutil.Clock
	Logger *slog.Logger

	// Sleep replaces the wait between attempts, used by tests.
	Sleep retry.SleepFunc
}

// DefaultSenderConfig returns three attempts two seconds apart.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		MaxAttempts:      3,
		RetryDelay:       2 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}
}

// NotificationSender implements notification.Sender over a Transport.
// It retries transient failures with a constant delay and stops calling a relay
// that keeps failing until its breaker timeout elapses.
type NotificationSender struct {
	transport notification.Transport
	retrier   *retry.Retrier
	breaker   *circuitbreaker.Breaker
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewNotificationSender wires the retry schedule and breaker around transport.
func NewNotificationSender(transport notification.Transport, cfg SenderConfig) *NotificationSender {
	def := DefaultSenderConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewSystemClock(nil)
	}

	log := logger.OrDefault(cfg.Logger).With(logger.Component("sender"))

	policy := retry.MailPolicy(cfg.MaxAttempts, cfg.RetryDelay)
	policy.Sleep = cfg.Sleep
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("delivery attempt failed, retrying",
			logger.Attempt(attempt),
			logger.Err(err),
			slog.String("delay", delay.String()),
		)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:      "smtp-relay",
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerTimeout,
		Clock:     cfg.Clock,
		// A bad recipient says nothing about the relay.
		IsFailure: func(err error) bool { return !retry.IsPermanent(err) },
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			log.Warn("mail relay breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &NotificationSender{
		transport: transport,
		retrier:   retry.New(policy),
		breaker:   breaker,
		clock:     cfg.Clock,
		logger:    log,
	}
}

// Send delivers msg, retrying transient failures.
// The returned error is nil exactly when result.Success is true.
func (s *NotificationSender) Send(ctx context.Context, msg notification.Message) (notification.DeliveryResult, error) {
	var result notification.DeliveryResult

	if err := msg.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", shared.ErrInvalidRecipient, err)
		result.Error = err
		return result, err
	}

	start := s.clock.Now()
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		result.Attempts++
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.transport.Deliver(ctx, msg)
		})
		if circuitbreaker.Rejected(err) {
			return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err))
		}
		return err
	})

	if err != nil {
		result.Error = err
		s.logger.Error("delivery failed",
			logger.Recipient(msg.To),
			slog.String("subject", msg.Subject),
			logger.Attempt(result.Attempts),
			logger.Err(err),
		)
		return result, err
	}

	result.Success = true
	result.DeliveredAt = s.clock.Now()
	s.logger.Info("message delivered",
		logger.Recipient(msg.To),
		slog.String("subject", msg.Subject),
		logger.Attempt(result.Attempts),
		logger.Latency(result.DeliveredAt.Sub(start)),
	)
	return result, nil
}

// BreakerState reports the relay breaker state for readiness checks.
func (s *NotificationSender) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

// RelayCheck fails while the relay breaker is open.
func (s *NotificationSender) RelayCheck(context.Context) error {
	if st := s.BreakerState(); st == circuitbreaker.StateOpen {
		return fmt.Errorf("%w: mail relay breaker is %s", shared.ErrServiceUnavailable, st)
	}
	return nil
}

var _ notification.Sender = (*NotificationSender)(nil)
