package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/internal/repository"
	"voting-portal/pkg/email"
	"voting-portal/pkg/security"
	"voting-portal/pkg/sms"
)

type LocalConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// LocalProvider generates codes itself, keeps them in Postgres and delivers
// them by email or SMS depending on the identifier.
type LocalProvider struct {
	store     repository.OTPRepository
	generator *security.OTPGenerator
	mailer    email.Service
	texter    sms.Sender
	cfg       LocalConfig
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewLocalProvider(
	store repository.OTPRepository,
	generator *security.OTPGenerator,
	mailer email.Service,
	texter sms.Sender,
	cfg LocalConfig,
	log *zap.SugaredLogger,
) *LocalProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &LocalProvider{
		store:     store,
		generator: generator,
		mailer:    mailer,
		texter:    texter,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

func (p *LocalProvider) Issue(ctx context.Context, identifier, electionID string) (*domain.Challenge, error) {
	code, err := p.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOTPIssue, err)
	}

	now := p.now()
	c := &domain.Challenge{
		PinID:      uuid.NewString(),
		Identifier: identifier,
		ElectionID: electionID,
		Code:       code,
		ExpiresAt:  now.Add(p.cfg.TTL),
		CreatedAt:  now,
	}

	if err := p.store.Store(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOTPIssue, err)
	}

	if err := p.deliver(ctx, identifier, code); err != nil {
		if delErr := p.store.Delete(ctx, c.PinID); delErr != nil {
			p.log.Warnw("failed to discard undelivered OTP", "pin_id", c.PinID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOTPIssue, err)
	}

	p.log.Infow("OTP issued", "election_id", electionID, "pin_id", c.PinID, "channel", domain.IdentifierKind(identifier))
	return c, nil
}

func (p *LocalProvider) deliver(ctx context.Context, identifier, code string) error {
	minutes := int(p.cfg.TTL / time.Minute)

	if domain.IdentifierKind(identifier) == domain.AuthTypeEmail {
		if p.mailer == nil {
			return fmt.Errorf("email delivery is not configured")
		}
		body := fmt.Sprintf("<p>Your voting verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>", code, minutes)
		return p.mailer.SendEmail(ctx, identifier, "Your voting verification code", body)
	}

	if p.texter == nil {
		return fmt.Errorf("SMS delivery is not configured")
	}
	return p.texter.SendSMS(ctx, identifier, fmt.Sprintf("Your voting verification code is %s. It expires in %d minutes.", code, minutes))
}

func (p *LocalProvider) Verify(ctx context.Context, pinID, code string) (bool, error) {
	c, err := p.store.GetByPinID(ctx, pinID)
	if err != nil {
		if errors.Is(err, domain.ErrOTPNotFound) {
			return false, nil
		}
		return false, err
	}

	if c.IsExpiredAt(p.now()) {
		p.discard(ctx, pinID)
		return false, domain.ErrOTPExpired
	}
	if c.Attempts >= p.cfg.MaxAttempts {
		p.discard(ctx, pinID)
		return false, nil
	}

	if _, err := p.store.IncrementAttempts(ctx, pinID); err != nil {
		return false, err
	}

	if !c.Matches(code, p.now()) {
		return false, nil
	}

	p.discard(ctx, pinID)
	return true, nil
}

func (p *LocalProvider) discard(ctx context.Context, pinID string) {
	if err := p.store.Delete(ctx, pinID); err != nil {
		p.log.Warnw("failed to delete OTP challenge", "pin_id", pinID, "error", err)
	}
}

// RunCleanup deletes expired challenges every interval until ctx is done.
func (p *LocalProvider) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.DeleteExpired(ctx, p.now())
			if err != nil {
				p.log.Warnw("OTP cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				p.log.Debugw("expired OTP challenges removed", "count", n)
			}
		}
	}
}
