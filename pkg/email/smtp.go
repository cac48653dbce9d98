package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("SMTP host is not configured")
	case c.Port == 0:
		return fmt.Errorf("SMTP port is not configured")
	case c.From == "":
		return fmt.Errorf("email from address is not configured")
	}
	return nil
}

// SMTPService delivers mail through a plain SMTP relay.
type SMTPService struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	log    *zap.SugaredLogger
}

func NewSMTPService(cfg SMTPConfig, log *zap.SugaredLogger) (*SMTPService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &SMTPService{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    log,
	}, nil
}

func (s *SMTPService) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.message(to, subject, body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Debugw("email sent via smtp", "host", s.cfg.Host)
	return nil
}

func (s *SMTPService) message(to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainText(body))
	m.AddAlternative("text/html", body)
	return m
}
