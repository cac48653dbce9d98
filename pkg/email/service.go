package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Service sends an HTML message; implementations add a plain-text part.
type Service interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type ResendService struct {
	from   string
	client *resend.Client
	log    *zap.SugaredLogger
}

func NewResendService(apiKey, from string, log *zap.SugaredLogger) (*ResendService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("from email address is required")
	}

	return &ResendService{
		from:   from,
		client: resend.NewClient(apiKey),
		log:    log,
	}, nil
}

func (s *ResendService) SendEmail(ctx context.Context, to, subject, body string) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Text:    plainText(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Debugw("email sent via resend", "message_id", sent.Id)
	return nil
}

// plainText flattens an HTML body for clients that do not render HTML.
func plainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("p, br, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
