package email

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewResendServiceRequiresConfig(t *testing.T) {
	_, err := NewResendService("", "noreply@example.com", zap.NewNop().Sugar())
	assert.Error(t, err)

	_, err = NewResendService("re_key", "", zap.NewNop().Sugar())
	assert.Error(t, err)

	s, err := NewResendService("re_key", "noreply@example.com", zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestSMTPConfigValidate(t *testing.T) {
	assert.Error(t, SMTPConfig{}.Validate())
	assert.Error(t, SMTPConfig{Host: "smtp.example.com"}.Validate())
	assert.Error(t, SMTPConfig{Host: "smtp.example.com", Port: 587}.Validate())
	assert.NoError(t, SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}.Validate())
}

func TestSMTPServiceMessage(t *testing.T) {
	s, err := NewSMTPService(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}, zap.NewNop().Sugar())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.message("voter@example.com", "Your code", "<p>123456</p>").WriteTo(&buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "To: voter@example.com")
	assert.Contains(t, out, "Subject: Your code")
	assert.Contains(t, out, "123456")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "text/html")
}

func TestPlainText(t *testing.T) {
	html := "<p>Your voting verification code is <strong>482913</strong>.</p><p>It expires in 10 minutes.</p>"
	assert.Equal(t, "Your voting verification code is 482913.\nIt expires in 10 minutes.", plainText(html))
	assert.Equal(t, "just text", plainText("just text"))
}

func TestSMTPServiceHonoursCancelledContext(t *testing.T) {
	s, err := NewSMTPService(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}, zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendEmail(ctx, "voter@example.com", "s", "b"), context.Canceled)
}
