package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"voting-portal/internal/domain"
)

type TermiiConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
	Channel  string
	TTL      time.Duration
	Attempts int
	Length   int
}

// TermiiProvider issues SMS tokens through Termii's OTP API. Termii holds
// the code; this side only ever sees the pinId.
type TermiiProvider struct {
	cfg        TermiiConfig
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewTermiiProvider(cfg TermiiConfig, log *zap.SugaredLogger) (*TermiiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("termii API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ng.termii.com"
	}
	if cfg.Channel == "" {
		cfg.Channel = "generic"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &TermiiProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}, nil
}

type termiiSendRequest struct {
	APIKey         string `json:"api_key"`
	MessageType    string `json:"message_type"`
	To             string `json:"to"`
	From           string `json:"from"`
	Channel        string `json:"channel"`
	PinAttempts    int    `json:"pin_attempts"`
	PinTimeToLive  int    `json:"pin_time_to_live"`
	PinLength      int    `json:"pin_length"`
	PinPlaceholder string `json:"pin_placeholder"`
	MessageText    string `json:"message_text"`
	PinType        string `json:"pin_type"`
}

type termiiSendResponse struct {
	PinID     string `json:"pinId"`
	To        string `json:"to"`
	SMSStatus string `json:"smsStatus"`
}

type termiiVerifyRequest struct {
	APIKey string `json:"api_key"`
	PinID  string `json:"pin_id"`
	Pin    string `json:"pin"`
}

type termiiVerifyResponse struct {
	PinID    string          `json:"pinId"`
	Verified json.RawMessage `json:"verified"`
	MSISDN   string          `json:"msisdn"`
}

func (p *TermiiProvider) Issue(ctx context.Context, identifier, electionID string) (*domain.Challenge, error) {
	minutes := int(p.cfg.TTL / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	req := termiiSendRequest{
		APIKey:         p.cfg.APIKey,
		MessageType:    "NUMERIC",
		To:             identifier,
		From:           p.cfg.SenderID,
		Channel:        p.cfg.Channel,
		PinAttempts:    p.cfg.Attempts,
		PinTimeToLive:  minutes,
		PinLength:      p.cfg.Length,
		PinPlaceholder: "< 1234 >",
		MessageText:    fmt.Sprintf("Your voting verification code is < 1234 >. It expires in %d minutes.", minutes),
		PinType:        "NUMERIC",
	}

	var resp termiiSendResponse
	if err := p.post(ctx, "/api/sms/otp/send", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOTPIssue, err)
	}
	if resp.PinID == "" {
		return nil, fmt.Errorf("%w: termii returned no pinId (status %q)", domain.ErrOTPIssue, resp.SMSStatus)
	}

	p.log.Infow("termii OTP issued", "election_id", electionID, "pin_id", resp.PinID)

	return &domain.Challenge{
		PinID:      resp.PinID,
		Identifier: identifier,
		ElectionID: electionID,
		ExpiresAt:  time.Now().Add(p.cfg.TTL),
		CreatedAt:  time.Now(),
	}, nil
}

func (p *TermiiProvider) Verify(ctx context.Context, pinID, code string) (bool, error) {
	req := termiiVerifyRequest{APIKey: p.cfg.APIKey, PinID: pinID, Pin: code}

	var resp termiiVerifyResponse
	if err := p.post(ctx, "/api/sms/otp/verify", req, &resp); err != nil {
		var statusErr *termiiStatusError
		if errors.As(err, &statusErr) && rejectsPin(statusErr.status) {
			return false, nil
		}
		return false, fmt.Errorf("termii verify failed: %w", err)
	}

	return isVerified(resp.Verified)
}

// rejectsPin reports whether a verify status means the pin itself was
// refused. Auth failures and throttling are provider errors.
func rejectsPin(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusNotFound
}

// isVerified reads Termii's "verified" field, which is a bool on success and
// a status string such as "Expired" otherwise.
func isVerified(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "expired") {
			return false, domain.ErrOTPExpired
		}
		return strings.EqualFold(s, "true"), nil
	}
	return false, nil
}

type termiiStatusError struct {
	status int
	body   string
}

func (e *termiiStatusError) Error() string {
	return fmt.Sprintf("termii returned status %d: %s", e.status, e.body)
}

func (p *TermiiProvider) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &termiiStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
