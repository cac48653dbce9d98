package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/pkg/email"
	"voting-portal/pkg/security"
	"voting-portal/pkg/sms"
)

type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

func newMemoryStore() *memoryStore {
	return &memoryStore{challenges: make(map[string]*domain.Challenge)}
}

func (s *memoryStore) Store(_ context.Context, c *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[c.PinID] = &cp
	return nil
}

func (s *memoryStore) GetByPinID(_ context.Context, pinID string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[pinID]
	if !ok {
		return nil, domain.ErrOTPNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) IncrementAttempts(_ context.Context, pinID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[pinID]
	if !ok {
		return 0, domain.ErrOTPNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (s *memoryStore) Delete(_ context.Context, pinID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, pinID)
	return nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.challenges {
		if c.ExpiresAt.Before(before) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

type outbox struct {
	to, body string
	err      error
	sent     int
}

func (o *outbox) SendEmail(_ context.Context, to, subject, body string) error {
	if o.err != nil {
		return o.err
	}
	o.to, o.body = to, body
	o.sent++
	return nil
}

func (o *outbox) SendSMS(_ context.Context, to, message string) error {
	if o.err != nil {
		return o.err
	}
	o.to, o.body = to, message
	o.sent++
	return nil
}

func newLocal(store *memoryStore, mail email.Service, text sms.Sender) *LocalProvider {
	p := NewLocalProvider(store, security.NewOTPGenerator(6), mail, text,
		LocalConfig{TTL: 10 * time.Minute, MaxAttempts: 3}, zap.NewNop().Sugar())
	return p
}

func TestLocalProviderIssueAndVerify(t *testing.T) {
	store := newMemoryStore()
	mail, text := &outbox{}, &outbox{}
	p := newLocal(store, mail, text)
	ctx := context.Background()

	c, err := p.Issue(ctx, "voter@example.com", "e1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.PinID)
	assert.Equal(t, 1, mail.sent)
	assert.Equal(t, 0, text.sent)
	assert.Contains(t, mail.body, c.Code)

	ok, err := p.Verify(ctx, c.PinID, "000000x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Verify(ctx, c.PinID, c.Code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Verify(ctx, c.PinID, c.Code)
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestLocalProviderSMSChannel(t *testing.T) {
	store := newMemoryStore()
	mail, text := &outbox{}, &outbox{}
	p := newLocal(store, mail, text)

	c, err := p.Issue(context.Background(), "2348031234567", "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, text.sent)
	assert.Equal(t, "2348031234567", text.to)
	assert.Contains(t, text.body, c.Code)
}

func TestLocalProviderDeliveryFailure(t *testing.T) {
	store := newMemoryStore()
	p := newLocal(store, &outbox{err: errors.New("smtp down")}, nil)

	_, err := p.Issue(context.Background(), "voter@example.com", "e1")
	assert.ErrorIs(t, err, domain.ErrOTPIssue)
	assert.Zero(t, store.len(), "undelivered challenge is discarded")

	_, err = p.Issue(context.Background(), "2348031234567", "e1")
	assert.ErrorIs(t, err, domain.ErrOTPIssue, "no SMS sender configured")
}

func TestLocalProviderExpiry(t *testing.T) {
	store := newMemoryStore()
	p := newLocal(store, &outbox{}, &outbox{})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	c, err := p.Issue(context.Background(), "voter@example.com", "e1")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	ok, err := p.Verify(context.Background(), c.PinID, c.Code)
	assert.ErrorIs(t, err, domain.ErrOTPExpired)
	assert.False(t, ok)
	assert.Zero(t, store.len())

	ok, err = p.Verify(context.Background(), c.PinID, c.Code)
	require.NoError(t, err, "a discarded challenge is simply unknown")
	assert.False(t, ok)
}

func TestLocalProviderAttemptLimit(t *testing.T) {
	store := newMemoryStore()
	p := newLocal(store, &outbox{}, &outbox{})
	ctx := context.Background()

	c, err := p.Issue(ctx, "voter@example.com", "e1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := p.Verify(ctx, c.PinID, "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := p.Verify(ctx, c.PinID, c.Code)
	require.NoError(t, err)
	assert.False(t, ok, "correct code after too many attempts is refused")
}

func TestLocalProviderUnknownPin(t *testing.T) {
	p := newLocal(newMemoryStore(), &outbox{}, &outbox{})
	ok, err := p.Verify(context.Background(), "missing", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalProviderRunCleanup(t *testing.T) {
	store := newMemoryStore()
	p := newLocal(store, &outbox{}, &outbox{})
	require.NoError(t, store.Store(context.Background(), &domain.Challenge{
		PinID: "old", Identifier: "a@b.co", Code: "1", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
