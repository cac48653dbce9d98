// Package otp issues and verifies one-time passcodes for voter admission.
package otp

import (
	"context"
	"fmt"
	"strings"

	"voting-portal/internal/domain"
)

// Provider issues a challenge to an identifier and later checks a code
// against it. Verify returns false with a nil error for a wrong or expired
// code; errors are reserved for failures to reach the provider.
type Provider interface {
	Issue(ctx context.Context, identifier, electionID string) (*domain.Challenge, error)
	Verify(ctx context.Context, pinID, code string) (bool, error)
}

const (
	phonePrefix = "sms."
	emailPrefix = "mail."
)

// Router sends phone identifiers to one provider and email identifiers to
// another. Pin IDs carry the channel so Verify reaches the issuer.
type Router struct {
	Phone Provider
	Email Provider
}

func (r *Router) Issue(ctx context.Context, identifier, electionID string) (*domain.Challenge, error) {
	prefix, p := phonePrefix, r.Phone
	if domain.IdentifierKind(identifier) == domain.AuthTypeEmail {
		prefix, p = emailPrefix, r.Email
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no provider for %s identifiers", domain.ErrOTPIssue, domain.IdentifierKind(identifier))
	}

	c, err := p.Issue(ctx, identifier, electionID)
	if err != nil {
		return nil, err
	}
	c.PinID = prefix + c.PinID
	return c, nil
}

func (r *Router) Verify(ctx context.Context, pinID, code string) (bool, error) {
	switch {
	case strings.HasPrefix(pinID, phonePrefix) && r.Phone != nil:
		return r.Phone.Verify(ctx, strings.TrimPrefix(pinID, phonePrefix), code)
	case strings.HasPrefix(pinID, emailPrefix) && r.Email != nil:
		return r.Email.Verify(ctx, strings.TrimPrefix(pinID, emailPrefix), code)
	default:
		return false, nil
	}
}
