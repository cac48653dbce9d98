package domain

import (
	"regexp"
	"strings"
)

const countryPrefix = "234"

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

func digitsOnly(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

// NormalizePhone converts a Nigerian phone number into its 234-prefixed
// digits-only form. Applying it twice gives the same result as once.
func NormalizePhone(raw string) string {
	digits := digitsOnly(raw)

	switch {
	case strings.HasPrefix(digits, "0"):
		return countryPrefix + digits[1:]
	case strings.HasPrefix(digits, countryPrefix):
		return digits
	case len(digits) == 10:
		return countryPrefix + digits
	default:
		return digits
	}
}

// IsValidPhone accepts a national number (11 digits with a leading 0), a
// bare 10-digit number, or anything that normalizes to 13 digits starting
// with the country prefix.
func IsValidPhone(raw string) bool {
	digits := digitsOnly(raw)
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return true
	case len(digits) == 10:
		return true
	}

	normalized := NormalizePhone(digits)
	return len(normalized) == 13 && strings.HasPrefix(normalized, countryPrefix)
}

func IsValidEmail(raw string) bool {
	return emailPattern.MatchString(raw)
}

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// LooksLikeIdentifier reports whether raw could be a voter identifier of
// either kind. It needs no election context.
func LooksLikeIdentifier(raw string) bool {
	raw = strings.TrimSpace(raw)
	return IsValidPhone(raw) || IsValidEmail(raw)
}

// NormalizeIdentifier validates raw for the given auth type and returns the
// form used for voter-list membership.
func NormalizeIdentifier(authType AuthType, raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	switch authType {
	case AuthTypePhone:
		if !IsValidPhone(raw) {
			return "", ErrInvalidPhone
		}
		return NormalizePhone(raw), nil
	case AuthTypeEmail:
		if !IsValidEmail(raw) {
			return "", ErrInvalidEmail
		}
		return NormalizeEmail(raw), nil
	default:
		return "", ErrInvalidAuthType
	}
}

// IdentifierKind guesses the auth type of an identifier that has already
// been normalized.
func IdentifierKind(identifier string) AuthType {
	if strings.Contains(identifier, "@") {
		return AuthTypeEmail
	}
	return AuthTypePhone
}
