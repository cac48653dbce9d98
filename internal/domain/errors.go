package domain

import (
	"errors"
	"fmt"
)

var (
	ErrElectionNotFound      = errors.New("election not found")
	ErrInvalidElectionID     = errors.New("invalid election ID")
	ErrInvalidElectionWindow = errors.New("election ends before it starts")
	ErrInvalidVisibility     = errors.New("invalid election visibility")
	ErrInvalidAuthType       = errors.New("invalid voter auth type")

	ErrNetwork      = errors.New("network error")
	ErrServer       = errors.New("server error")
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidIdentifier = errors.New("invalid voter identifier")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrInvalidEmail      = errors.New("invalid email address")

	ErrNotPreRegistered = errors.New("voter is not pre-registered for this election")

	ErrOTPIssue          = errors.New("failed to issue OTP")
	ErrInvalidOTP        = errors.New("invalid OTP")
	ErrOTPExpired        = errors.New("OTP has expired")
	ErrOTPNotFound       = errors.New("OTP not found")
	ErrOTPRateLimited    = errors.New("too many OTP requests")
	ErrTooManyAttempts   = errors.New("too many OTP verification attempts")
	ErrVoterRegistration = errors.New("failed to register voter")

	ErrInvalidTransition = errors.New("invalid admission transition")
)

// APIError is returned by the election repository for every failed remote
// call. It matches both its Kind sentinel and the underlying cause.
type APIError struct {
	Op         string
	StatusCode int
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrInvalidEmail)
}

func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}

// Notice maps a flow error to the message shown to the voter. Transport and
// server failures collapse into one generic message.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrElectionNotFound):
		return "This election could not be found."
	case errors.Is(err, ErrInvalidElectionWindow):
		return "This election is not configured correctly. Please contact the organiser."
	case errors.Is(err, ErrInvalidPhone):
		return "Please enter a valid phone number."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrInvalidIdentifier):
		return "Please enter a valid phone number or email address."
	case errors.Is(err, ErrNotPreRegistered):
		return "You are not registered to vote in this election."
	case errors.Is(err, ErrOTPRateLimited):
		return "Too many codes requested. Please try again later."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many incorrect codes. Please try again later."
	case errors.Is(err, ErrOTPExpired):
		return "Your code has expired. Please request a new one."
	case errors.Is(err, ErrInvalidOTP):
		return "The code you entered is incorrect."
	case errors.Is(err, ErrOTPIssue):
		return "We could not send your verification code. Please try again."
	case errors.Is(err, ErrVoterRegistration):
		return "We could not complete your registration. Please try again."
	case errors.Is(err, ErrInvalidTransition):
		return "Please start again."
	default:
		return "Unable to verify at this time. Please try again."
	}
}
