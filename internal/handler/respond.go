package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"

	"voting-portal/internal/domain"
)

type fieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func formatValidationErrors(err error) []fieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}

	out := make([]fieldError, len(ve))
	for i, fe := range ve {
		out[i] = fieldError{Field: fe.Field(), Tag: fe.Tag()}
		switch fe.Tag() {
		case "required":
			out[i].Message = fmt.Sprintf("%s is required", fe.Field())
		case "numeric":
			out[i].Message = fmt.Sprintf("%s must contain only digits", fe.Field())
		case "min", "max":
			out[i].Message = fmt.Sprintf("%s has the wrong length", fe.Field())
		default:
			out[i].Message = fmt.Sprintf("%s is not valid", fe.Field())
		}
	}
	return out
}

// decodeBody reads a JSON body, or falls back to form values keyed by the
// json tag names in fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fields map[string]*string) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form data: %w", err)
	}
	for name, target := range fields {
		*target = r.FormValue(name)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsValidationError(err), errors.Is(err, domain.ErrInvalidElectionID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrElectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotPreRegistered):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOTPRateLimited), errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidOTP), errors.Is(err, domain.ErrOTPExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidElectionWindow):
		return http.StatusUnprocessableEntity
	case domain.IsNetworkError(err), errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrOTPIssue), errors.Is(err, domain.ErrVoterRegistration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
