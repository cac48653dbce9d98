package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"voting-portal/internal/domain"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{domain.ErrInvalidPhone, http.StatusBadRequest},
		{domain.ErrInvalidElectionID, http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", &domain.APIError{Op: "FetchElection", StatusCode: 404, Kind: domain.ErrElectionNotFound}), http.StatusNotFound},
		{domain.ErrNotPreRegistered, http.StatusForbidden},
		{domain.ErrOTPRateLimited, http.StatusTooManyRequests},
		{domain.ErrTooManyAttempts, http.StatusTooManyRequests},
		{domain.ErrInvalidOTP, http.StatusUnauthorized},
		{domain.ErrOTPExpired, http.StatusUnauthorized},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrInvalidElectionWindow, http.StatusUnprocessableEntity},
		{&domain.APIError{Op: "FetchVoterList", Kind: domain.ErrNetwork, Err: errors.New("dial tcp")}, http.StatusBadGateway},
		{&domain.APIError{Op: "FetchElection", StatusCode: 401, Kind: domain.ErrUnauthorized}, http.StatusBadGateway},
		{fmt.Errorf("%w: smtp down", domain.ErrOTPIssue), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), "%v", tc.err)
	}
}
