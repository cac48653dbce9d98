package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/internal/middleware"
	"voting-portal/internal/service"
	"voting-portal/pkg/datetime"
	"voting-portal/pkg/ratelimit"
	"voting-portal/pkg/security"
)

type stubElections struct {
	elections  map[string]*domain.Election
	voters     []string
	registered []string
}

func (s *stubElections) FetchElection(_ context.Context, id string) (*domain.Election, error) {
	e, ok := s.elections[id]
	if !ok {
		return nil, &domain.APIError{Op: "FetchElection", StatusCode: 404, Kind: domain.ErrElectionNotFound}
	}
	cp := *e
	return &cp, nil
}

func (s *stubElections) FetchVoterList(context.Context, string) ([]string, error) {
	return s.voters, nil
}

func (s *stubElections) RegisterVoter(_ context.Context, _ string, identifier string) error {
	s.registered = append(s.registered, identifier)
	s.voters = append(s.voters, identifier)
	return nil
}

type stubOTP struct {
	issued    int
	verifyErr error
}

func (s *stubOTP) Issue(_ context.Context, identifier, electionID string) (*domain.Challenge, error) {
	s.issued++
	return &domain.Challenge{PinID: "pin-1", Identifier: identifier, ElectionID: electionID}, nil
}

func (s *stubOTP) Verify(_ context.Context, pinID, code string) (bool, error) {
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return pinID == "pin-1" && code == "123456", nil
}

type testServer struct {
	router    *mux.Router
	elections *stubElections
	otp       *stubOTP
	cookies   []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := time.Now()

	elections := &stubElections{elections: map[string]*domain.Election{
		"open": {
			ID: "open", Title: "Open Poll", StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
			Visibility: domain.VisibilityOpen, AuthType: domain.AuthTypeEmail,
		},
		"closed": {
			ID: "closed", Title: "Board", StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
			Visibility: domain.VisibilityClosed, AuthType: domain.AuthTypePhone,
		},
		"soon": {
			ID: "soon", Title: "Later", StartDate: now.Add(2 * time.Hour), EndDate: now.Add(3 * time.Hour),
			Visibility: domain.VisibilityOpen, AuthType: domain.AuthTypePhone, AddCandidatesBy: domain.SelfNomination,
		},
	}}
	provider := &stubOTP{}
	obfuscator := security.NewObfuscator("test")

	svc := service.NewAdmissionService(elections, provider, ratelimit.NewLimiter(), obfuscator, nil,
		service.AdmissionConfig{}, zap.NewNop().Sugar())
	session := middleware.NewVoterSession(sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")))
	h := NewAdmissionHandler(svc, session, datetime.NewFormatter(), zap.NewNop().Sugar())

	r := mux.NewRouter()
	r.HandleFunc("/elections/{id}/status", h.Status).Methods("GET")
	r.HandleFunc("/elections/{id}/admission", h.Submit).Methods("POST")
	r.HandleFunc("/elections/{id}/admission", h.Reset).Methods("DELETE")
	r.HandleFunc("/elections/{id}/admission/verify", h.Verify).Methods("POST")
	ballot := r.PathPrefix("/elections/{id}/ballot/{voter}").Subrouter()
	ballot.Use(session.RequireAdmission(svc.ResolveBallotToken))
	ballot.HandleFunc("", h.Ballot).Methods("GET")

	return &testServer{router: r, elections: elections, otp: provider}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, admissionResponse) {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(buf)))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if got := rec.Result().Cookies(); len(got) > 0 {
		s.cookies = got
	}

	var resp admissionResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, "GET", "/elections/open/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "eligibility_check", resp.State)
	require.NotNil(t, resp.Status)
	assert.True(t, resp.Status.IsActive)
	assert.Equal(t, "Open Poll", resp.Election.Title)
	assert.True(t, strings.HasPrefix(resp.Countdown, "ends in "))

	code, resp = s.do(t, "GET", "/elections/soon/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", resp.State)
	assert.Equal(t, "/elections/soon/candidates/register", resp.CandidateRegisterPath)
	assert.True(t, strings.HasPrefix(resp.Countdown, "starts in "))

	code, resp = s.do(t, "GET", "/elections/nope/status", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "This election could not be found.", resp.Notice)
}

func TestOpenElectionFlowThroughHTTP(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "New@X.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "open_otp", resp.State)
	assert.Equal(t, 1, s.otp.issued)

	code, resp = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "999999"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "otp_failed", resp.State)
	assert.Equal(t, "The code you entered is incorrect.", resp.Notice)

	code, resp = s.do(t, "POST", "/elections/open/admission/verify", url.Values{"code": {"123456"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ballot_admit", resp.State)
	assert.Equal(t, []string{"new@x.com"}, s.elections.registered)
	require.NotEmpty(t, resp.BallotPath)

	code, resp = s.do(t, "GET", resp.BallotPath, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ballot_admit", resp.State)

	code, _ = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code, "finished attempt cannot be verified again")
}

func TestClosedElectionThroughHTTP(t *testing.T) {
	s := newTestServer(t)
	s.elections.voters = []string{"08031234567"}

	code, resp := s.do(t, "POST", "/elections/closed/admission", map[string]string{"identifier": "08011111111"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "closed_rejected", resp.State)
	assert.Zero(t, s.otp.issued)

	code, resp = s.do(t, "POST", "/elections/closed/admission", url.Values{"identifier": {"+234 803 123 4567"}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ballot_admit", resp.State)
	assert.Empty(t, s.elections.registered)
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "required", resp.Errors[0].Tag)

	code, resp = s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "a@b"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Please enter a valid phone number or email address.", resp.Notice)

	code, _ = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code, "no attempt in session")
}

func TestBallotRequiresAdmission(t *testing.T) {
	s := newTestServer(t)
	token := security.NewObfuscator("test").Encode("new@x.com")

	code, _ := s.do(t, "GET", "/elections/open/ballot/"+token, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestResetClearsAttempt(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "new@x.com"})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, "DELETE", "/elections/open/admission", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestVerifyAfterElectionEnds(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "late@x.com"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "open_otp", resp.State)

	open := s.elections.elections["open"]
	open.StartDate = time.Now().Add(-2 * time.Hour)
	open.EndDate = time.Now().Add(-time.Minute)

	code, resp = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ended", resp.State)
	assert.Equal(t, "/elections/open/results", resp.ResultsPath)
	assert.Empty(t, resp.BallotPath)
	require.NotNil(t, resp.Status)
	assert.True(t, resp.Status.HasEnded)
	assert.Empty(t, s.elections.registered)

	code, _ = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code, "settled attempt is dropped from the session")
}

func TestVerifyExpiredCode(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "slow@x.com"})
	require.Equal(t, http.StatusOK, code)

	s.otp.verifyErr = domain.ErrOTPExpired
	code, resp := s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "otp_failed", resp.State)
	assert.Equal(t, "Your code has expired. Please request a new one.", resp.Notice)

	code, _ = s.do(t, "POST", "/elections/open/admission/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code, "expired challenge cannot be retried")

	s.otp.verifyErr = nil
	code, resp = s.do(t, "POST", "/elections/open/admission", map[string]string{"identifier": "slow@x.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "open_otp", resp.State)
	assert.Equal(t, 2, s.otp.issued)
}
