package handler

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/internal/middleware"
	"voting-portal/internal/service"
	"voting-portal/pkg/datetime"
)

type AdmissionHandler struct {
	admission *service.AdmissionService
	session   *middleware.VoterSession
	dates     *datetime.Formatter
	validate  *validator.Validate
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewAdmissionHandler(
	admission *service.AdmissionService,
	session *middleware.VoterSession,
	dates *datetime.Formatter,
	log *zap.SugaredLogger,
) *AdmissionHandler {
	return &AdmissionHandler{
		admission: admission,
		session:   session,
		dates:     dates,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
		log:       log,
	}
}

type identifierRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
}

type codeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=4,max=9"`
}

type electionView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartsAt    string `json:"startsAt"`
	EndsAt      string `json:"endsAt"`
	Visibility  string `json:"visibility"`
	AuthType    string `json:"authType"`
}

type admissionResponse struct {
	ElectionID            string              `json:"electionId"`
	State                 string              `json:"state"`
	Status                *domain.EventStatus `json:"status,omitempty"`
	Election              *electionView       `json:"election,omitempty"`
	Countdown             string              `json:"countdown,omitempty"`
	Notice                string              `json:"notice,omitempty"`
	BallotPath            string              `json:"ballotPath,omitempty"`
	ResultsPath           string              `json:"resultsPath,omitempty"`
	CandidateRegisterPath string              `json:"candidateRegisterPath,omitempty"`
	Errors                []fieldError        `json:"errors,omitempty"`
}

// Status reports where the election sits in its lifecycle and what the
// voter can do next.
func (h *AdmissionHandler) Status(w http.ResponseWriter, r *http.Request) {
	electionID := mux.Vars(r)["id"]

	adm, err := h.admission.Lookup(r.Context(), electionID)
	if err != nil {
		h.fail(w, adm, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(adm))
}

// Submit starts an admission attempt with the voter's phone or email.
func (h *AdmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	electionID := mux.Vars(r)["id"]

	var req identifierRequest
	if err := decodeBody(w, r, &req, map[string]*string{"identifier": &req.Identifier}); err != nil {
		writeJSON(w, http.StatusBadRequest, admissionResponse{ElectionID: electionID, State: string(domain.StateIdle), Notice: err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, admissionResponse{
			ElectionID: electionID,
			State:      string(domain.StateIdle),
			Notice:     domain.Notice(domain.ErrInvalidIdentifier),
			Errors:     formatValidationErrors(err),
		})
		return
	}

	adm, err := h.admission.Admit(r.Context(), electionID, req.Identifier)
	if err != nil {
		h.fail(w, adm, err)
		return
	}

	if err := h.persist(w, r, adm); err != nil {
		h.log.Errorw("failed to save voter session", "election_id", electionID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.view(adm))
}

// Verify checks the OTP for the attempt held in the session.
func (h *AdmissionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	electionID := mux.Vars(r)["id"]

	attempt, ok := h.session.LoadAttempt(r, electionID)
	if !ok {
		h.fail(w, &service.Admission{ElectionID: electionID, State: domain.StateIdle}, domain.ErrInvalidTransition)
		return
	}

	var req codeRequest
	if err := decodeBody(w, r, &req, map[string]*string{"code": &req.Code}); err != nil {
		writeJSON(w, http.StatusBadRequest, admissionResponse{ElectionID: electionID, State: attempt.State, Notice: err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, admissionResponse{
			ElectionID: electionID,
			State:      attempt.State,
			Notice:     domain.Notice(domain.ErrInvalidOTP),
			Errors:     formatValidationErrors(err),
		})
		return
	}

	adm := &service.Admission{
		ElectionID: attempt.ElectionID,
		Identifier: attempt.Identifier,
		PinID:      attempt.PinID,
		Verified:   attempt.Verified,
		State:      domain.AdmissionState(attempt.State),
	}

	verifyErr := h.admission.VerifyCode(r.Context(), adm, req.Code)

	if err := h.persist(w, r, adm); err != nil {
		h.log.Errorw("failed to save voter session", "election_id", electionID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if verifyErr != nil {
		h.fail(w, adm, verifyErr)
		return
	}
	writeJSON(w, http.StatusOK, h.view(adm))
}

// Reset abandons the current attempt so the voter can start over.
func (h *AdmissionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ClearAttempt(w, r); err != nil {
		h.log.Warnw("failed to clear voter session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ballot is the landing point of an admitted voter; RequireAdmission has
// already checked the voter token against the session.
func (h *AdmissionHandler) Ballot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	adm, err := h.admission.Lookup(r.Context(), vars["id"])
	if err != nil {
		h.fail(w, adm, err)
		return
	}

	resp := h.view(adm)
	if adm.State == domain.StateEligibilityCheck {
		resp.State = string(domain.StateBallotAdmit)
		resp.BallotPath = r.URL.Path
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdmissionHandler) persist(w http.ResponseWriter, r *http.Request, adm *service.Admission) error {
	switch {
	case adm.State == domain.StateBallotAdmit:
		return h.session.MarkAdmitted(w, r, adm.ElectionID, adm.Identifier)
	case adm.State.AwaitingCode() && adm.PinID != "":
		return h.session.SaveAttempt(w, r, middleware.Attempt{
			ElectionID: adm.ElectionID,
			Identifier: adm.Identifier,
			PinID:      adm.PinID,
			Verified:   adm.Verified,
			State:      string(adm.State),
		})
	case adm.State.AwaitingCode() || adm.State.Terminal():
		// Nothing left to verify against.
		return h.session.ClearAttempt(w, r)
	default:
		return nil
	}
}

func (h *AdmissionHandler) fail(w http.ResponseWriter, adm *service.Admission, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorw("admission failed", "election_id", adm.ElectionID, "state", adm.State, "error", err)
	} else {
		h.log.Infow("admission refused", "election_id", adm.ElectionID, "state", adm.State, "error", err)
	}

	resp := h.view(adm)
	resp.Notice = h.admission.Describe(err)
	writeJSON(w, status, resp)
}

func (h *AdmissionHandler) view(adm *service.Admission) admissionResponse {
	resp := admissionResponse{
		ElectionID:            adm.ElectionID,
		State:                 string(adm.State),
		BallotPath:            adm.BallotPath,
		ResultsPath:           adm.ResultsPath,
		CandidateRegisterPath: adm.CandidateRegisterPath,
	}

	e := adm.Election
	if e == nil {
		return resp
	}

	status := adm.Status
	resp.Status = &status
	resp.Election = &electionView{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    h.dates.FormatForDisplay(e.StartDate),
		EndsAt:      h.dates.FormatForDisplay(e.EndDate),
		Visibility:  string(e.Visibility),
		AuthType:    string(e.AuthType),
	}

	now := h.now()
	switch status.Phase() {
	case domain.PhasePending:
		resp.Countdown = "starts in " + h.dates.FormatCountdown(now, e.StartDate)
	case domain.PhaseActive:
		resp.Countdown = "ends in " + h.dates.FormatCountdown(now, e.EndDate)
	}
	return resp
}
