package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/internal/otp"
	"voting-portal/internal/repository"
	"voting-portal/pkg/metrics"
	"voting-portal/pkg/ratelimit"
	"voting-portal/pkg/security"
)

// Admission is one voter's attempt to reach the ballot of one election.
// It carries everything the flow needs between steps, so callers can keep
// it in a session and hand it back.
type Admission struct {
	ElectionID string                `json:"electionId"`
	Election   *domain.Election      `json:"election,omitempty"`
	Status     domain.EventStatus    `json:"status"`
	State      domain.AdmissionState `json:"state"`
	Identifier string                `json:"-"`
	PinID      string                `json:"-"`

	// Verified is set once the OTP has been accepted; a retry after a
	// failed registration write skips straight to the write.
	Verified bool `json:"-"`

	BallotPath            string `json:"ballotPath,omitempty"`
	ResultsPath           string `json:"resultsPath,omitempty"`
	CandidateRegisterPath string `json:"candidateRegisterPath,omitempty"`

	roll *domain.VoterRoll
}

type AdmissionConfig struct {
	MaxIssuesPerHour  int
	MaxVerifyAttempts int
	VerifyWindow      time.Duration
}

type AdmissionService struct {
	elections  repository.ElectionRepository
	otp        otp.Provider
	limiter    ratelimit.Store
	obfuscator *security.Obfuscator
	metrics    *metrics.Metrics
	cfg        AdmissionConfig
	now        func() time.Time
	log        *zap.SugaredLogger
}

func NewAdmissionService(
	elections repository.ElectionRepository,
	provider otp.Provider,
	limiter ratelimit.Store,
	obfuscator *security.Obfuscator,
	m *metrics.Metrics,
	cfg AdmissionConfig,
	log *zap.SugaredLogger,
) *AdmissionService {
	if cfg.MaxIssuesPerHour <= 0 {
		cfg.MaxIssuesPerHour = 5
	}
	if cfg.MaxVerifyAttempts <= 0 {
		cfg.MaxVerifyAttempts = 5
	}
	if cfg.VerifyWindow <= 0 {
		cfg.VerifyWindow = 10 * time.Minute
	}

	return &AdmissionService{
		elections:  elections,
		otp:        provider,
		limiter:    limiter,
		obfuscator: obfuscator,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// Lookup fetches the election and settles the attempt into Ended, Pending
// or EligibilityCheck. It never touches the voter list.
func (s *AdmissionService) Lookup(ctx context.Context, electionID string) (*Admission, error) {
	electionID = strings.TrimSpace(electionID)
	adm := &Admission{ElectionID: electionID, State: domain.StateIdle}
	if electionID == "" {
		return adm, domain.ErrInvalidElectionID
	}

	adm.State = domain.StateLookup
	election, err := s.elections.FetchElection(ctx, electionID)
	if err != nil {
		return adm, fmt.Errorf("failed to look up election %s: %w", electionID, err)
	}
	if err := election.Validate(); err != nil {
		s.log.Warnw("election rejected", "election_id", electionID, "error", err)
		return adm, fmt.Errorf("election %s: %w", electionID, err)
	}

	adm.Election = election
	s.settlePhase(adm)
	s.record(adm)
	return adm, nil
}

func (s *AdmissionService) settlePhase(adm *Admission) {
	adm.Status = adm.Election.StatusAt(s.now())

	switch adm.Status.Phase() {
	case domain.PhaseEnded:
		adm.State = domain.StateEnded
		adm.ResultsPath = ResultsPath(adm.ElectionID)
	case domain.PhasePending:
		adm.State = domain.StatePending
		if adm.Election.AllowsSelfNomination() {
			adm.CandidateRegisterPath = CandidateRegisterPath(adm.ElectionID)
		}
	default:
		adm.State = domain.StateEligibilityCheck
	}
}

// SubmitIdentifier checks the voter against the election's roll. Registered
// voters go straight to the ballot; closed elections reject everyone else;
// open elections issue an OTP.
func (s *AdmissionService) SubmitIdentifier(ctx context.Context, adm *Admission, raw string) error {
	if adm == nil || adm.Election == nil || adm.State != domain.StateEligibilityCheck {
		return domain.ErrInvalidTransition
	}

	identifier, err := domain.NormalizeIdentifier(adm.Election.AuthType, raw)
	if err != nil {
		return err
	}
	adm.Identifier = identifier

	// The window may have closed since the lookup.
	s.settlePhase(adm)
	if adm.State != domain.StateEligibilityCheck {
		s.record(adm)
		return nil
	}

	voters, err := s.elections.FetchVoterList(ctx, adm.ElectionID)
	if err != nil {
		return fmt.Errorf("failed to load voter list for %s: %w", adm.ElectionID, err)
	}
	adm.roll = domain.NewVoterRoll(adm.Election.AuthType, voters)
	s.log.Debugw("voter list loaded", "election_id", adm.ElectionID, "voters", adm.roll.Len())

	if adm.roll.Contains(identifier) {
		s.admit(adm)
		return nil
	}

	if adm.Election.IsClosed() {
		adm.State = domain.StateClosedRejected
		s.record(adm)
		return domain.ErrNotPreRegistered
	}

	return s.issueChallenge(ctx, adm)
}

func (s *AdmissionService) issueChallenge(ctx context.Context, adm *Admission) error {
	if !s.allow(ctx, issueKey(adm), s.cfg.MaxIssuesPerHour, time.Hour) {
		s.countOTP("issue", "rate_limited")
		return domain.ErrOTPRateLimited
	}

	challenge, err := s.otp.Issue(ctx, adm.Identifier, adm.ElectionID)
	if err != nil {
		s.countOTP("issue", "error")
		if !errors.Is(err, domain.ErrOTPIssue) {
			err = fmt.Errorf("%w: %w", domain.ErrOTPIssue, err)
		}
		return err
	}

	s.countOTP("issue", "ok")
	adm.PinID = challenge.PinID
	adm.State = domain.StateOpenOTP
	s.record(adm)
	return nil
}

// VerifyCode checks code against the attempt's challenge and, once it is
// accepted, registers the voter. A failure leaves the attempt in OTPFailed
// with the same pinId so the voter can try again. If the election is no
// longer active the attempt settles in Ended or Pending without checking
// the code or writing to the voter list.
func (s *AdmissionService) VerifyCode(ctx context.Context, adm *Admission, code string) error {
	if adm == nil || !adm.State.AwaitingCode() || adm.PinID == "" || adm.Identifier == "" {
		return domain.ErrInvalidTransition
	}

	active, err := s.stillActive(ctx, adm)
	if err != nil {
		return err
	}
	if !active {
		adm.PinID = ""
		adm.Verified = false
		s.record(adm)
		s.log.Infow("challenge dropped, election no longer active", "election_id", adm.ElectionID, "state", adm.State)
		return nil
	}

	if !adm.Verified {
		if err := s.checkCode(ctx, adm, strings.TrimSpace(code)); err != nil {
			adm.State = domain.StateOTPFailed
			if errors.Is(err, domain.ErrOTPExpired) {
				// The challenge is gone; a new one comes from submitting again.
				adm.PinID = ""
			}
			s.record(adm)
			return err
		}
		adm.Verified = true
	}

	adm.State = domain.StateOTPVerifying
	if err := s.elections.RegisterVoter(ctx, adm.ElectionID, adm.Identifier); err != nil {
		adm.State = domain.StateOTPFailed
		s.record(adm)
		return fmt.Errorf("%w: %w", domain.ErrVoterRegistration, err)
	}

	if adm.roll != nil {
		adm.roll.Append(adm.Identifier)
	}
	s.reset(ctx, issueKey(adm))
	s.reset(ctx, verifyKey(adm))
	s.admit(adm)
	return nil
}

// stillActive re-evaluates the window before a code is accepted. Attempts
// restored from a session carry no election, so it is fetched again.
func (s *AdmissionService) stillActive(ctx context.Context, adm *Admission) (bool, error) {
	if adm.Election == nil {
		election, err := s.elections.FetchElection(ctx, adm.ElectionID)
		if err != nil {
			return false, fmt.Errorf("failed to look up election %s: %w", adm.ElectionID, err)
		}
		if err := election.Validate(); err != nil {
			return false, fmt.Errorf("election %s: %w", adm.ElectionID, err)
		}
		adm.Election = election
	}

	state := adm.State
	s.settlePhase(adm)
	if adm.State != domain.StateEligibilityCheck {
		return false, nil
	}
	adm.State = state
	return true, nil
}

func (s *AdmissionService) checkCode(ctx context.Context, adm *Admission, code string) error {
	if !s.allow(ctx, verifyKey(adm), s.cfg.MaxVerifyAttempts, s.cfg.VerifyWindow) {
		s.countOTP("verify", "rate_limited")
		return domain.ErrTooManyAttempts
	}

	adm.State = domain.StateOTPVerifying
	ok, err := s.otp.Verify(ctx, adm.PinID, code)
	if errors.Is(err, domain.ErrOTPExpired) {
		s.countOTP("verify", "expired")
		return domain.ErrOTPExpired
	}
	if err != nil {
		s.countOTP("verify", "error")
		return fmt.Errorf("failed to verify OTP: %w: %w", domain.ErrNetwork, err)
	}
	if !ok {
		s.countOTP("verify", "rejected")
		return domain.ErrInvalidOTP
	}

	s.countOTP("verify", "ok")
	return nil
}

// Admit runs Lookup and, when the election is active, SubmitIdentifier.
// The identifier is sanity-checked before any remote call.
func (s *AdmissionService) Admit(ctx context.Context, electionID, raw string) (*Admission, error) {
	if !domain.LooksLikeIdentifier(raw) {
		return &Admission{ElectionID: electionID, State: domain.StateIdle}, domain.ErrInvalidIdentifier
	}

	adm, err := s.Lookup(ctx, electionID)
	if err != nil || adm.State != domain.StateEligibilityCheck {
		return adm, err
	}
	return adm, s.SubmitIdentifier(ctx, adm, raw)
}

// ResolveBallotToken turns the identifier segment of a ballot path back
// into the voter identifier.
func (s *AdmissionService) ResolveBallotToken(token string) (string, error) {
	return s.obfuscator.Decode(token)
}

func (s *AdmissionService) Describe(err error) string {
	return domain.Notice(err)
}

func (s *AdmissionService) admit(adm *Admission) {
	adm.State = domain.StateBallotAdmit
	adm.PinID = ""
	adm.BallotPath = BallotPath(adm.ElectionID, s.obfuscator.Encode(adm.Identifier))
	s.record(adm)
	s.log.Infow("voter admitted", "election_id", adm.ElectionID)
}

func issueKey(adm *Admission) string {
	return "otp-issue:" + adm.ElectionID + ":" + adm.Identifier
}

func verifyKey(adm *Admission) string {
	return "otp-verify:" + adm.PinID
}

// allow consults the limiter; a limiter outage must not lock voters out.
func (s *AdmissionService) allow(ctx context.Context, key string, max int, window time.Duration) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, key, max, window)
	if err != nil {
		s.log.Warnw("rate limiter unavailable", "key", key, "error", err)
		return true
	}
	return ok
}

func (s *AdmissionService) reset(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Warnw("failed to reset rate limit", "key", key, "error", err)
	}
}

func (s *AdmissionService) record(adm *Admission) {
	if s.metrics != nil {
		s.metrics.AdmissionOutcomes.WithLabelValues(string(adm.State)).Inc()
	}
}

func (s *AdmissionService) countOTP(op, result string) {
	if s.metrics != nil {
		s.metrics.OTPChallenges.WithLabelValues(op, result).Inc()
	}
}

func BallotPath(electionID, token string) string {
	return fmt.Sprintf("/elections/%s/ballot/%s", url.PathEscape(electionID), token)
}

func ResultsPath(electionID string) string {
	return fmt.Sprintf("/elections/%s/results", url.PathEscape(electionID))
}

func CandidateRegisterPath(electionID string) string {
	return fmt.Sprintf("/elections/%s/candidates/register", url.PathEscape(electionID))
}
