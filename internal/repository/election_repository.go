package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"voting-portal/internal/domain"
	"voting-portal/pkg/datetime"
	"voting-portal/pkg/metrics"
)

type ElectionRepository interface {
	FetchElection(ctx context.Context, id string) (*domain.Election, error)
	FetchVoterList(ctx context.Context, electionID string) ([]string, error)
	RegisterVoter(ctx context.Context, electionID, identifier string) error
}

type ElectionAPIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// Consecutive network or server failures before the breaker opens.
	MaxFailures    uint32
	BreakerTimeout time.Duration
}

type electionRepository struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	dates   *datetime.Formatter
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func NewElectionRepository(
	cfg ElectionAPIConfig,
	dates *datetime.Formatter,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
) (ElectionRepository, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid election API base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "election-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsNetworkError(err) || errors.Is(err, context.Canceled)
		},
	})

	return &electionRepository{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		dates:   dates,
		metrics: m,
		log:     log,
	}, nil
}

type electionPayload struct {
	ID              string          `json:"id"`
	MongoID         string          `json:"_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	StartDate       json.RawMessage `json:"startDate"`
	EndDate         json.RawMessage `json:"endDate"`
	Visibility      string          `json:"visibility"`
	Type            string          `json:"type"`
	AuthType        string          `json:"authType"`
	VoterAuthType   string          `json:"voterAuthType"`
	AddCandidatesBy string          `json:"addCandidatesBy"`
}

func (r *electionRepository) FetchElection(ctx context.Context, id string) (*domain.Election, error) {
	const op = "FetchElection"

	var payload electionPayload
	if err := r.do(ctx, op, http.MethodGet, "/elections/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}

	election, err := r.toElection(payload)
	if err != nil {
		return nil, &domain.APIError{Op: op, Kind: domain.ErrServer, Err: err}
	}
	if election.ID == "" {
		election.ID = id
	}
	return election, nil
}

func (r *electionRepository) toElection(p electionPayload) (*domain.Election, error) {
	start, err := r.parseDate(p.StartDate)
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}
	end, err := r.parseDate(p.EndDate)
	if err != nil {
		return nil, fmt.Errorf("endDate: %w", err)
	}

	visibility, err := domain.ParseVisibility(firstNonEmpty(p.Visibility, p.Type))
	if err != nil {
		return nil, err
	}
	authType, err := domain.ParseAuthType(firstNonEmpty(p.AuthType, p.VoterAuthType))
	if err != nil {
		return nil, err
	}

	return &domain.Election{
		ID:              firstNonEmpty(p.ID, p.MongoID),
		Title:           p.Title,
		Description:     stripHTMLTags(p.Description),
		StartDate:       start,
		EndDate:         end,
		Visibility:      visibility,
		AuthType:        authType,
		AddCandidatesBy: p.AddCandidatesBy,
	}, nil
}

// parseDate accepts a JSON string in any format the formatter knows, or a
// bare number of Unix milliseconds.
func (r *electionRepository) parseDate(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return r.dates.ParseTimestamp(s)
}

func (r *electionRepository) FetchVoterList(ctx context.Context, electionID string) ([]string, error) {
	const op = "FetchVoterList"

	var raw json.RawMessage
	if err := r.do(ctx, op, http.MethodGet, "/elections/"+url.PathEscape(electionID)+"/voters", nil, &raw); err != nil {
		return nil, err
	}

	voters, err := decodeVoterList(raw)
	if err != nil {
		return nil, &domain.APIError{Op: op, Kind: domain.ErrServer, Err: err}
	}
	return voters, nil
}

type voterEntry struct {
	Identifier string `json:"identifier"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

func decodeVoterList(raw json.RawMessage) ([]string, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Voters []json.RawMessage `json:"voters"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode voter list: %w", err)
		}
		entries = wrapped.Voters
	}

	voters := make([]string, 0, len(entries))
	for _, e := range entries {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			voters = append(voters, s)
			continue
		}

		var v voterEntry
		if err := json.Unmarshal(e, &v); err != nil {
			return nil, fmt.Errorf("failed to decode voter entry: %w", err)
		}
		if id := firstNonEmpty(v.Identifier, v.Phone, v.Email); id != "" {
			voters = append(voters, id)
		}
	}
	return voters, nil
}

func (r *electionRepository) RegisterVoter(ctx context.Context, electionID, identifier string) error {
	body := map[string]string{"identifier": identifier}
	return r.do(ctx, "RegisterVoter", http.MethodPost, "/elections/"+url.PathEscape(electionID)+"/voters", body, nil)
}

func (r *electionRepository) do(ctx context.Context, op, method, path string, body, out any) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.roundTrip(ctx, op, method, path, body, out)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.APIError{Op: op, Kind: domain.ErrNetwork, Err: err}
	}

	r.observe(op, err)
	return err
}

func (r *electionRepository) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &domain.APIError{Op: op, Kind: domain.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if kind := kindForStatus(resp.StatusCode); kind != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &domain.APIError{Op: op, StatusCode: resp.StatusCode, Kind: kind}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.APIError{Op: op, Kind: domain.ErrServer, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func kindForStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return domain.ErrElectionNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrUnauthorized
	default:
		return domain.ErrServer
	}
}

func (r *electionRepository) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrElectionNotFound):
		result = "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		result = "unauthorized"
	case errors.Is(err, domain.ErrNetwork):
		result = "network"
	default:
		result = "server"
	}

	if r.metrics != nil {
		r.metrics.ElectionAPICalls.WithLabelValues(op, result).Inc()
	}
	if err != nil {
		r.log.Warnw("election API call failed", "op", op, "result", result, "error", err)
	}
}

func stripHTMLTags(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
