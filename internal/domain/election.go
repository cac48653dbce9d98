package domain

import (
	"strings"
	"time"
)

type Visibility string

const (
	VisibilityOpen   Visibility = "Open"
	VisibilityClosed Visibility = "Closed"
)

type AuthType string

const (
	AuthTypePhone AuthType = "phone"
	AuthTypeEmail AuthType = "email"
)

const SelfNomination = "Candidates Will Add Themselves"

type Election struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	Visibility      Visibility `json:"visibility"`
	AuthType        AuthType   `json:"authType"`
	AddCandidatesBy string     `json:"addCandidatesBy,omitempty"`
}

func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return VisibilityOpen, nil
	case "closed":
		return VisibilityClosed, nil
	default:
		return "", ErrInvalidVisibility
	}
}

func ParseAuthType(s string) (AuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "phone", "sms":
		return AuthTypePhone, nil
	case "email":
		return AuthTypeEmail, nil
	default:
		return "", ErrInvalidAuthType
	}
}

func (e *Election) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrInvalidElectionID
	}
	if e.Visibility != VisibilityOpen && e.Visibility != VisibilityClosed {
		return ErrInvalidVisibility
	}
	if e.AuthType != AuthTypePhone && e.AuthType != AuthTypeEmail {
		return ErrInvalidAuthType
	}
	if e.EndDate.Before(e.StartDate) {
		return ErrInvalidElectionWindow
	}
	return nil
}

func (e *Election) StatusAt(now time.Time) EventStatus {
	return Evaluate(now, e.StartDate, e.EndDate)
}

func (e *Election) IsClosed() bool {
	return e.Visibility == VisibilityClosed
}

func (e *Election) AllowsSelfNomination() bool {
	return e.AddCandidatesBy == SelfNomination
}
