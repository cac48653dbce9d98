package domain

import "time"

// Challenge is an issued one-time passcode. Only the PinID leaves the
// provider; the code itself is delivered out of band.
type Challenge struct {
	PinID      string    `json:"pinId"`
	Identifier string    `json:"identifier"`
	ElectionID string    `json:"electionId"`
	Code       string    `json:"-"`
	Attempts   int       `json:"attempts"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (c *Challenge) IsExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *Challenge) Matches(code string, now time.Time) bool {
	return c.Code == code && !c.IsExpiredAt(now)
}

func (c *Challenge) Validate() error {
	if c.PinID == "" || c.Code == "" {
		return ErrInvalidOTP
	}
	if c.Identifier == "" {
		return ErrInvalidIdentifier
	}
	if c.ExpiresAt.IsZero() {
		return ErrOTPExpired
	}
	return nil
}
