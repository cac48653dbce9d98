package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voting-portal/internal/domain"
)

type OTPRepository interface {
	Store(ctx context.Context, challenge *domain.Challenge) error
	GetByPinID(ctx context.Context, pinID string) (*domain.Challenge, error)
	IncrementAttempts(ctx context.Context, pinID string) (int, error)
	Delete(ctx context.Context, pinID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type otpRepository struct {
	db *sql.DB
}

func NewOTPRepository(db *sql.DB) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Store(ctx context.Context, c *domain.Challenge) error {
	if err := c.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_challenges (pin_id, identifier, election_id, code, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.PinID, c.Identifier, c.ElectionID, c.Code, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store OTP challenge: %w", err)
	}

	return nil
}

func (r *otpRepository) GetByPinID(ctx context.Context, pinID string) (*domain.Challenge, error) {
	c := &domain.Challenge{}

	err := r.db.QueryRowContext(ctx,
		`SELECT pin_id, identifier, election_id, code, attempts, expires_at, created_at
		 FROM otp_challenges WHERE pin_id = $1`,
		pinID,
	).Scan(&c.PinID, &c.Identifier, &c.ElectionID, &c.Code, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to get OTP challenge: %w", err)
	}

	return c, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, pinID string) (int, error) {
	var attempts int

	err := r.db.QueryRowContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE pin_id = $1 RETURNING attempts`,
		pinID,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrOTPNotFound
		}
		return 0, fmt.Errorf("failed to record OTP attempt: %w", err)
	}

	return attempts, nil
}

func (r *otpRepository) Delete(ctx context.Context, pinID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM otp_challenges WHERE pin_id = $1", pinID); err != nil {
		return fmt.Errorf("failed to delete OTP challenge: %w", err)
	}
	return nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM otp_challenges WHERE expires_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired OTP challenges: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted OTP challenges: %w", err)
	}
	return n, nil
}
