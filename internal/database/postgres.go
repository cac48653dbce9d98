package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Manager struct {
	DB  *sql.DB
	log *zap.SugaredLogger
}

type Config struct {
	ConnectionString string
	Host             string
	Port             string
	User             string
	Password         string
	DBName           string

	// How long to keep retrying the first ping while the database boots.
	ConnectTimeout time.Duration
}

func (c Config) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName,
	)
}

func NewManager(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Manager, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ping(ctx, db, cfg.ConnectTimeout, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Successfully connected to the database")

	manager := &Manager{DB: db, log: log}

	if err := manager.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return manager, nil
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration, log *zap.SugaredLogger) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout

	return backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			log.Warnw("database not ready, retrying", "error", err, "in", next)
		},
	)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS otp_challenges (
		pin_id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL,
		election_id TEXT NOT NULL,
		code TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_challenges_expires_at ON otp_challenges(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_challenges_identifier ON otp_challenges(identifier, election_id)`,
}

func (m *Manager) runMigrations(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := m.DB.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	m.log.Info("Database migrations completed successfully")
	return nil
}

func (m *Manager) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

func (m *Manager) GetDB() *sql.DB {
	return m.DB
}
