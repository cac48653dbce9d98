package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // ELECTION_TIMEZONE must resolve in minimal images

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	AppPort     string
	AppURL      string
	LogLevel    string

	SessionSecret     string
	CSRFSecret        string
	ObfuscationSecret string

	APIBaseURL         string
	APIToken           string
	APITimeout         time.Duration
	StatusPollInterval time.Duration

	// ElectionTimezone applies to election timestamps that carry no zone,
	// and to dates shown to voters.
	ElectionTimezone *time.Location

	OTPProvider          string
	OTPTTL               time.Duration
	OTPLength            int
	OTPMaxIssuesPerHour  int
	OTPMaxVerifyAttempts int

	TermiiBaseURL  string
	TermiiAPIKey   string
	TermiiSenderID string
	TermiiChannel  string

	EmailFrom    string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Warnings collects non-fatal problems found while loading, for the
	// caller to log once a logger exists.
	Warnings []string
}

const (
	OTPProviderLocal  = "local"
	OTPProviderTermii = "termii"
)

func Load() (*Config, error) {
	cfg := &Config{}

	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			cfg.warn(".env file exists but couldn't be loaded: %v", err)
		}
	}

	cfg.Environment = getEnv("ENVIRONMENT", "development")
	cfg.AppPort = getEnv("APP_PORT", "8080")
	cfg.AppURL = getEnv("APP_URL", "")
	cfg.LogLevel = getEnv("LOG_LEVEL", "")

	if cfg.AppURL == "" {
		if cfg.IsProduction() {
			cfg.warn("APP_URL not set in production, CSRF origin validation may fail")
		} else {
			cfg.AppURL = "http://localhost:" + cfg.AppPort
		}
	}

	var err error
	if cfg.SessionSecret, err = cfg.secret("SESSION_SECRET"); err != nil {
		return nil, err
	}
	if cfg.CSRFSecret, err = cfg.secret("CSRF_SECRET"); err != nil {
		return nil, err
	}
	if cfg.ObfuscationSecret, err = cfg.secret("OBFUSCATION_SECRET"); err != nil {
		return nil, err
	}

	cfg.APIBaseURL = strings.TrimRight(getEnv("API_BASE_URL", ""), "/")
	cfg.APIToken = getEnv("API_TOKEN", "")
	cfg.APITimeout = cfg.duration("API_TIMEOUT", 10*time.Second)
	cfg.StatusPollInterval = cfg.duration("STATUS_POLL_INTERVAL", time.Second)
	cfg.ElectionTimezone = cfg.location("ELECTION_TIMEZONE", time.UTC)

	cfg.OTPProvider = strings.ToLower(getEnv("OTP_PROVIDER", OTPProviderLocal))
	cfg.OTPTTL = cfg.duration("OTP_TTL", 10*time.Minute)
	cfg.OTPLength = cfg.integer("OTP_LENGTH", 6)
	cfg.OTPMaxIssuesPerHour = cfg.integer("OTP_MAX_ISSUES_PER_HOUR", 5)
	cfg.OTPMaxVerifyAttempts = cfg.integer("OTP_MAX_VERIFY_ATTEMPTS", 5)

	cfg.TermiiBaseURL = getEnv("TERMII_BASE_URL", "https://api.ng.termii.com")
	cfg.TermiiAPIKey = getEnv("TERMII_API_KEY", "")
	cfg.TermiiSenderID = getEnv("TERMII_SENDER_ID", "")
	cfg.TermiiChannel = getEnv("TERMII_CHANNEL", "generic")

	cfg.EmailFrom = getEnv("EMAIL_FROM", "")
	cfg.ResendAPIKey = getEnv("RESEND_API_KEY", "")
	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = cfg.integer("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", "")

	cfg.TwilioAccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioFromNumber = getEnv("TWILIO_FROM_NUMBER", "")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = cfg.integer("REDIS_DB", 0)

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	if cfg.DatabaseURL != "" {
		cfg.parseDBURL()
	} else {
		cfg.DBHost = getEnv("DB_HOST", "localhost")
		cfg.DBPort = getEnv("DB_PORT", "5432")
		cfg.DBUser = getEnv("DB_USER", "postgres")
		cfg.DBPassword = getEnv("DB_PASSWORD", "password")
		cfg.DBName = getEnv("DB_NAME", "voting_portal")
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	} else if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("API_BASE_URL is not a valid URL: %w", err))
	}

	switch c.OTPProvider {
	case OTPProviderLocal:
	case OTPProviderTermii:
		if c.TermiiAPIKey == "" {
			errs = append(errs, errors.New("TERMII_API_KEY is required when OTP_PROVIDER=termii"))
		}
	default:
		errs = append(errs, fmt.Errorf("OTP_PROVIDER must be %q or %q, got %q", OTPProviderLocal, OTPProviderTermii, c.OTPProvider))
	}

	if c.OTPLength < 4 || c.OTPLength > 9 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 9, got %d", c.OTPLength))
	}

	return errors.Join(errs...)
}

func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}

func (c *Config) HasTwilio() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warn("%s=%q is not a positive duration, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func (c *Config) integer(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.warn("%s=%q is not a non-negative integer, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func (c *Config) location(key string, fallback *time.Location) *time.Location {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		c.warn("%s=%q is not a known time zone, using %s", key, raw, fallback)
		return fallback
	}
	return loc
}

func (c *Config) secret(key string) (string, error) {
	if value := getEnv(key, ""); value != "" {
		return value, nil
	}
	c.warn("%s not set, generating random secret (will not persist across restarts)", key)
	return generateRandomSecret(key)
}

func (c *Config) parseDBURL() {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		c.warn("error parsing DATABASE_URL: %v", err)
		return
	}

	c.DBHost = u.Hostname()
	c.DBPort = u.Port()
	if c.DBPort == "" {
		c.DBPort = "5432"
	}

	c.DBUser = u.User.Username()
	if password, ok := u.User.Password(); ok {
		c.DBPassword = password
	}

	c.DBName = strings.TrimPrefix(u.Path, "/")
}

func generateRandomSecret(name string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random secret for %s: %w", name, err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
