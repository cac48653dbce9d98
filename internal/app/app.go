package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voting-portal/config"
	"voting-portal/internal/database"
	"voting-portal/internal/handler"
	"voting-portal/internal/middleware"
	"voting-portal/internal/otp"
	"voting-portal/internal/repository"
	"voting-portal/internal/service"
	"voting-portal/pkg/datetime"
	"voting-portal/pkg/email"
	"voting-portal/pkg/metrics"
	"voting-portal/pkg/ratelimit"
	"voting-portal/pkg/security"
	"voting-portal/pkg/sms"
)

type Application struct {
	Router           *mux.Router
	Config           *config.Config
	DBManager        *database.Manager
	Elections        repository.ElectionRepository
	AdmissionHandler *handler.AdmissionHandler
	VoterSession     *middleware.VoterSession
	Metrics          *metrics.Metrics

	admission *service.AdmissionService
	local     *otp.LocalProvider
	limiter   ratelimit.Store
	redis     *redis.Client
	log       *zap.SugaredLogger
}

func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.New()
	dateFormatter := datetime.NewFormatterIn(cfg.ElectionTimezone)

	elections, err := NewElectionRepository(cfg, dateFormatter, m, log)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Router:    mux.NewRouter(),
		Config:    cfg,
		Elections: elections,
		Metrics:   m,
		log:       log,
	}

	provider, err := a.buildOTPProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.limiter = a.buildLimiter(ctx)

	a.admission = service.NewAdmissionService(
		elections,
		provider,
		a.limiter,
		security.NewObfuscator(cfg.ObfuscationSecret),
		m,
		service.AdmissionConfig{
			MaxIssuesPerHour:  cfg.OTPMaxIssuesPerHour,
			MaxVerifyAttempts: cfg.OTPMaxVerifyAttempts,
			VerifyWindow:      cfg.OTPTTL,
		},
		log,
	)

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}

	a.VoterSession = middleware.NewVoterSession(sessionStore)
	a.AdmissionHandler = handler.NewAdmissionHandler(a.admission, a.VoterSession, dateFormatter, log)

	a.setupMiddleware()
	a.setupRoutes()

	return a, nil
}

// NewElectionRepository builds the REST election client from config. The
// status command uses it on its own without the rest of the server.
func NewElectionRepository(cfg *config.Config, dates *datetime.Formatter, m *metrics.Metrics, log *zap.SugaredLogger) (repository.ElectionRepository, error) {
	return repository.NewElectionRepository(repository.ElectionAPIConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout,
	}, dates, m, log)
}

func (a *Application) buildOTPProvider(ctx context.Context) (otp.Provider, error) {
	cfg := a.Config

	switch cfg.OTPProvider {
	case config.OTPProviderTermii:
		termii, err := otp.NewTermiiProvider(otp.TermiiConfig{
			BaseURL:  cfg.TermiiBaseURL,
			APIKey:   cfg.TermiiAPIKey,
			SenderID: cfg.TermiiSenderID,
			Channel:  cfg.TermiiChannel,
			TTL:      cfg.OTPTTL,
			Attempts: cfg.OTPMaxVerifyAttempts,
			Length:   cfg.OTPLength,
		}, a.log)
		if err != nil {
			return nil, err
		}

		router := &otp.Router{Phone: termii}
		if local, err := a.buildLocalProvider(ctx); err != nil {
			a.log.Warnw("email OTP disabled, local provider unavailable", "error", err)
		} else {
			router.Email = local
		}
		return router, nil

	default:
		local, err := a.buildLocalProvider(ctx)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}

func (a *Application) buildLocalProvider(ctx context.Context) (*otp.LocalProvider, error) {
	cfg := a.Config

	dbManager, err := database.NewManager(ctx, database.Config{
		ConnectionString: cfg.DatabaseURL,
		Host:             cfg.DBHost,
		Port:             cfg.DBPort,
		User:             cfg.DBUser,
		Password:         cfg.DBPassword,
		DBName:           cfg.DBName,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.DBManager = dbManager

	var mailer email.Service
	switch {
	case cfg.ResendAPIKey != "":
		resendService, err := email.NewResendService(cfg.ResendAPIKey, cfg.EmailFrom, a.log)
		if err != nil {
			a.log.Warnw("Resend email service initialization failed", "error", err)
		} else {
			mailer = resendService
		}
	case cfg.HasSMTP():
		smtpService, err := email.NewSMTPService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}, a.log)
		if err != nil {
			a.log.Warnw("SMTP email service initialization failed", "error", err)
		} else {
			mailer = smtpService
		}
	default:
		a.log.Warn("No email service configured, email OTP delivery will fail")
	}

	var texter sms.Sender
	if cfg.HasTwilio() {
		twilio, err := sms.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		if err != nil {
			a.log.Warnw("Twilio SMS client initialization failed", "error", err)
		} else {
			texter = twilio
		}
	}

	a.local = otp.NewLocalProvider(
		repository.NewOTPRepository(dbManager.GetDB()),
		security.NewOTPGenerator(cfg.OTPLength),
		mailer,
		texter,
		otp.LocalConfig{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxVerifyAttempts},
		a.log,
	)
	return a.local, nil
}

// buildLimiter prefers Redis so limits hold across instances, and falls
// back to process memory.
func (a *Application) buildLimiter(ctx context.Context) ratelimit.Store {
	cfg := a.Config
	if cfg.RedisAddr == "" {
		return ratelimit.NewLimiter()
	}

	client, err := ratelimit.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		a.log.Warnw("Redis unavailable, using in-memory rate limiter", "addr", cfg.RedisAddr, "error", err)
		return ratelimit.NewLimiter()
	}
	a.redis = client
	return ratelimit.NewRedisLimiter(client, "voting-portal:")
}

func (a *Application) setupMiddleware() {
	a.Router.Use(middleware.RequestLogger(a.log))
	a.Router.Use(securityHeadersMiddleware(a.Config.IsProduction()))

	if a.Config.IsProduction() {
		a.log.Info("CSRF protection enabled")
		csrfOptions := []csrf.Option{
			csrf.Secure(true),
			csrf.HttpOnly(true),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
		}
		if a.Config.AppURL != "" {
			csrfOptions = append(csrfOptions, csrf.TrustedOrigins([]string{a.Config.AppURL}))
			a.log.Infow("CSRF trusted origin", "origin", a.Config.AppURL)
		}
		a.Router.Use(csrf.Protect([]byte(a.Config.CSRFSecret), csrfOptions...))
		a.Router.Use(csrfTokenHeader)
	} else {
		a.log.Info("CSRF protection disabled in development mode")
	}
}

func securityHeadersMiddleware(isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Cache-Control", "no-store")

			if isProduction {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// csrfTokenHeader hands the masked CSRF token to API clients, which echo
// it back in X-CSRF-Token on unsafe requests.
func csrfTokenHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CSRF-Token", csrf.Token(r))
		next.ServeHTTP(w, r)
	})
}

func (a *Application) setupRoutes() {
	a.Router.HandleFunc("/healthz", a.healthz).Methods("GET")
	a.Router.Handle("/metrics", a.Metrics.Handler()).Methods("GET")

	elections := a.Router.PathPrefix("/elections/{id}").Subrouter()
	elections.HandleFunc("/status", a.AdmissionHandler.Status).Methods("GET")
	elections.HandleFunc("/admission", a.AdmissionHandler.Submit).Methods("POST")
	elections.HandleFunc("/admission", a.AdmissionHandler.Reset).Methods("DELETE")
	elections.HandleFunc("/admission/verify", a.AdmissionHandler.Verify).Methods("POST")

	ballot := elections.PathPrefix("/ballot/{voter}").Subrouter()
	ballot.Use(a.VoterSession.RequireAdmission(a.admission.ResolveBallotToken))
	ballot.HandleFunc("", a.AdmissionHandler.Ballot).Methods("GET")
}

func (a *Application) healthz(w http.ResponseWriter, r *http.Request) {
	if a.DBManager != nil {
		if err := a.DBManager.GetDB().PingContext(r.Context()); err != nil {
			a.log.Warnw("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// RunBackground starts housekeeping that lives as long as ctx.
func (a *Application) RunBackground(ctx context.Context) {
	if a.local != nil {
		go a.local.RunCleanup(ctx, a.Config.OTPTTL)
	}
}

func (a *Application) Close() error {
	var errs []error

	if l, ok := a.limiter.(*ratelimit.Limiter); ok {
		l.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DBManager != nil {
		errs = append(errs, a.DBManager.Close())
	}
	return errors.Join(errs...)
}
