package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voting-portal/config"
	"voting-portal/internal/app"
	"voting-portal/internal/domain"
	"voting-portal/internal/service"
	"voting-portal/pkg/datetime"
	"voting-portal/pkg/logger"
	"voting-portal/pkg/metrics"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "voting-portal",
		Short:        "Voter admission portal for elections",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(), newStatusCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <electionID>",
		Short: "Print where an election sits in its voting window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, args[0], watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing phase changes until the election ends")
	return cmd
}

func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{Development: !cfg.IsProduction(), Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}
	log.Infow("Configuration loaded",
		"environment", cfg.Environment,
		"app_port", cfg.AppPort,
		"app_url", cfg.AppURL,
		"otp_provider", cfg.OTPProvider,
	)
	return cfg, log, nil
}

func runServe(parent context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Errorw("failed to initialize application", "error", err)
		return err
	}
	defer application.Close()

	application.RunBackground(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Server started", "port", cfg.AppPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runStatus(parent context.Context, cmd *cobra.Command, electionID string, watch bool) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dates := datetime.NewFormatterIn(cfg.ElectionTimezone)
	elections, err := app.NewElectionRepository(cfg, dates, metrics.New(), log)
	if err != nil {
		return err
	}

	election, err := elections.FetchElection(ctx, electionID)
	if err != nil {
		return fmt.Errorf("%s: %w", domain.Notice(err), err)
	}
	if err := election.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", election.Title, election.ID)
	fmt.Fprintf(out, "  opens:  %s\n  closes: %s\n", dates.FormatForDisplay(election.StartDate), dates.FormatForDisplay(election.EndDate))

	report := func(s domain.EventStatus) {
		now := time.Now()
		switch s.Phase() {
		case domain.PhasePending:
			fmt.Fprintf(out, "%s  pending, starts in %s\n", now.Format(time.TimeOnly), dates.FormatCountdown(now, election.StartDate))
		case domain.PhaseActive:
			fmt.Fprintf(out, "%s  active, ends in %s\n", now.Format(time.TimeOnly), dates.FormatCountdown(now, election.EndDate))
		default:
			fmt.Fprintf(out, "%s  ended\n", now.Format(time.TimeOnly))
		}
	}

	if !watch {
		report(election.StatusAt(time.Now()))
		return nil
	}

	err = service.NewStatusWatcher(cfg.StatusPollInterval).Watch(ctx, election, report)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
