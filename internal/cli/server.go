package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-platform/internal/config"
	"quiz-platform/internal/jobs"
	transport "quiz-platform/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the API server, background workers and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, flush := newLogger(cfg)
	defer flush()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newServices(cfg, b, log)
	if err != nil {
		return err
	}

	server := transport.NewServer(&transport.Options{
		Address:        ":" + finalPort,
		Debug:          cfg.App.Debug,
		DisableReqLogs: cfg.Server.DisableReqLogs,
		Tokens:         svc.tokens,
		Log:            log,
		Health:         b.Ping,
		Services: transport.Services{
			Identity:     svc.identity,
			Catalog:      svc.catalog,
			Attempts:     svc.attempts,
			Leaderboard:  svc.leaderboard,
			Certificates: svc.certificates,
			Analytics:    svc.analytics,
			Courses:      svc.courses,
			Payments:     svc.payments,
			Proctoring:   svc.proctoring,
		},
	})

	scheduler := jobs.NewScheduler(log.Std(), log)
	if err := jobs.RegisterMaintenance(scheduler, svc.leaderboard, svc.proctoring, jobs.MaintenanceSpecs{
		LeaderboardRefresh: cfg.Jobs.LeaderboardRefresh,
		ProctoringCleanup:  cfg.Jobs.ProctoringCleanup,
		StaleSessionAge:    config.TTLDuration(cfg.Jobs.StaleSessionAge, 0),
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobs.NewWorker(b.queue, svc.postprocess, cfg.Jobs.Workers, log).Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting quiz platform", "port", finalPort, "env", cfg.App.Env)
		return server.Start()
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
