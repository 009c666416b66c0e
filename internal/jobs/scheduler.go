package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"quiz-platform/internal/app"
)

// Printfer is satisfied by *log.Logger.
type Printfer interface {
	Printf(format string, v ...interface{})
}

// Scheduler runs periodic maintenance on cron specs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     app.Logger
	timeout time.Duration
}

func NewScheduler(printer Printfer, log app.Logger) *Scheduler {
	logger := cron.PrintfLogger(printer)
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		log:     log,
		timeout: 5 * time.Minute,
	}
}

// Add registers fn under spec. Errors are logged, never propagated.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		started := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("scheduled job failed", "job", name, "err", err)
			return
		}
		s.log.Info("scheduled job done", "job", name, "took", time.Since(started).Round(time.Millisecond))
	})
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// MaintenanceSpecs configures the built-in jobs.
type MaintenanceSpecs struct {
	LeaderboardRefresh string
	ProctoringCleanup  string
	StaleSessionAge    time.Duration
}

// RegisterMaintenance schedules the leaderboard rebuild and stale proctoring session cleanup.
func RegisterMaintenance(s *Scheduler, lb *app.LeaderboardService, pr *app.ProctoringService, specs MaintenanceSpecs) error {
	if err := s.Add("leaderboard.refresh", specs.LeaderboardRefresh, func(ctx context.Context) error {
		n, err := lb.RebuildAll(ctx)
		if err == nil {
			s.log.Info("leaderboards rebuilt", "quizzes", n)
		}
		return err
	}); err != nil {
		return err
	}
	return s.Add("proctoring.cleanup", specs.ProctoringCleanup, func(ctx context.Context) error {
		n, err := pr.CleanupStale(ctx, specs.StaleSessionAge)
		if err == nil && n > 0 {
			s.log.Info("closed stale proctoring sessions", "count", n)
		}
		return err
	})
}
