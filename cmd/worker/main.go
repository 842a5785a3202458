// Package main is the entry point for the Lumena maintenance worker.
//
// The worker runs the periodic jobs that keep delivery state tidy: removing
// notifications past their expiry and closing attendance spans abandoned by
// crashed or disconnected clients. It shares the database with the gateway
// but holds no client connections of its own.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumena-hub/lumena-platform/config"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/persistence/postgres"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/scheduler"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/scheduler/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled; the worker has nothing to run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	log.Info("connected to postgres")

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// ───────────────────────────────────────────────────────────
	// Jobs
	// ───────────────────────────────────────────────────────────

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		EnableMetrics: cfg.Observability.MetricsEnabled,
	})

	expireJob := jobs.NewExpireNotificationsJob(
		postgres.NewNotificationRepository(conn),
		log,
		jobs.ExpireNotificationsConfig{Timeout: cfg.Scheduler.JobTimeout},
	)
	if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireNotificationsInterval)); err != nil {
		return fmt.Errorf("register %s: %w", expireJob.Name(), err)
	}

	sweepJob := jobs.NewCloseStaleSpansJob(
		postgres.NewAttendanceRepository(conn),
		log,
		jobs.CloseStaleSpansConfig{
			MaxSpanAge: cfg.Scheduler.MaxSpanAge,
			Timeout:    cfg.Scheduler.JobTimeout,
		},
	)
	if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Scheduler.CloseStaleSpansInterval)); err != nil {
		return fmt.Errorf("register %s: %w", sweepJob.Name(), err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	log.Info("worker started",
		"expire_interval", cfg.Scheduler.ExpireNotificationsInterval.String(),
		"sweep_interval", cfg.Scheduler.CloseStaleSpansInterval.String(),
		"max_span_age", cfg.Scheduler.MaxSpanAge.String(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop", "error", err)
	}

	log.Info("worker stopped")
	return nil
}

// setupLogger builds the process logger. JSON in production for log
// aggregation, text in development for readability.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
