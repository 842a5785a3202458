// Package jobs contains implementations of scheduled jobs for the Lumena
// real-time platform.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE NOTIFICATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExpireNotificationsJob removes notifications whose expires_at has passed.
// Deadline reminders and similar time-boxed notifications stop being relevant
// once the moment they announce is over; keeping them around only inflates
// the unread backlog a reconnecting client has to page through.
type ExpireNotificationsJob struct {
	// Dependencies
	repo   notification.Repository
	logger *slog.Logger

	// Configuration
	config ExpireNotificationsConfig

	// State
	lastRunStats atomic.Value // *ExpireStats
}

// ExpireNotificationsConfig contains configuration for the expiry job.
type ExpireNotificationsConfig struct {
	// Timeout is the maximum duration for one expiry pass.
	Timeout time.Duration
}

// DefaultExpireNotificationsConfig returns sensible defaults.
func DefaultExpireNotificationsConfig() ExpireNotificationsConfig {
	return ExpireNotificationsConfig{
		Timeout: time.Minute,
	}
}

// ExpireStats contains statistics from an expiry run.
type ExpireStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Removed     int64
}

// NewExpireNotificationsJob creates a new notification expiry job.
func NewExpireNotificationsJob(
	repo notification.Repository,
	logger *slog.Logger,
	config ExpireNotificationsConfig,
) *ExpireNotificationsJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExpireNotificationsJob{
		repo:   repo,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *ExpireNotificationsJob) Name() string {
	return "expire_notifications"
}

// Description returns a human-readable description.
func (j *ExpireNotificationsJob) Description() string {
	return "Removes notifications whose expiry time has passed"
}

// Run executes one expiry pass.
func (j *ExpireNotificationsJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	removed, err := j.repo.DeleteExpired(ctx, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("expire notifications: %w", err)
	}

	completedAt := time.Now()
	stats := &ExpireStats{
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Removed:     removed,
	}
	j.lastRunStats.Store(stats)

	if removed > 0 {
		j.logger.Info("expired notifications removed",
			"count", removed,
			"duration", stats.Duration.String(),
		)
	}

	return nil
}

// LastRunStats returns statistics from the most recent run, or nil.
func (j *ExpireNotificationsJob) LastRunStats() *ExpireStats {
	if stats, ok := j.lastRunStats.Load().(*ExpireStats); ok {
		return stats
	}
	return nil
}
