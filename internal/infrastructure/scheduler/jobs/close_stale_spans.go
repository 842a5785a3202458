package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE STALE SPANS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CloseStaleSpansJob closes attendance spans that have been open longer than
// a lesson could plausibly run. A span is normally closed by the gateway when
// the connection drops; a crashed gateway instance never delivers that signal,
// so the spans it was tracking stay open until this sweep finds them.
type CloseStaleSpansJob struct {
	// Dependencies
	repo   attendance.Repository
	logger *slog.Logger

	// Configuration
	config CloseStaleSpansConfig

	// State
	lastRunStats atomic.Value // *SweepStats
}

// CloseStaleSpansConfig contains configuration for the sweep job.
type CloseStaleSpansConfig struct {
	// MaxSpanAge is how long a span may stay open before it is considered
	// abandoned. Must comfortably exceed the longest scheduled lesson.
	MaxSpanAge time.Duration

	// Timeout is the maximum duration for one sweep.
	Timeout time.Duration
}

// DefaultCloseStaleSpansConfig returns sensible defaults.
func DefaultCloseStaleSpansConfig() CloseStaleSpansConfig {
	return CloseStaleSpansConfig{
		MaxSpanAge: 6 * time.Hour,
		Timeout:    time.Minute,
	}
}

// SweepStats contains statistics from a sweep run.
type SweepStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Closed      int64
}

// NewCloseStaleSpansJob creates a new stale span sweep job.
func NewCloseStaleSpansJob(
	repo attendance.Repository,
	logger *slog.Logger,
	config CloseStaleSpansConfig,
) *CloseStaleSpansJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxSpanAge <= 0 {
		config.MaxSpanAge = DefaultCloseStaleSpansConfig().MaxSpanAge
	}

	return &CloseStaleSpansJob{
		repo:   repo,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *CloseStaleSpansJob) Name() string {
	return "close_stale_spans"
}

// Description returns a human-readable description.
func (j *CloseStaleSpansJob) Description() string {
	return "Closes attendance spans abandoned by crashed gateway instances"
}

// Run executes one sweep.
func (j *CloseStaleSpansJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	closed, err := j.repo.CloseStale(ctx, j.config.MaxSpanAge, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("close stale spans: %w", err)
	}

	completedAt := time.Now()
	stats := &SweepStats{
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Closed:      closed,
	}
	j.lastRunStats.Store(stats)

	if closed > 0 {
		j.logger.Warn("stale attendance spans closed",
			"count", closed,
			"max_age", j.config.MaxSpanAge.String(),
		)
	}

	return nil
}

// LastRunStats returns statistics from the most recent sweep, or nil.
func (j *CloseStaleSpansJob) LastRunStats() *SweepStats {
	if stats, ok := j.lastRunStats.Load().(*SweepStats); ok {
		return stats
	}
	return nil
}
