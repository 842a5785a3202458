package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeNotificationRepo struct {
	notification.Repository

	deleteCalls int
	deleted     int64
	deleteErr   error
}

func (f *fakeNotificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.deleteCalls++
	return f.deleted, f.deleteErr
}

type fakeAttendanceRepo struct {
	attendance.Repository

	staleCalls int
	maxAge     time.Duration
	closed     int64
	closeErr   error
}

func (f *fakeAttendanceRepo) CloseStale(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	f.staleCalls++
	f.maxAge = maxAge
	return f.closed, f.closeErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Expire notifications
// ─────────────────────────────────────────────────────────────────────────────

func TestExpireNotificationsJob_RemovesExpired(t *testing.T) {
	repo := &fakeNotificationRepo{deleted: 7}
	job := NewExpireNotificationsJob(repo, nil, DefaultExpireNotificationsConfig())

	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, repo.deleteCalls)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(7), stats.Removed)
}

func TestExpireNotificationsJob_PropagatesRepoError(t *testing.T) {
	repo := &fakeNotificationRepo{deleteErr: errors.New("connection refused")}
	job := NewExpireNotificationsJob(repo, nil, DefaultExpireNotificationsConfig())

	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, job.LastRunStats())
}

// ─────────────────────────────────────────────────────────────────────────────
// Close stale spans
// ─────────────────────────────────────────────────────────────────────────────

func TestCloseStaleSpansJob_ClosesAbandonedSpans(t *testing.T) {
	repo := &fakeAttendanceRepo{closed: 3}
	job := NewCloseStaleSpansJob(repo, nil, CloseStaleSpansConfig{MaxSpanAge: 2 * time.Hour})

	err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, repo.staleCalls)
	assert.Equal(t, 2*time.Hour, repo.maxAge)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.Closed)
}

func TestCloseStaleSpansJob_DefaultsMaxAgeWhenUnset(t *testing.T) {
	repo := &fakeAttendanceRepo{}
	job := NewCloseStaleSpansJob(repo, nil, CloseStaleSpansConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, DefaultCloseStaleSpansConfig().MaxSpanAge, repo.maxAge)
}

func TestCloseStaleSpansJob_PropagatesRepoError(t *testing.T) {
	repo := &fakeAttendanceRepo{closeErr: errors.New("timeout")}
	job := NewCloseStaleSpansJob(repo, nil, DefaultCloseStaleSpansConfig())

	require.Error(t, job.Run(context.Background()))
}
