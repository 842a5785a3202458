package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake job
// ─────────────────────────────────────────────────────────────────────────────

type fakeJob struct {
	name string
	err  error
	runs atomic.Int64
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "fake job for tests" }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Cron expressions
// ─────────────────────────────────────────────────────────────────────────────

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every minute", expr: "* * * * *"},
		{name: "every five minutes", expr: "*/5 * * * *"},
		{name: "daily at four", expr: "0 4 * * *"},
		{name: "weekday list", expr: "0 9 * * 1,3,5"},
		{name: "hour range", expr: "0 9-17 * * *"},
		{name: "too few fields", expr: "* * * *", wantErr: true},
		{name: "minute out of range", expr: "61 * * * *", wantErr: true},
		{name: "bad step", expr: "*/0 * * * *", wantErr: true},
		{name: "garbage", expr: "once in a while", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	ce := MustParseCronExpression("0 4 * * *")

	after := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextSameDay(t *testing.T) {
	ce := MustParseCronExpression("30 23 * * *")

	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := ce.Next(after)

	assert.Equal(t, time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC), next)
}

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(10 * time.Minute)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(10*time.Minute), s.Next(now))
	assert.Equal(t, "@every 10m0s", s.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

func TestScheduler_RegisterRejectsDuplicates(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "sweep"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))

	err := s.Register(job, NewIntervalSchedule(time.Minute))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestScheduler_RegisterValidatesInput(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "sweep"}, nil), ErrNilSchedule)
}

func TestScheduler_RunNowExecutesJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "sweep"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestScheduler_RunNowReportsJobFailure(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "sweep", err: errors.New("db down")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "sweep")

	require.Error(t, err)
	assert.False(t, result.Success)

	info, infoErr := s.GetJobInfo("sweep")
	require.NoError(t, infoErr)
	assert.False(t, info.LastResult.Success)
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	_, err := s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&fakeJob{name: "sweep"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_DisableAndEnable(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&fakeJob{name: "sweep"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.DisableJob("sweep"))
	info, err := s.GetJobInfo("sweep")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.EnableJob("sweep"))
	info, err = s.GetJobInfo("sweep")
	require.NoError(t, err)
	assert.True(t, info.Enabled)
}
