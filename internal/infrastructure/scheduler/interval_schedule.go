package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job a fixed duration after each completed run.
// Both maintenance jobs use it; cron expressions exist for jobs that must
// fire at wall-clock times instead.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a schedule firing every interval.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the run time following t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String describes the schedule for logs and job listings.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}
