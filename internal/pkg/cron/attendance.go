package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StaleSessionCloser closes attendance sessions that were never checked out.
type StaleSessionCloser interface {
	AutoCloseStale(ctx context.Context, maxOpen time.Duration) (int, error)
}

type AttendanceJobs struct {
	closer   StaleSessionCloser
	maxOpen  time.Duration
	interval time.Duration
}

func NewAttendanceJobs(closer StaleSessionCloser, maxOpen, interval time.Duration) *AttendanceJobs {
	return &AttendanceJobs{
		closer:   closer,
		maxOpen:  maxOpen,
		interval: interval,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) error {
	return scheduler.AddJob(Job{
		Name:     "auto_close_stale_attendances",
		Interval: j.interval,
		Fn:       j.AutoCloseStaleAttendances,
	})
}

// AutoCloseStaleAttendances closes sessions whose check-out never arrived
func (j *AttendanceJobs) AutoCloseStaleAttendances(ctx context.Context) error {
	closed, err := j.closer.AutoCloseStale(ctx, j.maxOpen)
	if err != nil {
		return fmt.Errorf("failed to auto-close stale attendances: %w", err)
	}

	if closed == 0 {
		slog.Debug("Cron: No stale attendances found")
		return nil
	}

	slog.Info("Cron: Auto-closed stale attendances", "count", closed, "max_open", j.maxOpen)
	return nil
}
