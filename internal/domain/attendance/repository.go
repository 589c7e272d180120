package attendance

import (
	"context"
	"time"
)

// AttendanceRepository defines data access methods for attendance sessions.
type AttendanceRepository interface {
	// Create inserts a new open session
	Create(ctx context.Context, attendance Attendance) (Attendance, error)

	// Update persists clock-out, work hours and status
	Update(ctx context.Context, attendance Attendance) error

	// GetOpenSession returns the latest session without a clock-out.
	// Returns pgx.ErrNoRows (wrapped) when none exists.
	GetOpenSession(ctx context.Context, userID string) (Attendance, error)

	// GetLatestByDate returns the most recent session for the user on the given local date
	GetLatestByDate(ctx context.Context, userID string, date time.Time) (Attendance, error)

	// GetStats aggregates closed sessions, splitting out those on or after monthStart
	GetStats(ctx context.Context, userID string, monthStart time.Time) (Stats, error)

	// GetStaleOpenSessions lists open sessions whose clock-in is before cutoff
	GetStaleOpenSessions(ctx context.Context, cutoff time.Time) ([]Attendance, error)
}
