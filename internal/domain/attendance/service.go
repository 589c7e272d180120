package attendance

import (
	"context"
	"time"
)

// AttendanceService defines business logic behind the realtime check-in/check-out events
// and the bootstrap REST endpoints.
type AttendanceService interface {
	// CheckIn opens a session, or returns the already open one
	CheckIn(ctx context.Context, req IntentRequest) (CheckResult, error)

	// CheckOut closes the open session and reports working hours
	CheckOut(ctx context.Context, req IntentRequest) (CheckResult, error)

	// Today returns the latest session of the current day
	Today(ctx context.Context, userID string) (Record, error)

	// Stats summarizes the user's closed sessions
	Stats(ctx context.Context, userID string) (StatsResponse, error)

	// AutoCloseStale closes sessions left open longer than maxOpen
	AutoCloseStale(ctx context.Context, maxOpen time.Duration) (int, error)
}
