package attendance

import "errors"

// Attendance domain errors
var (
	// Check-in / check-out errors
	ErrNotCheckedIn      = errors.New("you have not checked in yet")
	ErrUserMismatch      = errors.New("user id does not match the authenticated session")
	ErrInvalidTimestamp  = errors.New("date must be an ISO8601 timestamp")
	ErrCheckOutBeforeIn  = errors.New("check-out time is before check-in time")
	ErrUnknownEvent      = errors.New("unknown realtime event")
	ErrMalformedEnvelope = errors.New("malformed realtime message")

	// General errors
	ErrAttendanceNotFound = errors.New("attendance record not found")
)
