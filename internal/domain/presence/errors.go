package presence

import "errors"

// Sensor errors. They never stop a session; the sample is marked invalid instead.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrSensorTimeout       = errors.New("location request timed out")
)

// Reconciliation errors
var (
	ErrNoCheckInTime     = errors.New("confirmation is missing checkin_time")
	ErrMissingRecord     = errors.New("confirmation carries no attendance record")
	ErrSessionClosed     = errors.New("presence session is closed")
	ErrUnexpectedPayload = errors.New("unexpected realtime payload")
)
