package realtime

import "errors"

var (
	ErrNotConnected = errors.New("realtime channel is not connected")
	ErrClosed       = errors.New("realtime channel is closed")
	ErrUnauthorized = errors.New("realtime channel rejected the token")
	ErrEmptyPayload = errors.New("empty payload")
)
