package presence

import (
	"context"
	"time"
)

// WatchOptions mirrors the platform's continuous-location configuration.
type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultWatchOptions is high accuracy, 10 s timeout and no cached fixes.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaximumAge:   0,
	}
}

// Fix is a raw update from the location sensor.
type Fix struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	Heading        *float64
	Timestamp      time.Time
}

// Orientation is a compass reading. Absolute readings are referenced to north.
type Orientation struct {
	Alpha    *float64
	Absolute bool
	At       time.Time
}

// LocationHandler receives either a fix or a sensor error.
type LocationHandler func(fix Fix, err error)

// LocationSource is the platform's continuous-location primitive.
// Watch keeps delivering until the returned stop function is called.
type LocationSource interface {
	Watch(ctx context.Context, opts WatchOptions, handler LocationHandler) (stop func(), err error)
}

// OrientationSource delivers device-orientation events until stopped.
type OrientationSource interface {
	Watch(ctx context.Context, handler func(Orientation)) (stop func(), err error)
}
