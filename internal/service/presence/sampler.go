package presence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
	"golang.org/x/time/rate"
)

const DefaultThrottleInterval = time.Second

type SamplerConfig struct {
	ThrottleInterval  time.Duration
	AccuracyThreshold float64
	Watch             presence.WatchOptions
	Now               func() time.Time
	Logger            *slog.Logger
}

// Sampler turns raw location fixes into throttled, heading-tagged samples.
type Sampler struct {
	cfg    SamplerConfig
	logger *slog.Logger

	location    presence.LocationSource
	orientation presence.OrientationSource

	mu              sync.Mutex
	limiter         *rate.Limiter
	absoluteHeading *float64
	relativeHeading *float64
	emit            func(presence.Sample)
	stopLocation    func()
	stopOrientation func()
}

// NewSampler wires the sampler to its sources. orientation may be nil.
func NewSampler(location presence.LocationSource, orientation presence.OrientationSource, cfg SamplerConfig) *Sampler {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = presence.AccuracyThresholdMeters
	}
	if cfg.Watch == (presence.WatchOptions{}) {
		cfg.Watch = presence.DefaultWatchOptions()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sampler{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "sampler")),
		location:    location,
		orientation: orientation,
		limiter:     rate.NewLimiter(rate.Every(cfg.ThrottleInterval), 1),
	}
}

// Start subscribes to orientation (always on) and to the location watch.
// Accepted samples and sensor errors are passed to emit.
func (s *Sampler) Start(ctx context.Context, emit func(presence.Sample)) error {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()

	if s.orientation != nil {
		stop, err := s.orientation.Watch(ctx, s.HandleOrientation)
		if err != nil {
			// Compass fallback is optional; GPS heading still works.
			s.logger.Warn("Orientation unavailable", "error", err)
		} else {
			s.mu.Lock()
			s.stopOrientation = stop
			s.mu.Unlock()
		}
	}

	stop, err := s.location.Watch(ctx, s.cfg.Watch, s.HandleFix)
	if err != nil {
		return fmt.Errorf("failed to watch location: %w", err)
	}
	s.mu.Lock()
	s.stopLocation = stop
	s.mu.Unlock()
	return nil
}

// Stop ends both subscriptions. Further fixes are ignored.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stopLocation, stopOrientation := s.stopLocation, s.stopOrientation
	s.stopLocation, s.stopOrientation = nil, nil
	s.emit = nil
	s.mu.Unlock()

	if stopLocation != nil {
		stopLocation()
	}
	if stopOrientation != nil {
		stopOrientation()
	}
}

// HandleFix is the location watch callback.
func (s *Sampler) HandleFix(fix presence.Fix, err error) {
	sample, ok := s.accept(fix, err)
	if !ok {
		return
	}

	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(sample)
	}
}

func (s *Sampler) accept(fix presence.Fix, err error) (presence.Sample, bool) {
	if err != nil {
		s.logger.Warn("Location sensor error", "error", err)
		return presence.Sample{Valid: false, Err: err, CapturedAt: s.cfg.Now()}, true
	}

	at := fix.Timestamp
	if at.IsZero() {
		at = s.cfg.Now()
	}

	s.mu.Lock()
	allowed := s.limiter.AllowN(at, 1)
	s.mu.Unlock()
	if !allowed {
		return presence.Sample{}, false
	}

	return presence.Sample{
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		AccuracyMeters: fix.AccuracyMeters,
		HeadingDegrees: s.heading(fix),
		CapturedAt:     at,
		Valid:          fix.AccuracyMeters <= s.cfg.AccuracyThreshold,
	}, true
}

// HandleOrientation records the latest compass reading.
func (s *Sampler) HandleOrientation(o presence.Orientation) {
	if o.Alpha == nil || !isNumber(*o.Alpha) {
		return
	}
	heading := compassHeading(*o.Alpha)

	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Absolute {
		s.absoluteHeading = &heading
	} else {
		s.relativeHeading = &heading
	}
}

// heading prefers the GPS course, then the absolute compass, then the relative one.
func (s *Sampler) heading(fix presence.Fix) *float64 {
	if fix.Heading != nil && isNumber(*fix.Heading) {
		h := *fix.Heading
		return &h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.absoluteHeading != nil {
		h := *s.absoluteHeading
		return &h
	}
	if s.relativeHeading != nil {
		h := *s.relativeHeading
		return &h
	}
	return nil
}

// compassHeading converts a counter-clockwise alpha angle into a clockwise bearing.
func compassHeading(alpha float64) float64 {
	h := math.Mod(360-alpha, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func isNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
