package track

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/presence"
)

var ErrEmptyTrack = errors.New("track has no points")

// Point is one line of a recorded track file.
type Point struct {
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Accuracy float64   `json:"accuracy"`
	Heading  *float64  `json:"heading,omitempty"`
	At       time.Time `json:"at"`

	// Error replays a sensor failure: permission_denied, unavailable or timeout.
	Error string `json:"error,omitempty"`
}

// Read parses JSON lines. Blank lines and lines starting with # are skipped.
func Read(r io.Reader) ([]Point, error) {
	var points []Point
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var p Point
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Error == "" && p.At.IsZero() {
			return nil, fmt.Errorf("line %d: missing \"at\"", line)
		}
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	return points, nil
}

// Fix converts the point into what a location sensor would deliver.
func (p Point) Fix() (presence.Fix, error) {
	switch p.Error {
	case "":
	case "permission_denied":
		return presence.Fix{}, presence.ErrPermissionDenied
	case "unavailable":
		return presence.Fix{}, presence.ErrPositionUnavailable
	case "timeout":
		return presence.Fix{}, presence.ErrSensorTimeout
	default:
		return presence.Fix{}, fmt.Errorf("sensor error: %s", p.Error)
	}
	return presence.Fix{
		Latitude:       p.Lat,
		Longitude:      p.Lng,
		AccuracyMeters: p.Accuracy,
		Heading:        p.Heading,
		Timestamp:      p.At,
	}, nil
}

// Source is a presence.LocationSource that plays back a recorded track.
type Source struct {
	points []Point
	speed  float64

	mu      sync.Mutex
	handler presence.LocationHandler
	ready   chan struct{}
	stopped bool
}

// NewSource replays points. speed scales the recorded gaps (2 plays twice as
// fast); zero or less delivers every point without waiting.
func NewSource(points []Point, speed float64) *Source {
	return &Source{
		points: points,
		speed:  speed,
		ready:  make(chan struct{}),
	}
}

// Watch implements presence.LocationSource. Only one watcher is supported.
func (s *Source) Watch(_ context.Context, _ presence.WatchOptions, handler presence.LocationHandler) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler != nil {
		return nil, errors.New("track source is already watched")
	}
	s.handler = handler
	close(s.ready)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
	}, nil
}

// Play waits for a watcher and delivers every point. It returns early when ctx
// ends or the watcher stops.
func (s *Source) Play(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	var prev time.Time
	for _, p := range s.points {
		if gap := s.gap(prev, p.At); gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if !p.At.IsZero() {
			prev = p.At
		}

		s.mu.Lock()
		handler, stopped := s.handler, s.stopped
		s.mu.Unlock()
		if stopped {
			return nil
		}

		fix, err := p.Fix()
		handler(fix, err)
	}
	return nil
}

func (s *Source) gap(prev, next time.Time) time.Duration {
	if s.speed <= 0 || prev.IsZero() || next.IsZero() || !next.After(prev) {
		return 0
	}
	return time.Duration(float64(next.Sub(prev)) / s.speed)
}
